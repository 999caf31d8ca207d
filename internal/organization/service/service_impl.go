package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/loomhq/loom/internal/authorization"
	"github.com/loomhq/loom/internal/clock"
	"github.com/loomhq/loom/internal/organization/domain"
	"github.com/loomhq/loom/internal/orgcontext"
	"github.com/loomhq/loom/internal/uow"
	userdomain "github.com/loomhq/loom/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type service struct {
	uowFactory *uow.Factory
	repo       domain.Repository
	users      userdomain.Repository
	authz      authorization.Service
	genID      *snowflake.Node
	clk        clock.Clock
	log        *zap.Logger
}

func NewService(
	uowFactory *uow.Factory,
	repo domain.Repository,
	users userdomain.Repository,
	authz authorization.Service,
	genID *snowflake.Node,
	clk clock.Clock,
	log *zap.Logger,
) domain.Service {
	return &service{
		uowFactory: uowFactory,
		repo:       repo,
		users:      users,
		authz:      authz,
		genID:      genID,
		clk:        clk,
		log:        log.Named("organization.service"),
	}
}

func (s *service) Create(ctx context.Context, userID snowflake.ID, req domain.CreateOrganizationRequest) (*domain.OrganizationResponse, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	orgSlug := strings.TrimSpace(req.Slug)
	if orgSlug == "" {
		orgSlug = slug.Make(name)
	}
	if !slug.IsSlug(orgSlug) {
		return nil, domain.ErrInvalidSlug
	}

	// Slug uniqueness needs a database round-trip, so it lives here and
	// not in the aggregate. The unique index backstops the race.
	taken, err := s.repo.SlugExists(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrSlugTaken
	}

	var org *domain.Organization
	u := s.uowFactory.New()
	err = u.WithTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx, u)
		org = domain.NewOrganization(s.genID, s.clk, name, orgSlug, userID)
		return repo.Create(ctx, org)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("organization created",
		zap.String("organization_id", org.ID().String()),
		zap.String("slug", org.Slug()),
		zap.String("owner_id", userID.String()),
	)
	return organizationResponse(org), nil
}

func (s *service) GetBySlug(ctx context.Context, userID snowflake.ID, orgSlug string) (*domain.OrganizationResponse, error) {
	org, err := s.resolve(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, org, authorization.ObjectOrganization, authorization.ActionOrganizationView); err != nil {
		return nil, err
	}
	return organizationResponse(org), nil
}

func (s *service) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) Rename(ctx context.Context, userID snowflake.ID, orgSlug string, req domain.RenameOrganizationRequest) (*domain.OrganizationResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	newSlug := strings.TrimSpace(req.Slug)
	if newSlug == "" {
		newSlug = slug.Make(name)
	}
	if !slug.IsSlug(newSlug) {
		return nil, domain.ErrInvalidSlug
	}

	org, err := s.resolve(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, org, authorization.ObjectOrganization, authorization.ActionOrganizationUpdate); err != nil {
		return nil, err
	}

	if newSlug != org.Slug() {
		taken, err := s.repo.SlugExists(ctx, newSlug)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, domain.ErrSlugTaken
		}
	}

	var renamed *domain.Organization
	err = s.mutate(ctx, userID, org.ID(), func(org *domain.Organization, repo domain.Repository) error {
		org.Rename(name, newSlug)
		renamed = org
		return repo.Save(ctx, org)
	})
	if err != nil {
		return nil, err
	}
	return organizationResponse(renamed), nil
}

func (s *service) Delete(ctx context.Context, userID snowflake.ID, orgSlug string) error {
	org, err := s.resolve(ctx, orgSlug)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, userID, org, authorization.ObjectOrganization, authorization.ActionOrganizationDelete); err != nil {
		return err
	}

	return s.mutate(ctx, userID, org.ID(), func(org *domain.Organization, repo domain.Repository) error {
		org.Delete()
		return repo.SoftDelete(ctx, org)
	})
}

func (s *service) AddMember(ctx context.Context, userID snowflake.ID, orgSlug string, req domain.AddMemberRequest) (*domain.MembershipResponse, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	org, err := s.resolve(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, org, authorization.ObjectMember, authorization.ActionMemberAdd); err != nil {
		return nil, err
	}

	target, err := s.users.FindByID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, domain.ErrInvalidUser
	}

	var added *domain.Membership
	err = s.mutate(ctx, userID, org.ID(), func(org *domain.Organization, repo domain.Repository) error {
		m, err := org.AddMember(req.UserID, role)
		if err != nil {
			return err
		}
		added = m
		return repo.Save(ctx, org)
	})
	if err != nil {
		return nil, err
	}
	return membershipResponse(added), nil
}

func (s *service) RemoveMember(ctx context.Context, userID snowflake.ID, orgSlug string, membershipID snowflake.ID) error {
	if membershipID == 0 {
		return domain.ErrInvalidMembership
	}

	org, err := s.resolve(ctx, orgSlug)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, userID, org, authorization.ObjectMember, authorization.ActionMemberRemove); err != nil {
		return err
	}

	return s.mutate(ctx, userID, org.ID(), func(org *domain.Organization, repo domain.Repository) error {
		if err := org.RemoveMember(membershipID); err != nil {
			return err
		}
		return repo.Save(ctx, org)
	})
}

func (s *service) UpdateMemberRole(ctx context.Context, userID snowflake.ID, orgSlug string, membershipID snowflake.ID, req domain.UpdateMemberRoleRequest) (*domain.MembershipResponse, error) {
	if membershipID == 0 {
		return nil, domain.ErrInvalidMembership
	}
	role, err := domain.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	org, err := s.resolve(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, userID, org, authorization.ObjectMember, authorization.ActionMemberUpdateRole); err != nil {
		return nil, err
	}

	var updated *domain.Membership
	err = s.mutate(ctx, userID, org.ID(), func(org *domain.Organization, repo domain.Repository) error {
		m, err := org.UpdateMemberRole(membershipID, role)
		if err != nil {
			return err
		}
		updated = m
		return repo.Save(ctx, org)
	})
	if err != nil {
		return nil, err
	}
	return membershipResponse(updated), nil
}

func (s *service) resolve(ctx context.Context, orgSlug string) (*domain.Organization, error) {
	orgSlug = strings.TrimSpace(orgSlug)
	if orgSlug == "" {
		return nil, domain.ErrInvalidSlug
	}
	org, err := s.repo.FindBySlug(ctx, orgSlug)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, domain.ErrOrganizationNotFound
	}
	return org, nil
}

func (s *service) authorize(ctx context.Context, userID snowflake.ID, org *domain.Organization, object, action string) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	return s.authz.Authorize(ctx, userID.String(), org.ID().String(), object, action)
}

// mutate runs fn against a freshly loaded, transaction-bound aggregate.
// Reloading inside the transaction keeps the change diff scoped to this
// command, and the unit of work flushes events only on commit.
func (s *service) mutate(ctx context.Context, userID, orgID snowflake.ID, fn func(org *domain.Organization, repo domain.Repository) error) error {
	ctx = orgcontext.WithOrgID(orgcontext.WithUserID(ctx, userID.Int64()), orgID.Int64())

	u := s.uowFactory.New()
	return u.WithTransaction(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTrx(tx, u)
		org, err := repo.FindByID(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return domain.ErrOrganizationNotFound
		}
		return fn(org, repo)
	})
}

func organizationResponse(org *domain.Organization) *domain.OrganizationResponse {
	resp := &domain.OrganizationResponse{
		ID:        org.ID().String(),
		Name:      org.Name(),
		Slug:      org.Slug(),
		OwnerID:   org.OwnerID().String(),
		CreatedAt: org.CreatedAt(),
	}
	for _, m := range org.Memberships() {
		resp.Memberships = append(resp.Memberships, *membershipResponse(m))
	}
	return resp
}

func membershipResponse(m *domain.Membership) *domain.MembershipResponse {
	return &domain.MembershipResponse{
		ID:        m.ID().String(),
		UserID:    m.UserID().String(),
		Role:      m.Role().String(),
		CreatedAt: m.CreatedAt(),
	}
}
