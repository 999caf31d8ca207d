// Package seed bootstraps the default organization so a fresh install
// is usable without manual setup.
package seed

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/loomhq/loom/internal/clock"
	organizationdomain "github.com/loomhq/loom/internal/organization/domain"
	userdomain "github.com/loomhq/loom/internal/user/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultOrgName      = "Main"
	defaultAdminEmail   = "admin@loom.local"
	defaultAdminDisplay = "Loom Admin"
)

type Seeder struct {
	db    *gorm.DB
	genID *snowflake.Node
	clk   clock.Clock
	log   *zap.Logger
}

func NewSeeder(db *gorm.DB, genID *snowflake.Node, clk clock.Clock, log *zap.Logger) *Seeder {
	return &Seeder{db: db, genID: genID, clk: clk, log: log.Named("seed")}
}

// EnsureDefaultOrg creates the default admin user, organization and
// owner membership if they do not exist. Safe to run on every startup.
func (s *Seeder) EnsureDefaultOrg(orgSlug string) error {
	orgSlug = strings.TrimSpace(orgSlug)
	if orgSlug == "" {
		return errors.New("default organization slug is required")
	}

	ctx := context.Background()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		admin, err := s.ensureAdmin(ctx, tx)
		if err != nil {
			return err
		}

		org, created, err := s.ensureOrg(ctx, tx, orgSlug, admin.ID)
		if err != nil {
			return err
		}
		if created {
			s.log.Info("default organization created",
				zap.String("organization_id", org.ID.String()),
				zap.String("slug", org.Slug),
			)
		}

		return s.ensureOwnerMembership(ctx, tx, org, admin.ID)
	})
}

func (s *Seeder) ensureAdmin(ctx context.Context, tx *gorm.DB) (*userdomain.User, error) {
	var user userdomain.User
	err := tx.WithContext(ctx).
		Where("email = ? AND deleted_at IS NULL", defaultAdminEmail).
		First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := s.clk.Now()
	user = userdomain.User{
		ID:          s.genID.Generate(),
		ExternalID:  defaultAdminEmail,
		Email:       defaultAdminEmail,
		DisplayName: defaultAdminDisplay,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *Seeder) ensureOrg(ctx context.Context, tx *gorm.DB, orgSlug string, ownerID snowflake.ID) (*organizationdomain.OrganizationRow, bool, error) {
	var org organizationdomain.OrganizationRow
	err := tx.WithContext(ctx).
		Where("slug = ? AND deleted_at IS NULL", orgSlug).
		First(&org).Error
	if err == nil {
		return &org, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	now := s.clk.Now()
	org = organizationdomain.OrganizationRow{
		ID:        s.genID.Generate(),
		Name:      defaultOrgName,
		Slug:      orgSlug,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, false, err
	}
	return &org, true, nil
}

func (s *Seeder) ensureOwnerMembership(ctx context.Context, tx *gorm.DB, org *organizationdomain.OrganizationRow, userID snowflake.ID) error {
	var member organizationdomain.MembershipRow
	err := tx.WithContext(ctx).
		Where("organization_id = ? AND user_id = ? AND deleted_at IS NULL", org.ID, userID).
		First(&member).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := s.clk.Now()
	member = organizationdomain.MembershipRow{
		ID:             s.genID.Generate(),
		OrganizationID: org.ID,
		UserID:         userID,
		Role:           organizationdomain.RoleOrgAdmin.String(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return tx.WithContext(ctx).Create(&member).Error
}
