package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/loomhq/loom/internal/clock"
	"github.com/loomhq/loom/internal/organization/domain"
	"github.com/loomhq/loom/pkg/db"
	"github.com/loomhq/loom/pkg/domainevent"
	"gorm.io/gorm"
)

type repository struct {
	db    *gorm.DB
	bus   domainevent.Publisher
	queue domainevent.Queue
	genID *snowflake.Node
	clk   clock.Clock
}

func NewRepository(conn *gorm.DB, bus domainevent.Publisher, genID *snowflake.Node, clk clock.Clock) domain.Repository {
	return &repository{db: conn, bus: bus, genID: genID, clk: clk}
}

func (r *repository) WithTrx(tx *gorm.DB, queue domainevent.Queue) domain.Repository {
	return &repository{db: tx, bus: r.bus, queue: queue, genID: r.genID, clk: r.clk}
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	return r.findOne(ctx, "organizations.id = ?", id)
}

func (r *repository) FindBySlug(ctx context.Context, slug string) (*domain.Organization, error) {
	return r.findOne(ctx, "organizations.slug = ?", slug)
}

func (r *repository) findOne(ctx context.Context, cond string, arg any) (*domain.Organization, error) {
	var row domain.OrganizationRow
	err := r.db.WithContext(ctx).
		Preload("Memberships", "deleted_at IS NULL").
		Where(cond, arg).
		Where("organizations.deleted_at IS NULL").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.rehydrate(row), nil
}

func (r *repository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.OrganizationRow{}).
		Where("slug = ? AND deleted_at IS NULL", slug).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) ListByUser(ctx context.Context, userID snowflake.ID) ([]domain.OrganizationListItem, error) {
	var items []domain.OrganizationListItem
	err := r.db.WithContext(ctx).Raw(
		`SELECT o.id, o.name, o.slug, m.role, o.created_at
		 FROM organizations o
		 JOIN organization_memberships m ON m.organization_id = o.id
		 WHERE m.user_id = ?
		   AND m.deleted_at IS NULL
		   AND o.deleted_at IS NULL
		 ORDER BY o.created_at ASC`,
		userID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Create persists a brand-new aggregate: parent row plus every current
// membership nested in one insert. There is no prior persisted state to
// diff against.
func (r *repository) Create(ctx context.Context, org *domain.Organization) error {
	row := parentRow(org)
	for _, m := range org.Memberships() {
		row.Memberships = append(row.Memberships, membershipRow(m))
	}

	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		// The only unique index a brand-new aggregate can trip is the
		// slug; the owner membership is keyed by the fresh org id.
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrSlugTaken
		}
		return err
	}

	r.dispatch(ctx, org)
	return nil
}

// Save persists a loaded aggregate. The membership diff is pulled from
// the aggregate exactly once and translated into batched create, update
// and soft-delete sub-operations, so only actually-changed rows are
// touched.
func (r *repository) Save(ctx context.Context, org *domain.Organization) error {
	changes := org.PullMembershipChanges()

	parent := parentRow(org)
	err := r.db.WithContext(ctx).
		Model(&domain.OrganizationRow{}).
		Where("id = ?", org.ID()).
		Updates(map[string]any{
			"name":       parent.Name,
			"slug":       parent.Slug,
			"updated_at": parent.UpdatedAt,
		}).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrSlugTaken
		}
		return err
	}

	// Soft deletes go first: a member removed and re-added in the same
	// cycle must free its (organization_id, user_id) slot in the partial
	// unique index before the fresh row is inserted.
	for _, m := range changes.Deleted {
		err := r.db.WithContext(ctx).
			Model(&domain.MembershipRow{}).
			Where("id = ?", m.ID()).
			Updates(map[string]any{
				"deleted_at": m.DeletedAt(),
				"updated_at": m.UpdatedAt(),
			}).Error
		if err != nil {
			return err
		}
	}

	if len(changes.Created) > 0 {
		rows := make([]domain.MembershipRow, 0, len(changes.Created))
		for _, m := range changes.Created {
			rows = append(rows, membershipRow(m))
		}
		if err := r.db.WithContext(ctx).Create(&rows).Error; err != nil {
			// The (organization_id, user_id) index is the backstop for
			// two concurrently loaded instances both passing HasMember.
			if db.IsDuplicateKeyErr(err) {
				return domain.ErrDuplicateMembership
			}
			return err
		}
	}

	for _, m := range changes.Updated {
		err := r.db.WithContext(ctx).
			Model(&domain.MembershipRow{}).
			Where("id = ?", m.ID()).
			Updates(map[string]any{
				"role":       m.Role().String(),
				"updated_at": m.UpdatedAt(),
			}).Error
		if err != nil {
			return err
		}
	}

	r.dispatch(ctx, org)
	return nil
}

// SoftDelete stamps the parent row's deleted_at. When a deny-on-read
// row policy hides the row from the driver's post-update read-back the
// update surfaces an error even though the write went through; re-query
// to tell denial of the write apart from policy-hidden success.
func (r *repository) SoftDelete(ctx context.Context, org *domain.Organization) error {
	deletedAt := org.DeletedAt()
	if deletedAt == nil {
		now := r.clk.Now()
		deletedAt = &now
	}

	err := r.db.WithContext(ctx).
		Model(&domain.OrganizationRow{}).
		Where("id = ?", org.ID()).
		Updates(map[string]any{
			"deleted_at": deletedAt,
			"updated_at": org.UpdatedAt(),
		}).Error
	if err != nil {
		var check domain.OrganizationRow
		lookupErr := r.db.WithContext(ctx).Where("id = ?", org.ID()).First(&check).Error
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			// Unreadable now: the soft delete took effect and the policy
			// denied the read-back, not the write.
			err = nil
		}
	}
	if err != nil {
		return err
	}

	r.dispatch(ctx, org)
	return nil
}

// dispatch drains the aggregate's buffered events after a successful
// write: queue when transaction-bound, publish immediately otherwise,
// re-attach when neither is configured.
func (r *repository) dispatch(ctx context.Context, org *domain.Organization) {
	events := org.PullEvents()
	if len(events) == 0 {
		return
	}
	switch {
	case r.queue != nil:
		r.queue.Queue(events...)
	case r.bus != nil:
		_ = r.bus.Publish(ctx, events...)
	default:
		org.AttachEvents(events...)
	}
}

func (r *repository) rehydrate(row domain.OrganizationRow) *domain.Organization {
	props := domain.OrganizationProps{
		ID:        row.ID,
		Name:      row.Name,
		Slug:      row.Slug,
		OwnerID:   row.OwnerID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
		DeletedAt: row.DeletedAt,
	}
	for _, m := range row.Memberships {
		role, err := domain.ParseRole(m.Role)
		if err != nil {
			// Unknown role in storage; surface it as-is rather than drop
			// the membership.
			role = domain.Role(m.Role)
		}
		props.Memberships = append(props.Memberships, domain.MembershipProps{
			ID:             m.ID,
			UserID:         m.UserID,
			OrganizationID: m.OrganizationID,
			Role:           role,
			CreatedAt:      m.CreatedAt,
			UpdatedAt:      m.UpdatedAt,
			DeletedAt:      m.DeletedAt,
		})
	}
	return domain.FromPersistence(props, r.genID, r.clk)
}

func parentRow(org *domain.Organization) domain.OrganizationRow {
	return domain.OrganizationRow{
		ID:        org.ID(),
		Name:      org.Name(),
		Slug:      org.Slug(),
		OwnerID:   org.OwnerID(),
		CreatedAt: org.CreatedAt(),
		UpdatedAt: org.UpdatedAt(),
		DeletedAt: org.DeletedAt(),
	}
}

func membershipRow(m *domain.Membership) domain.MembershipRow {
	return domain.MembershipRow{
		ID:             m.ID(),
		OrganizationID: m.OrganizationID(),
		UserID:         m.UserID(),
		Role:           m.Role().String(),
		CreatedAt:      m.CreatedAt(),
		UpdatedAt:      m.UpdatedAt(),
		DeletedAt:      m.DeletedAt(),
	}
}
