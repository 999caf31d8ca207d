package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loomhq/loom/pkg/domainevent"
	"gorm.io/gorm"
)

// OrganizationListItem is one row of a user's organization listing.
type OrganizationListItem struct {
	ID        snowflake.ID `json:"id"`
	Name      string       `json:"name"`
	Slug      string       `json:"slug"`
	Role      string       `json:"role"`
	CreatedAt time.Time    `json:"created_at"`
}

// Repository persists the aggregate. Find methods load the full active
// membership collection; there is no lazy or partial load. Mutating
// methods drain the aggregate's events into the bound queue (or publish
// immediately when unbound).
type Repository interface {
	// WithTrx returns a new repository bound to the transaction handle
	// and event queue; the receiver is unchanged.
	WithTrx(tx *gorm.DB, queue domainevent.Queue) Repository

	FindByID(ctx context.Context, id snowflake.ID) (*Organization, error)
	FindBySlug(ctx context.Context, slug string) (*Organization, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)

	// Create persists a brand-new aggregate: the parent row with all
	// current memberships nested, no diffing.
	Create(ctx context.Context, org *Organization) error
	// Save persists a loaded aggregate: parent fields plus exactly the
	// created/updated/deleted memberships reported by the aggregate's
	// change tracker, as one batch.
	Save(ctx context.Context, org *Organization) error
	// SoftDelete persists an aggregate-level Delete.
	SoftDelete(ctx context.Context, org *Organization) error
}
