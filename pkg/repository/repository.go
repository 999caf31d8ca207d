package repository

import (
	"context"

	"github.com/loomhq/loom/pkg/db/option"
	"github.com/loomhq/loom/pkg/db/pagination"
	"github.com/loomhq/loom/pkg/domainevent"
	"gorm.io/gorm"
)

// Repository is the generic CRUD contract over an entity type.
//
// Every mutating operation drains buffered domain events from the
// resource when it implements domainevent.Carrier: a bound queue gets
// them (deferred, commit-gated), otherwise a configured bus receives
// them immediately, otherwise they are re-attached to the resource so
// they are not silently lost.
type Repository[T any] interface {
	// WithTrx returns a new repository bound to the given transaction
	// handle and event queue. The receiver is left untouched, so one
	// prototype can serve many transactions without cross-talk.
	WithTrx(tx *gorm.DB, queue domainevent.Queue) Repository[T]

	FindByID(ctx context.Context, id string) (*T, error)
	FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error)
	Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error)
	FindAllPaged(ctx context.Context, query *T, page pagination.Params, opts ...option.QueryOption) (*pagination.Page[T], error)
	Count(ctx context.Context, query *T) (int64, error)

	Create(ctx context.Context, resource *T) error
	Update(ctx context.Context, resourceID string, resource any) error
	// Save upserts: it attempts an update and falls back to a create
	// when no persisted row matches.
	Save(ctx context.Context, resourceID string, resource *T) error
	Upsert(ctx context.Context, resourceID string, resource *T) error
	Delete(ctx context.Context, resourceID string) error
	// SoftDelete stamps deleted_at. When a deny-on-read row policy hides
	// the row from the driver's post-update read-back, the resulting
	// error is resolved by re-querying: an unreadable row means the
	// delete took effect, a readable one means the write was denied.
	SoftDelete(ctx context.Context, resourceID string) error

	BatchCreate(ctx context.Context, resources []*T) error
	BatchUpdate(ctx context.Context, resources []*T) error
}
