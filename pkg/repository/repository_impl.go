package repository

import (
	"context"
	"errors"
	"time"

	"github.com/loomhq/loom/pkg/db/option"
	"github.com/loomhq/loom/pkg/db/pagination"
	"github.com/loomhq/loom/pkg/domainevent"
	"gorm.io/gorm"
)

type store[T any] struct {
	db    *gorm.DB
	bus   domainevent.Publisher
	queue domainevent.Queue
}

// ProvideStore builds a repository prototype bound to the shared
// connection. Bind transactions with WithTrx.
func ProvideStore[T any](db *gorm.DB, bus domainevent.Publisher) Repository[T] {
	return &store[T]{db: db, bus: bus}
}

func (r *store[T]) WithTrx(tx *gorm.DB, queue domainevent.Queue) Repository[T] {
	return &store[T]{db: tx, bus: r.bus, queue: queue}
}

func (r *store[T]) FindByID(ctx context.Context, id string) (*T, error) {
	var result T
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) FindOne(ctx context.Context, query *T, opts ...option.QueryOption) (*T, error) {
	var result T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (r *store[T]) Find(ctx context.Context, query *T, opts ...option.QueryOption) ([]*T, error) {
	var result []*T
	stmt := r.buildQuery(ctx, query, opts...)
	err := stmt.Find(&result).Error
	return result, err
}

func (r *store[T]) FindAllPaged(ctx context.Context, query *T, page pagination.Params, opts ...option.QueryOption) (*pagination.Page[T], error) {
	page = page.Normalize()

	total, err := r.Count(ctx, query)
	if err != nil {
		return nil, err
	}

	var items []*T
	stmt := r.buildQuery(ctx, query, opts...).Limit(page.Limit).Offset(page.Offset)
	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}

	return &pagination.Page[T]{Items: items, Total: total}, nil
}

func (r *store[T]) Count(ctx context.Context, query *T) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(query).Where(query).Count(&count).Error
	return count, err
}

func (r *store[T]) Create(ctx context.Context, resource *T) error {
	if err := r.db.WithContext(ctx).Create(resource).Error; err != nil {
		return err
	}
	r.dispatch(ctx, resource)
	return nil
}

func (r *store[T]) Update(ctx context.Context, resourceID string, resource any) error {
	if err := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", resourceID).Updates(resource).Error; err != nil {
		return err
	}
	r.dispatch(ctx, resource)
	return nil
}

func (r *store[T]) Save(ctx context.Context, resourceID string, resource *T) error {
	result := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", resourceID).Updates(resource)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return r.Create(ctx, resource)
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.Create(ctx, resource)
	}
	r.dispatch(ctx, resource)
	return nil
}

func (r *store[T]) Upsert(ctx context.Context, resourceID string, resource *T) error {
	return r.Save(ctx, resourceID, resource)
}

func (r *store[T]) Delete(ctx context.Context, resourceID string) error {
	var dummy T
	return r.db.WithContext(ctx).Where("id = ?", resourceID).Delete(&dummy).Error
}

func (r *store[T]) SoftDelete(ctx context.Context, resourceID string) error {
	now := time.Now().UTC()
	err := r.db.WithContext(ctx).Model(new(T)).Where("id = ?", resourceID).Update("deleted_at", now).Error
	if err == nil {
		return nil
	}

	// A deny-on-read row policy makes the driver's post-update read-back
	// fail even though the UPDATE itself went through. Re-query to tell
	// the two cases apart: a row that is no longer readable was deleted,
	// a row that is still readable means the write was denied.
	var check T
	lookupErr := r.db.WithContext(ctx).Where("id = ?", resourceID).First(&check).Error
	if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

func (r *store[T]) BatchCreate(ctx context.Context, resources []*T) error {
	if len(resources) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(resources).Error; err != nil {
		return err
	}
	for _, resource := range resources {
		r.dispatch(ctx, resource)
	}
	return nil
}

func (r *store[T]) BatchUpdate(ctx context.Context, resources []*T) error {
	for _, resource := range resources {
		if err := r.db.WithContext(ctx).Save(resource).Error; err != nil {
			return err
		}
		r.dispatch(ctx, resource)
	}
	return nil
}

// dispatch drains buffered events from the resource after a successful
// write. Queue beats bus; with neither configured the events go back on
// the resource so the caller can still recover them.
func (r *store[T]) dispatch(ctx context.Context, resource any) {
	carrier, ok := resource.(domainevent.Carrier)
	if !ok {
		return
	}

	events := carrier.PullEvents()
	if len(events) == 0 {
		return
	}

	switch {
	case r.queue != nil:
		r.queue.Queue(events...)
	case r.bus != nil:
		_ = r.bus.Publish(ctx, events...)
	default:
		carrier.AttachEvents(events...)
	}
}

func (r *store[T]) buildQuery(ctx context.Context, filter *T, opts ...option.QueryOption) *gorm.DB {
	db := r.db.WithContext(ctx).Where(filter)

	for _, opt := range opts {
		db = opt.Apply(db)
	}

	return db
}
