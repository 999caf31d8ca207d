// Package uow ties domain mutations to database transactions: events
// queued during a transaction reach the bus only if the transaction
// commits.
package uow

import (
	"context"
	"sync"

	"github.com/loomhq/loom/internal/orgcontext"
	"github.com/loomhq/loom/pkg/domainevent"
	"github.com/loomhq/loom/pkg/rls"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UnitOfWork is request-scoped: one instance per command. Repositories
// bound to its transaction queue events on it; the buffer is flushed
// FIFO after commit and dies with the instance on rollback.
type UnitOfWork struct {
	db  *gorm.DB
	bus domainevent.Publisher
	log *zap.Logger

	mu      sync.Mutex
	pending []domainevent.Event
}

// Queue appends events to the in-memory buffer. Safe to call from
// multiple repositories participating in the same transaction. Events
// queued outside WithTransaction are never auto-flushed.
func (u *UnitOfWork) Queue(events ...domainevent.Event) {
	if len(events) == 0 {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pending = append(u.pending, events...)
}

// WithTransaction opens a transaction, invokes fn with the
// transaction-scoped handle, and flushes the buffered events only if fn
// returns nil (commit). On error the transaction rolls back, nothing is
// flushed, and the error propagates unchanged.
func (u *UnitOfWork) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rls.Supported(tx) {
			if err := u.applyActor(ctx, tx); err != nil {
				return err
			}
		}
		return fn(tx)
	})
	if err != nil {
		return err
	}

	u.flush(ctx)
	return nil
}

func (u *UnitOfWork) applyActor(ctx context.Context, tx *gorm.DB) error {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil
	}
	if userID, ok := orgcontext.UserIDFromContext(ctx); ok {
		return rls.WithActor(tx, orgID.Int64(), userID.Int64())
	}
	return rls.WithTenant(tx, orgID.Int64())
}

// flush publishes the buffer in queue order and clears it. Commit has
// already succeeded here; a failing publish is logged and dropped, the
// known durability gap of an in-memory queue.
func (u *UnitOfWork) flush(ctx context.Context) {
	u.mu.Lock()
	pending := u.pending
	u.pending = nil
	u.mu.Unlock()

	if len(pending) == 0 || u.bus == nil {
		return
	}

	if err := u.bus.Publish(ctx, pending...); err != nil {
		u.log.Warn("post-commit event publish failed",
			zap.Int("events", len(pending)),
			zap.Error(err),
		)
	}
}

// Factory mints request-scoped units of work.
type Factory struct {
	db  *gorm.DB
	bus domainevent.Publisher
	log *zap.Logger
}

func NewFactory(db *gorm.DB, bus domainevent.Publisher, log *zap.Logger) *Factory {
	return &Factory{db: db, bus: bus, log: log.Named("uow")}
}

func (f *Factory) New() *UnitOfWork {
	return &UnitOfWork{db: f.db, bus: f.bus, log: f.log}
}

var Module = fx.Module("uow",
	fx.Provide(NewFactory),
)
