// Package event persists committed organization events into the
// organization_events log table.
package event

import (
	"context"
	"encoding/json"

	"github.com/bwmarrin/snowflake"
	"github.com/loomhq/loom/internal/eventbus"
	"github.com/loomhq/loom/internal/organization/domain"
	"github.com/loomhq/loom/pkg/domainevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Recorder appends one row per published event. It runs after commit,
// so a write failure here loses the log entry but never the state
// change; failures are surfaced to the bus and logged there.
type Recorder struct {
	db    *gorm.DB
	genID *snowflake.Node
	log   *zap.Logger
}

func NewRecorder(db *gorm.DB, genID *snowflake.Node, log *zap.Logger) *Recorder {
	return &Recorder{
		db:    db,
		genID: genID,
		log:   log.Named("organization.event"),
	}
}

// Register attaches the recorder to every organization event.
func (r *Recorder) Register(bus *eventbus.Bus) {
	for _, name := range []string{
		domain.EventOrganizationCreated,
		domain.EventOrganizationDeleted,
		domain.EventMemberAdded,
		domain.EventMemberRemoved,
		domain.EventMemberRoleChanged,
	} {
		bus.Subscribe(name, r.Handle)
	}
}

func (r *Recorder) Handle(ctx context.Context, event domainevent.Event) error {
	orgID, ok := organizationID(event)
	if !ok {
		r.log.Warn("event without organization id", zap.String("event", event.EventName()))
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	row := &domain.EventRow{
		ID:             r.genID.Generate(),
		OrganizationID: orgID,
		EventType:      event.EventName(),
		Payload:        payload,
		CreatedAt:      event.OccurredAt(),
	}
	return r.db.WithContext(ctx).Create(row).Error
}

func organizationID(event domainevent.Event) (snowflake.ID, bool) {
	switch e := event.(type) {
	case domain.OrganizationCreated:
		return e.OrganizationID, true
	case domain.OrganizationDeleted:
		return e.OrganizationID, true
	case domain.MemberAdded:
		return e.OrganizationID, true
	case domain.MemberRemoved:
		return e.OrganizationID, true
	case domain.MemberRoleChanged:
		return e.OrganizationID, true
	default:
		return 0, false
	}
}
