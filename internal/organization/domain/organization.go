package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loomhq/loom/internal/clock"
	"github.com/loomhq/loom/pkg/domainevent"
)

// Organization is the aggregate root. It owns its memberships, enforces
// the owner-protection and duplicate-membership invariants, buffers
// domain events, and tracks membership changes for diffed persistence.
//
// Nothing here touches storage: invariant checks are purely in-process
// and protect a single in-memory instance. Races between concurrently
// loaded instances are caught by the storage-level unique index on
// (organization_id, user_id).
type Organization struct {
	id        snowflake.ID
	name      string
	slug      string
	ownerID   snowflake.ID
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time

	memberships []*Membership

	createdIDs map[snowflake.ID]struct{}
	updatedIDs map[snowflake.ID]struct{}
	removed    []*Membership

	events []domainevent.Event

	genID *snowflake.Node
	clk   clock.Clock
}

// OrganizationProps rehydrates an aggregate from persistence.
type OrganizationProps struct {
	ID          snowflake.ID
	Name        string
	Slug        string
	OwnerID     snowflake.ID
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time
	Memberships []MembershipProps
}

// NewOrganization builds a new aggregate together with the owner's
// membership, both held only in memory until the repository persists
// them. The caller supplies a slug already known to be unique; slug
// uniqueness needs a database round-trip and is an application concern.
func NewOrganization(genID *snowflake.Node, clk clock.Clock, name, slug string, ownerID snowflake.ID) *Organization {
	now := clk.Now()
	org := &Organization{
		id:         genID.Generate(),
		name:       name,
		slug:       slug,
		ownerID:    ownerID,
		createdAt:  now,
		updatedAt:  now,
		createdIDs: make(map[snowflake.ID]struct{}),
		updatedIDs: make(map[snowflake.ID]struct{}),
		genID:      genID,
		clk:        clk,
	}

	owner := &Membership{
		id:             genID.Generate(),
		userID:         ownerID,
		organizationID: org.id,
		role:           RoleOrgAdmin,
		createdAt:      now,
		updatedAt:      now,
	}
	org.memberships = append(org.memberships, owner)

	org.record(OrganizationCreated{
		OrganizationID: org.id,
		Name:           name,
		Slug:           slug,
		OwnerID:        ownerID,
		At:             now,
	})
	org.record(MemberAdded{
		OrganizationID: org.id,
		MembershipID:   owner.id,
		UserID:         ownerID,
		Role:           owner.role,
		At:             now,
	})
	return org
}

// FromPersistence rehydrates without emitting events. Props are assumed
// valid; soft-deleted memberships must already be filtered out by the
// repository.
func FromPersistence(props OrganizationProps, genID *snowflake.Node, clk clock.Clock) *Organization {
	org := &Organization{
		id:         props.ID,
		name:       props.Name,
		slug:       props.Slug,
		ownerID:    props.OwnerID,
		createdAt:  props.CreatedAt,
		updatedAt:  props.UpdatedAt,
		deletedAt:  props.DeletedAt,
		createdIDs: make(map[snowflake.ID]struct{}),
		updatedIDs: make(map[snowflake.ID]struct{}),
		genID:      genID,
		clk:        clk,
	}
	for _, p := range props.Memberships {
		org.memberships = append(org.memberships, membershipFromProps(p))
	}
	return org
}

func (o *Organization) ID() snowflake.ID      { return o.id }
func (o *Organization) Name() string          { return o.name }
func (o *Organization) Slug() string          { return o.slug }
func (o *Organization) OwnerID() snowflake.ID { return o.ownerID }
func (o *Organization) CreatedAt() time.Time  { return o.createdAt }
func (o *Organization) UpdatedAt() time.Time  { return o.updatedAt }

func (o *Organization) DeletedAt() *time.Time {
	if o.deletedAt == nil {
		return nil
	}
	t := *o.deletedAt
	return &t
}

func (o *Organization) IsDeleted() bool { return o.deletedAt != nil }

// Memberships returns the active membership collection. The slice is a
// copy; the entities are live.
func (o *Organization) Memberships() []*Membership {
	out := make([]*Membership, len(o.memberships))
	copy(out, o.memberships)
	return out
}

// AddMember creates a membership for userID. Only active memberships
// count for the duplicate check.
func (o *Organization) AddMember(userID snowflake.ID, role Role) (*Membership, error) {
	if o.IsDeleted() {
		return nil, ErrOrganizationDeleted
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	if o.HasMember(userID) {
		return nil, ErrDuplicateMembership
	}

	now := o.clk.Now()
	m := &Membership{
		id:             o.genID.Generate(),
		userID:         userID,
		organizationID: o.id,
		role:           role,
		createdAt:      now,
		updatedAt:      now,
	}
	o.memberships = append(o.memberships, m)
	o.createdIDs[m.id] = struct{}{}

	o.record(MemberAdded{
		OrganizationID: o.id,
		MembershipID:   m.id,
		UserID:         userID,
		Role:           role,
		At:             now,
	})
	return m, nil
}

// RemoveMember marks the membership deleted and drops it from the
// active collection. The owner's membership can never be removed.
func (o *Organization) RemoveMember(membershipID snowflake.ID) error {
	if o.IsDeleted() {
		return ErrOrganizationDeleted
	}
	idx := o.indexOf(membershipID)
	if idx < 0 {
		return ErrMembershipNotFound
	}
	m := o.memberships[idx]
	if m.userID == o.ownerID {
		return ErrOwnerRemoval
	}

	now := o.clk.Now()
	m.markDeleted(now)
	o.memberships = append(o.memberships[:idx], o.memberships[idx+1:]...)
	delete(o.updatedIDs, m.id)

	if _, pendingCreate := o.createdIDs[m.id]; pendingCreate {
		// Never persisted: nothing to delete downstream.
		delete(o.createdIDs, m.id)
	} else {
		o.removed = append(o.removed, m)
	}

	o.record(MemberRemoved{
		OrganizationID: o.id,
		MembershipID:   m.id,
		UserID:         m.userID,
		At:             now,
	})
	return nil
}

// UpdateMemberRole changes a membership's role. Setting the current
// role again is an idempotent no-op: no event, no change tracking.
func (o *Organization) UpdateMemberRole(membershipID snowflake.ID, newRole Role) (*Membership, error) {
	if o.IsDeleted() {
		return nil, ErrOrganizationDeleted
	}
	if !newRole.Valid() {
		return nil, ErrInvalidRole
	}
	idx := o.indexOf(membershipID)
	if idx < 0 {
		return nil, ErrMembershipNotFound
	}
	m := o.memberships[idx]

	now := o.clk.Now()
	previous, changed := m.changeRole(newRole, now)
	if !changed {
		return m, nil
	}

	if _, pendingCreate := o.createdIDs[m.id]; !pendingCreate {
		o.updatedIDs[m.id] = struct{}{}
	}

	o.record(MemberRoleChanged{
		OrganizationID: o.id,
		MembershipID:   m.id,
		UserID:         m.userID,
		PreviousRole:   previous,
		NewRole:        newRole,
		At:             now,
	})
	return m, nil
}

// Rename mutates name and slug unconditionally; slug uniqueness
// re-validation is the caller's responsibility.
func (o *Organization) Rename(newName, newSlug string) {
	o.name = newName
	o.slug = newSlug
	o.updatedAt = o.clk.Now()
}

// Delete soft-deletes the aggregate. A second call is a silent no-op.
func (o *Organization) Delete() {
	if o.deletedAt != nil {
		return
	}
	now := o.clk.Now()
	o.deletedAt = &now
	o.updatedAt = now
	o.record(OrganizationDeleted{OrganizationID: o.id, At: now})
}

// PullMembershipChanges returns the accumulated diff and clears the
// tracker. The repository consumes it exactly once per save; a second
// call yields an empty diff.
func (o *Organization) PullMembershipChanges() MembershipChanges {
	var changes MembershipChanges
	for _, m := range o.memberships {
		if _, ok := o.createdIDs[m.id]; ok {
			changes.Created = append(changes.Created, m)
			continue
		}
		if _, ok := o.updatedIDs[m.id]; ok {
			changes.Updated = append(changes.Updated, m)
		}
	}
	changes.Deleted = o.removed

	o.createdIDs = make(map[snowflake.ID]struct{})
	o.updatedIDs = make(map[snowflake.ID]struct{})
	o.removed = nil
	return changes
}

// PullEvents drains the buffered domain events.
func (o *Organization) PullEvents() []domainevent.Event {
	events := o.events
	o.events = nil
	return events
}

// AttachEvents puts drained events back, the degraded safety net used
// when no publisher is configured.
func (o *Organization) AttachEvents(events ...domainevent.Event) {
	o.events = append(o.events, events...)
}

func (o *Organization) MembershipByID(membershipID snowflake.ID) (*Membership, bool) {
	idx := o.indexOf(membershipID)
	if idx < 0 {
		return nil, false
	}
	return o.memberships[idx], true
}

func (o *Organization) MembershipByUserID(userID snowflake.ID) (*Membership, bool) {
	for _, m := range o.memberships {
		if m.userID == userID {
			return m, true
		}
	}
	return nil, false
}

func (o *Organization) HasMember(userID snowflake.ID) bool {
	_, ok := o.MembershipByUserID(userID)
	return ok
}

func (o *Organization) IsAdmin(userID snowflake.ID) bool {
	m, ok := o.MembershipByUserID(userID)
	return ok && m.role == RoleOrgAdmin
}

func (o *Organization) IsOwner(userID snowflake.ID) bool {
	return userID == o.ownerID
}

func (o *Organization) indexOf(membershipID snowflake.ID) int {
	for i, m := range o.memberships {
		if m.id == membershipID {
			return i
		}
	}
	return -1
}

func (o *Organization) record(event domainevent.Event) {
	o.events = append(o.events, event)
}
