package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/loomhq/loom/internal/clock"
	"github.com/loomhq/loom/pkg/domainevent"
)

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	return node
}

func newTestOrg(t *testing.T) (*Organization, *snowflake.Node, *clock.FakeClock, snowflake.ID) {
	t.Helper()
	node := mustNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ownerID := node.Generate()
	org := NewOrganization(node, clk, "Acme", "acme", ownerID)
	return org, node, clk, ownerID
}

func eventNames(events []domainevent.Event) []string {
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.EventName())
	}
	return names
}

func TestNewOrganizationCreatesOwnerMembership(t *testing.T) {
	org, _, _, ownerID := newTestOrg(t)

	members := org.Memberships()
	if len(members) != 1 {
		t.Fatalf("expected 1 membership, got %d", len(members))
	}
	owner := members[0]
	if owner.UserID() != ownerID {
		t.Fatalf("owner membership user mismatch")
	}
	if owner.Role() != RoleOrgAdmin {
		t.Fatalf("expected owner role %s, got %s", RoleOrgAdmin, owner.Role())
	}
	if !org.IsOwner(ownerID) || !org.IsAdmin(ownerID) {
		t.Fatalf("owner must be both owner and admin")
	}

	names := eventNames(org.PullEvents())
	if len(names) != 2 || names[0] != EventOrganizationCreated || names[1] != EventMemberAdded {
		t.Fatalf("unexpected events: %v", names)
	}

	// The owner membership is part of the initial insert, not the diff.
	changes := org.PullMembershipChanges()
	if !changes.Empty() {
		t.Fatalf("expected empty change set for a new aggregate")
	}
}

func TestAddMemberRejectsDuplicates(t *testing.T) {
	org, node, _, _ := newTestOrg(t)
	userID := node.Generate()

	if _, err := org.AddMember(userID, RoleOrgMember); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if _, err := org.AddMember(userID, RoleOrgAdmin); !errors.Is(err, ErrDuplicateMembership) {
		t.Fatalf("expected ErrDuplicateMembership, got %v", err)
	}
	if _, err := org.AddMember(node.Generate(), Role("SUPERUSER")); !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestAddMemberAfterRemovalSucceeds(t *testing.T) {
	org, node, _, _ := newTestOrg(t)
	userID := node.Generate()

	m, err := org.AddMember(userID, RoleOrgMember)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := org.RemoveMember(m.ID()); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := org.AddMember(userID, RoleOrgMember); err != nil {
		t.Fatalf("re-add after removal: %v", err)
	}
}

func TestRemoveMemberProtectsOwner(t *testing.T) {
	org, _, _, ownerID := newTestOrg(t)

	owner, ok := org.MembershipByUserID(ownerID)
	if !ok {
		t.Fatalf("owner membership missing")
	}
	if err := org.RemoveMember(owner.ID()); !errors.Is(err, ErrOwnerRemoval) {
		t.Fatalf("expected ErrOwnerRemoval, got %v", err)
	}
	if err := org.RemoveMember(snowflake.ID(42)); !errors.Is(err, ErrMembershipNotFound) {
		t.Fatalf("expected ErrMembershipNotFound, got %v", err)
	}
}

func TestRemoveMemberTracksDeletion(t *testing.T) {
	org, node, clk, _ := newTestOrg(t)
	org.PullEvents()

	m, err := org.AddMember(node.Generate(), RoleOrgMember)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	org.PullMembershipChanges()

	clk.Advance(time.Minute)
	if err := org.RemoveMember(m.ID()); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if org.HasMember(m.UserID()) {
		t.Fatalf("removed member still active")
	}
	if m.DeletedAt() == nil {
		t.Fatalf("removed membership not marked deleted")
	}

	changes := org.PullMembershipChanges()
	if len(changes.Deleted) != 1 || changes.Deleted[0].ID() != m.ID() {
		t.Fatalf("expected membership in deleted set, got %+v", changes)
	}

	names := eventNames(org.PullEvents())
	if len(names) != 2 || names[0] != EventMemberAdded || names[1] != EventMemberRemoved {
		t.Fatalf("unexpected events: %v", names)
	}
}

func TestRemovePendingCreateLeavesNothingToDelete(t *testing.T) {
	org, node, _, _ := newTestOrg(t)

	m, err := org.AddMember(node.Generate(), RoleOrgMember)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := org.RemoveMember(m.ID()); err != nil {
		t.Fatalf("remove: %v", err)
	}

	// Created and removed before a save: the row never existed, so the
	// diff must not ask the repository to create or delete it.
	changes := org.PullMembershipChanges()
	if len(changes.Created) != 0 || len(changes.Deleted) != 0 {
		t.Fatalf("expected no pending rows, got %+v", changes)
	}
}

func TestUpdateMemberRoleIsIdempotent(t *testing.T) {
	org, node, _, _ := newTestOrg(t)
	org.PullEvents()

	m, err := org.AddMember(node.Generate(), RoleOrgMember)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	org.PullMembershipChanges()
	org.PullEvents()

	same, err := org.UpdateMemberRole(m.ID(), RoleOrgMember)
	if err != nil {
		t.Fatalf("no-op role update: %v", err)
	}
	if same.Role() != RoleOrgMember {
		t.Fatalf("role changed on no-op update")
	}
	if events := org.PullEvents(); len(events) != 0 {
		t.Fatalf("no-op role update emitted events: %v", eventNames(events))
	}
	if changes := org.PullMembershipChanges(); !changes.Empty() {
		t.Fatalf("no-op role update tracked changes: %+v", changes)
	}
}

func TestUpdateMemberRoleTracksChange(t *testing.T) {
	org, node, _, _ := newTestOrg(t)

	m, err := org.AddMember(node.Generate(), RoleOrgMember)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	org.PullMembershipChanges()
	org.PullEvents()

	updated, err := org.UpdateMemberRole(m.ID(), RoleOrgAdmin)
	if err != nil {
		t.Fatalf("role update: %v", err)
	}
	if updated.Role() != RoleOrgAdmin {
		t.Fatalf("expected role %s, got %s", RoleOrgAdmin, updated.Role())
	}

	changes := org.PullMembershipChanges()
	if len(changes.Updated) != 1 || changes.Updated[0].ID() != m.ID() {
		t.Fatalf("expected membership in updated set, got %+v", changes)
	}

	events := org.PullEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	change, ok := events[0].(MemberRoleChanged)
	if !ok {
		t.Fatalf("unexpected event type %T", events[0])
	}
	if change.PreviousRole != RoleOrgMember || change.NewRole != RoleOrgAdmin {
		t.Fatalf("role transition mismatch: %+v", change)
	}
}

func TestUpdateRoleOnPendingCreateStaysCreated(t *testing.T) {
	org, node, _, _ := newTestOrg(t)

	m, err := org.AddMember(node.Generate(), RoleOrgMember)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := org.UpdateMemberRole(m.ID(), RoleOrgAdmin); err != nil {
		t.Fatalf("role update: %v", err)
	}

	// The pending insert carries the final role; the row must not show
	// up in both created and updated.
	changes := org.PullMembershipChanges()
	if len(changes.Created) != 1 || len(changes.Updated) != 0 {
		t.Fatalf("expected created-only diff, got %+v", changes)
	}
	if changes.Created[0].Role() != RoleOrgAdmin {
		t.Fatalf("pending insert lost role change")
	}
}

func TestPullMembershipChangesClearsTracker(t *testing.T) {
	org, node, _, _ := newTestOrg(t)

	if _, err := org.AddMember(node.Generate(), RoleOrgMember); err != nil {
		t.Fatalf("add: %v", err)
	}
	first := org.PullMembershipChanges()
	if len(first.Created) != 1 {
		t.Fatalf("expected 1 created membership, got %+v", first)
	}
	second := org.PullMembershipChanges()
	if !second.Empty() {
		t.Fatalf("second pull must be empty, got %+v", second)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	org, _, clk, _ := newTestOrg(t)
	org.PullEvents()

	org.Delete()
	deletedAt := org.DeletedAt()
	if deletedAt == nil {
		t.Fatalf("delete did not mark aggregate")
	}

	clk.Advance(time.Hour)
	org.Delete()
	if !org.DeletedAt().Equal(*deletedAt) {
		t.Fatalf("second delete moved the deletion timestamp")
	}

	names := eventNames(org.PullEvents())
	if len(names) != 1 || names[0] != EventOrganizationDeleted {
		t.Fatalf("expected single deletion event, got %v", names)
	}
}

func TestPullEventsDrainsFIFO(t *testing.T) {
	org, node, _, _ := newTestOrg(t)

	m, err := org.AddMember(node.Generate(), RoleOrgMember)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := org.UpdateMemberRole(m.ID(), RoleOrgAdmin); err != nil {
		t.Fatalf("role update: %v", err)
	}

	names := eventNames(org.PullEvents())
	want := []string{EventOrganizationCreated, EventMemberAdded, EventMemberAdded, EventMemberRoleChanged}
	if len(names) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("event order mismatch at %d: %v", i, names)
		}
	}

	if again := org.PullEvents(); len(again) != 0 {
		t.Fatalf("second pull must be empty, got %v", eventNames(again))
	}
}

func TestFromPersistenceEmitsNothing(t *testing.T) {
	node := mustNode(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	ownerID := node.Generate()
	now := clk.Now()

	org := FromPersistence(OrganizationProps{
		ID:        node.Generate(),
		Name:      "Acme",
		Slug:      "acme",
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
		Memberships: []MembershipProps{{
			ID:        node.Generate(),
			UserID:    ownerID,
			Role:      RoleOrgAdmin,
			CreatedAt: now,
			UpdatedAt: now,
		}},
	}, node, clk)

	if events := org.PullEvents(); len(events) != 0 {
		t.Fatalf("rehydration emitted events: %v", eventNames(events))
	}
	if changes := org.PullMembershipChanges(); !changes.Empty() {
		t.Fatalf("rehydration tracked changes: %+v", changes)
	}
	if !org.HasMember(ownerID) {
		t.Fatalf("rehydrated membership missing")
	}
}

func TestDeletedOrganizationRejectsMembershipCommands(t *testing.T) {
	org, node, _, _ := newTestOrg(t)
	member, err := org.AddMember(node.Generate(), RoleOrgMember)
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	org.Delete()

	if _, err := org.AddMember(node.Generate(), RoleOrgMember); !errors.Is(err, ErrOrganizationDeleted) {
		t.Fatalf("expected ErrOrganizationDeleted on add, got %v", err)
	}
	if err := org.RemoveMember(member.ID()); !errors.Is(err, ErrOrganizationDeleted) {
		t.Fatalf("expected ErrOrganizationDeleted on remove, got %v", err)
	}
	if _, err := org.UpdateMemberRole(member.ID(), RoleOrgAdmin); !errors.Is(err, ErrOrganizationDeleted) {
		t.Fatalf("expected ErrOrganizationDeleted on role change, got %v", err)
	}
}
