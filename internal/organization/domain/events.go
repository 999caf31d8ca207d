package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Event names double as bus topics.
const (
	EventOrganizationCreated = "organization.created"
	EventOrganizationDeleted = "organization.deleted"
	EventMemberAdded         = "organization.member.added"
	EventMemberRemoved       = "organization.member.removed"
	EventMemberRoleChanged   = "organization.member.role_changed"
)

type OrganizationCreated struct {
	OrganizationID snowflake.ID
	Name           string
	Slug           string
	OwnerID        snowflake.ID
	At             time.Time
}

func (e OrganizationCreated) EventName() string     { return EventOrganizationCreated }
func (e OrganizationCreated) OccurredAt() time.Time { return e.At }

type OrganizationDeleted struct {
	OrganizationID snowflake.ID
	At             time.Time
}

func (e OrganizationDeleted) EventName() string     { return EventOrganizationDeleted }
func (e OrganizationDeleted) OccurredAt() time.Time { return e.At }

type MemberAdded struct {
	OrganizationID snowflake.ID
	MembershipID   snowflake.ID
	UserID         snowflake.ID
	Role           Role
	At             time.Time
}

func (e MemberAdded) EventName() string     { return EventMemberAdded }
func (e MemberAdded) OccurredAt() time.Time { return e.At }

type MemberRemoved struct {
	OrganizationID snowflake.ID
	MembershipID   snowflake.ID
	UserID         snowflake.ID
	At             time.Time
}

func (e MemberRemoved) EventName() string     { return EventMemberRemoved }
func (e MemberRemoved) OccurredAt() time.Time { return e.At }

type MemberRoleChanged struct {
	OrganizationID snowflake.ID
	MembershipID   snowflake.ID
	UserID         snowflake.ID
	PreviousRole   Role
	NewRole        Role
	At             time.Time
}

func (e MemberRoleChanged) EventName() string     { return EventMemberRoleChanged }
func (e MemberRoleChanged) OccurredAt() time.Time { return e.At }
