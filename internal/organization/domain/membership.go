package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Membership is a child entity owned exclusively by Organization. Its
// mutators are unexported: only the aggregate, living in this package,
// can change role or deletion state.
type Membership struct {
	id             snowflake.ID
	userID         snowflake.ID
	organizationID snowflake.ID
	role           Role
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// MembershipProps rehydrates a membership from persistence.
type MembershipProps struct {
	ID             snowflake.ID
	UserID         snowflake.ID
	OrganizationID snowflake.ID
	Role           Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

func membershipFromProps(p MembershipProps) *Membership {
	return &Membership{
		id:             p.ID,
		userID:         p.UserID,
		organizationID: p.OrganizationID,
		role:           p.Role,
		createdAt:      p.CreatedAt,
		updatedAt:      p.UpdatedAt,
		deletedAt:      p.DeletedAt,
	}
}

func (m *Membership) ID() snowflake.ID             { return m.id }
func (m *Membership) UserID() snowflake.ID         { return m.userID }
func (m *Membership) OrganizationID() snowflake.ID { return m.organizationID }
func (m *Membership) Role() Role                   { return m.role }
func (m *Membership) CreatedAt() time.Time         { return m.createdAt }
func (m *Membership) UpdatedAt() time.Time         { return m.updatedAt }

// DeletedAt returns a copy of the deletion timestamp, if set.
func (m *Membership) DeletedAt() *time.Time {
	if m.deletedAt == nil {
		return nil
	}
	t := *m.deletedAt
	return &t
}

func (m *Membership) IsDeleted() bool { return m.deletedAt != nil }

// changeRole returns the previous role and whether anything changed.
// Setting the current role again changes nothing, including updatedAt.
func (m *Membership) changeRole(newRole Role, now time.Time) (Role, bool) {
	previous := m.role
	if newRole == previous {
		return previous, false
	}
	m.role = newRole
	m.updatedAt = now
	return previous, true
}

// markDeleted stamps the deletion time once; later calls are no-ops.
func (m *Membership) markDeleted(now time.Time) {
	if m.deletedAt != nil {
		return
	}
	t := now
	m.deletedAt = &t
	m.updatedAt = now
}
