// Package domain contains the organization aggregate and its
// persistence models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrganizationRow is the persistence shape of the aggregate root.
type OrganizationRow struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"type:text;not null" json:"name"`
	Slug        string          `gorm:"type:text;not null" json:"slug"`
	OwnerID     snowflake.ID    `gorm:"column:owner_id;not null;index" json:"owner_id"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt   *time.Time      `gorm:"index" json:"deleted_at,omitempty"`
	Memberships []MembershipRow `gorm:"foreignKey:OrganizationID" json:"memberships,omitempty"`
}

// TableName sets the database table name.
func (OrganizationRow) TableName() string { return "organizations" }

// MembershipRow is the persistence shape of a membership. Uniqueness of
// (organization_id, user_id) over live rows is enforced by a partial
// index created in migrations.
type MembershipRow struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizationID snowflake.ID `gorm:"column:organization_id;not null;index" json:"organization_id"`
	UserID         snowflake.ID `gorm:"column:user_id;not null;index" json:"user_id"`
	Role           string       `gorm:"type:text;not null" json:"role"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt      *time.Time   `gorm:"index" json:"deleted_at,omitempty"`
}

// TableName sets the database table name.
func (MembershipRow) TableName() string { return "organization_memberships" }

// EventRow is the post-commit event log written by the bus subscriber.
type EventRow struct {
	ID             snowflake.ID   `gorm:"primaryKey"`
	OrganizationID snowflake.ID   `gorm:"column:organization_id;not null;index"`
	EventType      string         `gorm:"type:text;not null"`
	Payload        datatypes.JSON `gorm:"type:jsonb;not null"`
	CreatedAt      time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (EventRow) TableName() string { return "organization_events" }
