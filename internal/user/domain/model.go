// Package domain contains the user account model. Authentication
// itself is delegated to the external identity provider; this table
// only mirrors the accounts memberships reference.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// User represents a system user account.
type User struct {
	ID          snowflake.ID      `gorm:"primaryKey"`
	ExternalID  string            `gorm:"column:external_id;type:text;not null;uniqueIndex"`
	Email       string            `gorm:"column:email;type:text;not null;uniqueIndex"`
	DisplayName string            `gorm:"column:display_name;type:text"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
	DeletedAt   *time.Time        `gorm:"index"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)
