package rls

import (
	"fmt"

	"gorm.io/gorm"
)

// WithTenant scopes the transaction to a single organization. Row-level
// policies on the organization tables read app.current_org_id.
func WithTenant(tx *gorm.DB, tenantID int64) error {
	return tx.Exec(
		"SET LOCAL app.current_org_id = ?",
		fmt.Sprintf("%d", tenantID),
	).Error
}

// WithActor additionally records the acting user so admin-only write
// policies can match on app.current_user_id.
func WithActor(tx *gorm.DB, tenantID, userID int64) error {
	if err := WithTenant(tx, tenantID); err != nil {
		return err
	}
	return tx.Exec(
		"SET LOCAL app.current_user_id = ?",
		fmt.Sprintf("%d", userID),
	).Error
}

// Supported reports whether the bound dialect evaluates row-level
// policies. SET LOCAL only exists on Postgres.
func Supported(tx *gorm.DB) bool {
	return tx.Dialector.Name() == "postgres"
}
