package domain

import "errors"

var (
	// Aggregate invariant violations.
	ErrDuplicateMembership = errors.New("user already has a membership in this organization")
	ErrMembershipNotFound  = errors.New("membership not found")
	ErrOwnerRemoval        = errors.New("cannot remove the organization owner")

	// Command validation.
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidSlug          = errors.New("invalid_slug")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidRole          = errors.New("invalid_role")
	ErrInvalidMembership    = errors.New("invalid_membership")
	ErrSlugTaken            = errors.New("slug_taken")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrOrganizationDeleted  = errors.New("organization deleted")
)
