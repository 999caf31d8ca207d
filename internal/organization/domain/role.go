package domain

import "strings"

// Role is the closed set of membership roles.
type Role string

const (
	RoleOrgAdmin  Role = "ORG_ADMIN"
	RoleOrgMember Role = "ORG_MEMBER"
)

// ParseRole normalizes and validates a raw role value.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleOrgAdmin:
		return RoleOrgAdmin, nil
	case RoleOrgMember:
		return RoleOrgMember, nil
	default:
		return "", ErrInvalidRole
	}
}

func (r Role) Valid() bool {
	return r == RoleOrgAdmin || r == RoleOrgMember
}

func (r Role) String() string { return string(r) }
