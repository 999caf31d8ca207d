package authorization

import (
	"context"
	"errors"
)

// Service answers "may this user perform this action in this
// organization". It sits between transport and repository: admin-only
// operations are rejected here before the aggregate's invariants are
// consulted.
type Service interface {
	Authorize(ctx context.Context, userID string, orgID string, object string, action string) error
}

var (
	ErrInvalidActor        = errors.New("invalid_actor")
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidObject       = errors.New("invalid_object")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrForbidden           = errors.New("forbidden")
)
