package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Service is the command surface over the aggregate. Admin-only
// commands consult the authorization layer before the aggregate's
// invariants are reached.
type Service interface {
	Create(ctx context.Context, userID snowflake.ID, req CreateOrganizationRequest) (*OrganizationResponse, error)
	GetBySlug(ctx context.Context, userID snowflake.ID, slug string) (*OrganizationResponse, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]OrganizationListItem, error)
	Rename(ctx context.Context, userID snowflake.ID, orgSlug string, req RenameOrganizationRequest) (*OrganizationResponse, error)
	Delete(ctx context.Context, userID snowflake.ID, orgSlug string) error

	AddMember(ctx context.Context, userID snowflake.ID, orgSlug string, req AddMemberRequest) (*MembershipResponse, error)
	RemoveMember(ctx context.Context, userID snowflake.ID, orgSlug string, membershipID snowflake.ID) error
	UpdateMemberRole(ctx context.Context, userID snowflake.ID, orgSlug string, membershipID snowflake.ID, req UpdateMemberRoleRequest) (*MembershipResponse, error)
}

type CreateOrganizationRequest struct {
	Name string
	Slug string
}

type RenameOrganizationRequest struct {
	Name string
	Slug string
}

type AddMemberRequest struct {
	UserID snowflake.ID
	Role   string
}

type UpdateMemberRoleRequest struct {
	Role string
}

type OrganizationResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Slug        string               `json:"slug"`
	OwnerID     string               `json:"owner_id"`
	CreatedAt   time.Time            `json:"created_at"`
	Memberships []MembershipResponse `json:"memberships,omitempty"`
}

type MembershipResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}
