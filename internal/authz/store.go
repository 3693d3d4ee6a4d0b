package authz

import (
	"context"

	"github.com/funnelforge/funnelforge/internal/db/models"
)

// Store is the persistent-lookup capability the guard requires. All read
// methods return a nil record, not an error, when nothing matches.
// *store.Store satisfies it.
type Store interface {
	// FindUserTenantByID returns the user with its tenant scope, or nil.
	FindUserTenantByID(ctx context.Context, userID string) (*models.User, error)

	// FindAPIKeyByValueAndOrg returns the active key matching the opaque
	// value, optionally narrowed to an organization, with its organization
	// loaded. Returns nil if no such key exists.
	FindAPIKeyByValueAndOrg(ctx context.Context, value, organizationID string) (*models.Key, error)

	// FindPermissionByTenantAndValue returns the permission registered for
	// (tenant, value), or nil.
	FindPermissionByTenantAndValue(ctx context.Context, tenantID, value string) (*models.Permission, error)

	// RegisterPermission atomically creates a permission and propagates an
	// unrestricted one to the tenant's self-managed roles. A lost
	// creation race reports created as false without an error.
	RegisterPermission(ctx context.Context, permission *models.Permission) (bool, error)

	// ListMembershipsByUser returns every membership of the user.
	ListMembershipsByUser(ctx context.Context, userID string) ([]models.Member, error)

	// ListRolesByMembership returns the roles assigned to a membership.
	ListRolesByMembership(ctx context.Context, memberID string) ([]models.Role, error)

	// ListPermissionsByRole returns the permissions granted to a role.
	ListPermissionsByRole(ctx context.Context, roleID string) ([]models.Permission, error)

	// ListDirectPermissionsByUser returns the tenant-wide user grants.
	ListDirectPermissionsByUser(ctx context.Context, userID string) ([]models.Permission, error)

	// ListPermissionsByAPIKey returns the grants of an API key.
	ListPermissionsByAPIKey(ctx context.Context, keyID string) ([]models.Permission, error)
}
