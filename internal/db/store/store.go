// Package store implements the persistent point lookups consumed by the
// authorization core on top of gorm. It owns no caching; every result is
// re-derivable source of truth.
package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/funnelforge/funnelforge/internal/db/models"
)

// Store wraps a gorm handle. All read methods treat "no rows" as a nil
// result, not an error, so callers can fail closed without error plumbing.
type Store struct {
	db *gorm.DB
}

// New creates a store over the given database handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a transaction-bound store. The permission
// catalog uses it to make create-or-detect registration atomic.
func (s *Store) Transaction(ctx context.Context, fn func(txn *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// RegisterPermission creates a permission and, when it is unrestricted,
// grants it to every self-managed role of the tenant, all in one
// transaction. A concurrent registration of the same (tenant, value) pair
// is tolerated: the duplicate insert is detected and reported as created
// being false, never as an error.
func (s *Store) RegisterPermission(ctx context.Context, permission *models.Permission) (bool, error) {
	err := s.Transaction(ctx, func(txn *Store) error {
		if err := txn.CreatePermission(ctx, permission); err != nil {
			return err
		}

		if permission.Restricted() {
			return nil
		}

		roles, err := txn.ListSelfManagedRolesForTenant(ctx, permission.TenantID)
		if err != nil {
			return err
		}

		roleIDs := make([]string, 0, len(roles))
		for _, role := range roles {
			roleIDs = append(roleIDs, role.ID)
		}

		return txn.BulkGrantPermissionToRoles(ctx, permission.ID, roleIDs)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return true, nil
}

// FindUserTenantByID returns the user with only the tenant scope selected,
// or nil if the user does not exist.
func (s *Store) FindUserTenantByID(ctx context.Context, userID string) (*models.User, error) {
	var user models.User

	err := s.db.WithContext(ctx).
		Select("id", "tenant_id", "active").
		Where("id = ?", userID).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

// FindAPIKeyByValueAndOrg returns the active key matching the opaque value,
// optionally narrowed to an organization, with its organization loaded.
// Returns nil if no such key exists.
func (s *Store) FindAPIKeyByValueAndOrg(ctx context.Context, value, organizationID string) (*models.Key, error) {
	var key models.Key

	query := s.db.WithContext(ctx).
		Preload("Organization").
		Where("value = ? AND active = ?", value, true)

	if organizationID != "" {
		query = query.Where("organization_id = ?", organizationID)
	}

	err := query.First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find api key: %w", err)
	}

	return &key, nil
}

// FindPermissionByTenantAndValue returns the permission registered for
// (tenant, value), or nil if the key was never referenced.
func (s *Store) FindPermissionByTenantAndValue(ctx context.Context, tenantID, value string) (*models.Permission, error) {
	var permission models.Permission

	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND value = ?", tenantID, value).
		First(&permission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find permission: %w", err)
	}

	return &permission, nil
}

// CreatePermission inserts a permission record. A duplicate on the unique
// (tenant, value) index surfaces as gorm.ErrDuplicatedKey for the caller to
// tolerate.
func (s *Store) CreatePermission(ctx context.Context, permission *models.Permission) error {
	if err := s.db.WithContext(ctx).Create(permission).Error; err != nil {
		return fmt.Errorf("failed to create permission: %w", err)
	}

	return nil
}

// ListSelfManagedRolesForTenant returns every self-managed role of any
// organization belonging to the tenant.
func (s *Store) ListSelfManagedRolesForTenant(ctx context.Context, tenantID string) ([]models.Role, error) {
	var roles []models.Role

	err := s.db.WithContext(ctx).
		Joins("JOIN organizations ON organizations.id = roles.organization_id").
		Where("organizations.tenant_id = ? AND roles.self_managed = ?", tenantID, true).
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list self-managed roles: %w", err)
	}

	return roles, nil
}

// BulkGrantPermissionToRoles links the permission to every given role in a
// single duplicate-safe insert.
func (s *Store) BulkGrantPermissionToRoles(ctx context.Context, permissionID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}

	grants := make([]models.RolePermission, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		grants = append(grants, models.RolePermission{
			RoleID:       roleID,
			PermissionID: permissionID,
		})
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&grants).Error
	if err != nil {
		return fmt.Errorf("failed to grant permission to roles: %w", err)
	}

	return nil
}

// ListMembershipsByUser returns every membership of the user across all
// organizations.
func (s *Store) ListMembershipsByUser(ctx context.Context, userID string) ([]models.Member, error) {
	var memberships []models.Member

	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&memberships).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}

	return memberships, nil
}

// ListRolesByMembership returns the roles assigned to a membership.
func (s *Store) ListRolesByMembership(ctx context.Context, memberID string) ([]models.Role, error) {
	var roles []models.Role

	err := s.db.WithContext(ctx).
		Joins("JOIN member_roles ON member_roles.role_id = roles.id").
		Where("member_roles.member_id = ?", memberID).
		Find(&roles).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list membership roles: %w", err)
	}

	return roles, nil
}

// ListPermissionsByRole returns the permissions granted to a role.
func (s *Store) ListPermissionsByRole(ctx context.Context, roleID string) ([]models.Permission, error) {
	var permissions []models.Permission

	err := s.db.WithContext(ctx).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Find(&permissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}

	return permissions, nil
}

// ListDirectPermissionsByUser returns the user-level permission grants,
// which apply tenant-wide for the user.
func (s *Store) ListDirectPermissionsByUser(ctx context.Context, userID string) ([]models.Permission, error) {
	var permissions []models.Permission

	err := s.db.WithContext(ctx).
		Joins("JOIN user_permissions ON user_permissions.permission_id = permissions.id").
		Where("user_permissions.user_id = ?", userID).
		Find(&permissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list direct user permissions: %w", err)
	}

	return permissions, nil
}

// ListPermissionsByAPIKey returns the permission grants of an API key.
func (s *Store) ListPermissionsByAPIKey(ctx context.Context, keyID string) ([]models.Permission, error) {
	var permissions []models.Permission

	err := s.db.WithContext(ctx).
		Joins("JOIN key_permissions ON key_permissions.permission_id = permissions.id").
		Where("key_permissions.key_id = ?", keyID).
		Find(&permissions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list api key permissions: %w", err)
	}

	return permissions, nil
}
