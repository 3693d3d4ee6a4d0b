package models

import "time"

// Permission is a tenant-scoped permission key in "resource:action" format.
// Permissions are registered lazily: the first time an endpoint declares a
// key that does not exist for the caller's tenant, the key is created.
//
// Restrict is tri-state on purpose. True means only tenant administrators
// may grant the permission to roles. False and NULL both mean unrestricted:
// any organization's self-managed role holds it, and newly registered
// unrestricted permissions are propagated to every self-managed role.
type Permission struct {
	// ID is the unique identifier for the permission.
	ID string `gorm:"primaryKey;size:24"`
	// TenantID scopes the permission to a tenant.
	TenantID string `gorm:"size:24;not null;uniqueIndex:idx_tenant_value"`
	// Name is the display name of the permission.
	Name string `gorm:"size:100;not null"`
	// Value is the permission key checked at authorization time,
	// unique per tenant (e.g. "funnels:create").
	Value string `gorm:"size:100;not null;uniqueIndex:idx_tenant_value"`
	// Restrict limits granting to tenant administrators when true.
	Restrict *bool
	// CreatedAt is the timestamp when the permission was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the permission was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Permission model.
func (Permission) TableName() string {
	return "permissions"
}

// Restricted reports whether the permission may only be granted by tenant
// administrators. NULL counts as unrestricted.
func (p *Permission) Restricted() bool {
	return p.Restrict != nil && *p.Restrict
}

// UserPermission represents a direct user-level permission grant. Direct
// grants apply tenant-wide for the user, independent of any organization.
type UserPermission struct {
	// UserID is the ID of the user in this grant.
	UserID string `gorm:"primaryKey;size:24;column:user_id"`
	// PermissionID is the ID of the granted permission.
	PermissionID string `gorm:"primaryKey;size:24;column:permission_id"`
	// User is the associated user (loaded via foreign key).
	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	// Permission is the associated permission (loaded via foreign key).
	Permission Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the database table name for the UserPermission model.
func (UserPermission) TableName() string {
	return "user_permissions"
}
