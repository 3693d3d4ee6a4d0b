package models

import "time"

// Role is an organization-scoped collection of permission grants assigned
// to members. A self-managed role is created by the platform itself (the
// default ADMIN role of a new organization) and automatically receives every
// unrestricted permission registered for the tenant.
type Role struct {
	// ID is the unique identifier for the role.
	ID string `gorm:"primaryKey;size:24"`
	// OrganizationID is the organization that owns the role.
	OrganizationID string `gorm:"size:24;not null;index"`
	// Name is the display name of the role.
	Name string `gorm:"size:100;not null"`
	// Description provides a human-readable explanation of the role's purpose.
	Description string `gorm:"size:255"`
	// SelfManaged marks platform-created roles that track the unrestricted
	// permission catalog automatically.
	SelfManaged bool `gorm:"default:false"`
	// Organization is the owning organization (loaded via foreign key).
	Organization Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the role was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the role was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Role model.
func (Role) TableName() string {
	return "roles"
}

// RolePermission represents the many-to-many relationship between roles and
// permissions. When a role or permission is deleted, the link rows are
// removed (CASCADE).
type RolePermission struct {
	// RoleID is the ID of the role in this mapping.
	RoleID string `gorm:"primaryKey;size:24;column:role_id"`
	// PermissionID is the ID of the permission in this mapping.
	PermissionID string `gorm:"primaryKey;size:24;column:permission_id"`
	// Role is the associated role (loaded via foreign key).
	Role Role `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
	// Permission is the associated permission (loaded via foreign key).
	Permission Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the database table name for the RolePermission model.
func (RolePermission) TableName() string {
	return "role_permissions"
}
