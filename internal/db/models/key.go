package models

import "time"

// Key is an organization-scoped API key. Keys authenticate machine callers;
// every grant a key holds is scoped to the key's owning organization.
type Key struct {
	// ID is the unique identifier for the key.
	ID string `gorm:"primaryKey;size:24"`
	// OrganizationID is the organization that owns the key.
	OrganizationID string `gorm:"size:24;not null;index"`
	// Name is the display name of the key.
	Name string `gorm:"size:100;not null"`
	// Value is the opaque secret presented in the Authorization header.
	Value string `gorm:"unique;size:64;not null"`
	// Active indicates whether the key may authenticate.
	Active bool `gorm:"default:true"`
	// Organization is the owning organization (loaded via foreign key).
	Organization Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the key was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the key was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Key model.
func (Key) TableName() string {
	return "keys"
}

// KeyPermission represents the many-to-many relationship between API keys
// and permissions. When a key or permission is deleted, the link rows are
// removed (CASCADE).
type KeyPermission struct {
	// KeyID is the ID of the key in this grant.
	KeyID string `gorm:"primaryKey;size:24;column:key_id"`
	// PermissionID is the ID of the granted permission.
	PermissionID string `gorm:"primaryKey;size:24;column:permission_id"`
	// Key is the associated key (loaded via foreign key).
	Key Key `gorm:"foreignKey:KeyID;constraint:OnDelete:CASCADE"`
	// Permission is the associated permission (loaded via foreign key).
	Permission Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the database table name for the KeyPermission model.
func (KeyPermission) TableName() string {
	return "key_permissions"
}
