package models

import "time"

// Organization is a tenant-scoped grouping of users with its own roles,
// API keys and business resources. Users join an organization through a
// Member record.
type Organization struct {
	// ID is the unique identifier for the organization.
	ID string `gorm:"primaryKey;size:24"`
	// TenantID scopes the organization to a tenant.
	TenantID string `gorm:"size:24;not null;index"`
	// Name is the display name of the organization.
	Name string `gorm:"size:100;not null"`
	// Tenant is the owning tenant (loaded via foreign key).
	Tenant Tenant `gorm:"foreignKey:TenantID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the organization was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the organization was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Organization model.
func (Organization) TableName() string {
	return "organizations"
}
