// Package models contains database model definitions.
package models

import "time"

// Tenant is the top-level isolation boundary of the platform.
// A tenant owns organizations, users and the permission catalog; no data
// crosses tenant boundaries.
type Tenant struct {
	// ID is the unique identifier for the tenant.
	ID string `gorm:"primaryKey;size:24"`
	// Name is the display name of the tenant.
	Name string `gorm:"size:100;not null"`
	// Origin is the public host the tenant is served from. Sign-up and login
	// requests carry it to select the tenant.
	Origin string `gorm:"unique;size:255;not null"`
	// CreatedAt is the timestamp when the tenant was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the tenant was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Tenant model.
func (Tenant) TableName() string {
	return "tenants"
}
