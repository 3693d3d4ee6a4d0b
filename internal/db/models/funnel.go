package models

import "time"

// Funnel is the primary business resource of the platform. Handlers treat it
// as plain CRUD; the interesting part is the authorization gate in front.
type Funnel struct {
	// ID is the unique identifier for the funnel.
	ID string `gorm:"primaryKey;size:24"`
	// OrganizationID is the organization that owns the funnel.
	OrganizationID string `gorm:"size:24;not null;index"`
	// Name is the display name of the funnel.
	Name string `gorm:"size:100;not null"`
	// Published indicates whether the funnel is publicly reachable.
	Published bool `gorm:"default:false"`
	// Organization is the owning organization (loaded via foreign key).
	Organization Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the funnel was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the funnel was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Funnel model.
func (Funnel) TableName() string {
	return "funnels"
}
