package models

import "time"

// MemberStatus represents the lifecycle state of an organization membership.
type MemberStatus string

const (
	// MemberStatusActive indicates the membership is active.
	MemberStatusActive MemberStatus = "ACTIVE"
	// MemberStatusPending indicates the invite was sent but not yet accepted.
	MemberStatusPending MemberStatus = "PENDING"
	// MemberStatusDisabled indicates the membership was suspended.
	MemberStatusDisabled MemberStatus = "DISABLED"
)

// Member binds a user to an organization. A member may hold zero or more
// roles; the Owner flag marks the organization owner, who bypasses all
// permission checks within that organization.
type Member struct {
	// ID is the unique identifier for the membership.
	ID string `gorm:"primaryKey;size:24"`
	// OrganizationID is the organization the membership belongs to.
	OrganizationID string `gorm:"size:24;not null;index"`
	// UserID is the joined user. Empty while the invite is pending for an
	// email address with no account yet.
	UserID string `gorm:"size:24;index"`
	// InviteEmail is the address the invitation was sent to.
	InviteEmail string `gorm:"size:255"`
	// Owner marks the organization owner. Owners have full access within
	// their organization regardless of role grants.
	Owner bool
	// Status is the membership lifecycle state.
	Status MemberStatus `gorm:"type:varchar(20);not null;default:'PENDING'"`
	// Organization is the associated organization (loaded via foreign key).
	Organization Organization `gorm:"foreignKey:OrganizationID;constraint:OnDelete:CASCADE"`
	// CreatedAt is the timestamp when the membership was created (managed by GORM).
	CreatedAt time.Time
	// UpdatedAt is the timestamp when the membership was last updated (managed by GORM).
	UpdatedAt time.Time
}

// TableName specifies the database table name for the Member model.
func (Member) TableName() string {
	return "members"
}

// MemberRole represents the many-to-many relationship between members and roles.
// When a member or role is deleted, the link rows are removed (CASCADE).
type MemberRole struct {
	// MemberID is the ID of the member in this mapping.
	MemberID string `gorm:"primaryKey;size:24;column:member_id"`
	// RoleID is the ID of the role in this mapping.
	RoleID string `gorm:"primaryKey;size:24;column:role_id"`
	// Member is the associated member (loaded via foreign key).
	Member Member `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE"`
	// Role is the associated role (loaded via foreign key).
	Role Role `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the database table name for the MemberRole model.
func (MemberRole) TableName() string {
	return "member_roles"
}
