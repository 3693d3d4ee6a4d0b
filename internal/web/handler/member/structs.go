package member

import "github.com/funnelforge/funnelforge/internal/db/models"

type createInput struct {
	Email   string   `json:"email"   validate:"required,email"`
	RoleIDs []string `json:"roleIds" validate:"dive,required"`
}

type updateInput struct {
	Status  string   `json:"status"  validate:"omitempty,oneof=ACTIVE PENDING DISABLED"`
	RoleIDs []string `json:"roleIds" validate:"omitempty,dive,required"`
}

type memberResponse struct {
	ID             string   `json:"id"`
	OrganizationID string   `json:"organizationId"`
	UserID         string   `json:"userId,omitempty"`
	InviteEmail    string   `json:"inviteEmail,omitempty"`
	Owner          bool     `json:"owner"`
	Status         string   `json:"status"`
	RoleIDs        []string `json:"roleIds"`
}

func newMemberResponse(member *models.Member, roleIDs []string) memberResponse {
	if roleIDs == nil {
		roleIDs = []string{}
	}

	return memberResponse{
		ID:             member.ID,
		OrganizationID: member.OrganizationID,
		UserID:         member.UserID,
		InviteEmail:    member.InviteEmail,
		Owner:          member.Owner,
		Status:         string(member.Status),
		RoleIDs:        roleIDs,
	}
}
