package role

import "github.com/funnelforge/funnelforge/internal/db/models"

type formInput struct {
	Name        string `json:"name"        validate:"required,min=1,max=100"`
	Description string `json:"description" validate:"max=255"`
}

type connectInput struct {
	PermissionIDs []string `json:"permissionIds" validate:"dive,required"`
}

type roleResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	SelfManaged    bool   `json:"selfManaged"`
}

func newRoleResponse(role *models.Role) roleResponse {
	return roleResponse{
		ID:             role.ID,
		OrganizationID: role.OrganizationID,
		Name:           role.Name,
		Description:    role.Description,
		SelfManaged:    role.SelfManaged,
	}
}
