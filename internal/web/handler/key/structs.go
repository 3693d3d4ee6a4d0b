package key

import "github.com/funnelforge/funnelforge/internal/db/models"

type formInput struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type connectInput struct {
	PermissionIDs []string `json:"permissionIds" validate:"dive,required"`
}

type keyResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Active         bool   `json:"active"`
	// Value is only populated in the creation response.
	Value string `json:"value,omitempty"`
}

func newKeyResponse(key *models.Key) keyResponse {
	return keyResponse{
		ID:             key.ID,
		OrganizationID: key.OrganizationID,
		Name:           key.Name,
		Active:         key.Active,
	}
}
