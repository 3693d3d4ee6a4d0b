package organization

import "github.com/funnelforge/funnelforge/internal/db/models"

type formInput struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

type organizationResponse struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name"`
}

func newOrganizationResponse(organization *models.Organization) organizationResponse {
	return organizationResponse{
		ID:       organization.ID,
		TenantID: organization.TenantID,
		Name:     organization.Name,
	}
}
