package funnel

import "github.com/funnelforge/funnelforge/internal/db/models"

type formInput struct {
	Name      string `json:"name" validate:"required,min=1,max=100"`
	Published bool   `json:"published"`
}

type funnelResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Name           string `json:"name"`
	Published      bool   `json:"published"`
}

func newFunnelResponse(funnel *models.Funnel) funnelResponse {
	return funnelResponse{
		ID:             funnel.ID,
		OrganizationID: funnel.OrganizationID,
		Name:           funnel.Name,
		Published:      funnel.Published,
	}
}
