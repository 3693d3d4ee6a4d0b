package authz

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Authorize decides whether the principal may perform an operation guarded
// by the given permission within the requested organization. It is the only
// boundary that produces a verdict; every internal failure beneath it is
// logged and collapses to deny.
//
// A nil permission means the route requires authentication only. System
// principals are always allowed, and an organization owner is allowed any
// operation requested within their own organization.
func (g *Guard) Authorize(ctx context.Context, principal *Principal, permission *PermissionConfig, organizationID string) bool {
	if permission == nil {
		return true
	}

	if principal == nil {
		return false
	}

	if principal.Auth.Type == AuthTypeSystem {
		return true
	}

	// register the permission before any membership lookup so a route
	// first referenced by an owner still lands in the catalog
	if err := g.Ensure(ctx, principal.TenantID, *permission); err != nil {
		log.Error().Err(err).Str("origin", "decision").Str("permission", permission.Key).
			Msg("permission registration failed")

		return false
	}

	if principal.Auth.Type == AuthTypeUser && organizationID != "" &&
		g.isOwner(ctx, principal.Auth.EntityID, organizationID) {
		return true
	}

	for _, grant := range g.EffectivePermissions(ctx, principal) {
		if grant.Value == permission.Key &&
			(grant.OrganizationID == "" || grant.OrganizationID == organizationID) {
			return true
		}
	}

	return false
}

// isOwner reports whether the user owns the organization. Lookup failures
// deny the bypass, never the whole request on their own.
func (g *Guard) isOwner(ctx context.Context, userID, organizationID string) bool {
	rels, err := g.relations(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("origin", "decision").Str("user", userID).
			Msg("owner lookup failed")

		return false
	}

	for _, rel := range rels {
		if rel.OrganizationID == organizationID && rel.Owner {
			return true
		}
	}

	return false
}
