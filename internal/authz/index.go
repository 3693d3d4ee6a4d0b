package authz

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/funnelforge/funnelforge/internal/cache"
)

// EffectivePermissions returns the principal's effective permission set,
// cache-first. A cached entry is returned verbatim, including an
// explicitly cached empty set. The method never reports an error:
// any failure yields an empty set, which denies everything downstream.
func (g *Guard) EffectivePermissions(ctx context.Context, principal *Principal) []Grant {
	if principal == nil || principal.Auth.Type == AuthTypeSystem {
		return []Grant{}
	}

	cacheKey := "entityPermissions:" + string(principal.Auth.Type) + ":" + principal.Auth.EntityID

	payload, hit, err := g.cache.Get(ctx, cache.OriginAuthGuard, cacheKey)
	if err != nil {
		log.Error().Err(err).Str("origin", "index").Str("entity", principal.Auth.EntityID).
			Msg("failed to read cached permission set")

		return []Grant{}
	}

	if hit {
		var grants []Grant
		if err := json.Unmarshal(payload, &grants); err == nil {
			if grants == nil {
				grants = []Grant{}
			}

			return grants
		}

		log.Warn().Str("origin", "index").Str("entity", principal.Auth.EntityID).
			Msg("discarding corrupt cached permission set")
	}

	grants, err := g.computeGrants(ctx, principal)
	if err != nil {
		log.Error().Err(err).Str("origin", "index").Str("entity", principal.Auth.EntityID).
			Msg("failed to compute permission set")

		return []Grant{}
	}

	payload, err = json.Marshal(grants)
	if err != nil {
		log.Error().Err(err).Str("origin", "index").Msg("failed to encode permission set")

		return grants
	}

	if err := g.cache.Set(ctx, cache.OriginAuthGuard, cacheKey, payload, permissionSetTTL); err != nil {
		log.Warn().Err(err).Str("origin", "index").Str("entity", principal.Auth.EntityID).
			Msg("failed to cache permission set")
	}

	return grants
}

// computeGrants derives the permission set from the persistent graph.
func (g *Guard) computeGrants(ctx context.Context, principal *Principal) ([]Grant, error) {
	grants := []Grant{}

	switch principal.Auth.Type {
	case AuthTypeUser:
		rels, err := g.relations(ctx, principal.Auth.EntityID)
		if err != nil {
			return nil, err
		}

		for _, rel := range rels {
			for _, roleID := range rel.RoleIDs {
				permissions, err := g.store.ListPermissionsByRole(ctx, roleID)
				if err != nil {
					return nil, err
				}

				for _, permission := range permissions {
					grants = append(grants, Grant{
						Value:          permission.Value,
						OrganizationID: rel.OrganizationID,
					})
				}
			}
		}

		direct, err := g.store.ListDirectPermissionsByUser(ctx, principal.Auth.EntityID)
		if err != nil {
			return nil, err
		}

		for _, permission := range direct {
			grants = append(grants, Grant{Value: permission.Value})
		}

		return grants, nil
	case AuthTypeAPI:
		permissions, err := g.store.ListPermissionsByAPIKey(ctx, principal.Auth.EntityID)
		if err != nil {
			return nil, err
		}

		for _, permission := range permissions {
			grants = append(grants, Grant{
				Value:          permission.Value,
				OrganizationID: principal.Auth.OrganizationID,
			})
		}

		return grants, nil
	case AuthTypeSystem:
		return grants, nil
	}

	return nil, errors.Errorf("unknown auth type %q", principal.Auth.Type)
}
