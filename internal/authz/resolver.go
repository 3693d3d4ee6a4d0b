package authz

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/funnelforge/funnelforge/internal/auth"
	"github.com/funnelforge/funnelforge/internal/cache"
)

// negativeEntry is the payload cached for a not-found user lookup, so
// repeated probes with a forged token never hit the persistent store.
var negativeEntry = []byte("null")

// tenantRef is the cached shape of a user's tenant scope.
type tenantRef struct {
	TenantID string `json:"tenantId"`
}

// Resolve turns an Authorization header into a Principal, honoring the
// route's guard settings. Every rejection, whatever its internal cause,
// is ErrUnauthenticated. A skipped route yields a nil principal and no
// error.
func (g *Guard) Resolve(ctx context.Context, header, organizationID string, route GuardConfig) (*Principal, error) {
	if route.Skip {
		return nil, nil
	}

	if header == "" {
		return nil, ErrUnauthenticated
	}

	if route.OnlySystemKey {
		if header == g.cfg.Auth.SystemKey {
			return &Principal{Auth: Auth{Type: AuthTypeSystem}}, nil
		}

		return nil, ErrUnauthenticated
	}

	if token, ok := bearerToken(header); ok {
		return g.resolveUser(ctx, token)
	}

	if route.BlockAPIKey {
		return nil, ErrUnauthenticated
	}

	return g.resolveAPIKey(ctx, header, organizationID)
}

// bearerToken extracts the token from a bearer-style Authorization header.
func bearerToken(header string) (string, bool) {
	if !strings.Contains(strings.ToLower(header), "bearer") {
		return "", false
	}

	parts := strings.Fields(header)

	return parts[len(parts)-1], true
}

func (g *Guard) resolveUser(ctx context.Context, token string) (*Principal, error) {
	userID, err := auth.ParseToken(g.cfg.Auth.SystemKey, token)
	if err != nil {
		log.Debug().Err(err).Str("origin", "resolver").Msg("rejected bearer token")

		return nil, ErrUnauthenticated
	}

	tenantID, found, err := g.lookupUserTenant(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("origin", "resolver").Str("user", userID).
			Msg("user tenant lookup failed")

		return nil, ErrUnauthenticated
	}

	if !found {
		return nil, ErrUnauthenticated
	}

	return &Principal{
		TenantID: tenantID,
		Auth:     Auth{Type: AuthTypeUser, EntityID: userID},
	}, nil
}

// lookupUserTenant resolves a user's tenant scope cache-first. Not-found
// results are cached too, under a shorter lifetime.
func (g *Guard) lookupUserTenant(ctx context.Context, userID string) (string, bool, error) {
	cacheKey := "user:" + userID

	payload, hit, err := g.cache.Get(ctx, cache.OriginAuthGuard, cacheKey)
	if err != nil {
		return "", false, err
	}

	if hit {
		if bytes.Equal(payload, negativeEntry) {
			return "", false, nil
		}

		var ref tenantRef
		if err := json.Unmarshal(payload, &ref); err == nil && ref.TenantID != "" {
			return ref.TenantID, true, nil
		}
		// corrupt payload, fall through to the store
	}

	user, err := g.store.FindUserTenantByID(ctx, userID)
	if err != nil {
		return "", false, err
	}

	if user == nil {
		if err := g.cache.Set(ctx, cache.OriginAuthGuard, cacheKey, negativeEntry, g.negativeTTL()); err != nil {
			log.Warn().Err(err).Str("origin", "resolver").Msg("failed to cache negative user lookup")
		}

		return "", false, nil
	}

	payload, err = json.Marshal(tenantRef{TenantID: user.TenantID})
	if err != nil {
		return "", false, err
	}

	if err := g.cache.Set(ctx, cache.OriginAuthGuard, cacheKey, payload, 0); err != nil {
		log.Warn().Err(err).Str("origin", "resolver").Msg("failed to cache user lookup")
	}

	return user.TenantID, true, nil
}

func (g *Guard) resolveAPIKey(ctx context.Context, value, organizationID string) (*Principal, error) {
	key, err := g.store.FindAPIKeyByValueAndOrg(ctx, value, organizationID)
	if err != nil {
		log.Error().Err(err).Str("origin", "resolver").Msg("api key lookup failed")

		return nil, ErrUnauthenticated
	}

	if key == nil {
		return nil, ErrUnauthenticated
	}

	return &Principal{
		TenantID: key.Organization.TenantID,
		Auth: Auth{
			Type:           AuthTypeAPI,
			EntityID:       key.ID,
			OrganizationID: key.OrganizationID,
		},
	}, nil
}
