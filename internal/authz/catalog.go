package authz

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/funnelforge/funnelforge/internal/cache"
	"github.com/funnelforge/funnelforge/internal/db/models"
	"github.com/funnelforge/funnelforge/internal/events"
)

// Ensure guarantees the permission key is registered for the tenant,
// creating it on first reference. Newly created unrestricted permissions
// are granted to every self-managed role of the tenant and the change is
// announced on the event bus so dependent caches get dropped.
//
// Ensure is idempotent and safe under concurrent first references: the
// losing side of the creation race treats the duplicate as success.
func (g *Guard) Ensure(ctx context.Context, tenantID string, permission PermissionConfig) error {
	cacheKey := "cachedPermission:" + permission.Key

	_, hit, err := g.cache.Get(ctx, cache.OriginAuthGuard, cacheKey)
	if err != nil {
		return errors.Wrap(err, "failed to read cached permission")
	}

	if hit {
		return nil
	}

	record, err := g.store.FindPermissionByTenantAndValue(ctx, tenantID, permission.Key)
	if err != nil {
		return errors.Wrap(err, "failed to look up permission")
	}

	if record == nil {
		record, err = g.register(ctx, tenantID, permission)
		if err != nil {
			return err
		}
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "failed to encode permission")
	}

	if err := g.cache.Set(ctx, cache.OriginAuthGuard, cacheKey, payload, 0); err != nil {
		log.Warn().Err(err).Str("origin", "catalog").Str("permission", permission.Key).
			Msg("failed to cache permission")
	}

	return nil
}

func (g *Guard) register(ctx context.Context, tenantID string, permission PermissionConfig) (*models.Permission, error) {
	restrict := permission.Restricted()

	record := &models.Permission{
		ID:       models.NewRecordID(),
		TenantID: tenantID,
		Name:     permission.Key,
		Value:    permission.Key,
		Restrict: &restrict,
	}

	created, err := g.store.RegisterPermission(ctx, record)
	if err != nil {
		return nil, errors.Wrap(err, "failed to register permission")
	}

	if !created {
		// lost the creation race, load the winner's record
		record, err = g.store.FindPermissionByTenantAndValue(ctx, tenantID, permission.Key)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load permission after lost race")
		}

		if record == nil {
			return nil, errors.Errorf("permission %q vanished after duplicate creation", permission.Key)
		}

		return record, nil
	}

	log.Info().Str("origin", "catalog").Str("tenant", tenantID).
		Str("permission", permission.Key).Bool("restrict", restrict).
		Msg("registered permission on first reference")

	if !restrict {
		g.bus.Publish(ctx, events.PermissionGrantsChanged{
			TenantID:     tenantID,
			Unrestricted: true,
		})
	}

	return record, nil
}
