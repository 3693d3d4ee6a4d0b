package events

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/funnelforge/funnelforge/internal/cache"
)

// Invalidator is the cache coherency subscriber. It listens for mutation
// events and deletes the cache entries derived from the mutated graph.
// Deletes are best effort: a failed delete is logged and the entry ages out
// through its TTL instead.
type Invalidator struct {
	cache cache.Store
}

// NewInvalidator creates the subscriber and registers it on the bus.
func NewInvalidator(bus *Bus, store cache.Store) *Invalidator {
	inv := &Invalidator{cache: store}
	bus.Subscribe(inv.handle)

	return inv
}

func (inv *Invalidator) handle(ctx context.Context, evt Event) {
	switch e := evt.(type) {
	case PermissionGrantsChanged:
		inv.onPermissionGrantsChanged(ctx, e)
	case MemberGraphChanged:
		inv.onMemberGraphChanged(ctx, e)
	case RolePermissionsChanged:
		inv.onRolePermissionsChanged(ctx, e)
	case KeyGrantsChanged:
		inv.onKeyGrantsChanged(ctx, e)
	}
}

// onPermissionGrantsChanged drops every user-type permission set and every
// cached membership relation. An unknown number of users may hold the new
// grant transitively, so the whole derived projection is rebuilt lazily.
func (inv *Invalidator) onPermissionGrantsChanged(ctx context.Context, evt PermissionGrantsChanged) {
	if !evt.Unrestricted {
		return
	}

	inv.deleteByPattern(ctx, cache.OriginMembers, "relations:*")
	inv.deleteByPattern(ctx, cache.OriginAuthGuard, "entityPermissions:user:*")
}

func (inv *Invalidator) onMemberGraphChanged(ctx context.Context, evt MemberGraphChanged) {
	for _, userID := range evt.UserIDs {
		inv.delete(ctx, cache.OriginAuthGuard, "entityPermissions:user:"+userID)
		inv.delete(ctx, cache.OriginMembers, "relations:"+userID)
	}
}

// onRolePermissionsChanged drops all user permission sets: the holders of
// the role are not enumerated at publish time.
func (inv *Invalidator) onRolePermissionsChanged(ctx context.Context, evt RolePermissionsChanged) {
	inv.delete(ctx, cache.OriginRoles, evt.RoleID)
	inv.deleteByPattern(ctx, cache.OriginMembers, "relations:*")
	inv.deleteByPattern(ctx, cache.OriginAuthGuard, "entityPermissions:user:*")
}

func (inv *Invalidator) onKeyGrantsChanged(ctx context.Context, evt KeyGrantsChanged) {
	inv.delete(ctx, cache.OriginKeys, evt.KeyID)
	inv.delete(ctx, cache.OriginAuthGuard, "entityPermissions:api:"+evt.KeyID)
}

func (inv *Invalidator) delete(ctx context.Context, origin, key string) {
	if err := inv.cache.Delete(ctx, origin, key); err != nil {
		log.Error().Err(err).Str("origin", origin).Str("key", key).Msg("cache invalidation failed")
	}
}

func (inv *Invalidator) deleteByPattern(ctx context.Context, origin, pattern string) {
	if err := inv.cache.DeleteByPattern(ctx, origin, pattern); err != nil {
		log.Error().Err(err).Str("origin", origin).Str("pattern", pattern).Msg("cache invalidation failed")
	}
}
