package authz

import (
	"time"

	"github.com/funnelforge/funnelforge/internal/cache"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/events"
)

// permissionSetTTL is the fixed lifetime of a cached effective permission
// set. The value is shared with other processes reading the same cache.
const permissionSetTTL = 24 * time.Hour

// Guard bundles the credential resolver, the permission catalog, the
// permission index and the authorization decision over shared dependencies.
type Guard struct {
	store Store
	cache cache.Store
	bus   *events.Bus
	cfg   *config.Config
}

// New creates a guard over the given store, cache and event bus.
func New(store Store, cacheStore cache.Store, bus *events.Bus, cfg *config.Config) *Guard {
	return &Guard{
		store: store,
		cache: cacheStore,
		bus:   bus,
		cfg:   cfg,
	}
}

// negativeTTL is the lifetime of cached not-found lookups, falling back to
// the cache default when unconfigured.
func (g *Guard) negativeTTL() time.Duration {
	if g.cfg.Cache.NegativeTTL > 0 {
		return g.cfg.Cache.NegativeTTL
	}

	return 0
}
