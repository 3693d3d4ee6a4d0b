// Package cache provides the shared key-value cache used across processes.
//
// Every key is namespaced as "{namespace}:cache:{origin}:{key}" where origin
// identifies the subsystem that owns the entry. The layout is shared with
// other services on the same redis instance and must not change.
package cache

import (
	"context"
	"time"
)

// Origins of cache entries. An origin groups the keys of one subsystem so
// they can be deleted together by pattern.
const (
	// OriginAuthGuard holds entries owned by the authorization guard:
	// "entityPermissions:{type}:{entityId}", "cachedPermission:{key}" and
	// "user:{userId}".
	OriginAuthGuard = "authGuard"
	// OriginMembers holds membership relations: "relations:{userId}".
	OriginMembers = "members"
	// OriginRoles holds cached role records.
	OriginRoles = "roles"
	// OriginOrganizations holds cached organization records.
	OriginOrganizations = "organizations"
	// OriginKeys holds cached API key records.
	OriginKeys = "keys"
)

// Store is the capability the authorization core requires from a cache.
// Implementations must be safe for concurrent use; callers perform no
// client-side locking and accept last-writer-wins on concurrent fills.
type Store interface {
	// Get returns the raw payload stored under (origin, key). The second
	// return value reports whether the key existed; an explicitly cached
	// empty payload is a hit.
	Get(ctx context.Context, origin, key string) ([]byte, bool, error)

	// Set stores payload under (origin, key) with the given TTL.
	// A zero TTL falls back to the store's default TTL.
	Set(ctx context.Context, origin, key string, payload []byte, ttl time.Duration) error

	// Delete removes the entry under (origin, key). Deleting a missing key
	// is not an error.
	Delete(ctx context.Context, origin, key string) error

	// DeleteByPattern removes every entry of the origin whose key matches
	// the glob pattern, e.g. "entityPermissions:user:*".
	DeleteByPattern(ctx context.Context, origin, pattern string) error
}
