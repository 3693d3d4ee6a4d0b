package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelforge/funnelforge/internal/cache"
)

func setupInvalidator(t *testing.T) (*Bus, cache.Store) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")

	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := cache.NewRedisStoreWithClient(client, "testsrv", time.Hour)

	t.Cleanup(func() { _ = store.Close() })

	bus := NewBus()
	NewInvalidator(bus, store)

	return bus, store
}

func fill(t *testing.T, store cache.Store, origin, key string) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), origin, key, []byte("x"), 0))
}

func hit(t *testing.T, store cache.Store, origin, key string) bool {
	t.Helper()

	_, ok, err := store.Get(context.Background(), origin, key)
	require.NoError(t, err)

	return ok
}

func TestBusDispatchOrder(t *testing.T) {
	bus := NewBus()

	var got []string

	bus.Subscribe(func(_ context.Context, _ Event) { got = append(got, "first") })
	bus.Subscribe(func(_ context.Context, _ Event) { got = append(got, "second") })

	bus.Publish(context.Background(), KeyGrantsChanged{KeyID: "key-1"})

	assert.Equal(t, []string{"first", "second"}, got)
}

func TestPermissionGrantsChangedDropsDerivedProjections(t *testing.T) {
	bus, store := setupInvalidator(t)

	fill(t, store, cache.OriginMembers, "relations:user-1")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:api:key-1")
	fill(t, store, cache.OriginAuthGuard, "user:user-1")

	bus.Publish(context.Background(), PermissionGrantsChanged{TenantID: "tenant-1", Unrestricted: true})

	assert.False(t, hit(t, store, cache.OriginMembers, "relations:user-1"))
	assert.False(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1"))
	assert.True(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:api:key-1"),
		"api key sets are not affected by role propagation")
	assert.True(t, hit(t, store, cache.OriginAuthGuard, "user:user-1"),
		"tenant lookups survive grant changes")
}

func TestPermissionGrantsChangedRestrictedIsANoop(t *testing.T) {
	bus, store := setupInvalidator(t)

	fill(t, store, cache.OriginMembers, "relations:user-1")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1")

	bus.Publish(context.Background(), PermissionGrantsChanged{TenantID: "tenant-1", Unrestricted: false})

	assert.True(t, hit(t, store, cache.OriginMembers, "relations:user-1"))
	assert.True(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1"))
}

func TestMemberGraphChangedDropsOnlyNamedUsers(t *testing.T) {
	bus, store := setupInvalidator(t)

	fill(t, store, cache.OriginMembers, "relations:user-1")
	fill(t, store, cache.OriginMembers, "relations:user-2")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-2")

	bus.Publish(context.Background(), MemberGraphChanged{UserIDs: []string{"user-1"}})

	assert.False(t, hit(t, store, cache.OriginMembers, "relations:user-1"))
	assert.False(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1"))
	assert.True(t, hit(t, store, cache.OriginMembers, "relations:user-2"))
	assert.True(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-2"))
}

func TestRolePermissionsChangedDropsAllUserSets(t *testing.T) {
	bus, store := setupInvalidator(t)

	fill(t, store, cache.OriginRoles, "role-1")
	fill(t, store, cache.OriginMembers, "relations:user-1")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:api:key-1")

	bus.Publish(context.Background(), RolePermissionsChanged{RoleID: "role-1"})

	assert.False(t, hit(t, store, cache.OriginRoles, "role-1"))
	assert.False(t, hit(t, store, cache.OriginMembers, "relations:user-1"))
	assert.False(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1"))
	assert.True(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:api:key-1"))
}

func TestKeyGrantsChangedDropsTheKeySet(t *testing.T) {
	bus, store := setupInvalidator(t)

	fill(t, store, cache.OriginKeys, "key-1")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:api:key-1")
	fill(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1")

	bus.Publish(context.Background(), KeyGrantsChanged{KeyID: "key-1"})

	assert.False(t, hit(t, store, cache.OriginKeys, "key-1"))
	assert.False(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:api:key-1"))
	assert.True(t, hit(t, store, cache.OriginAuthGuard, "entityPermissions:user:user-1"))
}
