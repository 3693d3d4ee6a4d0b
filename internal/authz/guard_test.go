package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/funnelforge/funnelforge/internal/auth"
	"github.com/funnelforge/funnelforge/internal/cache"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/db/models"
	"github.com/funnelforge/funnelforge/internal/events"
)

const testSystemKey = "test-system-key"

// fakeStore is an in-memory Store that counts calls per method, so tests
// can assert a cache hit never reaches the persistent layer.
type fakeStore struct {
	users            map[string]*models.User
	keysByValue      map[string]*models.Key
	permissions      map[string]*models.Permission
	selfManagedRoles []models.Role
	memberships      map[string][]models.Member
	memberRoles      map[string][]models.Role
	rolePermissions  map[string][]models.Permission
	userPermissions  map[string][]models.Permission
	keyPermissions   map[string][]models.Permission

	// err, when set, is returned by every method.
	err error
	// raceWinner simulates a concurrent registration: the first permission
	// lookup misses, RegisterPermission then loses the race to this record.
	raceWinner *models.Permission

	calls map[string]int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:           make(map[string]*models.User),
		keysByValue:     make(map[string]*models.Key),
		permissions:     make(map[string]*models.Permission),
		memberships:     make(map[string][]models.Member),
		memberRoles:     make(map[string][]models.Role),
		rolePermissions: make(map[string][]models.Permission),
		userPermissions: make(map[string][]models.Permission),
		keyPermissions:  make(map[string][]models.Permission),
		calls:           make(map[string]int),
	}
}

func permKey(tenantID, value string) string {
	return tenantID + "/" + value
}

func (f *fakeStore) FindUserTenantByID(_ context.Context, userID string) (*models.User, error) {
	f.calls["FindUserTenantByID"]++
	if f.err != nil {
		return nil, f.err
	}

	return f.users[userID], nil
}

func (f *fakeStore) FindAPIKeyByValueAndOrg(_ context.Context, value, organizationID string) (*models.Key, error) {
	f.calls["FindAPIKeyByValueAndOrg"]++
	if f.err != nil {
		return nil, f.err
	}

	key, ok := f.keysByValue[value]
	if !ok || !key.Active {
		return nil, nil
	}

	if organizationID != "" && key.OrganizationID != organizationID {
		return nil, nil
	}

	return key, nil
}

func (f *fakeStore) FindPermissionByTenantAndValue(_ context.Context, tenantID, value string) (*models.Permission, error) {
	f.calls["FindPermissionByTenantAndValue"]++
	if f.err != nil {
		return nil, f.err
	}

	if f.raceWinner != nil && f.calls["FindPermissionByTenantAndValue"] == 1 {
		return nil, nil
	}

	return f.permissions[permKey(tenantID, value)], nil
}

func (f *fakeStore) RegisterPermission(_ context.Context, permission *models.Permission) (bool, error) {
	f.calls["RegisterPermission"]++
	if f.err != nil {
		return false, f.err
	}

	id := permKey(permission.TenantID, permission.Value)

	if f.raceWinner != nil {
		f.permissions[id] = f.raceWinner

		return false, nil
	}

	if _, exists := f.permissions[id]; exists {
		return false, nil
	}

	f.permissions[id] = permission

	if !permission.Restricted() {
		for _, role := range f.selfManagedRoles {
			f.rolePermissions[role.ID] = append(f.rolePermissions[role.ID], *permission)
		}
	}

	return true, nil
}

func (f *fakeStore) ListMembershipsByUser(_ context.Context, userID string) ([]models.Member, error) {
	f.calls["ListMembershipsByUser"]++
	if f.err != nil {
		return nil, f.err
	}

	return f.memberships[userID], nil
}

func (f *fakeStore) ListRolesByMembership(_ context.Context, memberID string) ([]models.Role, error) {
	f.calls["ListRolesByMembership"]++
	if f.err != nil {
		return nil, f.err
	}

	return f.memberRoles[memberID], nil
}

func (f *fakeStore) ListPermissionsByRole(_ context.Context, roleID string) ([]models.Permission, error) {
	f.calls["ListPermissionsByRole"]++
	if f.err != nil {
		return nil, f.err
	}

	return f.rolePermissions[roleID], nil
}

func (f *fakeStore) ListDirectPermissionsByUser(_ context.Context, userID string) ([]models.Permission, error) {
	f.calls["ListDirectPermissionsByUser"]++
	if f.err != nil {
		return nil, f.err
	}

	return f.userPermissions[userID], nil
}

func (f *fakeStore) ListPermissionsByAPIKey(_ context.Context, keyID string) ([]models.Permission, error) {
	f.calls["ListPermissionsByAPIKey"]++
	if f.err != nil {
		return nil, f.err
	}

	return f.keyPermissions[keyID], nil
}

// setupGuard wires a guard over a fake store, a miniredis-backed cache and
// a fresh event bus.
func setupGuard(t *testing.T) (*Guard, *fakeStore, *events.Bus) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to start miniredis")

	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cacheStore := cache.NewRedisStoreWithClient(client, "testsrv", time.Hour)

	t.Cleanup(func() { _ = cacheStore.Close() })

	store := newFakeStore()
	bus := events.NewBus()

	cfg := &config.Config{}
	cfg.Auth.SystemKey = testSystemKey
	cfg.Auth.TokenExpiry = time.Hour
	cfg.Cache.Namespace = "testsrv"
	cfg.Cache.DefaultTTL = time.Hour
	cfg.Cache.NegativeTTL = time.Minute

	return New(store, cacheStore, bus, cfg), store, bus
}

func restrictPtr(v bool) *bool {
	return &v
}

func TestResolveSkippedRoute(t *testing.T) {
	guard, _, _ := setupGuard(t)

	principal, err := guard.Resolve(context.Background(), "", "", GuardConfig{Skip: true})

	assert.NoError(t, err)
	assert.Nil(t, principal)
}

func TestResolveMissingHeader(t *testing.T) {
	guard, store, _ := setupGuard(t)

	principal, err := guard.Resolve(context.Background(), "", "", GuardConfig{})

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Nil(t, principal)
	assert.Empty(t, store.calls, "no credential should reach the store")
}

func TestResolveSystemKey(t *testing.T) {
	guard, _, _ := setupGuard(t)

	principal, err := guard.Resolve(context.Background(), testSystemKey, "",
		GuardConfig{OnlySystemKey: true})

	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, AuthTypeSystem, principal.Auth.Type)
	assert.Empty(t, principal.TenantID, "system callers are not tenant bound")
}

func TestResolveSystemKeyCarriesNoWeightOnOrdinaryRoutes(t *testing.T) {
	guard, _, _ := setupGuard(t)

	for _, route := range []GuardConfig{{}, {BlockAPIKey: true}} {
		principal, err := guard.Resolve(context.Background(), testSystemKey, "", route)

		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Nil(t, principal)
	}
}

func TestResolveOnlySystemKeyRejectsOtherCredentials(t *testing.T) {
	guard, store, _ := setupGuard(t)

	token, err := auth.IssueToken(testSystemKey, "user-1", time.Hour)
	require.NoError(t, err)

	_, err = guard.Resolve(context.Background(), "Bearer "+token, "", GuardConfig{OnlySystemKey: true})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = guard.Resolve(context.Background(), "some-api-key", "", GuardConfig{OnlySystemKey: true})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.Empty(t, store.calls, "system-only routes never consult the store")
}

func TestResolveBearerToken(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.users["user-1"] = &models.User{ID: "user-1", TenantID: "tenant-1", Active: true}

	token, err := auth.IssueToken(testSystemKey, "user-1", time.Hour)
	require.NoError(t, err)

	principal, err := guard.Resolve(context.Background(), "Bearer "+token, "", GuardConfig{})

	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, AuthTypeUser, principal.Auth.Type)
	assert.Equal(t, "user-1", principal.Auth.EntityID)
	assert.Equal(t, "tenant-1", principal.TenantID)
	assert.Equal(t, 1, store.calls["FindUserTenantByID"])

	// second resolve is served from the cache
	_, err = guard.Resolve(context.Background(), "Bearer "+token, "", GuardConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls["FindUserTenantByID"])
}

func TestResolveBearerTokenUnknownUserIsNegativelyCached(t *testing.T) {
	guard, store, _ := setupGuard(t)

	token, err := auth.IssueToken(testSystemKey, "ghost", time.Hour)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = guard.Resolve(context.Background(), "Bearer "+token, "", GuardConfig{})
		assert.ErrorIs(t, err, ErrUnauthenticated)
	}

	assert.Equal(t, 1, store.calls["FindUserTenantByID"],
		"repeated probes must be answered from the negative cache")
}

func TestResolveBearerTokenBadSignature(t *testing.T) {
	guard, store, _ := setupGuard(t)

	token, err := auth.IssueToken("wrong-secret", "user-1", time.Hour)
	require.NoError(t, err)

	_, err = guard.Resolve(context.Background(), "Bearer "+token, "", GuardConfig{})

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, store.calls)
}

func TestResolveAPIKey(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.keysByValue["key-value"] = &models.Key{
		ID:             "key-1",
		OrganizationID: "org-1",
		Value:          "key-value",
		Active:         true,
		Organization:   models.Organization{ID: "org-1", TenantID: "tenant-1"},
	}

	principal, err := guard.Resolve(context.Background(), "key-value", "org-1", GuardConfig{})

	require.NoError(t, err)
	require.NotNil(t, principal)
	assert.Equal(t, AuthTypeAPI, principal.Auth.Type)
	assert.Equal(t, "key-1", principal.Auth.EntityID)
	assert.Equal(t, "org-1", principal.Auth.OrganizationID)
	assert.Equal(t, "tenant-1", principal.TenantID)
}

func TestResolveAPIKeyWrongOrganization(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.keysByValue["key-value"] = &models.Key{
		ID:             "key-1",
		OrganizationID: "org-1",
		Value:          "key-value",
		Active:         true,
		Organization:   models.Organization{ID: "org-1", TenantID: "tenant-1"},
	}

	_, err := guard.Resolve(context.Background(), "key-value", "org-2", GuardConfig{})

	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestResolveBlockedAPIKey(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.keysByValue["key-value"] = &models.Key{
		ID: "key-1", OrganizationID: "org-1", Value: "key-value", Active: true,
	}

	_, err := guard.Resolve(context.Background(), "key-value", "org-1", GuardConfig{BlockAPIKey: true})

	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.Empty(t, store.calls)
}

func TestEnsureRegistersOnFirstReference(t *testing.T) {
	guard, store, _ := setupGuard(t)

	err := guard.Ensure(context.Background(), "tenant-1", PermissionConfig{Key: "funnels:create"})

	require.NoError(t, err)
	assert.Equal(t, 1, store.calls["RegisterPermission"])

	created := store.permissions[permKey("tenant-1", "funnels:create")]
	require.NotNil(t, created)
	assert.True(t, created.Restricted(), "restrict defaults to true")

	// second reference is served from the cache
	err = guard.Ensure(context.Background(), "tenant-1", PermissionConfig{Key: "funnels:create"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls["RegisterPermission"])
	assert.Equal(t, 1, store.calls["FindPermissionByTenantAndValue"])
}

func TestEnsureUnrestrictedPropagatesAndAnnounces(t *testing.T) {
	guard, store, bus := setupGuard(t)
	store.selfManagedRoles = []models.Role{
		{ID: "role-1", OrganizationID: "org-1", SelfManaged: true},
		{ID: "role-2", OrganizationID: "org-2", SelfManaged: true},
	}

	var published []events.Event
	bus.Subscribe(func(_ context.Context, evt events.Event) {
		published = append(published, evt)
	})

	err := guard.Ensure(context.Background(), "tenant-1", PermissionConfig{
		Key:      "keys:list",
		Restrict: restrictPtr(false),
	})

	require.NoError(t, err)
	assert.Len(t, store.rolePermissions["role-1"], 1)
	assert.Len(t, store.rolePermissions["role-2"], 1)

	require.Len(t, published, 1)
	change, ok := published[0].(events.PermissionGrantsChanged)
	require.True(t, ok)
	assert.Equal(t, "tenant-1", change.TenantID)
	assert.True(t, change.Unrestricted)
}

func TestEnsureExistingPermissionPublishesNothing(t *testing.T) {
	guard, store, bus := setupGuard(t)
	store.permissions[permKey("tenant-1", "funnels:list")] = &models.Permission{
		ID: "perm-1", TenantID: "tenant-1", Value: "funnels:list",
	}

	var published []events.Event
	bus.Subscribe(func(_ context.Context, evt events.Event) {
		published = append(published, evt)
	})

	err := guard.Ensure(context.Background(), "tenant-1", PermissionConfig{Key: "funnels:list"})

	require.NoError(t, err)
	assert.Zero(t, store.calls["RegisterPermission"])
	assert.Empty(t, published)
}

func TestEnsureLostCreationRaceIsSuccess(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.raceWinner = &models.Permission{ID: "perm-1", TenantID: "tenant-1", Value: "funnels:create"}

	err := guard.Ensure(context.Background(), "tenant-1", PermissionConfig{Key: "funnels:create"})

	require.NoError(t, err)
	assert.Equal(t, 1, store.calls["RegisterPermission"])
	assert.Equal(t, 2, store.calls["FindPermissionByTenantAndValue"],
		"the winner's record is reloaded after the lost race")
	assert.Same(t, store.raceWinner, store.permissions[permKey("tenant-1", "funnels:create")])
}

func TestEffectivePermissionsForUser(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.memberships["user-1"] = []models.Member{
		{ID: "member-1", OrganizationID: "org-1", UserID: "user-1", Status: models.MemberStatusActive},
	}
	store.memberRoles["member-1"] = []models.Role{{ID: "role-1", OrganizationID: "org-1"}}
	store.rolePermissions["role-1"] = []models.Permission{{ID: "perm-1", Value: "funnels:list"}}
	store.userPermissions["user-1"] = []models.Permission{{ID: "perm-2", Value: "account:read"}}

	principal := &Principal{
		TenantID: "tenant-1",
		Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
	}

	grants := guard.EffectivePermissions(context.Background(), principal)

	assert.ElementsMatch(t, []Grant{
		{Value: "funnels:list", OrganizationID: "org-1"},
		{Value: "account:read"},
	}, grants)

	// second call is served from the cache
	grants = guard.EffectivePermissions(context.Background(), principal)
	assert.Len(t, grants, 2)
	assert.Equal(t, 1, store.calls["ListMembershipsByUser"])
	assert.Equal(t, 1, store.calls["ListPermissionsByRole"])
}

func TestEffectivePermissionsCacheHitIsVerbatim(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.userPermissions["user-1"] = []models.Permission{{ID: "perm-1", Value: "funnels:list"}}

	principal := &Principal{
		TenantID: "tenant-1",
		Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
	}

	// first call computes and caches the set
	grants := guard.EffectivePermissions(context.Background(), principal)
	require.Len(t, grants, 1)

	// wipe the grant source: the cache keeps answering until invalidated
	store.userPermissions["user-1"] = nil
	grants = guard.EffectivePermissions(context.Background(), principal)
	assert.Len(t, grants, 1, "stale cache entry is returned verbatim")
	assert.Equal(t, 1, store.calls["ListDirectPermissionsByUser"])
}

func TestEffectivePermissionsEmptySetIsCached(t *testing.T) {
	guard, store, _ := setupGuard(t)

	principal := &Principal{
		TenantID: "tenant-1",
		Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
	}

	grants := guard.EffectivePermissions(context.Background(), principal)
	assert.Empty(t, grants)

	// the empty result is a valid cached value, not a miss
	guard.EffectivePermissions(context.Background(), principal)
	assert.Equal(t, 1, store.calls["ListMembershipsByUser"])
}

func TestEffectivePermissionsForAPIKey(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.keyPermissions["key-1"] = []models.Permission{
		{ID: "perm-1", Value: "funnels:list"},
		{ID: "perm-2", Value: "funnels:create"},
	}

	principal := &Principal{
		TenantID: "tenant-1",
		Auth:     Auth{Type: AuthTypeAPI, EntityID: "key-1", OrganizationID: "org-1"},
	}

	grants := guard.EffectivePermissions(context.Background(), principal)

	assert.ElementsMatch(t, []Grant{
		{Value: "funnels:list", OrganizationID: "org-1"},
		{Value: "funnels:create", OrganizationID: "org-1"},
	}, grants, "api key grants are scoped to the key's organization")
}

func TestEffectivePermissionsFailClosed(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.err = assert.AnError

	principal := &Principal{
		TenantID: "tenant-1",
		Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
	}

	grants := guard.EffectivePermissions(context.Background(), principal)

	assert.Empty(t, grants)
}

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name           string
		principal      *Principal
		permission     *PermissionConfig
		organizationID string
		want           bool
	}{
		{
			name:      "no permission required",
			principal: nil,
			want:      true,
		},
		{
			name:       "required permission without principal",
			permission: &PermissionConfig{Key: "funnels:list"},
			want:       false,
		},
		{
			name:       "system principal",
			principal:  &Principal{Auth: Auth{Type: AuthTypeSystem}},
			permission: &PermissionConfig{Key: "funnels:list"},
			want:       true,
		},
		{
			name: "matching org-scoped grant",
			principal: &Principal{
				TenantID: "tenant-1",
				Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
			},
			permission:     &PermissionConfig{Key: "funnels:list", Restrict: restrictPtr(false)},
			organizationID: "org-1",
			want:           true,
		},
		{
			name: "grant scoped to another org",
			principal: &Principal{
				TenantID: "tenant-1",
				Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
			},
			permission:     &PermissionConfig{Key: "funnels:list"},
			organizationID: "org-2",
			want:           false,
		},
		{
			name: "tenant-wide grant matches any org",
			principal: &Principal{
				TenantID: "tenant-1",
				Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
			},
			permission:     &PermissionConfig{Key: "account:read"},
			organizationID: "org-2",
			want:           true,
		},
		{
			name: "missing grant",
			principal: &Principal{
				TenantID: "tenant-1",
				Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
			},
			permission:     &PermissionConfig{Key: "funnels:delete"},
			organizationID: "org-1",
			want:           false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			guard, store, _ := setupGuard(t)
			store.memberships["user-1"] = []models.Member{
				{ID: "member-1", OrganizationID: "org-1", UserID: "user-1", Status: models.MemberStatusActive},
			}
			store.memberRoles["member-1"] = []models.Role{{ID: "role-1", OrganizationID: "org-1"}}
			store.rolePermissions["role-1"] = []models.Permission{{ID: "perm-1", Value: "funnels:list"}}
			store.userPermissions["user-1"] = []models.Permission{{ID: "perm-2", Value: "account:read"}}

			got := guard.Authorize(context.Background(), tc.principal, tc.permission, tc.organizationID)

			assert.Equal(t, tc.want, got)
		})
	}
}

func TestAuthorizeOwnerBypass(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.memberships["user-1"] = []models.Member{
		{ID: "member-1", OrganizationID: "org-1", UserID: "user-1", Owner: true, Status: models.MemberStatusActive},
	}

	principal := &Principal{
		TenantID: "tenant-1",
		Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
	}
	permission := &PermissionConfig{Key: "funnels:delete"}

	// prove the permission set is empty, then prove the owner still passes
	require.Empty(t, guard.EffectivePermissions(context.Background(), principal))

	assert.True(t, guard.Authorize(context.Background(), principal, permission, "org-1"),
		"owners bypass permission checks inside their organization")
	assert.False(t, guard.Authorize(context.Background(), principal, permission, "org-2"),
		"ownership confers nothing outside the owned organization")
}

func TestAuthorizeRegistersPermissionsReferencedByOwners(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.memberships["user-1"] = []models.Member{
		{ID: "member-1", OrganizationID: "org-1", UserID: "user-1", Owner: true, Status: models.MemberStatusActive},
	}

	principal := &Principal{
		TenantID: "tenant-1",
		Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
	}
	permission := &PermissionConfig{Key: "funnels:delete"}

	require.True(t, guard.Authorize(context.Background(), principal, permission, "org-1"))

	// the bypass must not keep the permission out of the catalog
	assert.Equal(t, 1, store.calls["RegisterPermission"])
}

func TestAuthorizeFailsClosedOnStoreFailure(t *testing.T) {
	guard, store, _ := setupGuard(t)
	store.err = assert.AnError

	principal := &Principal{
		TenantID: "tenant-1",
		Auth:     Auth{Type: AuthTypeUser, EntityID: "user-1"},
	}

	got := guard.Authorize(context.Background(), principal, &PermissionConfig{Key: "funnels:list"}, "org-1")

	assert.False(t, got)
}

func TestBearerTokenHeaderShapes(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc.def.ghi", "abc.def.ghi", true},
		{"plain-api-key", "", false},
		{"", "", false},
	}

	for _, tc := range tests {
		token, ok := bearerToken(tc.header)

		assert.Equal(t, tc.ok, ok, tc.header)
		assert.Equal(t, tc.token, token, tc.header)
	}
}
