package authz

// AuthType identifies the kind of credential a request authenticated with.
type AuthType string

const (
	// AuthTypeSystem marks trusted internal traffic authenticated with the
	// shared system key.
	AuthTypeSystem AuthType = "system"
	// AuthTypeUser marks a human session authenticated with a bearer token.
	AuthTypeUser AuthType = "user"
	// AuthTypeAPI marks programmatic traffic authenticated with an API key.
	AuthTypeAPI AuthType = "api"
)

// Auth describes the credential a Principal was resolved from.
type Auth struct {
	// Type is the credential class the request authenticated with.
	Type AuthType `json:"type"`
	// EntityID is the id of the authenticated entity. It is the user id for
	// bearer tokens, the key id for API keys and empty for the system key.
	EntityID string `json:"entityId,omitempty"`
	// OrganizationID is the home organization of an API credential. It is
	// empty for users and system callers.
	OrganizationID string `json:"organizationId,omitempty"`
}

// Principal is the authenticated identity attached to a request after the
// credential resolver accepted it.
type Principal struct {
	// TenantID is the tenant the principal belongs to. It is empty for
	// system callers, which are not bound to any tenant.
	TenantID string `json:"tenantId,omitempty"`
	// Auth carries the credential details the principal was derived from.
	Auth Auth `json:"auth"`
}

// Grant is one entry of a principal's effective permission set.
type Grant struct {
	// Value is the permission key the grant carries.
	Value string `json:"value"`
	// OrganizationID scopes the grant to a single organization. An empty
	// value means the grant applies tenant wide.
	OrganizationID string `json:"organizationId,omitempty"`
}

// GuardConfig tunes how the credential resolver treats a route.
type GuardConfig struct {
	// Skip disables authentication entirely, the route is public.
	Skip bool
	// OnlySystemKey restricts the route to the shared system key. Bearer
	// tokens and API keys are rejected.
	OnlySystemKey bool
	// BlockAPIKey rejects API keys on the route, only bearer tokens and the
	// system key are accepted.
	BlockAPIKey bool
}

// PermissionConfig declares the permission a route requires. A nil
// PermissionConfig means the route needs authentication only.
type PermissionConfig struct {
	// Key is the permission value the caller must hold.
	Key string
	// Restrict controls how the permission is registered on first sight.
	// Restricted permissions must be granted explicitly, unrestricted ones
	// are handed to every self-managed role of the tenant. Defaults to
	// restricted when nil.
	Restrict *bool
}

// Restricted reports the effective restrict flag, defaulting to true.
func (p *PermissionConfig) Restricted() bool {
	return p.Restrict == nil || *p.Restrict
}
