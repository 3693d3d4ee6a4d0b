// Package events carries mutation notifications between modules.
//
// The permission catalog and the CRUD services publish events here instead
// of reaching into each other's caches; a single invalidation subscriber
// performs the cross-cutting cache deletes. This keeps the catalog free of
// an import cycle with the membership and authorization caches.
package events

import (
	"context"
	"sync"
)

// Event is a mutation notification. Exactly one of the concrete event
// structs below is published per mutation.
type Event interface {
	// Name identifies the event type for logging.
	Name() string
}

// PermissionGrantsChanged reports that the permission-grant graph of a
// tenant changed, e.g. a new unrestricted permission was propagated to
// self-managed roles. The affected set of principals is unknown, so the
// subscriber invalidates by pattern.
type PermissionGrantsChanged struct {
	TenantID string
	// Unrestricted is true when the change affected self-managed roles and
	// therefore an unknown number of users transitively.
	Unrestricted bool
}

// Name implements Event.
func (PermissionGrantsChanged) Name() string { return "permission-grants-changed" }

// MemberGraphChanged reports that the membership/role graph of specific
// users changed (membership created or removed, role assignment edited,
// organization created or deleted).
type MemberGraphChanged struct {
	UserIDs []string
}

// Name implements Event.
func (MemberGraphChanged) Name() string { return "member-graph-changed" }

// RolePermissionsChanged reports that the permission grants of a role were
// edited. Every member holding the role is affected; the subscriber
// invalidates all user permission sets since the holders are not enumerated
// at publish time.
type RolePermissionsChanged struct {
	RoleID string
}

// Name implements Event.
func (RolePermissionsChanged) Name() string { return "role-permissions-changed" }

// KeyGrantsChanged reports that the permission grants of an API key were
// edited.
type KeyGrantsChanged struct {
	KeyID string
}

// Name implements Event.
func (KeyGrantsChanged) Name() string { return "key-grants-changed" }

// Handler consumes published events.
type Handler func(ctx context.Context, evt Event)

// Bus is a small synchronous in-process publish/subscribe hub.
// Subscribers run on the publisher's goroutine; they are expected to be
// quick and to swallow their own failures.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all events. Subscription order is
// dispatch order.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers = append(b.handlers, h)
}

// Publish dispatches the event to every subscriber synchronously.
func (b *Bus) Publish(ctx context.Context, evt Event) {
	b.mu.RLock()
	handlers := b.handlers
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, evt)
	}
}
