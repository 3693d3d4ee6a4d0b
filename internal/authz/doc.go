// Package authz implements the authentication and authorization core.
//
// Every protected request flows through the same pipeline: the credential
// resolver turns the Authorization header into a Principal, the permission
// catalog lazily registers the endpoint's declared permission key, the
// permission index computes (and caches) the caller's effective grants, and
// the decision combines them into an allow/deny verdict.
//
// The package fails closed: any internal failure below the decision boundary
// collapses to deny, never to an error surfaced to the caller.
package authz
