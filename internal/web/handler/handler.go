// Package handler holds the pieces shared by all web handlers: route
// constants, the principal locals accessor and the guard middleware that
// fronts every protected route.
package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/funnelforge/funnelforge/internal/authz"
)

const (
	// RootPath is the root path of the API route group.
	RootPath = "/api/v1/"

	// ParamOrganizationID is the route parameter carrying the requested
	// organization scope.
	ParamOrganizationID = "organizationId"

	// LocalsPrincipal is the fiber locals key the guard stores the
	// resolved principal under.
	LocalsPrincipal = "principal"

	// MsgAccessDenied is the uniform rejection body. Authentication and
	// authorization failures are deliberately indistinguishable.
	MsgAccessDenied = "access denied"

	// ErrNilACDFatalLogMsg is used if app or cfg or db var pointer is nil.
	ErrNilACDFatalLogMsg = "app, cfg or db is nil"
)

// AccessDenied writes the uniform rejection response.
func AccessDenied(c *fiber.Ctx) error {
	return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
		"message": MsgAccessDenied,
	})
}

// Principal returns the principal the guard attached to the request, or nil
// on public routes.
func Principal(c *fiber.Ctx) *authz.Principal {
	principal, ok := c.Locals(LocalsPrincipal).(*authz.Principal)
	if !ok {
		return nil
	}

	return principal
}

// Protected builds the guard middleware for one route: it resolves the
// credential, registers the declared permission on first sight and decides
// the request. Handlers behind it never run on a deny.
func Protected(guard *authz.Guard, route authz.GuardConfig, permission *authz.PermissionConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		organizationID := c.Params(ParamOrganizationID)

		principal, err := guard.Resolve(c.UserContext(), c.Get(fiber.HeaderAuthorization), organizationID, route)
		if err != nil {
			return AccessDenied(c)
		}

		if !guard.Authorize(c.UserContext(), principal, permission, organizationID) {
			return AccessDenied(c)
		}

		if principal != nil {
			c.Locals(LocalsPrincipal, principal)
		}

		return c.Next()
	}
}

// Unrestricted is the PermissionConfig restrict value for permissions any
// self-managed role receives automatically.
func Unrestricted() *bool {
	v := false

	return &v
}
