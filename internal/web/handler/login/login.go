// Package login provides the public authentication endpoints: password
// login and account signup. The tenant is selected by the request origin.
package login

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/funnelforge/funnelforge/internal/auth"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/web/handler"
)

const (
	// Path is the base path for authentication endpoints.
	Path = handler.RootPath + "auth"

	// RouteLogin is the password login route.
	RouteLogin = Path + "/login"
	// RouteSignup is the account signup route.
	RouteSignup = Path + "/signup"

	// ErrValidationFailed is returned when the request body fails validation.
	ErrValidationFailed = "validation failed"
	// ErrUnknownTenant is returned when no tenant is served from the
	// request origin.
	ErrUnknownTenant = "unknown tenant"
	// ErrEmailTaken is returned when the signup email already has an account.
	ErrEmailTaken = "email is already registered"
)

// Service provides the authentication endpoints.
type Service struct {
	cfg         *config.Config
	authService *auth.Service
	validator   *validator.Validate
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, authService *auth.Service) {
	if app == nil || cfg == nil || authService == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.authService = authService
	s.validator = validator.New()

	app.Post(RouteLogin, s.Login)
	app.Post(RouteSignup, s.Signup)
}

// tenantID resolves the tenant of the request from its origin host.
func (s *Service) tenantID(c *fiber.Ctx) (string, bool) {
	origin := c.Get(fiber.HeaderOrigin)
	if origin == "" {
		origin = c.Hostname()
	}

	tenant, err := s.authService.TenantByOrigin(c.UserContext(), origin)
	if err != nil {
		log.Error().Err(err).Str("host", origin).Msg("tenant lookup failed")

		return "", false
	}

	if tenant == nil {
		return "", false
	}

	return tenant.ID, true
}

// Login verifies the credentials and returns a bearer token.
func (s *Service) Login(c *fiber.Ctx) error {
	var input loginInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	tenantID, ok := s.tenantID(c)
	if !ok {
		return handler.AccessDenied(c)
	}

	token, user, err := s.authService.Login(c.UserContext(), tenantID, input.Email, input.Password)
	if err != nil {
		// all login failures look alike to the caller
		return handler.AccessDenied(c)
	}

	return c.JSON(loginResponse{
		Token: token,
		User:  newUserResponse(user),
	})
}

// Signup creates an account in the request's tenant.
func (s *Service) Signup(c *fiber.Ctx) error {
	var input signupInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	tenantID, ok := s.tenantID(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrUnknownTenant})
	}

	user, err := s.authService.Signup(c.UserContext(), tenantID, auth.SignupInput{
		Email:     input.Email,
		Password:  input.Password,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	})
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": ErrEmailTaken})
		}

		log.Error().Err(err).Msg("signup failed")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusCreated).JSON(newUserResponse(user))
}
