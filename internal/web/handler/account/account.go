// Package account exposes the authenticated caller's own identity.
package account

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/funnelforge/funnelforge/internal/authz"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/db/models"
	"github.com/funnelforge/funnelforge/internal/web/handler"
)

// Path is the base path for the account endpoint.
const Path = handler.RootPath + "account"

// Service provides the account endpoint.
type Service struct {
	cfg *config.Config
	db  *gorm.DB
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, guard *authz.Guard) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db

	// authenticated callers only, no permission needed
	app.Get(Path,
		handler.Protected(guard, authz.GuardConfig{BlockAPIKey: true}, nil),
		s.Me,
	)
}

// Me returns the caller's principal and, for user credentials, the account
// record.
func (s *Service) Me(c *fiber.Ctx) error {
	principal := handler.Principal(c)
	if principal == nil {
		return handler.AccessDenied(c)
	}

	response := fiber.Map{"principal": principal}

	if principal.Auth.Type == authz.AuthTypeUser {
		var user models.User

		err := s.db.WithContext(c.UserContext()).
			First(&user, "id = ?", principal.Auth.EntityID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("account lookup failed")

			return c.SendStatus(fiber.StatusInternalServerError)
		}

		if err == nil {
			response["user"] = fiber.Map{
				"id":        user.ID,
				"email":     user.Email,
				"firstName": user.FirstName,
				"lastName":  user.LastName,
			}
		}
	}

	return c.JSON(response)
}
