// Package funnel provides CRUD for funnels, the primary business resource.
// The handlers are deliberately plain; the authorization gate in front of
// them is where the platform's behavior lives.
package funnel

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/funnelforge/funnelforge/internal/authz"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/db/models"
	"github.com/funnelforge/funnelforge/internal/web/handler"
	"github.com/funnelforge/funnelforge/internal/web/handler/organization"
)

const (
	// Path is the base path for funnel management.
	Path = organization.RouteOne + "/funnels"

	// ParamFunnelID is the route parameter addressing a single funnel.
	ParamFunnelID = "funnelId"

	// RouteOne addresses a single funnel.
	RouteOne = Path + "/:" + ParamFunnelID

	// PermList guards listing funnels.
	PermList = "funnels:list"
	// PermCreate guards funnel creation.
	PermCreate = "funnels:create"
	// PermUpdate guards funnel updates.
	PermUpdate = "funnels:update"
	// PermDelete guards funnel deletion.
	PermDelete = "funnels:delete"

	// ErrValidationFailed is returned when the request body fails validation.
	ErrValidationFailed = "validation failed"
	// ErrNotFound is returned when the funnel does not exist.
	ErrNotFound = "funnel not found"
)

// Service provides CRUD operations for funnels.
type Service struct {
	cfg       *config.Config
	db        *gorm.DB
	validator *validator.Validate
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
	s.validator = validator.New()

	app.Get(Path,
		handler.Protected(guard, authz.GuardConfig{},
			&authz.PermissionConfig{Key: PermList, Restrict: handler.Unrestricted()}),
		s.List,
	)
	app.Post(Path,
		handler.Protected(guard, authz.GuardConfig{},
			&authz.PermissionConfig{Key: PermCreate, Restrict: handler.Unrestricted()}),
		s.Create,
	)
	app.Get(RouteOne,
		handler.Protected(guard, authz.GuardConfig{},
			&authz.PermissionConfig{Key: PermList, Restrict: handler.Unrestricted()}),
		s.Get,
	)
	app.Patch(RouteOne,
		handler.Protected(guard, authz.GuardConfig{},
			&authz.PermissionConfig{Key: PermUpdate, Restrict: handler.Unrestricted()}),
		s.Update,
	)
	app.Delete(RouteOne,
		handler.Protected(guard, authz.GuardConfig{},
			&authz.PermissionConfig{Key: PermDelete, Restrict: handler.Unrestricted()}),
		s.Delete,
	)
}

// List returns the funnels of the organization.
func (s *Service) List(c *fiber.Ctx) error {
	var funnels []models.Funnel

	err := s.db.WithContext(c.UserContext()).
		Where("organization_id = ?", c.Params(handler.ParamOrganizationID)).
		Find(&funnels).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to list funnels")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	response := make([]funnelResponse, 0, len(funnels))
	for _, funnel := range funnels {
		response = append(response, newFunnelResponse(&funnel))
	}

	return c.JSON(response)
}

// Create creates a funnel in the organization.
func (s *Service) Create(c *fiber.Ctx) error {
	var input formInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	funnel := models.Funnel{
		ID:             models.NewRecordID(),
		OrganizationID: c.Params(handler.ParamOrganizationID),
		Name:           input.Name,
		Published:      input.Published,
	}

	if err := s.db.WithContext(c.UserContext()).Create(&funnel).Error; err != nil {
		log.Error().Err(err).Msg("failed to create funnel")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusCreated).JSON(newFunnelResponse(&funnel))
}

// Get returns a single funnel.
func (s *Service) Get(c *fiber.Ctx) error {
	funnel, err := s.load(c)
	if err != nil {
		return err
	}

	return c.JSON(newFunnelResponse(funnel))
}

// Update edits a funnel.
func (s *Service) Update(c *fiber.Ctx) error {
	funnel, err := s.load(c)
	if err != nil {
		return err
	}

	var input formInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	funnel.Name = input.Name
	funnel.Published = input.Published

	if err := s.db.WithContext(c.UserContext()).Save(funnel).Error; err != nil {
		log.Error().Err(err).Msg("failed to update funnel")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(newFunnelResponse(funnel))
}

// Delete removes a funnel.
func (s *Service) Delete(c *fiber.Ctx) error {
	funnel, err := s.load(c)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(c.UserContext()).Delete(funnel).Error; err != nil {
		log.Error().Err(err).Msg("failed to delete funnel")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// load fetches the funnel addressed by the route within the requested
// organization and writes the error response on failure.
func (s *Service) load(c *fiber.Ctx) (*models.Funnel, error) {
	var funnel models.Funnel

	err := s.db.WithContext(c.UserContext()).
		Where("id = ? AND organization_id = ?",
			c.Params(ParamFunnelID), c.Params(handler.ParamOrganizationID)).
		First(&funnel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": ErrNotFound})
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to load funnel")

		return nil, c.SendStatus(fiber.StatusInternalServerError)
	}

	return &funnel, nil
}
