// Package organization provides CRUD for organizations. Creating one also
// seeds its self-managed ADMIN role with every unrestricted permission of
// the tenant and makes the creator its owner.
package organization

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/funnelforge/funnelforge/internal/authz"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/db/models"
	"github.com/funnelforge/funnelforge/internal/events"
	"github.com/funnelforge/funnelforge/internal/web/handler"
)

const (
	// Path is the base path for organization management.
	Path = handler.RootPath + "organizations"

	// RouteOne addresses a single organization.
	RouteOne = Path + "/:" + handler.ParamOrganizationID

	// AdminRoleName is the name of the seeded self-managed role.
	AdminRoleName = "ADMIN"

	// PermRead guards reading a single organization.
	PermRead = "organizations:read"
	// PermUpdate guards organization updates.
	PermUpdate = "organizations:update"
	// PermDelete guards organization deletion.
	PermDelete = "organizations:delete"

	// ErrValidationFailed is returned when the request body fails validation.
	ErrValidationFailed = "validation failed"
	// ErrNotFound is returned when the organization does not exist.
	ErrNotFound = "organization not found"
)

// Service provides CRUD operations for organizations.
type Service struct {
	cfg       *config.Config
	db        *gorm.DB
	bus       *events.Bus
	validator *validator.Validate
}

// Handler is the exported instance.
var Handler = Service{}

// Init registers routes.
func (s *Service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, guard *authz.Guard, bus *events.Bus) {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
		return
	}

	s.cfg = cfg
	s.db = db
	s.bus = bus
	s.validator = validator.New()

	// listing and creation only need an authenticated user: the list is
	// membership-filtered and the creator becomes the owner
	app.Get(Path,
		handler.Protected(guard, authz.GuardConfig{BlockAPIKey: true}, nil),
		s.List,
	)
	app.Post(Path,
		handler.Protected(guard, authz.GuardConfig{BlockAPIKey: true}, nil),
		s.Create,
	)
	app.Get(RouteOne,
		handler.Protected(guard, authz.GuardConfig{},
			&authz.PermissionConfig{Key: PermRead, Restrict: handler.Unrestricted()}),
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

// List returns the organizations the caller is a member of. System callers
// are not tenant bound and get nothing here.
func (s *Service) List(c *fiber.Ctx) error {
	principal := handler.Principal(c)
	if principal == nil || principal.Auth.Type != authz.AuthTypeUser {
		return c.JSON([]organizationResponse{})
	}

	var organizations []models.Organization

	err := s.db.WithContext(c.UserContext()).
		Joins("JOIN members ON members.organization_id = organizations.id").
		Where("members.user_id = ?", principal.Auth.EntityID).
		Find(&organizations).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to list organizations")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	response := make([]organizationResponse, 0, len(organizations))
	for _, organization := range organizations {
		response = append(response, newOrganizationResponse(&organization))
	}

	return c.JSON(response)
}

// Create creates an organization with its seeded ADMIN role and makes the
// caller its owner.
func (s *Service) Create(c *fiber.Ctx) error {
	principal := handler.Principal(c)
	if principal == nil || principal.Auth.Type != authz.AuthTypeUser {
		return handler.AccessDenied(c)
	}

	var input formInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	organization := models.Organization{
		ID:       models.NewRecordID(),
		TenantID: principal.TenantID,
		Name:     input.Name,
	}

	err := s.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&organization).Error; err != nil {
			return err
		}

		role := models.Role{
			ID:             models.NewRecordID(),
			OrganizationID: organization.ID,
			Name:           AdminRoleName,
			SelfManaged:    true,
		}
		if err := tx.Create(&role).Error; err != nil {
			return err
		}

		// the seeded role starts with every unrestricted permission of the
		// tenant, NULL restrict counts as unrestricted
		var permissions []models.Permission
		// restrict is a reserved word, it has to be quoted in raw queries
		err := tx.Where("tenant_id = ? AND (`restrict` = ? OR `restrict` IS NULL)",
			principal.TenantID, false).
			Find(&permissions).Error
		if err != nil {
			return err
		}

		for _, permission := range permissions {
			grant := models.RolePermission{RoleID: role.ID, PermissionID: permission.ID}
			if err := tx.Create(&grant).Error; err != nil {
				return err
			}
		}

		member := models.Member{
			ID:             models.NewRecordID(),
			OrganizationID: organization.ID,
			UserID:         principal.Auth.EntityID,
			Owner:          true,
			Status:         models.MemberStatusActive,
		}
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		return tx.Create(&models.MemberRole{MemberID: member.ID, RoleID: role.ID}).Error
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create organization")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	s.bus.Publish(c.UserContext(), events.MemberGraphChanged{
		UserIDs: []string{principal.Auth.EntityID},
	})

	return c.Status(fiber.StatusCreated).JSON(newOrganizationResponse(&organization))
}

// Get returns a single organization.
func (s *Service) Get(c *fiber.Ctx) error {
	organization, err := s.load(c)
	if err != nil {
		return err
	}

	return c.JSON(newOrganizationResponse(organization))
}

// Update renames an organization.
func (s *Service) Update(c *fiber.Ctx) error {
	organization, err := s.load(c)
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

	organization.Name = input.Name

	if err := s.db.WithContext(c.UserContext()).Save(organization).Error; err != nil {
		log.Error().Err(err).Msg("failed to update organization")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(newOrganizationResponse(organization))
}

// Delete removes an organization and announces the membership change for
// every former member.
func (s *Service) Delete(c *fiber.Ctx) error {
	organization, err := s.load(c)
	if err != nil {
		return err
	}

	var members []models.Member
	if err := s.db.WithContext(c.UserContext()).
		Where("organization_id = ?", organization.ID).
		Find(&members).Error; err != nil {
		log.Error().Err(err).Msg("failed to list members before delete")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	if err := s.db.WithContext(c.UserContext()).Delete(organization).Error; err != nil {
		log.Error().Err(err).Msg("failed to delete organization")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	userIDs := make([]string, 0, len(members))
	for _, member := range members {
		if member.UserID != "" {
			userIDs = append(userIDs, member.UserID)
		}
	}

	s.bus.Publish(c.UserContext(), events.MemberGraphChanged{UserIDs: userIDs})

	return c.SendStatus(fiber.StatusNoContent)
}

// load fetches the organization addressed by the route, scoped to the
// caller's tenant, and writes the error response on failure.
func (s *Service) load(c *fiber.Ctx) (*models.Organization, error) {
	principal := handler.Principal(c)
	if principal == nil {
		return nil, handler.AccessDenied(c)
	}

	var organization models.Organization

	query := s.db.WithContext(c.UserContext()).
		Where("id = ?", c.Params(handler.ParamOrganizationID))

	// system callers are not tenant bound
	if principal.Auth.Type != authz.AuthTypeSystem {
		query = query.Where("tenant_id = ?", principal.TenantID)
	}

	err := query.First(&organization).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": ErrNotFound})
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to load organization")

		return nil, c.SendStatus(fiber.StatusInternalServerError)
	}

	return &organization, nil
}
