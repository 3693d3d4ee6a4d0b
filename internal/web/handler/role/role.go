// Package role provides role management inside an organization, including
// replacing a role's permission grants. Grant changes announce the role so
// every holder's cached permission set gets dropped.
package role

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/funnelforge/funnelforge/internal/authz"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/db/models"
	"github.com/funnelforge/funnelforge/internal/events"
	"github.com/funnelforge/funnelforge/internal/web/handler"
	"github.com/funnelforge/funnelforge/internal/web/handler/organization"
)

const (
	// Path is the base path for role management.
	Path = organization.RouteOne + "/roles"

	// ParamRoleID is the route parameter addressing a single role.
	ParamRoleID = "roleId"

	// RouteOne addresses a single role.
	RouteOne = Path + "/:" + ParamRoleID
	// RoutePermissions replaces a role's permission grants.
	RoutePermissions = RouteOne + "/permissions"

	// PermList guards listing roles.
	PermList = "roles:list"
	// PermCreate guards role creation.
	PermCreate = "roles:create"
	// PermUpdate guards role edits including grant changes.
	PermUpdate = "roles:update"
	// PermDelete guards role deletion.
	PermDelete = "roles:delete"

	// ErrValidationFailed is returned when the request body fails validation.
	ErrValidationFailed = "validation failed"
	// ErrNotFound is returned when the role does not exist.
	ErrNotFound = "role not found"
	// ErrSelfManaged is returned on attempts to edit or delete a
	// platform-managed role.
	ErrSelfManaged = "self-managed roles cannot be modified"
)

// Service provides role management.
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
	app.Put(RoutePermissions,
		handler.Protected(guard, authz.GuardConfig{},
			&authz.PermissionConfig{Key: PermUpdate, Restrict: handler.Unrestricted()}),
		s.ConnectPermissions,
	)
}

// List returns the roles of the organization.
func (s *Service) List(c *fiber.Ctx) error {
	var roles []models.Role

	err := s.db.WithContext(c.UserContext()).
		Where("organization_id = ?", c.Params(handler.ParamOrganizationID)).
		Find(&roles).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to list roles")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	response := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		response = append(response, newRoleResponse(&role))
	}

	return c.JSON(response)
}

// Create creates a role in the organization.
func (s *Service) Create(c *fiber.Ctx) error {
	var input formInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	role := models.Role{
		ID:             models.NewRecordID(),
		OrganizationID: c.Params(handler.ParamOrganizationID),
		Name:           input.Name,
		Description:    input.Description,
	}

	if err := s.db.WithContext(c.UserContext()).Create(&role).Error; err != nil {
		log.Error().Err(err).Msg("failed to create role")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.Status(fiber.StatusCreated).JSON(newRoleResponse(&role))
}

// Update renames a role. Self-managed roles are platform owned and refuse
// edits.
func (s *Service) Update(c *fiber.Ctx) error {
	role, err := s.load(c)
	if err != nil {
		return err
	}

	if role.SelfManaged {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": ErrSelfManaged})
	}

	var input formInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	role.Name = input.Name
	role.Description = input.Description

	if err := s.db.WithContext(c.UserContext()).Save(role).Error; err != nil {
		log.Error().Err(err).Msg("failed to update role")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(newRoleResponse(role))
}

// Delete removes a role. Self-managed roles refuse deletion.
func (s *Service) Delete(c *fiber.Ctx) error {
	role, err := s.load(c)
	if err != nil {
		return err
	}

	if role.SelfManaged {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": ErrSelfManaged})
	}

	if err := s.db.WithContext(c.UserContext()).Delete(role).Error; err != nil {
		log.Error().Err(err).Msg("failed to delete role")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	s.bus.Publish(c.UserContext(), events.RolePermissionsChanged{RoleID: role.ID})

	return c.SendStatus(fiber.StatusNoContent)
}

// ConnectPermissions replaces the role's grants with the given permission
// set. Restricted permissions are silently dropped from the request: they
// can only be granted through tenant administration, never through the
// organization's own role editor.
func (s *Service) ConnectPermissions(c *fiber.Ctx) error {
	role, err := s.load(c)
	if err != nil {
		return err
	}

	var input connectInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	principal := handler.Principal(c)
	if principal == nil {
		return handler.AccessDenied(c)
	}

	// keep only the caller's tenant's unrestricted permissions, NULL
	// restrict counts as unrestricted
	var permitted []models.Permission

	query := s.db.WithContext(c.UserContext()).
		Where("tenant_id = ?", principal.TenantID).
		Where("(`restrict` = ? OR `restrict` IS NULL)", false)

	if len(input.PermissionIDs) > 0 {
		query = query.Where("id IN ?", input.PermissionIDs)
	} else {
		query = query.Where("1 = 0")
	}

	if err := query.Find(&permitted).Error; err != nil {
		log.Error().Err(err).Msg("failed to filter permissions")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	permittedIDs := make([]string, 0, len(permitted))
	for _, permission := range permitted {
		permittedIDs = append(permittedIDs, permission.ID)
	}

	err = s.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		remove := tx.Where("role_id = ?", role.ID)
		if len(permittedIDs) > 0 {
			remove = remove.Where("permission_id NOT IN ?", permittedIDs)
		}

		if err := remove.Delete(&models.RolePermission{}).Error; err != nil {
			return err
		}

		if len(permittedIDs) == 0 {
			return nil
		}

		grants := make([]models.RolePermission, 0, len(permittedIDs))
		for _, permissionID := range permittedIDs {
			grants = append(grants, models.RolePermission{
				RoleID:       role.ID,
				PermissionID: permissionID,
			})
		}

		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grants).Error
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to replace role permissions")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	s.bus.Publish(c.UserContext(), events.RolePermissionsChanged{RoleID: role.ID})

	return c.JSON(fiber.Map{"roleId": role.ID, "permissionIds": permittedIDs})
}

// load fetches the role addressed by the route within the requested
// organization and writes the error response on failure.
func (s *Service) load(c *fiber.Ctx) (*models.Role, error) {
	var role models.Role

	err := s.db.WithContext(c.UserContext()).
		Where("id = ? AND organization_id = ?",
			c.Params(ParamRoleID), c.Params(handler.ParamOrganizationID)).
		First(&role).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": ErrNotFound})
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to load role")

		return nil, c.SendStatus(fiber.StatusInternalServerError)
	}

	return &role, nil
}
