// Package key provides API key management inside an organization. Keys
// authenticate machine callers; their grants are always scoped to the
// owning organization. Grant changes announce the key so its cached
// permission set gets dropped.
package key

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
	"github.com/funnelforge/funnelforge/internal/uniuri"
	"github.com/funnelforge/funnelforge/internal/web/handler"
	"github.com/funnelforge/funnelforge/internal/web/handler/organization"
)

const (
	// Path is the base path for API key management.
	Path = organization.RouteOne + "/keys"

	// ParamKeyID is the route parameter addressing a single key.
	ParamKeyID = "keyId"

	// RouteOne addresses a single key.
	RouteOne = Path + "/:" + ParamKeyID
	// RoutePermissions replaces a key's permission grants.
	RoutePermissions = RouteOne + "/permissions"

	// SecretLen is the length of a generated key secret.
	SecretLen = 48

	// PermList guards listing keys.
	PermList = "keys:list"
	// PermCreate guards key creation.
	PermCreate = "keys:create"
	// PermUpdate guards key edits including grant changes.
	PermUpdate = "keys:update"
	// PermDelete guards key deletion.
	PermDelete = "keys:delete"

	// ErrValidationFailed is returned when the request body fails validation.
	ErrValidationFailed = "validation failed"
	// ErrNotFound is returned when the key does not exist.
	ErrNotFound = "key not found"
)

// Service provides API key management.
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

	// key management is for humans and the system, never for other keys
	app.Get(Path,
		handler.Protected(guard, authz.GuardConfig{BlockAPIKey: true},
			&authz.PermissionConfig{Key: PermList, Restrict: handler.Unrestricted()}),
		s.List,
	)
	app.Post(Path,
		handler.Protected(guard, authz.GuardConfig{BlockAPIKey: true},
			&authz.PermissionConfig{Key: PermCreate, Restrict: handler.Unrestricted()}),
		s.Create,
	)
	app.Delete(RouteOne,
		handler.Protected(guard, authz.GuardConfig{BlockAPIKey: true},
			&authz.PermissionConfig{Key: PermDelete, Restrict: handler.Unrestricted()}),
		s.Delete,
	)
	app.Put(RoutePermissions,
		handler.Protected(guard, authz.GuardConfig{BlockAPIKey: true},
			&authz.PermissionConfig{Key: PermUpdate, Restrict: handler.Unrestricted()}),
		s.ConnectPermissions,
	)
}

// List returns the keys of the organization without their secrets.
func (s *Service) List(c *fiber.Ctx) error {
	var keys []models.Key

	err := s.db.WithContext(c.UserContext()).
		Where("organization_id = ?", c.Params(handler.ParamOrganizationID)).
		Find(&keys).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to list keys")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	response := make([]keyResponse, 0, len(keys))
	for _, key := range keys {
		response = append(response, newKeyResponse(&key))
	}

	return c.JSON(response)
}

// Create generates a key with a fresh secret. The secret is returned once,
// in this response, and never again.
func (s *Service) Create(c *fiber.Ctx) error {
	var input formInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	key := models.Key{
		ID:             models.NewRecordID(),
		OrganizationID: c.Params(handler.ParamOrganizationID),
		Name:           input.Name,
		Value:          uniuri.NewLen(SecretLen),
		Active:         true,
	}

	if err := s.db.WithContext(c.UserContext()).Create(&key).Error; err != nil {
		log.Error().Err(err).Msg("failed to create key")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	response := newKeyResponse(&key)
	response.Value = key.Value

	return c.Status(fiber.StatusCreated).JSON(response)
}

// Delete removes a key. Its cached permission set is dropped through the
// announced grant change.
func (s *Service) Delete(c *fiber.Ctx) error {
	key, err := s.load(c)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(c.UserContext()).Delete(key).Error; err != nil {
		log.Error().Err(err).Msg("failed to delete key")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	s.bus.Publish(c.UserContext(), events.KeyGrantsChanged{KeyID: key.ID})

	return c.SendStatus(fiber.StatusNoContent)
}

// ConnectPermissions replaces the key's grants with the given permission
// set. Restricted permissions are silently dropped, the same rule role
// grants follow.
func (s *Service) ConnectPermissions(c *fiber.Ctx) error {
	key, err := s.load(c)
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
		remove := tx.Where("key_id = ?", key.ID)
		if len(permittedIDs) > 0 {
			remove = remove.Where("permission_id NOT IN ?", permittedIDs)
		}

		if err := remove.Delete(&models.KeyPermission{}).Error; err != nil {
			return err
		}

		if len(permittedIDs) == 0 {
			return nil
		}

		grants := make([]models.KeyPermission, 0, len(permittedIDs))
		for _, permissionID := range permittedIDs {
			grants = append(grants, models.KeyPermission{
				KeyID:        key.ID,
				PermissionID: permissionID,
			})
		}

		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&grants).Error
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to replace key permissions")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	s.bus.Publish(c.UserContext(), events.KeyGrantsChanged{KeyID: key.ID})

	return c.JSON(fiber.Map{"keyId": key.ID, "permissionIds": permittedIDs})
}

// load fetches the key addressed by the route within the requested
// organization and writes the error response on failure.
func (s *Service) load(c *fiber.Ctx) (*models.Key, error) {
	var key models.Key

	err := s.db.WithContext(c.UserContext()).
		Where("id = ? AND organization_id = ?",
			c.Params(ParamKeyID), c.Params(handler.ParamOrganizationID)).
		First(&key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": ErrNotFound})
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to load key")

		return nil, c.SendStatus(fiber.StatusInternalServerError)
	}

	return &key, nil
}
