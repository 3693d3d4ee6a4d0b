// Package member provides membership management inside an organization:
// inviting users, editing role assignments and removing members. Every
// mutation announces the affected users so their cached permission sets and
// membership relations get dropped.
package member

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
	"github.com/funnelforge/funnelforge/internal/web/handler/organization"
)

const (
	// Path is the base path for membership management.
	Path = organization.RouteOne + "/members"

	// ParamMemberID is the route parameter addressing a single member.
	ParamMemberID = "memberId"

	// RouteOne addresses a single member.
	RouteOne = Path + "/:" + ParamMemberID

	// PermList guards listing members.
	PermList = "members:list"
	// PermCreate guards inviting members.
	PermCreate = "members:create"
	// PermUpdate guards editing a member's roles and status.
	PermUpdate = "members:update"
	// PermDelete guards removing members.
	PermDelete = "members:delete"

	// ErrValidationFailed is returned when the request body fails validation.
	ErrValidationFailed = "validation failed"
	// ErrNotFound is returned when the member does not exist.
	ErrNotFound = "member not found"
)

// Service provides membership management.
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
}

// List returns the members of the organization with their roles.
func (s *Service) List(c *fiber.Ctx) error {
	var members []models.Member

	err := s.db.WithContext(c.UserContext()).
		Where("organization_id = ?", c.Params(handler.ParamOrganizationID)).
		Find(&members).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to list members")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	response := make([]memberResponse, 0, len(members))

	for _, member := range members {
		roleIDs, err := s.roleIDs(c, member.ID)
		if err != nil {
			return c.SendStatus(fiber.StatusInternalServerError)
		}

		response = append(response, newMemberResponse(&member, roleIDs))
	}

	return c.JSON(response)
}

// Create invites a user into the organization. A known email joins as an
// active member right away, an unknown one leaves a pending invite.
func (s *Service) Create(c *fiber.Ctx) error {
	principal := handler.Principal(c)
	if principal == nil {
		return handler.AccessDenied(c)
	}

	var input createInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	organizationID := c.Params(handler.ParamOrganizationID)

	var user models.User

	err := s.db.WithContext(c.UserContext()).
		Where("tenant_id = ? AND email = ?", principal.TenantID, input.Email).
		First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Err(err).Msg("failed to look up invited user")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	member := models.Member{
		ID:             models.NewRecordID(),
		OrganizationID: organizationID,
		InviteEmail:    input.Email,
		Status:         models.MemberStatusPending,
	}

	if user.ID != "" {
		member.UserID = user.ID
		member.Status = models.MemberStatusActive
	}

	roleIDs, err := s.organizationRoleIDs(c, organizationID, input.RoleIDs)
	if err != nil {
		log.Error().Err(err).Msg("failed to filter member roles")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	err = s.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&member).Error; err != nil {
			return err
		}

		for _, roleID := range roleIDs {
			if err := tx.Create(&models.MemberRole{MemberID: member.ID, RoleID: roleID}).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to create member")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	if member.UserID != "" {
		s.bus.Publish(c.UserContext(), events.MemberGraphChanged{UserIDs: []string{member.UserID}})
	}

	return c.Status(fiber.StatusCreated).JSON(newMemberResponse(&member, roleIDs))
}

// Update replaces a member's role assignments and optionally its status.
func (s *Service) Update(c *fiber.Ctx) error {
	member, err := s.load(c)
	if err != nil {
		return err
	}

	var input updateInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	if err := s.validator.Struct(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"message": ErrValidationFailed})
	}

	var roleIDs []string
	if input.RoleIDs != nil {
		roleIDs, err = s.organizationRoleIDs(c, member.OrganizationID, input.RoleIDs)
		if err != nil {
			log.Error().Err(err).Msg("failed to filter member roles")

			return c.SendStatus(fiber.StatusInternalServerError)
		}
	}

	err = s.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if input.Status != "" {
			member.Status = models.MemberStatus(input.Status)
			if err := tx.Save(member).Error; err != nil {
				return err
			}
		}

		if input.RoleIDs == nil {
			return nil
		}

		err := tx.Where("member_id = ?", member.ID).Delete(&models.MemberRole{}).Error
		if err != nil {
			return err
		}

		for _, roleID := range roleIDs {
			if err := tx.Create(&models.MemberRole{MemberID: member.ID, RoleID: roleID}).Error; err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to update member")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	if member.UserID != "" {
		s.bus.Publish(c.UserContext(), events.MemberGraphChanged{UserIDs: []string{member.UserID}})
	}

	roleIDs, err = s.roleIDs(c, member.ID)
	if err != nil {
		return c.SendStatus(fiber.StatusInternalServerError)
	}

	return c.JSON(newMemberResponse(member, roleIDs))
}

// Delete removes a member from the organization.
func (s *Service) Delete(c *fiber.Ctx) error {
	member, err := s.load(c)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(c.UserContext()).Delete(member).Error; err != nil {
		log.Error().Err(err).Msg("failed to delete member")

		return c.SendStatus(fiber.StatusInternalServerError)
	}

	if member.UserID != "" {
		s.bus.Publish(c.UserContext(), events.MemberGraphChanged{UserIDs: []string{member.UserID}})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// load fetches the member addressed by the route within the requested
// organization and writes the error response on failure.
func (s *Service) load(c *fiber.Ctx) (*models.Member, error) {
	var member models.Member

	err := s.db.WithContext(c.UserContext()).
		Where("id = ? AND organization_id = ?",
			c.Params(ParamMemberID), c.Params(handler.ParamOrganizationID)).
		First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": ErrNotFound})
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to load member")

		return nil, c.SendStatus(fiber.StatusInternalServerError)
	}

	return &member, nil
}

// organizationRoleIDs keeps only the submitted role ids that belong to the
// addressed organization, so assignments can never reference a foreign
// organization's roles.
func (s *Service) organizationRoleIDs(c *fiber.Ctx, organizationID string, roleIDs []string) ([]string, error) {
	if len(roleIDs) == 0 {
		return []string{}, nil
	}

	var roles []models.Role

	err := s.db.WithContext(c.UserContext()).
		Where("organization_id = ? AND id IN ?", organizationID, roleIDs).
		Find(&roles).Error
	if err != nil {
		return nil, err
	}

	kept := make([]string, 0, len(roles))
	for _, role := range roles {
		kept = append(kept, role.ID)
	}

	return kept, nil
}

func (s *Service) roleIDs(c *fiber.Ctx, memberID string) ([]string, error) {
	var assignments []models.MemberRole

	err := s.db.WithContext(c.UserContext()).
		Where("member_id = ?", memberID).
		Find(&assignments).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to load member roles")

		return nil, err
	}

	roleIDs := make([]string, 0, len(assignments))
	for _, assignment := range assignments {
		roleIDs = append(roleIDs, assignment.RoleID)
	}

	return roleIDs, nil
}
