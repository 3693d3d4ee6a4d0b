// Package auth implements account authentication: password login, signup
// and the bearer tokens both sides of the credential resolver agree on.
package auth

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/db/models"
)

// Service provides login and signup for tenant users.
type Service struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewService creates an auth service over the given database handle.
func NewService(db *gorm.DB, cfg *config.Config) *Service {
	return &Service{db: db, cfg: cfg}
}

// TenantByOrigin returns the tenant served from the given public host, or
// nil if no tenant claims it. Login and signup requests select their tenant
// this way.
func (s *Service) TenantByOrigin(ctx context.Context, origin string) (*models.Tenant, error) {
	var tenant models.Tenant

	err := s.db.WithContext(ctx).Where("origin = ?", origin).First(&tenant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, errors.Wrap(err, "failed to find tenant")
	}

	return &tenant, nil
}

// Login verifies the credentials and returns a signed bearer token with the
// authenticated user. Unknown email and wrong password are both reported as
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, tenantID, email, password string) (string, *models.User, error) {
	var user models.User

	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND email = ? AND deleted_at IS NULL", tenantID, email).
		First(&user).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error().Err(err).Msg("login lookup failed")
		}

		return "", nil, ErrInvalidCredentials
	}

	if !user.VerifyPassword(password) {
		return "", nil, ErrInvalidCredentials
	}

	if !user.Active {
		return "", nil, ErrUserDisabled
	}

	token, err := IssueToken(s.cfg.Auth.SystemKey, user.ID, s.cfg.Auth.TokenExpiry)
	if err != nil {
		return "", nil, err
	}

	return token, &user, nil
}

// SignupInput carries the fields of a signup request.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Signup creates an active account in the tenant and returns it.
func (s *Service) Signup(ctx context.Context, tenantID string, input SignupInput) (*models.User, error) {
	user := &models.User{
		ID:        models.NewRecordID(),
		TenantID:  tenantID,
		Active:    true,
		Email:     input.Email,
		Password:  models.HashPassword(input.Password),
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}

	err := s.db.WithContext(ctx).Create(user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrEmailTaken
		}

		return nil, errors.Wrap(err, "failed to create user")
	}

	return user, nil
}
