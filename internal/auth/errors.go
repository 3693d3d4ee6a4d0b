package auth

import "github.com/pkg/errors"

var (
	// ErrInvalidCredentials is returned on any failed login attempt.
	// Unknown email and wrong password are deliberately indistinguishable.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when a bearer token fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrUserDisabled is returned when a deactivated account logs in.
	ErrUserDisabled = errors.New("user is disabled")
	// ErrEmailTaken is returned when signing up with an email that already
	// has an account in the tenant.
	ErrEmailTaken = errors.New("email is already registered")
)
