package authz

import "github.com/pkg/errors"

// ErrUnauthenticated is the uniform rejection for every failed credential
// resolution. Callers must not be able to tell a missing header, a bad
// token and an unknown API key apart.
var ErrUnauthenticated = errors.New("unauthenticated")
