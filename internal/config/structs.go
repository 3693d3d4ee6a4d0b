package config

import (
	"time"

	"github.com/funnelforge/funnelforge/internal/logger"
)

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	DB        DB
	Log       logger.Log
	Title     string
	Webserver Webserver
	Cache     Cache
	Auth      Auth
}

// Webserver implement webserver settings.
type Webserver struct {
	CleanPath      bool   // use clean path middleware to allow multi slash requests
	DisableRecover bool   // disable recover middleware
	Domain         string // domain name for the webserver
	Port           int    // listening port for the webserver
	ShutDownTime   int    // wait time for shutdown
	URL            string // base url for the webserver
}

// Cache implements the shared cache settings.
// Namespace prefixes every key as "{namespace}:cache:{origin}:{key}" and
// must match across all processes sharing the same redis instance.
type Cache struct {
	Namespace string // logical server namespace, e.g. "funnelforge"
	RedisURL  string // redis connection url (redis:// or rediss://)

	// DefaultTTL applies to cached lookups without an explicit TTL.
	DefaultTTL time.Duration
	// NegativeTTL applies to cached negative (not-found) lookup results.
	// Zero means negative results share DefaultTTL.
	NegativeTTL time.Duration
}

// Auth implements the authentication settings.
type Auth struct {
	// SystemKey is the shared secret used both as the privileged system
	// credential and as the HMAC secret for user tokens.
	SystemKey string
	// TokenExpiry is the lifetime of issued user tokens.
	TokenExpiry time.Duration
}
