// Package daemon wires the process together: database, cache, event bus,
// the authorization guard and the web service.
package daemon

import (
	"fmt"

	"github.com/rs/zerolog/log"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/funnelforge/funnelforge/internal/authz"
	"github.com/funnelforge/funnelforge/internal/cache"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/db/dsn"
	"github.com/funnelforge/funnelforge/internal/db/models"
	"github.com/funnelforge/funnelforge/internal/db/store"
	"github.com/funnelforge/funnelforge/internal/events"
	"github.com/funnelforge/funnelforge/internal/web"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	webService *web.Service
	cacheStore *cache.RedisStore
}

// Start starts the Daemon's web service.
func (d *Daemon) Start() error {
	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// WaitShutdown blocks until the web service shut down, then releases the
// cache connection.
func (d *Daemon) WaitShutdown() {
	d.webService.WaitShutdown()

	if err := d.cacheStore.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close cache store")
	}
}

// New creates a new Daemon instance with the provided configuration.
func New(cfg *config.Config) *Daemon {
	if cfg == nil {
		log.Fatal().Msg("config is nil")
		return nil
	}

	dbDriver := gormmysql.Open(dsn.Create(cfg)) // open db with gorm mysql driver

	// TranslateError turns driver duplicate-key errors into
	// gorm.ErrDuplicatedKey, which the permission catalog relies on
	db, err := gorm.Open(dbDriver, &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
		return nil
	}

	if err = db.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.Organization{},
		&models.Member{},
		&models.MemberRole{},
		&models.Role{},
		&models.RolePermission{},
		&models.Permission{},
		&models.UserPermission{},
		&models.Key{},
		&models.KeyPermission{},
		&models.Funnel{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
		return nil
	}

	seed(cfg, db)

	cacheStore, err := cache.NewRedisStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect cache")
		return nil
	}

	bus := events.NewBus()
	events.NewInvalidator(bus, cacheStore)

	guard := authz.New(store.New(db), cacheStore, bus, cfg)

	return &Daemon{
		cfg:        cfg,
		webService: web.New(cfg, db, guard, bus),
		cacheStore: cacheStore,
	}
}
