// Package web assembles the HTTP surface: the fiber application, the access
// log, the metrics endpoint and every handler behind the authorization
// guard.
package web

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/funnelforge/funnelforge/internal/auth"
	"github.com/funnelforge/funnelforge/internal/authz"
	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/events"
	accesslog "github.com/funnelforge/funnelforge/internal/logger/adapter/fiber"
	"github.com/funnelforge/funnelforge/internal/web/handler"
	"github.com/funnelforge/funnelforge/internal/web/handler/account"
	"github.com/funnelforge/funnelforge/internal/web/handler/funnel"
	"github.com/funnelforge/funnelforge/internal/web/handler/key"
	"github.com/funnelforge/funnelforge/internal/web/handler/login"
	"github.com/funnelforge/funnelforge/internal/web/handler/member"
	"github.com/funnelforge/funnelforge/internal/web/handler/organization"
	"github.com/funnelforge/funnelforge/internal/web/handler/role"
)

const (
	// CheckAlivePath is the liveness probe endpoint.
	CheckAlivePath = "/checkalive"
	// MetricsPath is the prometheus scrape endpoint.
	MetricsPath = "/metrics"
)

// Service represents the web service.
type Service struct {
	App          *fiber.App
	cfg          *config.Config
	fastShutDown bool
	alive        atomic.Bool
	db           *gorm.DB
	guard        *authz.Guard
}

// Start starts the web service on the given address.
func (s *Service) Start(addr string) error {
	var doneFiber = make(chan bool)

	go func() {
		if err := s.App.Listen(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Msgf("fiber listen error: %v", err)
		}

		doneFiber <- true
	}()

	<-doneFiber // wait for fiber to stop

	return nil
}

// WaitShutdown waits for graceful shutdown of the web service.
func (s *Service) WaitShutdown() {
	irqSig := make(chan os.Signal, 1)
	signal.Notify(irqSig, syscall.SIGINT, syscall.SIGTERM)

	sig := <-irqSig
	log.Info().Msgf("shutdown request (signal: %v)", sig)

	// Graceful shutdown for reverse proxies: set status to fail, so checkalive returns fail.
	if !s.fastShutDown {
		log.Info().Msgf(
			"graceful shutdown: return 503 while %d seconds to let LB to remove this pod from active targets",
			s.cfg.Webserver.ShutDownTime,
		)

		s.alive.Store(false)
		time.Sleep(time.Duration(s.cfg.Webserver.ShutDownTime) * time.Second)
	}

	serverShutdown := make(chan struct{})

	go func() {
		log.Info().Msg("stopping http server ...")

		err := s.App.Shutdown()
		if err != nil {
			log.Error().Err(err).Msg("")
		}

		serverShutdown <- struct{}{}
	}()

	<-serverShutdown
	log.Info().Msg("http server was stopped ... good bye...")
}

// New creates a new web service with the given configuration and wiring.
func New(cfg *config.Config, db *gorm.DB, guard *authz.Guard, bus *events.Bus) *Service {
	if cfg == nil {
		panic("config cannot be nil")
	}

	if db == nil {
		panic("db cannot be nil")
	}

	app := fiber.New(
		fiber.Config{
			ReadBufferSize: 8192,
			AppName:        cfg.Title,
			CaseSensitive:  true,
			Prefork:        false,
			Immutable:      true,
		},
	)

	// access log, liveness calls excluded
	app.Use(accesslog.New(accesslog.Config{
		Config:        cfg.Log,
		CheckAliveURI: CheckAlivePath,
	}))

	service := &Service{
		cfg:   cfg,
		App:   app,
		db:    db,
		guard: guard,
	}
	service.alive.Store(true)

	app.Get(CheckAlivePath, func(c *fiber.Ctx) error {
		if !service.alive.Load() {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}

		return c.SendString("ok")
	})

	app.Get(MetricsPath,
		handler.Protected(guard, authz.GuardConfig{OnlySystemKey: true}, nil),
		adaptor.HTTPHandler(promhttp.Handler()),
	)

	authService := auth.NewService(db, cfg)

	// init handlers (they register their own routes with permission checks)
	login.Handler.Init(app, cfg, authService)
	account.Handler.Init(app, cfg, db, guard)
	organization.Handler.Init(app, cfg, db, guard, bus)
	member.Handler.Init(app, cfg, db, guard, bus)
	role.Handler.Init(app, cfg, db, guard, bus)
	key.Handler.Init(app, cfg, db, guard, bus)
	funnel.Handler.Init(app, cfg, db, guard)

	return service
}
