package daemon

import (
	"net/url"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/funnelforge/funnelforge/internal/config"
	"github.com/funnelforge/funnelforge/internal/db/models"
)

func seed(cfg *config.Config, db *gorm.DB) {
	// Seed an initial tenant with an admin account if the database is empty

	var count int64
	db.Model(&models.Tenant{}).Count(&count)

	if count != 0 {
		return
	}

	origin := cfg.Webserver.URL
	if parsed, err := url.Parse(cfg.Webserver.URL); err == nil && parsed.Host != "" {
		origin = parsed.Host
	}

	tenant := models.Tenant{
		ID:     models.NewRecordID(),
		Name:   cfg.Title,
		Origin: origin,
	}

	if err := db.Create(&tenant).Error; err != nil {
		log.Error().Err(err).Msg("failed to seed tenant")
		return
	}

	// change this password after the first login
	admin := models.User{
		ID:       models.NewRecordID(),
		TenantID: tenant.ID,
		Active:   true,
		Email:    "admin@" + origin,
		Password: models.HashPassword("changeme"),
	}

	if err := db.Create(&admin).Error; err != nil {
		log.Error().Err(err).Msg("failed to seed admin user")
		return
	}

	log.Info().Str("tenant", tenant.ID).Str("email", admin.Email).
		Msg("seeded initial tenant and admin account")
}
