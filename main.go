package main

import (
	"context"
	"database/sql"
	"log"
	"time"

	"stockroom/internal/config"
	"stockroom/internal/database"
	"stockroom/internal/email"
	"stockroom/internal/handlers"
	"stockroom/internal/identity"
	"stockroom/internal/logger"
	"stockroom/internal/middleware"

	"github.com/gin-gonic/gin"
)

const sessionCleanupInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger.Initialize(logger.ParseLevel(cfg.LogLevel), cfg.IsDevelopment())

	if err := cfg.CheckSigningSecret(); err != nil {
		log.Fatal(err)
	}
	if cfg.UsingPlaceholderSecret() {
		logger.Warn("Signing tokens with the placeholder JWT_SECRET, set it before exposing this server")
	}

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to run migrations:", err)
	}

	if cfg.UsingPlaceholders() {
		logger.Warn("Serving with the placeholder anon key, set SUPABASE_ANON_KEY for anything but local use")
	}

	ids := identity.NewService(db, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	emailService := email.NewService(cfg)
	if emailService.IsEnabled() {
		logger.Info("Email service enabled with Mailgun")
	} else {
		logger.Info("Email service disabled - Mailgun not configured")
	}

	go cleanupSessions(db)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(middleware.LogRequests())
	r.Use(gin.Recovery())

	handlers.SetupRoutes(r, cfg, db, ids, emailService)

	logger.Info("Server starting", "port", cfg.Port)
	log.Fatal(r.Run(":" + cfg.Port))
}

// cleanupSessions drops expired refresh tokens for the life of the process.
func cleanupSessions(db *sql.DB) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		removed, err := database.CleanupExpiredSessions(context.Background(), db)
		if err != nil {
			logger.Error("Failed to clean up expired sessions", "error", err)
			continue
		}
		if removed > 0 {
			logger.Info("Cleaned up expired sessions", "count", removed)
		}
	}
}
