package handlers

import (
	"database/sql"
	"net/http"

	"stockroom/internal/config"
	"stockroom/internal/email"
	"stockroom/internal/identity"
	"stockroom/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupRoutes mounts the auth (/auth/v1) and row (/rest/v1) APIs.
func SetupRoutes(r *gin.Engine, cfg *config.Config, db *sql.DB, ids *identity.Service, emailService *email.Service) {
	r.Use(middleware.SecurityHeaders(cfg))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.RateLimit(cfg))
	r.Use(addServiceContext(db, ids, emailService))

	r.GET("/health", handleHealth)

	auth := r.Group("/auth/v1")
	auth.Use(middleware.APIKey(cfg.SupabaseAnonKey))
	{
		auth.POST("/signup", middleware.AuthRateLimit(cfg), handleSignUp)
		auth.POST("/token", middleware.AuthRateLimit(cfg), handleToken)
		auth.GET("/user", middleware.Bearer(ids, cfg.SupabaseAnonKey), middleware.RequireUser(), handleGetUser)
		auth.PUT("/user", middleware.AuthRateLimit(cfg), middleware.Bearer(ids, cfg.SupabaseAnonKey), middleware.RequireUser(), handleUpdateUser)
		auth.POST("/logout", middleware.Bearer(ids, cfg.SupabaseAnonKey), middleware.RequireUser(), handleLogout)
	}

	rest := r.Group("/rest/v1")
	rest.Use(middleware.APIKey(cfg.SupabaseAnonKey))
	rest.Use(middleware.Bearer(ids, cfg.SupabaseAnonKey))
	{
		rest.GET("/inventory", handleListInventory)
		rest.POST("/inventory", handleInsertInventory)
		rest.DELETE("/inventory", handleDeleteInventory)
	}
}

func addServiceContext(db *sql.DB, ids *identity.Service, emailService *email.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("db", db)
		c.Set("identity", ids)
		c.Set("email_service", emailService)
		c.Next()
	}
}

func handleHealth(c *gin.Context) {
	db := c.MustGet("db").(*sql.DB)
	if err := db.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
