package handlers

import (
	"errors"
	"net/http"

	"stockroom/internal/email"
	"stockroom/internal/identity"
	"stockroom/internal/logger"
	"stockroom/internal/middleware"

	"github.com/gin-gonic/gin"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func authError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"code": status, "error_code": code, "msg": message})
}

func grantError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grant", "error_description": message})
}

func handleSignUp(c *gin.Context) {
	ids := c.MustGet("identity").(*identity.Service)
	emailService := c.MustGet("email_service").(*email.Service)

	var req credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		authError(c, http.StatusBadRequest, "validation_failed", "Invalid request body")
		return
	}

	session, err := ids.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrInvalidEmail):
			authError(c, http.StatusBadRequest, "validation_failed", err.Error())
		case errors.Is(err, identity.ErrWeakPassword):
			authError(c, http.StatusUnprocessableEntity, "weak_password", err.Error())
		case errors.Is(err, identity.ErrEmailTaken):
			authError(c, http.StatusUnprocessableEntity, "user_already_exists", "User already registered")
		default:
			logger.Error("Sign up failed", "email", req.Email, "error", err)
			authError(c, http.StatusInternalServerError, "unexpected_failure", "Unable to create user")
		}
		return
	}

	logger.Info("User signed up", "user_id", session.User.ID, "email", session.User.Email)
	user := session.User
	emailService.SendWelcomeEmailAsync(&user)

	c.JSON(http.StatusOK, session)
}

func handleToken(c *gin.Context) {
	ids := c.MustGet("identity").(*identity.Service)

	switch grantType := c.Query("grant_type"); grantType {
	case "password":
		var req credentials
		if err := c.ShouldBindJSON(&req); err != nil {
			authError(c, http.StatusBadRequest, "validation_failed", "Invalid request body")
			return
		}

		session, err := ids.SignIn(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidCredentials) {
				grantError(c, "Invalid login credentials")
				return
			}
			logger.Error("Sign in failed", "email", req.Email, "error", err)
			authError(c, http.StatusInternalServerError, "unexpected_failure", "Unable to sign in")
			return
		}

		logger.Info("User signed in", "user_id", session.User.ID)
		c.JSON(http.StatusOK, session)

	case "refresh_token":
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			authError(c, http.StatusBadRequest, "validation_failed", "Invalid request body")
			return
		}

		session, err := ids.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidRefreshToken) {
				grantError(c, "Invalid Refresh Token: Refresh Token Not Found")
				return
			}
			logger.Error("Token refresh failed", "error", err)
			authError(c, http.StatusInternalServerError, "unexpected_failure", "Unable to refresh session")
			return
		}

		c.JSON(http.StatusOK, session)

	default:
		authError(c, http.StatusBadRequest, "unsupported_grant_type", "unsupported_grant_type")
	}
}

func handleGetUser(c *gin.Context) {
	ids := c.MustGet("identity").(*identity.Service)

	user, err := ids.GetUser(c.Request.Context(), c.GetString(middleware.ContextToken))
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			authError(c, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
			return
		}
		logger.Error("Failed to load user", "error", err)
		authError(c, http.StatusInternalServerError, "unexpected_failure", "Unable to load user")
		return
	}

	c.JSON(http.StatusOK, user)
}

// handleLogout ends the caller's sessions. scope defaults to global.
func handleLogout(c *gin.Context) {
	ids := c.MustGet("identity").(*identity.Service)

	scope := identity.Scope(c.DefaultQuery("scope", string(identity.ScopeGlobal)))
	if scope != identity.ScopeGlobal && scope != identity.ScopeLocal {
		authError(c, http.StatusBadRequest, "validation_failed", "unsupported scope")
		return
	}

	if err := ids.SignOut(c.Request.Context(), c.GetString(middleware.ContextToken), scope); err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			authError(c, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
			return
		}
		logger.Error("Sign out failed", "user_id", c.GetString(middleware.ContextUserID), "error", err)
		authError(c, http.StatusInternalServerError, "unexpected_failure", "Unable to sign out")
		return
	}

	logger.Info("User signed out", "user_id", c.GetString(middleware.ContextUserID))
	c.Status(http.StatusNoContent)
}
