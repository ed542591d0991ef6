package handlers

import (
	"errors"
	"net/http"

	"stockroom/internal/identity"
	"stockroom/internal/logger"
	"stockroom/internal/middleware"

	"github.com/gin-gonic/gin"
)

type updateUserRequest struct {
	Password string `json:"password"`
}

// handleUpdateUser changes the caller's password. Other attributes are not
// updatable.
func handleUpdateUser(c *gin.Context) {
	ids := c.MustGet("identity").(*identity.Service)
	userID := c.GetString(middleware.ContextUserID)

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		authError(c, http.StatusBadRequest, "validation_failed", "Invalid request body")
		return
	}
	if req.Password == "" {
		authError(c, http.StatusBadRequest, "validation_failed", "Nothing to update")
		return
	}

	user, err := ids.UpdatePassword(c.Request.Context(), c.GetString(middleware.ContextToken), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrWeakPassword):
			authError(c, http.StatusUnprocessableEntity, "weak_password", err.Error())
		case errors.Is(err, identity.ErrInvalidToken):
			authError(c, http.StatusUnauthorized, "bad_jwt", "invalid JWT")
		default:
			logger.Error("Failed to update password", "user_id", userID, "error", err)
			authError(c, http.StatusInternalServerError, "unexpected_failure", "Failed to update password")
		}
		return
	}

	logger.Info("Password updated", "user_id", userID)
	c.JSON(http.StatusOK, user)
}
