// Package backend defines the contract between the inventory and auth core
// and the hosted backend service, plus the pieces every implementation
// shares: the auth event hub and the client-side session keeper.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"stockroom/internal/models"
)

// InventoryStore is the keyed-collection capability over the inventory table.
type InventoryStore interface {
	// ListInventory returns the rows owned by userID, newest first.
	ListInventory(ctx context.Context, userID string) ([]models.InventoryItem, error)
	// InsertInventory stores a new row and returns it fully populated.
	InsertInventory(ctx context.Context, item models.NewInventoryItem) (*models.InventoryItem, error)
	DeleteInventory(ctx context.Context, id int64) error
}

// Listener receives auth state changes. session is nil when signed out.
type Listener func(event models.AuthEvent, session *models.Session)

// Subscription cancels future event delivery.
type Subscription interface {
	Unsubscribe()
}

// Auth is the session capability of the backend.
type Auth interface {
	// GetSession returns the current session, or nil when unauthenticated.
	GetSession(ctx context.Context) (*models.Session, error)
	SignOut(ctx context.Context) error
	OnAuthStateChange(fn Listener) Subscription
}

// Client is everything the core needs from the backend.
type Client interface {
	InventoryStore
	Auth
}

// APIError is a failure reported by the backend service.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend error %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

// IsAuthError reports whether err means the credentials were rejected, as
// opposed to a transport or server failure.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden {
		return true
	}
	return apiErr.Code == "invalid_grant" || apiErr.Code == "refresh_token_not_found"
}
