// Package local implements the backend contract in process over the SQLite
// store, for development and tests. Access is trusted: there is no row
// ownership policy, callers act with service-role rights.
package local

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stockroom/internal/backend"
	"stockroom/internal/database"
	"stockroom/internal/identity"
	"stockroom/internal/logger"
	"stockroom/internal/models"
)

type Backend struct {
	db       *sql.DB
	ids      *identity.Service
	sessions *backend.SessionKeeper
}

var _ backend.Client = (*Backend)(nil)

func New(db *sql.DB, ids *identity.Service) *Backend {
	return &Backend{
		db:       db,
		ids:      ids,
		sessions: backend.NewSessionKeeper("", logger.GetLogger()),
	}
}

func (b *Backend) ListInventory(ctx context.Context, userID string) ([]models.InventoryItem, error) {
	return database.ListInventoryItems(ctx, b.db, userID)
}

func (b *Backend) InsertInventory(ctx context.Context, item models.NewInventoryItem) (*models.InventoryItem, error) {
	if strings.TrimSpace(item.Name) == "" {
		return nil, &backend.APIError{Status: http.StatusBadRequest, Code: "23502", Message: `null value in column "name" violates not-null constraint`}
	}
	return database.CreateInventoryItem(ctx, b.db, item)
}

func (b *Backend) DeleteInventory(ctx context.Context, id int64) error {
	_, err := database.DeleteInventoryItem(ctx, b.db, id, "")
	return err
}

func (b *Backend) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	session, err := b.ids.SignUp(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign up: %w", err)
	}
	b.sessions.Set(models.EventSignedIn, session)
	return b.sessions.Current(), nil
}

func (b *Backend) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	session, err := b.ids.SignIn(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	b.sessions.Set(models.EventSignedIn, session)
	return b.sessions.Current(), nil
}

// GetSession returns the current session, rotating it when the access token
// has expired. An unusable refresh token ends the session.
func (b *Backend) GetSession(ctx context.Context) (*models.Session, error) {
	session := b.sessions.Current()
	if session == nil || !session.Expired(time.Now()) {
		return session, nil
	}

	refreshed, err := b.sessions.Refresh(ctx, b.refresh)
	if err != nil {
		if b.sessions.Current() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return refreshed, nil
}

// refresh maps identity failures onto the APIError shape the session keeper
// treats as terminal.
func (b *Backend) refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	session, err := b.ids.Refresh(ctx, refreshToken)
	if errors.Is(err, identity.ErrInvalidRefreshToken) {
		return nil, &backend.APIError{Status: http.StatusBadRequest, Code: "invalid_grant", Message: err.Error()}
	}
	return session, err
}

// RefreshSession exchanges the refresh token now. It returns nil when there
// is no session to refresh.
func (b *Backend) RefreshSession(ctx context.Context) (*models.Session, error) {
	return b.sessions.Refresh(ctx, b.refresh)
}

func (b *Backend) UpdatePassword(ctx context.Context, password string) (*models.User, error) {
	session, err := b.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, errors.New("no active session")
	}

	user, err := b.ids.UpdatePassword(ctx, session.AccessToken, password)
	if err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}

	session.User = *user
	b.sessions.Set(models.EventUserUpdated, session)
	return user, nil
}

func (b *Backend) SignOut(ctx context.Context) error {
	if session := b.sessions.Current(); session != nil {
		err := b.ids.SignOut(ctx, session.AccessToken, identity.ScopeGlobal)
		if err != nil && !errors.Is(err, identity.ErrInvalidToken) {
			return fmt.Errorf("failed to sign out: %w", err)
		}
	}
	b.sessions.Clear(models.EventSignedOut)
	return nil
}

func (b *Backend) OnAuthStateChange(fn backend.Listener) backend.Subscription {
	return b.sessions.Subscribe(fn)
}
