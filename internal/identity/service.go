// Package identity issues and validates sessions for the dev backend: short
// lived HS256 access tokens plus rotating refresh tokens stored in SQLite.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"stockroom/internal/database"
	"stockroom/internal/models"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials  = database.ErrInvalidCredentials
	ErrEmailTaken          = database.ErrEmailTaken
	ErrInvalidEmail        = errors.New("unable to validate email address")
	ErrWeakPassword        = fmt.Errorf("password should be at least %d characters", minPasswordLength)
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

type Service struct {
	db         *sql.DB
	signer     signer
	refreshTTL time.Duration
}

func NewService(db *sql.DB, secret string, accessTTL, refreshTTL time.Duration) *Service {
	return &Service{
		db:         db,
		signer:     signer{secret: []byte(secret), ttl: accessTTL},
		refreshTTL: refreshTTL,
	}
}

func (s *Service) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	user, err := database.CreateUser(ctx, s.db, email, password)
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	user, err := database.AuthenticateUser(ctx, s.db, email, password)
	if err != nil {
		return nil, err
	}

	return s.startSession(ctx, user)
}

func (s *Service) startSession(ctx context.Context, user *models.User) (*models.Session, error) {
	record, err := database.CreateSession(ctx, s.db, user.ID, s.refreshTTL)
	if err != nil {
		return nil, err
	}
	return s.buildSession(user, record)
}

func (s *Service) buildSession(user *models.User, record *models.RefreshRecord) (*models.Session, error) {
	now := time.Now()
	accessToken, expiresAt, err := s.signer.issue(user.ID, user.Email, record.ID, now)
	if err != nil {
		return nil, err
	}

	return &models.Session{
		AccessToken:  accessToken,
		TokenType:    "bearer",
		ExpiresIn:    int(expiresAt.Sub(now).Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: record.Token,
		User:         *user,
	}, nil
}

// Refresh rotates refreshToken and issues a new access token for the same
// session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}

	record, err := database.RotateSession(ctx, s.db, refreshToken, s.refreshTTL)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	user, err := database.GetUserByID(ctx, s.db, record.UserID)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	return s.buildSession(user, record)
}

// Authenticate validates an access token and checks that its session has
// not been signed out.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*Claims, error) {
	claims, err := s.signer.parse(accessToken)
	if err != nil {
		return nil, err
	}

	active, err := database.SessionActive(ctx, s.db, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

func (s *Service) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := database.GetUserByID(ctx, s.db, claims.Subject)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// UpdatePassword changes the password of the user behind accessToken.
// Existing sessions stay valid.
func (s *Service) UpdatePassword(ctx context.Context, accessToken, password string) (*models.User, error) {
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	user, err := database.UpdatePassword(ctx, s.db, claims.Subject, password)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

// Scope selects which sessions a sign out ends.
type Scope string

const (
	// ScopeGlobal ends every session of the user.
	ScopeGlobal Scope = "global"
	// ScopeLocal ends only the session behind the access token.
	ScopeLocal Scope = "local"
)

// SignOut ends the session behind accessToken, or with ScopeGlobal all of
// the user's sessions.
func (s *Service) SignOut(ctx context.Context, accessToken string, scope Scope) error {
	claims, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if scope == ScopeGlobal {
		return database.DeleteUserSessions(ctx, s.db, claims.Subject)
	}
	return database.DeleteSession(ctx, s.db, claims.SessionID)
}
