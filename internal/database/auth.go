package database

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockroom/internal/logger"
	"stockroom/internal/models"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken         = errors.New("user already registered")
	ErrInvalidCredentials = errors.New("invalid login credentials")
)

func GetUserByID(ctx context.Context, db *sql.DB, userID string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	err := db.QueryRowContext(ctx, query, userID).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	return user, nil
}

func CreateUser(ctx context.Context, db *sql.DB, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	var exists int
	err = db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", email).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailTaken
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	query := `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = db.ExecContext(ctx, query, user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

func AuthenticateUser(ctx context.Context, db *sql.DB, email, password string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = ?
	`

	err := db.QueryRowContext(ctx, query, strings.ToLower(strings.TrimSpace(email))).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	_, err = db.ExecContext(ctx, `UPDATE users SET last_sign_in_at = ? WHERE id = ?`, time.Now().UTC(), user.ID)
	if err != nil {
		// Log but don't fail the sign in if we can't record it
		logger.Warn("Failed to update last_sign_in_at",
			"user_id", user.ID,
			"error", err)
	}

	return user, nil
}

// UpdatePassword replaces the user's password hash and returns the updated
// user.
func UpdatePassword(ctx context.Context, db *sql.DB, userID, newPassword string) (*models.User, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := db.ExecContext(ctx, "UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?",
		string(hashedPassword), time.Now().UTC(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to update password: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	return GetUserByID(ctx, db, userID)
}

// CreateSession stores a new refresh token for userID.
func CreateSession(ctx context.Context, db *sql.DB, userID string, sessionDuration time.Duration) (*models.RefreshRecord, error) {
	token, err := generateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	record := &models.RefreshRecord{
		ID:        uuid.New().String(),
		Token:     token,
		UserID:    userID,
		ExpiresAt: now.Add(sessionDuration),
		CreatedAt: now,
	}

	query := `
		INSERT INTO sessions (id, token, user_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err = db.ExecContext(ctx, query, record.ID, record.Token, record.UserID, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return record, nil
}

// RotateSession swaps a valid refresh token for a new one on the same
// session. The old token stops working.
func RotateSession(ctx context.Context, db *sql.DB, token string, sessionDuration time.Duration) (*models.RefreshRecord, error) {
	record := &models.RefreshRecord{}
	query := `
		SELECT id, user_id, created_at
		FROM sessions
		WHERE token = ? AND expires_at > ?
	`

	err := db.QueryRowContext(ctx, query, token, time.Now().UTC()).Scan(&record.ID, &record.UserID, &record.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to validate session: %w", err)
	}

	newToken, err := generateSecureToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	record.Token = newToken
	record.ExpiresAt = time.Now().UTC().Add(sessionDuration)

	result, err := db.ExecContext(ctx,
		`UPDATE sessions SET token = ?, expires_at = ? WHERE id = ? AND token = ?`,
		record.Token, record.ExpiresAt, record.ID, token)
	if err != nil {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		// Rotated concurrently by another refresh.
		return nil, ErrNotFound
	}

	return record, nil
}

// SessionActive reports whether the session with id still exists and has
// not expired.
func SessionActive(ctx context.Context, db *sql.DB, sessionID string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sessions WHERE id = ? AND expires_at > ?`,
		sessionID, time.Now().UTC()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check session: %w", err)
	}
	return exists > 0, nil
}

func DeleteSession(ctx context.Context, db *sql.DB, sessionID string) error {
	query := `DELETE FROM sessions WHERE id = ?`
	_, err := db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions revokes every refresh token of userID.
func DeleteUserSessions(ctx context.Context, db *sql.DB, userID string) error {
	query := `DELETE FROM sessions WHERE user_id = ?`
	_, err := db.ExecContext(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}
	return nil
}

func CleanupExpiredSessions(ctx context.Context, db *sql.DB) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < ?`
	result, err := db.ExecContext(ctx, query, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}

func generateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
