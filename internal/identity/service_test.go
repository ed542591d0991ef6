package identity

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"stockroom/internal/database"
)

func setupService(t *testing.T) *Service {
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatal("Failed to open test database:", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatal("Failed to run migrations:", err)
	}

	return NewService(db, "test-secret", time.Hour, 24*time.Hour)
}

func TestSignUpAndSignIn(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign up:", err)
	}

	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("Expected access and refresh tokens")
	}
	if session.TokenType != "bearer" {
		t.Errorf("Expected bearer token type, got %s", session.TokenType)
	}
	if session.ExpiresIn != 3600 {
		t.Errorf("Expected expires_in 3600, got %d", session.ExpiresIn)
	}
	if session.User.Email != "user@example.com" {
		t.Errorf("Expected session user email, got %s", session.User.Email)
	}

	claims, err := svc.Authenticate(ctx, session.AccessToken)
	if err != nil {
		t.Fatal("Failed to authenticate access token:", err)
	}
	if claims.Subject != session.User.ID {
		t.Errorf("Expected subject %s, got %s", session.User.ID, claims.Subject)
	}

	if _, err := svc.SignIn(ctx, "user@example.com", "nope"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}

	second, err := svc.SignIn(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign in:", err)
	}
	if second.User.ID != session.User.ID {
		t.Error("Expected sign in to resolve the same user")
	}
}

func TestSignUpValidation(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	if _, err := svc.SignUp(ctx, "not-an-email", "password123"); !errors.Is(err, ErrInvalidEmail) {
		t.Errorf("Expected ErrInvalidEmail, got %v", err)
	}
	if _, err := svc.SignUp(ctx, "user@example.com", "abc"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("Expected ErrWeakPassword, got %v", err)
	}
	if _, err := svc.SignUp(ctx, "user@example.com", "password123"); err != nil {
		t.Fatal("Failed to sign up:", err)
	}
	if _, err := svc.SignUp(ctx, "user@example.com", "password123"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("Expected ErrEmailTaken, got %v", err)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign up:", err)
	}

	refreshed, err := svc.Refresh(ctx, session.RefreshToken)
	if err != nil {
		t.Fatal("Failed to refresh:", err)
	}
	if refreshed.RefreshToken == session.RefreshToken {
		t.Error("Expected refresh token rotation")
	}
	if refreshed.User.ID != session.User.ID {
		t.Error("Expected refreshed session for the same user")
	}

	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Expected old refresh token to be rejected, got %v", err)
	}
	if _, err := svc.Refresh(ctx, ""); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Expected empty refresh token to be rejected, got %v", err)
	}
}

func TestSignOutInvalidatesAccessToken(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign up:", err)
	}

	user, err := svc.GetUser(ctx, session.AccessToken)
	if err != nil {
		t.Fatal("Failed to get user:", err)
	}
	if user.ID != session.User.ID {
		t.Errorf("Expected user %s, got %s", session.User.ID, user.ID)
	}

	if err := svc.SignOut(ctx, session.AccessToken, ScopeLocal); err != nil {
		t.Fatal("Failed to sign out:", err)
	}

	if _, err := svc.Authenticate(ctx, session.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken after sign out, got %v", err)
	}
	if _, err := svc.Refresh(ctx, session.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Expected refresh after sign out to fail, got %v", err)
	}
}

func TestAuthenticateRejectsForeignSignature(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign up:", err)
	}

	other := NewService((*sql.DB)(nil), "other-secret", time.Hour, time.Hour)
	if _, err := other.signer.parse(session.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}
	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken for garbage, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	session, err := svc.SignUp(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign up:", err)
	}

	if _, err := svc.UpdatePassword(ctx, session.AccessToken, "123"); !errors.Is(err, ErrWeakPassword) {
		t.Errorf("Expected ErrWeakPassword, got %v", err)
	}
	if _, err := svc.UpdatePassword(ctx, "garbage", "new-password"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}

	user, err := svc.UpdatePassword(ctx, session.AccessToken, "new-password")
	if err != nil {
		t.Fatal("Failed to update password:", err)
	}
	if user.ID != session.User.ID {
		t.Errorf("Expected user %s, got %s", session.User.ID, user.ID)
	}

	if _, err := svc.SignIn(ctx, "user@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected old password to be rejected, got %v", err)
	}
	if _, err := svc.SignIn(ctx, "user@example.com", "new-password"); err != nil {
		t.Errorf("Expected new password to work, got %v", err)
	}
}

func TestGlobalSignOutEndsEverySession(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	first, err := svc.SignUp(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign up:", err)
	}
	second, err := svc.SignIn(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign in:", err)
	}

	if err := svc.SignOut(ctx, first.AccessToken, ScopeLocal); err != nil {
		t.Fatal("Failed to sign out:", err)
	}
	if _, err := svc.Authenticate(ctx, second.AccessToken); err != nil {
		t.Errorf("Expected local sign out to keep the other session, got %v", err)
	}

	third, err := svc.SignIn(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatal("Failed to sign in:", err)
	}
	if err := svc.SignOut(ctx, third.AccessToken, ScopeGlobal); err != nil {
		t.Fatal("Failed to sign out:", err)
	}
	if _, err := svc.Authenticate(ctx, second.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Expected global sign out to end the other session, got %v", err)
	}
	if _, err := svc.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Errorf("Expected refresh after global sign out to fail, got %v", err)
	}
}
