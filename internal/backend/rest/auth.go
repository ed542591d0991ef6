package rest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stockroom/internal/backend"
	"stockroom/internal/models"

	"github.com/supabase-community/gotrue-go/types"
)

// ErrConfirmationRequired is returned by SignUp when the project requires
// the address to be confirmed before a session is issued.
var ErrConfirmationRequired = errors.New("email confirmation required before sign in")

// ErrNoSession is returned by calls that need a signed-in user.
var ErrNoSession = errors.New("no active session")

func toUser(u types.User) models.User {
	return models.User{
		ID:        u.ID.String(),
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toSession(s types.Session) *models.Session {
	session := &models.Session{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		ExpiresIn:    s.ExpiresIn,
		ExpiresAt:    s.ExpiresAt,
		RefreshToken: s.RefreshToken,
		User:         toUser(s.User),
	}
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
	return session
}

// The GoTrue client takes no context, so cancellation is only honoured
// before a call starts.

func (c *Client) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.auth.Signup(types.SignupRequest{Email: email, Password: password})
	if err != nil {
		return nil, authError(err)
	}
	if resp.Session.AccessToken == "" {
		return nil, ErrConfirmationRequired
	}

	c.sessions.Set(models.EventSignedIn, toSession(resp.Session))
	return c.sessions.Current(), nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.auth.SignInWithEmailPassword(email, password)
	if err != nil {
		return nil, authError(err)
	}

	c.sessions.Set(models.EventSignedIn, toSession(resp.Session))
	return c.sessions.Current(), nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.auth.RefreshToken(refreshToken)
	if err != nil {
		return nil, authError(err)
	}
	return toSession(resp.Session), nil
}

// RefreshSession exchanges the refresh token now. It returns nil when there
// is no session to refresh.
func (c *Client) RefreshSession(ctx context.Context) (*models.Session, error) {
	return c.sessions.Refresh(ctx, c.refresh)
}

// GetSession returns the current session, refreshing it first when the
// access token has expired. A rejected refresh token ends the session and
// yields nil without an error.
func (c *Client) GetSession(ctx context.Context) (*models.Session, error) {
	session := c.sessions.Current()
	if session == nil || !session.Expired(time.Now()) {
		return session, nil
	}

	refreshed, err := c.sessions.Refresh(ctx, c.refresh)
	if err != nil {
		if c.sessions.Current() == nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to refresh session: %w", err)
	}
	return refreshed, nil
}

func (c *Client) signedIn(ctx context.Context) (*models.Session, error) {
	session, err := c.GetSession(ctx)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrNoSession
	}
	return session, nil
}

// GetUser fetches the signed-in user from the auth service.
func (c *Client) GetUser(ctx context.Context) (*models.User, error) {
	session, err := c.signedIn(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.auth.WithToken(session.AccessToken).GetUser()
	if err != nil {
		return nil, authError(err)
	}
	user := toUser(resp.User)
	return &user, nil
}

// UpdatePassword changes the signed-in user's password and emits
// USER_UPDATED.
func (c *Client) UpdatePassword(ctx context.Context, password string) (*models.User, error) {
	session, err := c.signedIn(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.auth.WithToken(session.AccessToken).UpdateUser(types.UpdateUserRequest{Password: &password})
	if err != nil {
		return nil, authError(err)
	}

	user := toUser(resp.User)
	session.User = user
	c.sessions.Set(models.EventUserUpdated, session)
	return &user, nil
}

// SignOut ends the session on the server, then locally. When the server
// call fails the local session is kept, unless the server no longer
// recognises the token.
func (c *Client) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if session := c.sessions.Current(); session != nil {
		err := c.auth.WithToken(session.AccessToken).Logout()
		if err != nil {
			if err := authError(err); !backend.IsAuthError(err) {
				return fmt.Errorf("failed to sign out: %w", err)
			}
		}
	}

	c.sessions.Clear(models.EventSignedOut)
	return nil
}

func (c *Client) OnAuthStateChange(fn backend.Listener) backend.Subscription {
	return c.sessions.Subscribe(fn)
}
