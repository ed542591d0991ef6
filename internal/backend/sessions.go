package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"stockroom/internal/logger"
	"stockroom/internal/models"
)

const (
	refreshMargin  = 60 * time.Second
	retryInterval  = 10 * time.Second
	minRefreshWait = time.Second
)

// RefreshFunc exchanges a refresh token for a new session.
type RefreshFunc func(ctx context.Context, refreshToken string) (*models.Session, error)

// SessionKeeper holds the client's current session, persists it when a path
// is configured, and publishes every change through its Emitter.
type SessionKeeper struct {
	mu      sync.Mutex
	session *models.Session
	path    string
	emitter *Emitter
	log     *logger.Logger

	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSessionKeeper restores a persisted session from path when it exists.
// An empty path keeps the session in memory only.
func NewSessionKeeper(path string, log *logger.Logger) *SessionKeeper {
	if log == nil {
		log = logger.GetLogger()
	}
	k := &SessionKeeper{
		path:    path,
		emitter: NewEmitter(),
		log:     log,
		wake:    make(chan struct{}, 1),
	}
	if path != "" {
		session, err := readSessionFile(path)
		if err != nil {
			log.Warn("Ignoring unreadable session file", "path", path, "error", err)
		}
		k.session = session
	}
	return k
}

func readSessionFile(path string) (*models.Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session file: %w", err)
	}
	if session.AccessToken == "" {
		return nil, nil
	}
	return &session, nil
}

func (k *SessionKeeper) persist(session *models.Session) error {
	if k.path == "" {
		return nil
	}
	if session == nil {
		if err := os.Remove(k.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(k.path), 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// Current returns a copy of the session, or nil.
func (k *SessionKeeper) Current() *models.Session {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.session == nil {
		return nil
	}
	s := *k.session
	return &s
}

// Set replaces the session and emits event. A nil session clears it.
func (k *SessionKeeper) Set(event models.AuthEvent, session *models.Session) {
	k.update(event, session, "")
}

// update stores session and emits event. A non-empty exchanged refresh
// token makes the write conditional: it is dropped unless the held session
// still carries that token.
func (k *SessionKeeper) update(event models.AuthEvent, session *models.Session, exchanged string) bool {
	var stored *models.Session
	if session != nil {
		s := *session
		stored = &s
	}

	k.mu.Lock()
	if exchanged != "" && (k.session == nil || k.session.RefreshToken != exchanged) {
		k.mu.Unlock()
		return false
	}
	k.session = stored
	if err := k.persist(stored); err != nil {
		k.log.Warn("Failed to persist session", "error", err)
	}
	var emitted *models.Session
	if stored != nil {
		s := *stored
		emitted = &s
	}
	k.mu.Unlock()

	select {
	case k.wake <- struct{}{}:
	default:
	}

	k.emitter.Emit(event, emitted)
	return true
}

func (k *SessionKeeper) Clear(event models.AuthEvent) {
	k.Set(event, nil)
}

func (k *SessionKeeper) Subscribe(fn Listener) Subscription {
	return k.emitter.Subscribe(fn)
}

// Refresh exchanges the current refresh token. When the backend rejects the
// token the session is cleared and SESSION_EXPIRED is emitted. If the
// session was signed out or replaced while the exchange was in flight, the
// result is discarded and the session held now is returned.
func (k *SessionKeeper) Refresh(ctx context.Context, refresh RefreshFunc) (*models.Session, error) {
	current := k.Current()
	if current == nil || current.RefreshToken == "" {
		return nil, nil
	}

	session, err := refresh(ctx, current.RefreshToken)
	if err != nil {
		if isTerminal(err) && k.update(models.EventSessionExpired, nil, current.RefreshToken) {
			k.log.Info("Refresh token rejected, clearing session", "error", err)
		}
		return nil, err
	}

	if !k.update(models.EventTokenRefreshed, session, current.RefreshToken) {
		k.log.Debug("Discarding refresh for a session that changed meanwhile")
	}
	return k.Current(), nil
}

func isTerminal(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500
	}
	return false
}

// StartAutoRefresh refreshes the session shortly before it expires until
// Close is called. Calling it twice has no effect.
func (k *SessionKeeper) StartAutoRefresh(refresh RefreshFunc) {
	k.mu.Lock()
	if k.cancel != nil {
		k.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	k.cancel = cancel
	k.done = make(chan struct{})
	k.mu.Unlock()

	go k.refreshLoop(ctx, refresh)
}

func (k *SessionKeeper) refreshLoop(ctx context.Context, refresh RefreshFunc) {
	defer close(k.done)

	var retryAt, lastRefresh time.Time
	for {
		var fire <-chan time.Time
		var timer *time.Timer

		if s := k.Current(); s != nil && s.RefreshToken != "" && s.ExpiresAt != 0 {
			due := time.Unix(s.ExpiresAt, 0).Add(-refreshMargin)
			if retryAt.After(due) {
				due = retryAt
			}
			if floor := lastRefresh.Add(minRefreshWait); floor.After(due) {
				due = floor
			}
			wait := time.Until(due)
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-k.wake:
			if timer != nil {
				timer.Stop()
			}
			retryAt = time.Time{}
		case <-fire:
			lastRefresh = time.Now()
			if _, err := k.Refresh(ctx, refresh); err != nil {
				if ctx.Err() != nil {
					return
				}
				k.log.Warn("Automatic token refresh failed", "error", err)
				retryAt = time.Now().Add(retryInterval)
				continue
			}
			retryAt = time.Time{}
		}
	}
}

// Close stops automatic refresh and waits for the loop to exit.
func (k *SessionKeeper) Close() {
	k.mu.Lock()
	cancel, done := k.cancel, k.done
	k.cancel = nil
	k.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}
