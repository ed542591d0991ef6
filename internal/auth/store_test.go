package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"stockroom/internal/backend"
	"stockroom/internal/backend/local"
	"stockroom/internal/database"
	"stockroom/internal/identity"
	"stockroom/internal/logger"
	"stockroom/internal/models"
)

type fakeAuth struct {
	session    *models.Session
	err        error
	panics     bool
	signOutErr error
	duringGet  func()
	emitter    *backend.Emitter

	mu     sync.Mutex
	active int
}

func newFakeAuth() *fakeAuth {
	return &fakeAuth{emitter: backend.NewEmitter()}
}

func (f *fakeAuth) GetSession(ctx context.Context) (*models.Session, error) {
	if f.panics {
		panic("lookup exploded")
	}
	if f.duringGet != nil {
		f.duringGet()
	}
	return f.session, f.err
}

func (f *fakeAuth) SignOut(ctx context.Context) error {
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.emitter.Emit(models.EventSignedOut, nil)
	return nil
}

func (f *fakeAuth) OnAuthStateChange(fn backend.Listener) backend.Subscription {
	f.mu.Lock()
	f.active++
	f.mu.Unlock()
	return &countedSubscription{inner: f.emitter.Subscribe(fn), auth: f}
}

func (f *fakeAuth) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

type countedSubscription struct {
	once  sync.Once
	inner backend.Subscription
	auth  *fakeAuth
}

func (s *countedSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.inner.Unsubscribe()
		s.auth.mu.Lock()
		s.auth.active--
		s.auth.mu.Unlock()
	})
}

func sessionFor(email string) *models.Session {
	return &models.Session{
		AccessToken: "token",
		User:        models.User{ID: "user-" + email, Email: email},
	}
}

// snapshots collects everything an observer sees.
type snapshots struct {
	mu   sync.Mutex
	seen []Snapshot
}

func (s *snapshots) observe(snap Snapshot) {
	s.mu.Lock()
	s.seen = append(s.seen, snap)
	s.mu.Unlock()
}

func (s *snapshots) loadingCleared() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := 1; i < len(s.seen); i++ {
		if s.seen[i-1].Loading && !s.seen[i].Loading {
			count++
		}
	}
	return count
}

func newTestStore(auth backend.Auth, opts ...Option) (*Store, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	opts = append([]Option{WithLogger(logger.New(buf, logger.DEBUG, false))}, opts...)
	return NewStore(auth, opts...), buf
}

func TestNewStoreDefaults(t *testing.T) {
	store, _ := newTestStore(newFakeAuth())

	if store.User() != nil || !store.Loading() || store.State() != Uninitialized {
		t.Errorf("Unexpected initial state: %+v", store.Snapshot())
	}
}

func TestInitializeWithSession(t *testing.T) {
	auth := newFakeAuth()
	auth.session = sessionFor("user@example.com")
	store, _ := newTestStore(auth)

	seen := &snapshots{}
	unsubscribe := store.Subscribe(seen.observe)
	defer unsubscribe()

	dispose := store.Initialize(context.Background())
	defer dispose()

	user := store.User()
	if user == nil || user.Email != "user@example.com" {
		t.Fatalf("Expected user@example.com, got %+v", user)
	}
	if store.Loading() || store.State() != Authenticated {
		t.Errorf("Expected authenticated and not loading, got %+v", store.Snapshot())
	}

	auth.emitter.Emit(models.EventSignedOut, nil)

	if store.User() != nil || store.State() != Unauthenticated {
		t.Errorf("Expected sign out event to clear user, got %+v", store.Snapshot())
	}
	if store.Loading() {
		t.Error("Expected events to leave loading untouched")
	}

	auth.emitter.Emit(models.EventSignedIn, sessionFor("other@example.com"))
	if user := store.User(); user == nil || user.Email != "other@example.com" {
		t.Errorf("Expected other@example.com after sign in event, got %+v", user)
	}

	if n := seen.loadingCleared(); n != 1 {
		t.Errorf("Expected loading to clear exactly once, got %d", n)
	}
}

func TestInitializeWithoutSession(t *testing.T) {
	store, _ := newTestStore(newFakeAuth())

	dispose := store.Initialize(context.Background())
	defer dispose()

	if store.User() != nil || store.Loading() || store.State() != Unauthenticated {
		t.Errorf("Expected unauthenticated, got %+v", store.Snapshot())
	}
}

func TestInitializeLookupFailure(t *testing.T) {
	auth := newFakeAuth()
	auth.err = errors.New("network down")
	store, buf := newTestStore(auth)

	seen := &snapshots{}
	store.Subscribe(seen.observe)

	dispose := store.Initialize(context.Background())
	defer dispose()

	if store.Loading() {
		t.Error("Expected loading to clear after a failed lookup")
	}
	if store.User() != nil || store.State() != Unauthenticated {
		t.Errorf("Expected no user, got %+v", store.Snapshot())
	}
	if !strings.Contains(buf.String(), "[ERROR] Error loading auth session") {
		t.Errorf("Expected lookup failure to be logged, got %q", buf.String())
	}
	if n := seen.loadingCleared(); n != 1 {
		t.Errorf("Expected loading to clear exactly once, got %d", n)
	}

	// Still subscribed after a failed lookup.
	auth.emitter.Emit(models.EventSignedIn, sessionFor("late@example.com"))
	if store.State() != Authenticated {
		t.Errorf("Expected later events to be followed, got %+v", store.Snapshot())
	}
}

func TestEventDuringLookupWins(t *testing.T) {
	auth := newFakeAuth()
	auth.duringGet = func() {
		auth.emitter.Emit(models.EventSignedIn, sessionFor("late@example.com"))
	}
	store, _ := newTestStore(auth)

	dispose := store.Initialize(context.Background())
	defer dispose()

	user := store.User()
	if user == nil || user.Email != "late@example.com" || store.State() != Authenticated {
		t.Errorf("Expected the sign in during lookup to stick, got %+v", store.Snapshot())
	}
	if store.Loading() {
		t.Error("Expected loading to clear")
	}
}

func TestObserverSeesChangesInOrder(t *testing.T) {
	auth := newFakeAuth()
	auth.session = sessionFor("user@example.com")
	store, _ := newTestStore(auth)

	dispose := store.Initialize(context.Background())
	defer dispose()

	// The first observer signs in someone else from inside its callback, so
	// the nested change is queued behind the one being delivered.
	nested := false
	store.Subscribe(func(snap Snapshot) {
		if snap.State == Unauthenticated && !nested {
			nested = true
			auth.emitter.Emit(models.EventSignedIn, sessionFor("next@example.com"))
		}
	})

	seen := &snapshots{}
	store.Subscribe(seen.observe)

	auth.emitter.Emit(models.EventSignedOut, nil)

	seen.mu.Lock()
	defer seen.mu.Unlock()
	last := seen.seen[len(seen.seen)-1]
	if last.User == nil || last.User.Email != "next@example.com" {
		t.Fatalf("Expected the newest snapshot last, got %+v", seen.seen)
	}
	if len(seen.seen) != 3 || seen.seen[1].State != Unauthenticated {
		t.Errorf("Expected current, signed out, then signed in, got %+v", seen.seen)
	}
}

func TestInitializeRecoversPanic(t *testing.T) {
	auth := newFakeAuth()
	auth.panics = true
	store, buf := newTestStore(auth)

	dispose := store.Initialize(context.Background())
	defer dispose()

	if store.Loading() {
		t.Error("Expected loading to clear after a panicking lookup")
	}
	if !strings.Contains(buf.String(), "panicked") {
		t.Errorf("Expected panic to be logged, got %q", buf.String())
	}
}

func TestDisposeStopsEvents(t *testing.T) {
	auth := newFakeAuth()
	auth.session = sessionFor("user@example.com")
	store, _ := newTestStore(auth)

	dispose := store.Initialize(context.Background())
	if auth.listeners() != 1 {
		t.Fatalf("Expected one listener, got %d", auth.listeners())
	}

	dispose()
	dispose()

	if auth.listeners() != 0 {
		t.Errorf("Expected listener to be removed, got %d", auth.listeners())
	}

	auth.emitter.Emit(models.EventSignedOut, nil)
	if store.User() == nil {
		t.Error("Expected disposed store to ignore events")
	}
}

func TestSecondInitializeIsNoop(t *testing.T) {
	auth := newFakeAuth()
	store, buf := newTestStore(auth)

	dispose := store.Initialize(context.Background())
	defer dispose()

	second := store.Initialize(context.Background())
	second()

	if auth.listeners() != 1 {
		t.Errorf("Expected a single subscription, got %d", auth.listeners())
	}
	if !strings.Contains(buf.String(), "already initialized") {
		t.Errorf("Expected a warning, got %q", buf.String())
	}
}

func TestSignOut(t *testing.T) {
	auth := newFakeAuth()
	auth.session = sessionFor("user@example.com")
	store, _ := newTestStore(auth)

	dispose := store.Initialize(context.Background())
	defer dispose()

	auth.signOutErr = errors.New("backend unavailable")
	if err := store.SignOut(context.Background()); err == nil {
		t.Fatal("Expected sign out failure to be returned")
	}
	if store.User() == nil || store.State() != Authenticated {
		t.Errorf("Expected state unchanged after failed sign out, got %+v", store.Snapshot())
	}

	auth.signOutErr = nil
	if err := store.SignOut(context.Background()); err != nil {
		t.Fatal("Failed to sign out:", err)
	}
	if store.User() != nil || store.State() != Unauthenticated {
		t.Errorf("Expected no user after sign out, got %+v", store.Snapshot())
	}
}

func TestSubscribeReceivesCurrentSnapshot(t *testing.T) {
	store, _ := newTestStore(newFakeAuth())

	seen := &snapshots{}
	unsubscribe := store.Subscribe(seen.observe)

	if len(seen.seen) != 1 || seen.seen[0].State != Uninitialized || !seen.seen[0].Loading {
		t.Fatalf("Expected the initial snapshot, got %+v", seen.seen)
	}

	unsubscribe()
	dispose := store.Initialize(context.Background())
	defer dispose()

	if len(seen.seen) != 1 {
		t.Errorf("Expected no notifications after unsubscribe, got %+v", seen.seen)
	}
}

func TestVerboseLogging(t *testing.T) {
	buf := &bytes.Buffer{}
	store := NewStore(newFakeAuth(), WithVerbose(true), WithLogger(logger.New(buf, logger.INFO, false)))

	dispose := store.Initialize(context.Background())
	defer dispose()

	if !strings.Contains(buf.String(), "[INFO] Auth loading finished") {
		t.Errorf("Expected transitions at INFO, got %q", buf.String())
	}

	quiet := &bytes.Buffer{}
	store = NewStore(newFakeAuth(), WithLogger(logger.New(quiet, logger.INFO, false)))
	store.Initialize(context.Background())()

	if quiet.Len() != 0 {
		t.Errorf("Expected no INFO output without verbose, got %q", quiet.String())
	}
}

func TestStoreFollowsLocalBackend(t *testing.T) {
	db, err := database.Initialize(":memory:")
	if err != nil {
		t.Fatal("Failed to open test database:", err)
	}
	defer db.Close()
	if err := database.Migrate(db); err != nil {
		t.Fatal("Failed to run migrations:", err)
	}

	b := local.New(db, identity.NewService(db, "test-secret", time.Hour, time.Hour))
	store, _ := newTestStore(b)

	dispose := store.Initialize(context.Background())
	defer dispose()

	if store.State() != Unauthenticated {
		t.Fatalf("Expected unauthenticated, got %s", store.State())
	}

	if _, err := b.SignUp(context.Background(), "user@example.com", "password123"); err != nil {
		t.Fatal("Failed to sign up:", err)
	}
	if user := store.User(); user == nil || user.Email != "user@example.com" {
		t.Errorf("Expected store to follow sign up, got %+v", user)
	}

	if err := store.SignOut(context.Background()); err != nil {
		t.Fatal("Failed to sign out:", err)
	}
	if store.User() != nil {
		t.Error("Expected no user after sign out")
	}
}
