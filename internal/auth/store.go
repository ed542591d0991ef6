// Package auth holds the process's view of who is signed in. A Store is
// initialized once from the backend's current session and then follows the
// backend's auth events until disposed.
package auth

import (
	"context"
	"fmt"
	"sync"

	"stockroom/internal/backend"
	"stockroom/internal/logger"
	"stockroom/internal/models"
)

type State int

const (
	Uninitialized State = iota
	Loading
	Authenticated
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	case Unauthenticated:
		return "unauthenticated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is a consistent read of the store.
type Snapshot struct {
	User    *models.User
	Loading bool
	State   State
}

type Store struct {
	auth    backend.Auth
	log     *logger.Logger
	verbose bool

	mu          sync.Mutex
	user        *models.User
	loading     bool
	state       State
	initialized bool
	observers   map[int]func(Snapshot)
	nextID      int

	// seq counts user writes so a slow lookup cannot overwrite a newer event.
	seq uint64

	// Snapshots are queued under mu in write order and delivered by one
	// goroutine at a time.
	pending  []delivery
	draining bool
}

// delivery targets observer to, or with all set every observer whose id
// is below to.
type delivery struct {
	snap Snapshot
	to   int
	all  bool
}

type Option func(*Store)

// WithVerbose logs every state transition at INFO instead of DEBUG.
func WithVerbose(verbose bool) Option {
	return func(s *Store) { s.verbose = verbose }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Store) { s.log = log }
}

func NewStore(auth backend.Auth, opts ...Option) *Store {
	s := &Store{
		auth:      auth,
		loading:   true,
		state:     Uninitialized,
		observers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.GetLogger()
	}
	return s
}

func (s *Store) trace(msg string, keysAndValues ...interface{}) {
	if s.verbose {
		s.log.Info(msg, keysAndValues...)
		return
	}
	s.log.Debug(msg, keysAndValues...)
}

// Initialize subscribes to auth events, then resolves the current session.
// An event that lands while the lookup is in flight wins over the lookup's
// result. The returned func cancels the subscription and is safe to call
// more than once. Only the first call does anything.
func (s *Store) Initialize(ctx context.Context) (dispose func()) {
	s.mu.Lock()
	if s.initialized {
		s.mu.Unlock()
		s.log.Warn("Auth store already initialized, ignoring")
		return func() {}
	}
	s.initialized = true
	s.state = Loading
	s.publishLocked()
	s.mu.Unlock()
	s.flush()

	sub := s.auth.OnAuthStateChange(s.handleEvent)

	s.resolveSession(ctx)

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Unsubscribe()
			s.trace("Auth store disposed")
		})
	}
}

func (s *Store) resolveSession(ctx context.Context) {
	defer s.finishLoading()

	s.mu.Lock()
	seen := s.seq
	s.mu.Unlock()

	session, err := s.lookup(ctx)
	if err != nil {
		s.log.Error("Error loading auth session", "error", err)
		s.mu.Lock()
		s.state = stateFor(s.user)
		s.publishLocked()
		s.mu.Unlock()
		s.flush()
		return
	}

	if session == nil {
		s.trace("No active session")
		s.write(nil, &seen)
		return
	}

	s.trace("Session restored", "user_id", session.User.ID)
	user := session.User
	s.write(&user, &seen)
}

func (s *Store) lookup(ctx context.Context) (session *models.Session, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("session lookup panicked: %v", r)
		}
	}()
	return s.auth.GetSession(ctx)
}

func (s *Store) finishLoading() {
	s.mu.Lock()
	if !s.loading {
		s.mu.Unlock()
		return
	}
	s.loading = false
	state := s.state
	s.publishLocked()
	s.mu.Unlock()

	s.trace("Auth loading finished", "state", state)
	s.flush()
}

func (s *Store) handleEvent(event models.AuthEvent, session *models.Session) {
	s.trace("Auth state changed", "event", event)
	if session == nil {
		s.setUser(nil)
		return
	}
	user := session.User
	s.setUser(&user)
}

func stateFor(user *models.User) State {
	if user == nil {
		return Unauthenticated
	}
	return Authenticated
}

// setUser publishes user. Observers are not called when nothing changed.
func (s *Store) setUser(user *models.User) {
	s.write(user, nil)
}

// write stores user. With since set, the write is dropped when another
// write has landed after since was read.
func (s *Store) write(user *models.User, since *uint64) {
	s.mu.Lock()
	if since != nil && s.seq != *since {
		s.mu.Unlock()
		s.trace("Session lookup superseded by auth event")
		return
	}
	s.seq++

	state := stateFor(user)
	if s.state == state && sameUser(s.user, user) {
		s.mu.Unlock()
		return
	}
	s.user = user
	s.state = state
	s.publishLocked()
	s.mu.Unlock()

	s.flush()
}

func sameUser(a, b *models.User) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.Email == b.Email
}

// SignOut ends the backend session. On failure the store keeps its current
// user until the backend reports a change.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.auth.SignOut(ctx); err != nil {
		s.log.Error("Error signing out", "error", err)
		return fmt.Errorf("failed to sign out: %w", err)
	}
	s.trace("Signed out")
	s.setUser(nil)
	return nil
}

// Subscribe calls fn with the current snapshot and again after every
// change, until the returned func is called. Snapshots reach fn in the
// order the changes were made.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.pending = append(s.pending, delivery{snap: s.snapshotLocked(), to: id})
	s.mu.Unlock()
	s.flush()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

func (s *Store) publishLocked() {
	s.pending = append(s.pending, delivery{snap: s.snapshotLocked(), to: s.nextID, all: true})
}

// flush delivers queued snapshots. When another goroutine is already
// delivering it takes over this goroutine's snapshots too, so observers
// may call back into the store.
func (s *Store) flush() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true
	for len(s.pending) > 0 {
		d := s.pending[0]
		s.pending = s.pending[1:]

		var fns []func(Snapshot)
		if d.all {
			fns = make([]func(Snapshot), 0, len(s.observers))
			for id, fn := range s.observers {
				if id < d.to {
					fns = append(fns, fn)
				}
			}
		} else if fn, ok := s.observers[d.to]; ok {
			fns = []func(Snapshot){fn}
		}
		s.mu.Unlock()

		for _, fn := range fns {
			s.deliver(fn, d.snap)
		}
		s.mu.Lock()
	}
	s.draining = false
	s.mu.Unlock()
}

func (s *Store) deliver(fn func(Snapshot), snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Auth observer panicked", "panic", r)
		}
	}()
	fn(snap)
}

func (s *Store) snapshotLocked() Snapshot {
	var user *models.User
	if s.user != nil {
		u := *s.user
		user = &u
	}
	return Snapshot{User: user, Loading: s.loading, State: s.state}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// User returns a copy of the signed-in user, or nil.
func (s *Store) User() *models.User {
	return s.Snapshot().User
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
