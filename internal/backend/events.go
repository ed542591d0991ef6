package backend

import (
	"sync"

	"stockroom/internal/models"

	"github.com/google/uuid"
)

// Emitter fans auth events out to subscribed listeners.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[uuid.UUID]Listener
}

func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[uuid.UUID]Listener)}
}

type subscription struct {
	once    sync.Once
	emitter *Emitter
	id      uuid.UUID
}

func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.emitter.mu.Lock()
		delete(s.emitter.listeners, s.id)
		s.emitter.mu.Unlock()
	})
}

func (e *Emitter) Subscribe(fn Listener) Subscription {
	id := uuid.New()
	e.mu.Lock()
	e.listeners[id] = fn
	e.mu.Unlock()
	return &subscription{emitter: e, id: id}
}

// Emit delivers synchronously on the caller's goroutine. Listeners run
// outside the lock so they may unsubscribe themselves.
func (e *Emitter) Emit(event models.AuthEvent, session *models.Session) {
	e.mu.RLock()
	fns := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(event, session)
	}
}
