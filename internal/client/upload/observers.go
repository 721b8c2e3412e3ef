package upload

import (
	"sync"

	"github.com/m1tka051209/marketgram-client/internal/client/models"
)

// Observer receives a progress snapshot on every state change of one
// session.
type Observer func(models.UploadProgress)

// observerRegistry keys observers by session id and hands out idempotent
// unsubscribe handles.
type observerRegistry struct {
	mu   sync.Mutex
	seq  int
	subs map[string]map[int]Observer
}

func newObserverRegistry() *observerRegistry {
	return &observerRegistry{subs: make(map[string]map[int]Observer)}
}

func (r *observerRegistry) subscribe(sessionID string, fn Observer) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	id := r.seq
	if r.subs[sessionID] == nil {
		r.subs[sessionID] = make(map[int]Observer)
	}
	r.subs[sessionID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs[sessionID], id)
			if len(r.subs[sessionID]) == 0 {
				delete(r.subs, sessionID)
			}
		})
	}
}

func (r *observerRegistry) notify(sessionID string, p models.UploadProgress) {
	r.mu.Lock()
	observers := make([]Observer, 0, len(r.subs[sessionID]))
	for _, fn := range r.subs[sessionID] {
		observers = append(observers, fn)
	}
	r.mu.Unlock()

	for _, fn := range observers {
		fn(p)
	}
}
