package session

import (
	"sync"
	"time"
)

// Registry tracks at most one in-flight job per key. TryAdmit and Release
// are safe for concurrent use; when several goroutines race to admit the
// same key, exactly one wins.
type Registry[K comparable] struct {
	mu     sync.Mutex
	active map[K]time.Time
}

// New returns an empty registry.
func New[K comparable]() *Registry[K] {
	return &Registry[K]{active: make(map[K]time.Time)}
}

// TryAdmit opens a session for key. It reports false when a session for key
// is already open.
func (r *Registry[K]) TryAdmit(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[key]; ok {
		return false
	}
	r.active[key] = time.Now()
	return true
}

// Release closes the session for key. Releasing an absent key is a no-op,
// so callers can release unconditionally on every exit path.
func (r *Registry[K]) Release(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, key)
}

// Len reports the number of open sessions.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Entry describes one open session.
type Entry[K comparable] struct {
	Key   K
	Since time.Time
}

// Snapshot returns the open sessions in unspecified order.
func (r *Registry[K]) Snapshot() []Entry[K] {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry[K], 0, len(r.active))
	for key, since := range r.active {
		entries = append(entries, Entry[K]{Key: key, Since: since})
	}
	return entries
}
