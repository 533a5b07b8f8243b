package fetchonce

import (
	"sync"

	"github.com/google/uuid"
)

type waiter[V any] func(Outcome[V])

// Session holds the per-crawl fetch state: the in-flight set, the
// outcome cache, and the per-fingerprint waiter lists. A fingerprint
// is in at most one of in-flight and cache at any instant; waiters
// exist only while their fingerprint is in flight. Nothing is evicted
// while the session is open and nothing survives Close.
//
// Sessions are independent: two open sessions never share outcomes,
// and may run concurrently.
type Session[V any] struct {
	// ID identifies the session in logs and events.
	ID string

	mu       sync.Mutex
	inflight map[Fingerprint]struct{}
	cache    map[Fingerprint]Outcome[V]
	waiters  map[Fingerprint][]waiter[V]
	closed   bool
	done     chan struct{}
}

// OpenSession starts a new, empty processing session.
func (p *Pipeline[I, V]) OpenSession() *Session[V] {
	return &Session[V]{
		ID:       uuid.NewString(),
		inflight: make(map[Fingerprint]struct{}),
		cache:    make(map[Fingerprint]Outcome[V]),
		waiters:  make(map[Fingerprint][]waiter[V]),
		done:     make(chan struct{}),
	}
}

// Close tears the session down. It is idempotent and marks a hard
// boundary: items not yet complete are abandoned (their completion
// hooks never fire), queued waiters are never notified, and fetches
// that settle afterwards are discarded.
func (s *Session[V]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.inflight = nil
	s.cache = nil
	s.waiters = nil
}

// Cached returns the finalized outcome for ref, if ref has resolved in
// this session.
func (s *Session[V]) Cached(ref Reference) (Outcome[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out, ok := s.cache[ref.Fingerprint()]
	return out, ok
}
