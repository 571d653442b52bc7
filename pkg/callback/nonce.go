package callback

import (
	"sync"
	"time"
)

// defaultNonceCapacity bounds the consumed-nonce set. Crossing it
// triggers an inline eviction sweep.
const defaultNonceCapacity = 10000

// nonceStore remembers consumed nonces until their payloads would have
// expired anyway. Consuming twice fails, which is what defeats replay.
type nonceStore struct {
	mu       sync.Mutex
	seen     map[uint32]time.Time // nonce -> payload expiry
	capacity int
	now      func() time.Time
}

func newNonceStore(capacity int) *nonceStore {
	return &nonceStore{
		seen:     make(map[uint32]time.Time),
		capacity: capacity,
		now:      time.Now,
	}
}

// consume marks nonce as used. Returns false if it was already consumed.
func (s *nonceStore) consume(nonce uint32, expiry time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[nonce]; dup {
		return false
	}
	s.seen[nonce] = expiry

	if len(s.seen) > s.capacity {
		s.evictLocked()
	}
	return true
}

// evictLocked drops expired entries first, then the oldest live ones
// until the set fits the capacity again.
func (s *nonceStore) evictLocked() {
	now := s.now()
	for n, exp := range s.seen {
		if now.After(exp) {
			delete(s.seen, n)
		}
	}
	for len(s.seen) > s.capacity {
		var oldest uint32
		var oldestExp time.Time
		first := true
		for n, exp := range s.seen {
			if first || exp.Before(oldestExp) {
				oldest, oldestExp, first = n, exp, false
			}
		}
		delete(s.seen, oldest)
	}
}

func (s *nonceStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
