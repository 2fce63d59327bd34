package notifications

import (
	"sync"
	"time"
)

// Suppressor remembers delivered events so that a repeat of the same
// fault, milestone and kind is not delivered again within ttl.
type Suppressor struct {
	ttl time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewSuppressor creates a suppressor. A non-positive ttl disables it.
func NewSuppressor(ttl time.Duration) *Suppressor {
	return &Suppressor{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// Suppressed reports whether key was marked less than ttl before now.
func (s *Suppressor) Suppressed(key string, now time.Time) bool {
	if s.ttl <= 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.seen[key]
	return ok && now.Sub(at) < s.ttl
}

// Mark records key as delivered at now.
func (s *Suppressor) Mark(key string, now time.Time) {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[key] = now
}

// Prune drops entries older than ttl and returns how many remain.
func (s *Suppressor) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, at := range s.seen {
		if now.Sub(at) >= s.ttl {
			delete(s.seen, key)
		}
	}
	return len(s.seen)
}
