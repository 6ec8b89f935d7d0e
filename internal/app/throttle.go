package app

import (
	"sync"
	"time"

	"github.com/dkeye/connecto/internal/domain"
)

// Throttle is advisory flood control for chat messages, not a security
// boundary. One timestamp per identity, purged on disconnect.
type Throttle struct {
	mu       sync.Mutex
	lastSend map[domain.UserID]time.Time
	interval time.Duration
	now      func() time.Time
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{
		lastSend: make(map[domain.UserID]time.Time),
		interval: interval,
		now:      time.Now,
	}
}

// Allow reports whether id may send now and, if so, records the send.
func (t *Throttle) Allow(id domain.UserID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if last, ok := t.lastSend[id]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.lastSend[id] = now
	return true
}

// Forget drops the record for a disconnected identity.
func (t *Throttle) Forget(id domain.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.lastSend, id)
}
