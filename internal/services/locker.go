package services

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haventide/compass-backend/internal/platform/envutil"
)

// Locker serializes generation per session: at most one model loop may
// run for a session at a time. Holds go stale after a deadline so a
// crashed worker cannot wedge the session forever.
type Locker interface {
	TryAcquire(id uuid.UUID) bool
	Release(id uuid.UUID)
}

type memoryLocker struct {
	mu      sync.Mutex
	held    map[uuid.UUID]time.Time
	staleBy time.Duration
	now     func() time.Time
}

func NewMemoryLocker() Locker {
	return &memoryLocker{
		held:    make(map[uuid.UUID]time.Time),
		staleBy: time.Duration(envutil.Int("GENERATION_LOCK_STALE_SECONDS", 60)) * time.Second,
		now:     time.Now,
	}
}

func (l *memoryLocker) TryAcquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if at, ok := l.held[id]; ok && l.now().Sub(at) < l.staleBy {
		return false
	}
	l.held[id] = l.now()
	return true
}

func (l *memoryLocker) Release(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, id)
}
