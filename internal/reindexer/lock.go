package reindexer

import (
	"sync"
	"sync/atomic"
)

// reindexLock provides non-blocking lock semantics using atomic operations.
type reindexLock struct {
	state atomic.Int32 // 0 = unlocked, 1 = locked
}

func (l *reindexLock) tryAcquire() bool {
	return l.state.CompareAndSwap(0, 1)
}

func (l *reindexLock) release() {
	l.state.Store(0)
}

// ScopeLocks serializes reindex runs per scope. Two concurrent runs for
// the same scope would race on the filesystem diff; runs for different
// scopes are independent.
type ScopeLocks struct {
	mu    sync.Mutex
	locks map[string]*reindexLock
}

// NewScopeLocks creates an empty lock set
func NewScopeLocks() *ScopeLocks {
	return &ScopeLocks{locks: make(map[string]*reindexLock)}
}

// TryAcquire attempts to acquire the lock for scope without blocking.
// Returns true if the lock was successfully acquired.
func (s *ScopeLocks) TryAcquire(scope string) bool {
	s.mu.Lock()
	l, ok := s.locks[scope]
	if !ok {
		l = &reindexLock{}
		s.locks[scope] = l
	}
	s.mu.Unlock()
	return l.tryAcquire()
}

// Release releases the lock for scope. Must only be called after a
// successful TryAcquire.
func (s *ScopeLocks) Release(scope string) {
	s.mu.Lock()
	l, ok := s.locks[scope]
	s.mu.Unlock()
	if ok {
		l.release()
	}
}
