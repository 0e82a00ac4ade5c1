package vectorstore

import "sync"

// Guard serialises access to the coordinator's shared state. Call sites only
// depend on this interface, so a reader-writer or per-collection lock can be
// substituted.
type Guard interface {
	WithExclusiveAccess(fn func() error) error
}

// MutexGuard is the default Guard: one process-wide mutex.
type MutexGuard struct {
	mu sync.Mutex
}

// WithExclusiveAccess runs fn while holding the mutex and returns its error.
func (g *MutexGuard) WithExclusiveAccess(fn func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn()
}
