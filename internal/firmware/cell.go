// internal/firmware/cell.go
// Cross-context shared storage for the device model. The real firmware
// guards each slot with a numbered hardware spinlock and memory fences;
// the model maps that to one mutex per cell, which gives the same
// acquire/release visibility guarantees under the Go memory model.
package firmware

import "sync"

// Cell is a lock-guarded slot holding a trivially copyable value shared
// between the communication context and the accessories context. The
// critical section is a short copy; callbacks must not block or do I/O.
type Cell[T any] struct {
	mu sync.Mutex
	v  T
}

// NewCell returns a cell initialized to v.
func NewCell[T any](v T) *Cell[T] {
	return &Cell[T]{v: v}
}

// WithLock grants read access to the value, holding the lock for the
// duration of f.
func (c *Cell[T]) WithLock(f func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(c.v)
}

// WithMutLock grants write access to the value, holding the lock for the
// duration of f.
func (c *Cell[T]) WithMutLock(f func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f(&c.v)
}

// Load returns a copy of the value.
func (c *Cell[T]) Load() T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

// Store replaces the value.
func (c *Cell[T]) Store(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.v = v
}
