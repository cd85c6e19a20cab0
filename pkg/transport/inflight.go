package transport

import (
	"context"
	"sync"
)

// InFlight tracks running queries so shutdown can cancel what is left
// once the grace period is over.
type InFlight struct {
	mu      sync.Mutex
	entries map[string]context.CancelFunc
}

// NewInFlight returns an empty tracker.
func NewInFlight() *InFlight {
	return &InFlight{entries: make(map[string]context.CancelFunc)}
}

// Track derives a cancellable context for the run identified by id. The
// returned done func must be called when the run ends.
func (f *InFlight) Track(ctx context.Context, id string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.entries[id] = cancel
	f.mu.Unlock()

	return ctx, func() {
		f.mu.Lock()
		delete(f.entries, id)
		f.mu.Unlock()
		cancel()
	}
}

// Len reports the number of running queries.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// CancelAll cancels every running query and returns how many there were.
func (f *InFlight) CancelAll() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.entries)
	for id, cancel := range f.entries {
		cancel()
		delete(f.entries, id)
	}
	return n
}
