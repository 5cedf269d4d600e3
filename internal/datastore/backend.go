package datastore

import (
	"context"
	"maps"
	"slices"
	"sync"
)

// UpdateFunc receives the current content of a slot and returns the content
// to store. Returning nil leaves the slot untouched. An error aborts the
// update without writing.
type UpdateFunc func(current []byte, found bool) ([]byte, error)

// Backend stores named slots. Update must run the whole read-modify-write
// atomically with respect to other Updates of the same slot.
type Backend interface {
	Read(ctx context.Context, slot string) (data []byte, found bool, err error)
	Update(ctx context.Context, slot string, fn UpdateFunc) error
	Close() error
}

// MemoryBackend keeps slots in a map. Used by tests and ephemeral runs.
type MemoryBackend struct {
	mu     sync.Mutex
	slots  map[string][]byte
	closed bool
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{slots: make(map[string][]byte)}
}

func (b *MemoryBackend) Read(ctx context.Context, slot string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false, closedError("read")
	}
	data, ok := b.slots[slot]
	return slices.Clone(data), ok, nil
}

func (b *MemoryBackend) Update(ctx context.Context, slot string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return closedError("update")
	}
	current, ok := b.slots[slot]
	next, err := fn(slices.Clone(current), ok)
	if err != nil || next == nil {
		return err
	}
	b.slots[slot] = slices.Clone(next)
	return nil
}

// Slots returns the names of the slots written so far.
func (b *MemoryBackend) Slots() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Sorted(maps.Keys(b.slots))
}

func (b *MemoryBackend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
