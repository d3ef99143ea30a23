package semantic

import (
	"context"
	"fmt"
	"sync"

	"github.com/Allreality/my-twin/internal/model"
)

// Backend persists semantic entries. Implementations must be safe for
// concurrent use; entries are append-only apart from Delete.
type Backend interface {
	// Insert fails with model.ErrExists when the id is already taken.
	Insert(ctx context.Context, e model.Entry) error
	// Entries returns every stored entry, embeddings included.
	Entries(ctx context.Context) ([]model.Entry, error)
	// Get returns model.ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (model.Entry, error)
	// Delete returns model.ErrNotFound for an unknown id.
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// MemoryBackend keeps entries in a slice, in insertion order.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries []model.Entry
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

func (m *MemoryBackend) Insert(_ context.Context, e model.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.entries {
		if x.ID == e.ID {
			return fmt.Errorf("memory %s: %w", e.ID, model.ErrExists)
		}
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *MemoryBackend) Entries(_ context.Context) ([]model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Entry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *MemoryBackend) Get(_ context.Context, id string) (model.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return model.Entry{}, model.ErrNotFound
}

func (m *MemoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.entries {
		if e.ID == id {
			m.entries = append(m.entries[:i:i], m.entries[i+1:]...)
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *MemoryBackend) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

var _ Backend = (*MemoryBackend)(nil)
