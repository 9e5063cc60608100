package offline

import (
	"context"
	"sync"
)

// Store persists the pending queue as one opaque blob so entries survive a
// process restart. The blob is the wire queue envelope; a Store never
// interprets it.
type Store interface {
	// Save replaces the persisted blob.
	Save(ctx context.Context, blob []byte) error
	// Load returns (blob, true, nil) when a blob exists; (nil, false, nil)
	// when nothing was persisted yet.
	Load(ctx context.Context) ([]byte, bool, error)
	// Clear removes the persisted blob.
	Clear(ctx context.Context) error
}

// MemoryStore is an in-process Store for tests and single-run setups.
type MemoryStore struct {
	mu   sync.Mutex
	blob []byte
	ok   bool
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Save(_ context.Context, blob []byte) error {
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.mu.Lock()
	s.blob, s.ok = cp, true
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return nil, false, nil
	}
	cp := make([]byte, len(s.blob))
	copy(cp, s.blob)
	return cp, true, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.blob, s.ok = nil, false
	s.mu.Unlock()
	return nil
}
