package offline

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler replays one queued mutation from its serialized variables.
// The error decides the entry's fate: nil removes it, non-nil re-enqueues it
// until the type's attempt ceiling.
type Handler func(ctx context.Context, variables []byte) error

type registration struct {
	handler     Handler
	maxAttempts int
}

// Registry maps stable type identifiers to replay handlers. Queued entries
// persist only {typeID, variables}; a captured closure does not survive a
// process restart, so every mutation type that can be queued must be
// registered again at startup before the queue is processed.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]registration
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]registration)}
}

// Register binds typeID to a handler. maxAttempts <= 0 applies the default
// ceiling. A typeID binds at most once per Registry: two live handlers for
// one type would make replay ambiguous. A restart builds a fresh Registry,
// so startup re-registration is never a duplicate.
func (r *Registry) Register(typeID string, maxAttempts int, h Handler) error {
	if typeID == "" {
		return fmt.Errorf("offline: empty type id")
	}
	if h == nil {
		return fmt.Errorf("offline: nil handler for type %q", typeID)
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[typeID]; exists {
		return fmt.Errorf("offline: type %q already registered", typeID)
	}
	r.handlers[typeID] = registration{handler: h, maxAttempts: maxAttempts}
	return nil
}

func (r *Registry) lookup(typeID string) (registration, bool) {
	r.mu.RLock()
	reg, ok := r.handlers[typeID]
	r.mu.RUnlock()
	return reg, ok
}

// Types returns the registered type identifiers in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.handlers))
	for id := range r.handlers {
		out = append(out, id)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}
