package store

import "fmt"

// Policy selects eviction victims when the store is over capacity.
//
// Policies are stateless with respect to the entries: victims are chosen from
// the bookkeeping fields already on Entry, which the store maintains on every
// access. That makes a runtime policy swap (SetPolicy) safe without migrating
// per-entry state. OnAccess/OnInsert let a custom policy keep private
// acceleration structures; the built-in policies do not need them.
//
// Select is called with the store lock held. It MUST be cheap and must not
// call back into the store.
type Policy interface {
	// Select returns the key to evict among candidates, or ok=false when no
	// candidate qualifies.
	Select(candidates []*Entry) (key string, ok bool)

	// OnAccess is invoked after the store's own access bookkeeping on a hit.
	OnAccess(e *Entry)

	// OnInsert is invoked when a key is first inserted.
	OnInsert(e *Entry)
}

// PolicyType identifies a built-in eviction strategy.
type PolicyType string

const (
	// LRU evicts the entry with the oldest LastAccessedAt.
	LRU PolicyType = "lru"
	// LFU evicts the entry with the lowest AccessCount,
	// ties broken by oldest LastAccessedAt.
	LFU PolicyType = "lfu"
	// FIFO evicts the entry with the oldest CreatedAt,
	// ignoring the access pattern entirely.
	FIFO PolicyType = "fifo"
)

// NewPolicy builds a built-in policy by type.
func NewPolicy(t PolicyType) (Policy, error) {
	switch t {
	case LRU, "":
		return lru{}, nil
	case LFU:
		return lfu{}, nil
	case FIFO:
		return fifo{}, nil
	default:
		return nil, fmt.Errorf("store: unknown eviction policy %q", t)
	}
}
