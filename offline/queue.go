// Package offline implements the mutation queue: a priority-ordered holding
// area for write operations attempted while disconnected, replayed through a
// type registry when connectivity returns. An entry never disappears
// silently; it either replays successfully or lands on the dead list after
// its type's attempt ceiling, both observable by the caller.
package offline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unkn0wn-root/queryflow/internal/wire"
)

// DefaultMaxAttempts is the replay ceiling applied when a type registers
// without one.
const DefaultMaxAttempts = 3

var ErrUnregisteredType = errors.New("offline: no handler registered for type")

// Entry is one pending mutation.
type Entry struct {
	TypeID     string
	Variables  []byte
	Priority   int
	Attempts   int
	EnqueuedAt time.Time

	seq uint64 // FIFO tiebreak within equal priority
}

// DeadEntry is an entry that exceeded its attempt ceiling.
type DeadEntry struct {
	Entry
	LastErr error
	DeadAt  time.Time
}

// TypeStats summarizes queue occupancy for one mutation type.
type TypeStats struct {
	Pending int
	Dead    int
}

// Config tunes a Queue. Registry is required.
type Config struct {
	Registry *Registry

	// Store enables persistence; the queue saves best-effort after every
	// mutating operation and loads explicitly via Load.
	Store Store

	// Concurrency bounds simultaneous replays in Process. Default 1, which
	// also guarantees strict priority order.
	Concurrency int

	// Callbacks for observable outcomes. Called outside the queue lock;
	// MUST be cheap and non-blocking.
	OnReplayed  func(Entry)
	OnDead      func(Entry, error)
	OnSkipped   func(Entry) // type not registered; entry stays pending
	OnSaveError func(error)
}

type Queue struct {
	cfg Config

	mu      sync.Mutex
	pending []*Entry
	dead    []DeadEntry
	seq     uint64

	now func() time.Time
}

func NewQueue(cfg Config) (*Queue, error) {
	if cfg.Registry == nil {
		return nil, errors.New("offline: registry is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Queue{cfg: cfg, now: time.Now}, nil
}

// Enqueue adds a pending mutation. Variables must already be serialized by
// the mutation's codec so the entry can outlive this process.
func (q *Queue) Enqueue(typeID string, variables []byte, priority int) Entry {
	q.mu.Lock()
	q.seq++
	e := &Entry{
		TypeID:     typeID,
		Variables:  variables,
		Priority:   priority,
		EnqueuedAt: q.now(),
		seq:        q.seq,
	}
	q.pending = append(q.pending, e)
	q.mu.Unlock()

	q.persist(context.Background())
	return *e
}

// Process drains the current pending set once: each entry is attempted at
// most one time per call, highest priority first, FIFO within equal
// priority. Failures below the ceiling go back to pending for the next
// Process; failures at the ceiling move to the dead list. Entries whose type
// has no registered handler stay pending untouched.
func (q *Queue) Process(ctx context.Context) error {
	q.mu.Lock()
	batch := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].Priority != batch[j].Priority {
			return batch[i].Priority > batch[j].Priority
		}
		return batch[i].seq < batch[j].seq
	})

	g := new(errgroup.Group)
	g.SetLimit(q.cfg.Concurrency)
	for _, e := range batch {
		e := e
		g.Go(func() error {
			q.replay(ctx, e)
			return nil
		})
	}
	_ = g.Wait()

	q.persist(ctx)
	return ctx.Err()
}

func (q *Queue) replay(ctx context.Context, e *Entry) {
	reg, ok := q.cfg.Registry.lookup(e.TypeID)
	if !ok {
		// handler may appear later (e.g. registration races startup);
		// keep the entry pending and report the skip
		q.requeue(e)
		if q.cfg.OnSkipped != nil {
			q.cfg.OnSkipped(*e)
		}
		return
	}

	err := reg.handler(ctx, e.Variables)
	if err == nil {
		if q.cfg.OnReplayed != nil {
			q.cfg.OnReplayed(*e)
		}
		return
	}

	e.Attempts++
	if e.Attempts >= reg.maxAttempts {
		d := DeadEntry{Entry: *e, LastErr: err, DeadAt: q.now()}
		q.mu.Lock()
		q.dead = append(q.dead, d)
		q.mu.Unlock()
		if q.cfg.OnDead != nil {
			q.cfg.OnDead(*e, err)
		}
		return
	}
	q.requeue(e)
}

func (q *Queue) requeue(e *Entry) {
	q.mu.Lock()
	q.pending = append(q.pending, e)
	q.mu.Unlock()
}

// Pending returns the number of queued entries.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Dead returns the entries that exceeded their attempt ceiling.
func (q *Queue) Dead() []DeadEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadEntry, len(q.dead))
	copy(out, q.dead)
	return out
}

// Stats groups pending and dead counts by mutation type.
func (q *Queue) Stats() map[string]TypeStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[string]TypeStats)
	for _, e := range q.pending {
		s := out[e.TypeID]
		s.Pending++
		out[e.TypeID] = s
	}
	for _, d := range q.dead {
		s := out[d.TypeID]
		s.Dead++
		out[d.TypeID] = s
	}
	return out
}

// Load restores pending entries from the configured Store, replacing the
// current pending set. A missing blob is not an error.
func (q *Queue) Load(ctx context.Context) error {
	if q.cfg.Store == nil {
		return nil
	}
	blob, ok, err := q.cfg.Store.Load(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	items, err := wire.DecodeQueue(blob)
	if err != nil {
		return err
	}

	q.mu.Lock()
	q.pending = q.pending[:0]
	for _, it := range items {
		q.seq++
		q.pending = append(q.pending, &Entry{
			TypeID:     it.TypeID,
			Variables:  it.Variables,
			Priority:   int(it.Priority),
			Attempts:   int(it.Attempts),
			EnqueuedAt: time.Unix(0, it.EnqueuedAt),
			seq:        q.seq,
		})
	}
	q.mu.Unlock()
	return nil
}

// persist saves the pending set best-effort; failures are reported, never
// fatal (the in-memory queue stays authoritative).
func (q *Queue) persist(ctx context.Context) {
	if q.cfg.Store == nil {
		return
	}

	q.mu.Lock()
	items := make([]wire.QueueItem, 0, len(q.pending))
	// persist in replay order so a restored queue drains the same way
	sorted := make([]*Entry, len(q.pending))
	copy(sorted, q.pending)
	q.mu.Unlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority > sorted[j].Priority
		}
		return sorted[i].seq < sorted[j].seq
	})
	for _, e := range sorted {
		items = append(items, wire.QueueItem{
			TypeID:     e.TypeID,
			Priority:   int32(e.Priority),
			Attempts:   uint32(e.Attempts),
			EnqueuedAt: e.EnqueuedAt.UnixNano(),
			Variables:  e.Variables,
		})
	}

	if err := q.cfg.Store.Save(ctx, wire.EncodeQueue(items)); err != nil && q.cfg.OnSaveError != nil {
		q.cfg.OnSaveError(err)
	}
}
