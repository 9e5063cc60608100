package queryflow

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/queryflow/store"
)

// Producer is the caller-supplied fetch for one query. The engine never
// interprets transport or serialization - it only awaits the result. A
// producer that never returns leaves the query fetching indefinitely;
// timeout policy belongs to the caller (wrap the producer).
type Producer[T any] func(ctx context.Context) (T, error)

// queryCore is the untyped per-key lifecycle shared by every typed handle
// for the same key, so logically distinct subscriber instances attach to the
// identical dedup-and-cache target. Data lives on the cache entry; the core
// owns status, error, fetch bookkeeping and the subscriber list.
type queryCore struct {
	client    *Client
	key       string
	opts      QueryOptions
	staleTime time.Duration
	cacheTime time.Duration
	producer  func(ctx context.Context) (any, error)

	mu       sync.Mutex
	status   Status
	err      error
	fetching bool
	invalid  bool
	gen      uint64 // invalidation epochs; a mismatched result is discarded
	ticket   uint64 // execution starts; clears fetching only for the latest
	subs     map[uint64]func()
	nextSub  uint64

	// serializes subscriber callbacks so state changes are observed in
	// completion order
	notifyMu sync.Mutex
}

type coreSnapshot struct {
	status    Status
	err       error
	fetching  bool
	data      any
	hasData   bool
	updatedAt time.Time
}

func (c *queryCore) snapshot() coreSnapshot {
	e, ok := c.client.store.Inspect(c.key)
	c.mu.Lock()
	s := coreSnapshot{status: c.status, err: c.err, fetching: c.fetching}
	c.mu.Unlock()
	if ok && e.HasData {
		s.data, s.hasData, s.updatedAt = e.Data, true, e.UpdatedAt
	}
	if s.status == StatusSuccess && !s.hasData {
		// entry evicted since the last fetch
		s.status = StatusIdle
	}
	return s
}

// fetch is the imperative trigger. Fresh data returns at once; stale data is
// served immediately while exactly one background refetch runs; no data
// blocks on the deduplicated producer call.
func (c *queryCore) fetch(ctx context.Context) (any, error) {
	if c.opts.Disabled {
		s := c.snapshot()
		return s.data, nil
	}

	e, ok := c.client.store.Get(c.key)
	c.mu.Lock()
	invalid := c.invalid
	c.mu.Unlock()

	if ok {
		if !invalid && !e.Stale(time.Now()) {
			return e.Data, nil
		}
		// no flicker: keep showing the stale value
		c.triggerBackground()
		return e.Data, nil
	}
	return c.execute(ctx)
}

// execute runs the producer behind singleflight: concurrent triggers for the
// same key attach to one in-flight call and observe its single resolution.
func (c *queryCore) execute(ctx context.Context) (any, error) {
	v, err, _ := c.client.flight.Do(c.key, func() (any, error) {
		gen, ticket := c.begin()
		v, err := c.producer(ctx)
		c.complete(gen, ticket, v, err)
		return v, err
	})
	return v, err
}

// triggerBackground starts at most one asynchronous refetch. Rapid repeat
// triggers while one is in flight collapse to nothing.
func (c *queryCore) triggerBackground() {
	c.mu.Lock()
	if c.fetching || c.opts.Disabled {
		c.mu.Unlock()
		return
	}
	c.fetching = true
	c.mu.Unlock()

	go func() { _, _ = c.execute(context.Background()) }()
}

func (c *queryCore) begin() (gen, ticket uint64) {
	c.mu.Lock()
	c.fetching = true
	if c.status == StatusIdle {
		c.status = StatusLoading
	}
	c.ticket++
	gen, ticket = c.gen, c.ticket
	c.mu.Unlock()
	c.notify()
	return gen, ticket
}

func (c *queryCore) complete(gen, ticket uint64, v any, err error) {
	c.mu.Lock()
	if c.ticket == ticket {
		c.fetching = false
	}
	if c.gen != gen {
		// superseded by an invalidation while in flight; discard. If that
		// invalidation found this fetch running it could not start its own
		// refetch, so subscribers are still owed one.
		retrigger := c.invalid && len(c.subs) > 0 && !c.fetching
		c.mu.Unlock()
		c.notify()
		if retrigger {
			c.triggerBackground()
		}
		return
	}

	if err != nil {
		c.err = err
		// a failure never evicts existing data: pure error state only
		// when there is nothing to preserve
		if e, ok := c.client.store.Inspect(c.key); ok && e.HasData {
			c.status = StatusSuccess
		} else {
			c.status = StatusError
		}
		c.mu.Unlock()
		c.notify()
		return
	}

	c.err = nil
	c.invalid = false
	c.status = StatusSuccess
	c.mu.Unlock()

	c.client.store.Set(c.key, v, store.SetOptions{
		StaleTime: c.staleTime,
		CacheTime: c.cacheTime,
		Secure:    c.opts.Secure,
	})
	c.notify()
}

// invalidate bumps the generation (discarding any in-flight result), marks
// the key for refetch, and refetches immediately when subscribers are
// attached. Cached data stays visible until the new result lands.
func (c *queryCore) invalidate() {
	c.mu.Lock()
	c.gen++
	c.invalid = true
	active := len(c.subs) > 0
	c.mu.Unlock()

	c.client.flight.Forget(c.key)
	if active {
		c.triggerBackground()
	}
}

func (c *queryCore) subscribe(fn func()) func() {
	c.client.store.Acquire(c.key)

	c.mu.Lock()
	c.nextSub++
	id := c.nextSub
	if c.subs == nil {
		c.subs = make(map[uint64]func())
	}
	c.subs[id] = fn
	c.mu.Unlock()

	// last-value replay
	fn()

	if !c.opts.Disabled {
		e, ok := c.client.store.Inspect(c.key)
		c.mu.Lock()
		invalid := c.invalid
		c.mu.Unlock()
		if c.opts.RefetchOnMount || !ok || !e.HasData || invalid || e.Stale(time.Now()) {
			c.triggerBackground()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			c.client.store.Release(c.key)
		})
	}
}

func (c *queryCore) notify() {
	c.mu.Lock()
	fns := make([]func(), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	c.notifyMu.Lock()
	for _, fn := range fns {
		fn()
	}
	c.notifyMu.Unlock()
}

// reset returns the core to idle and invalidates any in-flight result.
// Used by Clear and RemoveQuery; the cache entry is handled separately.
func (c *queryCore) reset() {
	c.mu.Lock()
	c.gen++
	c.status = StatusIdle
	c.err = nil
	c.fetching = false
	c.invalid = false
	c.mu.Unlock()
	c.client.flight.Forget(c.key)
	c.notify()
}

// Query is a typed handle over the shared per-key core. Handles are cheap;
// obtain them through GetQuery so identical keys resolve to the identical
// dedup-and-cache target.
type Query[T any] struct {
	core *queryCore
}

// GetQuery returns the query handle for key, creating the backing core on
// first use. Options bind at creation; later calls for the same key reuse
// the existing core and ignore the supplied options and producer.
func GetQuery[T any](c *Client, key string, producer Producer[T], opts QueryOptions) (*Query[T], error) {
	if key == "" {
		return nil, configErr("key", "must not be empty")
	}
	if producer == nil {
		return nil, configErr("producer", "must not be nil")
	}
	core := c.coreFor(key, opts, func(ctx context.Context) (any, error) {
		return producer(ctx)
	})
	return &Query[T]{core: core}, nil
}

func (q *Query[T]) Key() string { return q.core.key }

// Fetch triggers the query and returns the resolved value. See
// queryCore.fetch for the staleness contract.
func (q *Query[T]) Fetch(ctx context.Context) (T, error) {
	v, err := q.core.fetch(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}

// State returns the externally observed snapshot.
func (q *Query[T]) State() QueryState[T] {
	s := q.core.snapshot()
	out := QueryState[T]{
		Status:        s.status,
		IsFetching:    s.fetching,
		Err:           s.err,
		DataUpdatedAt: s.updatedAt,
	}
	if s.hasData {
		if t, ok := s.data.(T); ok {
			out.Data, out.HasData = t, true
		} else {
			// key reused with a different type; surface absence, not panic
			out.Status = StatusIdle
		}
	}
	return out
}

// Subscribe registers fn for state changes with last-value replay: fn runs
// once immediately with the current state. Subscribing increments the cache
// entry's reference count; the returned unsubscribe decrements it (once).
func (q *Query[T]) Subscribe(fn func(QueryState[T])) (unsubscribe func()) {
	return q.core.subscribe(func() { fn(q.State()) })
}

// Invalidate schedules a refetch regardless of staleness. Data is never
// cleared: the last-known-good value stays visible until the new one lands,
// and is retained alongside the error if the refetch fails.
func (q *Query[T]) Invalidate() { q.core.invalidate() }

// PrefetchQuery fetches and caches key without any subscription, so a later
// GetQuery serves it instantly. Fresh cached data is not refetched.
func PrefetchQuery[T any](ctx context.Context, c *Client, key string, producer Producer[T], opts QueryOptions) error {
	q, err := GetQuery(c, key, producer, opts)
	if err != nil {
		return err
	}
	_, err = q.Fetch(ctx)
	return err
}
