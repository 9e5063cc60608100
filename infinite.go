package queryflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/unkn0wn-root/queryflow/store"
)

// PageProducer fetches one page given its parameter (cursor, offset, token -
// whatever P encodes).
type PageProducer[T, P any] func(ctx context.Context, param P) (T, error)

// InfiniteQuery accumulates an ordered page list under a single cache key.
// The page slice as a whole is the cache entry's value, so eviction,
// introspection and snapshots treat it like any other entry.
type InfiniteQuery[T, P any] struct {
	client    *Client
	key       string
	opts      InfiniteOptions[T, P]
	producer  PageProducer[T, P]
	staleTime time.Duration
	cacheTime time.Duration

	mu           sync.Mutex
	status       Status
	err          error
	fetchingNext bool
	inFlight     int // refetches of existing pages
	pages        []Page[T, P]
	noMore       bool
	invalid      bool
	subs         map[uint64]func()
	nextSub      uint64

	notifyMu sync.Mutex
}

// GetInfiniteQuery returns the infinite query for key, creating it on first
// use. Later calls for the same key must use the same T and P; a mismatch is
// a configuration error. Infinite and plain queries must not share a key.
func GetInfiniteQuery[T, P any](c *Client, key string, producer PageProducer[T, P], opts InfiniteOptions[T, P]) (*InfiniteQuery[T, P], error) {
	if key == "" {
		return nil, configErr("key", "must not be empty")
	}
	if producer == nil {
		return nil, configErr("producer", "must not be nil")
	}
	if opts.GetNextPageParam == nil {
		return nil, configErr("GetNextPageParam", "must not be nil")
	}
	if opts.MaxPages < 0 {
		return nil, configErr("MaxPages", "must not be negative")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.infinite[key]; ok {
		q, ok := existing.(*InfiniteQuery[T, P])
		if !ok {
			return nil, configErr("key", fmt.Sprintf("%q already bound to a different page type", key))
		}
		return q, nil
	}
	q := &InfiniteQuery[T, P]{
		client:    c,
		key:       key,
		opts:      opts,
		producer:  producer,
		staleTime: c.resolveStale(opts.StaleTime),
		cacheTime: c.resolveCache(opts.CacheTime),
		status:    StatusIdle,
	}
	if _, pending := c.pendingInvalid[key]; pending {
		q.invalid = true
		delete(c.pendingInvalid, key)
	}
	c.infinite[key] = q
	return q, nil
}

func (q *InfiniteQuery[T, P]) Key() string { return q.key }

// FetchNextPage derives the next parameter from the accumulated pages and
// fetches it. While a next-page fetch is in flight further calls are no-ops,
// as are calls after the parameter function reports exhaustion.
func (q *InfiniteQuery[T, P]) FetchNextPage(ctx context.Context) error {
	q.mu.Lock()
	if q.opts.Disabled || q.fetchingNext {
		q.mu.Unlock()
		return nil
	}
	if q.noMore {
		q.mu.Unlock()
		return nil
	}
	param, ok := q.opts.GetNextPageParam(q.pages)
	if !ok {
		q.noMore = true
		q.mu.Unlock()
		q.notify()
		return nil
	}
	return q.fetchLocked(ctx, param)
}

// FetchNextPageWith fetches a page for an explicit parameter, bypassing
// derivation. Useful for jumping to a known cursor.
func (q *InfiniteQuery[T, P]) FetchNextPageWith(ctx context.Context, param P) error {
	q.mu.Lock()
	if q.opts.Disabled || q.fetchingNext {
		q.mu.Unlock()
		return nil
	}
	return q.fetchLocked(ctx, param)
}

// fetchLocked appends a placeholder page and runs the producer. Called with
// q.mu held; releases it before the producer runs.
func (q *InfiniteQuery[T, P]) fetchLocked(ctx context.Context, param P) error {
	q.fetchingNext = true
	if q.status == StatusIdle {
		q.status = StatusLoading
	}
	idx := len(q.pages)
	q.pages = append(q.pages, Page[T, P]{Param: param})
	q.mu.Unlock()
	q.notify()

	data, err := q.producer(ctx, param)

	q.mu.Lock()
	q.fetchingNext = false
	// our placeholder is gone or was filled by someone else: the list was
	// reset or trimmed underneath us; drop the result
	if idx >= len(q.pages) || q.pages[idx].HasData || q.pages[idx].Err != nil {
		q.mu.Unlock()
		q.notify()
		return err
	}
	if err != nil {
		q.pages[idx].Err = err
		q.err = err
		if !q.anyDataLocked() {
			q.status = StatusError
		}
		q.mu.Unlock()
		q.notify()
		return err
	}
	q.pages[idx].Data = data
	q.pages[idx].HasData = true
	q.pages[idx].Err = nil
	q.err = nil
	q.status = StatusSuccess
	q.invalid = false
	if max := q.opts.MaxPages; max > 0 && len(q.pages) > max {
		// sliding window: discard from the oldest end
		trimmed := make([]Page[T, P], max)
		copy(trimmed, q.pages[len(q.pages)-max:])
		q.pages = trimmed
	}
	_, more := q.opts.GetNextPageParam(q.pages)
	q.noMore = !more
	q.mu.Unlock()

	q.persist()
	q.notify()
	return nil
}

// RefetchPage re-runs the producer for the page at index with its original
// parameter and replaces that page in place. Distinct pages may refetch
// concurrently.
func (q *InfiniteQuery[T, P]) RefetchPage(ctx context.Context, index int) error {
	q.mu.Lock()
	if index < 0 || index >= len(q.pages) {
		n := len(q.pages)
		q.mu.Unlock()
		return fmt.Errorf("page index %d out of range [0,%d)", index, n)
	}
	param := q.pages[index].Param
	q.inFlight++
	q.mu.Unlock()
	q.notify()

	data, err := q.producer(ctx, param)

	q.mu.Lock()
	q.inFlight--
	if index < len(q.pages) {
		if err != nil {
			q.pages[index].Err = err
		} else {
			q.pages[index].Data = data
			q.pages[index].HasData = true
			q.pages[index].Err = nil
		}
	}
	q.mu.Unlock()
	if err == nil {
		q.persist()
	}
	q.notify()
	return err
}

// Refetch re-runs every accumulated page in order, keeping the window and
// parameters. Pages that fail keep their previous data with the error set.
func (q *InfiniteQuery[T, P]) Refetch(ctx context.Context) error {
	q.mu.Lock()
	n := len(q.pages)
	q.invalid = false
	q.mu.Unlock()
	var first error
	for i := 0; i < n; i++ {
		if err := q.RefetchPage(ctx, i); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// HasNextPage reports whether the parameter function still yields a next
// parameter as of the last completed page.
func (q *InfiniteQuery[T, P]) HasNextPage() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.noMore
}

// State returns the externally observed snapshot, pages copied.
func (q *InfiniteQuery[T, P]) State() InfiniteState[T, P] {
	q.mu.Lock()
	defer q.mu.Unlock()
	pages := make([]Page[T, P], len(q.pages))
	copy(pages, q.pages)
	return InfiniteState[T, P]{
		Status:             q.status,
		IsFetching:         q.fetchingNext || q.inFlight > 0,
		IsFetchingNextPage: q.fetchingNext,
		Pages:              pages,
		HasNextPage:        !q.noMore,
		Err:                q.err,
	}
}

// Subscribe registers fn with last-value replay and pins the cache entry via
// its reference count until the returned unsubscribe runs. A first
// subscriber with no pages triggers the initial page fetch.
func (q *InfiniteQuery[T, P]) Subscribe(fn func(InfiniteState[T, P])) (unsubscribe func()) {
	q.client.store.Acquire(q.key)

	q.mu.Lock()
	q.nextSub++
	id := q.nextSub
	if q.subs == nil {
		q.subs = make(map[uint64]func())
	}
	q.subs[id] = func() { fn(q.State()) }
	empty := len(q.pages) == 0
	invalid := q.invalid
	q.mu.Unlock()

	fn(q.State())

	if !q.opts.Disabled {
		if empty {
			go func() { _ = q.FetchNextPage(context.Background()) }()
		} else if invalid {
			go func() { _ = q.Refetch(context.Background()) }()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			q.mu.Lock()
			delete(q.subs, id)
			q.mu.Unlock()
			q.client.store.Release(q.key)
		})
	}
}

// invalidate refetches all pages in place when subscribers are attached,
// otherwise marks the query so the next subscriber triggers the refetch.
func (q *InfiniteQuery[T, P]) invalidate() {
	q.mu.Lock()
	q.invalid = true
	active := len(q.subs) > 0
	q.mu.Unlock()
	if active {
		go func() { _ = q.Refetch(context.Background()) }()
	}
}

func (q *InfiniteQuery[T, P]) reset() {
	q.mu.Lock()
	q.pages = nil
	q.status = StatusIdle
	q.err = nil
	q.noMore = false
	q.invalid = false
	q.mu.Unlock()
	q.notify()
}

func (q *InfiniteQuery[T, P]) anyDataLocked() bool {
	for i := range q.pages {
		if q.pages[i].HasData {
			return true
		}
	}
	return false
}

// persist writes the current page window to the cache entry so retention,
// eviction and snapshots apply to paginated data too.
func (q *InfiniteQuery[T, P]) persist() {
	q.mu.Lock()
	pages := make([]Page[T, P], len(q.pages))
	copy(pages, q.pages)
	q.mu.Unlock()
	q.client.store.Set(q.key, pages, store.SetOptions{
		StaleTime: q.staleTime,
		CacheTime: q.cacheTime,
		Secure:    q.opts.Secure,
	})
}

func (q *InfiniteQuery[T, P]) notify() {
	q.mu.Lock()
	fns := make([]func(), 0, len(q.subs))
	for _, fn := range q.subs {
		fns = append(fns, fn)
	}
	q.mu.Unlock()

	q.notifyMu.Lock()
	for _, fn := range fns {
		fn()
	}
	q.notifyMu.Unlock()
}
