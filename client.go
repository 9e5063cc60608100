package queryflow

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/queryflow/codec"
	"github.com/unkn0wn-root/queryflow/offline"
	"github.com/unkn0wn-root/queryflow/provider"
	"github.com/unkn0wn-root/queryflow/store"
)

// ==============================
// Client
// ==============================

// Client is the engine's composition root: the cache store, the per-key
// query cores, the offline mutation queue and the snapshot plumbing, wired
// together explicitly. There is no package-level default client; construct
// one and pass it where it is needed. Independent Clients share nothing.
type Client struct {
	store    *store.Store
	log      Logger
	hooks    Hooks
	opts     Options
	flight   singleflight.Group
	registry *offline.Registry
	queue    *offline.Queue
	snap     provider.Provider
	snapCod  codec.Codec[any]
	online   atomic.Bool

	mu             sync.Mutex
	queries        map[string]*queryCore
	infinite       map[string]any
	pendingInvalid map[string]struct{}
}

// invalidator is satisfied by both query kinds so command surfaces can treat
// them uniformly.
type invalidator interface {
	invalidate()
	reset()
}

// New validates opts and builds a Client. The zero Options value yields a
// working client: unbounded LRU cache, in-memory queue, no persistence.
func New(opts Options) (*Client, error) {
	policy, err := store.NewPolicy(opts.EvictionPolicy)
	if err != nil {
		return nil, err
	}
	if opts.MaxEntries < 0 {
		return nil, configErr("MaxEntries", "must not be negative")
	}
	if opts.MaxCacheSize < 0 {
		return nil, configErr("MaxCacheSize", "must not be negative")
	}
	if opts.DefaultStaleTime < 0 {
		return nil, configErr("DefaultStaleTime", "must not be negative")
	}
	if opts.Namespace == "" {
		opts.Namespace = "queryflow"
	}

	c := &Client{
		opts:           opts,
		log:            coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:          coalesce[Hooks](opts.Hooks, NopHooks{}),
		registry:       offline.NewRegistry(),
		snap:           opts.SnapshotProvider,
		snapCod:        opts.SnapshotCodec,
		queries:        make(map[string]*queryCore),
		infinite:       make(map[string]any),
		pendingInvalid: make(map[string]struct{}),
	}
	if c.snap != nil && c.snapCod == nil {
		c.snapCod = codec.JSON[any]{}
	}

	c.store = store.New(store.Config{
		MaxEntries:   opts.MaxEntries,
		MaxCacheSize: opts.MaxCacheSize,
		Policy:       policy,
		Cost:         opts.Cost,
		OnEvict: func(key string) {
			c.hooks.EntryEvicted(key)
			c.log.Debug("entry evicted", Fields{"key": key})
		},
		OnPressure: func() {
			c.hooks.EvictionPressure()
			c.log.Warn("cache over capacity with no evictable entry", nil)
		},
	})

	queueStore := opts.QueueStore
	if queueStore == nil {
		queueStore = offline.NewMemoryStore()
	}
	c.queue, err = offline.NewQueue(offline.Config{
		Registry:    c.registry,
		Store:       queueStore,
		Concurrency: opts.QueueConcurrency,
		OnReplayed: func(e offline.Entry) {
			c.hooks.MutationReplayed(e.TypeID)
			c.log.Info("queued mutation replayed", Fields{"type": e.TypeID})
		},
		OnDead: func(e offline.Entry, err error) {
			c.hooks.DeadMutation(e.TypeID, e.Attempts, err)
			c.log.Error("queued mutation dead", Fields{
				"type":     e.TypeID,
				"attempts": e.Attempts,
				"error":    err.Error(),
			})
		},
		OnSkipped: func(e offline.Entry) {
			c.hooks.QueueSkipped(e.TypeID)
			c.log.Warn("queued mutation skipped: type not registered", Fields{"type": e.TypeID})
		},
		OnSaveError: func(err error) {
			c.hooks.SnapshotError("queue_save", err)
			c.log.Error("queue persistence failed", Fields{"error": err.Error()})
		},
	})
	if err != nil {
		return nil, err
	}

	c.online.Store(!opts.StartOffline)
	return c, nil
}

// coreFor returns the shared core for a key, creating it on first use. A
// pending invalidation recorded before the core existed is applied here.
func (c *Client) coreFor(key string, opts QueryOptions, producer func(ctx context.Context) (any, error)) *queryCore {
	c.mu.Lock()
	defer c.mu.Unlock()
	if core, ok := c.queries[key]; ok {
		return core
	}
	core := &queryCore{
		client:    c,
		key:       key,
		opts:      opts,
		staleTime: c.resolveStale(opts.StaleTime),
		cacheTime: c.resolveCache(opts.CacheTime),
		producer:  producer,
		status:    StatusIdle,
	}
	if _, pending := c.pendingInvalid[key]; pending {
		core.invalid = true
		delete(c.pendingInvalid, key)
	}
	c.queries[key] = core
	return core
}

func (c *Client) resolveStale(d time.Duration) time.Duration {
	if d == 0 {
		return c.opts.DefaultStaleTime
	}
	return d
}

func (c *Client) resolveCache(d time.Duration) time.Duration {
	if d == CacheForever {
		return 0 // store: 0 = retain indefinitely
	}
	if d == 0 {
		d = c.opts.DefaultCacheTime
	}
	if d == 0 {
		d = defaultCacheTime
	}
	if d == CacheForever {
		return 0
	}
	return d
}

// ==============================
// Invalidation and cache commands
// ==============================

// InvalidateQuery marks key's data as invalid and refetches it if the key
// has subscribers. Invalidating a key with no query yet is remembered and
// applied when the query is first created.
func (c *Client) InvalidateQuery(key string) {
	c.mu.Lock()
	var targets []invalidator
	if core, ok := c.queries[key]; ok {
		targets = append(targets, core)
	}
	if inf, ok := c.infinite[key]; ok {
		targets = append(targets, inf.(invalidator))
	}
	if len(targets) == 0 {
		c.pendingInvalid[key] = struct{}{}
	}
	c.mu.Unlock()

	for _, t := range targets {
		t.invalidate()
	}
	c.log.Debug("query invalidated", Fields{"key": key})
}

// InvalidateQueriesWithPrefix invalidates every known query whose key starts
// with prefix, plus every cached entry under the prefix that has no query
// yet (remembered as pending).
func (c *Client) InvalidateQueriesWithPrefix(prefix string) {
	known := make(map[string]struct{})
	var targets []invalidator

	c.mu.Lock()
	for key, core := range c.queries {
		if strings.HasPrefix(key, prefix) {
			targets = append(targets, core)
			known[key] = struct{}{}
		}
	}
	for key, inf := range c.infinite {
		if strings.HasPrefix(key, prefix) {
			targets = append(targets, inf.(invalidator))
			known[key] = struct{}{}
		}
	}
	c.mu.Unlock()

	for _, key := range c.store.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if _, ok := known[key]; ok {
			continue
		}
		c.mu.Lock()
		c.pendingInvalid[key] = struct{}{}
		c.mu.Unlock()
	}

	for _, t := range targets {
		t.invalidate()
	}
	c.log.Debug("queries invalidated", Fields{"prefix": prefix, "count": len(targets)})
}

// SetQueryData writes data for key directly, bypassing any producer. The
// entry becomes fresh as of now; an existing query core transitions to
// success. The staple of optimistic updates.
func (c *Client) SetQueryData(key string, data any) {
	c.mu.Lock()
	core, ok := c.queries[key]
	c.mu.Unlock()

	staleTime := c.resolveStale(0)
	cacheTime := c.resolveCache(0)
	secure := false
	if ok {
		staleTime, cacheTime, secure = core.staleTime, core.cacheTime, core.opts.Secure
	}
	c.store.Set(key, data, store.SetOptions{
		StaleTime: staleTime,
		CacheTime: cacheTime,
		Secure:    secure,
	})

	if ok {
		core.mu.Lock()
		core.status = StatusSuccess
		core.err = nil
		core.invalid = false
		core.mu.Unlock()
		core.notify()
	}
}

// RemoveQuery drops key's cache entry and resets its query to idle.
// Reference counts are ignored: remove means remove.
func (c *Client) RemoveQuery(key string) {
	c.store.Remove(key)
	c.mu.Lock()
	core, ok := c.queries[key]
	inf, iok := c.infinite[key]
	c.mu.Unlock()
	if ok {
		core.reset()
	}
	if iok {
		inf.(invalidator).reset()
	}
}

// Clear wipes the entire cache and resets every query to idle. Subscribers
// stay attached and observe the reset.
func (c *Client) Clear() {
	c.store.Clear()
	c.mu.Lock()
	cores := make([]invalidator, 0, len(c.queries)+len(c.infinite))
	for _, core := range c.queries {
		cores = append(cores, core)
	}
	for _, inf := range c.infinite {
		cores = append(cores, inf.(invalidator))
	}
	c.pendingInvalid = make(map[string]struct{})
	c.mu.Unlock()
	for _, core := range cores {
		core.reset()
	}
	c.log.Info("cache cleared", nil)
}

// ClearSecureCache removes only entries flagged Secure, regardless of
// reference counts, and resets their queries. Built for logout flows.
func (c *Client) ClearSecureCache() {
	c.store.ClearSecure()
	c.mu.Lock()
	var cores []invalidator
	for _, core := range c.queries {
		if core.opts.Secure {
			cores = append(cores, core)
		}
	}
	c.mu.Unlock()
	for _, core := range cores {
		core.reset()
	}
	c.log.Info("secure cache cleared", nil)
}

// ==============================
// Introspection
// ==============================

// CacheInfo returns aggregate cache statistics.
func (c *Client) CacheInfo() store.Info { return c.store.Info() }

// CacheKeys returns all live cache keys, sorted.
func (c *Client) CacheKeys() []string { return c.store.Keys() }

// InspectEntry returns a copy of key's entry without touching hit/miss
// accounting or recency.
func (c *Client) InspectEntry(key string) (store.Entry, bool) {
	return c.store.Inspect(key)
}

// SetEvictionPolicy swaps the eviction strategy at runtime. Entries carry
// their own access metadata, so the new policy takes effect immediately.
func (c *Client) SetEvictionPolicy(t store.PolicyType) error {
	p, err := store.NewPolicy(t)
	if err != nil {
		return err
	}
	c.store.SetPolicy(p)
	c.log.Info("eviction policy changed", Fields{"policy": string(t)})
	return nil
}

// ==============================
// Connectivity and the offline queue
// ==============================

// Online reports the current connectivity flag. The engine never probes the
// network itself; the embedding application drives this.
func (c *Client) Online() bool { return c.online.Load() }

// SetOnline flips the connectivity flag. An offline-to-online transition
// processes the mutation queue once.
func (c *Client) SetOnline(ctx context.Context, online bool) error {
	was := c.online.Swap(online)
	if online && !was {
		c.log.Info("connectivity restored; processing queue", Fields{"pending": c.queue.Pending()})
		return c.queue.Process(ctx)
	}
	return nil
}

// ProcessQueue replays the pending mutations once, independent of the
// connectivity flag.
func (c *Client) ProcessQueue(ctx context.Context) error {
	return c.queue.Process(ctx)
}

// RestoreQueue loads previously persisted queue entries from the configured
// QueueStore. Call after the mutation types are registered so replay can
// resolve their handlers.
func (c *Client) RestoreQueue(ctx context.Context) error {
	return c.queue.Load(ctx)
}

// QueuedMutations returns the number of pending queue entries.
func (c *Client) QueuedMutations() int { return c.queue.Pending() }

// DeadMutations returns the entries that exceeded their replay ceiling.
func (c *Client) DeadMutations() []offline.DeadEntry { return c.queue.Dead() }

// QueueStats groups pending and dead counts by mutation type.
func (c *Client) QueueStats() map[string]offline.TypeStats { return c.queue.Stats() }

// ==============================
// Bulk prefetch
// ==============================

// PrefetchQueries runs the given prefetch jobs concurrently and waits for
// all of them. The first error is returned; the rest still run to
// completion, each caching independently.
func (c *Client) PrefetchQueries(ctx context.Context, jobs ...func(context.Context) error) error {
	var g errgroup.Group
	for _, job := range jobs {
		job := job
		g.Go(func() error { return job(ctx) })
	}
	return g.Wait()
}

// Close releases owned resources: the snapshot provider, if configured.
func (c *Client) Close(ctx context.Context) error {
	if c.snap != nil {
		return c.snap.Close(ctx)
	}
	return nil
}
