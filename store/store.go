// Package store implements the cache store: a key-addressed map of entries
// with freshness metadata, subscriber reference counts, hit/miss accounting,
// and capacity eviction under a pluggable policy.
package store

import (
	"sort"
	"sync"
	"time"
)

// CostFunc estimates the byte footprint of a value for MaxCacheSize
// accounting. The default charges 1 per entry (entry-count semantics).
type CostFunc func(key string, data any) int64

// Config tunes a Store. The zero value is a store with no capacity limits
// and LRU policy.
type Config struct {
	MaxEntries   int   // 0 = unlimited
	MaxCacheSize int64 // estimated bytes; 0 = unlimited
	Policy       Policy
	Cost         CostFunc

	// OnEvict/OnPressure are optional callbacks for capacity events.
	// Called outside the store lock; MUST be cheap and non-blocking.
	OnEvict    func(key string)
	OnPressure func()
}

// Store is safe for concurrent use. All entry mutation is serialized behind
// one lock; callbacks and returned entries never alias internal state.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	policy  Policy
	cfg     Config
	size    int64
	metrics Metrics

	now func() time.Time // overridable in tests
}

func New(cfg Config) *Store {
	if cfg.Policy == nil {
		cfg.Policy, _ = NewPolicy(LRU)
	}
	if cfg.Cost == nil {
		cfg.Cost = func(string, any) int64 { return 1 }
	}
	return &Store{
		entries: make(map[string]*Entry),
		policy:  cfg.Policy,
		cfg:     cfg,
		now:     time.Now,
	}
}

// SetOptions carry per-entry metadata for Set.
type SetOptions struct {
	StaleTime time.Duration
	CacheTime time.Duration
	Secure    bool

	// UpdatedAt overrides the freshness timestamp; zero means now.
	// Used by snapshot restore so restored data keeps its original age.
	UpdatedAt time.Time
}

// Get returns a copy of the entry and counts a hit or miss. An entry whose
// CacheTime retention has elapsed is removed lazily here and counted a miss,
// as is a placeholder entry that has no data yet.
func (s *Store) Get(key string) (Entry, bool) {
	now := s.now()
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok && e.expired(now) {
		s.dropLocked(e)
		ok = false
	}
	if ok && !e.HasData {
		ok = false
	}
	if !ok {
		s.metrics.Misses++
		s.mu.Unlock()
		return Entry{}, false
	}
	s.metrics.Hits++
	e.LastAccessedAt = now
	e.AccessCount++
	s.policy.OnAccess(e)
	out := *e
	s.mu.Unlock()
	return out, true
}

// Inspect returns a copy of the entry without touching access bookkeeping or
// hit/miss counters. Expired entries are reported as absent but not removed.
func (s *Store) Inspect(key string) (Entry, bool) {
	now := s.now()
	s.mu.RLock()
	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		s.mu.RUnlock()
		return Entry{}, false
	}
	out := *e
	s.mu.RUnlock()
	return out, true
}

// Set inserts or overwrites the entry for key and runs the eviction check.
// A write is never blocked: when over capacity with nothing evictable the
// store accepts the overflow and bumps the pressure counter.
func (s *Store) Set(key string, data any, opts SetOptions) {
	now := s.now()
	updatedAt := opts.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}
	cost := s.cfg.Cost(key, data)

	var evicted []string
	var pressure bool

	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		s.size += cost - e.Cost
		e.Data = data
		e.HasData = true
		e.UpdatedAt = updatedAt
		e.StaleTime = opts.StaleTime
		e.CacheTime = opts.CacheTime
		e.Secure = opts.Secure
		e.Cost = cost
		if e.RefCount == 0 {
			e.ReleasedAt = now // new data restarts the retention clock
		}
	} else {
		e = &Entry{
			Key:            key,
			Data:           data,
			HasData:        true,
			CreatedAt:      now,
			LastAccessedAt: now,
			UpdatedAt:      updatedAt,
			ReleasedAt:     now,
			StaleTime:      opts.StaleTime,
			CacheTime:      opts.CacheTime,
			Secure:         opts.Secure,
			Cost:           cost,
		}
		s.entries[key] = e
		s.size += cost
		s.policy.OnInsert(e)
	}
	evicted, pressure = s.evictLocked(key)
	s.mu.Unlock()

	if s.cfg.OnEvict != nil {
		for _, k := range evicted {
			s.cfg.OnEvict(k)
		}
	}
	if pressure && s.cfg.OnPressure != nil {
		s.cfg.OnPressure()
	}
}

// evictLocked removes victims until back under both limits. The entry just
// written (keep) is never selected, so a Set cannot evict its own key.
func (s *Store) evictLocked(keep string) (evicted []string, pressure bool) {
	for s.overLocked() {
		candidates := make([]*Entry, 0, len(s.entries))
		for k, e := range s.entries {
			if k != keep && e.evictable() {
				candidates = append(candidates, e)
			}
		}
		victim, ok := s.policy.Select(candidates)
		if !ok {
			s.metrics.Pressure++
			return evicted, true
		}
		e, present := s.entries[victim]
		if !present {
			// policy returned a key we do not hold; treat as pressure
			// rather than loop forever on a broken selection
			s.metrics.Pressure++
			return evicted, true
		}
		s.dropLocked(e)
		s.metrics.Evictions++
		evicted = append(evicted, victim)
	}
	return evicted, false
}

func (s *Store) overLocked() bool {
	if s.cfg.MaxEntries > 0 && len(s.entries) > s.cfg.MaxEntries {
		return true
	}
	if s.cfg.MaxCacheSize > 0 && s.size > s.cfg.MaxCacheSize {
		return true
	}
	return false
}

func (s *Store) dropLocked(e *Entry) {
	delete(s.entries, e.Key)
	s.size -= e.Cost
}

// Acquire increments the subscriber count, keeping the entry out of capacity
// eviction and pausing its retention clock. A missing (or retention-expired)
// key gets a dataless placeholder so the count survives until the first Set
// fills it in. Reports whether prior data was present.
func (s *Store) Acquire(key string) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if ok && e.expired(now) {
		s.dropLocked(e)
		ok = false
	}
	if !ok {
		e = &Entry{
			Key:            key,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
		s.entries[key] = e
		s.policy.OnInsert(e)
	}
	e.RefCount++
	e.ReleasedAt = time.Time{}
	return e.HasData
}

// Release decrements the subscriber count. When it returns to zero the
// CacheTime retention clock starts; the entry itself stays until it elapses
// or the entry is evicted, which is what allows instant re-display on a
// quick remount. A placeholder that never received data is dropped outright.
func (s *Store) Release(key string) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || e.RefCount == 0 {
		return
	}
	e.RefCount--
	if e.RefCount == 0 {
		if !e.HasData {
			s.dropLocked(e)
			return
		}
		e.ReleasedAt = now
	}
}

func (s *Store) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		s.dropLocked(e)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*Entry)
	s.size = 0
}

// ClearSecure force-drops every secure entry regardless of RefCount.
func (s *Store) ClearSecure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Secure {
			s.dropLocked(e)
		}
	}
}

// Keys returns all live keys in sorted order.
func (s *Store) Keys() []string {
	now := s.now()
	s.mu.RLock()
	out := make([]string, 0, len(s.entries))
	for k, e := range s.entries {
		if !e.expired(now) {
			out = append(out, k)
		}
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (s *Store) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Info{
		EntryCount: len(s.entries),
		SizeBytes:  s.size,
		Metrics:    s.metrics,
	}
}

// Export returns copies of all live entries for snapshotting.
// Filtering (e.g. secure exclusion) is the caller's concern.
func (s *Store) Export() []Entry {
	now := s.now()
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.HasData && !e.expired(now) {
			out = append(out, *e)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SetPolicy swaps the eviction strategy at runtime. Entries keep their
// bookkeeping fields, so no migration is needed.
func (s *Store) SetPolicy(p Policy) {
	if p == nil {
		return
	}
	s.mu.Lock()
	s.policy = p
	s.mu.Unlock()
}
