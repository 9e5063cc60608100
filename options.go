package queryflow

import (
	"time"

	"github.com/unkn0wn-root/queryflow/codec"
	"github.com/unkn0wn-root/queryflow/offline"
	"github.com/unkn0wn-root/queryflow/provider"
	"github.com/unkn0wn-root/queryflow/store"
)

const (
	defaultCacheTime   = 5 * time.Minute
	defaultBackoffBase = 100 * time.Millisecond
)

// CacheForever disables the retention limit for one query
// (CacheTime 0 means "use the client default").
const CacheForever = time.Duration(-1)

// Options tune a Client. All fields have workable defaults; the zero value
// is a client with an unbounded LRU cache, no persistence, and no logging.
type Options struct {
	// Namespace isolates this client's persisted keys (snapshots, queue
	// blobs) from other engines sharing a provider. Default "queryflow".
	Namespace string

	// Cache capacity. Zero means unlimited.
	MaxEntries   int
	MaxCacheSize int64

	// EvictionPolicy selects the built-in strategy; default LRU.
	EvictionPolicy store.PolicyType

	// Cost estimates an entry's byte footprint for MaxCacheSize accounting.
	// Default charges 1 per entry.
	Cost store.CostFunc

	// DefaultStaleTime/DefaultCacheTime apply to queries that leave theirs
	// zero. DefaultStaleTime 0 means data is immediately stale (refetch on
	// every access); DefaultCacheTime 0 means 5 minutes.
	DefaultStaleTime time.Duration
	DefaultCacheTime time.Duration

	Logger Logger // nil => NopLogger
	Hooks  Hooks  // nil => NopHooks

	// QueueStore persists queued offline mutations across restarts.
	// nil keeps the queue in memory only.
	QueueStore offline.Store

	// QueueConcurrency bounds simultaneous replays during queue processing.
	// Default 1, which also guarantees strict priority order.
	QueueConcurrency int

	// SnapshotProvider + SnapshotCodec enable SaveSnapshot/RestoreSnapshot.
	// SnapshotCodec defaults to codec.JSON[any] when a provider is set.
	SnapshotProvider provider.Provider
	SnapshotCodec    codec.Codec[any]

	// StartOffline marks the network down from the start; mutations with
	// QueueWhenOffline park immediately until SetOnline(true).
	StartOffline bool
}

// QueryOptions configure one query key. Options bind at core creation: the
// first GetQuery for a key wins, later calls reuse the existing core.
type QueryOptions struct {
	// Disabled gates execution entirely: a disabled query never leaves
	// idle, regardless of fetch or subscribe calls.
	Disabled bool

	// StaleTime is the freshness window. Within it a cached value is served
	// without any network activity; past it the value is still served
	// immediately but a background refetch is triggered. 0 uses the client
	// default.
	StaleTime time.Duration

	// CacheTime is how long the entry is retained after the last subscriber
	// detaches. 0 uses the client default; CacheForever disables the limit.
	CacheTime time.Duration

	// RefetchOnMount forces a background refetch on every new subscription
	// even when cached data is still fresh.
	RefetchOnMount bool

	// Secure entries are excluded from snapshots, cleared by
	// ClearSecureCache, and always evictable.
	Secure bool
}

// InfiniteOptions configure an infinite query.
type InfiniteOptions[T, P any] struct {
	QueryOptions

	// GetNextPageParam derives the parameter for the next page from the
	// pages fetched so far. Returning ok=false means "no more pages".
	// Required.
	GetNextPageParam func(pages []Page[T, P]) (next P, ok bool)

	// MaxPages caps the page list; the oldest pages are trimmed on
	// overflow, preserving the most recent end. 0 means unlimited.
	MaxPages int
}

// MutationOptions configure one mutation type.
type MutationOptions[V, R any] struct {
	// MaxRetries is the number of immediate re-attempts after a failed
	// online execution, each preceded by exponential backoff.
	MaxRetries int

	// Backoff is the base delay before the first retry, doubled per
	// attempt. Default 100ms.
	Backoff time.Duration

	// Priority orders offline replay: higher replays first.
	Priority int

	// QueueWhenOffline parks the mutation on the offline queue instead of
	// failing when the network is marked down. Requires Codec.
	QueueWhenOffline bool

	// MaxAttempts is the replay ceiling before a queued mutation moves to
	// the dead list. 0 uses the queue default.
	MaxAttempts int

	// Codec serializes variables for the offline queue, so entries can be
	// replayed after a process restart via the type registry.
	Codec codec.Codec[V]

	// Optimistic update hooks. OnMutate runs before execution and may
	// return a rollback applied if the mutation ultimately fails.
	OnMutate  func(vars V) (rollback func())
	OnSuccess func(vars V, result R)
	OnError   func(vars V, err error)

	// OnQueued fires with the original variables when the mutation is
	// parked on the offline queue.
	OnQueued func(vars V)
}
