package store

import "time"

// Entry is one cached value plus its bookkeeping. The Store owns entry
// lifetime exclusively; callers receive value copies and mutate entries only
// through Store methods. Access bookkeeping (LastAccessedAt, AccessCount) is
// maintained on every hit regardless of the active eviction policy, so
// swapping policy at runtime needs no migration.
type Entry struct {
	Key     string
	Data    any
	HasData bool

	CreatedAt      time.Time
	LastAccessedAt time.Time
	UpdatedAt      time.Time

	// ReleasedAt starts the CacheTime retention clock. It is set whenever the
	// entry has no subscribers (at insert, and again when RefCount returns to
	// zero) and cleared while referenced.
	ReleasedAt time.Time

	StaleTime time.Duration
	CacheTime time.Duration // 0 => no retention limit

	AccessCount uint64
	RefCount    int

	// Secure entries are excluded from persisted snapshots, force-cleared by
	// ClearSecure, and always eligible for capacity eviction.
	Secure bool

	Cost int64
}

// Stale reports whether the entry's data has outlived StaleTime.
// Entries without data are always stale. StaleTime 0 means immediately stale.
func (e *Entry) Stale(now time.Time) bool {
	if !e.HasData {
		return true
	}
	return now.Sub(e.UpdatedAt) >= e.StaleTime
}

// expired reports whether the CacheTime retention elapsed. Referenced entries
// never expire.
func (e *Entry) expired(now time.Time) bool {
	if e.RefCount > 0 || e.CacheTime <= 0 || e.ReleasedAt.IsZero() {
		return false
	}
	return now.Sub(e.ReleasedAt) >= e.CacheTime
}

// evictable reports whether the capacity eviction scan may consider the
// entry. Secure entries are always fair game.
func (e *Entry) evictable() bool {
	return e.RefCount == 0 || e.Secure
}
