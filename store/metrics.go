package store

// Metrics are cumulative counters since the store was created.
// Pressure counts Set calls that exceeded a capacity limit with no evictable
// entry available (the store accepts the overflow rather than block a write).
type Metrics struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Pressure  uint64
}

// HitRate returns hits/(hits+misses), 0 before any access.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Info is a point-in-time view of store occupancy and counters.
type Info struct {
	EntryCount int
	SizeBytes  int64
	Metrics    Metrics
}
