package store

import "time"

type fifo struct{}

func (fifo) Select(candidates []*Entry) (string, bool) {
	var victim *Entry
	for _, e := range candidates {
		if victim == nil || older(e.CreatedAt, e.Key, victim.CreatedAt, victim.Key) {
			victim = e
		}
	}
	if victim == nil {
		return "", false
	}
	return victim.Key, true
}

func (fifo) OnAccess(*Entry) {}
func (fifo) OnInsert(*Entry) {}

// older orders by timestamp, then key, so victim selection is deterministic
// when timestamps collide on a coarse clock.
func older(at time.Time, key string, than time.Time, thanKey string) bool {
	if at.Equal(than) {
		return key < thanKey
	}
	return at.Before(than)
}
