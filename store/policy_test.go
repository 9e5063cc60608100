package store

import (
	"testing"
	"time"
)

func entryAt(key string, created, accessed time.Time, count uint64) *Entry {
	return &Entry{
		Key:            key,
		CreatedAt:      created,
		LastAccessedAt: accessed,
		AccessCount:    count,
	}
}

func TestPolicyFactory(t *testing.T) {
	for _, typ := range []PolicyType{LRU, LFU, FIFO, ""} {
		if _, err := NewPolicy(typ); err != nil {
			t.Fatalf("NewPolicy(%q): %v", typ, err)
		}
	}
	if _, err := NewPolicy("arc"); err == nil {
		t.Fatal("expected error for unknown policy")
	}
}

func TestSelectEmpty(t *testing.T) {
	for _, typ := range []PolicyType{LRU, LFU, FIFO} {
		p, _ := NewPolicy(typ)
		if _, ok := p.Select(nil); ok {
			t.Fatalf("%s: Select(nil) should report no victim", typ)
		}
	}
}

func TestLRUSelectsOldestAccess(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := NewPolicy(LRU)
	key, ok := p.Select([]*Entry{
		entryAt("a", t0, t0.Add(3*time.Second), 5),
		entryAt("b", t0, t0.Add(1*time.Second), 9),
		entryAt("c", t0, t0.Add(2*time.Second), 1),
	})
	if !ok || key != "b" {
		t.Fatalf("got %q ok=%v, want b", key, ok)
	}
}

func TestLFUSelectsLowestCountThenOldest(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := NewPolicy(LFU)

	key, ok := p.Select([]*Entry{
		entryAt("a", t0, t0.Add(time.Second), 2),
		entryAt("b", t0, t0.Add(2*time.Second), 1),
		entryAt("c", t0, t0.Add(3*time.Second), 1),
	})
	if !ok || key != "b" {
		t.Fatalf("tie should break by oldest access: got %q ok=%v", key, ok)
	}
}

func TestFIFOSelectsOldestInsert(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p, _ := NewPolicy(FIFO)
	key, ok := p.Select([]*Entry{
		entryAt("a", t0.Add(2*time.Second), t0, 100),
		entryAt("b", t0.Add(1*time.Second), t0.Add(time.Hour), 0),
		entryAt("c", t0.Add(3*time.Second), t0, 0),
	})
	if !ok || key != "b" {
		t.Fatalf("got %q ok=%v, want b", key, ok)
	}
}

func TestTimestampCollisionDeterminism(t *testing.T) {
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, typ := range []PolicyType{LRU, LFU, FIFO} {
		p, _ := NewPolicy(typ)
		key, ok := p.Select([]*Entry{
			entryAt("b", t0, t0, 1),
			entryAt("a", t0, t0, 1),
			entryAt("c", t0, t0, 1),
		})
		if !ok || key != "a" {
			t.Fatalf("%s: collision should resolve by key order, got %q", typ, key)
		}
	}
}
