package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/queryflow"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	EvictionEvery uint64
	PressureEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix. Cache keys often
	// embed user identifiers; never log them raw by accident.
	Redact func(string) string
}

// Hooks logs engine events through slog. Eviction and pressure events can
// fire at cache-write rate, so both are sampled.
type Hooks struct {
	l    *slog.Logger
	opts Options

	evictCtr    atomic.Uint64
	pressureCtr atomic.Uint64
}

var _ queryflow.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) EntryEvicted(key string) {
	if h.l == nil || !sample(h.opts.EvictionEvery, &h.evictCtr) {
		return
	}
	h.l.Debug("queryflow.entry_evicted",
		"key", h.redact(key))
}

func (h *Hooks) EvictionPressure() {
	if h.l == nil || !sample(h.opts.PressureEvery, &h.pressureCtr) {
		return
	}
	h.l.Warn("queryflow.eviction_pressure",
		"msg", "cache over capacity with no evictable entry")
}

func (h *Hooks) MutationQueued(typeID string) {
	if h.l == nil {
		return
	}
	h.l.Info("queryflow.mutation_queued",
		"type", typeID)
}

func (h *Hooks) MutationReplayed(typeID string) {
	if h.l == nil {
		return
	}
	h.l.Info("queryflow.mutation_replayed",
		"type", typeID)
}

func (h *Hooks) DeadMutation(typeID string, attempts int, err error) {
	if h.l == nil {
		return
	}
	h.l.Error("queryflow.mutation_dead",
		"type", typeID,
		"attempts", attempts,
		"err", err)
}

func (h *Hooks) QueueSkipped(typeID string) {
	if h.l == nil {
		return
	}
	h.l.Warn("queryflow.queue_skipped",
		"type", typeID,
		"msg", "no handler registered; entry stays pending")
}

func (h *Hooks) SnapshotError(op string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("queryflow.snapshot_error",
		"op", op,
		"err", err)
}
