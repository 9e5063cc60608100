// usage:
//
// import (
//
//	"log/slog"
//
//	"github.com/unkn0wn-root/queryflow"
//	"github.com/unkn0wn-root/queryflow/hooks/async"
//	"github.com/unkn0wn-root/queryflow/sloghooks"
//
// )
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    EvictionEvery: 10, // sample logs: ~every 10th eviction
//	    PressureEvery: 1,  // log every pressure event
//	})
//
// hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
// defer hooks.Close()
//
//	client, _ := queryflow.New(queryflow.Options{
//	    Namespace: "app:prod",
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"

	"github.com/unkn0wn-root/queryflow"
)

type Hooks struct {
	inner queryflow.Hooks
	q     chan func()
	wg    sync.WaitGroup
	once  sync.Once
}

var _ queryflow.Hooks = (*Hooks)(nil)

func New(inner queryflow.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

func (h *Hooks) try(f func()) {
	select {
	case h.q <- f:
	default: // drop
	}
}

func (h *Hooks) EntryEvicted(k string)     { h.try(func() { h.inner.EntryEvicted(k) }) }
func (h *Hooks) EvictionPressure()         { h.try(func() { h.inner.EvictionPressure() }) }
func (h *Hooks) MutationQueued(t string)   { h.try(func() { h.inner.MutationQueued(t) }) }
func (h *Hooks) MutationReplayed(t string) { h.try(func() { h.inner.MutationReplayed(t) }) }
func (h *Hooks) QueueSkipped(t string)     { h.try(func() { h.inner.QueueSkipped(t) }) }
func (h *Hooks) SnapshotError(op string, err error) {
	h.try(func() { h.inner.SnapshotError(op, err) })
}
func (h *Hooks) DeadMutation(t string, n int, err error) {
	h.try(func() { h.inner.DeadMutation(t, n, err) })
}
