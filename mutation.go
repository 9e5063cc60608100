package queryflow

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/queryflow/codec"
)

// Mutator executes one write with the given variables and returns its result.
type Mutator[V, R any] func(ctx context.Context, vars V) (R, error)

// Mutation is a typed handle for a registered write operation. The typeID
// names it durably: queued executions are replayed after a restart by
// re-registering the same typeID, so the handler is data, never a closure.
type Mutation[V, R any] struct {
	client  *Client
	typeID  string
	mutator Mutator[V, R]
	opts    MutationOptions[V, R]
	codec   codec.Codec[V]

	mu      sync.Mutex
	state   MutationState[R]
	subs    map[uint64]func()
	nextSub uint64

	notifyMu sync.Mutex
}

// NewMutation registers a mutation type on the client. With QueueWhenOffline
// the replay handler is bound to typeID in the offline registry, so each
// typeID can be registered at most once per client.
func NewMutation[V, R any](c *Client, typeID string, mutator Mutator[V, R], opts MutationOptions[V, R]) (*Mutation[V, R], error) {
	if typeID == "" {
		return nil, configErr("typeID", "must not be empty")
	}
	if mutator == nil {
		return nil, configErr("mutator", "must not be nil")
	}
	if opts.MaxRetries < 0 {
		return nil, configErr("MaxRetries", "must not be negative")
	}
	if opts.Backoff == 0 {
		opts.Backoff = defaultBackoffBase
	}

	m := &Mutation[V, R]{
		client:  c,
		typeID:  typeID,
		mutator: mutator,
		opts:    opts,
		codec:   opts.Codec,
		state:   MutationState[R]{Status: StatusIdle},
	}
	if opts.QueueWhenOffline {
		if m.codec == nil {
			m.codec = codec.JSON[V]{}
		}
		handler := func(ctx context.Context, raw []byte) error {
			vars, err := m.codec.Decode(raw)
			if err != nil {
				return err
			}
			result, err := mutator(ctx, vars)
			if err != nil {
				return err
			}
			if opts.OnSuccess != nil {
				opts.OnSuccess(vars, result)
			}
			return nil
		}
		if err := c.registry.Register(typeID, opts.MaxAttempts, handler); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Mutation[V, R]) TypeID() string { return m.typeID }

// Mutate executes the mutation. Offline with QueueWhenOffline set, the
// variables are serialized and parked on the queue and Mutate returns
// ErrQueued without touching the mutation state. Online, the mutator runs
// with up to MaxRetries backed-off re-attempts; a registered rollback is
// applied only after the final failure.
func (m *Mutation[V, R]) Mutate(ctx context.Context, vars V) (R, error) {
	var zero R

	if m.opts.QueueWhenOffline && !m.client.Online() {
		raw, err := m.codec.Encode(vars)
		if err != nil {
			return zero, err
		}
		m.client.queue.Enqueue(m.typeID, raw, m.opts.Priority)
		m.client.hooks.MutationQueued(m.typeID)
		m.client.log.Info("mutation queued offline", Fields{"type": m.typeID})
		if m.opts.OnQueued != nil {
			m.opts.OnQueued(vars)
		}
		return zero, ErrQueued
	}

	m.setState(MutationState[R]{Status: StatusLoading})

	var rollback func()
	if m.opts.OnMutate != nil {
		rollback = m.opts.OnMutate(vars)
	}

	var result R
	var err error
	for attempt := 0; ; attempt++ {
		result, err = m.mutator(ctx, vars)
		if err == nil || attempt >= m.opts.MaxRetries {
			break
		}
		if werr := sleepCtx(ctx, m.opts.Backoff<<attempt); werr != nil {
			err = werr
			break
		}
	}

	if err != nil {
		if rollback != nil {
			rollback()
		}
		m.setState(MutationState[R]{Status: StatusError, Err: err})
		if m.opts.OnError != nil {
			m.opts.OnError(vars, err)
		}
		return zero, err
	}

	m.setState(MutationState[R]{Status: StatusSuccess, Data: result, HasData: true})
	if m.opts.OnSuccess != nil {
		m.opts.OnSuccess(vars, result)
	}
	return result, nil
}

// State returns the last online execution's state. Queued executions do not
// affect it.
func (m *Mutation[V, R]) State() MutationState[R] {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Reset returns the state to idle, clearing any result or error.
func (m *Mutation[V, R]) Reset() {
	m.setState(MutationState[R]{Status: StatusIdle})
}

// Subscribe registers fn for state changes with last-value replay.
func (m *Mutation[V, R]) Subscribe(fn func(MutationState[R])) (unsubscribe func()) {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	if m.subs == nil {
		m.subs = make(map[uint64]func())
	}
	m.subs[id] = func() { fn(m.State()) }
	m.mu.Unlock()

	fn(m.State())

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
		})
	}
}

func (m *Mutation[V, R]) setState(s MutationState[R]) {
	m.mu.Lock()
	m.state = s
	fns := make([]func(), 0, len(m.subs))
	for _, fn := range m.subs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	m.notifyMu.Lock()
	for _, fn := range fns {
		fn()
	}
	m.notifyMu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
