package queryflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/unkn0wn-root/queryflow/offline"
)

type todo struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

func TestMutateOnlineSuccess(t *testing.T) {
	c := newTestClient(t, Options{})
	var gotVars todo
	m, err := NewMutation(c, "todo.create", func(ctx context.Context, v todo) (int, error) {
		return v.ID, nil
	}, MutationOptions[todo, int]{
		OnSuccess: func(v todo, id int) { gotVars = v },
	})
	if err != nil {
		t.Fatalf("NewMutation: %v", err)
	}

	id, err := m.Mutate(context.Background(), todo{ID: 9, Text: "x"})
	if err != nil || id != 9 {
		t.Fatalf("Mutate = (%d, %v)", id, err)
	}
	if gotVars.ID != 9 {
		t.Fatal("OnSuccess not called with variables")
	}
	s := m.State()
	if s.Status != StatusSuccess || !s.HasData || s.Data != 9 {
		t.Fatalf("state = %+v", s)
	}
}

func TestMutateRetriesThenSucceeds(t *testing.T) {
	c := newTestClient(t, Options{})
	var calls atomic.Int32
	m, _ := NewMutation(c, "flaky", func(ctx context.Context, v int) (int, error) {
		if calls.Add(1) < 3 {
			return 0, errors.New("transient")
		}
		return v * 2, nil
	}, MutationOptions[int, int]{MaxRetries: 3, Backoff: time.Millisecond})

	got, err := m.Mutate(context.Background(), 5)
	if err != nil || got != 10 {
		t.Fatalf("Mutate = (%d, %v)", got, err)
	}
	if calls.Load() != 3 {
		t.Fatalf("attempts = %d, want 3", calls.Load())
	}
}

func TestMutateFinalFailureRollsBack(t *testing.T) {
	c := newTestClient(t, Options{})
	boom := errors.New("rejected")
	var rolledBack, onErr bool
	m, _ := NewMutation(c, "doomed", func(ctx context.Context, v int) (int, error) {
		return 0, boom
	}, MutationOptions[int, int]{
		MaxRetries: 1,
		Backoff:    time.Millisecond,
		OnMutate:   func(int) func() { return func() { rolledBack = true } },
		OnError:    func(_ int, err error) { onErr = true },
	})

	if _, err := m.Mutate(context.Background(), 1); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if !rolledBack || !onErr {
		t.Fatalf("rolledBack=%v onErr=%v", rolledBack, onErr)
	}
	if s := m.State(); s.Status != StatusError || !errors.Is(s.Err, boom) {
		t.Fatalf("state = %+v", s)
	}
}

func TestMutateOfflineQueuesAndReplays(t *testing.T) {
	c := newTestClient(t, Options{StartOffline: true})
	var replayed []todo
	var mu sync.Mutex
	var queued bool
	m, _ := NewMutation(c, "todo.create", func(ctx context.Context, v todo) (int, error) {
		mu.Lock()
		replayed = append(replayed, v)
		mu.Unlock()
		return v.ID, nil
	}, MutationOptions[todo, int]{
		QueueWhenOffline: true,
		OnQueued:         func(todo) { queued = true },
	})

	_, err := m.Mutate(context.Background(), todo{ID: 1, Text: "offline"})
	if !errors.Is(err, ErrQueued) {
		t.Fatalf("err = %v, want ErrQueued", err)
	}
	if !queued {
		t.Fatal("OnQueued not called")
	}
	if s := m.State(); s.Status != StatusIdle {
		t.Fatalf("queued mutation changed state to %v", s.Status)
	}
	if c.QueuedMutations() != 1 {
		t.Fatalf("pending = %d", c.QueuedMutations())
	}

	if err := c.SetOnline(context.Background(), true); err != nil {
		t.Fatalf("SetOnline: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(replayed) != 1 || replayed[0].Text != "offline" {
		t.Fatalf("replayed = %+v", replayed)
	}
	if c.QueuedMutations() != 0 {
		t.Fatal("queue not drained")
	}
}

func TestOfflineReplayPriorityOrder(t *testing.T) {
	c := newTestClient(t, Options{StartOffline: true})
	var mu sync.Mutex
	var order []string
	record := func(name string) Mutator[string, struct{}] {
		return func(ctx context.Context, v string) (struct{}, error) {
			mu.Lock()
			order = append(order, v)
			mu.Unlock()
			return struct{}{}, nil
		}
	}
	low, _ := NewMutation(c, "low", record("low"), MutationOptions[string, struct{}]{
		QueueWhenOffline: true, Priority: 1,
	})
	high, _ := NewMutation(c, "high", record("high"), MutationOptions[string, struct{}]{
		QueueWhenOffline: true, Priority: 10,
	})

	low.Mutate(context.Background(), "l1")
	high.Mutate(context.Background(), "h1")
	low.Mutate(context.Background(), "l2")

	c.SetOnline(context.Background(), true)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"h1", "l1", "l2"}
	if len(order) != len(want) {
		t.Fatalf("order = %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestOfflineReplayDeadAfterCeiling(t *testing.T) {
	var dead []string
	hooks := &recordingHooks{onDead: func(typeID string) { dead = append(dead, typeID) }}
	c := newTestClient(t, Options{StartOffline: true, Hooks: hooks})

	boom := errors.New("still broken")
	m, _ := NewMutation(c, "cursed", func(ctx context.Context, v int) (int, error) {
		return 0, boom
	}, MutationOptions[int, int]{QueueWhenOffline: true, MaxAttempts: 2})

	m.Mutate(context.Background(), 1)

	// each process attempts once; second failure hits the ceiling
	c.ProcessQueue(context.Background())
	if c.QueuedMutations() != 1 {
		t.Fatalf("pending after first failure = %d", c.QueuedMutations())
	}
	c.ProcessQueue(context.Background())

	if c.QueuedMutations() != 0 {
		t.Fatal("dead entry still pending")
	}
	deadList := c.DeadMutations()
	if len(deadList) != 1 || deadList[0].TypeID != "cursed" || !errors.Is(deadList[0].LastErr, boom) {
		t.Fatalf("dead = %+v", deadList)
	}
	if len(dead) != 1 || dead[0] != "cursed" {
		t.Fatalf("hook dead = %v", dead)
	}
	if st := c.QueueStats()["cursed"]; st.Dead != 1 || st.Pending != 0 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestQueuePersistsAcrossClients(t *testing.T) {
	qs := offline.NewMemoryStore()

	c1 := newTestClient(t, Options{StartOffline: true, QueueStore: qs})
	m1, _ := NewMutation(c1, "todo.create", func(ctx context.Context, v todo) (int, error) {
		return 0, nil
	}, MutationOptions[todo, int]{QueueWhenOffline: true})
	m1.Mutate(context.Background(), todo{ID: 7, Text: "persisted"})

	// "restart": fresh client, same store, re-register the type
	var got todo
	c2 := newTestClient(t, Options{StartOffline: true, QueueStore: qs})
	if _, err := NewMutation(c2, "todo.create", func(ctx context.Context, v todo) (int, error) {
		got = v
		return v.ID, nil
	}, MutationOptions[todo, int]{QueueWhenOffline: true}); err != nil {
		t.Fatal(err)
	}
	if err := c2.RestoreQueue(context.Background()); err != nil {
		t.Fatalf("RestoreQueue: %v", err)
	}
	if c2.QueuedMutations() != 1 {
		t.Fatalf("restored pending = %d", c2.QueuedMutations())
	}
	c2.SetOnline(context.Background(), true)
	if got.ID != 7 || got.Text != "persisted" {
		t.Fatalf("replayed vars = %+v", got)
	}
}

func TestNewMutationDuplicateTypeID(t *testing.T) {
	c := newTestClient(t, Options{})
	mk := func() error {
		_, err := NewMutation(c, "dup", func(ctx context.Context, v int) (int, error) {
			return v, nil
		}, MutationOptions[int, int]{QueueWhenOffline: true})
		return err
	}
	if err := mk(); err != nil {
		t.Fatal(err)
	}
	if err := mk(); err == nil {
		t.Fatal("duplicate typeID accepted")
	}
}

func TestMutationSubscribe(t *testing.T) {
	c := newTestClient(t, Options{})
	m, _ := NewMutation(c, "sub", func(ctx context.Context, v int) (int, error) {
		return v, nil
	}, MutationOptions[int, int]{})

	var mu sync.Mutex
	var statuses []Status
	unsub := m.Subscribe(func(s MutationState[int]) {
		mu.Lock()
		statuses = append(statuses, s.Status)
		mu.Unlock()
	})
	defer unsub()

	m.Mutate(context.Background(), 1)
	m.Reset()

	mu.Lock()
	defer mu.Unlock()
	want := []Status{StatusIdle, StatusLoading, StatusSuccess, StatusIdle}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %v", statuses)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Fatalf("statuses = %v, want %v", statuses, want)
		}
	}
}

// recordingHooks embeds NopHooks and overrides what a test cares about.
type recordingHooks struct {
	NopHooks
	onDead func(typeID string)
}

func (h *recordingHooks) DeadMutation(typeID string, attempts int, err error) {
	if h.onDead != nil {
		h.onDead(typeID)
	}
}
