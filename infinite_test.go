package queryflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// cursorParams pages through [0,total) in steps of size, cursor = next offset.
func cursorParams(total, size int) func(pages []Page[[]int, int]) (int, bool) {
	return func(pages []Page[[]int, int]) (int, bool) {
		if len(pages) == 0 {
			return 0, true
		}
		last := pages[len(pages)-1]
		next := last.Param + size
		if next >= total {
			return 0, false
		}
		return next, true
	}
}

func pageProducer(size int, calls *atomic.Int32) PageProducer[[]int, int] {
	return func(ctx context.Context, offset int) ([]int, error) {
		if calls != nil {
			calls.Add(1)
		}
		out := make([]int, size)
		for i := range out {
			out[i] = offset + i
		}
		return out, nil
	}
}

func TestInfiniteFetchAccumulatesPages(t *testing.T) {
	c := newTestClient(t, Options{})
	q, err := GetInfiniteQuery(c, "feed", pageProducer(10, nil), InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(30, 10),
	})
	if err != nil {
		t.Fatalf("GetInfiniteQuery: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := q.FetchNextPage(ctx); err != nil {
			t.Fatalf("page %d: %v", i, err)
		}
	}

	s := q.State()
	if len(s.Pages) != 3 {
		t.Fatalf("pages = %d, want 3", len(s.Pages))
	}
	for i, p := range s.Pages {
		if p.Param != i*10 || !p.HasData || p.Data[0] != i*10 {
			t.Fatalf("page %d wrong: %+v", i, p)
		}
	}
	if s.HasNextPage {
		t.Fatal("HasNextPage true after exhaustion")
	}
	if s.Status != StatusSuccess {
		t.Fatalf("status = %v", s.Status)
	}

	// exhausted: further calls are no-ops
	if err := q.FetchNextPage(ctx); err != nil {
		t.Fatalf("post-exhaustion fetch: %v", err)
	}
	if got := len(q.State().Pages); got != 3 {
		t.Fatalf("pages grew to %d after exhaustion", got)
	}
}

func TestInfiniteMaxPagesSlidingWindow(t *testing.T) {
	c := newTestClient(t, Options{})
	q, _ := GetInfiniteQuery(c, "feed", pageProducer(5, nil), InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(100, 5),
		MaxPages:         3,
	})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := q.FetchNextPage(ctx); err != nil {
			t.Fatal(err)
		}
	}

	s := q.State()
	if len(s.Pages) != 3 {
		t.Fatalf("pages = %d, want window of 3", len(s.Pages))
	}
	// oldest trimmed: window should hold offsets 10,15,20
	for i, want := range []int{10, 15, 20} {
		if s.Pages[i].Param != want {
			t.Fatalf("window[%d].Param = %d, want %d", i, s.Pages[i].Param, want)
		}
	}
	if !s.HasNextPage {
		t.Fatal("window trim must not affect HasNextPage")
	}
}

func TestInfinitePageErrorIsolated(t *testing.T) {
	c := newTestClient(t, Options{})
	boom := errors.New("page down")
	var failNext atomic.Bool
	producer := func(ctx context.Context, offset int) ([]int, error) {
		if failNext.Load() {
			return nil, boom
		}
		return []int{offset}, nil
	}
	q, _ := GetInfiniteQuery(c, "feed", producer, InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(100, 1),
	})

	ctx := context.Background()
	q.FetchNextPage(ctx)
	q.FetchNextPage(ctx)
	failNext.Store(true)
	if err := q.FetchNextPage(ctx); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	s := q.State()
	if len(s.Pages) != 3 {
		t.Fatalf("pages = %d", len(s.Pages))
	}
	if !s.Pages[0].HasData || !s.Pages[1].HasData {
		t.Fatal("earlier pages lost on later page failure")
	}
	if s.Pages[2].Err == nil || s.Pages[2].HasData {
		t.Fatalf("failed page = %+v", s.Pages[2])
	}
	if s.Status != StatusSuccess {
		t.Fatalf("status = %v, want success while sibling data exists", s.Status)
	}

	// retrying the failed page in place
	failNext.Store(false)
	if err := q.RefetchPage(ctx, 2); err != nil {
		t.Fatalf("RefetchPage: %v", err)
	}
	p := q.State().Pages[2]
	if !p.HasData || p.Err != nil {
		t.Fatalf("retried page = %+v", p)
	}
}

func TestInfiniteFirstPageErrorIsErrorState(t *testing.T) {
	c := newTestClient(t, Options{})
	boom := errors.New("down")
	q, _ := GetInfiniteQuery(c, "feed", func(ctx context.Context, offset int) ([]int, error) {
		return nil, boom
	}, InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(10, 1),
	})

	if err := q.FetchNextPage(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if s := q.State(); s.Status != StatusError {
		t.Fatalf("status = %v, want error with no data at all", s.Status)
	}
}

func TestInfiniteRefetchPageOutOfRange(t *testing.T) {
	c := newTestClient(t, Options{})
	q, _ := GetInfiniteQuery(c, "feed", pageProducer(1, nil), InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(10, 1),
	})
	if err := q.RefetchPage(context.Background(), 0); err == nil {
		t.Fatal("out-of-range refetch accepted")
	}
}

func TestInfiniteFetchNextPageWith(t *testing.T) {
	c := newTestClient(t, Options{})
	q, _ := GetInfiniteQuery(c, "feed", pageProducer(5, nil), InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(1000, 5),
	})

	if err := q.FetchNextPageWith(context.Background(), 500); err != nil {
		t.Fatal(err)
	}
	s := q.State()
	if len(s.Pages) != 1 || s.Pages[0].Param != 500 {
		t.Fatalf("pages = %+v", s.Pages)
	}
}

func TestInfiniteSubscribeTriggersFirstPage(t *testing.T) {
	c := newTestClient(t, Options{})
	var calls atomic.Int32
	q, _ := GetInfiniteQuery(c, "feed", pageProducer(2, &calls), InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(10, 2),
	})

	unsub := q.Subscribe(func(InfiniteState[[]int, int]) {})
	defer unsub()
	waitFor(t, "first page", func() bool { return calls.Load() == 1 })
	waitFor(t, "page visible", func() bool { return len(q.State().Pages) == 1 })
}

func TestInfiniteTypeMismatchRejected(t *testing.T) {
	c := newTestClient(t, Options{})
	_, err := GetInfiniteQuery(c, "feed", pageProducer(1, nil), InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(10, 1),
	})
	if err != nil {
		t.Fatal(err)
	}
	_, err = GetInfiniteQuery(c, "feed", func(ctx context.Context, p string) (string, error) {
		return "", nil
	}, InfiniteOptions[string, string]{
		GetNextPageParam: func(pages []Page[string, string]) (string, bool) { return "", false },
	})
	if err == nil {
		t.Fatal("same key with different page types accepted")
	}
}

func TestInfiniteValidation(t *testing.T) {
	c := newTestClient(t, Options{})
	cases := []struct {
		name string
		run  func() error
	}{
		{"empty key", func() error {
			_, err := GetInfiniteQuery(c, "", pageProducer(1, nil), InfiniteOptions[[]int, int]{GetNextPageParam: cursorParams(1, 1)})
			return err
		}},
		{"nil producer", func() error {
			_, err := GetInfiniteQuery[[]int, int](c, "x", nil, InfiniteOptions[[]int, int]{GetNextPageParam: cursorParams(1, 1)})
			return err
		}},
		{"nil next-param fn", func() error {
			_, err := GetInfiniteQuery(c, "y", pageProducer(1, nil), InfiniteOptions[[]int, int]{})
			return err
		}},
	}
	for _, tc := range cases {
		if tc.run() == nil {
			t.Fatalf("%s accepted", tc.name)
		}
	}
}

func TestInfinitePagesPersistedToCache(t *testing.T) {
	c := newTestClient(t, Options{})
	q, _ := GetInfiniteQuery(c, "feed", pageProducer(2, nil), InfiniteOptions[[]int, int]{
		GetNextPageParam: cursorParams(10, 2),
		QueryOptions:     QueryOptions{StaleTime: time.Minute},
	})
	q.FetchNextPage(context.Background())

	e, ok := c.InspectEntry("feed")
	if !ok || !e.HasData {
		t.Fatal("page data not in cache store")
	}
	pages, ok := e.Data.([]Page[[]int, int])
	if !ok || len(pages) != 1 {
		t.Fatalf("cached value = %T", e.Data)
	}
	if got := fmt.Sprint(pages[0].Data); got != "[0 1]" {
		t.Fatalf("cached page data = %s", got)
	}
}
