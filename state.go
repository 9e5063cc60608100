package queryflow

import "time"

// Status is the lifecycle phase of a query or mutation.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// QueryState is the externally observed snapshot of one query.
//
// Invariants: Status success implies HasData; Status error implies Err.
// IsFetching can be true alongside success - a background refetch keeps the
// stale value visible instead of flickering back to loading.
type QueryState[T any] struct {
	Status     Status
	IsFetching bool

	Data    T
	HasData bool

	// Err may be populated alongside success data: a failed background
	// refetch keeps the prior value and exposes the error next to it.
	Err error

	DataUpdatedAt time.Time
}

// Page is one fetched page of an infinite query. A transport failure marks
// only this page's Err, leaving sibling pages untouched.
type Page[T, P any] struct {
	Param   P
	Data    T
	HasData bool
	Err     error
}

// InfiniteState is the observed snapshot of an infinite query.
type InfiniteState[T, P any] struct {
	Status             Status
	IsFetching         bool
	IsFetchingNextPage bool
	Pages              []Page[T, P]
	HasNextPage        bool
	Err                error
}

// MutationState is the observed snapshot of one mutation. Mutations are
// never cached; a queued-while-offline mutation stays idle until replay.
type MutationState[R any] struct {
	Status  Status
	Data    R
	HasData bool
	Err     error
}
