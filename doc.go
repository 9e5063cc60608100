// Package queryflow is a client-side asynchronous data layer: declarative
// cached queries with staleness-driven refetching, request deduplication,
// subscriber reference counting, infinite pagination, and an offline
// mutation queue replayed through a durable type registry.
//
// The model in one paragraph: reads are queries, identified by a string key.
// A query's data lives in the cache store with two clocks - StaleTime (how
// long data is served without refetching) and CacheTime (how long it is
// retained after the last subscriber detaches). Stale data is always served
// immediately while a single deduplicated background refetch runs, so
// consumers never see a flicker back to loading. Writes are mutations,
// registered by type ID; executed offline they park on a priority queue and
// replay when connectivity returns, surviving restarts via a pluggable byte
// store.
//
// Construct a Client with New and pass it explicitly; there is no package
// default. Typed access goes through the generic top-level constructors:
//
//	client, _ := queryflow.New(queryflow.Options{MaxEntries: 1000})
//
//	q, _ := queryflow.GetQuery(client, "user:42", fetchUser, queryflow.QueryOptions{
//	    StaleTime: 30 * time.Second,
//	})
//	user, err := q.Fetch(ctx)
//
//	unsub := q.Subscribe(func(s queryflow.QueryState[User]) { render(s) })
//	defer unsub()
//
// Handles for the same key share one lifecycle: one in-flight producer call,
// one cache entry, one subscriber list.
package queryflow
