package queryflow

// Hooks are lightweight callbacks for high-signal engine events.
// Implementations MUST be cheap and non-blocking; the engine calls them on
// hot paths. Wrap with hooks/async for anything heavier.
type Hooks interface {
	// A cache entry was evicted under capacity pressure.
	EntryEvicted(key string)

	// A Set exceeded a capacity limit with no evictable entry; the write
	// was accepted as overflow.
	EvictionPressure()

	// A mutation executed while offline was parked on the queue.
	MutationQueued(typeID string)

	// A queued mutation replayed successfully.
	MutationReplayed(typeID string)

	// A queued mutation exceeded its attempt ceiling and moved to the dead
	// list. Never re-thrown to any caller - the original caller has already
	// detached, so this hook (and Queue.Dead) is the reporting surface.
	DeadMutation(typeID string, attempts int, err error)

	// Queue processing found an entry whose type has no registered handler;
	// the entry stays pending.
	QueueSkipped(typeID string)

	// Snapshot save/restore or queue persistence failed.
	// op ∈ {"save", "restore", "queue_save"}
	SnapshotError(op string, err error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) EntryEvicted(string)             {}
func (NopHooks) EvictionPressure()               {}
func (NopHooks) MutationQueued(string)           {}
func (NopHooks) MutationReplayed(string)         {}
func (NopHooks) DeadMutation(string, int, error) {}
func (NopHooks) QueueSkipped(string)             {}
func (NopHooks) SnapshotError(string, error)     {}
