package queryflow

import (
	"context"
	"errors"
	"time"

	"github.com/unkn0wn-root/queryflow/internal/wire"
	"github.com/unkn0wn-root/queryflow/store"
)

// ErrNoSnapshotProvider is returned by the snapshot operations when the
// client was built without one.
var ErrNoSnapshotProvider = errors.New("queryflow: no snapshot provider configured")

func (c *Client) snapKey() string { return "snap:" + c.opts.Namespace }

// SaveSnapshot serializes the current cache contents through the snapshot
// codec and writes them to the provider as one wire blob. Secure entries are
// never included. Entries whose data the codec cannot encode are skipped
// with a hook, not fatal: a partial snapshot warms more than none.
func (c *Client) SaveSnapshot(ctx context.Context) error {
	if c.snap == nil {
		return ErrNoSnapshotProvider
	}

	entries := c.store.Export()
	items := make([]wire.SnapshotItem, 0, len(entries))
	for _, e := range entries {
		if e.Secure {
			continue
		}
		payload, err := c.snapCod.Encode(e.Data)
		if err != nil {
			c.hooks.SnapshotError("save", err)
			c.log.Warn("snapshot: entry not encodable, skipped", Fields{
				"key":   e.Key,
				"error": err.Error(),
			})
			continue
		}
		items = append(items, wire.SnapshotItem{
			Key:       e.Key,
			UpdatedAt: e.UpdatedAt.UnixNano(),
			Payload:   payload,
		})
	}

	blob := wire.EncodeSnapshot(items)
	ok, err := c.snap.Set(ctx, c.snapKey(), blob, int64(len(blob)), c.resolveCache(0))
	if err != nil {
		c.hooks.SnapshotError("save", err)
		return err
	}
	if !ok {
		c.log.Warn("snapshot: provider rejected write", Fields{"bytes": len(blob)})
		return nil
	}
	c.log.Info("snapshot saved", Fields{"entries": len(items), "bytes": len(blob)})
	return nil
}

// RestoreSnapshot loads the persisted snapshot and seeds the cache with its
// entries. Each restored entry keeps its original update time, so data that
// went stale while the process was down is correctly served stale (shown
// immediately, refetched in the background) on first use. A missing or
// corrupt blob restores nothing and reports via hooks; corruption is not an
// application error.
func (c *Client) RestoreSnapshot(ctx context.Context) error {
	if c.snap == nil {
		return ErrNoSnapshotProvider
	}

	blob, found, err := c.snap.Get(ctx, c.snapKey())
	if err != nil {
		c.hooks.SnapshotError("restore", err)
		return err
	}
	if !found {
		return nil
	}

	items, err := wire.DecodeSnapshot(blob)
	if err != nil {
		c.hooks.SnapshotError("restore", err)
		c.log.Warn("snapshot: blob corrupt, discarded", Fields{"error": err.Error()})
		return nil
	}

	restored := 0
	for _, it := range items {
		data, err := c.snapCod.Decode(it.Payload)
		if err != nil {
			c.hooks.SnapshotError("restore", err)
			continue
		}
		c.store.Set(it.Key, data, store.SetOptions{
			StaleTime: c.resolveStale(0),
			CacheTime: c.resolveCache(0),
			UpdatedAt: time.Unix(0, it.UpdatedAt),
		})
		restored++
	}
	c.log.Info("snapshot restored", Fields{"entries": restored})
	return nil
}

// DropSnapshot removes the persisted snapshot blob.
func (c *Client) DropSnapshot(ctx context.Context) error {
	if c.snap == nil {
		return ErrNoSnapshotProvider
	}
	return c.snap.Del(ctx, c.snapKey())
}
