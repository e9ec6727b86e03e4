package cache

import (
	"context"
	"time"
)

// Checkpoint records when a sync of some kind last completed. Checkpoints
// live in the sync namespace, which never expires.
type Checkpoint struct {
	Kind      string    `json:"kind"`
	LastRunAt time.Time `json:"last_run_at"`
}

// Checkpoint returns the named checkpoint, if one was written.
func (c *Cache) Checkpoint(ctx context.Context, name string) (Checkpoint, bool) {
	return GetAs[Checkpoint](ctx, c, CheckpointKey(name))
}

// SetCheckpoint records that the named sync completed at at.
func (c *Cache) SetCheckpoint(ctx context.Context, name string, at time.Time) bool {
	return c.Set(ctx, CheckpointKey(name), Checkpoint{Kind: name, LastRunAt: at.UTC()})
}
