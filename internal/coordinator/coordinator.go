// Package coordinator translates user intents (mark one read, mark all
// read, delete one) into an optimistic cache mutation plus exactly one
// gateway call, with compensating rollback when the call fails.
//
// Optimism is the point: consumers are UI elements where perceived
// latency matters, so the cache is mutated before the server confirms
// and un-mutated if it refuses. The brief visible inconsistency during
// the round trip is an accepted tradeoff, bounded by the rollback.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/notification-sync/internal/cache"
	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
)

// Gateway is the slice of the remote API the coordinator needs.
// *gateway.Client satisfies it; tests substitute fakes.
type Gateway interface {
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context) error
	Delete(ctx context.Context, id string) error
}

// Coordinator is the only permitted write path from consumers to the
// cache.
type Coordinator struct {
	cache *cache.Cache
	gw    Gateway

	// now is swappable for tests.
	now func() time.Time
}

// New creates a coordinator over the given cache and gateway.
func New(c *cache.Cache, gw Gateway) *Coordinator {
	return &Coordinator{
		cache: c,
		gw:    gw,
		now:   time.Now,
	}
}

// MarkRead marks a single notification as read. Already-read and
// locally unknown records are a successful no-op, so calling it twice
// is the same as calling it once.
//
// On a recoverable failure (network, server) the optimistic patch is
// reverted and the error is returned for the caller to retry or
// display. A not-found response means the server already dropped the
// record, so the local state stands. An unauthorized response is
// surfaced without rollback; the session layer forces a re-sync or
// logout, making local state moot.
func (c *Coordinator) MarkRead(ctx context.Context, id string) error {
	snap := c.cache.Snapshot()
	var current *model.Notification
	for i := range snap.Records {
		if snap.Records[i].ID == id {
			current = &snap.Records[i]
			break
		}
	}
	if current == nil || current.Read {
		return nil
	}

	readAt := c.now()
	c.cache.Patch(id, func(n *model.Notification) {
		n.Read = true
		n.ReadAt = &readAt
	})

	err := c.gw.MarkRead(ctx, id)
	if err == nil || gateway.IsKind(err, gateway.KindNotFound) {
		return nil
	}
	if gateway.IsKind(err, gateway.KindUnauthorized) {
		return fmt.Errorf("marking notification %s read: %w", id, err)
	}

	c.cache.Patch(id, func(n *model.Notification) {
		n.Read = false
		n.ReadAt = nil
	})
	return fmt.Errorf("marking notification %s read: %w", id, err)
}

// MarkAllRead marks every notification as read. The set of unread IDs
// is snapshotted before mutating so the rollback restores exactly those
// records; anything delivered by a concurrent refresh between the
// optimistic apply and the failure stays untouched.
func (c *Coordinator) MarkAllRead(ctx context.Context) error {
	snap := c.cache.Snapshot()
	var unreadIDs []string
	for _, r := range snap.Records {
		if !r.Read {
			unreadIDs = append(unreadIDs, r.ID)
		}
	}

	readAt := c.now()
	if patched := c.cache.PatchIDs(unreadIDs, func(n *model.Notification) {
		n.Read = true
		n.ReadAt = &readAt
	}); patched == 0 {
		// No local unread rows, but a count-only refresh may have left
		// a non-zero badge. Zero it; the server call below settles the
		// rest.
		c.cache.ReplaceCount(0)
	}

	err := c.gw.MarkAllRead(ctx)
	if err == nil || gateway.IsKind(err, gateway.KindNotFound) {
		return nil
	}
	if gateway.IsKind(err, gateway.KindUnauthorized) {
		return fmt.Errorf("marking all notifications read: %w", err)
	}

	c.cache.PatchIDs(unreadIDs, func(n *model.Notification) {
		n.Read = false
		n.ReadAt = nil
	})
	return fmt.Errorf("marking all notifications read: %w", err)
}

// DeleteOne removes a notification locally and remotely. On a
// recoverable failure the record is re-inserted at its original
// position (or by timestamp order if the surrounding records changed
// in the meantime) and the error is returned.
func (c *Coordinator) DeleteOne(ctx context.Context, id string) error {
	snap := c.cache.Snapshot()
	index := -1
	var removed model.Notification
	for i := range snap.Records {
		if snap.Records[i].ID == id {
			index = i
			removed = snap.Records[i]
			break
		}
	}
	if index < 0 {
		return nil
	}

	c.cache.Remove(id)

	err := c.gw.Delete(ctx, id)
	if err == nil || gateway.IsKind(err, gateway.KindNotFound) {
		return nil
	}
	if gateway.IsKind(err, gateway.KindUnauthorized) {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}

	c.cache.Restore(removed, index)
	return fmt.Errorf("deleting notification %s: %w", id, err)
}
