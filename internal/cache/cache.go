// Package cache holds the client-side snapshot of the user's
// notification set: the last-known record list and unread count, with
// synchronous fan-out to any number of read-only subscribers.
//
// The cache is the single shared mutable resource of the sync core. It
// is mutated only by the mutation coordinator and the refresh loop;
// consumers subscribe and render. Every committed mutation publishes
// exactly one immutable snapshot, so a subscriber always observes the
// list and the counter mutually consistent at the instant of that
// mutation.
package cache

import (
	"sync"

	"github.com/nhle/notification-sync/internal/model"
)

// Snapshot is an immutable view of the cache state, delivered to
// subscribers and returned to late joiners for their initial render.
type Snapshot struct {
	// Records is the notification list, newest first.
	Records []model.Notification

	// UnreadCount is the badge value. It usually equals the number of
	// unread records, but a count-only refresh may override it until
	// the next list mutation re-derives it.
	UnreadCount int
}

// subscriber pairs a subscription token with its callback so fan-out
// order is stable (registration order).
type subscriber[T any] struct {
	id int
	fn func(T)
}

// Cache is the notification snapshot holder. The zero value is not
// usable; call New.
type Cache struct {
	// publishMu serializes mutation+fan-out pairs so subscribers see
	// snapshots in commit order even when mutations race.
	publishMu sync.Mutex

	// mu guards the fields below. It is never held while invoking
	// subscriber callbacks, so a callback may call Snapshot.
	mu        sync.Mutex
	records   []model.Notification
	unread    int
	nextSubID int
	subs      []subscriber[Snapshot]
	countSubs []subscriber[int]
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{}
}

// Subscribe registers a callback invoked with a full snapshot on every
// committed mutation. It returns a token for Unsubscribe. The callback
// is invoked synchronously on the mutating goroutine.
func (c *Cache) Subscribe(fn func(Snapshot)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	c.subs = append(c.subs, subscriber[Snapshot]{id: c.nextSubID, fn: fn})
	return c.nextSubID
}

// Unsubscribe removes a full-snapshot subscription.
func (c *Cache) Unsubscribe(token int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.subs {
		if s.id == token {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

// SubscribeCount registers a counter-only callback, for consumers like
// badges that should not re-render the list on a count-only refresh.
func (c *Cache) SubscribeCount(fn func(int)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	c.countSubs = append(c.countSubs, subscriber[int]{id: c.nextSubID, fn: fn})
	return c.nextSubID
}

// UnsubscribeCount removes a counter-only subscription.
func (c *Cache) UnsubscribeCount(token int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.countSubs {
		if s.id == token {
			c.countSubs = append(c.countSubs[:i], c.countSubs[i+1:]...)
			return
		}
	}
}

// Snapshot returns the current records and unread count.
func (c *Cache) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Replace atomically swaps the held record list. The input is assumed
// already ordered newest first; the cache does not re-sort, but it does
// deduplicate by ID (first occurrence wins) so a global notification
// delivered twice across refreshes is counted once. The unread count is
// re-derived from the replaced list. Subscribers are notified exactly
// once.
func (c *Cache) Replace(records []model.Notification) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	deduped := dedupeByID(records)

	c.mu.Lock()
	c.records = deduped
	c.unread = model.UnreadIn(deduped)
	c.fanOutLocked()
}

// ReplaceCount swaps the unread counter alone, for the lightweight
// count-only refresh path. Only counter subscribers are notified; list
// consumers are not forced to re-render. The override lasts until the
// next list mutation re-derives the counter.
func (c *Cache) ReplaceCount(n int) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	if n < 0 {
		n = 0
	}

	c.mu.Lock()
	c.unread = n
	countSubs := make([]subscriber[int], len(c.countSubs))
	copy(countSubs, c.countSubs)
	c.mu.Unlock()

	for _, s := range countSubs {
		s.fn(n)
	}
}

// Patch applies fn to the record with the given ID, re-derives the
// unread count, and publishes. If no record matches, nothing is
// published and Patch returns false.
func (c *Cache) Patch(id string, fn func(*model.Notification)) bool {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	fn(&c.records[idx])
	c.unread = model.UnreadIn(c.records)
	c.fanOutLocked()
	return true
}

// PatchIDs applies fn to every listed record that is present and
// publishes once. Records that arrived after the ID set was collected
// are untouched, which is what makes mark-all-read rollback safe under
// a concurrent refresh. Returns the number of records patched; zero
// patches publish nothing.
func (c *Cache) PatchIDs(ids []string, fn func(*model.Notification)) int {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	patched := 0
	for _, id := range ids {
		if idx := c.indexLocked(id); idx >= 0 {
			fn(&c.records[idx])
			patched++
		}
	}
	if patched == 0 {
		c.mu.Unlock()
		return 0
	}
	c.unread = model.UnreadIn(c.records)
	c.fanOutLocked()
	return patched
}

// Remove deletes the record with the given ID and publishes. If no
// record matches, nothing is published and Remove returns false.
func (c *Cache) Remove(id string) bool {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	idx := c.indexLocked(id)
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.records = append(c.records[:idx], c.records[idx+1:]...)
	c.unread = model.UnreadIn(c.records)
	c.fanOutLocked()
	return true
}

// Restore re-inserts a previously removed record, used by delete
// rollback. The record goes back to its original index when that still
// fits the newest-first order; if siblings changed in the meantime it
// is inserted by CreatedAt instead. A record with the same ID already
// present (re-delivered by a refresh) makes Restore a no-op.
func (c *Cache) Restore(rec model.Notification, index int) {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()

	c.mu.Lock()
	if c.indexLocked(rec.ID) >= 0 {
		c.mu.Unlock()
		return
	}

	idx := index
	if idx < 0 || idx > len(c.records) || !c.fitsOrderLocked(rec, idx) {
		idx = c.positionByTimeLocked(rec)
	}

	c.records = append(c.records, model.Notification{})
	copy(c.records[idx+1:], c.records[idx:])
	c.records[idx] = rec
	c.unread = model.UnreadIn(c.records)
	c.fanOutLocked()
}

// snapshotLocked copies the current state. Callers hold mu.
func (c *Cache) snapshotLocked() Snapshot {
	records := make([]model.Notification, len(c.records))
	copy(records, c.records)
	return Snapshot{Records: records, UnreadCount: c.unread}
}

// indexLocked returns the position of the record with the given ID, or
// -1. Callers hold mu.
func (c *Cache) indexLocked(id string) int {
	for i := range c.records {
		if c.records[i].ID == id {
			return i
		}
	}
	return -1
}

// fitsOrderLocked reports whether inserting rec at idx keeps the list
// in newest-first order with respect to its would-be neighbors.
func (c *Cache) fitsOrderLocked(rec model.Notification, idx int) bool {
	if idx > 0 && c.records[idx-1].CreatedAt.Before(rec.CreatedAt) {
		return false
	}
	if idx < len(c.records) && c.records[idx].CreatedAt.After(rec.CreatedAt) {
		return false
	}
	return true
}

// positionByTimeLocked finds the newest-first insertion point for rec.
func (c *Cache) positionByTimeLocked(rec model.Notification) int {
	for i := range c.records {
		if !c.records[i].CreatedAt.After(rec.CreatedAt) {
			return i
		}
	}
	return len(c.records)
}

// fanOutLocked snapshots state and subscribers, releases mu, and
// invokes every callback. Callers hold mu on entry; it is released on
// return. publishMu (held by the caller) keeps concurrent publishes in
// commit order.
func (c *Cache) fanOutLocked() {
	snap := c.snapshotLocked()
	subs := make([]subscriber[Snapshot], len(c.subs))
	copy(subs, c.subs)
	countSubs := make([]subscriber[int], len(c.countSubs))
	copy(countSubs, c.countSubs)
	c.mu.Unlock()

	for _, s := range subs {
		s.fn(snap)
	}
	for _, s := range countSubs {
		s.fn(snap.UnreadCount)
	}
}

// dedupeByID drops records whose ID already appeared earlier in the
// slice, preserving order.
func dedupeByID(records []model.Notification) []model.Notification {
	out := make([]model.Notification, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
