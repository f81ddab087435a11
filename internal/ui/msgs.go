// Package ui holds the layout helpers and the Bubble Tea messages that
// carry cache updates into the views. The cache fans out synchronously
// on its own goroutines; the app bridges those callbacks into the Tea
// runtime by sending these messages, so views stay read-only consumers.
package ui

import "github.com/nhle/notification-sync/internal/cache"

// SnapshotMsg carries a full cache snapshot after any list-affecting
// mutation. Both the bell and the notification center react to it.
type SnapshotMsg struct {
	Snapshot cache.Snapshot
}

// CountMsg carries a counter-only update from the lightweight
// unread-count refresh path. Only badge consumers react; the list is
// not re-rendered.
type CountMsg struct {
	Count int
}

// MutationErrMsg reports a failed optimistic mutation after its
// rollback was applied. The center shows it as a transient, dismissible
// indicator; the cache state has already reverted.
type MutationErrMsg struct {
	Err error
}
