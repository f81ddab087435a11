package model

import "time"

// Kind classifies a notification for presentation (icon and color).
// The sync core never branches on it.
type Kind string

const (
	KindInfo    Kind = "info"
	KindWarning Kind = "warning"
	KindError   Kind = "error"
	KindSuccess Kind = "success"
)

// Valid reports whether k is one of the known notification kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindInfo, KindWarning, KindError, KindSuccess:
		return true
	}
	return false
}

// Scope distinguishes notifications addressed to a single user from
// broadcast notifications shared by every recipient.
type Scope string

const (
	ScopePersonal Scope = "personal"
	ScopeGlobal   Scope = "global"
)

// Notification is a single notification record as exchanged with the
// server. Records are created server-side and only ever fetched by this
// client; Read and ReadAt are the only fields mutated locally.
type Notification struct {
	// ID is the opaque, server-assigned identifier, unique within
	// a cache snapshot.
	ID string `json:"id" db:"id"`

	// Title is the short display headline.
	Title string `json:"title" db:"title"`

	// Body is the full display text.
	Body string `json:"body" db:"body"`

	// Kind selects the icon and color used when rendering.
	Kind Kind `json:"kind" db:"kind"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"read" db:"read"`

	// ReadAt is when Read flipped to true; nil while unread.
	ReadAt *time.Time `json:"read_at,omitempty" db:"read_at"`

	// CreatedAt orders notifications newest first.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// ActionURL is an optional link passed through to consumers
	// unmodified.
	ActionURL string `json:"action_url,omitempty" db:"action_url"`

	// Scope is personal or global. A global record fetched for this
	// user is held as an independent copy; its read state is still
	// per-recipient on the server.
	Scope Scope `json:"scope" db:"scope"`
}

// Filter controls server-side filtering and pagination for list queries.
type Filter struct {
	// Kind restricts results to a single kind when non-empty.
	Kind Kind

	// UnreadOnly restricts results to unread notifications.
	UnreadOnly bool

	// Limit is the page size; the server applies its own default
	// when zero.
	Limit int

	// Page is the 1-based page number.
	Page int
}

// Stats summarizes a user's notification set by read state and kind.
type Stats struct {
	Total  int            `json:"total"`
	Unread int            `json:"unread"`
	Read   int            `json:"read"`
	ByKind map[string]int `json:"by_kind"`
}

// UnreadIn counts the unread records in the given slice.
func UnreadIn(records []Notification) int {
	n := 0
	for _, r := range records {
		if !r.Read {
			n++
		}
	}
	return n
}
