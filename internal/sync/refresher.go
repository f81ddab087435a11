// Package sync runs the background refresh loop that keeps the
// notification cache consistent with the server: periodic re-pulls of
// the authoritative list and unread count, explicit on-demand triggers,
// and O(1) outstanding requests through per-kind coalescing.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/nhle/notification-sync/internal/cache"
	"github.com/nhle/notification-sync/internal/model"
)

// FetchKind identifies which authoritative endpoint a fetch targets.
type FetchKind string

const (
	FetchList  FetchKind = "list"
	FetchCount FetchKind = "count"
)

// State represents the current state of a fetch kind.
type State int

const (
	Idle State = iota
	Fetching
	Failed
)

// Status holds the refresh state for a single fetch kind.
type Status struct {
	Kind     FetchKind
	State    State
	LastSync time.Time
	Err      error
}

// Gateway is the read-only slice of the remote API the refresher needs.
type Gateway interface {
	List(ctx context.Context, f model.Filter) ([]model.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
}

// Saver persists the last good snapshot so a restart can render
// stale-but-present data before the first fetch completes.
type Saver interface {
	SaveSnapshot(ctx context.Context, records []model.Notification) error
}

// fetchTimeout is the maximum time allowed for a single fetch.
const fetchTimeout = 30 * time.Second

// Refresher periodically re-pulls the notification list and unread
// count and installs them in the cache. A trigger that fires while a
// fetch of the same kind is already in flight is dropped, not queued.
//
// Fetch failures never clear the cache: stale-but-present data beats an
// empty screen. The one exception is the first-ever failure before any
// success, which installs the empty snapshot so consumers render a
// defined "no notifications" state.
type Refresher struct {
	cache    *cache.Cache
	gw       Gateway
	saver    Saver // optional
	logger   *slog.Logger
	pageSize int

	listInterval  time.Duration
	countInterval time.Duration

	mu           gosync.Mutex
	listBusy     bool
	countBusy    bool
	everSucceed  bool
	initialized  bool
	stopped      bool
	stopCh       chan struct{}
	running      bool
	statuses     map[FetchKind]*Status
}

// Options configures a Refresher.
type Options struct {
	// ListInterval is the period between list re-pulls. Zero means 30s.
	ListInterval time.Duration

	// CountInterval is the period between count-only polls. Zero
	// means 30s.
	CountInterval time.Duration

	// PageSize is the list window size.
	PageSize int

	// Saver, when non-nil, receives every successfully fetched list.
	Saver Saver

	// Logger receives fetch failures. Nil discards them.
	Logger *slog.Logger

	// Primed indicates the cache was warm-started from a persisted
	// snapshot, so a first-fetch failure must not install the empty
	// snapshot over it.
	Primed bool
}

// New creates a refresher over the given cache and gateway.
func New(c *cache.Cache, gw Gateway, opts Options) *Refresher {
	if opts.ListInterval <= 0 {
		opts.ListInterval = 30 * time.Second
	}
	if opts.CountInterval <= 0 {
		opts.CountInterval = 30 * time.Second
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Refresher{
		cache:         c,
		gw:            gw,
		saver:         opts.Saver,
		logger:        logger,
		pageSize:      opts.PageSize,
		listInterval:  opts.ListInterval,
		countInterval: opts.CountInterval,
		initialized:   opts.Primed,
		stopCh:        make(chan struct{}),
		statuses: map[FetchKind]*Status{
			FetchList:  {Kind: FetchList},
			FetchCount: {Kind: FetchCount},
		},
	}
}

// Start launches the ticking loop and performs an immediate initial
// list fetch. Calling Start twice is a no-op.
func (r *Refresher) Start() {
	r.mu.Lock()
	if r.running || r.stopped {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go r.run()
}

// Stop halts the loop. Fetches already in flight are not aborted, but
// their results are discarded: after Stop the cache is never mutated
// by this refresher again.
func (r *Refresher) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	close(r.stopCh)
}

// TriggerList requests an immediate list refresh, e.g. after opening
// the notification center or after a mutation failure. Coalesced if a
// list fetch is already in flight.
func (r *Refresher) TriggerList() {
	go r.fetchList()
}

// TriggerCount requests an immediate unread-count refresh. Coalesced if
// a count fetch is already in flight.
func (r *Refresher) TriggerCount() {
	go r.fetchCount()
}

// Status returns the current state of both fetch kinds.
func (r *Refresher) Status() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Status, 0, len(r.statuses))
	for _, s := range r.statuses {
		out = append(out, *s)
	}
	return out
}

// run ticks both fetch kinds until Stop.
func (r *Refresher) run() {
	listTicker := time.NewTicker(r.listInterval)
	defer listTicker.Stop()
	countTicker := time.NewTicker(r.countInterval)
	defer countTicker.Stop()

	// Initial pull so consumers have data without waiting a full tick.
	go r.fetchList()

	for {
		select {
		case <-r.stopCh:
			return
		case <-listTicker.C:
			go r.fetchList()
		case <-countTicker.C:
			go r.fetchCount()
		}
	}
}

// acquire marks a fetch kind in flight. It returns false when a fetch
// of that kind is already running, which is how redundant triggers are
// dropped.
func (r *Refresher) acquire(kind FetchKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	busy := &r.listBusy
	if kind == FetchCount {
		busy = &r.countBusy
	}
	if *busy {
		return false
	}
	*busy = true
	r.statuses[kind].State = Fetching
	return true
}

// release clears the in-flight flag and records the outcome.
func (r *Refresher) release(kind FetchKind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if kind == FetchCount {
		r.countBusy = false
	} else {
		r.listBusy = false
	}
	st := r.statuses[kind]
	st.Err = err
	if err != nil {
		st.State = Failed
		return
	}
	st.State = Idle
	st.LastSync = time.Now()
	r.everSucceed = true
}

// fetchList pulls the authoritative list and replaces the cache.
func (r *Refresher) fetchList() {
	if !r.acquire(FetchList) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	records, err := r.gw.List(ctx, model.Filter{Limit: r.pageSize, Page: 1})
	if err != nil {
		r.release(FetchList, err)
		r.handleFailure(FetchList, err)
		return
	}

	if r.discarding() {
		r.release(FetchList, nil)
		return
	}

	r.cache.Replace(records)
	r.release(FetchList, nil)

	if r.saver != nil {
		if saveErr := r.saver.SaveSnapshot(ctx, records); saveErr != nil {
			r.logger.Warn("persisting snapshot failed", "error", saveErr)
		}
	}
}

// fetchCount polls the lightweight count endpoint and swaps the badge
// value without forcing a list re-render.
func (r *Refresher) fetchCount() {
	if !r.acquire(FetchCount) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	count, err := r.gw.UnreadCount(ctx)
	if err != nil {
		r.release(FetchCount, err)
		r.handleFailure(FetchCount, err)
		return
	}

	if r.discarding() {
		r.release(FetchCount, nil)
		return
	}

	r.cache.ReplaceCount(count)
	r.release(FetchCount, nil)
}

// handleFailure logs the failure and leaves the cache alone, except the
// first-ever failure before any success, which installs the empty
// snapshot so consumers have a defined state to render. The loop keeps
// ticking; the failure is retried on the next scheduled tick and never
// reaches a consumer as an error.
func (r *Refresher) handleFailure(kind FetchKind, err error) {
	r.logger.Warn("refresh failed", "kind", string(kind), "error", err)

	r.mu.Lock()
	initialize := !r.everSucceed && !r.initialized && !r.stopped
	if initialize {
		r.initialized = true
	}
	r.mu.Unlock()

	if initialize {
		r.cache.Replace(nil)
	}
}

// discarding reports whether results must be dropped because the
// refresher has been stopped (e.g., the owning view was torn down).
func (r *Refresher) discarding() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}
