package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/nhle/notification-sync/internal/cache"
	"github.com/nhle/notification-sync/internal/model"
)

// fakeGateway counts calls and can block until released, which is how
// the coalescing tests hold a fetch in flight.
type fakeGateway struct {
	mu         gosync.Mutex
	listCalls  int
	countCalls int

	listRecords []model.Notification
	listErr     error
	count       int
	countErr    error

	// block, when non-nil, is waited on before every call returns.
	block chan struct{}
}

func (f *fakeGateway) List(context.Context, model.Filter) ([]model.Notification, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.listRecords, f.listErr
}

func (f *fakeGateway) UnreadCount(context.Context) (int, error) {
	f.mu.Lock()
	f.countCalls++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.count, f.countErr
}

func (f *fakeGateway) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.countCalls
}

func record(id string, read bool) model.Notification {
	return model.Notification{
		ID:        id,
		Title:     "title " + id,
		Kind:      model.KindInfo,
		Read:      read,
		CreatedAt: time.Now(),
		Scope:     model.ScopePersonal,
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestFetchListReplacesCache(t *testing.T) {
	c := cache.New()
	gw := &fakeGateway{listRecords: []model.Notification{
		record("1", false), record("2", true),
	}}
	r := New(c, gw, Options{})

	r.fetchList()

	snap := c.Snapshot()
	if len(snap.Records) != 2 {
		t.Fatalf("len(Records) = %d, want 2", len(snap.Records))
	}
	if snap.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", snap.UnreadCount)
	}
}

func TestFetchCountSwapsBadgeOnly(t *testing.T) {
	c := cache.New()
	c.Replace([]model.Notification{record("1", false)})

	var listNotifies int
	c.Subscribe(func(cache.Snapshot) { listNotifies++ })

	gw := &fakeGateway{count: 9}
	r := New(c, gw, Options{})
	r.fetchCount()

	if got := c.Snapshot().UnreadCount; got != 9 {
		t.Errorf("UnreadCount = %d, want 9", got)
	}
	if listNotifies != 0 {
		t.Errorf("list subscribers notified %d times, want 0", listNotifies)
	}
}

func TestTriggerCoalescesInFlightFetch(t *testing.T) {
	c := cache.New()
	gw := &fakeGateway{count: 3, block: make(chan struct{})}
	r := New(c, gw, Options{})

	r.TriggerCount()
	waitFor(t, func() bool { _, n := gw.calls(); return n == 1 })

	// Second trigger while the first is blocked must be dropped.
	r.TriggerCount()
	time.Sleep(50 * time.Millisecond)
	if _, n := gw.calls(); n != 1 {
		t.Fatalf("count calls = %d, want 1 while in flight", n)
	}

	close(gw.block)
	waitFor(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		return !r.countBusy
	})
	if got := c.Snapshot().UnreadCount; got != 3 {
		t.Fatalf("UnreadCount = %d, want 3", got)
	}

	// Once released, a fresh trigger goes through.
	gw.block = nil
	r.TriggerCount()
	waitFor(t, func() bool { _, n := gw.calls(); return n == 2 })
}

func TestFailureKeepsStaleCache(t *testing.T) {
	c := cache.New()
	c.Replace([]model.Notification{record("1", false), record("2", false)})
	gw := &fakeGateway{listErr: errors.New("connection refused")}
	r := New(c, gw, Options{})
	r.mu.Lock()
	r.everSucceed = true // a prior fetch succeeded
	r.mu.Unlock()

	r.fetchList()

	snap := c.Snapshot()
	if len(snap.Records) != 2 {
		t.Errorf("stale cache cleared on failure: %+v", snap.Records)
	}
	if snap.UnreadCount != 2 {
		t.Errorf("UnreadCount = %d, want 2", snap.UnreadCount)
	}
}

func TestFirstEverFailureInstallsEmptySnapshot(t *testing.T) {
	c := cache.New()
	gw := &fakeGateway{listErr: errors.New("connection refused")}
	r := New(c, gw, Options{})

	var got *cache.Snapshot
	c.Subscribe(func(s cache.Snapshot) { got = &s })

	r.fetchList()

	if got == nil {
		t.Fatal("no snapshot published on first-ever failure")
	}
	if len(got.Records) != 0 || got.UnreadCount != 0 {
		t.Errorf("snapshot = %+v, want empty", *got)
	}

	// Only the first failure initializes; later ones stay silent.
	got = nil
	r.fetchList()
	if got != nil {
		t.Error("second failure published a snapshot")
	}
}

func TestPrimedSkipsEmptyInit(t *testing.T) {
	c := cache.New()
	c.Replace([]model.Notification{record("persisted", false)})
	gw := &fakeGateway{listErr: errors.New("connection refused")}
	r := New(c, gw, Options{Primed: true})

	r.fetchList()

	snap := c.Snapshot()
	if len(snap.Records) != 1 {
		t.Errorf("warm-started cache overwritten: %+v", snap.Records)
	}
}

func TestStopDiscardsInFlightResult(t *testing.T) {
	c := cache.New()
	c.Replace([]model.Notification{record("stale", false)})
	gw := &fakeGateway{
		listRecords: []model.Notification{record("fresh", false)},
		block:       make(chan struct{}),
	}
	r := New(c, gw, Options{})

	done := make(chan struct{})
	go func() {
		r.fetchList()
		close(done)
	}()
	waitFor(t, func() bool { n, _ := gw.calls(); return n == 1 })

	r.Stop()
	close(gw.block)
	<-done

	snap := c.Snapshot()
	if len(snap.Records) != 1 || snap.Records[0].ID != "stale" {
		t.Errorf("cache mutated after Stop: %+v", snap.Records)
	}
}

func TestStopPreventsNewFetches(t *testing.T) {
	c := cache.New()
	gw := &fakeGateway{}
	r := New(c, gw, Options{})
	r.Stop()

	r.fetchList()
	r.fetchCount()

	if l, n := gw.calls(); l != 0 || n != 0 {
		t.Errorf("gateway called after Stop: list=%d count=%d", l, n)
	}
}

func TestSaverReceivesFetchedList(t *testing.T) {
	c := cache.New()
	records := []model.Notification{record("1", false)}
	gw := &fakeGateway{listRecords: records}

	saved := make(chan []model.Notification, 1)
	r := New(c, gw, Options{Saver: saverFunc(func(_ context.Context, recs []model.Notification) error {
		saved <- recs
		return nil
	})})

	r.fetchList()

	select {
	case got := <-saved:
		if len(got) != 1 || got[0].ID != "1" {
			t.Errorf("saved records = %+v, want [1]", got)
		}
	default:
		t.Fatal("saver not invoked")
	}
}

func TestStatusTracksOutcome(t *testing.T) {
	c := cache.New()
	gw := &fakeGateway{listErr: errors.New("boom")}
	r := New(c, gw, Options{})

	r.fetchList()

	for _, st := range r.Status() {
		if st.Kind != FetchList {
			continue
		}
		if st.State != Failed {
			t.Errorf("list state = %v, want Failed", st.State)
		}
		if st.Err == nil {
			t.Error("list status missing error")
		}
	}
}

// saverFunc adapts a function to the Saver interface.
type saverFunc func(ctx context.Context, records []model.Notification) error

func (f saverFunc) SaveSnapshot(ctx context.Context, records []model.Notification) error {
	return f(ctx, records)
}
