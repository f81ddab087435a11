package coordinator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/nhle/notification-sync/internal/cache"
	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
)

// fakeGateway scripts per-call results and optionally runs a hook
// between the optimistic apply and the server answer.
type fakeGateway struct {
	markReadErr    error
	markAllReadErr error
	deleteErr      error

	markReadCalls    []string
	markAllReadCalls int
	deleteCalls      []string

	beforeReturn func()
}

func (f *fakeGateway) MarkRead(_ context.Context, id string) error {
	f.markReadCalls = append(f.markReadCalls, id)
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
	return f.markReadErr
}

func (f *fakeGateway) MarkAllRead(context.Context) error {
	f.markAllReadCalls++
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
	return f.markAllReadErr
}

func (f *fakeGateway) Delete(_ context.Context, id string) error {
	f.deleteCalls = append(f.deleteCalls, id)
	if f.beforeReturn != nil {
		f.beforeReturn()
	}
	return f.deleteErr
}

func record(id string, read bool, createdAt time.Time) model.Notification {
	return model.Notification{
		ID:        id,
		Title:     "title " + id,
		Kind:      model.KindInfo,
		Read:      read,
		CreatedAt: createdAt,
		Scope:     model.ScopePersonal,
	}
}

func seeded(t *testing.T, records ...model.Notification) (*cache.Cache, *fakeGateway, *Coordinator) {
	t.Helper()
	c := cache.New()
	c.Replace(records)
	gw := &fakeGateway{}
	coord := New(c, gw)
	coord.now = func() time.Time { return time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC) }
	return c, gw, coord
}

func netErr() error {
	return &gateway.Error{Kind: gateway.KindNetwork, Message: "connection refused"}
}

func TestMarkReadSuccess(t *testing.T) {
	now := time.Now()
	c, gw, coord := seeded(t,
		record("1", false, now.Add(time.Minute)),
		record("2", false, now),
	)

	if err := coord.MarkRead(context.Background(), "1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}

	snap := c.Snapshot()
	if !snap.Records[0].Read {
		t.Error("record 1 not marked read")
	}
	if snap.Records[0].ReadAt == nil {
		t.Error("ReadAt not stamped")
	}
	if snap.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", snap.UnreadCount)
	}
	if got := gw.markReadCalls; len(got) != 1 || got[0] != "1" {
		t.Errorf("gateway calls = %v, want [1]", got)
	}
}

func TestMarkReadFailureRevertsExactly(t *testing.T) {
	now := time.Now()
	c, gw, coord := seeded(t,
		record("1", false, now.Add(time.Minute)),
		record("2", true, now),
	)
	before := c.Snapshot()
	gw.markReadErr = netErr()

	err := coord.MarkRead(context.Background(), "1")
	if err == nil {
		t.Fatal("MarkRead returned nil, want error")
	}
	if !gateway.IsKind(err, gateway.KindNetwork) {
		t.Errorf("error kind = %v, want network", gateway.KindOf(err))
	}

	after := c.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("cache not reverted:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	now := time.Now()
	c, gw, coord := seeded(t, record("1", false, now))

	if err := coord.MarkRead(context.Background(), "1"); err != nil {
		t.Fatalf("first MarkRead: %v", err)
	}
	if err := coord.MarkRead(context.Background(), "1"); err != nil {
		t.Fatalf("second MarkRead: %v", err)
	}

	if len(gw.markReadCalls) != 1 {
		t.Errorf("gateway called %d times, want 1", len(gw.markReadCalls))
	}
	if got := c.Snapshot().UnreadCount; got != 0 {
		t.Errorf("UnreadCount = %d, want 0", got)
	}
}

func TestMarkReadUnknownIDIsNoop(t *testing.T) {
	_, gw, coord := seeded(t, record("1", false, time.Now()))

	if err := coord.MarkRead(context.Background(), "missing"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(gw.markReadCalls) != 0 {
		t.Errorf("gateway called %d times, want 0", len(gw.markReadCalls))
	}
}

func TestMarkReadNotFoundKeepsOptimisticState(t *testing.T) {
	c, gw, coord := seeded(t, record("1", false, time.Now()))
	gw.markReadErr = &gateway.Error{Kind: gateway.KindNotFound, StatusCode: 404}

	if err := coord.MarkRead(context.Background(), "1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if !c.Snapshot().Records[0].Read {
		t.Error("optimistic read state reverted on not-found")
	}
}

func TestMarkReadUnauthorizedSurfacedWithoutRollback(t *testing.T) {
	c, gw, coord := seeded(t, record("1", false, time.Now()))
	gw.markReadErr = &gateway.Error{Kind: gateway.KindUnauthorized, StatusCode: 401}

	err := coord.MarkRead(context.Background(), "1")
	if !gateway.IsKind(err, gateway.KindUnauthorized) {
		t.Fatalf("error kind = %v, want unauthorized", gateway.KindOf(err))
	}
	if !c.Snapshot().Records[0].Read {
		t.Error("cache rolled back on unauthorized")
	}
}

func TestMarkAllReadSuccess(t *testing.T) {
	now := time.Now()
	c, gw, coord := seeded(t,
		record("1", false, now.Add(2*time.Minute)),
		record("2", true, now.Add(time.Minute)),
		record("3", false, now),
	)

	var published []int
	c.SubscribeCount(func(n int) { published = append(published, n) })

	if err := coord.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}

	snap := c.Snapshot()
	for _, r := range snap.Records {
		if !r.Read {
			t.Errorf("record %s still unread", r.ID)
		}
	}
	if snap.UnreadCount != 0 {
		t.Errorf("UnreadCount = %d, want 0", snap.UnreadCount)
	}
	if gw.markAllReadCalls != 1 {
		t.Errorf("gateway called %d times, want 1", gw.markAllReadCalls)
	}
	if len(published) != 1 {
		t.Errorf("count published %d times, want 1 (single batched publish)", len(published))
	}
}

func TestMarkAllReadFailureRevertsSnapshottedIDsOnly(t *testing.T) {
	now := time.Now()
	c, gw, coord := seeded(t,
		record("1", false, now.Add(time.Minute)),
		record("2", false, now),
	)
	gw.markAllReadErr = netErr()

	// A refresh delivers a new unread record while the server call is
	// in flight. The rollback must not touch it.
	late := record("late", false, now.Add(2*time.Minute))
	gw.beforeReturn = func() {
		snap := c.Snapshot()
		c.Replace(append([]model.Notification{late}, snap.Records...))
	}

	err := coord.MarkAllRead(context.Background())
	if err == nil {
		t.Fatal("MarkAllRead returned nil, want error")
	}

	snap := c.Snapshot()
	for _, r := range snap.Records {
		switch r.ID {
		case "late":
			if r.Read {
				t.Error("concurrently delivered record was patched by rollback")
			}
		default:
			if r.Read {
				t.Errorf("record %s not reverted", r.ID)
			}
		}
	}
	if snap.UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3", snap.UnreadCount)
	}
}

func TestMarkAllReadNoUnreadClearsBadgeOverride(t *testing.T) {
	now := time.Now()
	c, gw, coord := seeded(t, record("1", true, now))
	c.ReplaceCount(5) // stale count-only refresh

	if err := coord.MarkAllRead(context.Background()); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if got := c.Snapshot().UnreadCount; got != 0 {
		t.Errorf("UnreadCount = %d, want 0", got)
	}
	if gw.markAllReadCalls != 1 {
		t.Errorf("gateway called %d times, want 1", gw.markAllReadCalls)
	}
}

func TestDeleteOneReadRecordKeepsCount(t *testing.T) {
	now := time.Now()
	c, gw, coord := seeded(t,
		record("1", true, now.Add(time.Minute)),
		record("2", false, now),
	)

	if err := coord.DeleteOne(context.Background(), "1"); err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}

	snap := c.Snapshot()
	if len(snap.Records) != 1 || snap.Records[0].ID != "2" {
		t.Fatalf("unexpected records: %+v", snap.Records)
	}
	if snap.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", snap.UnreadCount)
	}
	if got := gw.deleteCalls; len(got) != 1 || got[0] != "1" {
		t.Errorf("gateway calls = %v, want [1]", got)
	}
}

func TestDeleteOneUnreadRecordDropsCount(t *testing.T) {
	c, _, coord := seeded(t, record("1", false, time.Now()))

	if err := coord.DeleteOne(context.Background(), "1"); err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	snap := c.Snapshot()
	if len(snap.Records) != 0 || snap.UnreadCount != 0 {
		t.Errorf("snapshot = %+v, want empty", snap)
	}
}

func TestDeleteOneFailureRestoresAtOriginalPosition(t *testing.T) {
	now := time.Now()
	c, gw, coord := seeded(t,
		record("1", false, now.Add(2*time.Minute)),
		record("2", false, now.Add(time.Minute)),
		record("3", true, now),
	)
	before := c.Snapshot()
	gw.deleteErr = &gateway.Error{Kind: gateway.KindServer, StatusCode: 500}

	err := coord.DeleteOne(context.Background(), "2")
	if err == nil {
		t.Fatal("DeleteOne returned nil, want error")
	}
	if !gateway.IsKind(err, gateway.KindServer) {
		t.Errorf("error kind = %v, want server", gateway.KindOf(err))
	}

	after := c.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Errorf("cache not restored:\nbefore %+v\nafter  %+v", before, after)
	}
}

func TestDeleteOneNotFoundIsSuccess(t *testing.T) {
	c, gw, coord := seeded(t, record("1", false, time.Now()))
	gw.deleteErr = &gateway.Error{Kind: gateway.KindNotFound, StatusCode: 404}

	if err := coord.DeleteOne(context.Background(), "1"); err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	if got := len(c.Snapshot().Records); got != 0 {
		t.Errorf("len(Records) = %d, want 0", got)
	}
}

func TestDeleteOneUnknownIDIsNoop(t *testing.T) {
	_, gw, coord := seeded(t, record("1", false, time.Now()))

	if err := coord.DeleteOne(context.Background(), "missing"); err != nil {
		t.Fatalf("DeleteOne: %v", err)
	}
	if len(gw.deleteCalls) != 0 {
		t.Errorf("gateway called %d times, want 0", len(gw.deleteCalls))
	}
}

func TestWrappedErrorUnwraps(t *testing.T) {
	_, gw, coord := seeded(t, record("1", false, time.Now()))
	gw.markReadErr = netErr()

	err := coord.MarkRead(context.Background(), "1")
	var gerr *gateway.Error
	if !errors.As(err, &gerr) {
		t.Fatalf("error %v does not unwrap to *gateway.Error", err)
	}
	if gerr.Kind != gateway.KindNetwork {
		t.Errorf("kind = %v, want network", gerr.Kind)
	}
}
