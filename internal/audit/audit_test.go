package audit

import (
	"context"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domsnap/internal/storage"
)

func newTrail(t *testing.T) *Trail {
	t.Helper()
	db := storage.OpenMemory(t, storage.WithSchema(Schema))
	trail := NewTrail(db, 8, nil)
	t.Cleanup(trail.Close)
	return trail
}

func TestRecordAndRecent(t *testing.T) {
	trail := newTrail(t)
	ctx := context.Background()

	for i, typ := range []string{EventCapture, EventSerialize, EventAction} {
		err := trail.RecordSync(ctx, &Event{
			SessionID: "tab_1",
			PageURL:   "https://example.test",
			EventType: typ,
			NodeID:    i,
			Success:   true,
			Duration:  50 * time.Millisecond,
			Timestamp: time.UnixMilli(int64(1000 * (i + 1))),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	events, err := trail.Recent(ctx, "tab_1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(events), 3; got != want {
		t.Fatalf("events = %d, want %d", got, want)
	}
	// Most recent first.
	if got, want := events[0].EventType, EventAction; got != want {
		t.Errorf("first event = %q, want %q", got, want)
	}
	if events[0].EventID == "" {
		t.Error("event id not filled")
	}
	if !events[0].Success {
		t.Error("success flag lost")
	}
}

func TestRecentScopedBySession(t *testing.T) {
	trail := newTrail(t)
	ctx := context.Background()

	trail.RecordSync(ctx, &Event{SessionID: "tab_a", EventType: EventCapture})
	trail.RecordSync(ctx, &Event{SessionID: "tab_b", EventType: EventCapture})

	events, err := trail.Recent(ctx, "tab_a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(events), 1; got != want {
		t.Fatalf("events = %d, want %d", got, want)
	}
}

func TestAsyncRecordDrainsOnClose(t *testing.T) {
	db := storage.OpenMemory(t, storage.WithSchema(Schema))
	trail := NewTrail(db, 8, nil)

	trail.Record(&Event{SessionID: "tab_1", EventType: EventAction, NodeID: 4})
	trail.Close()

	events, err := trail.Recent(context.Background(), "tab_1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := len(events), 1; got != want {
		t.Fatalf("events after close = %d, want %d", got, want)
	}
	if got, want := events[0].NodeID, 4; got != want {
		t.Errorf("node id = %d, want %d", got, want)
	}
}
