package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/domsnap/internal/audit"
)

// The binary must register the SQLite driver itself; the audit path opens
// the database through database/sql and fails fast without it.
func TestAuditDriverRegistered(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	trail, err := audit.Open(path, 0, nil)
	if err != nil {
		t.Fatalf("audit.Open: %v", err)
	}
	defer trail.DB().Close()
	defer trail.Close()

	ctx := context.Background()
	err = trail.RecordSync(ctx, &audit.Event{
		SessionID: "tab_main",
		EventType: audit.EventCapture,
		Success:   true,
	})
	if err != nil {
		t.Fatalf("RecordSync: %v", err)
	}

	events, err := trail.Recent(ctx, "tab_main", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
}
