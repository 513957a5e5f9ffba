// Package audit persists a per-session trail of captures and actions to
// SQLite. The trail is the forensic record of what the agent saw and did:
// every capture, serialization, and action lands here with its outcome.
package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/domsnap/internal/idgen"
	"github.com/hazyhaar/domsnap/internal/storage"
)

// Schema is the DDL for the audit trail.
const Schema = `
CREATE TABLE IF NOT EXISTS dom_events (
    event_id    TEXT PRIMARY KEY,
    timestamp   INTEGER NOT NULL,
    session_id  TEXT NOT NULL,
    page_url    TEXT NOT NULL DEFAULT '',
    event_type  TEXT NOT NULL,
    node_id     INTEGER NOT NULL DEFAULT 0,
    success     INTEGER NOT NULL DEFAULT 1,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    detail      TEXT NOT NULL DEFAULT '',
    error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_dom_events_session_time
    ON dom_events(session_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_dom_events_type
    ON dom_events(event_type, timestamp DESC);
`

// Event types recorded in the trail.
const (
	EventCapture   = "capture"
	EventSerialize = "serialize"
	EventAction    = "action"
	EventRelease   = "release"
)

// Event is one audit record.
type Event struct {
	EventID   string
	Timestamp time.Time
	SessionID string
	PageURL   string
	EventType string
	NodeID    int
	Success   bool
	Duration  time.Duration
	Detail    string // free-form JSON
	Error     string
}

// Trail writes events to SQLite asynchronously. A full buffer falls back
// to a synchronous insert so nothing is dropped.
type Trail struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
	ch     chan *Event
	stop   chan struct{}
	done   chan struct{}
}

// Open opens (creating if needed) the audit database and starts the flush
// loop. Recommended buffer: 256.
func Open(path string, buffer int, logger *slog.Logger) (*Trail, error) {
	db, err := storage.Open(path, storage.WithSchema(Schema), storage.WithMkdirAll())
	if err != nil {
		return nil, err
	}
	return NewTrail(db, buffer, logger), nil
}

// NewTrail wraps an existing database. The caller owns schema application
// when using this constructor directly.
func NewTrail(db *sql.DB, buffer int, logger *slog.Logger) *Trail {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &Trail{
		db:     db,
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: logger,
		ch:     make(chan *Event, buffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go t.flushLoop()
	return t
}

// Record queues an event for async persistence.
func (t *Trail) Record(ev *Event) {
	t.fill(ev)
	select {
	case t.ch <- ev:
	default:
		t.logger.Warn("audit: buffer full, sync fallback", "type", ev.EventType)
		if err := t.insert(context.Background(), ev); err != nil {
			t.logger.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// RecordSync inserts an event synchronously.
func (t *Trail) RecordSync(ctx context.Context, ev *Event) error {
	t.fill(ev)
	return t.insert(ctx, ev)
}

// Recent returns the newest events for one session, most recent first.
func (t *Trail) Recent(ctx context.Context, sessionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.db.QueryContext(ctx, `
		SELECT event_id, timestamp, session_id, page_url, event_type,
		       node_id, success, duration_ms, detail, error
		FROM dom_events
		WHERE session_id = ?
		ORDER BY timestamp DESC
		LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		var ts, durMs int64
		var success int
		if err := rows.Scan(&ev.EventID, &ts, &ev.SessionID, &ev.PageURL,
			&ev.EventType, &ev.NodeID, &success, &durMs, &ev.Detail, &ev.Error); err != nil {
			return nil, err
		}
		ev.Timestamp = time.UnixMilli(ts)
		ev.Success = success != 0
		ev.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, ev)
	}
	return out, rows.Err()
}

// DB exposes the underlying handle so the owner can close it after the
// trail stops.
func (t *Trail) DB() *sql.DB { return t.db }

// Close drains the buffer and stops the flush loop. The database handle is
// not closed; its owner decides that.
func (t *Trail) Close() {
	close(t.stop)
	<-t.done
}

func (t *Trail) fill(ev *Event) {
	if ev.EventID == "" {
		ev.EventID = t.newID()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
}

func (t *Trail) flushLoop() {
	defer close(t.done)
	for {
		select {
		case ev := <-t.ch:
			if err := t.insert(context.Background(), ev); err != nil {
				t.logger.Error("audit: insert failed", "error", err)
			}
		case <-t.stop:
			for {
				select {
				case ev := <-t.ch:
					if err := t.insert(context.Background(), ev); err != nil {
						t.logger.Error("audit: drain insert failed", "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (t *Trail) insert(ctx context.Context, ev *Event) error {
	success := 0
	if ev.Success {
		success = 1
	}
	return storage.RunTx(ctx, t.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO dom_events
			(event_id, timestamp, session_id, page_url, event_type,
			 node_id, success, duration_ms, detail, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			ev.EventID, ev.Timestamp.UnixMilli(), ev.SessionID, ev.PageURL,
			ev.EventType, ev.NodeID, success, ev.Duration.Milliseconds(),
			ev.Detail, ev.Error)
		return err
	})
}
