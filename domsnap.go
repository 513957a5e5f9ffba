// Package domsnap captures live web pages through the browser inspection
// protocol and compacts them into small agent-addressable trees. One
// Session per page tab owns the observe-act loop: capture, serialize,
// execute, invalidate, re-observe. The Sessions table is the only way to
// obtain one; keying by target id keeps session lifetime explicit.
package domsnap

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/domsnap/dom"
	"github.com/hazyhaar/domsnap/internal/action"
	"github.com/hazyhaar/domsnap/internal/audit"
	"github.com/hazyhaar/domsnap/internal/browser"
	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/config"
	"github.com/hazyhaar/domsnap/internal/extract"
	"github.com/hazyhaar/domsnap/internal/idgen"
	"github.com/hazyhaar/domsnap/internal/pipeline"
	"github.com/hazyhaar/domsnap/internal/protocol"
	"github.com/hazyhaar/domsnap/internal/snapshot"
)

// Sessions is the explicit session table. One Session exists per target
// id; concurrent Acquire calls for the same target share one session and
// one protocol attach.
type Sessions struct {
	cfg    *config.Config
	mgr    *browser.Manager
	logger *slog.Logger
	trail  *audit.Trail // nil when auditing is off
	newID  idgen.Generator

	flight singleflight.Group

	mu       sync.Mutex
	byTarget map[string]*Session
}

// NewSessions creates the session table over a started browser manager.
// trail may be nil.
func NewSessions(cfg *config.Config, mgr *browser.Manager, trail *audit.Trail, logger *slog.Logger) *Sessions {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sessions{
		cfg:      cfg,
		mgr:      mgr,
		logger:   logger,
		trail:    trail,
		newID:    idgen.Prefixed("tab_", idgen.NanoID(8)),
		byTarget: make(map[string]*Session),
	}
	// A recycled Chrome invalidates every open tab; sessions tied to the
	// dead process must not serve captures from it.
	mgr.OnRecycle(s.dropAll)
	return s
}

// Acquire returns the session for targetID, creating it by opening a tab
// on url when absent. An empty targetID generates a fresh one, always
// creating a new session.
func (s *Sessions) Acquire(ctx context.Context, targetID, url string) (*Session, error) {
	if targetID == "" {
		targetID = s.newID()
	}

	s.mu.Lock()
	if sess, ok := s.byTarget[targetID]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	v, err, _ := s.flight.Do(targetID, func() (any, error) {
		s.mu.Lock()
		if sess, ok := s.byTarget[targetID]; ok {
			s.mu.Unlock()
			return sess, nil
		}
		s.mu.Unlock()

		tab, err := browser.OpenTab(ctx, s.mgr, url, targetID)
		if err != nil {
			return nil, fmt.Errorf("domsnap: acquire %s: %w", targetID, err)
		}
		sess := newSession(targetID, tab, s.cfg, s.trail, s.logger)

		s.mu.Lock()
		s.byTarget[targetID] = sess
		s.mu.Unlock()

		s.logger.Info("domsnap: session acquired", "target", targetID, "url", url)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns the session for targetID, or nil.
func (s *Sessions) Get(targetID string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byTarget[targetID]
}

// Release closes the session's tab and removes it from the table.
func (s *Sessions) Release(targetID string) error {
	s.mu.Lock()
	sess, ok := s.byTarget[targetID]
	delete(s.byTarget, targetID)
	s.mu.Unlock()

	if !ok {
		return nil
	}
	if s.trail != nil {
		s.trail.Record(&audit.Event{
			SessionID: targetID,
			PageURL:   sess.tab.PageURL,
			EventType: audit.EventRelease,
			Success:   true,
		})
	}
	s.logger.Info("domsnap: session released", "target", targetID)
	return sess.close()
}

// Close releases every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.byTarget))
	for _, sess := range s.byTarget {
		sessions = append(sessions, sess)
	}
	s.byTarget = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

// List returns the active target ids.
func (s *Sessions) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.byTarget))
	for id := range s.byTarget {
		out = append(out, id)
	}
	return out
}

func (s *Sessions) dropAll() {
	s.mu.Lock()
	dropped := len(s.byTarget)
	s.byTarget = make(map[string]*Session)
	s.mu.Unlock()
	if dropped > 0 {
		s.logger.Warn("domsnap: sessions dropped after browser recycle", "count", dropped)
	}
}

// Session is the observe-act loop over one page tab.
type Session struct {
	id     string
	tab    *browser.Tab
	insp   protocol.Inspector
	cfg    *config.Config
	trail  *audit.Trail
	ext    *extract.Extractor
	exec   *action.Executor
	logger *slog.Logger

	flight singleflight.Group

	// actMu keeps actions strictly sequential: one pending action per
	// session at a time.
	actMu sync.Mutex

	snapMu sync.RWMutex
	snap   *snapshot.Snapshot
}

func newSession(id string, tab *browser.Tab, cfg *config.Config, trail *audit.Trail, logger *slog.Logger) *Session {
	logger = logger.With("target", id)
	insp := protocol.NewRodInspector(tab.Page, cfg.Capture.Timeout)
	return &Session{
		id:     id,
		tab:    tab,
		insp:   insp,
		cfg:    cfg,
		trail:  trail,
		ext:    extract.New(logger),
		exec:   action.New(insp, logger),
		logger: logger,
	}
}

// ID returns the session's target id.
func (s *Session) ID() string { return s.id }

// URL returns the tab's navigation URL.
func (s *Session) URL() string { return s.tab.PageURL }

// Observe returns the compacted document for the page's current state.
// A valid cached snapshot is served as-is; otherwise a fresh capture runs
// and is serialized. Overlapping callers share one acquisition.
func (s *Session) Observe(ctx context.Context) (*dom.Document, error) {
	v, err, _ := s.flight.Do("observe", func() (any, error) {
		snap, err := s.currentSnapshot(ctx)
		if err != nil {
			return nil, err
		}
		start := time.Now()
		doc := snap.Serialize(s.cfg.Snapshot.MaxAge, pipeline.Config{
			MinTextLength: s.cfg.Pipeline.MinTextLength,
			Occlusion:     s.cfg.Pipeline.Occlusion,
			BucketStates:  s.cfg.Pipeline.BucketStates,
		})
		s.record(&audit.Event{
			EventType: audit.EventSerialize,
			Success:   true,
			Duration:  time.Since(start),
		})
		return doc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*dom.Document), nil
}

// currentSnapshot returns a usable snapshot, re-acquiring the capture tree
// when none exists or the last one was invalidated by an action.
func (s *Session) currentSnapshot(ctx context.Context) (*snapshot.Snapshot, error) {
	s.snapMu.RLock()
	snap := s.snap
	s.snapMu.RUnlock()
	if snap != nil && snap.Valid() && snap.Age() < s.cfg.Snapshot.MaxAge {
		return snap, nil
	}

	start := time.Now()
	tree, err := capture.Acquire(ctx, s.insp, capture.Config{
		MaxDepth:          s.cfg.Capture.MaxDepth,
		NodeWarnThreshold: s.cfg.Capture.NodeWarnThreshold,
		Logger:            s.logger,
	})
	if err != nil {
		s.record(&audit.Event{
			EventType: audit.EventCapture,
			Duration:  time.Since(start),
			Error:     err.Error(),
		})
		// Fatal for this attempt only; the session stays usable and a
		// later acquisition may succeed.
		return nil, fmt.Errorf("domsnap: capture: %w", err)
	}

	snap = snapshot.New(tree, s.logger)
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()

	s.record(&audit.Event{
		EventType: audit.EventCapture,
		Success:   true,
		Duration:  time.Since(start),
		Detail:    fmt.Sprintf(`{"nodes":%d,"framework":%q}`, tree.Total, tree.Framework),
	})
	return snap, nil
}

// Act executes one action against the current snapshot. Actions are
// strictly sequential per session, and the snapshot is invalidated whether
// the action succeeds or fails: the next Observe re-captures.
func (s *Session) Act(ctx context.Context, req action.Request) *dom.ActionResult {
	s.actMu.Lock()
	defer s.actMu.Unlock()

	s.snapMu.RLock()
	snap := s.snap
	s.snapMu.RUnlock()

	var res *dom.ActionResult
	if snap == nil {
		res = &dom.ActionResult{
			ActionType: req.Type,
			NodeID:     req.NodeID,
			Timestamp:  time.Now().UnixMilli(),
			Error:      "no snapshot: observe before acting",
		}
	} else {
		res = s.exec.Execute(ctx, snap, req)
	}

	s.record(&audit.Event{
		EventType: audit.EventAction,
		NodeID:    req.NodeID,
		Success:   res.Success,
		Duration:  time.Duration(res.Duration) * time.Millisecond,
		Detail:    fmt.Sprintf(`{"action":%q}`, req.Type),
		Error:     res.Error,
	})
	return res
}

// Extract returns the page's main content as Markdown and plain text.
func (s *Session) Extract(ctx context.Context) (*extract.Result, error) {
	raw, err := s.tab.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("domsnap: extract: %w", err)
	}
	return s.ext.FromHTML(raw, s.tab.PageURL)
}

// Stats describes the session's last serialized state.
type Stats struct {
	TargetID  string       `json:"targetId"`
	URL       string       `json:"url"`
	HasValid  bool         `json:"hasValidSnapshot"`
	AgeMS     int64        `json:"snapshotAgeMs"`
	Metrics   *dom.Metrics `json:"metrics,omitempty"`
	Framework string       `json:"framework,omitempty"`
}

// Stats reports the session's snapshot state and last pipeline metrics.
func (s *Session) Stats() Stats {
	st := Stats{TargetID: s.id, URL: s.tab.PageURL}
	s.snapMu.RLock()
	snap := s.snap
	s.snapMu.RUnlock()
	if snap == nil {
		return st
	}
	st.HasValid = snap.Valid()
	st.AgeMS = snap.Age().Milliseconds()
	st.Framework = snap.Tree().Framework
	if doc := snap.Cached(); doc != nil {
		st.Metrics = doc.Page.Metrics
	}
	return st
}

func (s *Session) record(ev *audit.Event) {
	if s.trail == nil {
		return
	}
	ev.SessionID = s.id
	ev.PageURL = s.tab.PageURL
	s.trail.Record(ev)
}

func (s *Session) close() error {
	return s.tab.Close()
}
