// Package snapshot owns one acquired capture tree together with its cached
// serialization, identity table, and staleness bookkeeping. A snapshot is
// immutable once built; Invalidate is the only transition, and it discards
// the cached serialization so the next read rebuilds.
package snapshot

import (
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/domsnap/dom"
	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/clickable"
	"github.com/hazyhaar/domsnap/internal/pipeline"
	"github.com/hazyhaar/domsnap/internal/protocol"
	"github.com/hazyhaar/domsnap/internal/remap"
)

// DefaultMaxAge is the staleness threshold applied when the caller passes
// zero.
const DefaultMaxAge = 30 * time.Second

// Snapshot pairs one capture tree with page context and a read-through
// serialization cache. The identity table and clickability memo belong to
// the snapshot: both are reset on every rebuild so entries from a previous
// tree never leak into the next one.
type Snapshot struct {
	tree    *capture.Tree
	context dom.PageContext
	created time.Time
	logger  *slog.Logger

	ids   *remap.Table
	click *clickable.Classifier

	group singleflight.Group

	mu     sync.RWMutex
	cached *dom.Document

	indexOnce sync.Once
	index     map[protocol.BackendID]*capture.Node
}

// New wraps an acquired capture tree. The snapshot's age starts now.
func New(tree *capture.Tree, logger *slog.Logger) *Snapshot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Snapshot{
		tree: tree,
		context: dom.PageContext{
			URL:      tree.Info.URL,
			Title:    tree.Info.Title,
			Viewport: [2]int{tree.Info.ViewportWidth, tree.Info.ViewportHeight},
		},
		created: time.Now(),
		logger:  logger,
		ids:     remap.New(),
		click:   clickable.New(0),
	}
}

// Tree exposes the underlying capture tree.
func (s *Snapshot) Tree() *capture.Tree { return s.tree }

// Context returns the page context recorded at acquisition time.
func (s *Snapshot) Context() dom.PageContext { return s.context }

// Age returns time elapsed since acquisition.
func (s *Snapshot) Age() time.Duration { return time.Since(s.created) }

// IDs returns the identity table backing the cached serialization. Entries
// are only meaningful after at least one Serialize call.
func (s *Snapshot) IDs() *remap.Table { return s.ids }

// Serialize returns the cached compacted document when one exists, is
// younger than maxAge, and has not been invalidated; otherwise it runs the
// pipeline exactly once, caches the result, and returns it. Concurrent
// callers collapse onto a single pipeline execution.
func (s *Snapshot) Serialize(maxAge time.Duration, cfg pipeline.Config) *dom.Document {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	if doc := s.fresh(maxAge); doc != nil {
		return doc
	}

	v, _, _ := s.group.Do("serialize", func() (any, error) {
		// Re-check under the flight: a racing caller may have rebuilt
		// between our staleness check and joining the group.
		if doc := s.fresh(maxAge); doc != nil {
			return doc, nil
		}
		return s.rebuild(cfg), nil
	})
	return v.(*dom.Document)
}

// fresh returns the cached document if it is still valid. Age is measured
// from acquisition, not from the last rebuild: re-serializing the same tree
// never makes the underlying capture younger.
func (s *Snapshot) fresh(maxAge time.Duration) *dom.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached == nil || time.Since(s.created) >= maxAge {
		return nil
	}
	return s.cached
}

func (s *Snapshot) rebuild(cfg pipeline.Config) *dom.Document {
	start := time.Now()

	// Fresh identity assignment and classification per rebuild.
	s.ids.Reset()
	s.click.Reset()

	cfg.Clickable = s.click
	cfg.Logger = s.logger
	res := pipeline.Run(s.tree, s.ids, cfg)

	doc := &dom.Document{Page: dom.Page{
		Context: s.context,
		Body:    res.Body,
		Metrics: &res.Metrics,
		States:  res.States,
	}}

	s.mu.Lock()
	s.cached = doc
	s.mu.Unlock()

	s.logger.Debug("snapshot: serialized",
		"nodes", res.Metrics.SerializedNodes,
		"score", res.Metrics.CompactionScore,
		"elapsed", time.Since(start))
	return doc
}

// Invalidate discards the cached serialization. The capture tree and the
// identity table survive so in-flight action resolution keeps working; the
// next Serialize call rebuilds both.
func (s *Snapshot) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}

// Cached returns the cached document without triggering a rebuild, or nil
// when none exists.
func (s *Snapshot) Cached() *dom.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached
}

// Valid reports whether a cached serialization exists.
func (s *Snapshot) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached != nil
}

// NodeByBackendID resolves a backend id to its capture node in O(1). The
// index is built once, lazily, over the full tree.
func (s *Snapshot) NodeByBackendID(id protocol.BackendID) *capture.Node {
	s.indexOnce.Do(func() {
		s.index = make(map[protocol.BackendID]*capture.Node, 256)
		if s.tree != nil && s.tree.Root != nil {
			s.tree.Root.Walk(func(n *capture.Node, _ int) bool {
				if n.BackendID != 0 {
					s.index[n.BackendID] = n
				}
				return true
			})
		}
	})
	return s.index[id]
}

// NodeBySequentialID resolves an agent-supplied sequential id through the
// identity table to its capture node. Returns nil when the id was never
// assigned or its backend node is gone.
func (s *Snapshot) NodeBySequentialID(seq int) *capture.Node {
	backend, ok := s.ids.BackendID(seq)
	if !ok {
		return nil
	}
	return s.NodeByBackendID(backend)
}
