// Package pipeline turns a capture tree into the compact node tree handed
// to agents. Three stages run in fixed order: signal filters, structural
// simplifiers, payload optimization. Every stage is a pure function that
// returns a new tree; capture nodes are never mutated.
package pipeline

import (
	"log/slog"
	"time"

	"github.com/hazyhaar/domsnap/dom"
	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/clickable"
	"github.com/hazyhaar/domsnap/internal/remap"
)

// Config tunes one pipeline run.
type Config struct {
	// MinTextLength is the tiny-text threshold. Default: 3.
	MinTextLength int
	// Occlusion enables the paint-order occlusion filter. Off by default:
	// the algorithm depends on paint-order data that real pages disagree
	// with often enough that it stays opt-in.
	Occlusion bool
	// BucketStates switches state output from inline per-node lists to a
	// document-level bucket.
	BucketStates bool
	Clickable    *clickable.Classifier
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.MinTextLength <= 0 {
		c.MinTextLength = 3
	}
	if c.Clickable == nil {
		c.Clickable = clickable.New(0)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result is one pipeline output: the compact body, its state bucket when
// bucket mode is on, and the run metrics.
type Result struct {
	Body    *dom.Node
	States  map[string][]int
	Metrics dom.Metrics
}

// Run executes the three stages over the capture tree, registering
// surviving nodes in the identity table in first-seen order.
func Run(tree *capture.Tree, ids *remap.Table, cfg Config) *Result {
	cfg.defaults()

	total := tree.Root.Count()
	charsBefore := estimateChars(tree.Root)

	metrics := dom.Metrics{
		TotalNodes: total,
		Framework:  tree.Framework,
	}

	p := &pass{cfg: cfg}

	// Stage 1: signal filters.
	root := tree.Root
	root = timed(&metrics, "visibility", root, p.filterVisibility)
	root = timed(&metrics, "tiny_text", root, p.filterTinyText)
	root = timed(&metrics, "noise", root, p.filterNoise)
	root = timed(&metrics, "containers", root, p.pruneContainers)
	if cfg.Occlusion {
		root = timed(&metrics, "occlusion", root, p.filterOcclusion)
	}

	// Stage 2: structural simplifiers.
	root = timed(&metrics, "text_merge", root, p.mergeTextSiblings)
	root = timed(&metrics, "collapse", root, p.collapseWrappers)
	root = timed(&metrics, "attributes", root, p.cleanAttributes)
	root = timed(&metrics, "nested_clickable", root, p.pruneNestedClickable)

	// Stage 3: payload optimization.
	start := time.Now()
	opt := optimize(root, ids, cfg)
	serialized := opt.body.Count()
	metrics.Stages = append(metrics.Stages, dom.StageMetric{
		Name:      "optimize",
		ElapsedUS: time.Since(start).Microseconds(),
		NodesIn:   root.Count(),
		NodesOut:  serialized,
	})

	metrics.SerializedNodes = serialized
	metrics.CompactionScore = compactionScore(charsBefore, opt.chars, total, serialized)

	cfg.Logger.Debug("pipeline: run complete",
		"total", total,
		"serialized", serialized,
		"score", metrics.CompactionScore)

	return &Result{Body: opt.body, States: opt.states, Metrics: metrics}
}

// timed runs one filter and records its metric. Filters may return nil when
// the whole tree is filtered away; later stages tolerate a nil root.
func timed(m *dom.Metrics, name string, root *capture.Node, fn func(*capture.Node) *capture.Node) *capture.Node {
	in := root.Count()
	start := time.Now()
	out := fn(root)
	m.Stages = append(m.Stages, dom.StageMetric{
		Name:      name,
		ElapsedUS: time.Since(start).Microseconds(),
		NodesIn:   in,
		NodesOut:  out.Count(),
	})
	return out
}

// tokenChars is the fixed chars-per-token heuristic used for the token term
// of the compaction score.
const tokenChars = 3.8

// compactionScore blends character, node, and token-estimate reduction
// 0.4 / 0.4 / 0.2.
func compactionScore(charsBefore, charsAfter, nodesBefore, nodesAfter int) float64 {
	reduction := func(before, after float64) float64 {
		if before <= 0 {
			return 0
		}
		r := 1 - after/before
		if r < 0 {
			return 0
		}
		return r
	}

	charRed := reduction(float64(charsBefore), float64(charsAfter))
	nodeRed := reduction(float64(nodesBefore), float64(nodesAfter))
	tokenRed := reduction(float64(charsBefore)/tokenChars, float64(charsAfter)/tokenChars)

	return 0.4*charRed + 0.4*nodeRed + 0.2*tokenRed
}

// estimateChars approximates the character weight of the raw capture tree:
// tags, attributes, and text content.
func estimateChars(root *capture.Node) int {
	total := 0
	root.Walk(func(n *capture.Node, _ int) bool {
		total += len(n.Tag) + len(n.Text)
		for _, a := range n.Attrs {
			total += len(a.Name) + len(a.Value) + 4
		}
		return true
	})
	return total
}
