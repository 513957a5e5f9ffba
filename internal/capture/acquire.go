package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/domsnap/internal/geometry"
	"github.com/hazyhaar/domsnap/internal/protocol"
)

// Config bounds one acquisition.
type Config struct {
	// MaxDepth is the construction depth ceiling. Nodes beyond it are
	// dropped with a logged warning. Default: 100.
	MaxDepth int
	// NodeWarnThreshold triggers a non-fatal memory-pressure warning.
	// Default: 50000.
	NodeWarnThreshold int
	Logger            *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxDepth <= 0 {
		c.MaxDepth = 100
	}
	if c.NodeWarnThreshold <= 0 {
		c.NodeWarnThreshold = 50000
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Tree is one complete capture: the intermediate tree plus page context and
// acquisition bookkeeping.
type Tree struct {
	Root *Node
	Info protocol.PageInfo
	// Total is the constructed node count.
	Total int
	// DepthDropped counts subtrees discarded by the depth ceiling.
	DepthDropped int
	// AXDegraded is set when the accessibility query failed and the
	// capture proceeded on document data alone.
	AXDegraded bool
	// LayoutDegraded is set when the layout snapshot failed.
	LayoutDegraded bool
	// Framework is the fingerprinted frontend framework, if recognised.
	Framework string
}

// Acquire runs the protocol queries concurrently and merges their results
// into one capture tree. The document query failing is fatal to this attempt;
// the accessibility, layout and page-info queries degrade gracefully.
func Acquire(ctx context.Context, insp protocol.Inspector, cfg Config) (*Tree, error) {
	cfg.defaults()
	log := cfg.Logger

	tree := &Tree{}

	var (
		root        *protocol.DocNode
		axIndex     = map[protocol.BackendID]*AX{}
		layoutIndex = map[protocol.BackendID]*Geometry{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		doc, err := insp.DocumentTree(gctx)
		if err != nil {
			return fmt.Errorf("capture: document tree: %w", err)
		}
		if doc == nil {
			return fmt.Errorf("capture: document tree: empty root")
		}
		root = doc
		return nil
	})
	g.Go(func() error {
		axEntries, err := insp.AccessibilityTree(gctx)
		if err != nil {
			tree.AXDegraded = true
			log.Warn("capture: accessibility tree unavailable, continuing without projections", "error", err)
			return nil
		}
		for _, e := range axEntries {
			if e.Ignored {
				continue
			}
			axIndex[e.BackendID] = projectAX(e)
		}
		return nil
	})
	g.Go(func() error {
		layoutEntries, err := insp.Layout(gctx)
		if err != nil {
			tree.LayoutDegraded = true
			log.Warn("capture: layout snapshot unavailable, continuing without geometry", "error", err)
			return nil
		}
		for _, e := range layoutEntries {
			layoutIndex[e.BackendID] = projectGeometry(e)
		}
		return nil
	})
	g.Go(func() error {
		info, err := insp.Info(gctx)
		if err != nil {
			log.Warn("capture: page info unavailable", "error", err)
			return nil
		}
		tree.Info = info
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tree.Root = build(root, axIndex, layoutIndex, cfg, tree)

	if tree.DepthDropped > 0 {
		log.Warn("capture: depth ceiling reached, subtrees dropped",
			"max_depth", cfg.MaxDepth, "dropped", tree.DepthDropped)
	}
	if tree.Total > cfg.NodeWarnThreshold {
		log.Warn("capture: node count above high-water mark, memory pressure",
			"nodes", tree.Total, "threshold", cfg.NodeWarnThreshold)
	}

	tree.Framework = fingerprint(tree.Root)

	log.Info("capture: tree acquired",
		"url", tree.Info.URL,
		"nodes", tree.Total,
		"ax_degraded", tree.AXDegraded,
		"framework", tree.Framework)
	return tree, nil
}

// build constructs the capture tree top-down with an explicit work stack so
// pathological nesting can never overflow the goroutine stack.
func build(root *protocol.DocNode, ax map[protocol.BackendID]*AX,
	layout map[protocol.BackendID]*Geometry, cfg Config, tree *Tree) *Node {

	type item struct {
		doc        *protocol.DocNode
		parent     *Node
		depth      int
		shadowRoot bool
		frameRoot  bool
	}

	var rootNode *Node
	stack := []item{{doc: root}}

	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if it.depth > cfg.MaxDepth {
			tree.DepthDropped++
			continue
		}

		node := newNode(it.doc, ax, layout)
		if node == nil {
			continue
		}
		node.ShadowRoot = it.shadowRoot
		node.FrameRoot = it.frameRoot
		tree.Total++

		if it.parent == nil {
			rootNode = node
		} else {
			it.parent.Children = append(it.parent.Children, node)
		}

		// Push in reverse so children come off the stack in document
		// order. Frame documents and shadow roots traverse last.
		if cd := it.doc.ContentDocument; cd != nil {
			stack = append(stack, item{doc: cd, parent: node, depth: it.depth + 1, frameRoot: true})
		}
		for i := len(it.doc.ShadowRoots) - 1; i >= 0; i-- {
			stack = append(stack, item{doc: it.doc.ShadowRoots[i], parent: node, depth: it.depth + 1, shadowRoot: true})
		}
		for i := len(it.doc.Children) - 1; i >= 0; i-- {
			stack = append(stack, item{doc: it.doc.Children[i], parent: node, depth: it.depth + 1})
		}
	}

	return rootNode
}

func newNode(doc *protocol.DocNode, ax map[protocol.BackendID]*AX,
	layout map[protocol.BackendID]*Geometry) *Node {

	var kind Kind
	switch doc.NodeType {
	case 1:
		kind = KindElement
	case 3:
		kind = KindText
	case 8:
		kind = KindComment
	case 9:
		kind = KindDocument
	case 11:
		kind = KindFragment
	default:
		// Doctype and processing instructions carry no structure.
		return nil
	}

	n := &Node{
		NodeID:    doc.NodeID,
		BackendID: doc.BackendID,
		Kind:      kind,
		Tag:       strings.ToLower(doc.Name),
		FrameID:   doc.FrameID,
	}

	switch kind {
	case KindText, KindComment:
		n.Text = doc.Value
	case KindElement:
		n.Attrs = pairAttrs(doc.Attrs)
	}

	n.AX = ax[doc.BackendID]
	n.Geom = layout[doc.BackendID]
	n.Flags = computeFlags(n.Attrs)
	if n.Geom != nil && strings.EqualFold(n.Geom.Cursor, "pointer") {
		n.Flags.PointerCursor = true
	}
	n.Tier = deriveTier(n.AX, n.Flags)
	return n
}

// pairAttrs folds the protocol's flat name/value list into attribute pairs.
func pairAttrs(flat []string) []Attr {
	if len(flat) < 2 {
		return nil
	}
	attrs := make([]Attr, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		attrs = append(attrs, Attr{Name: strings.ToLower(flat[i]), Value: flat[i+1]})
	}
	return attrs
}

func projectAX(e protocol.AXEntry) *AX {
	ax := &AX{
		Role:        e.Role,
		Name:        e.Name,
		Description: e.Description,
		Value:       e.Value,
	}
	for name, val := range e.Properties {
		truthy := val == "true" || val == "mixed"
		switch name {
		case "disabled":
			ax.Disabled = truthy
		case "checked":
			ax.Checked = truthy
		case "expanded":
			ax.Expanded = truthy
		case "required":
			ax.Required = truthy
		case "selected":
			ax.Selected = truthy
		case "level":
			if lvl, err := strconv.Atoi(val); err == nil {
				ax.HeadingLevel = lvl
			}
		}
	}
	return ax
}

func projectGeometry(e protocol.LayoutEntry) *Geometry {
	return &Geometry{
		Box:        geometry.Rect{X: e.X, Y: e.Y, W: e.W, H: e.H},
		PaintOrder: e.PaintOrder,
		Display:    e.Styles["display"],
		Visibility: e.Styles["visibility"],
		Cursor:     e.Styles["cursor"],
		Opacity:    parseOpacity(e.Styles["opacity"]),
		ScrollW:    e.ScrollW,
		ScrollH:    e.ScrollH,
		ClientW:    e.ClientW,
		ClientH:    e.ClientH,
	}
}
