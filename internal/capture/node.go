// Package capture builds the intermediate capture tree from the protocol's
// document and accessibility queries and derives per-node interaction
// signals. The capture tree is fully detailed; compaction happens later in
// the pipeline.
package capture

import (
	"strconv"

	"github.com/hazyhaar/domsnap/internal/geometry"
	"github.com/hazyhaar/domsnap/internal/protocol"
)

// Kind is the node kind in the capture tree.
type Kind int

const (
	KindElement Kind = iota
	KindText
	KindComment
	KindDocument
	KindFragment
)

// Tier is the derived interaction classification. Computed once at
// acquisition time; the pipeline consumes it read-only.
type Tier int

const (
	// TierStructural nodes carry no interaction signal.
	TierStructural Tier = iota
	// TierNonSemantic nodes have heuristic signals but no proper role.
	TierNonSemantic
	// TierSemantic nodes carry a non-generic accessibility role.
	TierSemantic
)

func (t Tier) String() string {
	switch t {
	case TierSemantic:
		return "semantic"
	case TierNonSemantic:
		return "non-semantic"
	default:
		return "structural"
	}
}

// Attr is one raw attribute.
type Attr struct {
	Name  string
	Value string
}

// Flags are the heuristic interaction signals computed from raw attributes.
type Flags struct {
	ClickHandler  bool // onclick-style handler attribute
	TestID        bool // explicit test identifier attribute
	PointerCursor bool // cursor:pointer from style attribute or computed style
	RoleAttr      bool // explicit role attribute
	TabStop       bool // tabindex >= 0
}

// Any reports whether at least one heuristic fired.
func (f Flags) Any() bool {
	return f.ClickHandler || f.TestID || f.PointerCursor || f.RoleAttr || f.TabStop
}

// AX is the accessibility projection attached to a node when the AX tree
// has an entry for its backend id.
type AX struct {
	Role         string
	Name         string
	Description  string
	Value        string
	Disabled     bool
	Checked      bool
	Expanded     bool
	Required     bool
	Selected     bool
	HeadingLevel int
}

// Geometry is the layout projection attached when the layout snapshot has
// an entry for the node.
type Geometry struct {
	Box        geometry.Rect
	PaintOrder int
	Display    string
	Visibility string
	Cursor     string
	Opacity    float64
	ScrollW    float64
	ScrollH    float64
	ClientW    float64
	ClientH    float64
}

// Node is one unit of the capture tree.
//
// BackendID is unique within one capture and stable for the session's
// lifetime; NodeID is only valid until the next capture.
type Node struct {
	NodeID     protocol.NodeID
	BackendID  protocol.BackendID
	Kind       Kind
	Tag        string // lowercase tag for elements, #text/#comment otherwise
	Text       string // character data for text/comment nodes
	Attrs      []Attr
	AX         *AX
	Geom       *Geometry
	Children   []*Node
	FrameID    string
	FrameRoot  bool
	ShadowRoot bool
	Flags      Flags
	Tier       Tier
}

// Attr returns the named attribute value.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// HasAttr reports attribute presence.
func (n *Node) HasAttr(name string) bool {
	_, ok := n.Attr(name)
	return ok
}

// Role returns the effective role: accessibility projection first, explicit
// role attribute as fallback.
func (n *Node) Role() string {
	if n.AX != nil && n.AX.Role != "" {
		return n.AX.Role
	}
	if r, ok := n.Attr("role"); ok {
		return r
	}
	return ""
}

// AccessibleName returns the projected accessible name, if any.
func (n *Node) AccessibleName() string {
	if n.AX == nil {
		return ""
	}
	return n.AX.Name
}

// Count returns the number of nodes in the subtree rooted at n.
func (n *Node) Count() int {
	if n == nil {
		return 0
	}
	total := 0
	stack := []*Node{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, cur.Children...)
	}
	return total
}

// Walk visits the subtree depth-first with an explicit stack. The visit
// function receives each node with its depth; returning false skips the
// node's children.
func (n *Node) Walk(visit func(node *Node, depth int) bool) {
	if n == nil {
		return
	}
	type frame struct {
		node  *Node
		depth int
	}
	stack := []frame{{n, 0}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !visit(f.node, f.depth) {
			continue
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
}

// parseOpacity parses a computed opacity value, defaulting to fully opaque.
func parseOpacity(s string) float64 {
	if s == "" {
		return 1
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 1
	}
	return v
}
