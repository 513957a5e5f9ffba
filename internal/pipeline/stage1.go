package pipeline

import (
	"sort"
	"strings"

	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/geometry"
)

// pass carries per-run configuration through the stage functions.
type pass struct {
	cfg Config
}

// clone copies a node with a replacement child list. The capture node is
// left untouched; AX and geometry projections are shared read-only.
func clone(n *capture.Node, children []*capture.Node) *capture.Node {
	c := *n
	c.Children = children
	return &c
}

// landmarkRoles are ARIA landmark roles that survive container pruning even
// when empty: they anchor the page's addressable structure.
var landmarkRoles = map[string]bool{
	"banner":        true,
	"complementary": true,
	"contentinfo":   true,
	"form":          true,
	"main":          true,
	"navigation":    true,
	"region":        true,
	"search":        true,
}

// sectioningTags are HTML5 sectioning and form tags preserved like
// landmarks.
var sectioningTags = map[string]bool{
	"main":    true,
	"nav":     true,
	"header":  true,
	"footer":  true,
	"aside":   true,
	"section": true,
	"article": true,
	"form":    true,
	"body":    true,
	"html":    true,
}

func isLandmark(n *capture.Node) bool {
	if n.Kind != capture.KindElement {
		return false
	}
	return sectioningTags[n.Tag] || landmarkRoles[strings.ToLower(n.Role())]
}

// modalClassTokens mark hidden-by-default dialogs that must stay
// addressable so the agent can still reach them once shown.
var modalClassTokens = []string{"modal", "overlay", "dialog", "popup"}

func dialogException(n *capture.Node) bool {
	role := strings.ToLower(n.Role())
	if role == "dialog" || role == "alertdialog" {
		return true
	}
	if class, ok := n.Attr("class"); ok {
		lower := strings.ToLower(class)
		for _, tok := range modalClassTokens {
			if strings.Contains(lower, tok) {
				return true
			}
		}
	}
	return false
}

// filterVisibility drops invisible subtrees: zero-area boxes, display:none,
// visibility:hidden, opacity:0, and aria-hidden="true". Dialogs and
// modal/overlay containers survive hidden.
func (p *pass) filterVisibility(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}
	children := filterChildren(root.Children, p.filterVisibility)
	if hiddenNode(root) && !dialogException(root) {
		return nil
	}
	return clone(root, children)
}

func hiddenNode(n *capture.Node) bool {
	if v, ok := n.Attr("aria-hidden"); ok && strings.EqualFold(strings.TrimSpace(v), "true") {
		return true
	}
	g := n.Geom
	if g == nil {
		return false
	}
	if g.Display == "none" || g.Visibility == "hidden" || g.Opacity == 0 {
		return true
	}
	// Zero-area applies to elements only; text geometry is often absent
	// or degenerate without the node being invisible.
	return n.Kind == capture.KindElement && g.Box.Empty()
}

// filterTinyText drops text nodes under the minimum length unless the
// parent carries interaction signal or the text is formatting whitespace.
func (p *pass) filterTinyText(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}
	var walk func(n *capture.Node) *capture.Node
	walk = func(n *capture.Node) *capture.Node {
		var kept []*capture.Node
		for _, c := range n.Children {
			if c.Kind == capture.KindText && !p.keepText(c, n) {
				continue
			}
			if out := walk(c); out != nil {
				kept = append(kept, out)
			}
		}
		return clone(n, kept)
	}
	return walk(root)
}

func (p *pass) keepText(text, parent *capture.Node) bool {
	trimmed := strings.TrimSpace(text.Text)
	if len([]rune(trimmed)) >= p.cfg.MinTextLength {
		return true
	}
	if parent.Tier != capture.TierStructural {
		return true
	}
	// Tabs and newlines are formatting, not noise: dropping them would
	// glue adjacent words together after text merging.
	return strings.ContainsAny(text.Text, "\t\n")
}

// noiseTags never carry structure an agent can act on.
var noiseTags = map[string]bool{
	"script":   true,
	"style":    true,
	"meta":     true,
	"link":     true,
	"base":     true,
	"title":    true,
	"noscript": true,
}

// filterNoise drops script/style/meta-class subtrees and comment nodes,
// keeping surviving siblings.
func (p *pass) filterNoise(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}
	if root.Kind == capture.KindComment || noiseTags[root.Tag] {
		return nil
	}
	return clone(root, filterChildren(root.Children, p.filterNoise))
}

// pruneContainers removes structural containers after the signal filters:
// a container with no signal-bearing descendants is dropped whole; one that
// still shelters signal is removed by itself, its children hoisted up.
// Landmarks and sectioning tags are always preserved, even empty.
func (p *pass) pruneContainers(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}
	out := p.pruneContainerList(root)
	if len(out) == 1 {
		return out[0]
	}
	// The root itself was hoisted away; keep it as the tree anchor.
	return clone(root, out)
}

// pruneContainerList returns the replacement list for one node: nil when
// dropped, the node when kept, or its hoisted children.
func (p *pass) pruneContainerList(n *capture.Node) []*capture.Node {
	var kept []*capture.Node
	for _, c := range n.Children {
		kept = append(kept, p.pruneContainerList(c)...)
	}

	if n.Kind != capture.KindElement || isLandmark(n) {
		return []*capture.Node{clone(n, kept)}
	}
	if n.Tier != capture.TierStructural || p.cfg.Clickable.IsClickable(n) {
		return []*capture.Node{clone(n, kept)}
	}

	if !anySignal(kept) {
		return nil
	}
	return kept
}

// anySignal reports whether any subtree carries interaction signal or
// non-whitespace text.
func anySignal(nodes []*capture.Node) bool {
	for _, n := range nodes {
		found := false
		n.Walk(func(c *capture.Node, _ int) bool {
			if found {
				return false
			}
			if c.Tier != capture.TierStructural ||
				(c.Kind == capture.KindText && strings.TrimSpace(c.Text) != "") ||
				isLandmark(c) {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

// filterOcclusion removes nodes fully covered by higher-paint-order
// siblings. Siblings are processed from highest paint order down; the
// RectUnion add optimization requires that ordering.
func (p *pass) filterOcclusion(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}

	type sib struct {
		node  *capture.Node
		order int
		box   geometry.Rect
	}

	var withGeom []sib
	occluded := map[*capture.Node]bool{}
	for _, c := range root.Children {
		if c.Geom != nil && !c.Geom.Box.Empty() {
			withGeom = append(withGeom, sib{c, c.Geom.PaintOrder, c.Geom.Box})
		}
	}
	if len(withGeom) > 1 {
		sort.SliceStable(withGeom, func(i, j int) bool {
			return withGeom[i].order > withGeom[j].order
		})
		var u geometry.Union
		for _, s := range withGeom {
			if u.Contains(s.box) {
				occluded[s.node] = true
				continue
			}
			u.Add(s.box)
		}
	}

	var kept []*capture.Node
	for _, c := range root.Children {
		if occluded[c] {
			continue
		}
		kept = append(kept, p.filterOcclusion(c))
	}
	return clone(root, kept)
}

// filterChildren applies a node filter across a child list.
func filterChildren(children []*capture.Node, fn func(*capture.Node) *capture.Node) []*capture.Node {
	var kept []*capture.Node
	for _, c := range children {
		if out := fn(c); out != nil {
			kept = append(kept, out)
		}
	}
	return kept
}
