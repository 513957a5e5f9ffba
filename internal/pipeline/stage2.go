package pipeline

import (
	"strings"

	"github.com/hazyhaar/domsnap/internal/capture"
)

// mergeTextSiblings joins runs of consecutive text children into a single
// text node.
func (p *pass) mergeTextSiblings(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}

	var out []*capture.Node
	var run []*capture.Node
	flush := func() {
		if len(run) == 0 {
			return
		}
		if len(run) == 1 {
			out = append(out, run[0])
		} else {
			var b strings.Builder
			for _, t := range run {
				b.WriteString(t.Text)
			}
			merged := clone(run[0], nil)
			merged.Text = b.String()
			out = append(out, merged)
		}
		run = nil
	}

	for _, c := range root.Children {
		if c.Kind == capture.KindText {
			run = append(run, c)
			continue
		}
		flush()
		out = append(out, p.mergeTextSiblings(c))
	}
	flush()

	return clone(root, out)
}

// collapseWrappers removes structural wrappers with exactly one child,
// merging wrapper attributes into the child (child's value wins on
// collision). Interactive nodes, landmarks, and meaningful roles are never
// collapsed.
func (p *pass) collapseWrappers(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}

	children := make([]*capture.Node, 0, len(root.Children))
	for _, c := range root.Children {
		children = append(children, p.collapseWrappers(c))
	}

	if len(children) == 1 && p.collapsible(root) {
		child := children[0]
		if child.Kind == capture.KindElement && len(root.Attrs) > 0 {
			child = clone(child, child.Children)
			child.Attrs = mergeAttrs(root.Attrs, child.Attrs)
		}
		return child
	}
	return clone(root, children)
}

func (p *pass) collapsible(n *capture.Node) bool {
	switch n.Kind {
	case capture.KindDocument, capture.KindFragment:
		return true
	case capture.KindElement:
	default:
		return false
	}
	if isLandmark(n) || n.Tier != capture.TierStructural {
		return false
	}
	if p.cfg.Clickable.IsClickable(n) {
		return false
	}
	return strings.TrimSpace(n.Role()) == ""
}

// mergeAttrs overlays child attributes on wrapper attributes.
func mergeAttrs(wrapper, child []capture.Attr) []capture.Attr {
	merged := make([]capture.Attr, 0, len(wrapper)+len(child))
	seen := make(map[string]bool, len(child))
	for _, a := range child {
		seen[a.Name] = true
	}
	for _, a := range wrapper {
		if !seen[a.Name] {
			merged = append(merged, a)
		}
	}
	return append(merged, child...)
}

// implicitRoles maps tags to the ARIA role they already imply. A role
// attribute restating it carries no information.
var implicitRoles = map[string]string{
	"button":   "button",
	"a":        "link",
	"select":   "combobox",
	"textarea": "textbox",
	"nav":      "navigation",
	"main":     "main",
	"header":   "banner",
	"footer":   "contentinfo",
	"aside":    "complementary",
	"form":     "form",
	"img":      "img",
	"ul":       "list",
	"ol":       "list",
	"li":       "listitem",
}

// implicitInputRole resolves the implied role of an input by its type.
func implicitInputRole(n *capture.Node) string {
	typ, _ := n.Attr("type")
	switch strings.ToLower(typ) {
	case "checkbox":
		return "checkbox"
	case "radio":
		return "radio"
	case "button", "submit", "reset":
		return "button"
	case "range":
		return "slider"
	case "search":
		return "searchbox"
	default:
		return "textbox"
	}
}

// cleanAttributes drops attributes that are empty or whitespace and role
// attributes that merely restate the tag's implicit role.
func (p *pass) cleanAttributes(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}

	children := make([]*capture.Node, 0, len(root.Children))
	for _, c := range root.Children {
		children = append(children, p.cleanAttributes(c))
	}
	out := clone(root, children)

	if root.Kind != capture.KindElement || len(root.Attrs) == 0 {
		return out
	}

	implied := implicitRoles[root.Tag]
	if root.Tag == "input" {
		implied = implicitInputRole(root)
	}

	var kept []capture.Attr
	for _, a := range root.Attrs {
		if strings.TrimSpace(a.Value) == "" {
			continue
		}
		if a.Name == "role" && implied != "" && strings.EqualFold(strings.TrimSpace(a.Value), implied) {
			continue
		}
		kept = append(kept, a)
	}
	out.Attrs = kept
	return out
}

// propagatingTags forward clicks from descendants to themselves.
var propagatingTags = map[string]bool{
	"button":  true,
	"a":       true,
	"summary": true,
	"label":   true,
}

// formControlTags are never pruned as nested clickables: they hold their
// own input state.
var formControlTags = map[string]bool{
	"input":    true,
	"select":   true,
	"textarea": true,
}

// pruneNestedClickable removes clickable descendants that are visually and
// semantically swallowed by a click-propagating clickable ancestor: both
// classified clickable, the descendant's box at least 99% contained in the
// ancestor's, and nothing that distinguishes the descendant (form control,
// own handler, distinct accessible name or role). Children of a removed
// node are hoisted so label text survives.
func (p *pass) pruneNestedClickable(root *capture.Node) *capture.Node {
	if root == nil {
		return nil
	}
	out := p.pruneNested(root, nil)
	if len(out) == 1 {
		return out[0]
	}
	return clone(root, out)
}

func (p *pass) pruneNested(n *capture.Node, ancestor *capture.Node) []*capture.Node {
	next := ancestor
	if n.Kind == capture.KindElement && p.cfg.Clickable.IsClickable(n) && p.propagating(n) {
		next = n
	}

	var children []*capture.Node
	for _, c := range n.Children {
		children = append(children, p.pruneNested(c, next)...)
	}

	if ancestor != nil && n != ancestor && p.swallowed(n, ancestor) {
		return children
	}
	return []*capture.Node{clone(n, children)}
}

func (p *pass) propagating(n *capture.Node) bool {
	return propagatingTags[n.Tag] || n.Flags.ClickHandler
}

func (p *pass) swallowed(n, ancestor *capture.Node) bool {
	if n.Kind != capture.KindElement || !p.cfg.Clickable.IsClickable(n) {
		return false
	}
	if formControlTags[n.Tag] || n.Flags.ClickHandler {
		return false
	}
	if distinctIdentity(n, ancestor) {
		return false
	}
	return containment(n, ancestor) >= 0.99
}

// distinctIdentity reports whether the descendant carries an accessible
// name or role of its own that differs from the ancestor's.
func distinctIdentity(n, ancestor *capture.Node) bool {
	if name := n.AccessibleName(); name != "" && name != ancestor.AccessibleName() {
		return true
	}
	nRole, aRole := strings.ToLower(n.Role()), strings.ToLower(ancestor.Role())
	return nRole != "" && nRole != aRole
}

// containment returns the fraction of n's box covered by the ancestor's.
func containment(n, ancestor *capture.Node) float64 {
	if n.Geom == nil || ancestor.Geom == nil {
		return 0
	}
	a, b := n.Geom.Box, ancestor.Geom.Box
	if a.Empty() || b.Empty() {
		return 0
	}
	ix := overlap(a.X, a.X+a.W, b.X, b.X+b.W)
	iy := overlap(a.Y, a.Y+a.H, b.Y, b.Y+b.H)
	return (ix * iy) / (a.W * a.H)
}

func overlap(a1, a2, b1, b2 float64) float64 {
	lo := max(a1, b1)
	hi := min(a2, b2)
	if hi <= lo {
		return 0
	}
	return hi - lo
}
