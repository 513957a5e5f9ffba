package pipeline

import (
	"math"
	"strings"

	"github.com/hazyhaar/domsnap/dom"
	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/clickable"
	"github.com/hazyhaar/domsnap/internal/remap"
)

// optimized is the stage-3 output.
type optimized struct {
	body   *dom.Node
	chars  int
	states map[string][]int
}

// optimize converts the filtered capture tree into the compact wire tree:
// sequential ids for addressable nodes, whitelisted attributes mapped onto
// typed fields, integer boxes, and element states either inline or in a
// document-level bucket.
func optimize(root *capture.Node, ids *remap.Table, cfg Config) optimized {
	o := &optimizer{ids: ids, click: cfg.Clickable}
	if cfg.BucketStates {
		o.states = make(map[string][]int)
	}
	body := o.emit(root)
	return optimized{body: body, chars: wireChars(body), states: o.states}
}

type optimizer struct {
	ids    *remap.Table
	click  *clickable.Classifier
	states map[string][]int // nil in inline mode
}

// passthroughAttrs survive into the generic attribute map verbatim.
var passthroughAttrs = map[string]bool{
	"name": true,
	"alt":  true,
	"for":  true,
}

func (o *optimizer) emit(n *capture.Node) *dom.Node {
	if n == nil {
		return nil
	}

	out := &dom.Node{Tag: wireTag(n)}

	if n.Kind == capture.KindText || n.Kind == capture.KindComment {
		out.Text = strings.TrimSpace(n.Text)
		return out
	}

	// Only addressable nodes get a sequential id: anything an agent could
	// act on or that carries interaction meaning. Pure structure stays
	// id-less so the numbering maps one-to-one onto actionable targets.
	if n.Kind == capture.KindElement && (n.Tier != capture.TierStructural || o.click.IsClickable(n)) {
		out.ID = o.ids.Register(n.BackendID)
	}

	if role := n.Role(); !capture.GenericRole(role) {
		out.Role = strings.ToLower(role)
	}

	o.projectAttrs(n, out)
	o.projectStates(n, out)

	if n.Geom != nil && !n.Geom.Box.Empty() {
		b := n.Geom.Box
		out.Box = []int{
			int(math.Round(b.X)),
			int(math.Round(b.Y)),
			int(math.Round(b.W)),
			int(math.Round(b.H)),
		}
	}

	var texts []string
	for _, c := range n.Children {
		if c.Kind == capture.KindText {
			if t := strings.TrimSpace(c.Text); t != "" {
				texts = append(texts, t)
			}
			continue
		}
		if child := o.emit(c); child != nil {
			out.Children = append(out.Children, child)
		}
	}
	out.Text = strings.Join(texts, " ")

	return out
}

// projectAttrs maps the surviving raw attributes onto the wire node's typed
// fields, keeping only whitelisted leftovers in the generic map.
func (o *optimizer) projectAttrs(n *capture.Node, out *dom.Node) {
	var title string
	for _, a := range n.Attrs {
		switch {
		case a.Name == "href":
			out.Link = a.Value
		case a.Name == "placeholder":
			out.Hint = a.Value
		case a.Name == "title":
			title = a.Value
		case a.Name == "type" && (n.Tag == "input" || n.Tag == "button"):
			out.Input = a.Value
		case a.Name == "value":
			out.Value = a.Value
		case passthroughAttrs[a.Name],
			strings.HasPrefix(a.Name, "aria-") && a.Name != "aria-hidden",
			strings.HasPrefix(a.Name, "data-test"),
			a.Name == "data-cy" || a.Name == "data-qa":
			if out.Attrs == nil {
				out.Attrs = make(map[string]string)
			}
			out.Attrs[a.Name] = a.Value
		}
	}
	if out.Hint == "" {
		out.Hint = title
	}
	if n.AX != nil {
		if out.Value == "" {
			out.Value = n.AX.Value
		}
		if name := strings.TrimSpace(n.AX.Name); name != "" && out.Attrs["aria-label"] == "" {
			if out.Attrs == nil {
				out.Attrs = make(map[string]string)
			}
			out.Attrs["aria-label"] = name
		}
	}
}

// projectStates emits the boolean element states, inline on the node or
// appended to the document bucket keyed by state name. Bucket entries stay
// sorted for free: ids are assigned in the same pre-order the bucket is
// filled in.
func (o *optimizer) projectStates(n *capture.Node, out *dom.Node) {
	if n.AX == nil {
		return
	}
	add := func(on bool, name string) {
		if !on {
			return
		}
		if o.states != nil {
			if out.ID != 0 {
				o.states[name] = append(o.states[name], out.ID)
			}
			return
		}
		out.States = append(out.States, name)
	}
	add(n.AX.Disabled, "disabled")
	add(n.AX.Checked, "checked")
	add(n.AX.Expanded, "expanded")
	add(n.AX.Required, "required")
	add(n.AX.Selected, "selected")
}

func wireTag(n *capture.Node) string {
	switch n.Kind {
	case capture.KindText:
		return "#text"
	case capture.KindComment:
		return "#comment"
	case capture.KindDocument:
		return "#document"
	case capture.KindFragment:
		return "#fragment"
	default:
		return n.Tag
	}
}

// wireChars measures the character weight of the compact tree for the
// compaction score.
func wireChars(root *dom.Node) int {
	if root == nil {
		return 0
	}
	total := 0
	stack := []*dom.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total += len(n.Tag) + len(n.Text) + len(n.Role) + len(n.Value) +
			len(n.Link) + len(n.Hint) + len(n.Input)
		for _, s := range n.States {
			total += len(s) + 2
		}
		for k, v := range n.Attrs {
			total += len(k) + len(v) + 4
		}
		if len(n.Box) > 0 {
			total += 16
		}
		if n.ID != 0 {
			total += 6
		}
		stack = append(stack, n.Children...)
	}
	return total
}
