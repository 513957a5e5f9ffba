package pipeline

import (
	"testing"

	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/geometry"
	"github.com/hazyhaar/domsnap/internal/protocol"
	"github.com/hazyhaar/domsnap/internal/remap"
)

func elem(tag string, backend int64, kids ...*capture.Node) *capture.Node {
	return &capture.Node{
		Kind:      capture.KindElement,
		Tag:       tag,
		BackendID: protocol.BackendID(backend),
		Children:  kids,
	}
}

func textNode(s string) *capture.Node {
	return &capture.Node{Kind: capture.KindText, Tag: "#text", Text: s}
}

func withAX(n *capture.Node, role, name string) *capture.Node {
	n.AX = &capture.AX{Role: role, Name: name}
	n.Tier = capture.TierSemantic
	return n
}

func withBox(n *capture.Node, x, y, w, h float64, order int) *capture.Node {
	if n.Geom == nil {
		n.Geom = &capture.Geometry{Opacity: 1}
	}
	n.Geom.Box = geometry.Rect{X: x, Y: y, W: w, H: h}
	n.Geom.PaintOrder = order
	return n
}

func withAttr(n *capture.Node, name, value string) *capture.Node {
	n.Attrs = append(n.Attrs, capture.Attr{Name: name, Value: value})
	return n
}

func newPass(t *testing.T) *pass {
	t.Helper()
	cfg := Config{}
	cfg.defaults()
	return &pass{cfg: cfg}
}

func TestVisibilityFilterDropsHidden(t *testing.T) {
	hidden := withBox(elem("div", 10), 0, 0, 100, 100, 1)
	hidden.Geom.Display = "none"
	zero := withBox(elem("span", 11), 0, 0, 0, 0, 1)
	visible := withBox(elem("p", 12, textNode("hello world")), 0, 0, 50, 20, 1)

	root := elem("body", 1, hidden, zero, visible)
	out := newPass(t).filterVisibility(root)

	if got, want := len(out.Children), 1; got != want {
		t.Fatalf("surviving children = %d, want %d", got, want)
	}
	if got, want := out.Children[0].Tag, "p"; got != want {
		t.Errorf("survivor tag = %q, want %q", got, want)
	}
}

func TestVisibilityFilterKeepsHiddenDialog(t *testing.T) {
	dialog := withAttr(elem("div", 10), "aria-hidden", "true")
	dialog = withAttr(dialog, "class", "checkout-modal")
	plain := withAttr(elem("div", 11), "aria-hidden", "true")

	root := elem("body", 1, dialog, plain)
	out := newPass(t).filterVisibility(root)

	if got, want := len(out.Children), 1; got != want {
		t.Fatalf("surviving children = %d, want %d", got, want)
	}
	if !out.Children[0].HasAttr("class") {
		t.Error("survivor should be the modal container")
	}
}

func TestTinyTextFilter(t *testing.T) {
	structural := elem("div", 10, textNode("ok"), textNode("long enough"), textNode("\n"))
	button := withAX(elem("button", 11, textNode("Go")), "button", "")

	root := elem("body", 1, structural, button)
	out := newPass(t).filterTinyText(root)

	div := out.Children[0]
	if got, want := len(div.Children), 2; got != want {
		t.Fatalf("structural text children = %d, want %d", got, want)
	}
	if got, want := div.Children[0].Text, "long enough"; got != want {
		t.Errorf("kept text = %q, want %q", got, want)
	}
	// Newline-only text survives as formatting whitespace.
	if got, want := div.Children[1].Text, "\n"; got != want {
		t.Errorf("kept whitespace = %q, want %q", got, want)
	}
	// Short text under an interactive parent survives.
	btn := out.Children[1]
	if got, want := len(btn.Children), 1; got != want {
		t.Fatalf("button text children = %d, want %d", got, want)
	}
}

func TestNoiseFilter(t *testing.T) {
	root := elem("body", 1,
		elem("script", 10, textNode("var x = 1")),
		elem("style", 11),
		&capture.Node{Kind: capture.KindComment, Tag: "#comment", Text: "hi"},
		elem("p", 12, textNode("content")),
	)
	out := newPass(t).filterNoise(root)

	if got, want := len(out.Children), 1; got != want {
		t.Fatalf("surviving children = %d, want %d", got, want)
	}
	if got, want := out.Children[0].Tag, "p"; got != want {
		t.Errorf("survivor tag = %q, want %q", got, want)
	}
}

func TestContainerPruning(t *testing.T) {
	empty := elem("div", 10, elem("div", 11))
	sheltering := elem("div", 12, withAX(elem("button", 13), "button", "Go"))
	nav := elem("nav", 14)

	root := elem("body", 1, empty, sheltering, nav)
	out := newPass(t).pruneContainers(root)

	if got, want := len(out.Children), 2; got != want {
		t.Fatalf("surviving children = %d, want %d", got, want)
	}
	// The sheltering wrapper is gone, its button hoisted to body level.
	if got, want := out.Children[0].Tag, "button"; got != want {
		t.Errorf("first survivor = %q, want %q", got, want)
	}
	// The empty nav is a sectioning tag and stays.
	if got, want := out.Children[1].Tag, "nav"; got != want {
		t.Errorf("second survivor = %q, want %q", got, want)
	}
}

func TestOcclusionFilter(t *testing.T) {
	under := withBox(elem("div", 10, textNode("hidden below")), 0, 0, 100, 100, 1)
	under.Tier = capture.TierNonSemantic
	over := withBox(elem("div", 11, textNode("on top")), 0, 0, 100, 100, 5)
	over.Tier = capture.TierNonSemantic

	root := elem("body", 1, under, over)
	cfg := Config{Occlusion: true}
	cfg.defaults()
	p := &pass{cfg: cfg}
	out := p.filterOcclusion(root)

	if got, want := len(out.Children), 1; got != want {
		t.Fatalf("surviving children = %d, want %d", got, want)
	}
	if got, want := out.Children[0].BackendID, protocol.BackendID(11); got != want {
		t.Errorf("survivor backend id = %d, want %d", got, want)
	}
}

func TestCollapseWrappersMergesAttributes(t *testing.T) {
	inner := withAttr(elem("div", 11, textNode("payload text")), "data-testid", "inner")
	inner.Tier = capture.TierNonSemantic
	inner.Flags.TestID = true
	wrapper := withAttr(elem("div", 10, inner), "data-region", "x")

	out := newPass(t).collapseWrappers(elem("section", 1, wrapper))

	if got, want := len(out.Children), 1; got != want {
		t.Fatalf("section children = %d, want %d", got, want)
	}
	got := out.Children[0]
	if got.BackendID != 11 {
		t.Fatalf("wrapper not collapsed, backend id = %d", got.BackendID)
	}
	if v, _ := got.Attr("data-region"); v != "x" {
		t.Errorf("wrapper attribute not merged, data-region = %q", v)
	}
	if v, _ := got.Attr("data-testid"); v != "inner" {
		t.Errorf("child attribute lost, data-testid = %q", v)
	}
}

func TestCleanAttributesDropsImplicitRole(t *testing.T) {
	btn := withAttr(elem("button", 10), "role", "button")
	btn = withAttr(btn, "data-x", "  ")
	btn = withAttr(btn, "name", "go")

	out := newPass(t).cleanAttributes(btn)

	if out.HasAttr("role") {
		t.Error("implicit role attribute should be dropped")
	}
	if out.HasAttr("data-x") {
		t.Error("whitespace attribute should be dropped")
	}
	if !out.HasAttr("name") {
		t.Error("name attribute should survive")
	}
}

func TestFormScenario(t *testing.T) {
	input := withAX(elem("input", 20), "textbox", "")
	input = withAttr(input, "placeholder", "Email")
	input = withBox(input, 10, 10, 200, 30, 3)

	button := withAX(elem("button", 21), "button", "Submit")
	button = withBox(button, 10, 50, 80, 30, 3)

	wrapper := elem("div", 12, input, button)
	form := withBox(elem("form", 11, wrapper), 0, 0, 300, 100, 2)
	body := withBox(elem("body", 10, form), 0, 0, 1280, 720, 1)

	ids := remap.New()
	res := Run(&capture.Tree{Root: body}, ids, Config{})

	if got, want := res.Body.Tag, "body"; got != want {
		t.Fatalf("root tag = %q, want %q", got, want)
	}
	if got, want := len(res.Body.Children), 1; got != want {
		t.Fatalf("body children = %d, want %d", got, want)
	}
	f := res.Body.Children[0]
	if got, want := f.Tag, "form"; got != want {
		t.Fatalf("child tag = %q, want %q", got, want)
	}
	if got, want := len(f.Children), 2; got != want {
		t.Fatalf("form children = %d, want %d (wrapper div must be gone)", got, want)
	}

	in, btn := f.Children[0], f.Children[1]
	if in.Tag != "input" || btn.Tag != "button" {
		t.Fatalf("children = %q,%q, want input,button", in.Tag, btn.Tag)
	}
	if got, want := in.ID, 1; got != want {
		t.Errorf("input id = %d, want %d", got, want)
	}
	if got, want := btn.ID, 2; got != want {
		t.Errorf("button id = %d, want %d", got, want)
	}
	if got, want := in.Role, "textbox"; got != want {
		t.Errorf("input role = %q, want %q", got, want)
	}
	if got, want := in.Hint, "Email"; got != want {
		t.Errorf("input hint = %q, want %q", got, want)
	}
	if got, want := btn.Role, "button"; got != want {
		t.Errorf("button role = %q, want %q", got, want)
	}
	if got, want := btn.Attrs["aria-label"], "Submit"; got != want {
		t.Errorf("button aria-label = %q, want %q", got, want)
	}

	// Round trip through the identity table.
	if backend, ok := ids.BackendID(1); !ok || backend != 20 {
		t.Errorf("BackendID(1) = %d,%v, want 20,true", backend, ok)
	}
	if backend, ok := ids.BackendID(2); !ok || backend != 21 {
		t.Errorf("BackendID(2) = %d,%v, want 21,true", backend, ok)
	}

	if res.Metrics.SerializedNodes >= res.Metrics.TotalNodes {
		t.Errorf("serialized %d not below total %d", res.Metrics.SerializedNodes, res.Metrics.TotalNodes)
	}
}

func TestNestedClickablePruned(t *testing.T) {
	inner := withAX(elem("button", 21, textNode("Pay now")), "button", "")
	inner = withBox(inner, 12, 12, 96, 26, 5)
	outer := withAX(elem("button", 20, inner), "button", "")
	outer = withBox(outer, 10, 10, 100, 30, 4)

	ids := remap.New()
	res := Run(&capture.Tree{Root: elem("body", 1, outer)}, ids, Config{})

	btn := res.Body.Children[0]
	if got, want := btn.Tag, "button"; got != want {
		t.Fatalf("child tag = %q, want %q", got, want)
	}
	if len(btn.Children) != 0 {
		t.Fatalf("nested button survived: %+v", btn.Children[0])
	}
	// Hoisted label text lands on the outer button.
	if got, want := btn.Text, "Pay now"; got != want {
		t.Errorf("outer text = %q, want %q", got, want)
	}
}

func TestNestedClickableDistinctLabelSurvives(t *testing.T) {
	inner := withAX(elem("button", 21), "button", "Close")
	inner = withBox(inner, 12, 12, 96, 26, 5)
	outer := withAX(elem("button", 20, inner), "button", "Open cart")
	outer = withBox(outer, 10, 10, 100, 30, 4)

	res := Run(&capture.Tree{Root: elem("body", 1, outer)}, remap.New(), Config{})

	btn := res.Body.Children[0]
	if got, want := len(btn.Children), 1; got != want {
		t.Fatalf("outer children = %d, want %d", got, want)
	}
	if got, want := btn.Children[0].Attrs["aria-label"], "Close"; got != want {
		t.Errorf("inner aria-label = %q, want %q", got, want)
	}
}

func TestBucketedStates(t *testing.T) {
	box := withAX(elem("input", 20), "checkbox", "")
	box.AX.Checked = true
	box = withAttr(box, "type", "checkbox")

	res := Run(&capture.Tree{Root: elem("body", 1, box)}, remap.New(), Config{BucketStates: true})

	in := res.Body.Children[0]
	if len(in.States) != 0 {
		t.Errorf("inline states present in bucket mode: %v", in.States)
	}
	got := res.States["checked"]
	if len(got) != 1 || got[0] != in.ID {
		t.Errorf("bucket checked = %v, want [%d]", got, in.ID)
	}
}

func TestInlineStatesDefault(t *testing.T) {
	box := withAX(elem("input", 20), "checkbox", "")
	box.AX.Checked = true
	box.AX.Disabled = true

	res := Run(&capture.Tree{Root: elem("body", 1, box)}, remap.New(), Config{})

	in := res.Body.Children[0]
	if got, want := len(in.States), 2; got != want {
		t.Fatalf("inline states = %v, want 2 entries", in.States)
	}
	if in.States[0] != "disabled" || in.States[1] != "checked" {
		t.Errorf("states = %v, want [disabled checked]", in.States)
	}
	if res.States != nil {
		t.Errorf("bucket populated in inline mode: %v", res.States)
	}
}

func TestCompactionNeverIncreases(t *testing.T) {
	deep := withAX(elem("a", 30), "link", "docs")
	deep = withAttr(deep, "href", "/docs")
	tree := elem("body", 1,
		elem("div", 10, elem("div", 11, elem("div", 12, deep))),
		elem("script", 13, textNode("x")),
		elem("div", 14),
	)

	res := Run(&capture.Tree{Root: tree}, remap.New(), Config{})

	if res.Metrics.SerializedNodes > res.Metrics.TotalNodes {
		t.Fatalf("serialized %d > total %d", res.Metrics.SerializedNodes, res.Metrics.TotalNodes)
	}
	if res.Metrics.SerializedNodes >= res.Metrics.TotalNodes {
		t.Errorf("structural wrappers not pruned: serialized %d, total %d",
			res.Metrics.SerializedNodes, res.Metrics.TotalNodes)
	}
	if res.Metrics.CompactionScore <= 0 || res.Metrics.CompactionScore > 1 {
		t.Errorf("compaction score = %v, want in (0,1]", res.Metrics.CompactionScore)
	}
}
