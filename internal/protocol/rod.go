package protocol

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// computedStyleSubset is the fixed set of computed styles requested from the
// layout snapshot, in request order. Layout entry styles are parallel to it.
var computedStyleSubset = []string{"display", "visibility", "opacity", "cursor", "overflow"}

// RodInspector implements Inspector against a live rod page.
type RodInspector struct {
	page    *rod.Page
	timeout time.Duration
}

// NewRodInspector wraps a page. timeout bounds every protocol query; zero
// means 8 seconds.
func NewRodInspector(page *rod.Page, timeout time.Duration) *RodInspector {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &RodInspector{page: page, timeout: timeout}
}

func (r *RodInspector) bound(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	return r.page.Context(ctx), cancel
}

// DocumentTree issues DOM.getDocument with full depth and pierce so frames
// and shadow roots are traversed in one query.
func (r *RodInspector) DocumentTree(ctx context.Context) (*DocNode, error) {
	page, cancel := r.bound(ctx)
	defer cancel()

	depth := -1
	res, err := proto.DOMGetDocument{Depth: &depth, Pierce: true}.Call(page)
	if err != nil {
		return nil, Classify(ctx, err)
	}
	return convertDocNode(res.Root), nil
}

func convertDocNode(n *proto.DOMNode) *DocNode {
	if n == nil {
		return nil
	}
	out := &DocNode{
		NodeID:    NodeID(n.NodeID),
		BackendID: BackendID(n.BackendNodeID),
		NodeType:  n.NodeType,
		Name:      n.NodeName,
		Value:     n.NodeValue,
		Attrs:     n.Attributes,
		FrameID:   string(n.FrameID),
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, convertDocNode(c))
	}
	for _, sr := range n.ShadowRoots {
		out.ShadowRoots = append(out.ShadowRoots, convertDocNode(sr))
	}
	out.ContentDocument = convertDocNode(n.ContentDocument)
	return out
}

// AccessibilityTree issues Accessibility.getFullAXTree. Best-effort: callers
// treat an error here as degraded, not fatal.
func (r *RodInspector) AccessibilityTree(ctx context.Context) ([]AXEntry, error) {
	page, cancel := r.bound(ctx)
	defer cancel()

	res, err := proto.AccessibilityGetFullAXTree{}.Call(page)
	if err != nil {
		return nil, Classify(ctx, err)
	}

	entries := make([]AXEntry, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		if n.BackendDOMNodeID == 0 {
			continue
		}
		e := AXEntry{
			BackendID:   BackendID(n.BackendDOMNodeID),
			Role:        axValueString(n.Role),
			Name:        axValueString(n.Name),
			Description: axValueString(n.Description),
			Value:       axValueString(n.Value),
			Ignored:     n.Ignored,
		}
		if len(n.Properties) > 0 {
			e.Properties = make(map[string]string, len(n.Properties))
			for _, p := range n.Properties {
				e.Properties[string(p.Name)] = axValueString(p.Value)
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func axValueString(v *proto.AccessibilityAXValue) string {
	if v == nil {
		return ""
	}
	val := v.Value.Val()
	if val == nil {
		return ""
	}
	return fmt.Sprint(val)
}

// Layout issues DOMSnapshot.captureSnapshot for geometry, paint order, and
// the computed-style subset. Best-effort like the AX query.
func (r *RodInspector) Layout(ctx context.Context) ([]LayoutEntry, error) {
	page, cancel := r.bound(ctx)
	defer cancel()

	res, err := proto.DOMSnapshotCaptureSnapshot{
		ComputedStyles:    computedStyleSubset,
		IncludePaintOrder: true,
		IncludeDOMRects:   true,
	}.Call(page)
	if err != nil {
		return nil, Classify(ctx, err)
	}

	str := func(i proto.DOMSnapshotStringIndex) string {
		if i < 0 || int(i) >= len(res.Strings) {
			return ""
		}
		return res.Strings[i]
	}

	var entries []LayoutEntry
	for _, doc := range res.Documents {
		if doc.Nodes == nil || doc.Layout == nil {
			continue
		}
		layout := doc.Layout
		for i, nodeIdx := range layout.NodeIndex {
			if nodeIdx < 0 || nodeIdx >= len(doc.Nodes.BackendNodeID) {
				continue
			}
			e := LayoutEntry{BackendID: BackendID(doc.Nodes.BackendNodeID[nodeIdx])}

			if i < len(layout.Bounds) && len(layout.Bounds[i]) == 4 {
				b := layout.Bounds[i]
				e.X, e.Y, e.W, e.H = b[0], b[1], b[2], b[3]
			}
			if i < len(layout.PaintOrders) {
				e.PaintOrder = layout.PaintOrders[i]
			}
			if i < len(layout.Styles) {
				styles := layout.Styles[i]
				e.Styles = make(map[string]string, len(computedStyleSubset))
				for j, name := range computedStyleSubset {
					if j < len(styles) {
						e.Styles[name] = str(styles[j])
					}
				}
			}
			if i < len(layout.ScrollRects) && len(layout.ScrollRects[i]) == 4 {
				e.ScrollW, e.ScrollH = layout.ScrollRects[i][2], layout.ScrollRects[i][3]
			}
			if i < len(layout.ClientRects) && len(layout.ClientRects[i]) == 4 {
				e.ClientW, e.ClientH = layout.ClientRects[i][2], layout.ClientRects[i][3]
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

// Info returns page URL, title, and viewport dimensions.
func (r *RodInspector) Info(ctx context.Context) (PageInfo, error) {
	page, cancel := r.bound(ctx)
	defer cancel()

	info, err := page.Info()
	if err != nil {
		return PageInfo{}, Classify(ctx, err)
	}
	pi := PageInfo{URL: info.URL, Title: info.Title}

	metrics, err := proto.PageGetLayoutMetrics{}.Call(page)
	if err == nil && metrics.CSSLayoutViewport != nil {
		pi.ViewportWidth = metrics.CSSLayoutViewport.ClientWidth
		pi.ViewportHeight = metrics.CSSLayoutViewport.ClientHeight
	}
	return pi, nil
}

// ContentQuads returns the node's visible content quads.
func (r *RodInspector) ContentQuads(ctx context.Context, id BackendID) ([]Quad, error) {
	page, cancel := r.bound(ctx)
	defer cancel()

	res, err := proto.DOMGetContentQuads{BackendNodeID: proto.DOMBackendNodeID(id)}.Call(page)
	if err != nil {
		return nil, Classify(ctx, err)
	}
	quads := make([]Quad, 0, len(res.Quads))
	for _, q := range res.Quads {
		if len(q) != 8 {
			continue
		}
		var out Quad
		copy(out[:], q)
		quads = append(quads, out)
	}
	return quads, nil
}

// ScrollIntoView scrolls the node into the viewport if needed.
func (r *RodInspector) ScrollIntoView(ctx context.Context, id BackendID) error {
	page, cancel := r.bound(ctx)
	defer cancel()
	err := proto.DOMScrollIntoViewIfNeeded{BackendNodeID: proto.DOMBackendNodeID(id)}.Call(page)
	return Classify(ctx, err)
}

// Focus moves input focus to the node.
func (r *RodInspector) Focus(ctx context.Context, id BackendID) error {
	page, cancel := r.bound(ctx)
	defer cancel()
	err := proto.DOMFocus{BackendNodeID: proto.DOMBackendNodeID(id)}.Call(page)
	return Classify(ctx, err)
}

// DispatchMouse dispatches one pointer event.
func (r *RodInspector) DispatchMouse(ctx context.Context, ev MouseEvent) error {
	page, cancel := r.bound(ctx)
	defer cancel()
	err := proto.InputDispatchMouseEvent{
		Type:       proto.InputDispatchMouseEventType(ev.Type),
		X:          ev.X,
		Y:          ev.Y,
		Button:     proto.InputMouseButton(ev.Button),
		ClickCount: ev.ClickCount,
	}.Call(page)
	return Classify(ctx, err)
}

// DispatchKey dispatches one keyboard event.
func (r *RodInspector) DispatchKey(ctx context.Context, ev KeyEvent) error {
	page, cancel := r.bound(ctx)
	defer cancel()
	err := proto.InputDispatchKeyEvent{
		Type:                  proto.InputDispatchKeyEventType(ev.Type),
		Key:                   ev.Key,
		Code:                  ev.Code,
		Text:                  ev.Text,
		WindowsVirtualKeyCode: ev.WindowsVirtualKeyCode,
	}.Call(page)
	return Classify(ctx, err)
}

// WatchMutations counts DOM mutation events in a single EachEvent
// subscription. The DOM domain must be enabled for events to flow; a
// failure there leaves the count at zero rather than failing the action.
func (r *RodInspector) WatchMutations(ctx context.Context) func() int {
	var count atomic.Int64
	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	_ = proto.DOMEnable{}.Call(r.page)

	go func() {
		defer close(done)
		r.page.Context(wctx).EachEvent(
			func(*proto.DOMChildNodeInserted) { count.Add(1) },
			func(*proto.DOMChildNodeRemoved) { count.Add(1) },
			func(*proto.DOMAttributeModified) { count.Add(1) },
			func(*proto.DOMAttributeRemoved) { count.Add(1) },
			func(*proto.DOMCharacterDataModified) { count.Add(1) },
			func(*proto.DOMDocumentUpdated) { count.Add(1) },
		)()
	}()

	return func() int {
		cancel()
		<-done
		return int(count.Load())
	}
}

// InsertText inserts text as if typed by an IME.
func (r *RodInspector) InsertText(ctx context.Context, text string) error {
	page, cancel := r.bound(ctx)
	defer cancel()
	err := proto.InputInsertText{Text: text}.Call(page)
	return Classify(ctx, err)
}
