package action

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/domsnap/dom"
	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/geometry"
	"github.com/hazyhaar/domsnap/internal/pipeline"
	"github.com/hazyhaar/domsnap/internal/protocol"
	"github.com/hazyhaar/domsnap/internal/snapshot"
)

// fakeInspector records the protocol commands an action issues.
type fakeInspector struct {
	calls     []string
	quads     []protocol.Quad
	quadsSeq  [][]protocol.Quad // successive ContentQuads results; falls back to quads
	quadErr   error
	focusErr  error
	urls      []string // successive Info results
	mutations int      // count reported by the mutation watch
	mouse     []protocol.MouseEvent
	keys      []protocol.KeyEvent
	inserted  string
}

func (f *fakeInspector) DocumentTree(context.Context) (*protocol.DocNode, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeInspector) AccessibilityTree(context.Context) ([]protocol.AXEntry, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeInspector) Layout(context.Context) ([]protocol.LayoutEntry, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeInspector) Info(context.Context) (protocol.PageInfo, error) {
	url := "https://example.test"
	if len(f.urls) > 0 {
		url = f.urls[0]
		if len(f.urls) > 1 {
			f.urls = f.urls[1:]
		}
	}
	return protocol.PageInfo{URL: url}, nil
}

func (f *fakeInspector) ContentQuads(_ context.Context, id protocol.BackendID) ([]protocol.Quad, error) {
	f.calls = append(f.calls, "quads")
	if f.quadErr != nil {
		return nil, f.quadErr
	}
	if len(f.quadsSeq) > 0 {
		q := f.quadsSeq[0]
		f.quadsSeq = f.quadsSeq[1:]
		return q, nil
	}
	return f.quads, nil
}

func (f *fakeInspector) ScrollIntoView(_ context.Context, id protocol.BackendID) error {
	f.calls = append(f.calls, "scroll")
	return nil
}

func (f *fakeInspector) Focus(_ context.Context, id protocol.BackendID) error {
	f.calls = append(f.calls, "focus")
	return f.focusErr
}

func (f *fakeInspector) DispatchMouse(_ context.Context, ev protocol.MouseEvent) error {
	f.calls = append(f.calls, "mouse:"+string(ev.Type))
	f.mouse = append(f.mouse, ev)
	return nil
}

func (f *fakeInspector) DispatchKey(_ context.Context, ev protocol.KeyEvent) error {
	f.calls = append(f.calls, "key:"+string(ev.Type))
	f.keys = append(f.keys, ev)
	return nil
}

func (f *fakeInspector) InsertText(_ context.Context, text string) error {
	f.calls = append(f.calls, "insert")
	f.inserted = text
	return nil
}

func (f *fakeInspector) WatchMutations(context.Context) func() int {
	return func() int { return f.mutations }
}

var _ protocol.Inspector = (*fakeInspector)(nil)

// newSnap builds a snapshot whose compacted tree holds one button with
// sequential id 1.
func newSnap(t *testing.T, geom *capture.Geometry) *snapshot.Snapshot {
	t.Helper()
	button := &capture.Node{
		Kind:      capture.KindElement,
		Tag:       "button",
		BackendID: 42,
		AX:        &capture.AX{Role: "button", Name: "Go"},
		Tier:      capture.TierSemantic,
		Geom:      geom,
	}
	body := &capture.Node{
		Kind:      capture.KindElement,
		Tag:       "body",
		BackendID: 1,
		Children:  []*capture.Node{button},
	}
	snap := snapshot.New(&capture.Tree{Root: body}, nil)
	snap.Serialize(0, pipeline.Config{})
	return snap
}

func TestClickSequence(t *testing.T) {
	insp := &fakeInspector{quads: []protocol.Quad{{10, 10, 30, 10, 30, 20, 10, 20}}}
	snap := newSnap(t, nil)

	res := New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionClick, NodeID: 1})

	if !res.Success {
		t.Fatalf("click failed: %s", res.Error)
	}
	want := []string{"scroll", "quads", "mouse:mousePressed", "mouse:mouseReleased"}
	if got := strings.Join(insp.calls, ","); got != strings.Join(want, ",") {
		t.Errorf("calls = %v, want %v", insp.calls, want)
	}
	// Quad centroid.
	if insp.mouse[0].X != 20 || insp.mouse[0].Y != 15 {
		t.Errorf("click point = (%v,%v), want (20,15)", insp.mouse[0].X, insp.mouse[0].Y)
	}
	if snap.Valid() {
		t.Error("snapshot not invalidated after action")
	}
}

func TestClickFallsBackToBoxCenter(t *testing.T) {
	insp := &fakeInspector{quadErr: errors.New("no quads")}
	snap := newSnap(t, &capture.Geometry{Box: geometry.Rect{X: 100, Y: 200, W: 40, H: 20}, Opacity: 1})

	res := New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionClick, NodeID: 1})

	if !res.Success {
		t.Fatalf("click failed: %s", res.Error)
	}
	if insp.mouse[0].X != 120 || insp.mouse[0].Y != 210 {
		t.Errorf("click point = (%v,%v), want (120,210)", insp.mouse[0].X, insp.mouse[0].Y)
	}
}

func TestClickNotVisible(t *testing.T) {
	insp := &fakeInspector{quadErr: errors.New("no quads")}
	snap := newSnap(t, nil)

	res := New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionClick, NodeID: 1})

	if res.Success {
		t.Fatal("click on invisible node succeeded")
	}
	if !strings.Contains(res.Error, "not visible") {
		t.Errorf("error = %q, want not-visible", res.Error)
	}
	if snap.Valid() {
		t.Error("snapshot not invalidated after failed action")
	}
}

func TestNodeNotFound(t *testing.T) {
	insp := &fakeInspector{}
	snap := newSnap(t, nil)

	res := New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionClick, NodeID: 99})

	if res.Success {
		t.Fatal("click on unknown id succeeded")
	}
	if !strings.Contains(res.Error, "not found") {
		t.Errorf("error = %q, want not-found", res.Error)
	}
}

func TestTypeAction(t *testing.T) {
	insp := &fakeInspector{}
	snap := newSnap(t, nil)

	res := New(insp, nil).Execute(context.Background(), snap,
		Request{Type: dom.ActionInput, NodeID: 1, Text: "hello"})

	if !res.Success {
		t.Fatalf("type failed: %s", res.Error)
	}
	if insp.inserted != "hello" {
		t.Errorf("inserted = %q, want %q", insp.inserted, "hello")
	}
	if !res.Changes.ValueChanged {
		t.Error("ValueChanged not set")
	}
}

func TestKeypressEnter(t *testing.T) {
	insp := &fakeInspector{}
	snap := newSnap(t, nil)

	res := New(insp, nil).Execute(context.Background(), snap,
		Request{Type: dom.ActionKeypress, NodeID: 1, Key: "Enter"})

	if !res.Success {
		t.Fatalf("keypress failed: %s", res.Error)
	}
	if len(insp.keys) != 2 {
		t.Fatalf("key events = %d, want 2", len(insp.keys))
	}
	down, up := insp.keys[0], insp.keys[1]
	if down.Type != protocol.KeyDown || up.Type != protocol.KeyUp {
		t.Errorf("event types = %s,%s", down.Type, up.Type)
	}
	if down.WindowsVirtualKeyCode != 13 {
		t.Errorf("virtual key code = %d, want 13", down.WindowsVirtualKeyCode)
	}
}

func TestClickReportsOnlyObservedMutations(t *testing.T) {
	quads := []protocol.Quad{{10, 10, 30, 10, 30, 20, 10, 20}}

	// A click the page ignored reports no DOM change.
	insp := &fakeInspector{quads: quads}
	snap := newSnap(t, nil)
	res := New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionClick, NodeID: 1})
	if !res.Success {
		t.Fatalf("click failed: %s", res.Error)
	}
	if res.Changes.DOMMutations {
		t.Error("DOMMutations set with zero observed mutations")
	}

	// The same click with mutation events flowing reports the change.
	insp = &fakeInspector{quads: quads, mutations: 3}
	snap = newSnap(t, nil)
	res = New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionClick, NodeID: 1})
	if !res.Changes.DOMMutations {
		t.Error("observed mutations not reported")
	}
}

func TestScrollReportsObservedMovement(t *testing.T) {
	still := []protocol.Quad{{0, 500, 10, 500, 10, 510, 0, 510}}
	moved := []protocol.Quad{{0, 100, 10, 100, 10, 110, 0, 110}}

	insp := &fakeInspector{quadsSeq: [][]protocol.Quad{still, moved}}
	snap := newSnap(t, nil)
	res := New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionScroll, NodeID: 1})
	if !res.Success {
		t.Fatalf("scroll failed: %s", res.Error)
	}
	if !res.Changes.ScrollChanged {
		t.Error("quad movement not reported as scroll change")
	}

	// Already in view: position identical on both sides, no change flag.
	insp = &fakeInspector{quadsSeq: [][]protocol.Quad{still, still}}
	snap = newSnap(t, nil)
	res = New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionScroll, NodeID: 1})
	if !res.Success {
		t.Fatalf("scroll failed: %s", res.Error)
	}
	if res.Changes.ScrollChanged {
		t.Error("ScrollChanged set though the node never moved")
	}
}

func TestNavigationDetected(t *testing.T) {
	insp := &fakeInspector{
		quads: []protocol.Quad{{0, 0, 10, 0, 10, 10, 0, 10}},
		urls:  []string{"https://a.test", "https://b.test"},
	}
	snap := newSnap(t, nil)

	res := New(insp, nil).Execute(context.Background(), snap, Request{Type: dom.ActionClick, NodeID: 1})

	if !res.Success {
		t.Fatalf("click failed: %s", res.Error)
	}
	if !res.Changes.NavigationOccurred {
		t.Error("navigation not detected")
	}
}

func TestIsActionError(t *testing.T) {
	if !IsActionError(&NodeNotFoundError{SequentialID: 3}) {
		t.Error("NodeNotFoundError not recognised")
	}
	if IsActionError(errors.New("plain")) {
		t.Error("plain error recognised as action error")
	}
}
