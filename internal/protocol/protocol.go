// Package protocol defines the contract between domsnap's capture core and
// the browser inspection protocol. The core consumes these interfaces only;
// the rod-backed implementation lives in rod.go. Tests substitute fakes.
package protocol

import "context"

// NodeID is the ephemeral protocol node identifier. Valid only within the
// capture that produced it.
type NodeID int64

// BackendID is the stable node identifier, valid for the lifetime of one
// inspector session. All action targeting uses BackendID, never a selector:
// a selector can match a different live element after any DOM mutation.
type BackendID int64

// DocNode is one node of the raw document tree, frame and shadow piercing
// included. Attrs is the flat name/value pair list the protocol emits.
type DocNode struct {
	NodeID          NodeID
	BackendID       BackendID
	NodeType        int // 1 element, 3 text, 8 comment, 9 document, 11 fragment
	Name            string
	Value           string
	Attrs           []string
	Children        []*DocNode
	ShadowRoots     []*DocNode
	ContentDocument *DocNode
	FrameID         string
}

// AXEntry is one accessibility-tree projection keyed to a document node.
type AXEntry struct {
	BackendID   BackendID
	Role        string
	Name        string
	Description string
	Value       string
	Ignored     bool
	// Properties carries the raw AX property bag (disabled, checked,
	// expanded, required, level, ...) as strings.
	Properties map[string]string
}

// LayoutEntry carries per-node geometry from the layout snapshot.
type LayoutEntry struct {
	BackendID  BackendID
	X, Y, W, H float64
	PaintOrder int
	// Styles holds the requested computed-style subset
	// (display, visibility, opacity, cursor, overflow).
	Styles  map[string]string
	ScrollW float64
	ScrollH float64
	ClientW float64
	ClientH float64
}

// Quad is a content quad: four corner points, clockwise from top-left.
type Quad [8]float64

// CenterOf returns the quad's centroid.
func (q Quad) CenterOf() (x, y float64) {
	for i := 0; i < 8; i += 2 {
		x += q[i]
		y += q[i+1]
	}
	return x / 4, y / 4
}

// MouseEventType mirrors the protocol's dispatchMouseEvent types.
type MouseEventType string

const (
	MousePressed  MouseEventType = "mousePressed"
	MouseReleased MouseEventType = "mouseReleased"
	MouseMoved    MouseEventType = "mouseMoved"
)

// MouseEvent is one pointer command.
type MouseEvent struct {
	Type       MouseEventType
	X, Y       float64
	Button     string // "left", "right", "middle"
	ClickCount int
}

// KeyEventType mirrors the protocol's dispatchKeyEvent types.
type KeyEventType string

const (
	KeyDown KeyEventType = "keyDown"
	KeyUp   KeyEventType = "keyUp"
)

// KeyEvent is one keyboard command.
type KeyEvent struct {
	Type KeyEventType
	Key  string
	Code string
	Text string
	// WindowsVirtualKeyCode drives default key handling (Enter, Tab, ...).
	WindowsVirtualKeyCode int
}

// PageInfo describes the page a capture came from.
type PageInfo struct {
	URL            string
	Title          string
	ViewportWidth  int
	ViewportHeight int
}

// Inspector is the full inbound protocol surface the core consumes.
//
// DocumentTree failing fails the capture; AccessibilityTree and Layout are
// best-effort and may fail independently (restricted pages) without failing
// the capture.
type Inspector interface {
	DocumentTree(ctx context.Context) (*DocNode, error)
	AccessibilityTree(ctx context.Context) ([]AXEntry, error)
	Layout(ctx context.Context) ([]LayoutEntry, error)
	Info(ctx context.Context) (PageInfo, error)

	ContentQuads(ctx context.Context, id BackendID) ([]Quad, error)
	ScrollIntoView(ctx context.Context, id BackendID) error
	Focus(ctx context.Context, id BackendID) error
	DispatchMouse(ctx context.Context, ev MouseEvent) error
	DispatchKey(ctx context.Context, ev KeyEvent) error
	InsertText(ctx context.Context, text string) error

	// WatchMutations subscribes to the page's DOM mutation events. The
	// returned stop function ends the subscription and reports how many
	// mutations fired while it was live.
	WatchMutations(ctx context.Context) (stop func() int)
}
