// Package action resolves agent-supplied sequential identifiers back to
// live page elements and drives protocol input commands against them.
// Every action targets a stable backend id, never a derived selector: a
// selector can match a different element after any mutation, a backend id
// cannot.
package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/domsnap/dom"
	"github.com/hazyhaar/domsnap/internal/capture"
	"github.com/hazyhaar/domsnap/internal/protocol"
	"github.com/hazyhaar/domsnap/internal/snapshot"
)

// NodeNotFoundError reports an action referencing a sequential id absent
// from the current snapshot.
type NodeNotFoundError struct {
	SequentialID int
}

func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("action: node %d not found in current snapshot", e.SequentialID)
}

// NotVisibleError reports an action target with no usable geometry.
type NotVisibleError struct {
	SequentialID int
}

func (e *NotVisibleError) Error() string {
	return fmt.Sprintf("action: node %d is not visible", e.SequentialID)
}

// NotActionableError reports a target whose kind cannot receive the
// requested action, for example vector-graphics elements without a box
// model.
type NotActionableError struct {
	SequentialID int
	Reason       string
}

func (e *NotActionableError) Error() string {
	return fmt.Sprintf("action: node %d is not actionable: %s", e.SequentialID, e.Reason)
}

// Request is one agent action.
type Request struct {
	Type dom.ActionType
	// NodeID is the sequential id from the compacted tree. Unused for
	// page-level keypresses.
	NodeID int
	// Text is the payload for type actions.
	Text string
	// Key names the key for keypress actions ("Enter", "Tab", "Escape").
	Key string
}

// Executor drives protocol commands against one page. Strictly sequential
// per session: the owning session serializes calls, the executor assumes
// one pending action at a time.
type Executor struct {
	insp   protocol.Inspector
	logger *slog.Logger
}

// New creates an Executor over one protocol session.
func New(insp protocol.Inspector, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{insp: insp, logger: logger}
}

// Execute runs one action against the snapshot's page. The snapshot is
// invalidated unconditionally before returning, on success and failure
// both, so the caller's next read re-observes fresh structure. Failures
// come back as a structured result, never as a panic or a session fault.
func (e *Executor) Execute(ctx context.Context, snap *snapshot.Snapshot, req Request) *dom.ActionResult {
	start := time.Now()
	defer snap.Invalidate()

	res := &dom.ActionResult{
		ActionType: req.Type,
		NodeID:     req.NodeID,
		Timestamp:  start.UnixMilli(),
	}

	before, infoErr := e.insp.Info(ctx)

	// Change flags report what the page was observed to do, never what
	// the action was expected to do. Mutations are counted even when the
	// dispatch itself fails partway.
	watch := e.insp.WatchMutations(ctx)
	err := e.dispatch(ctx, snap, req, res)
	res.Changes.DOMMutations = watch() > 0
	res.Duration = time.Since(start).Milliseconds()

	if err != nil {
		res.Error = err.Error()
		e.logger.Warn("action: execution failed",
			"type", req.Type, "node", req.NodeID, "err", err)
		return res
	}
	res.Success = true

	if infoErr == nil {
		if after, err := e.insp.Info(ctx); err == nil && after.URL != before.URL {
			res.Changes.NavigationOccurred = true
		}
	}

	e.logger.Debug("action: executed",
		"type", req.Type, "node", req.NodeID, "duration_ms", res.Duration)
	return res
}

func (e *Executor) dispatch(ctx context.Context, snap *snapshot.Snapshot, req Request, res *dom.ActionResult) error {
	switch req.Type {
	case dom.ActionClick:
		return e.click(ctx, snap, req.NodeID)
	case dom.ActionInput:
		if err := e.insertText(ctx, snap, req.NodeID, req.Text); err != nil {
			return err
		}
		// Focus and insert both succeeded: the protocol delivered the
		// text into the resolved control.
		res.Changes.ValueChanged = true
		return nil
	case dom.ActionKeypress:
		return e.keypress(ctx, snap, req)
	case dom.ActionScroll:
		moved, err := e.scroll(ctx, snap, req.NodeID)
		if err != nil {
			return err
		}
		res.Changes.ScrollChanged = moved
		return nil
	case dom.ActionFocus:
		node, err := e.resolve(snap, req.NodeID)
		if err != nil {
			return err
		}
		return e.insp.Focus(ctx, node.BackendID)
	default:
		return fmt.Errorf("action: unsupported type %q", req.Type)
	}
}

// resolve maps a sequential id through the snapshot's identity table to a
// capture node.
func (e *Executor) resolve(snap *snapshot.Snapshot, seq int) (*capture.Node, error) {
	node := snap.NodeBySequentialID(seq)
	if node == nil {
		return nil, &NodeNotFoundError{SequentialID: seq}
	}
	return node, nil
}

// target resolves a node and its click point: content quads when the
// protocol provides them, bounding-box center as fallback.
func (e *Executor) target(ctx context.Context, snap *snapshot.Snapshot, seq int) (*capture.Node, float64, float64, error) {
	node, err := e.resolve(snap, seq)
	if err != nil {
		return nil, 0, 0, err
	}

	if quads, err := e.insp.ContentQuads(ctx, node.BackendID); err == nil && len(quads) > 0 {
		x, y := quads[0].CenterOf()
		return node, x, y, nil
	}

	// Quads fail for elements without a standard box model. The layout
	// box is the last resort before declaring the node unreachable.
	if node.Geom != nil && !node.Geom.Box.Empty() {
		b := node.Geom.Box
		return node, b.X + b.W/2, b.Y + b.H/2, nil
	}
	return nil, 0, 0, &NotVisibleError{SequentialID: seq}
}

func (e *Executor) click(ctx context.Context, snap *snapshot.Snapshot, seq int) error {
	node, err := e.resolve(snap, seq)
	if err != nil {
		return err
	}
	if node.Kind != capture.KindElement {
		return &NotActionableError{SequentialID: seq, Reason: "not an element"}
	}

	// Best effort: off-screen targets still get a click at their quad
	// coordinates if scrolling fails.
	if err := e.insp.ScrollIntoView(ctx, node.BackendID); err != nil {
		e.logger.Debug("action: scroll into view failed", "node", seq, "err", err)
	}

	_, x, y, err := e.target(ctx, snap, seq)
	if err != nil {
		return err
	}

	press := protocol.MouseEvent{Type: protocol.MousePressed, X: x, Y: y, Button: "left", ClickCount: 1}
	if err := e.insp.DispatchMouse(ctx, press); err != nil {
		return fmt.Errorf("action: press: %w", err)
	}
	release := protocol.MouseEvent{Type: protocol.MouseReleased, X: x, Y: y, Button: "left", ClickCount: 1}
	if err := e.insp.DispatchMouse(ctx, release); err != nil {
		return fmt.Errorf("action: release: %w", err)
	}
	return nil
}

func (e *Executor) insertText(ctx context.Context, snap *snapshot.Snapshot, seq int, text string) error {
	node, err := e.resolve(snap, seq)
	if err != nil {
		return err
	}
	if err := e.insp.Focus(ctx, node.BackendID); err != nil {
		return fmt.Errorf("action: focus: %w", err)
	}
	if err := e.insp.InsertText(ctx, text); err != nil {
		return fmt.Errorf("action: insert text: %w", err)
	}
	return nil
}

// virtualKeyCodes covers the keys agents send for form and menu control.
var virtualKeyCodes = map[string]int{
	"Enter":      13,
	"Tab":        9,
	"Escape":     27,
	"Backspace":  8,
	"Delete":     46,
	"ArrowUp":    38,
	"ArrowDown":  40,
	"ArrowLeft":  37,
	"ArrowRight": 39,
	"PageUp":     33,
	"PageDown":   34,
	"Home":       36,
	"End":        35,
	" ":          32,
}

func (e *Executor) keypress(ctx context.Context, snap *snapshot.Snapshot, req Request) error {
	// A node id focuses the target first; without one the key goes to
	// whatever currently holds focus.
	if req.NodeID != 0 {
		node, err := e.resolve(snap, req.NodeID)
		if err != nil {
			return err
		}
		if err := e.insp.Focus(ctx, node.BackendID); err != nil {
			return fmt.Errorf("action: focus: %w", err)
		}
	}

	code := virtualKeyCodes[req.Key]
	down := protocol.KeyEvent{
		Type:                  protocol.KeyDown,
		Key:                   req.Key,
		WindowsVirtualKeyCode: code,
	}
	if len(req.Key) == 1 {
		down.Text = req.Key
	}
	if err := e.insp.DispatchKey(ctx, down); err != nil {
		return fmt.Errorf("action: key down: %w", err)
	}
	up := down
	up.Type = protocol.KeyUp
	up.Text = ""
	if err := e.insp.DispatchKey(ctx, up); err != nil {
		return fmt.Errorf("action: key up: %w", err)
	}
	return nil
}

// scroll brings the node into the viewport and reports whether its quad
// position actually moved. Position is only comparable when the protocol
// serves quads on both sides of the scroll.
func (e *Executor) scroll(ctx context.Context, snap *snapshot.Snapshot, seq int) (bool, error) {
	node, err := e.resolve(snap, seq)
	if err != nil {
		return false, err
	}

	beforeX, beforeY, haveBefore := e.quadPoint(ctx, node.BackendID)
	if err := e.insp.ScrollIntoView(ctx, node.BackendID); err != nil {
		return false, fmt.Errorf("action: scroll into view: %w", err)
	}
	afterX, afterY, haveAfter := e.quadPoint(ctx, node.BackendID)

	moved := haveBefore && haveAfter && (beforeX != afterX || beforeY != afterY)
	return moved, nil
}

func (e *Executor) quadPoint(ctx context.Context, id protocol.BackendID) (float64, float64, bool) {
	quads, err := e.insp.ContentQuads(ctx, id)
	if err != nil || len(quads) == 0 {
		return 0, 0, false
	}
	x, y := quads[0].CenterOf()
	return x, y, true
}

// IsActionError reports whether an error belongs to the per-action
// taxonomy, as opposed to a session-level protocol fault.
func IsActionError(err error) bool {
	var nf *NodeNotFoundError
	var nv *NotVisibleError
	var na *NotActionableError
	return errors.As(err, &nf) || errors.As(err, &nv) || errors.As(err, &na)
}
