package domsnap

import (
	"github.com/hazyhaar/domsnap/internal/action"
	"github.com/hazyhaar/domsnap/internal/protocol"
)

// Session-level protocol conditions. Capture attempts failing with one of
// these are fatal to that attempt but never poison the session.
var (
	// ErrSessionConflict: another inspector is attached to the target.
	ErrSessionConflict = protocol.ErrSessionConflict
	// ErrTargetDetached: the protocol session was lost mid-operation.
	ErrTargetDetached = protocol.ErrTargetDetached
	// ErrAcquireTimeout: a protocol query exceeded its budget.
	ErrAcquireTimeout = protocol.ErrAcquireTimeout
)

// FrameDeniedError reports a subtree blocked by cross-origin frame policy.
type FrameDeniedError = protocol.FrameDeniedError

// Per-action failures. Reported in the action result, never thrown at the
// session.
type (
	NodeNotFoundError  = action.NodeNotFoundError
	NotVisibleError    = action.NotVisibleError
	NotActionableError = action.NotActionableError
)

// IsActionError reports whether an error belongs to the per-action
// taxonomy.
func IsActionError(err error) bool {
	return action.IsActionError(err)
}
