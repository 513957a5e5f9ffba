package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrSessionConflict is returned when another inspector is already attached
// to the target. Not retried: the user must resolve the conflict.
var ErrSessionConflict = errors.New("protocol: another inspector is attached to the target")

// ErrTargetDetached is returned when the session is lost mid-operation.
// All subsequent calls fail fast until a fresh session is attached.
var ErrTargetDetached = errors.New("protocol: target detached")

// ErrAcquireTimeout is returned when a protocol query exceeds its budget.
// The capture attempt is fatal but the session is not poisoned; callers may
// retry acquisition.
var ErrAcquireTimeout = errors.New("protocol: acquisition timed out")

// FrameDeniedError is returned when cross-origin frame policy blocks a
// subtree. Carries the offending frame so it can be reported.
type FrameDeniedError struct {
	FrameID string
	Cause   error
}

func (e *FrameDeniedError) Error() string {
	return fmt.Sprintf("protocol: frame access denied (frame %s): %v", e.FrameID, e.Cause)
}

func (e *FrameDeniedError) Unwrap() error { return e.Cause }

// Classify maps a raw protocol error onto the capture taxonomy. Timeouts
// come from the context budget; detach and frame denial are recognised from
// the protocol's error strings, which is the only signal the wire gives.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrAcquireTimeout, err)
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "detached") || strings.Contains(msg, "session closed") ||
		strings.Contains(msg, "target closed"):
		return fmt.Errorf("%w: %v", ErrTargetDetached, err)
	case strings.Contains(msg, "another") && strings.Contains(msg, "attached"):
		return fmt.Errorf("%w: %v", ErrSessionConflict, err)
	case strings.Contains(msg, "frame") && (strings.Contains(msg, "denied") ||
		strings.Contains(msg, "not allowed") || strings.Contains(msg, "cross-origin")):
		return &FrameDeniedError{Cause: err}
	}
	return err
}
