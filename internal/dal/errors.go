package dal

import "fmt"

// InvariantError reports that a caller-supplied mutation would violate a
// model invariant. Per "User-visible
// behavior", setters that would produce an InvariantError are no-ops: the
// model is left unchanged and the invalid input is rejected.
type InvariantError struct {
	Op     string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("dal: invariant violation in %s: %s", e.Op, e.Reason)
}

// ErrNoCustomMode is returned by Controller.SetCustomMode when neither a
// "Direct" nor a "Custom" mode exists.
var ErrNoCustomMode = &InvariantError{Op: "SetCustomMode", Reason: `no mode named "Direct" or "Custom"`}
