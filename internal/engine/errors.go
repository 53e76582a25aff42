package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/formwalk/internal/ir"
)

// Sentinel errors for calls made in the wrong session state.
var (
	ErrNotLoaded     = errors.New("engine: no form loaded")
	ErrAlreadyLoaded = errors.New("engine: form already loaded")
	ErrExited        = errors.New("engine: session exited")
)

// ErrorKind categorizes errors reported to the presentation layer.
type ErrorKind string

const (
	// ErrorFormDesign is a malformed binding or calculation. Navigation
	// continues past the faulted node.
	ErrorFormDesign ErrorKind = "FORM_DESIGN"

	// ErrorStaleIndex is a jump target that no longer resolves.
	ErrorStaleIndex ErrorKind = "STALE_INDEX"

	// ErrorNavigationLocked is a move before the current screen while
	// backward navigation is disabled.
	ErrorNavigationLocked ErrorKind = "NAVIGATION_LOCKED"

	// ErrorExternalData is returned data the session was not waiting for.
	ErrorExternalData ErrorKind = "EXTERNAL_DATA"

	// ErrorPersistence is a failed instance save.
	ErrorPersistence ErrorKind = "PERSISTENCE"
)

// SessionError is an error reported through Reporter.ReportError and
// returned to the caller.
type SessionError struct {
	Kind  ErrorKind
	Index ir.FormIndex
	Err   error
}

func (e *SessionError) Error() string {
	if e.Index.IsBeginning() {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s at %s: %v", e.Kind, e.Index, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// IsNavigationLocked reports whether err refused a move because backward
// navigation is disabled.
func IsNavigationLocked(err error) bool {
	var se *SessionError
	return errors.As(err, &se) && se.Kind == ErrorNavigationLocked
}
