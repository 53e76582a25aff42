package ir

import (
	"errors"
	"fmt"
)

// FormDesignError reports a malformed binding or expression. It is raised
// while stepping or recalculating, never by user input.
type FormDesignError struct {
	Index FormIndex
	Phase string // "relevant", "constraint", "calculate", "choice_filter", "label"
	Expr  string
	Err   error
}

func (e *FormDesignError) Error() string {
	return fmt.Sprintf("form design error at %q (%s %q): %v", e.Index, e.Phase, e.Expr, e.Err)
}

func (e *FormDesignError) Unwrap() error { return e.Err }

// IsFormDesignError reports whether err wraps a FormDesignError.
func IsFormDesignError(err error) bool {
	var fde *FormDesignError
	return errors.As(err, &fde)
}

// ConstraintKind classifies a failed user-input validation.
type ConstraintKind int

const (
	ConstraintViolated ConstraintKind = iota
	RequiredButEmpty
)

func (k ConstraintKind) String() string {
	if k == RequiredButEmpty {
		return "required_but_empty"
	}
	return "constraint_violated"
}

// MarshalText implements encoding.TextMarshaler.
func (k ConstraintKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// FailedConstraint reports an answer that did not pass validation. It blocks
// navigation but is never fatal.
type FailedConstraint struct {
	Index   FormIndex
	Kind    ConstraintKind
	Message string
}

func (e *FailedConstraint) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s at %q: %s", e.Kind, e.Index, e.Message)
	}
	return fmt.Sprintf("%s at %q", e.Kind, e.Index)
}

// AsFailedConstraint extracts a FailedConstraint from err.
func AsFailedConstraint(err error) (*FailedConstraint, bool) {
	var fc *FailedConstraint
	if errors.As(err, &fc) {
		return fc, true
	}
	return nil, false
}

// StaleIndexError reports a FormIndex that no longer resolves to a node.
type StaleIndexError struct {
	Index FormIndex
}

func (e *StaleIndexError) Error() string {
	return fmt.Sprintf("index %q no longer resolves", e.Index)
}

// IsStaleIndex reports whether err wraps a StaleIndexError.
func IsStaleIndex(err error) bool {
	var sie *StaleIndexError
	return errors.As(err, &sie)
}

// SavepointWriteError reports a failed background savepoint write.
type SavepointWriteError struct {
	Path string
	Err  error
}

func (e *SavepointWriteError) Error() string {
	return fmt.Sprintf("savepoint write %s: %v", e.Path, e.Err)
}

func (e *SavepointWriteError) Unwrap() error { return e.Err }
