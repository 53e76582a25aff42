// Package expr evaluates form binding expressions.
//
// Expressions are CUE expressions evaluated against a scope of answers:
// relevance and constraint expressions must produce a bool, calculations
// produce a scalar or a list of scalars. Unanswered values are null.
//
// An Evaluator wraps a cue.Context and is not safe for concurrent use. The
// form model that owns it is confined to one goroutine.
package expr

import (
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
)

// ErrIndeterminate is returned when evaluation fails only because a
// referenced value is still unanswered.
var ErrIndeterminate = errors.New("expression is indeterminate")

// SyntaxError reports an expression that does not parse.
type SyntaxError struct {
	Source string
	Err    error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("parse %q: %s", e.Source, formatCUEError(e.Err))
}

func (e *SyntaxError) Unwrap() error { return e.Err }

// EvalError reports an expression that fails with every referenced value
// present. It indicates a malformed form, not bad input.
type EvalError struct {
	Source string
	Err    error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %q: %s", e.Source, formatCUEError(e.Err))
}

func (e *EvalError) Unwrap() error { return e.Err }

// Scope maps identifiers to Go values: nil, bool, string, int64, float64,
// []any and map[string]any.
type Scope map[string]any

// Evaluator compiles and evaluates expressions.
type Evaluator struct {
	ctx   *cue.Context
	cache map[string]*Expr
}

// New creates an Evaluator with its own CUE context.
func New() *Evaluator {
	return &Evaluator{
		ctx:   cuecontext.New(),
		cache: make(map[string]*Expr),
	}
}

// Compile parses src, reusing earlier parses of the same source.
func (e *Evaluator) Compile(src string) (*Expr, error) {
	if x, ok := e.cache[src]; ok {
		return x, nil
	}
	x, err := Parse(src)
	if err != nil {
		return nil, err
	}
	e.cache[src] = x
	return x, nil
}

// Bool evaluates a predicate.
func (e *Evaluator) Bool(src string, scope Scope) (bool, error) {
	x, v, err := e.eval(src, scope)
	if err != nil {
		return false, err
	}
	b, err := v.Bool()
	if err != nil {
		return false, classify(x, scope, err)
	}
	return b, nil
}

// Value evaluates an expression to a Go value: nil, bool, string, int64,
// float64 or []any of those.
func (e *Evaluator) Value(src string, scope Scope) (any, error) {
	x, v, err := e.eval(src, scope)
	if err != nil {
		return nil, err
	}
	out, err := toGo(v)
	if err != nil {
		return nil, classify(x, scope, err)
	}
	return out, nil
}

func (e *Evaluator) eval(src string, scope Scope) (*Expr, cue.Value, error) {
	x, err := e.Compile(src)
	if err != nil {
		return nil, cue.Value{}, err
	}
	bound := make(map[string]any, len(x.refs))
	for _, r := range x.refs {
		val, ok := scope[r]
		if !ok {
			return x, cue.Value{}, &EvalError{Source: src, Err: fmt.Errorf("undefined reference %q", r)}
		}
		bound[r] = val
	}
	sv := e.ctx.Encode(bound)
	if err := sv.Err(); err != nil {
		return x, cue.Value{}, &EvalError{Source: src, Err: err}
	}
	v := e.ctx.CompileString(src, cue.Scope(sv), cue.InferBuiltins(true))
	if err := v.Err(); err != nil {
		return x, cue.Value{}, classify(x, scope, err)
	}
	return x, v, nil
}

// classify decides whether a failure is caused by missing answers.
func classify(x *Expr, scope Scope, err error) error {
	for _, r := range x.refs {
		if scope[r] == nil {
			return fmt.Errorf("%w: %q is unanswered", ErrIndeterminate, r)
		}
	}
	return &EvalError{Source: x.Source, Err: err}
}

func toGo(v cue.Value) (any, error) {
	switch v.Kind() {
	case cue.NullKind:
		return nil, nil
	case cue.BoolKind:
		return v.Bool()
	case cue.IntKind:
		return v.Int64()
	case cue.FloatKind:
		return v.Float64()
	case cue.StringKind:
		return v.String()
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, err
		}
		var out []any
		for iter.Next() {
			elem, err := toGo(iter.Value())
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case cue.BottomKind:
		if err := v.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("incomplete value")
	default:
		return nil, fmt.Errorf("unsupported result kind %s", v.Kind())
	}
}

// formatCUEError flattens a CUE error list into one line.
func formatCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	msg := errs[0].Error()
	if len(errs) > 1 {
		msg = fmt.Sprintf("%s (and %d more)", msg, len(errs)-1)
	}
	return msg
}
