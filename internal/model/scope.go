package model

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/roach88/formwalk/internal/expr"
	"github.com/roach88/formwalk/internal/ir"
)

// env is the evaluation context of one position: expression scope plus the
// typed values used for label interpolation.
type env struct {
	scope  expr.Scope
	values map[string]ir.Value
}

// envFor builds the context seen from pos. Every name in the form is bound;
// repeat names bind to the list of their instances and, inside a repeat
// instance, sibling names bind to that instance's values.
func (m *Model) envFor(pos ir.FormIndex) env {
	e := env{
		scope:  make(expr.Scope, len(m.nodes)+1),
		values: make(map[string]ir.Value),
	}
	for name, n := range m.nodes {
		if n.Type == ir.NodeRepeat {
			e.scope[name] = []any{}
		} else {
			e.scope[name] = nil
		}
	}
	e.fill(m.root)

	// overlay repeat instances on the path, outermost first
	cur := m.root
	for _, st := range pos.Steps() {
		if cur == nil || !cur.isContainer() {
			break
		}
		s := cur.slotFor(st.Name)
		if s == nil {
			break
		}
		if s.node.Type != ir.NodeRepeat {
			cur = s.single
			continue
		}
		if st.Mult < 0 || st.Mult >= len(s.instances) {
			break
		}
		cur = s.instances[st.Mult]
		e.fill(cur)
	}
	e.scope[expr.This] = nil
	return e
}

// fill binds the values below el, stopping at repeat boundaries.
func (e env) fill(el *element) {
	for _, s := range el.slots {
		switch s.node.Type {
		case ir.NodeQuestion:
			e.scope[s.node.Name] = toScope(s.single.value)
			e.values[s.node.Name] = s.single.value
		case ir.NodeGroup:
			e.fill(s.single)
		case ir.NodeRepeat:
			list := make([]any, len(s.instances))
			for i, inst := range s.instances {
				list[i] = instanceScope(inst)
			}
			e.scope[s.node.Name] = list
		}
	}
}

func instanceScope(el *element) map[string]any {
	out := make(map[string]any)
	var walk func(*element)
	walk = func(c *element) {
		for _, s := range c.slots {
			switch s.node.Type {
			case ir.NodeQuestion:
				out[s.node.Name] = toScope(s.single.value)
			case ir.NodeGroup:
				walk(s.single)
			case ir.NodeRepeat:
				list := make([]any, len(s.instances))
				for i, inst := range s.instances {
					list[i] = instanceScope(inst)
				}
				out[s.node.Name] = list
			}
		}
	}
	walk(el)
	return out
}

// toScope converts an answer into the Go value expressions see.
func toScope(v ir.Value) any {
	switch val := ir.Normalize(v).(type) {
	case nil:
		return nil
	case ir.Text:
		return string(val)
	case ir.Integer:
		return int64(val)
	case ir.Decimal:
		return val.Float()
	case ir.Date:
		return string(val)
	case ir.TimeOfDay:
		return string(val)
	case ir.DateTime:
		return string(val)
	case ir.GeoPoint:
		return map[string]any{"lat": val.Lat, "lon": val.Lon, "alt": val.Alt, "accuracy": val.Accuracy}
	case ir.Selection:
		return string(val)
	case ir.MultiSelection:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case ir.FileRef:
		return string(val)
	default:
		panic(fmt.Sprintf("toScope: unhandled value %T", v))
	}
}

// coerce converts an expression result into an answer for kind.
func coerce(kind ir.QuestionKind, out any) (ir.Value, error) {
	if out == nil {
		return nil, nil
	}
	switch kind {
	case ir.KindText, ir.KindNote:
		return ir.Text(scalarText(out)), nil
	case ir.KindInteger:
		switch n := out.(type) {
		case int64:
			return ir.Integer(n), nil
		case float64:
			if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
				return nil, fmt.Errorf("%v is not an integer", n)
			}
			return ir.Integer(int64(n)), nil
		}
	case ir.KindDecimal:
		switch n := out.(type) {
		case int64:
			return ir.NewDecimal(float64(n)), nil
		case float64:
			return ir.NewDecimal(n), nil
		}
	case ir.KindSelectMulti:
		if list, ok := out.([]any); ok {
			sel := make(ir.MultiSelection, 0, len(list))
			for _, item := range list {
				sel = append(sel, scalarText(item))
			}
			return ir.Normalize(sel), nil
		}
	case ir.KindDate, ir.KindTime, ir.KindDateTime, ir.KindGeoPoint, ir.KindSelectOne, ir.KindFile:
	default:
		panic(fmt.Sprintf("coerce: unhandled question kind %d", int(kind)))
	}
	if s, ok := out.(string); ok {
		return ir.ParseValue(kind, s)
	}
	return nil, fmt.Errorf("cannot use %T result as %s", out, kind)
}

func scalarText(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// predicate evaluates a boolean binding. Indeterminate results yield
// fallback; malformed expressions become FormDesignErrors.
func (m *Model) predicate(pos ir.FormIndex, phase, src string, scope expr.Scope, fallback bool) (bool, error) {
	ok, err := m.eval.Bool(src, scope)
	switch {
	case err == nil:
		return ok, nil
	case errors.Is(err, expr.ErrIndeterminate):
		return fallback, nil
	default:
		return false, &ir.FormDesignError{Index: pos, Phase: phase, Expr: src, Err: err}
	}
}
