package model

import (
	"errors"
	"fmt"

	"github.com/roach88/formwalk/internal/expr"
	"github.com/roach88/formwalk/internal/ir"
)

// Default messages for failed validation.
const (
	MsgRequired         = "Sorry, this response is required!"
	MsgConstraintFailed = "Sorry, this response is invalid."
)

// Answer returns the current value of a question.
func (m *Model) Answer(idx ir.FormIndex) (ir.Value, error) {
	t, err := m.question(idx)
	if err != nil {
		return nil, err
	}
	return t.el.value, nil
}

// SetAnswer stores v and recomputes calculated values. It does not check
// constraints; see Check.
func (m *Model) SetAnswer(idx ir.FormIndex, v ir.Value) error {
	t, err := m.question(idx)
	if err != nil {
		return err
	}
	if err := ir.CheckKind(t.node().Kind, v); err != nil {
		return fmt.Errorf("answer %q: %w", idx, err)
	}
	t.el.value = ir.Normalize(v)
	return m.recalculate()
}

// Check validates v as a candidate answer for idx without storing it.
// It returns a FailedConstraint for invalid input and an error only for
// malformed bindings.
func (m *Model) Check(idx ir.FormIndex, v ir.Value) (*ir.FailedConstraint, error) {
	t, err := m.question(idx)
	if err != nil {
		return nil, err
	}
	n := t.node()
	if ir.IsEmpty(v) {
		if n.Required {
			return &ir.FailedConstraint{Index: idx, Kind: ir.RequiredButEmpty, Message: MsgRequired}, nil
		}
		return nil, nil
	}
	if n.Constraint == "" {
		return nil, nil
	}
	e := m.envFor(idx)
	e.scope[n.Name] = toScope(v)
	e.scope[expr.This] = toScope(v)
	ok, err := m.predicate(idx, "constraint", n.Constraint, e.scope, false)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	msg := n.ConstraintMessage
	if msg == "" {
		msg = MsgConstraintFailed
	}
	return &ir.FailedConstraint{Index: idx, Kind: ir.ConstraintViolated, Message: msg}, nil
}

// IsReadOnly reports whether idx is a question whose answer is never saved
// from input.
func (m *Model) IsReadOnly(idx ir.FormIndex) bool {
	t, err := m.question(idx)
	return err == nil && t.node().IsReadOnly()
}

// Prompt returns the displayable view of a question.
func (m *Model) Prompt(idx ir.FormIndex) (ir.Prompt, error) {
	t, err := m.question(idx)
	if err != nil {
		return ir.Prompt{}, err
	}
	n := t.node()
	e := m.envFor(idx)
	p := ir.Prompt{
		Index:    idx,
		Name:     n.Name,
		Kind:     n.Kind,
		Label:    interpolate(n.Label, e),
		Hint:     interpolate(n.Hint, e),
		Answer:   t.el.value,
		Required: n.Required,
		ReadOnly: n.IsReadOnly(),
		Dynamic:  n.ChoiceList != "",
	}
	if n.Kind.IsSelect() {
		if p.Choices, err = m.choicesFor(idx, n, e); err != nil {
			return ir.Prompt{}, err
		}
	}
	return p, nil
}

// Prompts returns prompts for several questions.
func (m *Model) Prompts(indices []ir.FormIndex) ([]ir.Prompt, error) {
	out := make([]ir.Prompt, 0, len(indices))
	for _, idx := range indices {
		p, err := m.Prompt(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Label returns the interpolated label of any node.
func (m *Model) Label(idx ir.FormIndex) string {
	t, ok := m.resolve(idx)
	if !ok {
		return ""
	}
	return interpolate(t.node().Label, m.envFor(idx))
}

func interpolate(label string, e env) string {
	return expr.Interpolate(label, func(name string) string {
		if v := e.values[name]; v != nil {
			return v.String()
		}
		return ""
	})
}

func (m *Model) choicesFor(idx ir.FormIndex, n *ir.Node, e env) ([]ir.Choice, error) {
	choices := n.Choices
	if n.ChoiceList != "" {
		if m.choices == nil {
			return nil, fmt.Errorf("question %s: no source for choice list %q", n.Name, n.ChoiceList)
		}
		ext, err := m.choices.Choices(n.ChoiceList)
		if err != nil {
			return nil, fmt.Errorf("question %s: choice list %q: %w", n.Name, n.ChoiceList, err)
		}
		choices = ext
	}
	if n.ChoiceFilter == "" {
		return choices, nil
	}
	var out []ir.Choice
	for _, c := range choices {
		cv := map[string]any{"value": c.Value, "label": c.Label}
		for k, v := range c.Attrs {
			cv[k] = v
		}
		e.scope["choice"] = cv
		ok, err := m.predicate(idx, "choice_filter", n.ChoiceFilter, e.scope, false)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// Validate checks every relevant, editable question in document order and
// returns the first failure.
func (m *Model) Validate() (*ir.FailedConstraint, error) {
	idx := ir.BeginningOfForm
	for {
		next, err := m.Next(idx, true)
		if err != nil {
			return nil, err
		}
		if next.IsEnd() {
			return nil, nil
		}
		idx = next
		t, _ := m.resolve(idx)
		if t.prompt || t.node().Type != ir.NodeQuestion || t.node().IsReadOnly() {
			continue
		}
		fc, err := m.Check(idx, t.el.value)
		if err != nil || fc != nil {
			return fc, err
		}
	}
}

// recalculate evaluates calculated questions in document order until
// nothing changes.
func (m *Model) recalculate() error {
	var (
		limit   = maxCalcPasses
		lastPos ir.FormIndex
		lastSrc string
	)
	for pass := 0; pass < limit; pass++ {
		changed := false
		calculated := 0
		err := m.walk(ir.BeginningOfForm, m.root, func(pos ir.FormIndex, el *element) error {
			n := el.node
			if n.Type != ir.NodeQuestion || n.Calculate == "" {
				return nil
			}
			calculated++
			e := m.envFor(pos)
			e.scope[expr.This] = toScope(el.value)
			out, err := m.eval.Value(n.Calculate, e.scope)
			var v ir.Value
			switch {
			case errors.Is(err, expr.ErrIndeterminate):
			case err != nil:
				return &ir.FormDesignError{Index: pos, Phase: "calculate", Expr: n.Calculate, Err: err}
			default:
				if v, err = coerce(n.Kind, out); err != nil {
					return &ir.FormDesignError{Index: pos, Phase: "calculate", Expr: n.Calculate, Err: err}
				}
			}
			if !ir.ValuesEqual(v, el.value) {
				el.value = ir.Normalize(v)
				changed = true
				lastPos, lastSrc = pos, n.Calculate
			}
			return nil
		})
		if err != nil || !changed {
			return err
		}
		// an acyclic chain settles within one pass per calculated question
		limit = max(limit, calculated+1)
	}
	return &ir.FormDesignError{Index: lastPos, Phase: "calculate", Expr: lastSrc, Err: ErrCalculationDiverges}
}

// walk visits every live element below el in document order.
func (m *Model) walk(pos ir.FormIndex, el *element, fn func(ir.FormIndex, *element) error) error {
	for _, s := range el.slots {
		if s.node.Type == ir.NodeRepeat {
			for k, inst := range s.instances {
				child := pos.Child(s.node.Name, k)
				if err := fn(child, inst); err != nil {
					return err
				}
				if err := m.walk(child, inst, fn); err != nil {
					return err
				}
			}
			continue
		}
		child := pos.Child(s.node.Name, ir.NoMultiplicity)
		if err := fn(child, s.single); err != nil {
			return err
		}
		if s.node.IsContainer() {
			if err := m.walk(child, s.single, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
