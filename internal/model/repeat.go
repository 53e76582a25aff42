package model

import (
	"fmt"

	"github.com/roach88/formwalk/internal/ir"
)

// RepeatCount returns the number of instances of the repeat addressed by
// idx (an instance or the position after the last instance).
func (m *Model) RepeatCount(idx ir.FormIndex) (int, error) {
	t, err := m.mustResolve(idx)
	if err != nil {
		return 0, err
	}
	if t.node().Type != ir.NodeRepeat {
		return 0, fmt.Errorf("%q is not a repeat", idx)
	}
	return len(t.slot.instances), nil
}

// CanAddRepeat reports whether a new instance may be created at idx.
func (m *Model) CanAddRepeat(idx ir.FormIndex) bool {
	ev, err := m.EventAt(idx)
	return err == nil && ev == ir.EventPromptNewRepeat
}

// AddRepeat creates a repeat instance at a new-repeat position and returns
// its index.
func (m *Model) AddRepeat(idx ir.FormIndex) (ir.FormIndex, error) {
	t, err := m.mustResolve(idx)
	if err != nil {
		return idx, err
	}
	if !t.prompt {
		return idx, fmt.Errorf("%q is not a new-repeat position", idx)
	}
	n := t.node()
	if n.MaxRepeats > 0 && len(t.slot.instances) >= n.MaxRepeats {
		return idx, fmt.Errorf("repeat %s is limited to %d instances", n.Name, n.MaxRepeats)
	}
	inst, err := newContainer(n, n.Children)
	if err != nil {
		return idx, err
	}
	t.slot.instances = append(t.slot.instances, inst)
	return idx, m.recalculate()
}

// RemoveRepeat deletes the repeat instance at idx. Later instances shift
// down by one, so indices into them become stale.
func (m *Model) RemoveRepeat(idx ir.FormIndex) error {
	t, err := m.mustResolve(idx)
	if err != nil {
		return err
	}
	if t.prompt || t.node().Type != ir.NodeRepeat {
		return fmt.Errorf("%q is not a repeat instance", idx)
	}
	last, _ := idx.Last()
	t.slot.instances = append(t.slot.instances[:last.Mult], t.slot.instances[last.Mult+1:]...)
	return m.recalculate()
}
