package model

import (
	"strings"

	"github.com/roach88/formwalk/internal/expr"
	"github.com/roach88/formwalk/internal/ir"
)

// EventAt classifies the position idx.
func (m *Model) EventAt(idx ir.FormIndex) (ir.Event, error) {
	switch {
	case idx.IsBeginning():
		return ir.EventBeginningOfForm, nil
	case idx.IsEnd():
		return ir.EventEndOfForm, nil
	}
	t, err := m.mustResolve(idx)
	if err != nil {
		return 0, err
	}
	if t.prompt {
		if limit := t.node().MaxRepeats; limit > 0 && len(t.slot.instances) >= limit {
			return ir.EventRepeatJuncture, nil
		}
		return ir.EventPromptNewRepeat, nil
	}
	switch t.node().Type {
	case ir.NodeGroup:
		return ir.EventGroup, nil
	case ir.NodeRepeat:
		return ir.EventRepeat, nil
	default:
		return ir.EventQuestion, nil
	}
}

// childPositions lists every child position of a container in document
// order, relevant or not. Each repeat contributes its instances followed by
// the position after the last instance.
func childPositions(parent ir.FormIndex, el *element) []ir.FormIndex {
	var out []ir.FormIndex
	for _, s := range el.slots {
		if s.node.Type == ir.NodeRepeat {
			for k := range s.instances {
				out = append(out, parent.Child(s.node.Name, k))
			}
			out = append(out, parent.Child(s.node.Name, len(s.instances)))
			continue
		}
		out = append(out, parent.Child(s.node.Name, ir.NoMultiplicity))
	}
	return out
}

// container returns the element of a container position, or nil.
func (m *Model) container(idx ir.FormIndex) *element {
	if idx.IsBeginning() {
		return m.root
	}
	t, ok := m.resolve(idx)
	if !ok || t.prompt || !t.el.isContainer() {
		return nil
	}
	return t.el
}

// visible evaluates the relevance of one position, ignoring ancestors.
func (m *Model) visible(pos ir.FormIndex) (bool, error) {
	t, ok := m.resolve(pos)
	if !ok {
		return false, &ir.StaleIndexError{Index: pos}
	}
	n := t.node()
	if n.Relevant == "" {
		return true, nil
	}
	var e env
	if t.prompt {
		e = m.envFor(pos.Parent())
	} else {
		e = m.envFor(pos)
		if n.Type == ir.NodeQuestion {
			e.scope[expr.This] = toScope(t.el.value)
		}
	}
	return m.predicate(pos, "relevant", n.Relevant, e.scope, false)
}

// IsRelevant reports whether idx and all of its ancestors are relevant.
func (m *Model) IsRelevant(idx ir.FormIndex) (bool, error) {
	steps := idx.Steps()
	for d := 1; d <= len(steps); d++ {
		ok, err := m.visible(ir.NewIndex(steps[:d]...))
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// Next returns the next relevant position in document order. With descend
// false the children of idx are skipped. On a FormDesignError the returned
// index is the position whose binding failed.
func (m *Model) Next(idx ir.FormIndex, descend bool) (ir.FormIndex, error) {
	if idx.IsEnd() {
		return ir.EndOfForm, nil
	}
	if !m.Exists(idx) {
		return idx, &ir.StaleIndexError{Index: idx}
	}
	if descend || idx.IsBeginning() {
		if el := m.container(idx); el != nil {
			if pos, found, err := m.firstVisible(childPositions(idx, el), 0); err != nil || found {
				return pos, err
			}
		}
	}
	for cur := idx; !cur.IsBeginning(); cur = cur.Parent() {
		parent := cur.Parent()
		sibs := childPositions(parent, m.container(parent))
		i := indexOf(sibs, cur)
		if pos, found, err := m.firstVisible(sibs, i+1); err != nil || found {
			return pos, err
		}
	}
	return ir.EndOfForm, nil
}

func (m *Model) firstVisible(positions []ir.FormIndex, from int) (ir.FormIndex, bool, error) {
	for j := from; j < len(positions); j++ {
		ok, err := m.visible(positions[j])
		if err != nil {
			return positions[j], false, err
		}
		if ok {
			return positions[j], true, nil
		}
	}
	return ir.FormIndex{}, false, nil
}

// Prev returns the previous relevant position in document order: the last
// descendant of the previous sibling, or else the parent.
func (m *Model) Prev(idx ir.FormIndex) (ir.FormIndex, error) {
	if idx.IsBeginning() {
		return ir.BeginningOfForm, nil
	}
	if !m.Exists(idx) {
		return idx, &ir.StaleIndexError{Index: idx}
	}
	parent := ir.BeginningOfForm
	sibs := childPositions(parent, m.root)
	i := len(sibs)
	if !idx.IsEnd() {
		parent = idx.Parent()
		sibs = childPositions(parent, m.container(parent))
		i = indexOf(sibs, idx)
	}
	for j := i - 1; j >= 0; j-- {
		ok, err := m.visible(sibs[j])
		if err != nil {
			return sibs[j], err
		}
		if ok {
			return m.lastDescendant(sibs[j])
		}
	}
	return parent, nil
}

func (m *Model) lastDescendant(pos ir.FormIndex) (ir.FormIndex, error) {
	el := m.container(pos)
	if el == nil {
		return pos, nil
	}
	kids := childPositions(pos, el)
	for j := len(kids) - 1; j >= 0; j-- {
		ok, err := m.visible(kids[j])
		if err != nil {
			return kids[j], err
		}
		if ok {
			return m.lastDescendant(kids[j])
		}
	}
	return pos, nil
}

func indexOf(positions []ir.FormIndex, idx ir.FormIndex) int {
	for i, p := range positions {
		if p == idx {
			return i
		}
	}
	return -1
}

// IsFieldList reports whether idx is a group or repeat instance whose
// children are displayed on one screen.
func (m *Model) IsFieldList(idx ir.FormIndex) bool {
	t, ok := m.resolve(idx)
	return ok && !t.prompt && t.node().IsContainer() && t.node().FieldList
}

// FieldListRoot returns the outermost field-list container enclosing idx,
// idx itself included.
func (m *Model) FieldListRoot(idx ir.FormIndex) (ir.FormIndex, bool) {
	steps := idx.Steps()
	for d := 1; d <= len(steps); d++ {
		prefix := ir.NewIndex(steps[:d]...)
		if m.IsFieldList(prefix) {
			return prefix, true
		}
	}
	return ir.FormIndex{}, false
}

// ScreenQuestions lists the relevant questions displayed for a screen root:
// the question itself, or every relevant question below a container in
// document order.
func (m *Model) ScreenQuestions(root ir.FormIndex) ([]ir.FormIndex, error) {
	t, err := m.mustResolve(root)
	if err != nil {
		return nil, err
	}
	if t.prompt {
		return nil, nil
	}
	if t.node().Type == ir.NodeQuestion {
		return []ir.FormIndex{root}, nil
	}
	var out []ir.FormIndex
	err = m.collectQuestions(root, t.el, &out)
	return out, err
}

func (m *Model) collectQuestions(pos ir.FormIndex, el *element, out *[]ir.FormIndex) error {
	for _, child := range childPositions(pos, el) {
		ok, err := m.visible(child)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		t, _ := m.resolve(child)
		switch {
		case t.prompt:
		case t.node().Type == ir.NodeQuestion:
			*out = append(*out, child)
		default:
			if err := m.collectQuestions(child, t.el, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// Compare orders two indices in document order: beginning first, end last,
// ancestors before descendants.
func (m *Model) Compare(a, b ir.FormIndex) int {
	switch {
	case a == b:
		return 0
	case a.IsBeginning() || b.IsEnd():
		return -1
	case b.IsBeginning() || a.IsEnd():
		return 1
	}
	as, bs := a.Steps(), b.Steps()
	defs := m.def.Body
	for d := 0; d < len(as) && d < len(bs); d++ {
		if as[d] != bs[d] {
			if as[d].Name == bs[d].Name {
				return as[d].Mult - bs[d].Mult
			}
			return position(defs, as[d].Name) - position(defs, bs[d].Name)
		}
		p := position(defs, as[d].Name)
		if p == len(defs) {
			return strings.Compare(a.String(), b.String())
		}
		defs = defs[p].Children
	}
	return len(as) - len(bs)
}

func position(defs []*ir.Node, name string) int {
	for i, n := range defs {
		if n.Name == name {
			return i
		}
	}
	return len(defs)
}
