// Package model implements the live form model: the instance tree of answers
// for one form definition, plus the evaluation of relevance, calculation,
// constraint and choice-filter bindings.
//
// A Model is mutated in place and has no internal locking. It must be
// confined to a single owner goroutine; hand it over, never share it.
package model

import (
	"errors"
	"fmt"

	"github.com/roach88/formwalk/internal/expr"
	"github.com/roach88/formwalk/internal/ir"
)

// maxCalcPasses bounds the fixpoint iteration of calculated values. The
// bound grows with the number of calculated questions.
const maxCalcPasses = 8

// ErrCalculationDiverges is wrapped in the FormDesignError returned when
// calculated values keep changing after the last allowed pass.
var ErrCalculationDiverges = errors.New("calculated values do not converge")

// ChoiceSource serves external choice lists for dynamic selects.
type ChoiceSource interface {
	Choices(list string) ([]ir.Choice, error)
}

// Option configures a Model.
type Option func(*Model)

// WithChoiceSource sets the provider of external choice lists.
func WithChoiceSource(src ChoiceSource) Option {
	return func(m *Model) { m.choices = src }
}

// WithInstanceID sets the instance identifier written to snapshots.
func WithInstanceID(id string) Option {
	return func(m *Model) { m.instanceID = id }
}

// Model is the live form model.
type Model struct {
	def        *ir.FormDef
	eval       *expr.Evaluator
	root       *element
	nodes      map[string]*ir.Node
	choices    ChoiceSource
	instanceID string
}

// element is a live node. Questions hold a value, containers hold slots.
type element struct {
	node  *ir.Node // nil for the root
	value ir.Value
	slots []*slot
}

// slot holds the live children for one child definition. Repeats hold any
// number of instances, every other node exactly one element.
type slot struct {
	node      *ir.Node
	single    *element
	instances []*element
}

// New builds a blank instance of def with defaults applied and calculations
// evaluated.
func New(def *ir.FormDef, opts ...Option) (*Model, error) {
	m := &Model{
		def:   def,
		eval:  expr.New(),
		nodes: make(map[string]*ir.Node),
	}
	for _, opt := range opts {
		opt(m)
	}
	indexNodes(def.Body, m.nodes)

	root, err := newContainer(nil, def.Body)
	if err != nil {
		return nil, err
	}
	m.root = root
	if err := m.recalculate(); err != nil {
		return nil, err
	}
	return m, nil
}

func indexNodes(nodes []*ir.Node, into map[string]*ir.Node) {
	for _, n := range nodes {
		into[n.Name] = n
		indexNodes(n.Children, into)
	}
}

func newContainer(node *ir.Node, children []*ir.Node) (*element, error) {
	el := &element{node: node}
	for _, child := range children {
		s := &slot{node: child}
		switch child.Type {
		case ir.NodeRepeat:
			// repeats start empty; the user is prompted for the first instance
		case ir.NodeGroup:
			group, err := newContainer(child, child.Children)
			if err != nil {
				return nil, err
			}
			s.single = group
		case ir.NodeQuestion:
			q := &element{node: child}
			if child.Default != "" {
				v, err := ir.ParseValue(child.Kind, child.Default)
				if err != nil {
					return nil, fmt.Errorf("default for %s: %w", child.Name, err)
				}
				q.value = v
			}
			s.single = q
		default:
			return nil, fmt.Errorf("node %s: unknown type %s", child.Name, child.Type)
		}
		el.slots = append(el.slots, s)
	}
	return el, nil
}

func (el *element) slotFor(name string) *slot {
	for _, s := range el.slots {
		if s.node.Name == name {
			return s
		}
	}
	return nil
}

func (el *element) isContainer() bool {
	return el.node == nil || el.node.IsContainer()
}

// Def returns the form definition.
func (m *Model) Def() *ir.FormDef { return m.def }

// InstanceID returns the identifier written to snapshots.
func (m *Model) InstanceID() string { return m.instanceID }

// SetInstanceID replaces the instance identifier.
func (m *Model) SetInstanceID(id string) { m.instanceID = id }

// target is a resolved FormIndex.
type target struct {
	el     *element // nil at prompt positions
	slot   *slot
	parent *element
	prompt bool // the position after the last instance of a repeat
}

func (t target) node() *ir.Node { return t.slot.node }

// resolve walks idx through the live tree.
func (m *Model) resolve(idx ir.FormIndex) (target, bool) {
	steps := idx.Steps()
	if len(steps) == 0 {
		return target{}, false
	}
	cur := m.root
	var t target
	for i, st := range steps {
		s := cur.slotFor(st.Name)
		if s == nil {
			return target{}, false
		}
		t = target{slot: s, parent: cur}
		if s.node.Type == ir.NodeRepeat {
			switch {
			case st.Mult < 0 || st.Mult > len(s.instances):
				return target{}, false
			case st.Mult == len(s.instances):
				if i != len(steps)-1 {
					return target{}, false
				}
				t.prompt = true
				return t, true
			}
			t.el = s.instances[st.Mult]
		} else {
			if st.Mult != ir.NoMultiplicity {
				return target{}, false
			}
			t.el = s.single
		}
		if i < len(steps)-1 && !t.el.node.IsContainer() {
			return target{}, false
		}
		cur = t.el
	}
	return t, true
}

func (m *Model) mustResolve(idx ir.FormIndex) (target, error) {
	t, ok := m.resolve(idx)
	if !ok {
		return target{}, &ir.StaleIndexError{Index: idx}
	}
	return t, nil
}

// Exists reports whether idx addresses a live position. Beginning and end
// always exist.
func (m *Model) Exists(idx ir.FormIndex) bool {
	if idx.IsBeginning() || idx.IsEnd() {
		return true
	}
	_, ok := m.resolve(idx)
	return ok
}

// Node returns the definition addressed by idx.
func (m *Model) Node(idx ir.FormIndex) (*ir.Node, error) {
	t, err := m.mustResolve(idx)
	if err != nil {
		return nil, err
	}
	return t.node(), nil
}

func (m *Model) question(idx ir.FormIndex) (target, error) {
	t, err := m.mustResolve(idx)
	if err != nil {
		return target{}, err
	}
	if t.prompt || t.node().Type != ir.NodeQuestion {
		return target{}, fmt.Errorf("%q is not a question", idx)
	}
	return t, nil
}
