// Package hierarchy builds the outline of a form instance used to jump
// directly to a question.
//
// Nodes live in one slice and refer to their parent by position, so the
// outline has no pointer cycles and can be copied or serialized freely.
package hierarchy

import (
	"github.com/roach88/formwalk/internal/ir"
)

// Kind classifies an outline node.
type Kind int

const (
	KindQuestion Kind = iota
	KindGroup
	KindRepeatHeader
	KindRepeatInstance
)

var kindNames = [...]string{
	KindQuestion:       "question",
	KindGroup:          "group",
	KindRepeatHeader:   "repeat",
	KindRepeatInstance: "instance",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// NoParent is the Parent of top-level nodes.
const NoParent = -1

// Node is one outline entry.
type Node struct {
	Kind   Kind
	Index  ir.FormIndex // jump target
	Label  string
	Answer string
	Parent int
	Depth  int
}

// Model is what the outline reads from the live form model.
type Model interface {
	Next(idx ir.FormIndex, descend bool) (ir.FormIndex, error)
	EventAt(idx ir.FormIndex) (ir.Event, error)
	Label(idx ir.FormIndex) string
	Answer(idx ir.FormIndex) (ir.Value, error)
}

// Arena is a form outline in document order.
type Arena struct {
	Nodes []Node
	// Current is the node for the screen the outline was built from, or
	// NoParent.
	Current int
}

// Build outlines every relevant node of m. Repeat instances are grouped
// under a header emitted with the first instance only.
func Build(m Model, screen ir.FormIndex) (*Arena, error) {
	a := &Arena{Current: NoParent}
	at := make(map[ir.FormIndex]int)
	headers := make(map[ir.FormIndex]int)

	for pos := ir.BeginningOfForm; ; {
		next, err := m.Next(pos, true)
		if err != nil {
			return nil, err
		}
		if next.IsEnd() {
			break
		}
		pos = next

		ev, err := m.EventAt(pos)
		if err != nil {
			return nil, err
		}
		parent := NoParent
		if p, ok := at[pos.Parent()]; ok {
			parent = p
		}

		var n Node
		switch ev {
		case ir.EventQuestion:
			n = Node{Kind: KindQuestion, Index: pos, Label: m.Label(pos), Parent: parent}
			if v, err := m.Answer(pos); err == nil && v != nil {
				n.Answer = v.String()
			}
		case ir.EventGroup:
			n = Node{Kind: KindGroup, Index: pos, Label: m.Label(pos), Parent: parent}
		case ir.EventRepeat:
			last, _ := pos.Last()
			first := pos.WithLastMultiplicity(0)
			if last.Mult == 0 {
				headers[first] = a.add(Node{Kind: KindRepeatHeader, Index: first, Label: m.Label(pos), Parent: parent})
			}
			if h, ok := headers[first]; ok {
				parent = h
			}
			n = Node{Kind: KindRepeatInstance, Index: pos, Label: m.Label(pos), Parent: parent}
		default:
			continue
		}
		i := a.add(n)
		at[pos] = i
		if pos == screen {
			a.Current = i
		}
	}
	return a, nil
}

func (a *Arena) add(n Node) int {
	if n.Parent != NoParent {
		n.Depth = a.Nodes[n.Parent].Depth + 1
	}
	a.Nodes = append(a.Nodes, n)
	return len(a.Nodes) - 1
}

// Children returns the positions of the direct children of node i, or of
// the top-level nodes for NoParent.
func (a *Arena) Children(i int) []int {
	var out []int
	for j, n := range a.Nodes {
		if n.Parent == i {
			out = append(out, j)
		}
	}
	return out
}

// Ancestors returns the chain from the top level down to node i's parent.
func (a *Arena) Ancestors(i int) []int {
	var out []int
	for p := a.Nodes[i].Parent; p != NoParent; p = a.Nodes[p].Parent {
		out = append([]int{p}, out...)
	}
	return out
}

// Find returns the node whose jump target is idx.
func (a *Arena) Find(idx ir.FormIndex) (int, bool) {
	for i, n := range a.Nodes {
		if n.Index == idx && n.Kind != KindRepeatHeader {
			return i, true
		}
	}
	return NoParent, false
}
