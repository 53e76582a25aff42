package model

import (
	"fmt"

	"github.com/roach88/formwalk/internal/ir"
)

// Snapshot returns a detached copy of every answer.
func (m *Model) Snapshot() *ir.InstanceData {
	return &ir.InstanceData{
		FormID:      m.def.ID,
		FormVersion: m.def.Version,
		InstanceID:  m.instanceID,
		Nodes:       dataNodes(m.root),
	}
}

func dataNodes(el *element) []ir.DataNode {
	var out []ir.DataNode
	for _, s := range el.slots {
		switch s.node.Type {
		case ir.NodeQuestion:
			text := ""
			if s.single.value != nil {
				text = s.single.value.String()
			}
			out = append(out, ir.DataNode{Name: s.node.Name, Text: text})
		case ir.NodeGroup:
			out = append(out, ir.DataNode{Name: s.node.Name, Children: dataNodes(s.single)})
		case ir.NodeRepeat:
			for _, inst := range s.instances {
				out = append(out, ir.DataNode{Name: s.node.Name, Children: dataNodes(inst)})
			}
		}
	}
	return out
}

// Import replaces every answer with data. Nodes unknown to the form are
// ignored; questions missing from data are left empty.
func (m *Model) Import(data *ir.InstanceData) error {
	if data.FormID != "" && data.FormID != m.def.ID {
		return fmt.Errorf("instance is for form %q, not %q", data.FormID, m.def.ID)
	}
	root := &element{}
	if err := importSlots(root, m.def.Body, data.Nodes); err != nil {
		return err
	}
	m.root = root
	if data.InstanceID != "" {
		m.instanceID = data.InstanceID
	}
	return m.recalculate()
}

func importSlots(el *element, defs []*ir.Node, nodes []ir.DataNode) error {
	for _, def := range defs {
		s := &slot{node: def}
		var matching []ir.DataNode
		for _, n := range nodes {
			if n.Name == def.Name {
				matching = append(matching, n)
			}
		}
		switch def.Type {
		case ir.NodeQuestion:
			q := &element{node: def}
			if len(matching) > 0 {
				v, err := ir.ParseValue(def.Kind, matching[0].Text)
				if err != nil {
					return fmt.Errorf("import %s: %w", def.Name, err)
				}
				q.value = v
			}
			s.single = q
		case ir.NodeGroup:
			group := &element{node: def}
			var children []ir.DataNode
			if len(matching) > 0 {
				children = matching[0].Children
			}
			if err := importSlots(group, def.Children, children); err != nil {
				return err
			}
			s.single = group
		case ir.NodeRepeat:
			for _, n := range matching {
				inst := &element{node: def}
				if err := importSlots(inst, def.Children, n.Children); err != nil {
					return err
				}
				s.instances = append(s.instances, inst)
			}
		}
		el.slots = append(el.slots, s)
	}
	return nil
}
