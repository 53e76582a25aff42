package ir

// DataNode is one element of serialized instance data. Questions carry Text,
// groups and repeat instances carry Children. A repeat contributes one
// DataNode per instance, all sharing the repeat's name.
type DataNode struct {
	Name     string
	Text     string
	Children []DataNode
}

// InstanceData is a detached snapshot of every answer in a form instance.
// It shares no memory with the live form model, so it may be handed to
// another goroutine.
type InstanceData struct {
	FormID      string
	FormVersion string
	InstanceID  string
	Nodes       []DataNode
}

// Clone returns a deep copy.
func (d *InstanceData) Clone() *InstanceData {
	if d == nil {
		return nil
	}
	out := *d
	out.Nodes = cloneNodes(d.Nodes)
	return &out
}

func cloneNodes(nodes []DataNode) []DataNode {
	if nodes == nil {
		return nil
	}
	out := make([]DataNode, len(nodes))
	for i, n := range nodes {
		out[i] = DataNode{Name: n.Name, Text: n.Text, Children: cloneNodes(n.Children)}
	}
	return out
}

// Find returns the first top-level node with name, descending into groups.
// Repeat instance contents are not searched.
func (d *InstanceData) Find(path ...string) (DataNode, bool) {
	nodes := d.Nodes
	var found DataNode
	for _, name := range path {
		ok := false
		for _, n := range nodes {
			if n.Name == name {
				found, ok = n, true
				break
			}
		}
		if !ok {
			return DataNode{}, false
		}
		nodes = found.Children
	}
	return found, len(path) > 0
}
