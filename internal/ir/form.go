package ir

import "fmt"

// FormDef is a compiled form definition.
type FormDef struct {
	ID      string  `json:"id"`
	Version string  `json:"version"`
	Title   string  `json:"title"`
	Body    []*Node `json:"body"`
}

// NodeType distinguishes questions from the two container kinds.
type NodeType int

const (
	NodeQuestion NodeType = iota
	NodeGroup
	NodeRepeat
)

func (t NodeType) String() string {
	switch t {
	case NodeQuestion:
		return "question"
	case NodeGroup:
		return "group"
	case NodeRepeat:
		return "repeat"
	default:
		return fmt.Sprintf("node_type(%d)", int(t))
	}
}

// Node is one element of the form tree.
type Node struct {
	Name              string       `json:"name"`
	Type              NodeType     `json:"type"`
	Kind              QuestionKind `json:"kind,omitempty"` // questions only
	Label             string       `json:"label,omitempty"`
	Hint              string       `json:"hint,omitempty"`
	Required          bool         `json:"required,omitempty"`
	ReadOnly          bool         `json:"readonly,omitempty"`
	Relevant          string       `json:"relevant,omitempty"`
	Constraint        string       `json:"constraint,omitempty"`
	ConstraintMessage string       `json:"constraint_message,omitempty"`
	Calculate         string       `json:"calculate,omitempty"`
	Default           string       `json:"default,omitempty"`
	FieldList         bool         `json:"field_list,omitempty"` // groups and repeats
	Choices           []Choice     `json:"choices,omitempty"`
	ChoiceFilter      string       `json:"choice_filter,omitempty"`
	ChoiceList        string       `json:"choice_list,omitempty"` // external list name
	MaxRepeats        int          `json:"max_repeats,omitempty"` // 0 means unbounded
	Children          []*Node      `json:"children,omitempty"`
}

// IsContainer reports whether the node holds children.
func (n *Node) IsContainer() bool {
	return n.Type == NodeGroup || n.Type == NodeRepeat
}

// IsReadOnly reports whether answers to the node are never saved from input.
// Notes and calculated questions are implicitly read-only.
func (n *Node) IsReadOnly() bool {
	return n.ReadOnly || n.Kind == KindNote || n.Calculate != ""
}

// Choice is one option of a select question.
type Choice struct {
	Value string            `json:"value"`
	Label string            `json:"label"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// QuestionKind is the closed set of question payload kinds.
type QuestionKind int

const (
	KindText QuestionKind = iota
	KindInteger
	KindDecimal
	KindDate
	KindTime
	KindDateTime
	KindGeoPoint
	KindSelectOne
	KindSelectMulti
	KindFile
	KindNote
)

var kindNames = [...]string{
	KindText:        "text",
	KindInteger:     "integer",
	KindDecimal:     "decimal",
	KindDate:        "date",
	KindTime:        "time",
	KindDateTime:    "datetime",
	KindGeoPoint:    "geopoint",
	KindSelectOne:   "select_one",
	KindSelectMulti: "select_multiple",
	KindFile:        "file",
	KindNote:        "note",
}

func (k QuestionKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k QuestionKind) Valid() bool {
	return k >= 0 && int(k) < len(kindNames)
}

// IsSelect reports whether the kind takes its answers from a choice list.
func (k QuestionKind) IsSelect() bool {
	return k == KindSelectOne || k == KindSelectMulti
}

// ParseQuestionKind maps a type name used in form definitions to a kind.
func ParseQuestionKind(s string) (QuestionKind, bool) {
	for i, name := range kindNames {
		if name == s {
			return QuestionKind(i), true
		}
	}
	return 0, false
}

// QuestionKinds returns every kind in declaration order.
func QuestionKinds() []QuestionKind {
	kinds := make([]QuestionKind, len(kindNames))
	for i := range kindNames {
		kinds[i] = QuestionKind(i)
	}
	return kinds
}
