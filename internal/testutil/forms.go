package testutil

import "github.com/roach88/formwalk/internal/ir"

// Question builds a question node.
func Question(name string, kind ir.QuestionKind) *ir.Node {
	return &ir.Node{Name: name, Type: ir.NodeQuestion, Kind: kind, Label: name}
}

// Group builds a group node.
func Group(name string, fieldList bool, children ...*ir.Node) *ir.Node {
	return &ir.Node{Name: name, Type: ir.NodeGroup, FieldList: fieldList, Label: name, Children: children}
}

// Repeat builds a repeat node.
func Repeat(name string, max int, children ...*ir.Node) *ir.Node {
	return &ir.Node{Name: name, Type: ir.NodeRepeat, MaxRepeats: max, Label: name, Children: children}
}

// LinearForm is three top-level questions:
//
//	a  text
//	b  integer, constraint this > 0
//	c  text
func LinearForm() *ir.FormDef {
	b := Question("b", ir.KindInteger)
	b.Constraint = "this > 0"
	b.ConstraintMessage = "must be positive"
	return &ir.FormDef{ID: "linear", Version: "1", Body: []*ir.Node{
		Question("a", ir.KindText),
		b,
		Question("c", ir.KindText),
	}}
}

// HouseholdForm exercises groups, field-lists, repeats and relevance:
//
//	name        text, required
//	age         integer, 0 <= age < 130
//	consent     select_one yes/no
//	contact     field-list group, relevant when consent == "yes"
//	  phone     text
//	  email     text
//	intro       group (ordinary)
//	  note_hh   note
//	members     repeat, max 3
//	  mname     text
//	  mage      integer, relevant when mname != null
//	member_cnt  integer, calculate len(members)
func HouseholdForm() *ir.FormDef {
	name := Question("name", ir.KindText)
	name.Required = true

	age := Question("age", ir.KindInteger)
	age.Constraint = "this >= 0 && this < 130"
	age.ConstraintMessage = "age out of range"

	consent := Question("consent", ir.KindSelectOne)
	consent.Choices = []ir.Choice{{Value: "yes", Label: "Yes"}, {Value: "no", Label: "No"}}

	contact := Group("contact", true, Question("phone", ir.KindText), Question("email", ir.KindText))
	contact.Relevant = `consent == "yes"`

	note := Question("note_hh", ir.KindNote)
	note.Label = "Household of ${name}"

	mage := Question("mage", ir.KindInteger)
	mage.Relevant = "mname != null"

	count := Question("member_cnt", ir.KindInteger)
	count.Calculate = "len(members)"

	return &ir.FormDef{ID: "household", Version: "2", Title: "Household", Body: []*ir.Node{
		name,
		age,
		consent,
		contact,
		Group("intro", false, note),
		Repeat("members", 3, Question("mname", ir.KindText), mage),
		count,
	}}
}

// FieldListForm is one field-list screen whose members depend on x:
//
//	screen      field-list group
//	  x         integer
//	  y         integer, calculate x * 2
//	  z         text, relevant when x > 5
//	  town      select_one from external list "towns"
//	after       text
func FieldListForm() *ir.FormDef {
	y := Question("y", ir.KindInteger)
	y.Calculate = "x * 2"
	y.Label = "Double is ${y}"

	z := Question("z", ir.KindText)
	z.Relevant = "x > 5"

	town := Question("town", ir.KindSelectOne)
	town.ChoiceList = "towns"

	return &ir.FormDef{ID: "fieldlist", Version: "1", Body: []*ir.Node{
		Group("screen", true, Question("x", ir.KindInteger), y, z, town),
		Question("after", ir.KindText),
	}}
}

// StaticChoices is a ChoiceSource backed by a map.
type StaticChoices map[string][]ir.Choice

// Choices implements model.ChoiceSource.
func (s StaticChoices) Choices(list string) ([]ir.Choice, error) {
	return s[list], nil
}
