package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formwalk/internal/ir"
)

func q(name string, kind ir.QuestionKind) *ir.Node {
	return &ir.Node{Name: name, Type: ir.NodeQuestion, Kind: kind}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name string
		body []*ir.Node
		code string
	}{
		{"invalid identifier", []*ir.Node{q("2x", ir.KindText)}, ErrInvalidName},
		{"reserved name", []*ir.Node{q("len", ir.KindText)}, ErrInvalidName},
		{"choice is reserved", []*ir.Node{q("choice", ir.KindText)}, ErrInvalidName},
		{"duplicate", []*ir.Node{q("a", ir.KindText), {Name: "g", Type: ir.NodeGroup, Children: []*ir.Node{q("a", ir.KindInteger)}}}, ErrDuplicateName},
		{"select without choices", []*ir.Node{q("s", ir.KindSelectOne)}, ErrSelectNoChoices},
		{"syntax", []*ir.Node{{Name: "a", Type: ir.NodeQuestion, Kind: ir.KindInteger, Constraint: "this >"}}, ErrExpressionSyntax},
		{"unknown ref", []*ir.Node{{Name: "a", Type: ir.NodeQuestion, Kind: ir.KindInteger, Relevant: "ghost > 1"}}, ErrUnknownReference},
		{"unknown label ref", []*ir.Node{{Name: "a", Type: ir.NodeQuestion, Kind: ir.KindText, Label: "Hi ${ghost}"}}, ErrUnknownReference},
		{"repeat in field-list", []*ir.Node{{Name: "g", Type: ir.NodeGroup, FieldList: true, Children: []*ir.Node{
			{Name: "r", Type: ir.NodeRepeat, Children: []*ir.Node{q("x", ir.KindText)}},
		}}}, ErrRepeatInFieldList},
		{"choices on text", []*ir.Node{{Name: "a", Type: ir.NodeQuestion, Kind: ir.KindText, Choices: []ir.Choice{{Value: "x"}}}}, ErrChoicesOnNonSelect},
		{"empty group", []*ir.Node{{Name: "g", Type: ir.NodeGroup}}, ErrEmptyContainer},
		{"max on question", []*ir.Node{{Name: "a", Type: ir.NodeQuestion, Kind: ir.KindText, MaxRepeats: 2}}, ErrInvalidMaxRepeats},
		{"bad default", []*ir.Node{{Name: "a", Type: ir.NodeQuestion, Kind: ir.KindInteger, Default: "x"}}, ErrInvalidDefault},
		{"calculate on group", []*ir.Node{{Name: "g", Type: ir.NodeGroup, Calculate: "1", Children: []*ir.Node{q("x", ir.KindText)}}}, ErrBindingOnContainer},
		{"duplicate choice", []*ir.Node{{Name: "s", Type: ir.NodeQuestion, Kind: ir.KindSelectOne, Choices: []ir.Choice{{Value: "a"}, {Value: "a"}}}}, ErrDuplicateChoice},
		{"filter without choices", []*ir.Node{{Name: "s", Type: ir.NodeQuestion, Kind: ir.KindSelectOne, ChoiceList: "towns", ChoiceFilter: "true"}}, ErrChoiceFilterNoInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&ir.FormDef{ID: "f", Body: tt.body})
			require.NotEmpty(t, errs)
			assert.Contains(t, codes(errs), tt.code)
		})
	}
}

func TestValidateAcceptsReferences(t *testing.T) {
	def := &ir.FormDef{ID: "f", Body: []*ir.Node{
		q("region", ir.KindText),
		{Name: "town", Type: ir.NodeQuestion, Kind: ir.KindSelectOne,
			Choices:      []ir.Choice{{Value: "a", Attrs: map[string]string{"region": "n"}}},
			ChoiceFilter: `choice.region == region`},
		{Name: "members", Type: ir.NodeRepeat, Children: []*ir.Node{
			{Name: "age", Type: ir.NodeQuestion, Kind: ir.KindInteger, Constraint: "this >= 0"},
		}},
		{Name: "count", Type: ir.NodeQuestion, Kind: ir.KindInteger, Calculate: "len(members)", Label: "${count} members"},
	}}
	assert.Empty(t, Validate(def))
}

func TestValidateCollectsAll(t *testing.T) {
	errs := Validate(&ir.FormDef{Body: []*ir.Node{q("a", ir.KindText), q("a", ir.KindSelectOne)}})
	assert.Equal(t, []string{ErrFormIDEmpty, ErrDuplicateName, ErrSelectNoChoices}, codes(errs))
	assert.Contains(t, errs[1].Error(), "[E202]")
}
