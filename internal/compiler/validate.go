package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/formwalk/internal/expr"
	"github.com/roach88/formwalk/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrFormIDEmpty         = "E200" // form id is required
	ErrInvalidName         = "E201" // node name is not a usable identifier
	ErrDuplicateName       = "E202" // node names must be unique in the form
	ErrSelectNoChoices     = "E203" // select needs choices or a choice_list
	ErrExpressionSyntax    = "E204" // binding expression does not parse
	ErrUnknownReference    = "E205" // expression or label references an unknown name
	ErrRepeatInFieldList   = "E206" // repeats cannot be nested in field-lists
	ErrChoicesOnNonSelect  = "E207" // choices given for a non-select question
	ErrEmptyContainer      = "E208" // group or repeat without children
	ErrInvalidMaxRepeats   = "E209" // max on a non-repeat, or negative
	ErrInvalidDefault      = "E210" // default does not parse for the question kind
	ErrBindingOnContainer  = "E211" // question-only binding set on a container
	ErrDuplicateChoice     = "E212" // choice values must be unique per question
	ErrChoiceFilterNoInput = "E213" // choice_filter without a choice list
	ErrCalculateCycle      = "E214" // calculate expressions depend on each other
)

// ChoiceVar is the identifier bound to the candidate choice inside a
// choice_filter expression.
const ChoiceVar = "choice"

var identRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidationError represents a form validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled form. Returns all errors found (does not
// fail-fast).
func Validate(def *ir.FormDef) []ValidationError {
	v := &validator{names: map[string]string{}}
	if def.ID == "" {
		v.add("form.id", ErrFormIDEmpty, "form id is required")
	}

	// names first, so references can be checked in one pass
	v.collectNames(def.Body, "form")
	v.checkNodes(def.Body, "form", false)
	v.checkCalculateCycles(def)
	return v.errs
}

type validator struct {
	names map[string]string // name -> field path of first declaration
	errs  []ValidationError
}

func (v *validator) add(field, code, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) collectNames(nodes []*ir.Node, parent string) {
	for _, n := range nodes {
		field := parent + "." + n.Name
		switch {
		case !identRe.MatchString(n.Name):
			v.add(field, ErrInvalidName, "%q is not a valid identifier", n.Name)
		case expr.Reserved(n.Name) || n.Name == ChoiceVar:
			v.add(field, ErrInvalidName, "%q is reserved", n.Name)
		}
		if first, dup := v.names[n.Name]; dup {
			v.add(field, ErrDuplicateName, "name %q already declared at %s", n.Name, first)
		} else {
			v.names[n.Name] = field
		}
		v.collectNames(n.Children, field)
	}
}

func (v *validator) checkNodes(nodes []*ir.Node, parent string, inFieldList bool) {
	for _, n := range nodes {
		field := parent + "." + n.Name
		v.checkExpr(field+".relevant", n.Relevant, false)
		v.checkLabel(field+".label", n.Label)

		switch n.Type {
		case ir.NodeQuestion:
			v.checkQuestion(n, field)
		case ir.NodeGroup, ir.NodeRepeat:
			v.checkContainer(n, field, inFieldList)
		default:
			v.add(field, ErrInvalidName, "unknown node type %s", n.Type)
		}
	}
}

func (v *validator) checkQuestion(n *ir.Node, field string) {
	v.checkExpr(field+".constraint", n.Constraint, false)
	v.checkExpr(field+".calculate", n.Calculate, false)
	v.checkExpr(field+".choice_filter", n.ChoiceFilter, true)

	if n.Kind.IsSelect() {
		if len(n.Choices) == 0 && n.ChoiceList == "" {
			v.add(field, ErrSelectNoChoices, "select question needs choices or choice_list")
		}
		seen := map[string]bool{}
		for _, c := range n.Choices {
			if seen[c.Value] {
				v.add(field+".choices", ErrDuplicateChoice, "duplicate choice value %q", c.Value)
			}
			seen[c.Value] = true
		}
	} else if len(n.Choices) > 0 || n.ChoiceList != "" {
		v.add(field+".choices", ErrChoicesOnNonSelect, "%s question cannot have choices", n.Kind)
	}
	if n.ChoiceFilter != "" && len(n.Choices) == 0 {
		v.add(field+".choice_filter", ErrChoiceFilterNoInput, "choice_filter needs static choices")
	}
	if n.MaxRepeats != 0 {
		v.add(field+".max", ErrInvalidMaxRepeats, "max applies to repeats only")
	}
	if n.Default != "" {
		if _, err := ir.ParseValue(n.Kind, n.Default); err != nil {
			v.add(field+".default", ErrInvalidDefault, "%v", err)
		}
	}
}

func (v *validator) checkContainer(n *ir.Node, field string, inFieldList bool) {
	if len(n.Children) == 0 {
		v.add(field, ErrEmptyContainer, "%s has no children", n.Type)
	}
	if n.Type == ir.NodeRepeat && inFieldList {
		v.add(field, ErrRepeatInFieldList, "repeat inside a field-list is not supported")
	}
	if n.Type == ir.NodeRepeat && n.MaxRepeats < 0 {
		v.add(field+".max", ErrInvalidMaxRepeats, "max must not be negative")
	}
	if n.Type == ir.NodeGroup && n.MaxRepeats != 0 {
		v.add(field+".max", ErrInvalidMaxRepeats, "max applies to repeats only")
	}
	questionOnly := []struct {
		name string
		set  bool
	}{
		{"required", n.Required},
		{"constraint", n.Constraint != ""},
		{"calculate", n.Calculate != ""},
		{"default", n.Default != ""},
		{"choices", len(n.Choices) > 0},
		{"choice_list", n.ChoiceList != ""},
		{"choice_filter", n.ChoiceFilter != ""},
	}
	for _, b := range questionOnly {
		if b.set {
			v.add(field+"."+b.name, ErrBindingOnContainer, "%s applies to questions only", b.name)
		}
	}
	v.checkNodes(n.Children, field, inFieldList || n.FieldList)
}

func (v *validator) checkExpr(field, src string, choiceScope bool) {
	if src == "" {
		return
	}
	x, err := expr.Parse(src)
	if err != nil {
		v.add(field, ErrExpressionSyntax, "%v", err)
		return
	}
	for _, ref := range x.Refs() {
		if ref == expr.This || (choiceScope && ref == ChoiceVar) {
			continue
		}
		if _, ok := v.names[ref]; !ok {
			v.add(field, ErrUnknownReference, "unknown reference %q", ref)
		}
	}
}

func (v *validator) checkLabel(field, label string) {
	for _, ref := range expr.LabelRefs(label) {
		if _, ok := v.names[ref]; !ok {
			v.add(field, ErrUnknownReference, "unknown reference ${%s}", ref)
		}
	}
}
