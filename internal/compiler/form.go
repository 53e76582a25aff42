package compiler

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/formwalk/internal/ir"
)

// AppearanceFieldList marks a group or repeat whose children share a screen.
const AppearanceFieldList = "field-list"

// CompileSource compiles CUE source containing a top-level form struct.
func CompileSource(src []byte, filename string) (*ir.FormDef, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileForm(v.LookupPath(cue.ParsePath("form")))
}

// LoadFile reads and compiles a form file. It returns the raw source too, so
// callers can hash it.
func LoadFile(path string) (*ir.FormDef, []byte, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read form: %w", err)
	}
	def, err := CompileSource(src, path)
	if err != nil {
		return nil, src, err
	}
	return def, src, nil
}

// LoadDir compiles a form split across the CUE files of one package
// directory.
func LoadDir(dir string) (*ir.FormDef, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &CompileError{Field: "load", Message: "no CUE instances in " + dir}
	}
	if err := instances[0].Err; err != nil {
		return nil, formatCUEError(err)
	}
	v := cuecontext.New().BuildInstance(instances[0])
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	return CompileForm(v.LookupPath(cue.ParsePath("form")))
}

// CompileForm parses the form struct into a FormDef.
// Uses the CUE Go API directly (not a CLI subprocess).
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`form: { id: "f", body: [...] }`)
//	def, err := CompileForm(v.LookupPath(cue.ParsePath("form")))
func CompileForm(v cue.Value) (*ir.FormDef, error) {
	if !v.Exists() {
		return nil, &CompileError{Field: "form", Message: "form is required"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &ir.FormDef{}
	var err error
	if def.ID, err = requiredString(v, "id", "form"); err != nil {
		return nil, err
	}
	if def.Version, err = optString(v, "version"); err != nil {
		return nil, err
	}
	if def.Title, err = optString(v, "title"); err != nil {
		return nil, err
	}

	body := v.LookupPath(cue.ParsePath("body"))
	if !body.Exists() {
		return nil, &CompileError{Field: "form.body", Message: "body is required", Pos: v.Pos()}
	}
	def.Body, err = parseNodes(body, "form.body")
	if err != nil {
		return nil, err
	}
	if len(def.Body) == 0 {
		return nil, &CompileError{Field: "form.body", Message: "at least one node is required", Pos: body.Pos()}
	}
	return def, nil
}

func parseNodes(list cue.Value, path string) ([]*ir.Node, error) {
	iter, err := list.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var nodes []*ir.Node
	for i := 0; iter.Next(); i++ {
		n, err := parseNode(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func parseNode(v cue.Value, path string) (*ir.Node, error) {
	n := &ir.Node{}
	var err error
	if n.Name, err = requiredString(v, "name", path); err != nil {
		return nil, err
	}
	path = path + "(" + n.Name + ")"

	typ, err := requiredString(v, "type", path)
	if err != nil {
		return nil, err
	}
	switch typ {
	case "group":
		n.Type = ir.NodeGroup
	case "repeat":
		n.Type = ir.NodeRepeat
	default:
		kind, ok := ir.ParseQuestionKind(typ)
		if !ok {
			return nil, &CompileError{Field: path + ".type", Message: fmt.Sprintf("unknown type %q", typ), Pos: v.Pos()}
		}
		n.Type = ir.NodeQuestion
		n.Kind = kind
	}

	strs := []struct {
		field string
		dst   *string
	}{
		{"label", &n.Label},
		{"hint", &n.Hint},
		{"relevant", &n.Relevant},
		{"constraint", &n.Constraint},
		{"constraint_message", &n.ConstraintMessage},
		{"calculate", &n.Calculate},
		{"default", &n.Default},
		{"choice_filter", &n.ChoiceFilter},
		{"choice_list", &n.ChoiceList},
	}
	for _, s := range strs {
		if *s.dst, err = optString(v, s.field); err != nil {
			return nil, err
		}
	}

	if n.Required, err = optBool(v, "required"); err != nil {
		return nil, err
	}
	if n.ReadOnly, err = optBool(v, "readonly"); err != nil {
		return nil, err
	}
	if n.MaxRepeats, err = optInt(v, "max"); err != nil {
		return nil, err
	}

	appearance, err := optString(v, "appearance")
	if err != nil {
		return nil, err
	}
	n.FieldList = strings.Contains(appearance, AppearanceFieldList)

	if choices := v.LookupPath(cue.ParsePath("choices")); choices.Exists() {
		if n.Choices, err = parseChoices(choices, path+".choices"); err != nil {
			return nil, err
		}
	}
	if children := v.LookupPath(cue.ParsePath("children")); children.Exists() {
		if n.Children, err = parseNodes(children, path+".children"); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// parseChoices reads {value, label, ...} structs. Extra string fields become
// attributes available to choice filters.
func parseChoices(list cue.Value, path string) ([]ir.Choice, error) {
	iter, err := list.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var choices []ir.Choice
	for i := 0; iter.Next(); i++ {
		cv := iter.Value()
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		c := ir.Choice{}
		if c.Value, err = requiredString(cv, "value", elemPath); err != nil {
			return nil, err
		}
		if c.Label, err = optString(cv, "label"); err != nil {
			return nil, err
		}
		fields, err := cv.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for fields.Next() {
			label := fields.Label()
			if label == "value" || label == "label" {
				continue
			}
			s, err := fields.Value().String()
			if err != nil {
				return nil, &CompileError{Field: elemPath + "." + label, Message: "choice attributes must be strings", Pos: fields.Value().Pos()}
			}
			if c.Attrs == nil {
				c.Attrs = make(map[string]string)
			}
			c.Attrs[label] = s
		}
		choices = append(choices, c)
	}
	return choices, nil
}

func requiredString(v cue.Value, field, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", &CompileError{Field: path + "." + field, Message: field + " is required", Pos: v.Pos()}
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" {
		return "", &CompileError{Field: path + "." + field, Message: field + " must not be empty", Pos: fv.Pos()}
	}
	return s, nil
}

func optString(v cue.Value, field string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func optBool(v cue.Value, field string) (bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, formatCUEError(err)
	}
	return b, nil
}

func optInt(v cue.Value, field string) (int, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, nil
	}
	n, err := fv.Int64()
	if err != nil {
		return 0, formatCUEError(err)
	}
	return int(n), nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
