package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// NoMultiplicity marks a step that does not address a repeat instance.
const NoMultiplicity = -1

const endMarker = "#end"

// Step is one element of a FormIndex path: a node name plus the repeat
// multiplicity when the node is a repeat instance.
type Step struct {
	Name string `json:"name"`
	Mult int    `json:"mult"`
}

func (s Step) String() string {
	if s.Mult == NoMultiplicity {
		return s.Name
	}
	return s.Name + "[" + strconv.Itoa(s.Mult) + "]"
}

// FormIndex locates a node in the form tree as the path of steps from the
// root. It is immutable and comparable, so it can be used as a map key.
//
// The zero value is the beginning of the form. EndOfForm is a distinguished
// index after every node.
type FormIndex struct {
	path string
}

// BeginningOfForm is the index before the first node.
var BeginningOfForm = FormIndex{}

// EndOfForm is the index after the last node.
var EndOfForm = FormIndex{path: endMarker}

// NewIndex builds an index from steps.
func NewIndex(steps ...Step) FormIndex {
	if len(steps) == 0 {
		return BeginningOfForm
	}
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = s.String()
	}
	return FormIndex{path: strings.Join(parts, "/")}
}

// ParseIndex parses the String form of an index.
func ParseIndex(s string) (FormIndex, error) {
	switch s {
	case "":
		return BeginningOfForm, nil
	case endMarker:
		return EndOfForm, nil
	}
	parts := strings.Split(s, "/")
	steps := make([]Step, 0, len(parts))
	for _, p := range parts {
		step, err := parseStep(p)
		if err != nil {
			return FormIndex{}, fmt.Errorf("parse index %q: %w", s, err)
		}
		steps = append(steps, step)
	}
	return NewIndex(steps...), nil
}

// MustParseIndex is like ParseIndex but panics on error.
// Use only in tests or with literal indices.
func MustParseIndex(s string) FormIndex {
	idx, err := ParseIndex(s)
	if err != nil {
		panic(err)
	}
	return idx
}

func parseStep(p string) (Step, error) {
	if p == "" {
		return Step{}, fmt.Errorf("empty step")
	}
	open := strings.IndexByte(p, '[')
	if open < 0 {
		return Step{Name: p, Mult: NoMultiplicity}, nil
	}
	if open == 0 || !strings.HasSuffix(p, "]") {
		return Step{}, fmt.Errorf("malformed step %q", p)
	}
	n, err := strconv.Atoi(p[open+1 : len(p)-1])
	if err != nil || n < 0 {
		return Step{}, fmt.Errorf("malformed multiplicity in %q", p)
	}
	return Step{Name: p[:open], Mult: n}, nil
}

// IsBeginning reports whether the index is the beginning of the form.
func (i FormIndex) IsBeginning() bool { return i.path == "" }

// IsEnd reports whether the index is the end of the form.
func (i FormIndex) IsEnd() bool { return i.path == endMarker }

// Steps returns the path from the root. Beginning and end have no steps.
func (i FormIndex) Steps() []Step {
	if i.IsBeginning() || i.IsEnd() {
		return nil
	}
	parts := strings.Split(i.path, "/")
	steps := make([]Step, len(parts))
	for n, p := range parts {
		// path was built by NewIndex, so it always parses
		steps[n], _ = parseStep(p)
	}
	return steps
}

// Depth is the number of steps in the path.
func (i FormIndex) Depth() int {
	if i.IsBeginning() || i.IsEnd() {
		return 0
	}
	return strings.Count(i.path, "/") + 1
}

// Last returns the final step. ok is false for beginning and end.
func (i FormIndex) Last() (Step, bool) {
	if i.IsBeginning() || i.IsEnd() {
		return Step{}, false
	}
	p := i.path
	if slash := strings.LastIndexByte(p, '/'); slash >= 0 {
		p = p[slash+1:]
	}
	s, _ := parseStep(p)
	return s, true
}

// Parent returns the enclosing index. The parent of a top-level node is the
// beginning of the form.
func (i FormIndex) Parent() FormIndex {
	if i.IsEnd() {
		return BeginningOfForm
	}
	slash := strings.LastIndexByte(i.path, '/')
	if slash < 0 {
		return BeginningOfForm
	}
	return FormIndex{path: i.path[:slash]}
}

// Child returns the index of a child step below i.
func (i FormIndex) Child(name string, mult int) FormIndex {
	s := Step{Name: name, Mult: mult}.String()
	if i.IsBeginning() || i.IsEnd() {
		return FormIndex{path: s}
	}
	return FormIndex{path: i.path + "/" + s}
}

// WithLastMultiplicity replaces the multiplicity of the final step.
func (i FormIndex) WithLastMultiplicity(mult int) FormIndex {
	last, ok := i.Last()
	if !ok {
		return i
	}
	return i.Parent().Child(last.Name, mult)
}

// IsPrefixOf reports whether i's path is a prefix of other's path, including
// equality. The beginning of the form is a prefix of every node index.
func (i FormIndex) IsPrefixOf(other FormIndex) bool {
	if i.IsEnd() || other.IsEnd() {
		return i == other
	}
	if i.IsBeginning() {
		return true
	}
	return other.path == i.path || strings.HasPrefix(other.path, i.path+"/")
}

// IsWithin reports whether i is a strict descendant of ancestor.
func (i FormIndex) IsWithin(ancestor FormIndex) bool {
	return i != ancestor && ancestor.IsPrefixOf(i)
}

// String returns the canonical text form, e.g. "members[1]/age".
func (i FormIndex) String() string { return i.path }

// MarshalText implements encoding.TextMarshaler.
func (i FormIndex) MarshalText() ([]byte, error) {
	return []byte(i.path), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *FormIndex) UnmarshalText(b []byte) error {
	parsed, err := ParseIndex(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
