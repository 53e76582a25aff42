package expr

import (
	"slices"

	"cuelang.org/go/cue/ast"
	"cuelang.org/go/cue/parser"
)

// This is the identifier bound to the value of the node being evaluated.
const This = "this"

// predeclared names resolve without a scope entry.
var predeclared = map[string]bool{
	"_": true, "true": true, "false": true, "null": true,
	"len": true, "close": true, "and": true, "or": true,
	"div": true, "mod": true, "quo": true, "rem": true,
	"number": true, "int": true, "float": true, "string": true,
	"bool": true, "bytes": true, "top": true,
}

// builtinPackages are importable without an import clause.
var builtinPackages = map[string]bool{
	"strings": true, "math": true, "list": true, "regexp": true, "strconv": true,
}

// Reserved reports whether name cannot be used as a form node name because
// expressions would resolve it to something else.
func Reserved(name string) bool {
	return name == This || predeclared[name] || builtinPackages[name] || keywords[name]
}

var keywords = map[string]bool{
	"if": true, "for": true, "in": true, "let": true, "import": true, "package": true,
}

// Expr is a parsed binding expression.
type Expr struct {
	Source string
	refs   []string
}

// Refs returns the scope names the expression reads, sorted and unique.
// Builtin package names and predeclared identifiers are excluded.
func (x *Expr) Refs() []string {
	return slices.Clone(x.refs)
}

// Parse parses src and collects its references. It does not evaluate.
func Parse(src string) (*Expr, error) {
	node, err := parser.ParseExpr("expr", src)
	if err != nil {
		return nil, &SyntaxError{Source: src, Err: err}
	}
	return &Expr{Source: src, refs: collectRefs(node)}, nil
}

func collectRefs(node ast.Expr) []string {
	seen := map[string]bool{}
	locals := map[string]bool{}

	var before func(ast.Node) bool
	before = func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.SelectorExpr:
			// only the operand is a reference; the selector is a field name
			ast.Walk(x.X, before, nil)
			return false
		case *ast.Field:
			if x.Value != nil {
				ast.Walk(x.Value, before, nil)
			}
			return false
		case *ast.ForClause:
			if x.Key != nil {
				locals[x.Key.Name] = true
			}
			if x.Value != nil {
				locals[x.Value.Name] = true
			}
			if x.Source != nil {
				ast.Walk(x.Source, before, nil)
			}
			return false
		case *ast.LetClause:
			locals[x.Ident.Name] = true
			ast.Walk(x.Expr, before, nil)
			return false
		case *ast.Ident:
			if !predeclared[x.Name] && !builtinPackages[x.Name] {
				seen[x.Name] = true
			}
		}
		return true
	}
	ast.Walk(node, before, nil)

	refs := make([]string, 0, len(seen))
	for name := range seen {
		if !locals[name] {
			refs = append(refs, name)
		}
	}
	slices.Sort(refs)
	return refs
}
