package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes. The version suffix allows a future
// algorithm migration.
const (
	DomainForm   = "formwalk/form/v1"
	DomainSource = "formwalk/source/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FormHash computes the content hash of a compiled form definition. Two
// definitions with the same structure and bindings hash identically
// regardless of source formatting.
func FormHash(def *FormDef) (string, error) {
	canonical, err := MarshalCanonical(formCanonical(def))
	if err != nil {
		return "", fmt.Errorf("FormHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainForm, canonical), nil
}

// MustFormHash is like FormHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFormHash(def *FormDef) string {
	h, err := FormHash(def)
	if err != nil {
		panic(err)
	}
	return h
}

// SourceHash hashes raw form source bytes. Used as a cache key.
func SourceHash(src []byte) string {
	return hashWithDomain(DomainSource, src)
}

func formCanonical(def *FormDef) map[string]any {
	return map[string]any{
		"id":      def.ID,
		"version": def.Version,
		"title":   def.Title,
		"body":    nodesCanonical(def.Body),
	}
}

func nodesCanonical(nodes []*Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		choices := make([]any, len(n.Choices))
		for j, c := range n.Choices {
			attrs := make(map[string]any, len(c.Attrs))
			for k, v := range c.Attrs {
				attrs[k] = v
			}
			choices[j] = map[string]any{"value": c.Value, "label": c.Label, "attrs": attrs}
		}
		out[i] = map[string]any{
			"name":               n.Name,
			"type":               n.Type.String(),
			"kind":               n.Kind.String(),
			"label":              n.Label,
			"hint":               n.Hint,
			"required":           n.Required,
			"readonly":           n.ReadOnly,
			"relevant":           n.Relevant,
			"constraint":         n.Constraint,
			"constraint_message": n.ConstraintMessage,
			"calculate":          n.Calculate,
			"default":            n.Default,
			"field_list":         n.FieldList,
			"choices":            choices,
			"choice_filter":      n.ChoiceFilter,
			"choice_list":        n.ChoiceList,
			"max_repeats":        n.MaxRepeats,
			"children":           nodesCanonical(n.Children),
		}
	}
	return out
}
