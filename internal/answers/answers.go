// Package answers applies screen answers to the live form model.
package answers

import (
	"fmt"
	"slices"

	"github.com/roach88/formwalk/internal/ir"
)

// Model is the part of the live form model the store writes through.
type Model interface {
	SetAnswer(idx ir.FormIndex, v ir.Value) error
	Check(idx ir.FormIndex, v ir.Value) (*ir.FailedConstraint, error)
	IsReadOnly(idx ir.FormIndex) bool
	Compare(a, b ir.FormIndex) int
}

// Store saves answers for the current screen. Applying an answer may
// recompute calculated values anywhere in the model.
type Store struct {
	m Model
}

// New returns a Store writing to m.
func New(m Model) *Store {
	return &Store{m: m}
}

// SaveAll applies every answer in document order. With evaluate set, each
// answer is checked before it is applied and the first failure stops the
// save: it and every later answer are left unapplied.
//
// The returned error is reserved for malformed bindings and unknown
// indices. Read-only questions are skipped.
func (s *Store) SaveAll(answers map[ir.FormIndex]ir.Value, evaluate bool) (*ir.FailedConstraint, error) {
	for _, idx := range s.order(answers) {
		fc, err := s.SaveOne(idx, answers[idx], evaluate)
		if err != nil || fc != nil {
			return fc, err
		}
	}
	return nil, nil
}

// SaveOne applies a single answer. Callers saving several answers of one
// screen this way must go in document order so calculations see the
// upstream values.
func (s *Store) SaveOne(idx ir.FormIndex, v ir.Value, evaluate bool) (*ir.FailedConstraint, error) {
	if s.m.IsReadOnly(idx) {
		return nil, nil
	}
	if evaluate {
		fc, err := s.m.Check(idx, v)
		if err != nil {
			return nil, err
		}
		if fc != nil {
			return fc, nil
		}
	}
	if err := s.m.SetAnswer(idx, v); err != nil {
		return nil, fmt.Errorf("save %q: %w", idx, err)
	}
	return nil, nil
}

func (s *Store) order(answers map[ir.FormIndex]ir.Value) []ir.FormIndex {
	out := make([]ir.FormIndex, 0, len(answers))
	for idx := range answers {
		out = append(out, idx)
	}
	slices.SortFunc(out, s.m.Compare)
	return out
}
