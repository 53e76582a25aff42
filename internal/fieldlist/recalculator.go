package fieldlist

import (
	"log/slog"

	"github.com/roach88/formwalk/internal/ir"
)

// Model enumerates and renders the questions of a screen.
type Model interface {
	ScreenQuestions(root ir.FormIndex) ([]ir.FormIndex, error)
	Prompts(indices []ir.FormIndex) ([]ir.Prompt, error)
}

// Recalculator captures a field-list screen around a save.
type Recalculator struct {
	m Model
}

// NewRecalculator returns a Recalculator over m.
func NewRecalculator(m Model) *Recalculator {
	return &Recalculator{m: m}
}

// Result is the outcome of Update.
type Result struct {
	Plan   Plan
	Before []Question
	After  []Question
	Failed *ir.FailedConstraint
}

// Capture snapshots the screen rooted at root.
func (r *Recalculator) Capture(root ir.FormIndex) ([]Question, error) {
	indices, err := r.m.ScreenQuestions(root)
	if err != nil {
		return nil, err
	}
	prompts, err := r.m.Prompts(indices)
	if err != nil {
		return nil, err
	}
	return Capture(prompts), nil
}

// Update captures the screen, runs save, captures it again and reconciles
// the two. When save reports a failed constraint the screen is left as it
// was and the plan is empty.
func (r *Recalculator) Update(root, trigger ir.FormIndex, save func() (*ir.FailedConstraint, error)) (Result, error) {
	before, err := r.Capture(root)
	if err != nil {
		return Result{}, err
	}
	fc, err := save()
	if err != nil {
		return Result{}, err
	}
	if fc != nil {
		return Result{Before: before, After: before, Failed: fc}, nil
	}
	after, err := r.Capture(root)
	if err != nil {
		return Result{}, err
	}
	plan := Reconcile(before, after, trigger)
	slog.Debug("field-list recalculated",
		"screen", root.String(),
		"trigger", trigger.String(),
		"removed", len(plan.Remove),
		"inserted", len(plan.Insert))
	return Result{Plan: plan, Before: before, After: after}, nil
}
