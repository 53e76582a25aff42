// Package fieldlist works out which widgets of a field-list screen must be
// rebuilt after a save.
//
// Saving one answer can change any sibling on the screen: calculated values
// change their answers and labels, relevance adds or removes questions,
// choice filters change choice sets. The question whose edit triggered the
// save is never rebuilt so its widget keeps focus.
package fieldlist

import (
	"maps"
	"slices"

	"github.com/roach88/formwalk/internal/ir"
)

// Question is a by-value capture of a displayed question.
type Question struct {
	Index   ir.FormIndex
	Label   string
	Hint    string
	Answer  ir.Value
	Choices []ir.Choice
	Dynamic bool
}

// Capture snapshots prompts. The result shares no memory with them.
func Capture(prompts []ir.Prompt) []Question {
	out := make([]Question, len(prompts))
	for i, p := range prompts {
		q := Question{
			Index:   p.Index,
			Label:   p.Label,
			Hint:    p.Hint,
			Answer:  p.Answer,
			Dynamic: p.Dynamic,
		}
		if ms, ok := p.Answer.(ir.MultiSelection); ok {
			q.Answer = slices.Clone(ms)
		}
		if p.Choices != nil {
			q.Choices = make([]ir.Choice, len(p.Choices))
			for j, c := range p.Choices {
				c.Attrs = maps.Clone(c.Attrs)
				q.Choices[j] = c
			}
		}
		out[i] = q
	}
	return out
}

// Same reports whether q and o would render identically.
func (q Question) Same(o Question) bool {
	return q.Index == o.Index &&
		q.Label == o.Label &&
		q.Hint == o.Hint &&
		ir.ValuesEqual(q.Answer, o.Answer) &&
		slices.EqualFunc(q.Choices, o.Choices, func(a, b ir.Choice) bool {
			return a.Value == b.Value && a.Label == b.Label && maps.Equal(a.Attrs, b.Attrs)
		})
}

// Removal drops the widget at Slot of the screen as displayed before the
// save.
type Removal struct {
	Slot  int
	Index ir.FormIndex
}

// Insertion adds a widget at Slot of the screen as it will be displayed.
type Insertion struct {
	Slot     int
	Question Question
}

// Plan is the widget update for one save. Removals are ordered last slot
// first and must be applied before insertions, which are ordered first
// slot first.
type Plan struct {
	Remove []Removal
	Insert []Insertion
}

// Empty reports whether nothing changes.
func (p Plan) Empty() bool { return len(p.Remove) == 0 && len(p.Insert) == 0 }

// Reconcile diffs the screen before and after a save. A question is rebuilt
// when it disappeared, changed, moved relative to the questions kept around
// it, or is backed by external data. trigger is kept in place.
func Reconcile(before, after []Question, trigger ir.FormIndex) Plan {
	pos := make(map[ir.FormIndex]int, len(after))
	for j, q := range after {
		pos[q.Index] = j
	}

	// The trigger's widget stays, so questions kept before it must also
	// come before it after the save.
	triggerSlot, bound := -1, len(after)
	for i, b := range before {
		if j, ok := pos[b.Index]; ok && b.Index == trigger {
			triggerSlot, bound = i, j
		}
	}

	kept := make(map[ir.FormIndex]bool, len(before))
	var plan Plan
	last := -1
	for i, b := range before {
		j, present := pos[b.Index]
		keep := present
		if keep && i != triggerSlot {
			keep = !b.Dynamic && b.Same(after[j]) && j > last
			if i < triggerSlot && j >= bound {
				keep = false
			}
		}
		if !keep {
			plan.Remove = append(plan.Remove, Removal{Slot: i, Index: b.Index})
			continue
		}
		kept[b.Index] = true
		last = j
	}
	slices.Reverse(plan.Remove)

	for j, a := range after {
		if kept[a.Index] {
			continue
		}
		plan.Insert = append(plan.Insert, Insertion{Slot: j, Question: a})
	}
	return plan
}

// Apply replays p over the displayed indices and returns the result.
func (p Plan) Apply(displayed []ir.FormIndex) []ir.FormIndex {
	out := slices.Clone(displayed)
	for _, r := range p.Remove {
		out = slices.Delete(out, r.Slot, r.Slot+1)
	}
	for _, in := range p.Insert {
		out = slices.Insert(out, in.Slot, in.Question.Index)
	}
	return out
}
