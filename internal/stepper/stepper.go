// Package stepper walks a form model event by event and screen by screen.
//
// A Stepper owns the current position. It is not safe for concurrent use and
// must be driven from the goroutine that owns the model.
package stepper

import (
	"log/slog"

	"github.com/roach88/formwalk/internal/ir"
)

// Model is the part of the live form model the stepper navigates.
type Model interface {
	EventAt(idx ir.FormIndex) (ir.Event, error)
	Next(idx ir.FormIndex, descend bool) (ir.FormIndex, error)
	Prev(idx ir.FormIndex) (ir.FormIndex, error)
	Exists(idx ir.FormIndex) bool
	IsFieldList(idx ir.FormIndex) bool
	FieldListRoot(idx ir.FormIndex) (ir.FormIndex, bool)
	ScreenQuestions(root ir.FormIndex) ([]ir.FormIndex, error)
}

// Stepper tracks the current position in a form model.
type Stepper struct {
	m   Model
	cur ir.FormIndex
	ev  ir.Event

	// faulted is set when the current position is a node whose binding
	// failed to evaluate. The next forward step treats it as consumed and
	// does not descend into it.
	faulted bool
}

// New returns a Stepper positioned at the beginning of the form.
func New(m Model) *Stepper {
	return &Stepper{m: m, cur: ir.BeginningOfForm, ev: ir.EventBeginningOfForm}
}

// CurrentIndex returns the current position.
func (s *Stepper) CurrentIndex() ir.FormIndex { return s.cur }

// CurrentEvent returns the event at the current position.
func (s *Stepper) CurrentEvent() ir.Event { return s.ev }

// ScreenIndex returns the index of the screen containing the current
// position: the outermost enclosing field-list, or the position itself.
func (s *Stepper) ScreenIndex() ir.FormIndex {
	if root, ok := s.m.FieldListRoot(s.cur); ok {
		return root
	}
	return s.cur
}

// Refresh re-derives the current event from the model. It fails with a
// StaleIndexError when the position no longer resolves.
func (s *Stepper) Refresh() (ir.Event, error) {
	ev, err := s.m.EventAt(s.cur)
	if err != nil {
		return s.ev, err
	}
	s.ev = ev
	return ev, nil
}

// StepToNextEvent advances one relevant node in document order.
func (s *Stepper) StepToNextEvent() (ir.Event, error) {
	return s.advance(true)
}

// StepToPreviousEvent moves back one relevant node in document order.
func (s *Stepper) StepToPreviousEvent() (ir.Event, error) {
	return s.retreat()
}

// StepToNextScreenEvent advances to the next screen: a question, a
// non-empty field-list, a new-repeat prompt or the end of the form. Ordinary
// groups and repeat instances are stepped into.
func (s *Stepper) StepToNextScreenEvent() (ir.Event, error) {
	descend := true
	if root, ok := s.m.FieldListRoot(s.cur); ok {
		s.cur = root
		descend = false
	}
	for {
		ev, err := s.advance(descend)
		if err != nil {
			return ev, err
		}
		descend = true
		switch ev {
		case ir.EventQuestion, ir.EventPromptNewRepeat, ir.EventEndOfForm:
			return ev, nil
		case ir.EventGroup, ir.EventRepeat:
			if !s.m.IsFieldList(s.cur) {
				continue
			}
			empty, err := s.emptyScreen(s.cur)
			if err != nil {
				return ev, err
			}
			if !empty {
				return ev, nil
			}
			descend = false
		case ir.EventRepeatJuncture, ir.EventBeginningOfForm:
		}
	}
}

// StepToPreviousScreenEvent moves back to the previous screen. New-repeat
// prompts are not screens in this direction.
func (s *Stepper) StepToPreviousScreenEvent() (ir.Event, error) {
	if root, ok := s.m.FieldListRoot(s.cur); ok {
		s.cur = root
	}
	for {
		ev, err := s.retreat()
		if err != nil {
			return ev, err
		}
		switch ev {
		case ir.EventBeginningOfForm, ir.EventEndOfForm:
			return ev, nil
		case ir.EventQuestion, ir.EventGroup, ir.EventRepeat:
			root, ok := s.m.FieldListRoot(s.cur)
			if !ok {
				if ev == ir.EventQuestion {
					return ev, nil
				}
				continue
			}
			s.cur = root
			if ev, err = s.Refresh(); err != nil {
				return ev, err
			}
			empty, err := s.emptyScreen(root)
			if err != nil {
				return ev, err
			}
			if !empty {
				return ev, nil
			}
		case ir.EventPromptNewRepeat, ir.EventRepeatJuncture:
		}
	}
}

// JumpToIndex moves to idx unconditionally. It fails with a StaleIndexError
// when idx does not resolve, leaving the position unchanged.
func (s *Stepper) JumpToIndex(idx ir.FormIndex) (ir.Event, error) {
	if !idx.IsBeginning() && !idx.IsEnd() && !s.m.Exists(idx) {
		return s.ev, &ir.StaleIndexError{Index: idx}
	}
	ev, err := s.m.EventAt(idx)
	if err != nil {
		return s.ev, err
	}
	s.cur, s.ev, s.faulted = idx, ev, false
	return ev, nil
}

// IsFirstInForm reports whether no screen precedes the current one.
func (s *Stepper) IsFirstInForm() bool {
	saved := *s
	defer func() { *s = saved }()

	ev, err := s.StepToPreviousScreenEvent()
	return err == nil && ev == ir.EventBeginningOfForm
}

// IsWithinGroup reports whether one index lies within the other, or they
// are the same.
func IsWithinGroup(a, b ir.FormIndex) bool {
	return a.IsPrefixOf(b) || b.IsPrefixOf(a)
}

func (s *Stepper) advance(descend bool) (ir.Event, error) {
	if s.faulted {
		descend = false
		s.faulted = false
	}
	next, err := s.m.Next(s.cur, descend)
	return s.land(next, err)
}

func (s *Stepper) retreat() (ir.Event, error) {
	s.faulted = false
	prev, err := s.m.Prev(s.cur)
	return s.land(prev, err)
}

// land moves to idx. A FormDesignError leaves the stepper on the faulted
// node so a retry steps past it.
func (s *Stepper) land(idx ir.FormIndex, err error) (ir.Event, error) {
	if err != nil {
		if ir.IsFormDesignError(err) {
			slog.Debug("step faulted", "index", idx.String(), "error", err)
			s.cur = idx
			s.faulted = true
			if ev, evErr := s.m.EventAt(idx); evErr == nil {
				s.ev = ev
			}
		}
		return s.ev, err
	}
	ev, err := s.m.EventAt(idx)
	if err != nil {
		return s.ev, err
	}
	s.cur, s.ev = idx, ev
	return ev, nil
}

func (s *Stepper) emptyScreen(root ir.FormIndex) (bool, error) {
	qs, err := s.m.ScreenQuestions(root)
	if err != nil {
		if ir.IsFormDesignError(err) {
			s.cur = root
			s.faulted = true
		}
		return false, err
	}
	return len(qs) == 0, nil
}
