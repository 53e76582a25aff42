package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/formwalk/internal/ir"
)

// RequestForward saves the current screen and moves to the next one. A
// failed constraint blocks the move when ValidateOnSwipe is set. At a
// new-repeat prompt the repeat is declined.
func (s *Session) RequestForward(ctx context.Context) (Result, error) {
	if err := s.ready(); err != nil {
		return ResultIgnored, err
	}
	if s.waiting != nil {
		slog.Debug("forward ignored while waiting for external data", "index", s.waiting.String())
		return ResultIgnored, nil
	}
	if s.CurrentEvent() == ir.EventEndOfForm {
		return ResultStayed, nil
	}

	s.state = StateSaving
	fc := s.saveScreen(s.settings.ValidateOnSwipe)
	if fc != nil {
		return s.block(ctx, fc), nil
	}
	s.move(ctx, ir.Forward, s.stepper.StepToNextScreenEvent)
	return ResultMoved, nil
}

// RequestBackward saves the current screen without constraint checks and
// moves to the previous one. It is ignored when backward navigation is
// disabled and does nothing on the first screen.
func (s *Session) RequestBackward(ctx context.Context) (Result, error) {
	if err := s.ready(); err != nil {
		return ResultIgnored, err
	}
	if !s.settings.AllowBackwards {
		slog.Debug("backward ignored, navigation locked")
		return ResultIgnored, nil
	}
	if s.waiting != nil {
		slog.Debug("backward ignored while waiting for external data", "index", s.waiting.String())
		return ResultIgnored, nil
	}
	if s.stepper.IsFirstInForm() {
		return ResultStayed, nil
	}

	s.state = StateSaving
	s.saveScreen(false)
	s.move(ctx, ir.Backward, s.stepper.StepToPreviousScreenEvent)
	return ResultMoved, nil
}

// Jump moves directly to idx without saving the current screen. Unsaved
// answers are dropped. An index inside a field-list lands on its screen;
// an index that is not a screen lands on the next screen after it.
func (s *Session) Jump(ctx context.Context, idx ir.FormIndex) (Result, error) {
	if err := s.ready(); err != nil {
		return ResultIgnored, err
	}
	if !s.settings.AllowBackwards && s.model.Compare(idx, s.stepper.ScreenIndex()) < 0 {
		return ResultIgnored, s.fail(ErrorNavigationLocked, idx, errors.New("backward navigation is disabled"))
	}

	s.waiting = nil
	s.clearDraft()
	if _, err := s.stepper.JumpToIndex(idx); err != nil {
		serr := s.fail(ErrorStaleIndex, idx, err)
		_, _ = s.stepper.JumpToIndex(ir.BeginningOfForm)
		s.direction = ir.Forward
		s.unblock()
		s.redraw()
		return ResultMoved, serr
	}
	s.record(ctx, ir.AuditJump, idx, "")
	s.direction = ir.Forward
	s.settle(ctx, true)
	return ResultMoved, nil
}

// move runs one screen step, retrying once past a form design fault.
func (s *Session) move(ctx context.Context, dir ir.Direction, step func() (ir.Event, error)) {
	s.clearDraft()
	_, err := step()
	if ir.IsFormDesignError(err) {
		s.designFault(ctx, err)
		_, err = step()
	}
	if err != nil {
		if ir.IsFormDesignError(err) {
			s.designFault(ctx, err)
		} else {
			s.fail(ErrorStaleIndex, s.stepper.CurrentIndex(), err)
		}
		s.resync()
	}
	s.direction = dir
	s.arrive(ctx, true)
}

// settle turns the stepper position into a screen: a question inside a
// field-list becomes its field-list, and anything that is not a screen
// steps forward to the next one.
func (s *Session) settle(ctx context.Context, schedule bool) {
	cur := s.stepper.CurrentIndex()
	if root, ok := s.model.FieldListRoot(cur); ok && root != cur {
		if _, err := s.stepper.JumpToIndex(root); err != nil {
			s.resync()
		}
	}
	if !s.onScreen() {
		s.move(ctx, ir.Forward, s.stepper.StepToNextScreenEvent)
		return
	}
	s.arrive(ctx, schedule)
}

func (s *Session) onScreen() bool {
	switch s.stepper.CurrentEvent() {
	case ir.EventBeginningOfForm, ir.EventEndOfForm, ir.EventQuestion, ir.EventPromptNewRepeat:
		return true
	case ir.EventGroup, ir.EventRepeat:
		return s.model.IsFieldList(s.stepper.CurrentIndex())
	default:
		return false
	}
}

// arrive finishes a move: audit, background savepoint, redraw.
func (s *Session) arrive(ctx context.Context, schedule bool) {
	s.unblock()
	idx := s.stepper.ScreenIndex()
	switch s.CurrentEvent() {
	case ir.EventQuestion:
		s.record(ctx, ir.AuditQuestion, idx, "")
	case ir.EventGroup, ir.EventRepeat:
		s.record(ctx, ir.AuditGroup, idx, "")
	case ir.EventPromptNewRepeat:
		s.record(ctx, ir.AuditPromptNewRepeat, idx, "")
	case ir.EventEndOfForm:
		s.record(ctx, ir.AuditEndScreen, idx, "")
	}
	if schedule {
		s.scheduleSavepoint(idx)
	}
	s.redraw()
}

func (s *Session) designFault(ctx context.Context, err error) {
	var fde *ir.FormDesignError
	idx := s.stepper.CurrentIndex()
	if errors.As(err, &fde) {
		idx = fde.Index
	}
	s.fail(ErrorFormDesign, idx, err)
	s.record(ctx, ir.AuditFormDesignError, idx, err.Error())
}

func (s *Session) block(ctx context.Context, fc *ir.FailedConstraint) Result {
	s.state = StateBlocked
	s.blocked = fc
	slog.Info("navigation blocked", "index", fc.Index.String(), "kind", fc.Kind.String(), "message", fc.Message)
	s.reporter.ReportBlocked(fc)
	s.record(ctx, ir.AuditConstraintError, fc.Index, fc.Message)
	return ResultBlocked
}

func (s *Session) unblock() {
	s.state = StateAwaitingInput
	s.blocked = nil
}
