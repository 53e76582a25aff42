package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/formwalk/internal/ir"
)

// SetAnswer records the widget value for a question on the current screen.
// On ordinary screens the value is held until the screen is saved. On a
// field-list screen it is applied at once, without constraint checks, and
// the renderer receives a partial update for the siblings it changed.
func (s *Session) SetAnswer(ctx context.Context, idx ir.FormIndex, v ir.Value) error {
	if err := s.ready(); err != nil {
		return err
	}
	screen := s.stepper.ScreenIndex()
	if !shownOn(idx, screen) {
		return fmt.Errorf("%q is not on the current screen %q", idx, screen)
	}
	node, err := s.model.Node(idx)
	if err != nil {
		return err
	}
	if node.Type != ir.NodeQuestion {
		return fmt.Errorf("%q is not a question", idx)
	}
	if err := ir.CheckKind(node.Kind, v); err != nil {
		return fmt.Errorf("answer %q: %w", idx, err)
	}
	if s.state == StateBlocked {
		s.unblock()
	}
	s.draft[idx] = v
	if !s.model.IsFieldList(screen) {
		return nil
	}

	s.state = StateSaving
	res, err := s.recalc.Update(screen, idx, func() (*ir.FailedConstraint, error) {
		return s.answers.SaveAll(s.draft, false)
	})
	s.state = StateAwaitingInput
	if err != nil {
		if ir.IsFormDesignError(err) {
			s.designFault(ctx, err)
			s.resync()
			s.redraw()
			return nil
		}
		return err
	}
	s.clearDraft()
	s.scheduleSavepoint(screen)
	if !res.Plan.Empty() {
		s.renderer.UpdateScreen(ScreenUpdate{Index: screen, Trigger: idx, Plan: res.Plan})
	}
	return nil
}

// AwaitExternalData marks idx as waiting for a value from an external
// producer such as a camera or barcode app. Forward and backward requests
// are ignored until the value arrives or the wait is cancelled.
func (s *Session) AwaitExternalData(idx ir.FormIndex) error {
	if err := s.ready(); err != nil {
		return err
	}
	screen := s.stepper.ScreenIndex()
	if !shownOn(idx, screen) {
		return fmt.Errorf("%q is not on the current screen %q", idx, screen)
	}
	s.waiting = &idx
	slog.Debug("waiting for external data", "index", idx.String())
	return nil
}

// CancelExternalData drops the pending wait, if any.
func (s *Session) CancelExternalData() {
	s.waiting = nil
}

func (s *Session) deliverExternal(ctx context.Context, idx ir.FormIndex, v ir.Value) {
	if s.ready() != nil {
		return
	}
	if s.waiting == nil || *s.waiting != idx {
		s.fail(ErrorExternalData, idx, errors.New("no request is waiting for this value"))
		return
	}
	s.waiting = nil
	if err := s.SetAnswer(ctx, idx, v); err != nil {
		s.fail(ErrorExternalData, idx, err)
		return
	}
	s.redraw()
}

// AddRepeat accepts the new-repeat prompt on the current screen and moves
// into the new instance.
func (s *Session) AddRepeat(ctx context.Context) (Result, error) {
	if err := s.ready(); err != nil {
		return ResultIgnored, err
	}
	at := s.stepper.CurrentIndex()
	if s.stepper.CurrentEvent() != ir.EventPromptNewRepeat {
		return ResultIgnored, fmt.Errorf("%q is not a new-repeat prompt", at)
	}
	if _, err := s.model.AddRepeat(at); err != nil {
		if !ir.IsFormDesignError(err) {
			return ResultStayed, err
		}
		s.designFault(ctx, err)
	}
	s.record(ctx, ir.AuditAddRepeat, at, "")
	s.clearDraft()
	s.resync()
	s.direction = ir.Forward
	if s.model.IsFieldList(s.stepper.CurrentIndex()) {
		s.arrive(ctx, true)
		return ResultMoved, nil
	}
	s.move(ctx, ir.Forward, s.stepper.StepToNextScreenEvent)
	return ResultMoved, nil
}

// DeleteRepeat removes the repeat instance at idx. When the current screen
// was in that instance or a later one of the same repeat, the session moves
// to whatever now follows the deleted instance.
func (s *Session) DeleteRepeat(ctx context.Context, idx ir.FormIndex) (Result, error) {
	if err := s.ready(); err != nil {
		return ResultIgnored, err
	}
	ev, err := s.model.EventAt(idx)
	if err != nil {
		return ResultIgnored, err
	}
	if ev != ir.EventRepeat {
		return ResultIgnored, fmt.Errorf("%q is not a repeat instance", idx)
	}
	affected := shiftedByDelete(idx, s.stepper.ScreenIndex())
	if err := s.model.RemoveRepeat(idx); err != nil {
		if !ir.IsFormDesignError(err) {
			return ResultStayed, err
		}
		s.designFault(ctx, err)
	}
	s.record(ctx, ir.AuditDeleteRepeat, idx, "")
	s.clearDraft()

	if !affected {
		s.resync()
		s.arrive(ctx, true)
		return ResultStayed, nil
	}
	if _, err := s.stepper.JumpToIndex(idx); err != nil {
		s.resync()
	}
	s.direction = ir.Forward
	s.settle(ctx, true)
	return ResultMoved, nil
}

// shiftedByDelete reports whether removing the repeat instance deleted
// invalidates screen: screen is in that instance or a later sibling.
func shiftedByDelete(deleted, screen ir.FormIndex) bool {
	ds := deleted.Steps()
	ss := screen.Steps()
	n := len(ds)
	if n == 0 || len(ss) < n {
		return false
	}
	for i := 0; i < n-1; i++ {
		if ss[i] != ds[i] {
			return false
		}
	}
	return ss[n-1].Name == ds[n-1].Name && ss[n-1].Mult >= ds[n-1].Mult
}

// saveScreen applies the screen's answers: held drafts over the model's
// current values. Form design faults are reported and do not stop the save.
func (s *Session) saveScreen(evaluate bool) *ir.FailedConstraint {
	switch s.stepper.CurrentEvent() {
	case ir.EventQuestion, ir.EventGroup, ir.EventRepeat:
	default:
		return nil
	}
	screen := s.stepper.ScreenIndex()
	qs, err := s.model.ScreenQuestions(screen)
	if err != nil {
		s.fail(ErrorFormDesign, screen, err)
		return nil
	}
	pending := make(map[ir.FormIndex]ir.Value, len(qs))
	for _, idx := range qs {
		if v, ok := s.draft[idx]; ok {
			pending[idx] = v
			continue
		}
		v, err := s.model.Answer(idx)
		if err != nil {
			continue
		}
		pending[idx] = v
	}
	fc, err := s.answers.SaveAll(pending, evaluate)
	if err != nil {
		var fde *ir.FormDesignError
		idx := screen
		if errors.As(err, &fde) {
			idx = fde.Index
		}
		s.fail(ErrorFormDesign, idx, err)
		return nil
	}
	if fc == nil {
		s.clearDraft()
	}
	return fc
}

func (s *Session) clearDraft() {
	clear(s.draft)
}

// applySettings takes effect on the next navigation request.
func (s *Session) applySettings(next Settings) {
	slog.Info("settings changed",
		"allow_backwards", next.AllowBackwards,
		"validate_on_swipe", next.ValidateOnSwipe)
	s.settings = next
}

// shownOn reports whether idx is shown on the screen rooted at screen.
// The beginning and end of the form show no questions.
func shownOn(idx, screen ir.FormIndex) bool {
	if screen.IsBeginning() || screen.IsEnd() {
		return false
	}
	return idx == screen || idx.IsWithin(screen)
}
