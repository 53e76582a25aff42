package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/formwalk/internal/instance"
	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/savepoint"
)

// Save writes the instance document. Finalizing first validates every
// relevant question; a failure moves to the offending question and blocks.
// A successful save removes the savepoint.
func (s *Session) Save(ctx context.Context, finalize bool) (Result, error) {
	if err := s.ready(); err != nil {
		return ResultIgnored, err
	}
	s.state = StateSaving
	s.saveScreen(false)

	if finalize {
		fc, err := s.model.Validate()
		if err != nil {
			s.state = StateAwaitingInput
			return ResultStayed, s.fail(ErrorFormDesign, s.stepper.ScreenIndex(), err)
		}
		if fc != nil {
			if _, err := s.stepper.JumpToIndex(fc.Index); err == nil {
				s.direction = ir.Forward
				s.settle(ctx, false)
			}
			return s.block(ctx, fc), nil
		}
	}

	f := s.form
	if err := instance.Write(f.InstancePath, s.model.Snapshot(), nil); err != nil {
		s.state = StateAwaitingInput
		return ResultStayed, s.fail(ErrorPersistence, ir.BeginningOfForm, err)
	}

	status := ir.StatusIncomplete
	kind := ir.AuditFormSave
	if finalize {
		status = ir.StatusComplete
		kind = ir.AuditFormFinalize
	}
	if s.registry != nil {
		rec := ir.InstanceRecord{
			ID:          s.instanceID(),
			FormID:      f.Def.ID,
			FormVersion: f.Def.Version,
			FormHash:    f.FormHash,
			DisplayName: s.displayName(),
			Path:        f.InstancePath,
			Status:      status,
			Seq:         s.clock.Next(),
		}
		if err := s.registry.UpsertInstance(ctx, rec); err != nil {
			s.state = StateAwaitingInput
			return ResultStayed, s.fail(ErrorPersistence, ir.BeginningOfForm, err)
		}
	}

	stale := []string{f.SavepointPath}
	if finalize {
		stale = append(stale, f.IndexPath)
	}
	s.discard(stale...)
	s.record(ctx, kind, s.stepper.ScreenIndex(), string(status))
	slog.Info("instance saved", "instance", f.InstancePath, "status", string(status))
	s.state = StateAwaitingInput
	return ResultStayed, nil
}

// Exit ends the session and releases the instance lock. Discarding removes
// the savepoint; abandoning writes a final one and waits for it.
func (s *Session) Exit(ctx context.Context, reason ExitReason) error {
	if s.state == StateExited {
		return ErrExited
	}
	if s.form != nil {
		switch reason {
		case ExitDiscarded:
			s.discard(s.form.SavepointPath, s.form.IndexPath)
		case ExitAbandoned:
			s.saveScreen(false)
			s.scheduleSavepoint(s.stepper.ScreenIndex())
			if s.savepoints != nil {
				if err := s.savepoints.Flush(ctx); err != nil {
					slog.Warn("final savepoint not flushed", "error", err)
				}
			}
		}
		s.record(ctx, ir.AuditFormExit, s.stepper.ScreenIndex(), string(reason))
	}

	s.state = StateExited
	s.waiting = nil
	s.queue.Close()
	s.reporter.ReportSessionExited(reason)
	slog.Info("session exited", "session", s.id, "reason", string(reason))
	if s.form != nil {
		if err := s.form.Close(); err != nil {
			slog.Warn("releasing instance lock", "error", err)
		}
	}
	return nil
}

// scheduleSavepoint queues a background savepoint of the current answers.
// With backward navigation disabled it also records idx as the resume
// point.
func (s *Session) scheduleSavepoint(idx ir.FormIndex) {
	if s.form == nil {
		return
	}
	if s.savepoints == nil {
		if s.settings.AllowBackwards {
			return
		}
		// Without a worker only the resume point is kept.
		if err := instance.WriteFileAtomic(s.form.IndexPath, []byte(idx.String()+"\n"), 0o644); err != nil {
			slog.Warn("recording resume index", "error", err)
		}
		return
	}
	job := savepoint.Job{Path: s.form.SavepointPath, Index: idx, Data: s.model.Snapshot()}
	if err := s.savepoints.Schedule(job); err != nil {
		slog.Warn("savepoint not scheduled", "error", err)
	}
	if !s.settings.AllowBackwards {
		if err := s.savepoints.RecordLastVisitedIndex(s.form.IndexPath, idx); err != nil {
			slog.Warn("resume index not scheduled", "error", err)
		}
	}
}

func (s *Session) discard(paths ...string) {
	if s.savepoints != nil {
		if err := s.savepoints.Discard(paths...); err != nil {
			slog.Warn("discarding savepoint", "error", err)
		}
		return
	}
	for _, p := range paths {
		if err := instance.Remove(p); err != nil {
			slog.Warn("discarding savepoint", "path", p, "error", err)
		}
	}
}

// displayName labels the instance in listings.
func (s *Session) displayName() string {
	if t := s.model.Def().Title; t != "" {
		return t
	}
	return s.model.Def().ID
}
