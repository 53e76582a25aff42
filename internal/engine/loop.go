package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/loader"
)

// Post queues fn to run on the session owner. It is safe from any
// goroutine and returns false once the session has stopped.
func (s *Session) Post(name string, fn func(ctx context.Context, s *Session)) bool {
	return s.queue.Enqueue(command{name: name, run: fn})
}

// OnFormModelLoaded hands a loaded form to the session owner.
func (s *Session) OnFormModelLoaded(f *loader.Form) bool {
	return s.Post("form_loaded", func(ctx context.Context, s *Session) {
		if err := s.Load(ctx, f); err != nil {
			slog.Warn("form load rejected", "error", err)
			if cerr := f.Close(); cerr != nil {
				slog.Warn("releasing instance lock", "error", cerr)
			}
		}
	})
}

// OnExternalDataReady delivers a value from an external producer. The
// value is dropped and reported unless the session is waiting on idx.
func (s *Session) OnExternalDataReady(idx ir.FormIndex, v ir.Value) bool {
	return s.Post("external_data", func(ctx context.Context, s *Session) {
		s.deliverExternal(ctx, idx, v)
	})
}

// OnConfigurationChanged updates the navigation settings.
func (s *Session) OnConfigurationChanged(allowBackwards, validateOnSwipe bool) bool {
	next := Settings{AllowBackwards: allowBackwards, ValidateOnSwipe: validateOnSwipe}
	return s.Post("configuration_changed", func(_ context.Context, s *Session) {
		s.applySettings(next)
	})
}

// Run processes posted commands until ctx is done or the session stops.
// It must be called from exactly one goroutine, and the session must not
// be driven directly while Run is active.
func (s *Session) Run(ctx context.Context) error {
	slog.Info("session starting", "session", s.id)

	for {
		if c, ok := s.queue.TryDequeue(); ok {
			s.exec(ctx, c)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("session stopping: context cancelled", "session", s.id)
			s.queue.Close()
			return ctx.Err()

		case _, open := <-s.queue.Wait():
			if !open && s.queue.Len() == 0 {
				slog.Info("session stopping: queue closed", "session", s.id)
				return nil
			}
		}
	}
}

// Drain runs every queued command on the calling goroutine and returns how
// many ran. Owners that drive the session directly call it to pick up
// posted work.
func (s *Session) Drain(ctx context.Context) int {
	n := 0
	for {
		c, ok := s.queue.TryDequeue()
		if !ok {
			return n
		}
		s.exec(ctx, c)
		n++
	}
}

// Stop closes the command queue. Run returns once queued commands finish.
func (s *Session) Stop() {
	s.queue.Close()
}

func (s *Session) exec(ctx context.Context, c command) {
	slog.Debug("session command", "session", s.id, "command", c.name)
	c.run(ctx, s)
}
