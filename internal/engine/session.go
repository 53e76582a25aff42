package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/formwalk/internal/answers"
	"github.com/roach88/formwalk/internal/fieldlist"
	"github.com/roach88/formwalk/internal/hierarchy"
	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/loader"
	"github.com/roach88/formwalk/internal/model"
	"github.com/roach88/formwalk/internal/savepoint"
	"github.com/roach88/formwalk/internal/stepper"
)

// State is the orchestrator state.
type State int

const (
	StateLoading State = iota
	StateAwaitingInput
	StateSaving
	StateBlocked
	StateExited
)

var stateNames = [...]string{
	StateLoading:       "loading",
	StateAwaitingInput: "awaiting_input",
	StateSaving:        "saving",
	StateBlocked:       "blocked",
	StateExited:        "exited",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Result tells the caller what a request did.
type Result int

const (
	// ResultMoved means the session is on a different screen.
	ResultMoved Result = iota
	// ResultStayed means the request completed without moving.
	ResultStayed
	// ResultBlocked means a failed constraint stopped the request.
	ResultBlocked
	// ResultIgnored means the request was not acted on.
	ResultIgnored
)

func (r Result) String() string {
	switch r {
	case ResultMoved:
		return "moved"
	case ResultStayed:
		return "stayed"
	case ResultBlocked:
		return "blocked"
	case ResultIgnored:
		return "ignored"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// Settings are the navigation settings that can change during a session.
type Settings struct {
	AllowBackwards  bool
	ValidateOnSwipe bool
}

// Option configures a Session.
type Option func(*Session)

// WithRenderer sets the screen renderer.
func WithRenderer(r Renderer) Option {
	return func(s *Session) { s.renderer = r }
}

// WithReporter sets the receiver of errors, blocks and exits.
func WithReporter(r Reporter) Option {
	return func(s *Session) { s.reporter = r }
}

// WithAuditSink records navigation audit events.
func WithAuditSink(a AuditSink) Option {
	return func(s *Session) { s.audit = a }
}

// WithRegistry records saved instances.
func WithRegistry(r InstanceRegistry) Option {
	return func(s *Session) { s.registry = r }
}

// WithSavepoints enables background savepoints. The manager's worker must
// be running.
func WithSavepoints(m *savepoint.Manager) Option {
	return func(s *Session) { s.savepoints = m }
}

// WithClock sets the logical clock.
func WithClock(c *Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithIDGenerator sets the generator of the session identifier.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Session) { s.ids = g }
}

// Session is one form-filling task. See the package documentation for the
// ownership rules.
type Session struct {
	id       string
	settings Settings
	queue    *commandQueue

	renderer   Renderer
	reporter   Reporter
	audit      AuditSink
	registry   InstanceRegistry
	savepoints *savepoint.Manager
	clock      *Clock
	ids        IDGenerator

	form    *loader.Form
	model   *model.Model
	stepper *stepper.Stepper
	answers *answers.Store
	recalc  *fieldlist.Recalculator

	state     State
	blocked   *ir.FailedConstraint
	direction ir.Direction
	draft     map[ir.FormIndex]ir.Value
	waiting   *ir.FormIndex
}

// New creates a session waiting for its form.
func New(settings Settings, opts ...Option) *Session {
	s := &Session{
		settings: settings,
		queue:    newCommandQueue(),
		renderer: nopRenderer{},
		reporter: nopReporter{},
		clock:    NewClock(),
		ids:      UUIDv7Generator{},
		draft:    make(map[ir.FormIndex]ir.Value),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.id = s.ids.Generate()
	return s
}

// ID identifies the session.
func (s *Session) ID() string { return s.id }

// State returns the orchestrator state.
func (s *Session) State() State { return s.state }

// Blocked returns the constraint blocking navigation, if any.
func (s *Session) Blocked() *ir.FailedConstraint { return s.blocked }

// Settings returns the current navigation settings.
func (s *Session) Settings() Settings { return s.settings }

// Form returns the loaded form, or nil.
func (s *Session) Form() *loader.Form { return s.form }

// CurrentIndex returns the index of the current screen.
func (s *Session) CurrentIndex() ir.FormIndex {
	if s.stepper == nil {
		return ir.BeginningOfForm
	}
	return s.stepper.ScreenIndex()
}

// CurrentEvent returns the event of the current screen.
func (s *Session) CurrentEvent() ir.Event {
	if s.stepper == nil {
		return ir.EventBeginningOfForm
	}
	if ev, err := s.model.EventAt(s.stepper.ScreenIndex()); err == nil {
		return ev
	}
	return s.stepper.CurrentEvent()
}

// Waiting returns the index waiting for external data.
func (s *Session) Waiting() (ir.FormIndex, bool) {
	if s.waiting == nil {
		return ir.FormIndex{}, false
	}
	return *s.waiting, true
}

// Answer returns the value shown for idx: an unsaved screen answer if there
// is one, else the model's.
func (s *Session) Answer(idx ir.FormIndex) (ir.Value, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if v, ok := s.draft[idx]; ok {
		return v, nil
	}
	return s.model.Answer(idx)
}

// Snapshot returns a detached copy of every saved answer.
func (s *Session) Snapshot() (*ir.InstanceData, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.model.Snapshot(), nil
}

// Hierarchy outlines the form for non-linear jumps.
func (s *Session) Hierarchy() (*hierarchy.Arena, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return hierarchy.Build(s.model, s.stepper.ScreenIndex())
}

// Screen describes the current screen.
func (s *Session) Screen() (Screen, error) {
	if err := s.ready(); err != nil {
		return Screen{}, err
	}
	idx := s.stepper.ScreenIndex()
	ev, err := s.model.EventAt(idx)
	if err != nil {
		return Screen{}, err
	}
	sc := Screen{Event: ev, Index: idx, Direction: s.direction}
	switch ev {
	case ir.EventQuestion, ir.EventGroup, ir.EventRepeat:
		qs, err := s.model.ScreenQuestions(idx)
		if err != nil {
			return sc, err
		}
		if sc.Prompts, err = s.model.Prompts(qs); err != nil {
			return sc, err
		}
		for i := range sc.Prompts {
			if v, ok := s.draft[sc.Prompts[i].Index]; ok {
				sc.Prompts[i].Answer = v
			}
		}
		sc.Label = s.model.Label(idx)
	case ir.EventPromptNewRepeat, ir.EventRepeatJuncture:
		sc.Label = s.model.Label(idx)
	}
	return sc, nil
}

func (s *Session) ready() error {
	switch s.state {
	case StateLoading:
		return ErrNotLoaded
	case StateExited:
		return ErrExited
	}
	return nil
}

// Load takes ownership of a loaded form and shows its first screen: the
// recovered or recorded index when there is one.
func (s *Session) Load(ctx context.Context, f *loader.Form) error {
	switch s.state {
	case StateLoading:
	case StateExited:
		return ErrExited
	default:
		return ErrAlreadyLoaded
	}
	s.form = f
	s.model = f.Model
	s.stepper = stepper.New(f.Model)
	s.answers = answers.New(f.Model)
	s.recalc = fieldlist.NewRecalculator(f.Model)
	s.state = StateAwaitingInput

	kind := ir.AuditFormStart
	switch f.Origin {
	case loader.OriginInstance:
		kind = ir.AuditFormResume
	case loader.OriginSavepoint:
		kind = ir.AuditSavepointRestored
	}
	s.record(ctx, kind, f.StartIndex, f.Origin.String())
	slog.Info("session loaded",
		"session", s.id,
		"form", f.Def.ID,
		"instance", f.InstancePath,
		"origin", f.Origin.String())

	if f.StartIndex.IsBeginning() {
		s.redraw()
		return nil
	}
	if _, err := s.stepper.JumpToIndex(f.StartIndex); err != nil {
		s.fail(ErrorStaleIndex, f.StartIndex, err)
		s.resync()
		s.redraw()
		return nil
	}
	s.settle(ctx, false)
	return nil
}

// instanceID is the identifier stamped on audit events.
func (s *Session) instanceID() string {
	if s.model == nil {
		return ""
	}
	return s.model.InstanceID()
}

func (s *Session) record(ctx context.Context, kind ir.AuditKind, idx ir.FormIndex, detail string) {
	if s.audit == nil {
		return
	}
	ev := ir.AuditEvent{
		InstanceID: s.instanceID(),
		Seq:        s.clock.Next(),
		Kind:       kind,
		Index:      idx,
		Detail:     detail,
	}
	if err := s.audit.AppendAudit(ctx, ev); err != nil {
		slog.Warn("audit append failed", "kind", string(kind), "error", err)
	}
}

// fail reports a non-fatal error and returns it as a SessionError.
func (s *Session) fail(kind ErrorKind, idx ir.FormIndex, err error) *SessionError {
	serr := &SessionError{Kind: kind, Index: idx, Err: err}
	slog.Error("session error", "session", s.id, "kind", string(kind), "index", idx.String(), "error", err)
	s.reporter.ReportError(kind, serr.Error())
	return serr
}

// resync re-reads the position from the stepper, falling back to the
// beginning of the form when it no longer resolves.
func (s *Session) resync() {
	if _, err := s.stepper.Refresh(); err != nil {
		slog.Warn("position lost, returning to beginning", "index", s.stepper.CurrentIndex().String(), "error", err)
		_, _ = s.stepper.JumpToIndex(ir.BeginningOfForm)
	}
}

func (s *Session) redraw() {
	sc, err := s.Screen()
	if err != nil {
		if ir.IsFormDesignError(err) {
			s.fail(ErrorFormDesign, sc.Index, err)
		} else {
			slog.Warn("screen unavailable", "error", err)
		}
	}
	s.renderer.RequestScreenRedraw(sc)
}
