package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/formwalk/internal/engine"
	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/loader"
	"github.com/roach88/formwalk/internal/savepoint"
	"github.com/roach88/formwalk/internal/store"
	"github.com/roach88/formwalk/internal/testutil"
)

// harnessEpoch stamps new instance directories.
var harnessEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Option adjusts a run.
type Option func(*runOptions)

type runOptions struct {
	allowBackwards    bool
	validateOnSwipe   bool
	savepointInterval time.Duration
	storage           *storage
}

// storage names the persistent locations of a run.
type storage struct {
	database     string
	instancesDir string
	cacheDir     string
}

// WithNavigationDefaults sets the navigation settings used where the
// scenario leaves them unset. Without it backwards navigation is allowed
// and constraints are checked on every forward move.
func WithNavigationDefaults(allowBackwards, validateOnSwipe bool) Option {
	return func(o *runOptions) {
		o.allowBackwards = allowBackwards
		o.validateOnSwipe = validateOnSwipe
	}
}

// WithSavepointInterval throttles background savepoint writes. Pending
// writes are flushed before a reopen and before results are collected, so
// the outcome does not depend on the interval.
func WithSavepointInterval(d time.Duration) Option {
	return func(o *runOptions) { o.savepointInterval = d }
}

// WithStorage runs against a SQLite database and instance and cache
// directories that outlive the run, so its instances, audit events and
// abandoned savepoints can be inspected afterwards. Instance ids are
// UUIDv7 and new instance directories are stamped with the wall clock;
// the audit trace keeps its logical sequence. The scenario's choice lists
// are written to the database.
func WithStorage(database, instancesDir, cacheDir string) Option {
	return func(o *runOptions) {
		o.storage = &storage{database: database, instancesDir: instancesDir, cacheDir: cacheDir}
	}
}

// Run executes a scenario in an isolated working directory with an
// in-memory store, a fixed instance id and a stepped wall clock, so the
// trace is identical on every run. WithStorage replaces the first two.
//
// The returned error is for harness failures (the form does not load, the
// store cannot be opened). Scenario failures are reported in Result.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	o := runOptions{allowBackwards: true, validateOnSwipe: true}
	for _, opt := range opts {
		opt(&o)
	}
	settings := engine.Settings{
		AllowBackwards:  scenario.Settings.allowBackwards(o.allowBackwards),
		ValidateOnSwipe: scenario.Settings.validateOnSwipe(o.validateOnSwipe),
	}

	ids := engine.IDGenerator(testutil.NewFixedIDGenerator(scenario.InstanceID))
	clock := testutil.NewStepClock(harnessEpoch, time.Second)
	req := loader.Request{FormPath: scenario.Form, Now: clock.Now}
	database := ":memory:"
	if s := o.storage; s != nil {
		database = s.database
		req.InstancesDir, req.CacheDir = s.instancesDir, s.cacheDir
		req.Now = time.Now
		ids = engine.UUIDv7Generator{}
		if err := os.MkdirAll(filepath.Dir(database), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	} else {
		dir, err := os.MkdirTemp("", "formwalk-harness-*")
		if err != nil {
			return nil, fmt.Errorf("failed to create work dir: %w", err)
		}
		defer os.RemoveAll(dir)
		req.InstancesDir = filepath.Join(dir, "instances")
		req.CacheDir = filepath.Join(dir, "cache")
	}

	st, err := store.Open(database)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	defer st.Close()

	for list, rows := range scenario.Choices {
		choices := make([]ir.Choice, len(rows))
		for i, row := range rows {
			choices[i] = ir.Choice{Value: row.Value, Label: row.Label, Attrs: row.Attrs}
		}
		if err := st.SetChoices(ctx, list, choices); err != nil {
			return nil, fmt.Errorf("seeding choices %s: %w", list, err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	saves := savepoint.New(
		savepoint.WithMinInterval(o.savepointInterval),
		savepoint.WithErrorHandler(func(err error) {
			slog.Warn("harness savepoint failed", "error", err)
		}),
	)
	go func() { _ = saves.Run(ctx) }()
	defer saves.Close()

	req.Choices = st
	req.NewID = ids.Generate
	req.AllowBackwards = settings.AllowBackwards
	req.Owner = "harness"
	r := &runner{
		scenario: scenario,
		settings: settings,
		store:    st,
		loader:   loader.New(),
		saves:    saves,
		reporter: &reporter{},
		result:   NewResult(),
		req:      req,
	}
	defer r.close()

	if err := r.open(ctx); err != nil {
		return nil, err
	}
	r.result.InstanceID = r.form.Model.InstanceID()

	for i, step := range scenario.Steps {
		if err := r.execute(ctx, i, step); err != nil {
			return nil, fmt.Errorf("steps[%d] (%s): %w", i, step.Action, err)
		}
	}

	if err := r.collect(ctx); err != nil {
		return nil, err
	}
	for _, assertion := range scenario.Assertions {
		if err := evaluateAssertion(r.result, assertion); err != nil {
			r.result.AddError(err.Error())
		}
	}
	return r.result, nil
}

type runner struct {
	scenario *Scenario
	settings engine.Settings
	store    *store.Store
	loader   *loader.Loader
	saves    *savepoint.Manager
	reporter *reporter
	req      loader.Request
	form     *loader.Form
	session  *engine.Session
	result   *Result
}

// open loads the form and starts a session on it. The logical clock
// resumes after the instance's last audit event.
func (r *runner) open(ctx context.Context) error {
	f, err := r.loader.Load(ctx, r.req)
	if err != nil {
		return fmt.Errorf("failed to load form: %w", err)
	}
	last, err := r.store.LastSeq(ctx, f.Model.InstanceID())
	if err != nil {
		_ = f.Close()
		return err
	}
	s := engine.New(
		r.settings,
		engine.WithReporter(r.reporter),
		engine.WithAuditSink(r.store),
		engine.WithRegistry(r.store),
		engine.WithSavepoints(r.saves),
		engine.WithClock(engine.NewClockAt(last)),
		engine.WithIDGenerator(testutil.NewFixedIDGenerator("harness")),
	)
	if err := s.Load(ctx, f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to start session: %w", err)
	}
	r.form, r.session = f, s
	r.req.InstancePath = f.InstancePath
	return nil
}

// close releases the session without recording anything further.
func (r *runner) close() {
	if r.session == nil {
		return
	}
	if r.session.State() != engine.StateExited {
		r.session.Stop()
		_ = r.form.Close()
	}
}

func (r *runner) execute(ctx context.Context, i int, step Step) error {
	r.reporter.reset()
	res, err := r.dispatch(ctx, step)
	var fatal fatalError
	if errors.As(err, &fatal) {
		return fatal.err
	}

	outcome := StepOutcome{
		Action: step.Action,
		Target: step.Index,
		Result: res.String(),
		Index:  r.session.CurrentIndex().String(),
		Event:  r.session.CurrentEvent().String(),
		State:  r.session.State().String(),
		Error:  describeError(err, r.reporter),
	}
	r.result.Steps = append(r.result.Steps, outcome)

	if step.Expect != nil {
		for _, msg := range checkExpect(step.Expect, outcome, r.session.Blocked()) {
			r.result.AddError(fmt.Sprintf("steps[%d] (%s): %s", i, step.Action, msg))
		}
	} else if outcome.Error != "" {
		r.result.AddError(fmt.Sprintf("steps[%d] (%s): unexpected error %s", i, step.Action, outcome.Error))
	}
	return nil
}

// dispatch performs one step. Errors the session returns are step
// outcomes; a fatalError aborts the run.
func (r *runner) dispatch(ctx context.Context, step Step) (engine.Result, error) {
	s := r.session
	switch step.Action {
	case ActionForward:
		return s.RequestForward(ctx)
	case ActionBackward:
		return s.RequestBackward(ctx)
	case ActionJump:
		return s.Jump(ctx, ir.MustParseIndex(step.Index))
	case ActionAnswer:
		idx := ir.MustParseIndex(step.Index)
		v, err := r.parseValue(idx, step.Value)
		if err != nil {
			return engine.ResultIgnored, err
		}
		if err := s.SetAnswer(ctx, idx, v); err != nil {
			return engine.ResultIgnored, err
		}
		return engine.ResultStayed, nil
	case ActionAddRepeat:
		return s.AddRepeat(ctx)
	case ActionDeleteRepeat:
		return s.DeleteRepeat(ctx, ir.MustParseIndex(step.Index))
	case ActionExternal:
		idx := ir.MustParseIndex(step.Index)
		v, err := r.parseValue(idx, step.Value)
		if err != nil {
			return engine.ResultIgnored, err
		}
		if err := s.AwaitExternalData(idx); err != nil {
			return engine.ResultIgnored, err
		}
		s.OnExternalDataReady(idx, v)
		s.Drain(ctx)
		return engine.ResultStayed, nil
	case ActionSave:
		return s.Save(ctx, false)
	case ActionFinalize:
		return s.Save(ctx, true)
	case ActionExit:
		if err := s.Exit(ctx, engine.ExitReason(step.Reason)); err != nil {
			return engine.ResultIgnored, err
		}
		return engine.ResultStayed, nil
	case ActionReopen:
		return r.reopen(ctx)
	default:
		return engine.ResultIgnored, fatalError{fmt.Errorf("unknown action %q", step.Action)}
	}
}

// reopen abandons the running session, as if the process had been killed
// after its last savepoint, and loads the instance again.
func (r *runner) reopen(ctx context.Context) (engine.Result, error) {
	if r.session.State() != engine.StateExited {
		if err := r.session.Exit(ctx, engine.ExitAbandoned); err != nil {
			return engine.ResultIgnored, fatalError{err}
		}
	}
	if err := r.saves.Flush(ctx); err != nil {
		return engine.ResultIgnored, fatalError{err}
	}
	if err := r.open(ctx); err != nil {
		return engine.ResultIgnored, fatalError{err}
	}
	return engine.ResultMoved, nil
}

func (r *runner) parseValue(idx ir.FormIndex, text string) (ir.Value, error) {
	node, err := r.form.Model.Node(idx)
	if err != nil {
		return nil, err
	}
	if node.Type != ir.NodeQuestion {
		return nil, fmt.Errorf("%q is not a question", idx)
	}
	return ir.ParseValue(node.Kind, text)
}

// collect reads the final trace, answers and registry state.
func (r *runner) collect(ctx context.Context) error {
	id := r.result.InstanceID
	events, err := r.store.AuditLog(ctx, id, "")
	if err != nil {
		return fmt.Errorf("reading audit log: %w", err)
	}
	for _, ev := range events {
		r.result.Trace = append(r.result.Trace, TraceEvent{
			Seq:    ev.Seq,
			Kind:   string(ev.Kind),
			Index:  ev.Index.String(),
			Detail: ev.Detail,
		})
	}

	collectAnswers(r.result.Answers, "", r.form.Def.Body, r.form.Model.Snapshot().Nodes)

	rec, ok, err := r.store.Instance(ctx, id)
	if err != nil {
		return fmt.Errorf("reading instance record: %w", err)
	}
	r.result.Status = "none"
	if ok {
		r.result.Status = string(rec.Status)
	}

	if err := r.saves.Flush(ctx); err != nil {
		return err
	}
	_, err = os.Stat(r.form.SavepointPath)
	r.result.SavepointExists = err == nil
	return nil
}

// collectAnswers flattens non-empty answers into index strings. Repeat
// instances are numbered in document order.
func collectAnswers(out map[string]string, prefix string, defs []*ir.Node, nodes []ir.DataNode) {
	byName := make(map[string]*ir.Node, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	mult := make(map[string]int)
	for _, n := range nodes {
		def, ok := byName[n.Name]
		if !ok {
			continue
		}
		step := n.Name
		if def.Type == ir.NodeRepeat {
			step = fmt.Sprintf("%s[%d]", n.Name, mult[n.Name])
			mult[n.Name]++
		}
		path := step
		if prefix != "" {
			path = prefix + "/" + step
		}
		if def.IsContainer() {
			collectAnswers(out, path, def.Children, n.Children)
			continue
		}
		if n.Text != "" {
			out[path] = n.Text
		}
	}
}

// fatalError aborts the scenario instead of becoming a step outcome.
type fatalError struct{ err error }

func (e fatalError) Error() string { return e.err.Error() }

// describeError names a step error by its kind when the session
// classified it.
func describeError(err error, rep *reporter) string {
	var se *engine.SessionError
	switch {
	case errors.As(err, &se):
		return string(se.Kind)
	case err != nil:
		return err.Error()
	case len(rep.errors) > 0:
		return string(rep.errors[0])
	}
	return ""
}

func checkExpect(e *Expect, got StepOutcome, blocked *ir.FailedConstraint) []string {
	var msgs []string
	if e.Result != "" && e.Result != got.Result {
		msgs = append(msgs, fmt.Sprintf("result: expected %s, got %s", e.Result, got.Result))
	}
	if e.Index != nil && *e.Index != got.Index {
		msgs = append(msgs, fmt.Sprintf("index: expected %q, got %q", *e.Index, got.Index))
	}
	if e.Event != "" && e.Event != got.Event {
		msgs = append(msgs, fmt.Sprintf("event: expected %s, got %s", e.Event, got.Event))
	}
	if e.State != "" && e.State != got.State {
		msgs = append(msgs, fmt.Sprintf("state: expected %s, got %s", e.State, got.State))
	}
	switch {
	case e.Error == "" && got.Error != "":
		msgs = append(msgs, fmt.Sprintf("unexpected error %s", got.Error))
	case e.Error != "" && !strings.Contains(got.Error, e.Error):
		msgs = append(msgs, fmt.Sprintf("error: expected %q, got %q", e.Error, got.Error))
	}
	if e.Blocked != "" {
		if blocked == nil {
			msgs = append(msgs, fmt.Sprintf("blocked: expected %q, session is not blocked", e.Blocked))
		} else if !strings.Contains(blocked.Message, e.Blocked) {
			msgs = append(msgs, fmt.Sprintf("blocked: expected %q, got %q", e.Blocked, blocked.Message))
		}
	}
	return msgs
}

// reporter collects what the session reports during one step.
type reporter struct {
	errors  []engine.ErrorKind
	blocked []*ir.FailedConstraint
}

func (r *reporter) reset() {
	r.errors = r.errors[:0]
	r.blocked = r.blocked[:0]
}

func (r *reporter) ReportError(kind engine.ErrorKind, _ string) { r.errors = append(r.errors, kind) }
func (r *reporter) ReportBlocked(fc *ir.FailedConstraint)       { r.blocked = append(r.blocked, fc) }
func (r *reporter) ReportSessionExited(engine.ExitReason)       {}
