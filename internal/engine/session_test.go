package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formwalk/internal/instance"
	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/loader"
	"github.com/roach88/formwalk/internal/model"
	"github.com/roach88/formwalk/internal/savepoint"
	"github.com/roach88/formwalk/internal/testutil"
)

type recorder struct {
	screens []Screen
	updates []ScreenUpdate
	errors  []ErrorKind
	blocked []*ir.FailedConstraint
	exits   []ExitReason
}

func (r *recorder) RequestScreenRedraw(sc Screen)         { r.screens = append(r.screens, sc) }
func (r *recorder) UpdateScreen(u ScreenUpdate)           { r.updates = append(r.updates, u) }
func (r *recorder) ReportError(kind ErrorKind, _ string)  { r.errors = append(r.errors, kind) }
func (r *recorder) ReportBlocked(fc *ir.FailedConstraint) { r.blocked = append(r.blocked, fc) }
func (r *recorder) ReportSessionExited(reason ExitReason) { r.exits = append(r.exits, reason) }
func (r *recorder) last() Screen                          { return r.screens[len(r.screens)-1] }

type memAudit struct{ events []ir.AuditEvent }

func (a *memAudit) AppendAudit(_ context.Context, ev ir.AuditEvent) error {
	a.events = append(a.events, ev)
	return nil
}

func (a *memAudit) kinds() []ir.AuditKind {
	out := make([]ir.AuditKind, len(a.events))
	for i, ev := range a.events {
		out[i] = ev.Kind
	}
	return out
}

type memRegistry struct{ recs []ir.InstanceRecord }

func (r *memRegistry) UpsertInstance(_ context.Context, rec ir.InstanceRecord) error {
	r.recs = append(r.recs, rec)
	return nil
}

type fixture struct {
	s     *Session
	rec   *recorder
	audit *memAudit
	reg   *memRegistry
	form  *loader.Form
	sp    *savepoint.Manager
}

var towns = testutil.StaticChoices{"towns": {
	{Value: "n", Label: "North"},
	{Value: "s", Label: "South"},
}}

func startSavepoints(t *testing.T) *savepoint.Manager {
	t.Helper()
	sp := savepoint.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sp.Run(ctx)
	}()
	t.Cleanup(func() {
		sp.Close()
		cancel()
		<-done
	})
	return sp
}

func newFixture(t *testing.T, def *ir.FormDef, settings Settings) fixture {
	t.Helper()
	m, err := model.New(def, model.WithChoiceSource(towns), model.WithInstanceID("uuid:test"))
	require.NoError(t, err)

	dir := t.TempDir()
	formPath := filepath.Join(dir, "forms", def.ID+".cue")
	cacheDir := filepath.Join(dir, "cache")
	instPath := instance.NewInstancePath(filepath.Join(dir, "instances"), formPath, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	f := &loader.Form{
		Def:           def,
		Model:         m,
		FormHash:      ir.MustFormHash(def),
		FormPath:      formPath,
		InstancePath:  instPath,
		SavepointPath: instance.SavepointPath(cacheDir, formPath, instPath),
		IndexPath:     instance.IndexPath(cacheDir, formPath, instPath),
	}

	fx := fixture{rec: &recorder{}, audit: &memAudit{}, reg: &memRegistry{}, form: f, sp: startSavepoints(t)}
	fx.s = New(settings,
		WithRenderer(fx.rec),
		WithReporter(fx.rec),
		WithAuditSink(fx.audit),
		WithRegistry(fx.reg),
		WithSavepoints(fx.sp),
		WithIDGenerator(testutil.NewFixedIDGenerator("session")))
	require.NoError(t, fx.s.Load(context.Background(), f))
	return fx
}

var unlocked = Settings{AllowBackwards: true, ValidateOnSwipe: true}

func idx(s string) ir.FormIndex { return ir.MustParseIndex(s) }

func forward(t *testing.T, s *Session, want Result) {
	t.Helper()
	got, err := s.RequestForward(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got, "at %s", s.CurrentIndex())
}

func TestLoadShowsBeginning(t *testing.T) {
	fx := newFixture(t, testutil.LinearForm(), unlocked)

	assert.Equal(t, "session", fx.s.ID())
	assert.Equal(t, StateAwaitingInput, fx.s.State())
	assert.Equal(t, ir.EventBeginningOfForm, fx.s.CurrentEvent())
	require.Len(t, fx.rec.screens, 1)
	assert.Equal(t, []ir.AuditKind{ir.AuditFormStart}, fx.audit.kinds())

	assert.ErrorIs(t, fx.s.Load(context.Background(), fx.form), ErrAlreadyLoaded)
}

func TestCallsBeforeLoadFail(t *testing.T) {
	s := New(unlocked)
	_, err := s.RequestForward(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.ErrorIs(t, s.SetAnswer(context.Background(), idx("a"), ir.Text("x")), ErrNotLoaded)
}

func TestForwardBlocksOnConstraintAndResumes(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), unlocked)
	s := fx.s

	forward(t, s, ResultMoved)
	assert.Equal(t, idx("a"), s.CurrentIndex())
	require.NoError(t, s.SetAnswer(ctx, idx("a"), ir.Text("x")))
	forward(t, s, ResultMoved)
	assert.Equal(t, idx("b"), s.CurrentIndex())

	require.NoError(t, s.SetAnswer(ctx, idx("b"), ir.Integer(-1)))
	forward(t, s, ResultBlocked)
	assert.Equal(t, StateBlocked, s.State())
	assert.Equal(t, idx("b"), s.CurrentIndex())
	require.Len(t, fx.rec.blocked, 1)
	assert.Equal(t, "must be positive", fx.rec.blocked[0].Message)
	assert.Contains(t, fx.audit.kinds(), ir.AuditConstraintError)

	v, err := fx.form.Model.Answer(idx("b"))
	require.NoError(t, err)
	assert.Nil(t, v, "a failed answer is not applied")

	require.NoError(t, s.SetAnswer(ctx, idx("b"), ir.Integer(5)))
	assert.Equal(t, StateAwaitingInput, s.State())
	forward(t, s, ResultMoved)
	forward(t, s, ResultMoved)
	assert.Equal(t, ir.EventEndOfForm, s.CurrentEvent())
	forward(t, s, ResultStayed)

	v, err = fx.form.Model.Answer(idx("a"))
	require.NoError(t, err)
	assert.Equal(t, ir.Text("x"), v)
}

func TestForwardWithoutValidationAppliesEverything(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), Settings{AllowBackwards: true})
	s := fx.s

	forward(t, s, ResultMoved)
	forward(t, s, ResultMoved)
	require.NoError(t, s.SetAnswer(ctx, idx("b"), ir.Integer(-1)))
	forward(t, s, ResultMoved)
	assert.Equal(t, idx("c"), s.CurrentIndex())

	v, err := fx.form.Model.Answer(idx("b"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(-1), v)
}

func TestForwardThenBackwardReturns(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.HouseholdForm(), unlocked)
	s := fx.s

	forward(t, s, ResultMoved)
	forward(t, s, ResultBlocked)
	assert.Equal(t, ir.RequiredButEmpty, fx.rec.blocked[0].Kind)

	require.NoError(t, s.SetAnswer(ctx, idx("name"), ir.Text("Ada")))
	forward(t, s, ResultMoved)
	start := s.CurrentIndex()
	assert.Equal(t, idx("age"), start)

	forward(t, s, ResultMoved)
	got, err := s.RequestBackward(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultMoved, got)
	assert.Equal(t, start, s.CurrentIndex())
	assert.Equal(t, ir.Backward, fx.rec.last().Direction)

	_, err = s.RequestBackward(ctx)
	require.NoError(t, err)
	assert.Equal(t, idx("name"), s.CurrentIndex())
	got, err = s.RequestBackward(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultStayed, got, "name is the first screen")
}

func TestBackwardLocked(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), Settings{ValidateOnSwipe: true})
	s := fx.s

	forward(t, s, ResultMoved)
	forward(t, s, ResultMoved)
	require.Equal(t, idx("b"), s.CurrentIndex())

	got, err := s.RequestBackward(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultIgnored, got)

	got, err = s.Jump(ctx, idx("a"))
	assert.Equal(t, ResultIgnored, got)
	assert.True(t, IsNavigationLocked(err))
	assert.Contains(t, fx.rec.errors, ErrorNavigationLocked)
	assert.Equal(t, idx("b"), s.CurrentIndex())

	got, err = s.Jump(ctx, idx("c"))
	require.NoError(t, err)
	assert.Equal(t, ResultMoved, got)

	require.NoError(t, fx.sp.Flush(ctx))
	recorded, ok, err := savepoint.ReadLastVisitedIndex(fx.form.IndexPath)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, idx("c"), recorded)
}

func TestJumpIntoFieldListLandsOnScreen(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.FieldListForm(), unlocked)

	_, err := fx.s.Jump(ctx, idx("screen/x"))
	require.NoError(t, err)
	assert.Equal(t, idx("screen"), fx.s.CurrentIndex())
	assert.Equal(t, ir.EventGroup, fx.s.CurrentEvent())
	assert.Contains(t, fx.audit.kinds(), ir.AuditJump)
}

func TestJumpStaleFallsBackToBeginning(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.HouseholdForm(), unlocked)
	forward(t, fx.s, ResultMoved)

	_, err := fx.s.Jump(ctx, idx("members[2]/mname"))
	require.Error(t, err)
	assert.True(t, ir.IsStaleIndex(err))
	assert.Equal(t, []ErrorKind{ErrorStaleIndex}, fx.rec.errors)
	assert.Equal(t, ir.EventBeginningOfForm, fx.s.CurrentEvent())
}

func TestJumpDropsUnsavedAnswers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), unlocked)
	forward(t, fx.s, ResultMoved)

	require.NoError(t, fx.s.SetAnswer(ctx, idx("a"), ir.Text("draft")))
	v, err := fx.s.Answer(idx("a"))
	require.NoError(t, err)
	assert.Equal(t, ir.Text("draft"), v)

	_, err = fx.s.Jump(ctx, idx("c"))
	require.NoError(t, err)
	v, err = fx.form.Model.Answer(idx("a"))
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSetAnswerRejectsOtherScreensAndKinds(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), unlocked)
	assert.Error(t, fx.s.SetAnswer(ctx, idx("a"), ir.Text("x")), "beginning of form shows no questions")
	forward(t, fx.s, ResultMoved)

	assert.Error(t, fx.s.SetAnswer(ctx, idx("c"), ir.Text("x")))
	assert.Error(t, fx.s.SetAnswer(ctx, idx("a"), ir.Integer(3)))
}

func TestFieldListUpdateKeepsTrigger(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.FieldListForm(), unlocked)
	s := fx.s

	forward(t, s, ResultMoved)
	require.Equal(t, idx("screen"), s.CurrentIndex())
	sc, err := s.Screen()
	require.NoError(t, err)
	assert.Len(t, sc.Prompts, 3, "z is not relevant yet")

	require.NoError(t, s.SetAnswer(ctx, idx("screen/x"), ir.Integer(6)))
	require.Len(t, fx.rec.updates, 1)
	u := fx.rec.updates[0]
	assert.Equal(t, idx("screen/x"), u.Trigger)
	for _, r := range u.Plan.Remove {
		assert.NotEqual(t, idx("screen/x"), r.Index, "trigger widget is never rebuilt")
	}
	var inserted []ir.FormIndex
	for _, in := range u.Plan.Insert {
		inserted = append(inserted, in.Question.Index)
	}
	assert.Contains(t, inserted, idx("screen/z"))

	v, err := fx.form.Model.Answer(idx("screen/y"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(12), v)

	sc, err = s.Screen()
	require.NoError(t, err)
	assert.Len(t, sc.Prompts, 4)
	assert.Equal(t, "Double is 12", sc.Prompts[1].Label)
}

func TestRepeatAddAndDelete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.HouseholdForm(), unlocked)
	s := fx.s

	_, err := s.Jump(ctx, idx("members[0]"))
	require.NoError(t, err)
	require.Equal(t, ir.EventPromptNewRepeat, s.CurrentEvent())

	got, err := s.AddRepeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, ResultMoved, got)
	assert.Equal(t, idx("members[0]/mname"), s.CurrentIndex())

	require.NoError(t, s.SetAnswer(ctx, idx("members[0]/mname"), ir.Text("Ann")))
	forward(t, s, ResultMoved)
	assert.Equal(t, idx("members[0]/mage"), s.CurrentIndex())
	forward(t, s, ResultMoved)
	require.Equal(t, idx("members[1]"), s.CurrentIndex())
	require.Equal(t, ir.EventPromptNewRepeat, s.CurrentEvent())

	_, err = s.AddRepeat(ctx)
	require.NoError(t, err)
	assert.Equal(t, idx("members[1]/mname"), s.CurrentIndex())
	cnt, err := fx.form.Model.Answer(idx("member_cnt"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(2), cnt)

	got, err = s.DeleteRepeat(ctx, idx("members[0]"))
	require.NoError(t, err)
	assert.Equal(t, ResultMoved, got)
	assert.Equal(t, idx("members[0]/mname"), s.CurrentIndex())
	cnt, err = fx.form.Model.Answer(idx("member_cnt"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(1), cnt)

	forward(t, s, ResultMoved)
	assert.Equal(t, ir.EventPromptNewRepeat, s.CurrentEvent())
	forward(t, s, ResultMoved)
	assert.Equal(t, idx("member_cnt"), s.CurrentIndex(), "forward at a prompt declines the repeat")

	kinds := fx.audit.kinds()
	assert.Contains(t, kinds, ir.AuditAddRepeat)
	assert.Contains(t, kinds, ir.AuditDeleteRepeat)
	assert.Contains(t, kinds, ir.AuditPromptNewRepeat)

	_, err = s.AddRepeat(ctx)
	assert.Error(t, err, "not at a prompt")
}

func TestDeleteEarlierRepeatKeepsScreen(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.HouseholdForm(), unlocked)
	s := fx.s

	_, err := s.Jump(ctx, idx("members[0]"))
	require.NoError(t, err)
	_, err = s.AddRepeat(ctx)
	require.NoError(t, err)
	_, err = s.Jump(ctx, idx("member_cnt"))
	require.NoError(t, err)

	got, err := s.DeleteRepeat(ctx, idx("members[0]"))
	require.NoError(t, err)
	assert.Equal(t, ResultStayed, got)
	assert.Equal(t, idx("member_cnt"), s.CurrentIndex())
}

func TestFormDesignErrorRetriesOnce(t *testing.T) {
	ctx := context.Background()
	bad := testutil.Question("bad", ir.KindText)
	bad.Relevant = `a + "x" == "y"`
	def := &ir.FormDef{ID: "faulty", Version: "1", Body: []*ir.Node{
		testutil.Question("a", ir.KindInteger),
		bad,
		testutil.Question("c", ir.KindText),
	}}
	fx := newFixture(t, def, unlocked)
	s := fx.s

	forward(t, s, ResultMoved)
	require.NoError(t, s.SetAnswer(ctx, idx("a"), ir.Integer(1)))
	forward(t, s, ResultMoved)

	assert.Equal(t, idx("c"), s.CurrentIndex())
	assert.Equal(t, []ErrorKind{ErrorFormDesign}, fx.rec.errors)
	assert.Contains(t, fx.audit.kinds(), ir.AuditFormDesignError)
}

func TestExternalData(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), unlocked)
	s := fx.s
	forward(t, s, ResultMoved)

	require.NoError(t, s.AwaitExternalData(idx("a")))
	forward(t, s, ResultIgnored)

	require.True(t, s.OnExternalDataReady(idx("c"), ir.Text("wrong")))
	assert.Equal(t, 1, s.Drain(ctx))
	assert.Equal(t, []ErrorKind{ErrorExternalData}, fx.rec.errors)
	_, waiting := s.Waiting()
	assert.True(t, waiting)

	require.True(t, s.OnExternalDataReady(idx("a"), ir.Text("scanned")))
	s.Drain(ctx)
	_, waiting = s.Waiting()
	assert.False(t, waiting)
	v, err := s.Answer(idx("a"))
	require.NoError(t, err)
	assert.Equal(t, ir.Text("scanned"), v)

	forward(t, s, ResultMoved)
	v, err = fx.form.Model.Answer(idx("a"))
	require.NoError(t, err)
	assert.Equal(t, ir.Text("scanned"), v)
}

func TestConfigurationChange(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), unlocked)

	require.True(t, fx.s.OnConfigurationChanged(false, false))
	assert.Equal(t, unlocked, fx.s.Settings(), "applied by the owner only")
	fx.s.Drain(ctx)
	assert.Equal(t, Settings{}, fx.s.Settings())
}

func TestSavepointTracksLatestScreen(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), unlocked)
	s := fx.s

	forward(t, s, ResultMoved)
	require.NoError(t, s.SetAnswer(ctx, idx("a"), ir.Text("one")))
	forward(t, s, ResultMoved)
	require.NoError(t, s.SetAnswer(ctx, idx("b"), ir.Integer(2)))
	forward(t, s, ResultMoved)
	require.NoError(t, fx.sp.Flush(ctx))

	sp, err := savepoint.Load(fx.form.SavepointPath)
	require.NoError(t, err)
	assert.Equal(t, idx("c"), sp.Index)
	a, ok := sp.Data.Find("a")
	require.True(t, ok)
	assert.Equal(t, "one", a.Text)
	b, ok := sp.Data.Find("b")
	require.True(t, ok)
	assert.Equal(t, "2", b.Text)
}

func TestSaveWritesInstanceAndDropsSavepoint(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), unlocked)
	s := fx.s

	forward(t, s, ResultMoved)
	require.NoError(t, s.SetAnswer(ctx, idx("a"), ir.Text("kept")))
	forward(t, s, ResultMoved)
	require.NoError(t, fx.sp.Flush(ctx))
	require.FileExists(t, fx.form.SavepointPath)

	got, err := s.Save(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, ResultStayed, got)
	assert.NoFileExists(t, fx.form.SavepointPath)

	data, index, err := instance.Read(fx.form.InstancePath)
	require.NoError(t, err)
	assert.Nil(t, index)
	a, ok := data.Find("a")
	require.True(t, ok)
	assert.Equal(t, "kept", a.Text)

	require.Len(t, fx.reg.recs, 1)
	rec := fx.reg.recs[0]
	assert.Equal(t, "uuid:test", rec.ID)
	assert.Equal(t, ir.StatusIncomplete, rec.Status)
	assert.Equal(t, fx.form.InstancePath, rec.Path)
	assert.Contains(t, fx.audit.kinds(), ir.AuditFormSave)

	require.NoError(t, s.SetAnswer(ctx, idx("b"), ir.Integer(3)))
	_, err = s.Save(ctx, true)
	require.NoError(t, err)
	require.Len(t, fx.reg.recs, 2)
	assert.Equal(t, ir.StatusComplete, fx.reg.recs[1].Status)
	assert.Greater(t, fx.reg.recs[1].Seq, rec.Seq)
}

func TestFinalizeMovesToFailingQuestion(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.HouseholdForm(), unlocked)

	_, err := fx.s.Jump(ctx, idx("member_cnt"))
	require.NoError(t, err)
	got, err := fx.s.Save(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, ResultBlocked, got)
	assert.Equal(t, StateBlocked, fx.s.State())
	assert.Equal(t, idx("name"), fx.s.CurrentIndex())
	assert.NoFileExists(t, fx.form.InstancePath)
	assert.Empty(t, fx.reg.recs)
}

func TestExitDiscardRemovesSavepoint(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, testutil.LinearForm(), unlocked)
	forward(t, fx.s, ResultMoved)
	require.NoError(t, fx.sp.Flush(ctx))
	require.FileExists(t, fx.form.SavepointPath)

	require.NoError(t, fx.s.Exit(ctx, ExitDiscarded))
	assert.NoFileExists(t, fx.form.SavepointPath)
	assert.Equal(t, StateExited, fx.s.State())
	assert.Equal(t, []ExitReason{ExitDiscarded}, fx.rec.exits)

	_, err := fx.s.RequestForward(ctx)
	assert.ErrorIs(t, err, ErrExited)
	assert.ErrorIs(t, fx.s.Exit(ctx, ExitSaved), ErrExited)
	assert.False(t, fx.s.OnConfigurationChanged(true, true))
}

const linearSrc = `
form: {
	id:      "linear"
	version: "1"
	body: [
		{name: "a", type: "text", label: "A"},
		{name: "b", type: "integer", label: "B"},
		{name: "c", type: "text", label: "C"},
	]
}
`

func TestAbandonedSessionResumesFromSavepoint(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	formPath := filepath.Join(dir, "linear.cue")
	require.NoError(t, os.WriteFile(formPath, []byte(linearSrc), 0o644))
	req := loader.Request{
		FormPath:       formPath,
		InstancesDir:   filepath.Join(dir, "instances"),
		CacheDir:       filepath.Join(dir, "cache"),
		NewID:          func() string { return "one" },
		AllowBackwards: true,
		Owner:          "test",
	}
	ld := loader.New()

	f, err := ld.Load(ctx, req)
	require.NoError(t, err)
	first := New(unlocked, WithSavepoints(startSavepoints(t)))
	require.NoError(t, first.Load(ctx, f))
	forward(t, first, ResultMoved)
	require.NoError(t, first.SetAnswer(ctx, idx("a"), ir.Text("hello")))
	forward(t, first, ResultMoved)
	require.NoError(t, first.Exit(ctx, ExitAbandoned))
	assert.FileExists(t, f.SavepointPath)
	assert.NoFileExists(t, f.InstancePath)

	req.InstancePath = f.InstancePath
	f2, err := ld.Load(ctx, req)
	require.NoError(t, err, "lock released on exit")
	t.Cleanup(func() { _ = f2.Close() })
	assert.Equal(t, loader.OriginSavepoint, f2.Origin)

	audit := &memAudit{}
	second := New(unlocked, WithAuditSink(audit))
	require.NoError(t, second.Load(ctx, f2))
	assert.Equal(t, idx("b"), second.CurrentIndex())
	v, err := second.Answer(idx("a"))
	require.NoError(t, err)
	assert.Equal(t, ir.Text("hello"), v)
	assert.Equal(t, ir.AuditSavepointRestored, audit.events[0].Kind)
	assert.Equal(t, "uuid:one", audit.events[0].InstanceID)
}

func TestRunProcessesPostedCommands(t *testing.T) {
	fx := newFixture(t, testutil.LinearForm(), unlocked)
	s := fx.s
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	seen := make(chan ir.FormIndex, 1)
	require.True(t, s.Post("forward", func(ctx context.Context, s *Session) {
		_, _ = s.RequestForward(ctx)
		seen <- s.CurrentIndex()
	}))
	select {
	case got := <-seen:
		assert.Equal(t, idx("a"), got)
	case <-ctx.Done():
		t.Fatal("posted command never ran")
	}

	s.Stop()
	require.NoError(t, <-errc)
}
