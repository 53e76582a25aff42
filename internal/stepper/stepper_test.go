package stepper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/model"
	"github.com/roach88/formwalk/internal/testutil"
)

func idx(s string) ir.FormIndex { return ir.MustParseIndex(s) }

func newModel(t *testing.T, def *ir.FormDef) *model.Model {
	t.Helper()
	m, err := model.New(def)
	require.NoError(t, err)
	return m
}

func screensForward(t *testing.T, s *Stepper) []string {
	t.Helper()
	var out []string
	for {
		ev, err := s.StepToNextScreenEvent()
		require.NoError(t, err)
		if ev == ir.EventEndOfForm {
			return out
		}
		out = append(out, ev.String()+" "+s.CurrentIndex().String())
	}
}

func screensBackward(t *testing.T, s *Stepper) []string {
	t.Helper()
	var out []string
	for {
		ev, err := s.StepToPreviousScreenEvent()
		require.NoError(t, err)
		if ev == ir.EventBeginningOfForm {
			return out
		}
		out = append([]string{ev.String() + " " + s.CurrentIndex().String()}, out...)
	}
}

func TestScreensForward(t *testing.T) {
	m := newModel(t, testutil.HouseholdForm())
	require.NoError(t, m.SetAnswer(idx("consent"), ir.Selection("yes")))
	s := New(m)

	assert.Equal(t, []string{
		"question name",
		"question age",
		"question consent",
		"group contact",
		"question intro/note_hh",
		"prompt_new_repeat members[0]",
		"question member_cnt",
	}, screensForward(t, s))
	assert.Equal(t, ir.EventEndOfForm, s.CurrentEvent())
}

func TestScreensBackwardSkipPrompts(t *testing.T) {
	m := newModel(t, testutil.HouseholdForm())
	require.NoError(t, m.SetAnswer(idx("consent"), ir.Selection("yes")))
	_, err := m.AddRepeat(idx("members[0]"))
	require.NoError(t, err)
	s := New(m)
	_, err = s.JumpToIndex(ir.EndOfForm)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"question name",
		"question age",
		"question consent",
		"group contact",
		"question intro/note_hh",
		"question members[0]/mname",
		"question member_cnt",
	}, screensBackward(t, s))
}

func TestForwardLeavesFieldListFromInside(t *testing.T) {
	m := newModel(t, testutil.HouseholdForm())
	require.NoError(t, m.SetAnswer(idx("consent"), ir.Selection("yes")))
	s := New(m)

	_, err := s.JumpToIndex(idx("contact/phone"))
	require.NoError(t, err)
	assert.Equal(t, idx("contact"), s.ScreenIndex())

	ev, err := s.StepToNextScreenEvent()
	require.NoError(t, err)
	assert.Equal(t, ir.EventQuestion, ev)
	assert.Equal(t, idx("intro/note_hh"), s.CurrentIndex())
}

func TestEmptyFieldListIsSkipped(t *testing.T) {
	z := testutil.Question("z", ir.KindText)
	z.Relevant = "a == 1"
	def := &ir.FormDef{ID: "f", Body: []*ir.Node{
		testutil.Question("a", ir.KindInteger),
		testutil.Group("fl", true, z),
		testutil.Question("b", ir.KindText),
	}}
	s := New(newModel(t, def))

	assert.Equal(t, []string{"question a", "question b"}, screensForward(t, s))
	assert.Equal(t, []string{"question a", "question b"}, screensBackward(t, s))
}

func TestRepeatJunctureIsNotAScreen(t *testing.T) {
	def := &ir.FormDef{ID: "f", Body: []*ir.Node{
		testutil.Repeat("r", 1, testutil.Question("q", ir.KindText)),
		testutil.Question("after", ir.KindText),
	}}
	m := newModel(t, def)
	_, err := m.AddRepeat(idx("r[0]"))
	require.NoError(t, err)

	assert.Equal(t, []string{"question r[0]/q", "question after"}, screensForward(t, New(m)))
}

func TestRawStepping(t *testing.T) {
	m := newModel(t, testutil.HouseholdForm())
	s := New(m)

	var seen []string
	for {
		ev, err := s.StepToNextEvent()
		require.NoError(t, err)
		if ev == ir.EventEndOfForm {
			break
		}
		seen = append(seen, s.CurrentIndex().String())
	}
	assert.Contains(t, seen, "intro")
	assert.Contains(t, seen, "intro/note_hh")

	ev, err := s.StepToPreviousEvent()
	require.NoError(t, err)
	assert.Equal(t, ir.EventQuestion, ev)
	assert.Equal(t, idx("member_cnt"), s.CurrentIndex())
}

func TestJumpToIndex(t *testing.T) {
	m := newModel(t, testutil.HouseholdForm())
	s := New(m)

	ev, err := s.JumpToIndex(idx("intro"))
	require.NoError(t, err)
	assert.Equal(t, ir.EventGroup, ev)

	_, err = s.JumpToIndex(idx("members[2]"))
	require.Error(t, err)
	assert.True(t, ir.IsStaleIndex(err))
	assert.Equal(t, idx("intro"), s.CurrentIndex(), "position unchanged")
}

func TestRefreshAfterRepeatRemoval(t *testing.T) {
	m := newModel(t, testutil.HouseholdForm())
	for i := 0; i < 2; i++ {
		_, err := m.AddRepeat(ir.BeginningOfForm.Child("members", i))
		require.NoError(t, err)
	}
	s := New(m)
	_, err := s.JumpToIndex(idx("members[1]/mname"))
	require.NoError(t, err)

	require.NoError(t, m.RemoveRepeat(idx("members[0]")))
	_, err = s.Refresh()
	assert.True(t, ir.IsStaleIndex(err))
}

func TestIsFirstInForm(t *testing.T) {
	m := newModel(t, testutil.HouseholdForm())
	s := New(m)

	_, err := s.StepToNextScreenEvent()
	require.NoError(t, err)
	assert.True(t, s.IsFirstInForm())
	assert.Equal(t, idx("name"), s.CurrentIndex(), "probe restores position")

	_, err = s.StepToNextScreenEvent()
	require.NoError(t, err)
	assert.False(t, s.IsFirstInForm())
	assert.Equal(t, idx("age"), s.CurrentIndex())
}

func TestIsWithinGroup(t *testing.T) {
	assert.True(t, IsWithinGroup(idx("members[0]"), idx("members[0]/mname")))
	assert.True(t, IsWithinGroup(idx("members[0]/mname"), idx("members[0]")))
	assert.True(t, IsWithinGroup(idx("age"), idx("age")))
	assert.False(t, IsWithinGroup(idx("members[0]"), idx("members[1]/mname")))
	assert.False(t, IsWithinGroup(idx("contact"), idx("consent")))
}

func TestFormDesignErrorRetryStepsPast(t *testing.T) {
	bad := testutil.Question("bad", ir.KindText)
	bad.Relevant = `a + "x" == "y"`
	def := &ir.FormDef{ID: "f", Body: []*ir.Node{
		testutil.Question("a", ir.KindInteger),
		bad,
		testutil.Question("c", ir.KindText),
	}}
	m := newModel(t, def)
	require.NoError(t, m.SetAnswer(idx("a"), ir.Integer(1)))
	s := New(m)
	_, err := s.JumpToIndex(idx("a"))
	require.NoError(t, err)

	_, err = s.StepToNextScreenEvent()
	require.Error(t, err)
	assert.True(t, ir.IsFormDesignError(err))
	assert.Equal(t, idx("bad"), s.CurrentIndex())

	ev, err := s.StepToNextScreenEvent()
	require.NoError(t, err)
	assert.Equal(t, ir.EventQuestion, ev)
	assert.Equal(t, idx("c"), s.CurrentIndex())
}
