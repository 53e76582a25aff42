package model

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formwalk/internal/ir"
	"github.com/roach88/formwalk/internal/testutil"
)

func idx(s string) ir.FormIndex { return ir.MustParseIndex(s) }

func newHousehold(t *testing.T) *Model {
	t.Helper()
	m, err := New(testutil.HouseholdForm())
	require.NoError(t, err)
	return m
}

// walkForward collects every position from the beginning to the end.
func walkForward(t *testing.T, m *Model) []string {
	t.Helper()
	var out []string
	cur := ir.BeginningOfForm
	for {
		next, err := m.Next(cur, true)
		require.NoError(t, err)
		if next.IsEnd() {
			return out
		}
		out = append(out, next.String())
		cur = next
	}
}

func TestNextSkipsIrrelevant(t *testing.T) {
	m := newHousehold(t)
	assert.Equal(t, []string{
		"name", "age", "consent",
		"intro", "intro/note_hh",
		"members[0]",
		"member_cnt",
	}, walkForward(t, m))
}

func TestNextAfterRelevanceChange(t *testing.T) {
	m := newHousehold(t)
	require.NoError(t, m.SetAnswer(idx("consent"), ir.Selection("yes")))

	assert.Equal(t, []string{
		"name", "age", "consent",
		"contact", "contact/phone", "contact/email",
		"intro", "intro/note_hh",
		"members[0]",
		"member_cnt",
	}, walkForward(t, m))
}

func TestNextWithoutDescend(t *testing.T) {
	m := newHousehold(t)
	next, err := m.Next(idx("intro"), false)
	require.NoError(t, err)
	assert.Equal(t, idx("members[0]"), next)
}

func TestPrevIsReverseOfNext(t *testing.T) {
	m := newHousehold(t)
	require.NoError(t, m.SetAnswer(idx("consent"), ir.Selection("yes")))
	_, err := m.AddRepeat(idx("members[0]"))
	require.NoError(t, err)

	forward := walkForward(t, m)

	var backward []string
	cur := ir.EndOfForm
	for {
		prev, err := m.Prev(cur)
		require.NoError(t, err)
		if prev.IsBeginning() {
			break
		}
		backward = append([]string{prev.String()}, backward...)
		cur = prev
	}
	assert.Equal(t, forward, backward)
}

func TestEventAt(t *testing.T) {
	m := newHousehold(t)
	tests := []struct {
		at   ir.FormIndex
		want ir.Event
	}{
		{ir.BeginningOfForm, ir.EventBeginningOfForm},
		{ir.EndOfForm, ir.EventEndOfForm},
		{idx("name"), ir.EventQuestion},
		{idx("intro"), ir.EventGroup},
		{idx("members[0]"), ir.EventPromptNewRepeat},
	}
	for _, tt := range tests {
		ev, err := m.EventAt(tt.at)
		require.NoError(t, err)
		assert.Equal(t, tt.want, ev, tt.at.String())
	}

	_, err := m.EventAt(idx("members[1]"))
	assert.True(t, ir.IsStaleIndex(err))
	_, err = m.EventAt(idx("nope"))
	assert.True(t, ir.IsStaleIndex(err))
}

func TestRepeatLifecycle(t *testing.T) {
	m := newHousehold(t)

	for i := 0; i < 3; i++ {
		at := ir.BeginningOfForm.Child("members", i)
		assert.True(t, m.CanAddRepeat(at))
		got, err := m.AddRepeat(at)
		require.NoError(t, err)
		assert.Equal(t, at, got)

		ev, err := m.EventAt(at)
		require.NoError(t, err)
		assert.Equal(t, ir.EventRepeat, ev)
	}

	ev, err := m.EventAt(idx("members[3]"))
	require.NoError(t, err)
	assert.Equal(t, ir.EventRepeatJuncture, ev)
	_, err = m.AddRepeat(idx("members[3]"))
	assert.Error(t, err)

	cnt, err := m.Answer(idx("member_cnt"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(3), cnt)

	require.NoError(t, m.SetAnswer(idx("members[2]/mname"), ir.Text("Cy")))
	require.NoError(t, m.RemoveRepeat(idx("members[1]")))

	n, err := m.RepeatCount(idx("members[0]"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	moved, err := m.Answer(idx("members[1]/mname"))
	require.NoError(t, err)
	assert.Equal(t, ir.Text("Cy"), moved)
	assert.False(t, m.Exists(idx("members[2]/mname")))

	cnt, err = m.Answer(idx("member_cnt"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(2), cnt)
}

func TestRepeatScopeUsesCurrentInstance(t *testing.T) {
	m := newHousehold(t)
	for i := 0; i < 2; i++ {
		_, err := m.AddRepeat(ir.BeginningOfForm.Child("members", i))
		require.NoError(t, err)
	}
	require.NoError(t, m.SetAnswer(idx("members[1]/mname"), ir.Text("Bo")))

	ok, err := m.IsRelevant(idx("members[0]/mage"))
	require.NoError(t, err)
	assert.False(t, ok, "mage of the unnamed first member stays hidden")

	ok, err = m.IsRelevant(idx("members[1]/mage"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCheck(t *testing.T) {
	m := newHousehold(t)

	fc, err := m.Check(idx("name"), nil)
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Equal(t, ir.RequiredButEmpty, fc.Kind)
	assert.Equal(t, idx("name"), fc.Index)

	fc, err = m.Check(idx("age"), ir.Integer(-1))
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Equal(t, ir.ConstraintViolated, fc.Kind)
	assert.Equal(t, "age out of range", fc.Message)

	fc, err = m.Check(idx("age"), ir.Integer(40))
	require.NoError(t, err)
	assert.Nil(t, fc)

	fc, err = m.Check(idx("age"), nil)
	require.NoError(t, err)
	assert.Nil(t, fc, "empty optional answers are not constrained")

	ans, err := m.Answer(idx("age"))
	require.NoError(t, err)
	assert.Nil(t, ans, "Check never stores")
}

func TestSetAnswerRejectsWrongKind(t *testing.T) {
	m := newHousehold(t)
	assert.Error(t, m.SetAnswer(idx("age"), ir.Text("forty")))
	assert.Error(t, m.SetAnswer(idx("intro"), ir.Text("x")))
	assert.True(t, ir.IsStaleIndex(m.SetAnswer(idx("ghost"), ir.Text("x"))))
}

func TestPromptInterpolatesLabel(t *testing.T) {
	m := newHousehold(t)
	require.NoError(t, m.SetAnswer(idx("name"), ir.Text("Ada")))

	p, err := m.Prompt(idx("intro/note_hh"))
	require.NoError(t, err)
	assert.Equal(t, "Household of Ada", p.Label)
	assert.True(t, p.ReadOnly)
	assert.Equal(t, ir.KindNote, p.Kind)

	p, err = m.Prompt(idx("consent"))
	require.NoError(t, err)
	assert.Len(t, p.Choices, 2)
	assert.False(t, p.Dynamic)
}

func TestValidateFindsFirstFailure(t *testing.T) {
	m := newHousehold(t)
	fc, err := m.Validate()
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Equal(t, idx("name"), fc.Index)

	require.NoError(t, m.SetAnswer(idx("name"), ir.Text("Ada")))
	require.NoError(t, m.SetAnswer(idx("age"), ir.Integer(200)))
	fc, err = m.Validate()
	require.NoError(t, err)
	require.NotNil(t, fc)
	assert.Equal(t, idx("age"), fc.Index)

	require.NoError(t, m.SetAnswer(idx("age"), ir.Integer(20)))
	fc, err = m.Validate()
	require.NoError(t, err)
	assert.Nil(t, fc)
}

func TestFieldListHelpers(t *testing.T) {
	m := newHousehold(t)
	require.NoError(t, m.SetAnswer(idx("consent"), ir.Selection("yes")))

	assert.True(t, m.IsFieldList(idx("contact")))
	assert.False(t, m.IsFieldList(idx("intro")))

	root, ok := m.FieldListRoot(idx("contact/email"))
	require.True(t, ok)
	assert.Equal(t, idx("contact"), root)
	_, ok = m.FieldListRoot(idx("intro/note_hh"))
	assert.False(t, ok)

	qs, err := m.ScreenQuestions(idx("contact"))
	require.NoError(t, err)
	assert.Equal(t, []ir.FormIndex{idx("contact/phone"), idx("contact/email")}, qs)

	qs, err = m.ScreenQuestions(idx("age"))
	require.NoError(t, err)
	assert.Equal(t, []ir.FormIndex{idx("age")}, qs)
}

func TestCompare(t *testing.T) {
	m := newHousehold(t)
	ordered := []ir.FormIndex{
		ir.BeginningOfForm,
		idx("name"),
		idx("contact"),
		idx("contact/phone"),
		idx("contact/email"),
		idx("members[0]"),
		idx("members[0]/mage"),
		idx("members[1]"),
		idx("member_cnt"),
		ir.EndOfForm,
	}
	for i := range ordered {
		for j := range ordered {
			got := m.Compare(ordered[i], ordered[j])
			switch {
			case i < j:
				assert.Negative(t, got, "%s < %s", ordered[i], ordered[j])
			case i > j:
				assert.Positive(t, got, "%s > %s", ordered[i], ordered[j])
			default:
				assert.Zero(t, got)
			}
		}
	}
}

func TestSnapshotImportRoundTrip(t *testing.T) {
	m := newHousehold(t)
	m.SetInstanceID("uuid:1")
	require.NoError(t, m.SetAnswer(idx("name"), ir.Text("Ada")))
	require.NoError(t, m.SetAnswer(idx("consent"), ir.Selection("yes")))
	require.NoError(t, m.SetAnswer(idx("contact/phone"), ir.Text("555")))
	for i := 0; i < 2; i++ {
		_, err := m.AddRepeat(ir.BeginningOfForm.Child("members", i))
		require.NoError(t, err)
	}
	require.NoError(t, m.SetAnswer(idx("members[1]/mname"), ir.Text("Bo")))
	require.NoError(t, m.SetAnswer(idx("members[1]/mage"), ir.Integer(7)))

	snap := m.Snapshot()
	assert.Equal(t, "household", snap.FormID)
	assert.Equal(t, "uuid:1", snap.InstanceID)
	phone, ok := snap.Find("contact", "phone")
	require.True(t, ok)
	assert.Equal(t, "555", phone.Text)

	fresh := newHousehold(t)
	require.NoError(t, fresh.Import(snap))
	assert.Equal(t, snap, fresh.Snapshot())
	assert.Equal(t, "uuid:1", fresh.InstanceID())

	mage, err := fresh.Answer(idx("members[1]/mage"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(7), mage)
}

func TestImportRejectsOtherForm(t *testing.T) {
	m := newHousehold(t)
	assert.Error(t, m.Import(&ir.InstanceData{FormID: "other"}))
	assert.Error(t, m.Import(&ir.InstanceData{Nodes: []ir.DataNode{{Name: "age", Text: "old"}}}))
}

func TestCalculatedValuesAndDynamicChoices(t *testing.T) {
	towns := testutil.StaticChoices{"towns": {{Value: "t1", Label: "Town 1"}}}
	m, err := New(testutil.FieldListForm(), WithChoiceSource(towns))
	require.NoError(t, err)

	require.NoError(t, m.SetAnswer(idx("screen/x"), ir.Integer(4)))
	y, err := m.Answer(idx("screen/y"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(8), y)
	assert.True(t, m.IsReadOnly(idx("screen/y")))

	p, err := m.Prompt(idx("screen/y"))
	require.NoError(t, err)
	assert.Equal(t, "Double is 8", p.Label)

	p, err = m.Prompt(idx("screen/town"))
	require.NoError(t, err)
	assert.True(t, p.Dynamic)
	assert.Equal(t, towns["towns"], p.Choices)

	require.NoError(t, m.SetAnswer(idx("screen/x"), nil))
	y, err = m.Answer(idx("screen/y"))
	require.NoError(t, err)
	assert.Nil(t, y, "calculation over an empty answer is empty")
}

func TestChoiceFilter(t *testing.T) {
	town := testutil.Question("town", ir.KindSelectOne)
	town.Choices = []ir.Choice{
		{Value: "a", Attrs: map[string]string{"region": "n"}},
		{Value: "b", Attrs: map[string]string{"region": "s"}},
		{Value: "c", Attrs: map[string]string{"region": "n"}},
	}
	town.ChoiceFilter = `choice.region == region`
	def := &ir.FormDef{ID: "f", Body: []*ir.Node{testutil.Question("region", ir.KindText), town}}

	m, err := New(def)
	require.NoError(t, err)
	require.NoError(t, m.SetAnswer(idx("region"), ir.Text("n")))

	p, err := m.Prompt(idx("town"))
	require.NoError(t, err)
	var values []string
	for _, c := range p.Choices {
		values = append(values, c.Value)
	}
	assert.Equal(t, []string{"a", "c"}, values)
}

func TestMalformedRelevanceIsFormDesignError(t *testing.T) {
	bad := testutil.Question("bad", ir.KindText)
	bad.Relevant = `a + "x" == "y"`
	def := &ir.FormDef{ID: "f", Body: []*ir.Node{
		testutil.Question("a", ir.KindInteger),
		bad,
		testutil.Question("c", ir.KindText),
	}}
	m, err := New(def)
	require.NoError(t, err)
	require.NoError(t, m.SetAnswer(idx("a"), ir.Integer(1)))

	faulted, err := m.Next(idx("a"), true)
	require.Error(t, err)
	assert.True(t, ir.IsFormDesignError(err))
	assert.Equal(t, idx("bad"), faulted)

	next, err := m.Next(faulted, false)
	require.NoError(t, err)
	assert.Equal(t, idx("c"), next)
}

func TestMalformedCalculationSurfacesOnSave(t *testing.T) {
	calc := testutil.Question("calc", ir.KindInteger)
	calc.Calculate = `a + "x"`
	def := &ir.FormDef{ID: "f", Body: []*ir.Node{testutil.Question("a", ir.KindInteger), calc}}

	m, err := New(def)
	require.NoError(t, err, "indeterminate while a is empty")

	err = m.SetAnswer(idx("a"), ir.Integer(1))
	require.Error(t, err)
	var fde *ir.FormDesignError
	require.ErrorAs(t, err, &fde)
	assert.Equal(t, "calculate", fde.Phase)
	assert.Equal(t, idx("calc"), fde.Index)
}

func TestDefaults(t *testing.T) {
	q := testutil.Question("q", ir.KindInteger)
	q.Default = "5"
	m, err := New(&ir.FormDef{ID: "f", Body: []*ir.Node{q}})
	require.NoError(t, err)
	v, err := m.Answer(idx("q"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(5), v)
}

func TestCalculationCycleIsFormDesignError(t *testing.T) {
	a := testutil.Question("a", ir.KindInteger)
	a.Calculate = `[if b == null {0}, if b != null {b + 1}][0]`
	b := testutil.Question("b", ir.KindInteger)
	b.Calculate = `[if a == null {0}, if a != null {a + 1}][0]`
	def := &ir.FormDef{ID: "f", Body: []*ir.Node{testutil.Question("t", ir.KindText), a, b}}

	_, err := New(def)
	require.Error(t, err)
	var fde *ir.FormDesignError
	require.ErrorAs(t, err, &fde)
	assert.Equal(t, "calculate", fde.Phase)
	assert.Equal(t, idx("b"), fde.Index)
	assert.ErrorIs(t, err, ErrCalculationDiverges)
}

func TestCalculationSettles(t *testing.T) {
	tests := []struct {
		name  string
		build func() []*ir.Node
		set   string
		check string
		want  ir.Value
	}{
		{
			name: "reads its own value",
			build: func() []*ir.Node {
				c := testutil.Question("c", ir.KindInteger)
				c.Calculate = `[if this == null {1}, this][0]`
				return []*ir.Node{testutil.Question("x", ir.KindInteger), c}
			},
			set:   "x",
			check: "c",
			want:  ir.Integer(1),
		},
		{
			name: "chain longer than the base pass count",
			build: func() []*ir.Node {
				// q0 reads q1, ..., q9 reads x; each pass settles one link
				var body []*ir.Node
				for i := 0; i < 10; i++ {
					q := testutil.Question(fmt.Sprintf("q%d", i), ir.KindInteger)
					if i < 9 {
						q.Calculate = fmt.Sprintf("q%d + 1", i+1)
					} else {
						q.Calculate = "x"
					}
					body = append(body, q)
				}
				return append(body, testutil.Question("x", ir.KindInteger))
			},
			set:   "x",
			check: "q0",
			want:  ir.Integer(10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := New(&ir.FormDef{ID: "f", Body: tt.build()})
			require.NoError(t, err)
			require.NoError(t, m.SetAnswer(idx(tt.set), ir.Integer(1)))

			v, err := m.Answer(idx(tt.check))
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}
}

func TestCoerceInteger(t *testing.T) {
	tests := []struct {
		name    string
		out     any
		want    ir.Value
		wantErr bool
	}{
		{"int", int64(7), ir.Integer(7), false},
		{"integral float", 4.0, ir.Integer(4), false},
		{"negative integral float", -3.0, ir.Integer(-3), false},
		{"fraction", 2.7, nil, true},
		{"too large", 1e19, nil, true},
		{"too small", -1e19, nil, true},
		{"infinite", math.Inf(1), nil, true},
		{"nan", math.NaN(), nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := coerce(ir.KindInteger, tt.out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFractionalCalculationForIntegerQuestion(t *testing.T) {
	half := testutil.Question("half", ir.KindInteger)
	half.Calculate = "x / 2"
	m, err := New(&ir.FormDef{ID: "f", Body: []*ir.Node{testutil.Question("x", ir.KindInteger), half}})
	require.NoError(t, err)

	require.NoError(t, m.SetAnswer(idx("x"), ir.Integer(4)))
	v, err := m.Answer(idx("half"))
	require.NoError(t, err)
	assert.Equal(t, ir.Integer(2), v)

	err = m.SetAnswer(idx("x"), ir.Integer(5))
	var fde *ir.FormDesignError
	require.ErrorAs(t, err, &fde)
	assert.Equal(t, "calculate", fde.Phase)
	assert.Equal(t, idx("half"), fde.Index)
}
