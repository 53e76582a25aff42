package harness

import (
	"fmt"
	"strings"
)

// AssertionError is returned when an assertion fails. It carries the
// trace for debugging context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %q", ev.Seq, ev.Kind, ev.Index)
			if ev.Detail != "" {
				fmt.Fprintf(&buf, " %s", ev.Detail)
			}
			buf.WriteByte('\n')
		}
	}
	return buf.String()
}

func evaluateAssertion(res *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(res.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(res.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(res.Trace, a)
	case AssertFinalAnswer:
		return assertFinalAnswer(res, a)
	case AssertFinalState:
		return assertFinalState(res, a)
	case AssertSavepoint:
		return assertSavepoint(res, a)
	default:
		return fmt.Errorf("unknown assertion type: %s", a.Type)
	}
}

func matchEvent(ev TraceEvent, a Assertion) bool {
	if ev.Kind != a.Kind {
		return false
	}
	if a.Index != nil && ev.Index != *a.Index {
		return false
	}
	return a.Detail == "" || strings.Contains(ev.Detail, a.Detail)
}

// assertTraceContains checks the trace holds an event of the kind, with
// the index and detail when given.
func assertTraceContains(trace []TraceEvent, a Assertion) error {
	for _, ev := range trace {
		if matchEvent(ev, a) {
			return nil
		}
	}
	expected := a.Kind
	if a.Index != nil {
		expected += fmt.Sprintf(" at %q", *a.Index)
	}
	if a.Detail != "" {
		expected += fmt.Sprintf(" with detail %q", a.Detail)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks the kinds occur as a subsequence of the trace.
// Intervening events are allowed and a kind may repeat.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, ev := range trace {
		if next < len(a.Kinds) && ev.Kind == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: strings.Join(a.Kinds, " -> "),
		Actual:   fmt.Sprintf("%s not found after %s", a.Kinds[next], strings.Join(a.Kinds[:next], " -> ")),
		Trace:    trace,
	}
}

// assertTraceCount checks the number of events of a kind.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if matchEvent(ev, a) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d %s event(s)", a.Count, a.Kind),
		Actual:   fmt.Sprintf("%d", n),
		Trace:    trace,
	}
}

// assertFinalAnswer compares a saved answer's text. An empty Value
// expects the question to be unanswered.
func assertFinalAnswer(res *Result, a Assertion) error {
	got, ok := res.Answers[*a.Index]
	if got == a.Value {
		return nil
	}
	actual := fmt.Sprintf("%q", got)
	if !ok {
		actual = "unanswered"
	}
	return &AssertionError{
		Type:     AssertFinalAnswer,
		Expected: fmt.Sprintf("%s = %q", *a.Index, a.Value),
		Actual:   actual,
	}
}

func assertFinalState(res *Result, a Assertion) error {
	if res.Status == a.Status {
		return nil
	}
	return &AssertionError{
		Type:     AssertFinalState,
		Expected: "status " + a.Status,
		Actual:   "status " + res.Status,
	}
}

func assertSavepoint(res *Result, a Assertion) error {
	if res.SavepointExists == *a.Exists {
		return nil
	}
	return &AssertionError{
		Type:     AssertSavepoint,
		Expected: fmt.Sprintf("savepoint exists=%t", *a.Exists),
		Actual:   fmt.Sprintf("savepoint exists=%t", res.SavepointExists),
	}
}
