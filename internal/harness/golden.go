package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/formwalk/internal/ir"
)

// Snapshot renders a scenario's outcome as canonical JSON: the step
// outcomes, the audit trace, the final answers and the registry status.
// Two runs of the same scenario produce identical bytes.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, st := range result.Steps {
		m := map[string]any{
			"action": st.Action,
			"result": st.Result,
			"index":  st.Index,
			"event":  st.Event,
			"state":  st.State,
		}
		if st.Target != "" {
			m["target"] = st.Target
		}
		if st.Error != "" {
			m["error"] = st.Error
		}
		steps[i] = m
	}

	trace := make([]any, len(result.Trace))
	for i, ev := range result.Trace {
		m := map[string]any{
			"seq":   ev.Seq,
			"kind":  ev.Kind,
			"index": ev.Index,
		}
		if ev.Detail != "" {
			m["detail"] = ev.Detail
		}
		trace[i] = m
	}

	answers := make(map[string]any, len(result.Answers))
	for k, v := range result.Answers {
		answers[k] = v
	}

	return ir.MarshalCanonical(map[string]any{
		"scenario_name":    scenarioName,
		"instance_id":      result.InstanceID,
		"steps":            steps,
		"trace":            trace,
		"answers":          answers,
		"status":           result.Status,
		"savepoint_exists": result.SavepointExists,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden. Extra options override the
// defaults.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...goldie.Option) *Result {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("run %s: %v", scenario.Name, err)
	}
	AssertGolden(t, scenario.Name, result, opts...)
	return result
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result, opts ...goldie.Option) {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		t.Fatalf("snapshot %s: %v", scenarioName, err)
	}
	newGoldie(t, opts...).Assert(t, scenarioName, data)
}

func newGoldie(t *testing.T, opts ...goldie.Option) *goldie.Goldie {
	base := []goldie.Option{
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	}
	return goldie.New(t, append(base, opts...)...)
}
