package harness

// TraceEvent is one audit record from the scenario's instance.
type TraceEvent struct {
	Seq    int64  `json:"seq"`
	Kind   string `json:"kind"`
	Index  string `json:"index"`
	Detail string `json:"detail,omitempty"`
}

// StepOutcome records what one step did.
type StepOutcome struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"`
	Result string `json:"result"`
	Index  string `json:"index"`
	Event  string `json:"event"`
	State  string `json:"state"`
	Error  string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// InstanceID is the identifier recorded in the audit trace.
	InstanceID string `json:"instance_id"`

	Steps []StepOutcome `json:"steps"`

	// Trace is the audit log in sequence order, across every session the
	// scenario opened.
	Trace []TraceEvent `json:"trace"`

	// Answers maps the index of every answered question to its text.
	Answers map[string]string `json:"answers,omitempty"`

	// Status is the registry status, or "none" if never saved.
	Status string `json:"status"`

	// SavepointExists reports whether a savepoint was left behind.
	SavepointExists bool `json:"savepoint_exists"`

	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Steps:   []StepOutcome{},
		Trace:   []TraceEvent{},
		Answers: make(map[string]string),
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
