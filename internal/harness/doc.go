// Package harness runs scripted navigation scenarios against real forms.
//
// A scenario drives a session the way an enumerator would and then checks
// the audit trace, the saved answers and the instance registry.
//
// # Scenario Format
//
//	name: household_walk
//	description: "What this scenario validates"
//	form: ../forms/household.cue
//	settings:
//	  allow_backwards: true
//	  constraint_behavior: on_swipe
//	choices:
//	  regions:
//	    - {value: n, label: North}
//	steps:
//	  - action: forward
//	    expect: {result: moved, index: hh_name, event: question}
//	  - action: answer
//	    index: hh_name
//	    value: "Ada"
//	  - action: reopen
//	assertions:
//	  - type: trace_contains
//	    kind: savepoint_restored
//	  - type: final_answer
//	    index: hh_name
//	    value: "Ada"
//
// Step actions are forward, backward, jump, answer, add_repeat,
// delete_repeat, external, save, finalize, exit and reopen. Reopen abandons
// the session as a crash would and loads the instance again.
//
// # Assertion Types
//
//   - trace_contains: an audit event of a kind, optionally at an index
//   - trace_order: audit kinds occur in this order
//   - trace_count: an audit kind occurs exactly N times
//   - final_answer: a question's saved text
//   - final_state: the registry status (incomplete, complete or none)
//   - savepoint: whether a savepoint file remains
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory store, a fixed instance id and a stepped
// wall clock, so two runs of a scenario produce identical snapshots for
// golden comparison.
package harness
