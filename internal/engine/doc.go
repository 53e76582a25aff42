// Package engine implements the navigation orchestrator: the Session that
// ties the stepper, answer store, savepoint manager and field-list
// recalculator together for one form-filling task.
//
// ARCHITECTURE:
//
// Single owner:
// The live form model is mutated in place and has no locking. Exactly one
// goroutine, the owner, calls Session methods. Callbacks arriving on other
// goroutines (external data returned by a capture subsystem, a finished
// background load, configuration changes) are posted onto the session's
// command queue and run by the owner in Run or Drain.
//
// Navigation flow:
//  1. RequestForward / RequestBackward save the current screen
//  2. the stepper moves one screen
//  3. a savepoint of the new position and all answers is scheduled
//  4. the renderer is asked to redraw
//
// Errors never leave the session with a position the model does not agree
// with: after any failure the session re-reads the current index from the
// stepper, falling back to the beginning of the form.
//
// Logical clock:
// Audit events are stamped with a monotonic seq from Clock.Next(), never
// with wall-clock time.
package engine
