package engine

import (
	"context"

	"github.com/roach88/formwalk/internal/fieldlist"
	"github.com/roach88/formwalk/internal/ir"
)

// Screen is what the renderer draws.
type Screen struct {
	Event     ir.Event
	Index     ir.FormIndex
	Direction ir.Direction
	Label     string
	Prompts   []ir.Prompt
}

// ScreenUpdate is a partial redraw of a field-list screen after a save.
type ScreenUpdate struct {
	Index   ir.FormIndex
	Trigger ir.FormIndex
	Plan    fieldlist.Plan
}

// Renderer draws screens.
type Renderer interface {
	RequestScreenRedraw(Screen)
	UpdateScreen(ScreenUpdate)
}

// ExitReason tells why a session ended.
type ExitReason string

const (
	// ExitSaved follows an explicit save; the savepoint is gone.
	ExitSaved ExitReason = "saved"
	// ExitDiscarded throws away unsaved edits and their savepoint.
	ExitDiscarded ExitReason = "discarded"
	// ExitAbandoned leaves the savepoint for crash-style recovery.
	ExitAbandoned ExitReason = "abandoned"
)

// Reporter receives outcomes for the presentation layer.
type Reporter interface {
	ReportError(kind ErrorKind, message string)
	ReportBlocked(fc *ir.FailedConstraint)
	ReportSessionExited(reason ExitReason)
}

// AuditSink records navigation audit events.
type AuditSink interface {
	AppendAudit(ctx context.Context, ev ir.AuditEvent) error
}

// InstanceRegistry tracks saved instances.
type InstanceRegistry interface {
	UpsertInstance(ctx context.Context, rec ir.InstanceRecord) error
}

type nopRenderer struct{}

func (nopRenderer) RequestScreenRedraw(Screen) {}
func (nopRenderer) UpdateScreen(ScreenUpdate)  {}

type nopReporter struct{}

func (nopReporter) ReportError(ErrorKind, string)      {}
func (nopReporter) ReportBlocked(*ir.FailedConstraint) {}
func (nopReporter) ReportSessionExited(ExitReason)     {}
