// Package audit records the structured event trail of every workflow.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/google/uuid"
)

// WorkflowLevel is the step value used for events that are not tied to a step.
const WorkflowLevel = -1

type Repository interface {
	Save(ctx context.Context, e *domain.AuditEntry) error
}

// Logger is passed explicitly to every component that emits audit events.
type Logger struct {
	repo  Repository
	clock core.Clock

	mu   sync.Mutex
	last time.Time
}

func NewLogger(repo Repository, clock core.Clock) *Logger {
	return &Logger{repo: repo, clock: clock}
}

func NewEntryID() string {
	return "log_" + uuid.NewString()[:8]
}

// Log stamps and stores the entry. A storage failure is logged and otherwise ignored so that
// the audit trail can never fail a workflow.
func (l *Logger) Log(ctx context.Context, e domain.AuditEntry) {
	if e.ID == "" {
		e.ID = NewEntryID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.stamp()
	}
	slog.Debug("audit", "workflowId", e.WorkflowID, "step", e.Step, "action", e.Action, "status", e.Status, "message", e.Message)
	if err := l.repo.Save(context.WithoutCancel(ctx), &e); err != nil {
		slog.Error("Failed to save audit entry", "workflowId", e.WorkflowID, "action", e.Action, "error", err)
	}
}

// stamp returns a timestamp strictly after the previous one at microsecond precision,
// so newest-first reads keep emission order.
func (l *Logger) stamp() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := l.clock.Now().UTC().Truncate(time.Microsecond)
	if !ts.After(l.last) {
		ts = l.last.Add(time.Microsecond)
	}
	l.last = ts
	return ts
}

func firstNetwork(def domain.WorkflowDefinition) models.NetworkID {
	if len(def.Steps) == 0 {
		return models.NetworkA
	}
	return def.Steps[0].Network
}

func lastNetwork(def domain.WorkflowDefinition) models.NetworkID {
	if len(def.Steps) == 0 {
		return models.NetworkA
	}
	return def.Steps[len(def.Steps)-1].Network
}

func (l *Logger) WorkflowCreated(ctx context.Context, wf *domain.Workflow) {
	l.Log(ctx, domain.AuditEntry{
		WorkflowID: wf.ID,
		Step:       WorkflowLevel,
		Action:     "workflow_created",
		Network:    firstNetwork(wf.Definition),
		Status:     models.AuditInfo,
		Message:    fmt.Sprintf("Workflow %q created with %d steps", wf.Definition.Name, len(wf.Definition.Steps)),
	})
}

func (l *Logger) ExecutionStarted(ctx context.Context, wf *domain.Workflow) {
	l.Log(ctx, domain.AuditEntry{
		WorkflowID: wf.ID,
		Step:       WorkflowLevel,
		Action:     "workflow_execution_started",
		Network:    firstNetwork(wf.Definition),
		Status:     models.AuditInfo,
		Message:    fmt.Sprintf("Starting execution from step %d", wf.CurrentStep),
	})
}

func (l *Logger) StepStarted(ctx context.Context, workflowID string, index int, def domain.StepDefinition) {
	l.Log(ctx, domain.AuditEntry{
		WorkflowID: workflowID,
		Step:       index,
		Action:     string(def.Type) + "_started",
		Network:    def.Network,
		Status:     models.AuditPending,
		Amount:     def.Amount.String(),
		Token:      def.Token,
		Message:    fmt.Sprintf("Starting %s on %s", def.Type, def.Network),
	})
}

func (l *Logger) StepCompleted(ctx context.Context, workflowID string, r domain.StepResult) {
	l.Log(ctx, domain.AuditEntry{
		WorkflowID: workflowID,
		Step:       r.StepIndex,
		Action:     string(r.Type) + "_completed",
		Network:    r.Network,
		Status:     models.AuditSuccess,
		TxRef:      r.TxRef,
		Amount:     r.Amount.String(),
		Token:      r.Token,
		DurationMs: r.DurationMs,
		Fee:        r.Fee.String(),
		Message:    fmt.Sprintf("%s completed: %s %s", r.Type, r.Amount.String(), r.Token),
	})
}

func (l *Logger) StepFailed(ctx context.Context, workflowID string, r domain.StepResult) {
	l.Log(ctx, domain.AuditEntry{
		WorkflowID: workflowID,
		Step:       r.StepIndex,
		Action:     string(r.Type) + "_failed",
		Network:    r.Network,
		Status:     models.AuditFailure,
		DurationMs: r.DurationMs,
		Metadata:   map[string]string{"errorCode": r.Metadata["errorCode"]},
		Message:    r.Error,
	})
}

func (l *Logger) WorkflowCompleted(ctx context.Context, wf *domain.Workflow) {
	l.Log(ctx, domain.AuditEntry{
		WorkflowID: wf.ID,
		Step:       WorkflowLevel,
		Action:     "workflow_completed",
		Network:    lastNetwork(wf.Definition),
		Status:     models.AuditSuccess,
		Message:    fmt.Sprintf("Workflow completed successfully. All %d steps executed.", wf.TotalSteps),
	})
}
