package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/RealZimboGuy/chainflow/internal/audit"
	"github.com/RealZimboGuy/chainflow/internal/statemachine"
	"github.com/RealZimboGuy/chainflow/internal/steps"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

// errAborted stops the step loop when the workflow was terminated by someone else.
var errAborted = errors.New("workflow externally terminated")

// Orchestrator drives one workflow from its current step to a terminal status.
// It is the only component that computes new workflow states; the store is passive.
type Orchestrator struct {
	store    WorkflowStore
	runner   StepRunner
	recovery *RecoveryEngine
	audit    *audit.Logger
}

func NewOrchestrator(store WorkflowStore, runner StepRunner, recovery *RecoveryEngine, auditLogger *audit.Logger) *Orchestrator {
	return &Orchestrator{store: store, runner: runner, recovery: recovery, audit: auditLogger}
}

// Create validates and stores a new workflow in status CREATED.
func (o *Orchestrator) Create(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	wf, err := o.store.CreateWorkflow(ctx, def)
	if err != nil {
		return nil, err
	}
	o.audit.WorkflowCreated(ctx, wf)
	slog.InfoContext(ctx, "Workflow created", "workflowId", wf.ID, "name", def.Name, "steps", len(def.Steps))
	return wf, nil
}

// Admit takes the execution lease for executorID. A terminal workflow is returned with admitted=false
// and is left untouched. A workflow whose lease is held elsewhere yields core.ErrAlreadyExecuting.
func (o *Orchestrator) Admit(ctx context.Context, id string, executorID int64) (wf *domain.Workflow, admitted bool, err error) {
	wf, err = o.store.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	if statemachine.IsTerminalWorkflow(wf.Status) {
		return wf, false, nil
	}
	ok, err := o.store.Claim(ctx, id, executorID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		// lost the race, or the row turned terminal in between
		latest, ferr := o.store.FindByID(ctx, id)
		if ferr == nil && statemachine.IsTerminalWorkflow(latest.Status) {
			return latest, false, nil
		}
		return nil, false, core.ErrAlreadyExecuting
	}
	wf.ExecutorID = executorID
	return wf, true, nil
}

// Run drives an admitted workflow and always releases the lease. It returns the stored workflow afterwards.
func (o *Orchestrator) Run(ctx context.Context, wf *domain.Workflow, executorID int64) (*domain.Workflow, error) {
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		if err := o.store.Release(context.WithoutCancel(ctx), wf.ID, executorID); err != nil {
			slog.ErrorContext(ctx, "Failed to release workflow", "workflowId", wf.ID, "executorId", executorID, "error", err)
		}
	}
	// panics in a step still give the lease back
	defer release()

	err := o.drive(ctx, wf)
	if errors.Is(err, errAborted) {
		slog.WarnContext(ctx, "Workflow externally terminated, stopping", "workflowId", wf.ID, "step", wf.CurrentStep)
		err = nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "Workflow execution stopped", "workflowId", wf.ID, "status", wf.Status, "step", wf.CurrentStep, "error", err)
	}

	release()
	latest, ferr := o.store.FindByID(context.WithoutCancel(ctx), wf.ID)
	if ferr != nil {
		return wf, errors.Join(err, ferr)
	}
	return latest, err
}

// Execute admits and runs synchronously. Re-executing a terminal workflow is a no-op.
func (o *Orchestrator) Execute(ctx context.Context, id string, executorID int64) (*domain.Workflow, error) {
	wf, admitted, err := o.Admit(ctx, id, executorID)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return wf, nil
	}
	return o.Run(ctx, wf, executorID)
}

func (o *Orchestrator) drive(ctx context.Context, wf *domain.Workflow) error {
	switch wf.Status {
	case models.WorkflowCompleted, models.WorkflowWithdrawn:
		return nil
	case models.WorkflowCreated:
		if err := o.setStatus(ctx, wf, models.WorkflowPending, ""); err != nil {
			return err
		}
		if err := o.setStatus(ctx, wf, models.WorkflowExecuting, ""); err != nil {
			return err
		}
	case models.WorkflowPending, models.WorkflowRecovering, models.WorkflowRecovered:
		if err := o.setStatus(ctx, wf, models.WorkflowExecuting, ""); err != nil {
			return err
		}
	case models.WorkflowExecuting:
		// interrupted mid-run, resume at current step
	case models.WorkflowFailed:
		if err := o.setStatus(ctx, wf, models.WorkflowWithdrawalPending, wf.Error); err != nil {
			return err
		}
		return o.finishWithdrawal(ctx, wf)
	case models.WorkflowWithdrawalPending:
		return o.finishWithdrawal(ctx, wf)
	default:
		return fmt.Errorf("workflow %s has unknown status %q", wf.ID, wf.Status)
	}

	o.audit.ExecutionStarted(ctx, wf)
	slog.InfoContext(ctx, "Executing workflow", "workflowId", wf.ID, "fromStep", wf.CurrentStep, "totalSteps", wf.TotalSteps)

	results := make([]domain.StepResult, len(wf.StepResults))
	copy(results, wf.StepResults)
	ec := steps.ExecutionContext{
		WorkflowID:         wf.ID,
		SourceAddress:      wf.Definition.SourceAddress,
		DestinationAddress: wf.Definition.DestinationAddress,
	}

	for i := wf.CurrentStep; i < wf.TotalSteps; i++ {
		if err := o.checkAbort(ctx, wf.ID); err != nil {
			return err
		}
		def := wf.Definition.Steps[i]
		ec.StepIndex = i

		o.audit.StepStarted(ctx, wf.ID, i, def)
		if err := o.store.UpdateStep(ctx, wf.ID, i, results); err != nil {
			return fmt.Errorf("persist step %d start: %w", i, err)
		}

		res, err := o.runner.Execute(ctx, def, ec)
		if err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if err := o.checkAbort(ctx, wf.ID); err != nil {
			return err
		}

		if res.Status == models.StepFailed {
			o.audit.StepFailed(ctx, wf.ID, res)
			slog.WarnContext(ctx, "Step failed", "workflowId", wf.ID, "step", i, "type", def.Type, "error", res.Error)
			if err := o.setStatus(ctx, wf, models.WorkflowRecovering, ""); err != nil {
				return err
			}
			results = putResult(results, i, res)
			if err := o.store.UpdateStep(ctx, wf.ID, i, results); err != nil {
				return fmt.Errorf("persist failed step %d: %w", i, err)
			}

			outcome := o.recovery.AttemptRecovery(ctx, wf, res, def)
			switch {
			case outcome.Action == ActionCancelled:
				return ctx.Err()
			case outcome.Recovered:
				res = *outcome.Result
				if err := o.setStatus(ctx, wf, models.WorkflowExecuting, ""); err != nil {
					return err
				}
			default:
				final := res
				if outcome.Result != nil {
					final = *outcome.Result
				}
				return o.withdraw(ctx, wf, results, i, final, res.Error)
			}
		}

		o.audit.StepCompleted(ctx, wf.ID, res)
		results = putResult(results, i, res)
		if err := o.store.UpdateStep(ctx, wf.ID, i+1, results); err != nil {
			return fmt.Errorf("persist step %d result: %w", i, err)
		}
		wf.CurrentStep = i + 1
		wf.StepResults = results
	}

	if err := o.setStatus(ctx, wf, models.WorkflowCompleted, ""); err != nil {
		return err
	}
	o.audit.WorkflowCompleted(ctx, wf)
	slog.InfoContext(ctx, "Workflow completed", "workflowId", wf.ID, "steps", wf.TotalSteps)
	return nil
}

// withdraw unwinds every completed step and closes the workflow as WITHDRAWN with the originating error.
func (o *Orchestrator) withdraw(ctx context.Context, wf *domain.Workflow, results []domain.StepResult, i int, final domain.StepResult, errMsg string) error {
	if err := o.setStatus(ctx, wf, models.WorkflowWithdrawalPending, errMsg); err != nil {
		return err
	}
	o.recovery.ExecuteWithdrawal(ctx, wf, domain.CompletedResults(results))

	results = putResult(results, i, final)
	if err := o.store.UpdateStep(ctx, wf.ID, i, results); err != nil {
		return fmt.Errorf("persist withdrawn step %d: %w", i, err)
	}
	wf.StepResults = results
	if err := o.setStatus(ctx, wf, models.WorkflowWithdrawn, errMsg); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Workflow withdrawn", "workflowId", wf.ID, "step", i, "error", errMsg)
	return nil
}

// finishWithdrawal resumes a withdrawal that was interrupted before WITHDRAWN was written.
func (o *Orchestrator) finishWithdrawal(ctx context.Context, wf *domain.Workflow) error {
	o.recovery.ExecuteWithdrawal(ctx, wf, wf.CompletedResults())
	return o.setStatus(ctx, wf, models.WorkflowWithdrawn, wf.Error)
}

// setStatus is the only place the orchestrator writes a workflow status.
func (o *Orchestrator) setStatus(ctx context.Context, wf *domain.Workflow, to models.WorkflowStatus, errMsg string) error {
	next, err := statemachine.TransitionWorkflow(wf.Status, to)
	if err != nil {
		return err
	}
	if err := o.store.UpdateStatus(ctx, wf.ID, next, errMsg); err != nil {
		return fmt.Errorf("update status to %s: %w", next, err)
	}
	slog.DebugContext(ctx, "Workflow status changed", "workflowId", wf.ID, "from", wf.Status, "to", next)
	wf.Status = next
	wf.Error = errMsg
	return nil
}

func (o *Orchestrator) checkAbort(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	latest, err := o.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if statemachine.IsTerminalWorkflow(latest.Status) {
		return errAborted
	}
	return nil
}

// putResult writes r at index i, growing the slice by one slot when i is the next index.
func putResult(results []domain.StepResult, i int, r domain.StepResult) []domain.StepResult {
	if i < len(results) {
		results[i] = r
		return results
	}
	return append(results, r)
}
