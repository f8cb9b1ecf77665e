package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/RealZimboGuy/chainflow/internal/audit"
	"github.com/RealZimboGuy/chainflow/internal/steps"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

type RecoveryAction string

const (
	ActionRetrySuccess     RecoveryAction = "retry_success"
	ActionRetriesExhausted RecoveryAction = "retries_exhausted"
	ActionPermanentFailure RecoveryAction = "permanent_failure"
	ActionCancelled        RecoveryAction = "cancelled"
)

// RecoveryOutcome is the verdict for one failed step. Result holds the last attempt when any retry ran.
type RecoveryOutcome struct {
	Recovered bool
	Result    *domain.StepResult
	Action    RecoveryAction
}

var permanentCodes = []string{
	"INSUFFICIENT_BALANCE",
	"NO_LIQUIDITY",
	"INVALID_ROUTE",
	"CONTRACT_REVERTED",
}

// ClassifyFailure is permanent when the error code, or failing that the error text, names a denylisted code.
func ClassifyFailure(r domain.StepResult) models.FailureKind {
	if slices.Contains(permanentCodes, strings.ToUpper(r.Metadata["errorCode"])) {
		return models.FailurePermanent
	}
	msg := strings.ToUpper(r.Error)
	for _, code := range permanentCodes {
		if strings.Contains(msg, code) {
			return models.FailurePermanent
		}
	}
	return models.FailureTransient
}

type RecoveryEngine struct {
	runner StepRunner
	audit  *audit.Logger
	clock  core.Clock
	retry  models.RetryConfig
	jitter func() float64
}

type RecoveryOption func(*RecoveryEngine)

// WithJitter replaces the backoff jitter source, normally uniform in [0.8, 1.2).
func WithJitter(f func() float64) RecoveryOption {
	return func(r *RecoveryEngine) { r.jitter = f }
}

func NewRecoveryEngine(runner StepRunner, auditLogger *audit.Logger, clock core.Clock, retry models.RetryConfig, opts ...RecoveryOption) *RecoveryEngine {
	r := &RecoveryEngine{
		runner: runner,
		audit:  auditLogger,
		clock:  clock,
		retry:  retry,
		jitter: func() float64 { return 0.8 + rand.Float64()*0.4 },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// AttemptRecovery never returns an error; every failure is folded into the outcome.
func (r *RecoveryEngine) AttemptRecovery(ctx context.Context, wf *domain.Workflow, failed domain.StepResult, def domain.StepDefinition) RecoveryOutcome {
	kind := ClassifyFailure(failed)
	code := failed.Metadata["errorCode"]
	if code == "" {
		code = "UNKNOWN"
	}

	r.audit.Log(ctx, domain.AuditEntry{
		WorkflowID: wf.ID,
		Step:       failed.StepIndex,
		Action:     "recovery_started",
		Network:    failed.Network,
		Status:     models.AuditInfo,
		Message:    fmt.Sprintf("Failure type: %s, error: %s", kind, code),
		Metadata:   map[string]string{"failureType": string(kind), "errorCode": code},
	})

	if kind == models.FailurePermanent {
		r.audit.Log(ctx, domain.AuditEntry{
			WorkflowID: wf.ID,
			Step:       failed.StepIndex,
			Action:     "permanent_failure_detected",
			Network:    failed.Network,
			Status:     models.AuditFailure,
			Message:    fmt.Sprintf("Permanent failure: %s. Triggering withdrawal.", failed.Error),
			Metadata:   map[string]string{"errorCode": code},
		})
		return RecoveryOutcome{Action: ActionPermanentFailure}
	}

	ec := steps.ExecutionContext{
		WorkflowID:         wf.ID,
		StepIndex:          failed.StepIndex,
		SourceAddress:      wf.Definition.SourceAddress,
		DestinationAddress: wf.Definition.DestinationAddress,
	}

	var last *domain.StepResult
	for attempt := 1; attempt <= r.retry.MaxRetryCount; attempt++ {
		backoff := r.retry.Backoff(attempt, r.jitter())
		r.audit.Log(ctx, domain.AuditEntry{
			WorkflowID: wf.ID,
			Step:       failed.StepIndex,
			Action:     fmt.Sprintf("retry_attempt_%d", attempt),
			Network:    failed.Network,
			Status:     models.AuditInfo,
			Message:    fmt.Sprintf("Retry %d/%d after %dms backoff", attempt, r.retry.MaxRetryCount, backoff.Milliseconds()),
			Metadata:   map[string]string{"attempt": fmt.Sprint(attempt), "backoffMs": fmt.Sprint(backoff.Milliseconds())},
		})

		if err := core.SleepContext(ctx, r.clock, backoff); err != nil {
			slog.WarnContext(ctx, "Recovery interrupted", "workflowId", wf.ID, "step", failed.StepIndex, "attempt", attempt, "error", err)
			return RecoveryOutcome{Action: ActionCancelled, Result: last}
		}

		res, err := r.runner.Execute(ctx, def, ec)
		if err != nil {
			// unsupported types never reach here; treat anything else as a failed attempt
			res = failed.Clone()
			res.Error = err.Error()
		}
		res.RetryCount = attempt
		last = &res

		if res.Status == models.StepCompleted {
			r.audit.Log(ctx, domain.AuditEntry{
				WorkflowID: wf.ID,
				Step:       failed.StepIndex,
				Action:     "retry_success",
				Network:    res.Network,
				Status:     models.AuditSuccess,
				TxRef:      res.TxRef,
				Amount:     res.Amount.String(),
				Token:      res.Token,
				DurationMs: res.DurationMs,
				Fee:        res.Fee.String(),
				Message:    fmt.Sprintf("Recovered on attempt %d", attempt),
			})
			return RecoveryOutcome{Recovered: true, Result: &res, Action: ActionRetrySuccess}
		}
		slog.InfoContext(ctx, "Retry attempt failed", "workflowId", wf.ID, "step", failed.StepIndex, "attempt", attempt, "error", res.Error)
	}

	r.audit.Log(ctx, domain.AuditEntry{
		WorkflowID: wf.ID,
		Step:       failed.StepIndex,
		Action:     "retries_exhausted",
		Network:    failed.Network,
		Status:     models.AuditFailure,
		Message:    fmt.Sprintf("All %d retries exhausted. Triggering withdrawal.", r.retry.MaxRetryCount),
	})
	if last != nil {
		// keep the first failure reconcilable with the workflow error
		final := last.Clone()
		if final.Metadata == nil {
			final.Metadata = map[string]string{}
		}
		final.Metadata["originalError"] = failed.Error
		if code := failed.Metadata["errorCode"]; code != "" {
			final.Metadata["originalErrorCode"] = code
		}
		last = &final
	}
	return RecoveryOutcome{Action: ActionRetriesExhausted, Result: last}
}

// ExecuteWithdrawal records a reversal for every completed step, most recent first.
// Reversal is an acknowledged audit trail; no reverse call is made against the network.
func (r *RecoveryEngine) ExecuteWithdrawal(ctx context.Context, wf *domain.Workflow, completed []domain.StepResult) {
	network := models.NetworkA
	if len(wf.Definition.Steps) > 0 {
		network = wf.Definition.Steps[0].Network
	}

	r.audit.Log(ctx, domain.AuditEntry{
		WorkflowID: wf.ID,
		Step:       audit.WorkflowLevel,
		Action:     "withdrawal_started",
		Network:    network,
		Status:     models.AuditInfo,
		Message:    fmt.Sprintf("Reversing %d completed steps", len(completed)),
	})

	for i := len(completed) - 1; i >= 0; i-- {
		s := completed[i]
		orig := s.TxRef
		if orig == "" {
			orig = "none"
		}
		r.audit.Log(ctx, domain.AuditEntry{
			WorkflowID: wf.ID,
			Step:       s.StepIndex,
			Action:     "reversal_step_" + string(s.Type),
			Network:    s.Network,
			Status:     models.AuditInfo,
			Amount:     s.Amount.String(),
			Token:      s.Token,
			Message:    fmt.Sprintf("Reversing %s on %s: %s %s", s.Type, s.Network, s.Amount.String(), s.Token),
			Metadata:   map[string]string{"originalTxRef": orig},
		})
	}

	r.audit.Log(ctx, domain.AuditEntry{
		WorkflowID: wf.ID,
		Step:       audit.WorkflowLevel,
		Action:     "withdrawal_completed",
		Network:    network,
		Status:     models.AuditSuccess,
		Message:    "All steps reversed. Funds returned to origin.",
	})
}
