package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const executorID = int64(7)

func TestCreate_RejectsInvalidDefinition(t *testing.T) {
	f := newFixture(t)
	def := fourStepDefinition()
	def.Steps = nil

	_, err := f.orch.Create(context.Background(), def)
	require.Error(t, err)
	assert.Empty(t, f.audit.entries)
}

func TestCreate_EmitsWorkflowCreated(t *testing.T) {
	f := newFixture(t)
	wf, err := f.orch.Create(context.Background(), fourStepDefinition())
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowCreated, wf.Status)
	assert.Equal(t, 4, wf.TotalSteps)
	assert.Equal(t, []string{"workflow_created"}, f.audit.actions(wf.ID))
}

func TestExecute_AllStepsSucceed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)

	final, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowCompleted, final.Status)
	assert.Equal(t, 4, final.CurrentStep)
	require.Len(t, final.StepResults, 4)
	for i, r := range final.StepResults {
		assert.Equal(t, models.StepCompleted, r.Status, "step %d", i)
		assert.Equal(t, i, r.StepIndex)
		assert.Equal(t, 0, r.RetryCount)
	}
	assert.Empty(t, final.Error)
	assert.NotNil(t, final.Completed)
	assert.Zero(t, final.ExecutorID, "lease released")
	assert.Equal(t, "99.7", final.StepResults[2].Amount.String())
	assert.Equal(t, "WETH", final.StepResults[2].Token)

	assert.Equal(t, []models.WorkflowStatus{models.WorkflowPending, models.WorkflowExecuting, models.WorkflowCompleted}, f.store.statuses)
	assert.Equal(t, []string{
		"workflow_created", "workflow_execution_started",
		"onramp_started", "onramp_completed",
		"bridge_started", "bridge_completed",
		"swap_started", "swap_completed",
		"transfer_started", "transfer_completed",
		"workflow_completed",
	}, f.audit.actions(wf.ID))
	assert.Equal(t, 5, f.adapter.callCount())
}

func TestExecute_PermanentFailureWithdrawsInReverse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.adapter.Script = func(n int, c transferCall) error {
		if c.To == "dex_router" {
			return core.NewPermanentError(c.Network, "NO_LIQUIDITY", "No liquidity available for this token pair")
		}
		return nil
	}
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)

	final, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowWithdrawn, final.Status)
	assert.Contains(t, final.Error, "NO_LIQUIDITY")
	assert.Equal(t, 2, final.CurrentStep)
	require.Len(t, final.StepResults, 3)
	assert.Equal(t, models.StepCompleted, final.StepResults[0].Status)
	assert.Equal(t, models.StepCompleted, final.StepResults[1].Status)
	assert.Equal(t, models.StepFailed, final.StepResults[2].Status)
	assert.Equal(t, 0, final.StepResults[2].RetryCount)
	assert.Equal(t, "NO_LIQUIDITY", final.StepResults[2].Metadata["errorCode"])

	// onramp + two bridge legs + one swap attempt, no retries
	assert.Equal(t, 4, f.adapter.callCount())
	assert.Empty(t, f.clock.recorded())
	assert.Empty(t, f.audit.byAction("retry_attempt_1"))
	require.Len(t, f.audit.byAction("permanent_failure_detected"), 1)

	var reversals []int
	for _, e := range f.audit.entries {
		if len(e.Action) > len("reversal_step_") && e.Action[:len("reversal_step_")] == "reversal_step_" {
			reversals = append(reversals, e.Step)
		}
	}
	assert.Equal(t, []int{1, 0}, reversals)
	assert.Equal(t, "0x0001", f.audit.byAction("reversal_step_onramp")[0].Metadata["originalTxRef"])

	actions := f.audit.actions(wf.ID)
	assert.Equal(t, "withdrawal_completed", actions[len(actions)-1])
	assert.NotContains(t, actions, "transfer_started")
	assert.Equal(t, []models.WorkflowStatus{
		models.WorkflowPending, models.WorkflowExecuting, models.WorkflowRecovering,
		models.WorkflowWithdrawalPending, models.WorkflowWithdrawn,
	}, f.store.statuses)
}

func TestExecute_TransientTwiceThenSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	transferAttempts := 0
	f.adapter.Script = func(n int, c transferCall) error {
		if c.To != "0xDestWallet001" || c.From == "bridge_contract" {
			return nil
		}
		transferAttempts++
		if transferAttempts <= 2 {
			return core.NewTransientError(c.Network, "RPC_TIMEOUT", "RPC endpoint timed out")
		}
		return nil
	}
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)

	final, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowCompleted, final.Status)
	assert.Equal(t, 4, final.CurrentStep)
	last := final.StepResults[3]
	assert.Equal(t, models.StepCompleted, last.Status)
	assert.Equal(t, 2, last.RetryCount)
	assert.Empty(t, final.Error)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.clock.recorded())
	require.Len(t, f.audit.byAction("retry_success"), 1)
	assert.Equal(t, "Recovered on attempt 2", f.audit.byAction("retry_success")[0].Message)
	assert.Equal(t, []models.WorkflowStatus{
		models.WorkflowPending, models.WorkflowExecuting, models.WorkflowRecovering,
		models.WorkflowExecuting, models.WorkflowCompleted,
	}, f.store.statuses)
}

func TestExecute_RetriesExhaustedWithdraws(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.adapter.Script = func(n int, c transferCall) error {
		if c.To == "bridge_contract" {
			return core.NewTransientError(c.Network, "GAS_SPIKE", "Gas price spiked above threshold")
		}
		return nil
	}
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)

	final, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowWithdrawn, final.Status)
	assert.Contains(t, final.Error, "GAS_SPIKE")
	require.Len(t, final.StepResults, 2)
	assert.Equal(t, models.StepFailed, final.StepResults[1].Status)
	assert.Equal(t, 3, final.StepResults[1].RetryCount)
	assert.Equal(t, "burn", final.StepResults[1].Metadata["failedLeg"])
	assert.Equal(t, "GAS_SPIKE", final.StepResults[1].Metadata["originalErrorCode"])

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, f.clock.recorded())
	assert.Len(t, f.audit.byAction("retries_exhausted"), 1)
	assert.Len(t, f.audit.byAction("retry_attempt_3"), 1)
	assert.Len(t, f.audit.byAction("reversal_step_onramp"), 1)
	assert.Empty(t, f.audit.byAction("reversal_step_bridge"))
}

func TestExecute_TerminalIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)
	done, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)
	calls := f.adapter.callCount()
	logs := len(f.audit.entries)

	again, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)

	assert.Equal(t, done.Updated, again.Updated)
	assert.Equal(t, done.StepResults, again.StepResults)
	assert.Equal(t, models.WorkflowCompleted, again.Status)
	assert.Equal(t, calls, f.adapter.callCount())
	assert.Len(t, f.audit.entries, logs)
}

func TestExecute_WithdrawnIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.adapter.Script = func(n int, c transferCall) error {
		return core.NewPermanentError(c.Network, "INSUFFICIENT_BALANCE", "Insufficient token balance for operation")
	}
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)
	first, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)
	require.Equal(t, models.WorkflowWithdrawn, first.Status)

	again, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)
	assert.Equal(t, first.Updated, again.Updated)
	assert.Equal(t, first.Error, again.Error)
}

func TestExecute_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Execute(context.Background(), "wf_missing", executorID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestAdmit_OnlyOneConcurrentExecution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted, conflicts := 0, 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, ok, err := f.orch.Admit(ctx, wf.ID, id)
			mu.Lock()
			defer mu.Unlock()
			if ok {
				admitted++
			}
			if errors.Is(err, core.ErrAlreadyExecuting) {
				conflicts++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, admitted)
	assert.Equal(t, callers-1, conflicts)
}

func TestExecute_RejectedWhileLeaseHeld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)
	_, ok, err := f.orch.Admit(ctx, wf.ID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.orch.Execute(ctx, wf.ID, 2)
	assert.ErrorIs(t, err, core.ErrAlreadyExecuting)
	assert.Zero(t, f.adapter.callCount())
}

func TestExecute_ResumesFromCurrentStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	def := fourStepDefinition()
	started := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f.store.put(&domain.Workflow{
		ID:          "wf_resume1",
		Status:      models.WorkflowExecuting,
		CurrentStep: 2,
		TotalSteps:  4,
		Definition:  def,
		StepResults: []domain.StepResult{
			{StepIndex: 0, Type: models.StepOnramp, Status: models.StepCompleted, Network: models.NetworkA, TxRef: "0xold0", Amount: decimal.NewFromInt(100), Token: "USDC", Started: started},
			{StepIndex: 1, Type: models.StepBridge, Status: models.StepCompleted, Network: models.NetworkA, TxRef: "0xold1", Amount: decimal.NewFromInt(100), Token: "USDC", Started: started},
		},
	})

	final, err := f.orch.Execute(ctx, "wf_resume1", executorID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowCompleted, final.Status)
	assert.Equal(t, 4, final.CurrentStep)
	assert.Equal(t, "0xold0", final.StepResults[0].TxRef)
	assert.Equal(t, "0xold1", final.StepResults[1].TxRef)
	// swap + transfer only
	assert.Equal(t, 2, f.adapter.callCount())
	assert.Equal(t, []models.WorkflowStatus{models.WorkflowCompleted}, f.store.statuses)
}

func TestExecute_ResumesInterruptedWithdrawal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.put(&domain.Workflow{
		ID:          "wf_resume2",
		Status:      models.WorkflowWithdrawalPending,
		CurrentStep: 1,
		TotalSteps:  4,
		Error:       "NO_LIQUIDITY: gone",
		Definition:  fourStepDefinition(),
		StepResults: []domain.StepResult{
			{StepIndex: 0, Type: models.StepOnramp, Status: models.StepCompleted, Network: models.NetworkA, TxRef: "0xold0", Amount: decimal.NewFromInt(100), Token: "USDC"},
		},
	})

	final, err := f.orch.Execute(ctx, "wf_resume2", executorID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowWithdrawn, final.Status)
	assert.Equal(t, "NO_LIQUIDITY: gone", final.Error)
	assert.Len(t, f.audit.byAction("reversal_step_onramp"), 1)
	assert.Zero(t, f.adapter.callCount())
}

func TestExecute_StopsWhenExternallyTerminated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)
	f.adapter.Script = func(n int, c transferCall) error {
		if n == 1 {
			f.store.mu.Lock()
			f.store.workflows[wf.ID].Status = models.WorkflowWithdrawn
			f.store.mu.Unlock()
		}
		return nil
	}

	final, err := f.orch.Execute(ctx, wf.ID, executorID)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowWithdrawn, final.Status)
	assert.Equal(t, 1, f.adapter.callCount())
	assert.Empty(t, final.StepResults)
	assert.Zero(t, final.ExecutorID)
}

func TestExecute_CancelledContextLeavesWorkflowResumable(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)
	f.adapter.Script = func(n int, c transferCall) error {
		if n == 1 {
			cancel()
		}
		return nil
	}

	final, err := f.orch.Execute(ctx, wf.ID, executorID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.WorkflowExecuting, final.Status)
	assert.Equal(t, 0, final.CurrentStep)
	assert.Zero(t, final.ExecutorID)

	f.adapter.Script = nil
	resumed, err := f.orch.Execute(context.Background(), wf.ID, executorID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, resumed.Status)
}

func TestExecute_UnsupportedStepTypeFailsLoudly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	def := fourStepDefinition()
	def.Steps[1].Type = "teleport"
	wf, err := f.orch.Create(ctx, def)
	require.NoError(t, err)

	final, err := f.orch.Execute(ctx, wf.ID, executorID)

	var ute *core.UnsupportedStepTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, models.WorkflowExecuting, final.Status)
	assert.Equal(t, 1, final.CurrentStep)
	require.Len(t, final.StepResults, 1)
	assert.Zero(t, final.ExecutorID)
}

func TestRun_ReturnsWorkflowAfterLeaseRelease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)

	admitted, ok, err := f.orch.Admit(ctx, wf.ID, executorID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, executorID, admitted.ExecutorID)

	final, err := f.orch.Run(ctx, admitted, executorID)
	require.NoError(t, err)

	stored, err := f.store.FindByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ExecutorID)
	assert.Equal(t, stored.ExecutorID, final.ExecutorID)
	assert.Equal(t, stored.Status, final.Status)
}

func TestRun_PanicStillReleasesLease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, err := f.orch.Create(ctx, fourStepDefinition())
	require.NoError(t, err)
	f.adapter.Script = func(n int, c transferCall) error {
		panic("adapter blew up")
	}

	assert.Panics(t, func() { _, _ = f.orch.Execute(ctx, wf.ID, executorID) })

	stored, err := f.store.FindByID(ctx, wf.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.ExecutorID)
}

func TestPutResult(t *testing.T) {
	rs := putResult(nil, 0, domain.StepResult{StepIndex: 0})
	rs = putResult(rs, 1, domain.StepResult{StepIndex: 1, Status: models.StepFailed})
	rs = putResult(rs, 1, domain.StepResult{StepIndex: 1, Status: models.StepCompleted})
	require.Len(t, rs, 2)
	assert.Equal(t, models.StepCompleted, rs[1].Status)
}
