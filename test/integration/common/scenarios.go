// Package common holds the end to end scenarios shared by every database backend.
package common

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RealZimboGuy/chainflow/internal/config"
	"github.com/RealZimboGuy/chainflow/internal/controllers"
	"github.com/RealZimboGuy/chainflow/internal/network"
	"github.com/RealZimboGuy/chainflow/internal/templates"
	"github.com/RealZimboGuy/chainflow/internal/util"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ScriptedAdapter counts adapter calls from 1 and fails the ones Fail returns an error for.
type ScriptedAdapter struct {
	calls atomic.Int64
	mu    sync.Mutex
	Fail  func(n int) error
}

func (a *ScriptedAdapter) PerformTransfer(ctx context.Context, nw models.NetworkID, from, to string, amount decimal.Decimal, token string) (*domain.Receipt, error) {
	n := int(a.calls.Add(1))
	a.mu.Lock()
	fail := a.Fail
	a.mu.Unlock()
	if fail != nil {
		if err := fail(n); err != nil {
			return nil, err
		}
	}
	return &domain.Receipt{
		TxRef:       fmt.Sprintf("0x%064d", n),
		Network:     nw,
		Status:      "confirmed",
		Fee:         decimal.RequireFromString("0.0003"),
		BlockHeight: 18000000 + int64(n),
	}, nil
}

// Configure points the settings at fast retries; call before chainflow.Bootstrap.
func Configure() {
	config.Set(config.RECOVERY_MAX_RETRIES, 3)
	config.Set(config.RECOVERY_BACKOFF_BASE, "1ms")
	config.Set(config.RECOVERY_BACKOFF_MAX, "10ms")
	config.Set(config.ENGINE_EXECUTOR_SIZE, 2)
}

func bootstrap(t *testing.T, adapter network.Adapter) *chainflow.App {
	t.Helper()
	Configure()
	app, err := chainflow.Bootstrap(t.Context(), adapter)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func template(t *testing.T, id string) domain.WorkflowDefinition {
	t.Helper()
	tpl, ok := templates.Get(id)
	require.True(t, ok)
	return tpl.Definition
}

func actions(t *testing.T, app *chainflow.App, id string) []string {
	t.Helper()
	logs, err := app.Manager.AuditLogs(t.Context(), domain.AuditFilter{WorkflowID: id, Limit: 500})
	require.NoError(t, err)
	out := make([]string, 0, len(logs))
	for i := len(logs) - 1; i >= 0; i-- {
		out = append(out, logs[i].Action)
	}
	return out
}

func HappyPath(t *testing.T) {
	app := bootstrap(t, &ScriptedAdapter{})

	wf, err := app.Run(t.Context(), template(t, "cross_chain_swap"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, wf.Status)
	assert.Equal(t, 4, wf.CurrentStep)
	require.Len(t, wf.StepResults, 4)
	for i, r := range wf.StepResults {
		assert.Equal(t, models.StepCompleted, r.Status, "step %d", i)
		assert.NotEmpty(t, r.TxRef)
	}
	assert.Equal(t, "WETH", wf.StepResults[2].Token)
	assert.Equal(t, "0x"+strings.Repeat("0", 63)+"2", wf.StepResults[1].Metadata["burnTx"])
	require.NotNil(t, wf.Completed)
	assert.Zero(t, wf.ExecutorID, "lease released")

	acts := actions(t, app, wf.ID)
	assert.Equal(t, "workflow_created", acts[0])
	assert.Equal(t, "workflow_completed", acts[len(acts)-1])

	again, err := app.Manager.ExecuteNow(t.Context(), wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, again.Status, "re-executing a terminal workflow is a no-op")
	assert.Len(t, actions(t, app, wf.ID), len(acts))
}

func PermanentFailureWithdraws(t *testing.T) {
	// calls: onramp 1, bridge burn 2, bridge mint 3, swap 4
	adapter := &ScriptedAdapter{Fail: func(n int) error {
		if n == 4 {
			return core.NewPermanentError(models.NetworkB, "NO_LIQUIDITY", "pool drained")
		}
		return nil
	}}
	app := bootstrap(t, adapter)

	wf, err := app.Run(t.Context(), template(t, "cross_chain_swap"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowWithdrawn, wf.Status)
	assert.Contains(t, wf.Error, "NO_LIQUIDITY")
	assert.Equal(t, 2, wf.CurrentStep)
	require.Len(t, wf.StepResults, 3)
	assert.Equal(t, models.StepFailed, wf.StepResults[2].Status)
	assert.Equal(t, 0, wf.StepResults[2].RetryCount)

	acts := actions(t, app, wf.ID)
	assert.Contains(t, acts, "permanent_failure_detected")
	assert.NotContains(t, acts, "retry_attempt_1")
	iBridge := indexOf(acts, "reversal_step_bridge")
	iOnramp := indexOf(acts, "reversal_step_onramp")
	require.True(t, iBridge >= 0 && iOnramp >= 0)
	assert.Less(t, iBridge, iOnramp, "compensation runs last-completed first")
	assert.Equal(t, "withdrawal_completed", acts[len(acts)-1])

	st, err := app.Manager.Stats(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 1, st.Failed)
}

func TransientFailureRecovers(t *testing.T) {
	adapter := &ScriptedAdapter{Fail: func(n int) error {
		if n == 4 {
			return core.NewTransientError(models.NetworkB, "RPC_TIMEOUT", "timed out")
		}
		return nil
	}}
	app := bootstrap(t, adapter)

	wf, err := app.Run(t.Context(), template(t, "cross_chain_swap"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowCompleted, wf.Status)
	assert.Equal(t, 1, wf.StepResults[2].RetryCount)
	assert.Empty(t, wf.Error)

	acts := actions(t, app, wf.ID)
	assert.Contains(t, acts, "retry_attempt_1")
	assert.Contains(t, acts, "retry_success")
}

func RetriesExhausted(t *testing.T) {
	adapter := &ScriptedAdapter{Fail: func(n int) error {
		if n >= 2 {
			return core.NewTransientError(models.NetworkA, "GAS_SPIKE", "gas too high")
		}
		return nil
	}}
	app := bootstrap(t, adapter)

	wf, err := app.Run(t.Context(), template(t, "cross_chain_swap"))
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowWithdrawn, wf.Status)
	require.Len(t, wf.StepResults, 2)
	assert.Equal(t, 3, wf.StepResults[1].RetryCount)
	assert.Equal(t, "burn", wf.StepResults[1].Metadata["failedLeg"])
	assert.Equal(t, "GAS_SPIKE", wf.StepResults[1].Metadata["originalErrorCode"])
	assert.Zero(t, wf.ExecutorID)
	assert.Contains(t, actions(t, app, wf.ID), "retries_exhausted")
}

// RestApi drives a workflow through the HTTP surface with the worker pool running.
func RestApi(t *testing.T) {
	app := bootstrap(t, &ScriptedAdapter{})
	ctx, cancel := context.WithCancel(t.Context())
	engineDone := make(chan error, 1)
	go func() { engineDone <- app.Manager.StartEngine(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-engineDone
	})

	srv := httptest.NewServer(controllers.NewRouter(app.Manager, ""))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/workflows", "application/json", strings.NewReader(`{"templateId":"multi_hop"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created, err := util.DecodeJSONBodyResponse[controllers.CreateWorkflowResponse](resp)
	require.NoError(t, err)
	id := created.Workflow.ID

	resp, err = http.Post(srv.URL+"/api/workflows/"+id+"/execute", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var details controllers.WorkflowDetailsResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get(srv.URL + "/api/workflows/" + id)
		if err != nil {
			return false
		}
		details, err = util.DecodeJSONBodyResponse[controllers.WorkflowDetailsResponse](resp)
		return err == nil && details.Workflow.Status == models.WorkflowCompleted
	}, 10*time.Second, 20*time.Millisecond)
	assert.NotEmpty(t, details.AuditLogs)

	resp, err = http.Post(srv.URL+"/api/workflows/"+id+"/execute", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/api/workflows/wf_missing/execute", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	st, err := util.DecodeJSONBodyResponse[domain.WorkflowStats](resp)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 100, st.SuccessRate)
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
