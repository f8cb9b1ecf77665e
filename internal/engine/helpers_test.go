package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/RealZimboGuy/chainflow/internal/audit"
	"github.com/RealZimboGuy/chainflow/internal/network"
	"github.com/RealZimboGuy/chainflow/internal/statemachine"
	"github.com/RealZimboGuy/chainflow/internal/steps"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory WorkflowRepo that enforces the same guards as the SQL repository.
type memStore struct {
	mu        sync.Mutex
	workflows map[string]*domain.Workflow
	seq       int
	tick      time.Time
	statuses  []models.WorkflowStatus

	FindStuckWorkflowsFunc func(ctx context.Context, inactiveSince time.Time, limit int) ([]domain.StuckWorkflow, error)
}

func newMemStore() *memStore {
	return &memStore{workflows: map[string]*domain.Workflow{}, tick: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// caller holds mu
func (m *memStore) now() time.Time {
	m.tick = m.tick.Add(time.Millisecond)
	return m.tick
}

func cloneWorkflow(wf *domain.Workflow) *domain.Workflow {
	c := *wf
	c.StepResults = make([]domain.StepResult, len(wf.StepResults))
	for i, r := range wf.StepResults {
		c.StepResults[i] = r.Clone()
	}
	c.Definition.Steps = append([]domain.StepDefinition(nil), wf.Definition.Steps...)
	return &c
}

func (m *memStore) CreateWorkflow(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	now := m.now()
	wf := &domain.Workflow{
		ID:          fmt.Sprintf("wf_%08d", m.seq),
		Name:        def.Name,
		Description: def.Description,
		Status:      models.WorkflowCreated,
		TotalSteps:  len(def.Steps),
		Definition:  def,
		Created:     now,
		Updated:     now,
	}
	m.workflows[wf.ID] = wf
	return cloneWorkflow(wf), nil
}

// put stores a workflow as is, used to seed resume scenarios.
func (m *memStore) put(wf *domain.Workflow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workflows[wf.ID] = cloneWorkflow(wf)
}

func (m *memStore) get(id string) *domain.Workflow {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneWorkflow(m.workflows[id])
}

func (m *memStore) FindByID(ctx context.Context, id string) (*domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return cloneWorkflow(wf), nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return core.ErrNotFound
	}
	if statemachine.IsTerminalWorkflow(wf.Status) {
		return fmt.Errorf("workflow %s is terminal", id)
	}
	wf.Status = status
	wf.Error = errMsg
	wf.Updated = m.now()
	if statemachine.IsTerminalWorkflow(status) {
		done := wf.Updated
		wf.Completed = &done
	}
	m.statuses = append(m.statuses, status)
	return nil
}

func (m *memStore) UpdateStep(ctx context.Context, id string, currentStep int, results []domain.StepResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return core.ErrNotFound
	}
	switch {
	case statemachine.IsTerminalWorkflow(wf.Status):
		return fmt.Errorf("workflow %s is terminal", id)
	case currentStep < wf.CurrentStep:
		return fmt.Errorf("current step would decrease from %d to %d", wf.CurrentStep, currentStep)
	case len(results) > wf.TotalSteps:
		return fmt.Errorf("%d results exceed %d steps", len(results), wf.TotalSteps)
	}
	for i, r := range results {
		if r.Status == models.StepCompleted {
			for j := 0; j < i; j++ {
				if results[j].Status != models.StepCompleted {
					return fmt.Errorf("result %d completed before %d", i, j)
				}
			}
		}
	}
	wf.CurrentStep = currentStep
	wf.StepResults = make([]domain.StepResult, len(results))
	for i, r := range results {
		wf.StepResults[i] = r.Clone()
	}
	wf.Updated = m.now()
	return nil
}

func (m *memStore) Claim(ctx context.Context, id string, executorID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok || wf.ExecutorID != 0 || statemachine.IsTerminalWorkflow(wf.Status) {
		return false, nil
	}
	wf.ExecutorID = executorID
	return true, nil
}

func (m *memStore) Release(ctx context.Context, id string, executorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf, ok := m.workflows[id]; ok && wf.ExecutorID == executorID {
		wf.ExecutorID = 0
	}
	return nil
}

func (m *memStore) ListWorkflows(ctx context.Context, status models.WorkflowStatus, limit int) ([]domain.Workflow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Workflow
	for _, wf := range m.workflows {
		if status == "" || wf.Status == status {
			out = append(out, *cloneWorkflow(wf))
		}
	}
	return out, nil
}

func (m *memStore) Stats(ctx context.Context) (domain.WorkflowStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.WorkflowStats{Total: len(m.workflows)}, nil
}

func (m *memStore) FindStuckWorkflows(ctx context.Context, inactiveSince time.Time, limit int) ([]domain.StuckWorkflow, error) {
	if m.FindStuckWorkflowsFunc != nil {
		return m.FindStuckWorkflowsFunc(ctx, inactiveSince, limit)
	}
	return nil, nil
}

func (m *memStore) ClearExecutor(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf, ok := m.workflows[id]; ok {
		wf.ExecutorID = 0
	}
	return nil
}

// memAudit collects audit entries.
type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Save(ctx context.Context, e *domain.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

func (a *memAudit) Find(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range a.entries {
		if f.WorkflowID == "" || e.WorkflowID == f.WorkflowID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *memAudit) actions(workflowID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, e := range a.entries {
		if e.WorkflowID == workflowID {
			out = append(out, e.Action)
		}
	}
	return out
}

func (a *memAudit) byAction(action string) []domain.AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range a.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// instantClock fires timers immediately and records every requested wait.
type instantClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.waits = append(c.waits, d)
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}

func (c *instantClock) Sleep(d time.Duration) { <-c.After(d) }

func (c *instantClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.waits...)
}

type transferCall struct {
	Network models.NetworkID
	From    string
	To      string
}

// scriptedAdapter answers each call with the result of Script, succeeding when Script is nil or returns nil.
type scriptedAdapter struct {
	mu     sync.Mutex
	calls  []transferCall
	Script func(n int, c transferCall) error
}

func (a *scriptedAdapter) PerformTransfer(ctx context.Context, nw models.NetworkID, from, to string, amount decimal.Decimal, token string) (*domain.Receipt, error) {
	a.mu.Lock()
	c := transferCall{nw, from, to}
	a.calls = append(a.calls, c)
	n := len(a.calls)
	script := a.Script
	a.mu.Unlock()
	if script != nil {
		if err := script(n, c); err != nil {
			return nil, err
		}
	}
	return &domain.Receipt{
		TxRef:       fmt.Sprintf("0x%04d", n),
		Network:     nw,
		Status:      "confirmed",
		Fee:         decimal.RequireFromString("0.0001"),
		BlockHeight: 18000000 + int64(n),
	}, nil
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

var _ network.Adapter = (*scriptedAdapter)(nil)

type fixture struct {
	store   *memStore
	audit   *memAudit
	clock   *instantClock
	adapter *scriptedAdapter
	orch    *Orchestrator
	rec     *RecoveryEngine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   newMemStore(),
		audit:   &memAudit{},
		clock:   &instantClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		adapter: &scriptedAdapter{},
	}
	logger := audit.NewLogger(f.audit, f.clock)
	runner := steps.NewExecutor(f.adapter, f.clock, steps.WithSlippage(func() decimal.Decimal { return decimal.RequireFromString("0.997") }))
	f.rec = NewRecoveryEngine(runner, logger, f.clock, models.DefaultRetryConfig(), WithJitter(func() float64 { return 1.0 }))
	f.orch = NewOrchestrator(f.store, runner, f.rec, logger)
	return f
}

// fourStepDefinition is onramp -> bridge -> swap -> transfer.
func fourStepDefinition() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		Name:               "Cross-Chain Swap",
		SourceAddress:      "0xSourceWallet001",
		DestinationAddress: "0xDestWallet001",
		Steps: []domain.StepDefinition{
			{Type: models.StepOnramp, Network: models.NetworkA, Token: "USDC", Amount: decimal.NewFromInt(100)},
			{Type: models.StepBridge, Network: models.NetworkA, DestinationNetwork: models.NetworkB, Token: "USDC", Amount: decimal.NewFromInt(100)},
			{Type: models.StepSwap, Network: models.NetworkB, Token: "USDC", DestinationToken: "WETH", Amount: decimal.NewFromInt(100)},
			{Type: models.StepTransfer, Network: models.NetworkB, Token: "WETH", Amount: decimal.NewFromInt(100)},
		},
	}
}

// blockingClock never fires.
type blockingClock struct{}

func (blockingClock) Now() time.Time                         { return time.Time{} }
func (blockingClock) After(d time.Duration) <-chan time.Time { return make(chan time.Time) }
func (blockingClock) Sleep(time.Duration)                    {}
