package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/RealZimboGuy/chainflow/internal/audit"
	"github.com/RealZimboGuy/chainflow/internal/config"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

const heartbeatInterval = 30 * time.Second

type WorkflowManager struct {
	WorkflowRepo WorkflowRepo
	AuditRepo    AuditRepo
	executorRepo ExecutorRepo
	orchestrator *Orchestrator
	audit        *audit.Logger
	executorID   int64
	queue        chan *domain.Workflow
	clock        core.Clock
	workers      sync.WaitGroup
}

func NewWorkflowManager(workflowRepo WorkflowRepo, auditRepo AuditRepo, executorRepo ExecutorRepo,
	orchestrator *Orchestrator, auditLogger *audit.Logger, clock core.Clock) *WorkflowManager {
	queueSize := config.GetSystemSettingInteger(config.ENGINE_QUEUE_SIZE)
	if queueSize <= 0 {
		queueSize = 10
	}
	return &WorkflowManager{
		WorkflowRepo: workflowRepo,
		AuditRepo:    auditRepo,
		executorRepo: executorRepo,
		orchestrator: orchestrator,
		audit:        auditLogger,
		queue:        make(chan *domain.Workflow, queueSize),
		clock:        clock,
	}
}

func (wm *WorkflowManager) ExecutorID() int64 { return wm.executorID }

// CreateWorkflow validates and stores a new workflow; it does not start it.
func (wm *WorkflowManager) CreateWorkflow(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error) {
	return wm.orchestrator.Create(ctx, def)
}

func (wm *WorkflowManager) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	return wm.WorkflowRepo.FindByID(ctx, id)
}

func (wm *WorkflowManager) ListWorkflows(ctx context.Context, status models.WorkflowStatus, limit int) ([]domain.Workflow, error) {
	return wm.WorkflowRepo.ListWorkflows(ctx, status, limit)
}

func (wm *WorkflowManager) Stats(ctx context.Context) (domain.WorkflowStats, error) {
	return wm.WorkflowRepo.Stats(ctx)
}

func (wm *WorkflowManager) AuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	return wm.AuditRepo.Find(ctx, filter)
}

// ListExecutors returns recent executors ordered by last_active desc.
func (wm *WorkflowManager) ListExecutors(ctx context.Context, limit int) ([]*domain.Executor, error) {
	return wm.executorRepo.GetExecutorsByLastActive(ctx, limit)
}

// Submit performs admission synchronously and queues the workflow for a worker.
// It returns core.ErrNotFound, core.ErrTerminal, core.ErrAlreadyExecuting or core.ErrQueueFull.
func (wm *WorkflowManager) Submit(ctx context.Context, id string) (*domain.Workflow, error) {
	wf, admitted, err := wm.orchestrator.Admit(ctx, id, wm.executorID)
	if err != nil {
		return nil, err
	}
	if !admitted {
		return wf, core.ErrTerminal
	}
	select {
	case wm.queue <- wf:
		slog.InfoContext(ctx, "Workflow queued for execution", "workflowId", id, "queued", len(wm.queue))
		return wf, nil
	default:
		slog.WarnContext(ctx, "workflow queue full, rejecting submission", "workflowId", id)
		if err := wm.WorkflowRepo.Release(ctx, id, wm.executorID); err != nil {
			slog.ErrorContext(ctx, "Failed to release workflow", "workflowId", id, "error", err)
		}
		return nil, core.ErrQueueFull
	}
}

// ExecuteNow admits and runs the workflow on the calling goroutine, bypassing the queue.
func (wm *WorkflowManager) ExecuteNow(ctx context.Context, id string) (*domain.Workflow, error) {
	return wm.orchestrator.Execute(ctx, id, wm.executorID)
}

// RegisterExecutor records this process as an executor; its id becomes the lease owner for every claim.
func (wm *WorkflowManager) RegisterExecutor(ctx context.Context) error {
	name := config.GetSystemSettingString(config.EXECUTOR_NAME)
	if name == "" {
		hostname, err := os.Hostname()
		if err != nil {
			name = "chainflow-engine"
		} else {
			name = hostname
		}
	}
	now := wm.clock.Now()
	exec := &domain.Executor{Name: name, Started: now, LastActive: now}
	id, err := wm.executorRepo.Save(ctx, exec)
	if err != nil {
		return fmt.Errorf("register executor: %w", err)
	}
	wm.executorID = id
	slog.Info("Registered executor", "executor_id", id, "name", name)
	return nil
}

// StartEngine runs the workers, the repair service and the heartbeat until ctx is cancelled.
func (wm *WorkflowManager) StartEngine(ctx context.Context) error {
	if wm.executorID == 0 {
		if err := wm.RegisterExecutor(ctx); err != nil {
			return err
		}
	}
	go wm.heartbeat(ctx)
	go wm.startWorkflowRepairService(ctx)

	workers := config.GetSystemSettingInteger(config.ENGINE_EXECUTOR_SIZE)
	if workers <= 0 {
		workers = 1
	}
	slog.Info("Starting workflow engine", "workers", workers, "queue_size", cap(wm.queue), "executor_id", wm.executorID)
	for i := 0; i < workers; i++ {
		wm.workers.Add(1)
		go func(workerID int) {
			defer wm.workers.Done()
			Worker(ctx, workerID, wm.executorID, wm.orchestrator, wm.queue)
		}(i)
	}

	<-ctx.Done()
	slog.Info("Workflow engine stopping due to context cancel")
	wm.workers.Wait()
	wm.drainQueue()
	return nil
}

// drainQueue gives back the lease of every admitted workflow no worker picked up.
func (wm *WorkflowManager) drainQueue() {
	for {
		select {
		case wf := <-wm.queue:
			if err := wm.WorkflowRepo.Release(context.Background(), wf.ID, wm.executorID); err != nil {
				slog.Error("Failed to release queued workflow", "workflowId", wf.ID, "error", err)
			}
		default:
			return
		}
	}
}

func (wm *WorkflowManager) heartbeat(ctx context.Context) {
	hb := time.NewTicker(heartbeatInterval)
	defer hb.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-hb.C:
			if err := wm.executorRepo.UpdateLastActive(ctx, wm.executorID, wm.clock.Now()); err != nil {
				slog.Error("Failed to update executor last_active", "executor_id", wm.executorID, "error", err)
			} else {
				slog.Debug("Updated executor last_active", "executor_id", wm.executorID)
			}
		}
	}
}

// responsible for finding workflows whose executor died mid-run and resuming them here
func (wm *WorkflowManager) startWorkflowRepairService(ctx context.Context) {
	interval := config.GetSystemSettingDuration(config.ENGINE_STUCK_WORKFLOWS_INTERVAL)
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Workflow repair service stopping due to context cancel")
			return
		case <-ticker.C:
			wm.RepairStuckWorkflows(ctx)
		}
	}
}

// RepairStuckWorkflows clears the lease of workflows held by inactive executors and resubmits them.
func (wm *WorkflowManager) RepairStuckWorkflows(ctx context.Context) int {
	minutes := config.GetSystemSettingInteger(config.ENGINE_STUCK_WORKFLOWS_REPAIR_AFTER_MINUTES)
	cutoff := wm.clock.Now().Add(-time.Duration(minutes) * time.Minute)

	stuck, err := wm.WorkflowRepo.FindStuckWorkflows(ctx, cutoff, 100)
	if err != nil {
		slog.Error("Error finding stuck workflows", "error", err)
		return 0
	}
	repaired := 0
	for _, s := range stuck {
		slog.Warn("Repairing stuck workflow", "workflowId", s.ID, "previousExecutor", s.ExecutorID)
		if err := wm.WorkflowRepo.ClearExecutor(ctx, s.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to repair clear executor id", "workflowId", s.ID, "error", err)
			continue
		}
		wm.audit.Log(ctx, domain.AuditEntry{
			WorkflowID: s.ID,
			Step:       audit.WorkflowLevel,
			Action:     "workflow_repaired",
			Status:     models.AuditInfo,
			Message:    fmt.Sprintf("Repaired and rescheduled, previous executor was: %d", s.ExecutorID),
		})
		if _, err := wm.Submit(ctx, s.ID); err != nil {
			slog.WarnContext(ctx, "Failed to resubmit repaired workflow", "workflowId", s.ID, "error", err)
			continue
		}
		repaired++
	}
	return repaired
}
