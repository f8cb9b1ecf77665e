package engine

import (
	"context"
	"time"

	"github.com/RealZimboGuy/chainflow/internal/steps"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

// WorkflowStore is the persistence contract the orchestrator drives. Every call is atomic per workflow id.
type WorkflowStore interface {
	CreateWorkflow(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error)
	FindByID(ctx context.Context, id string) (*domain.Workflow, error)
	UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, errMsg string) error
	UpdateStep(ctx context.Context, id string, currentStep int, results []domain.StepResult) error
	Claim(ctx context.Context, id string, executorID int64) (bool, error)
	Release(ctx context.Context, id string, executorID int64) error
}

// WorkflowRepo adds the query and repair operations used by the manager, matching repository.WorkflowRepository.
type WorkflowRepo interface {
	WorkflowStore
	ListWorkflows(ctx context.Context, status models.WorkflowStatus, limit int) ([]domain.Workflow, error)
	Stats(ctx context.Context) (domain.WorkflowStats, error)
	FindStuckWorkflows(ctx context.Context, inactiveSince time.Time, limit int) ([]domain.StuckWorkflow, error)
	ClearExecutor(ctx context.Context, id string) error
}

type AuditRepo interface {
	Save(ctx context.Context, e *domain.AuditEntry) error
	Find(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
}

type ExecutorRepo interface {
	Save(ctx context.Context, e *domain.Executor) (int64, error)
	UpdateLastActive(ctx context.Context, id int64, ts time.Time) error
	GetExecutorsByLastActive(ctx context.Context, limit int) ([]*domain.Executor, error)
}

// StepRunner executes a single step attempt, satisfied by *steps.Executor.
type StepRunner interface {
	Execute(ctx context.Context, def domain.StepDefinition, ec steps.ExecutionContext) (domain.StepResult, error)
}
