package controllers

import (
	"context"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

type MockWorkflowService struct {
	CreateWorkflowFunc func(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error)
	GetWorkflowFunc    func(ctx context.Context, id string) (*domain.Workflow, error)
	ListWorkflowsFunc  func(ctx context.Context, status models.WorkflowStatus, limit int) ([]domain.Workflow, error)
	StatsFunc          func(ctx context.Context) (domain.WorkflowStats, error)
	AuditLogsFunc      func(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
	ListExecutorsFunc  func(ctx context.Context, limit int) ([]*domain.Executor, error)
	SubmitFunc         func(ctx context.Context, id string) (*domain.Workflow, error)
}

func (m *MockWorkflowService) CreateWorkflow(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error) {
	if m.CreateWorkflowFunc != nil {
		return m.CreateWorkflowFunc(ctx, def)
	}
	return &domain.Workflow{ID: "wf_00000001", Name: def.Name, Status: models.WorkflowCreated, Definition: def}, nil
}

func (m *MockWorkflowService) GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error) {
	if m.GetWorkflowFunc != nil {
		return m.GetWorkflowFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockWorkflowService) ListWorkflows(ctx context.Context, status models.WorkflowStatus, limit int) ([]domain.Workflow, error) {
	if m.ListWorkflowsFunc != nil {
		return m.ListWorkflowsFunc(ctx, status, limit)
	}
	return nil, nil
}

func (m *MockWorkflowService) Stats(ctx context.Context) (domain.WorkflowStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx)
	}
	return domain.WorkflowStats{}, nil
}

func (m *MockWorkflowService) AuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if m.AuditLogsFunc != nil {
		return m.AuditLogsFunc(ctx, filter)
	}
	return nil, nil
}

func (m *MockWorkflowService) ListExecutors(ctx context.Context, limit int) ([]*domain.Executor, error) {
	if m.ListExecutorsFunc != nil {
		return m.ListExecutorsFunc(ctx, limit)
	}
	return nil, nil
}

func (m *MockWorkflowService) Submit(ctx context.Context, id string) (*domain.Workflow, error) {
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, id)
	}
	return &domain.Workflow{ID: id, Status: models.WorkflowCreated}, nil
}
