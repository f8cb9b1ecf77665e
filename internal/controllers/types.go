package controllers

import (
	"context"

	"github.com/RealZimboGuy/chainflow/internal/network"
	"github.com/RealZimboGuy/chainflow/internal/templates"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

// WorkflowService is the part of engine.WorkflowManager the REST surface uses.
type WorkflowService interface {
	CreateWorkflow(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*domain.Workflow, error)
	ListWorkflows(ctx context.Context, status models.WorkflowStatus, limit int) ([]domain.Workflow, error)
	Stats(ctx context.Context) (domain.WorkflowStats, error)
	AuditLogs(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
	ListExecutors(ctx context.Context, limit int) ([]*domain.Executor, error)
	Submit(ctx context.Context, id string) (*domain.Workflow, error)
}

type CreateWorkflowRequest struct {
	TemplateID string                     `json:"templateId,omitempty"`
	Definition *domain.WorkflowDefinition `json:"definition,omitempty"`
}

type CreateWorkflowResponse struct {
	Workflow *domain.Workflow `json:"workflow"`
}

type ListWorkflowsResponse struct {
	Workflows []domain.Workflow    `json:"workflows"`
	Templates []templates.Template `json:"templates"`
}

type WorkflowDetailsResponse struct {
	Workflow  *domain.Workflow    `json:"workflow"`
	AuditLogs []domain.AuditEntry `json:"auditLogs"`
}

type ExecuteWorkflowResponse struct {
	Message    string `json:"message"`
	WorkflowID string `json:"workflowId"`
}

type LogsResponse struct {
	Logs []domain.AuditEntry `json:"logs"`
}

type NetworksResponse struct {
	Networks []network.ChainConfig `json:"networks"`
}

type TemplatesResponse struct {
	Templates []templates.Template `json:"templates"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
