package controllers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/RealZimboGuy/chainflow/internal/templates"
	"github.com/RealZimboGuy/chainflow/internal/util"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

const workflowAuditLimit = 200

// WorkflowsController holds dependencies for workflow HTTP endpoints.
type WorkflowsController struct {
	AuthController
	Service WorkflowService
}

func NewWorkflowsController(service WorkflowService, auth AuthController) *WorkflowsController {
	return &WorkflowsController{Service: service, AuthController: auth}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	util.WriteJSONResponse(w, status, ErrorResponse{Error: msg})
}

// queryLimit parses ?limit=, falling back to def when absent or invalid.
func queryLimit(r *http.Request, def int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (c *WorkflowsController) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	status := models.WorkflowStatus(r.URL.Query().Get("status"))
	workflows, err := c.Service.ListWorkflows(r.Context(), status, queryLimit(r, 50))
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list workflows", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list workflows")
		return
	}
	if workflows == nil {
		workflows = []domain.Workflow{}
	}
	util.WriteJSONResponse(w, http.StatusOK, ListWorkflowsResponse{Workflows: workflows, Templates: templates.All()})
}

func (c *WorkflowsController) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	req, err := util.DecodeJSONBody[CreateWorkflowRequest](r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	var def domain.WorkflowDefinition
	switch {
	case req.TemplateID != "":
		tpl, ok := templates.Get(req.TemplateID)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown template: %s", req.TemplateID))
			return
		}
		def = tpl.Definition
	case req.Definition != nil:
		def = *req.Definition
	default:
		writeError(w, http.StatusBadRequest, "Provide templateId or definition")
		return
	}

	slog.InfoContext(r.Context(), "Creating workflow", "name", def.Name, "templateId", req.TemplateID, "caller", r.Context().Value(core.CtxKeyCaller))
	wf, err := c.Service.CreateWorkflow(r.Context(), def)
	if errors.Is(err, domain.ErrInvalidDefinition) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to create workflow", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create workflow")
		return
	}
	util.WriteJSONResponse(w, http.StatusCreated, CreateWorkflowResponse{Workflow: wf})
}

func (c *WorkflowsController) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	wf, err := c.Service.GetWorkflow(r.Context(), id)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load workflow", "workflowId", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load workflow")
		return
	}
	logs, err := c.Service.AuditLogs(r.Context(), domain.AuditFilter{WorkflowID: id, Limit: workflowAuditLimit})
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to load audit logs", "workflowId", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load audit logs")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, WorkflowDetailsResponse{Workflow: wf, AuditLogs: logs})
}

// handleExecuteWorkflow admits the workflow and returns immediately; clients poll GET /api/workflows/{id}.
func (c *WorkflowsController) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	wf, err := c.Service.Submit(r.Context(), id)
	switch {
	case err == nil:
		util.WriteJSONResponse(w, http.StatusAccepted, ExecuteWorkflowResponse{Message: "Execution started", WorkflowID: id})
	case errors.Is(err, core.ErrNotFound):
		writeError(w, http.StatusNotFound, "Workflow not found")
	case errors.Is(err, core.ErrTerminal):
		msg := "Workflow already in terminal state"
		if wf != nil {
			msg += ": " + string(wf.Status)
		}
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, core.ErrAlreadyExecuting):
		writeError(w, http.StatusConflict, "Workflow is already executing")
	case errors.Is(err, core.ErrQueueFull):
		writeError(w, http.StatusServiceUnavailable, "Execution queue is full, try again later")
	default:
		slog.ErrorContext(r.Context(), "Failed to submit workflow", "workflowId", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start workflow")
	}
}

func (c *WorkflowsController) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := c.Service.Stats(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to compute stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	util.WriteJSONResponse(w, http.StatusOK, st)
}
