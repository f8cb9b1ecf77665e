package controllers

import (
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/chainflow/internal/util"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

type LogsController struct {
	AuthController
	Service WorkflowService
}

func NewLogsController(service WorkflowService, auth AuthController) *LogsController {
	return &LogsController{Service: service, AuthController: auth}
}

func (c *LogsController) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		WorkflowID: q.Get("workflowId"),
		Network:    models.NetworkID(q.Get("network")),
		Status:     models.AuditStatus(q.Get("status")),
		Limit:      queryLimit(r, 100),
	}
	logs, err := c.Service.AuditLogs(r.Context(), filter)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to search audit logs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search audit logs")
		return
	}
	if logs == nil {
		logs = []domain.AuditEntry{}
	}
	util.WriteJSONResponse(w, http.StatusOK, LogsResponse{Logs: logs})
}
