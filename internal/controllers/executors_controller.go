package controllers

import (
	"log/slog"
	"net/http"

	"github.com/RealZimboGuy/chainflow/internal/util"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
)

type ExecutorsController struct {
	AuthController
	Service WorkflowService
}

func NewExecutorsController(service WorkflowService, auth AuthController) *ExecutorsController {
	return &ExecutorsController{Service: service, AuthController: auth}
}

func (c *ExecutorsController) handleGetExecutors(w http.ResponseWriter, r *http.Request) {
	results, err := c.Service.ListExecutors(r.Context(), 20)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to search executors", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to search executors")
		return
	}
	if results == nil {
		results = []*domain.Executor{}
	}
	util.WriteJSONResponse(w, http.StatusOK, results)
}
