package controllers

import "net/http"

// RegisterRoutes wires the HTTP routes for this controller.
func (c *WorkflowsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/workflows", c.RequireAuth(c.handleListWorkflows))
	mux.HandleFunc("POST /api/workflows", c.RequireAuth(c.handleCreateWorkflow))
	mux.HandleFunc("GET /api/workflows/{id}", c.RequireAuth(c.handleGetWorkflow))
	mux.HandleFunc("POST /api/workflows/{id}/execute", c.RequireAuth(c.handleExecuteWorkflow))
	mux.HandleFunc("GET /api/stats", c.RequireAuth(c.handleStats))
}
func (c *LogsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/logs", c.RequireAuth(c.handleGetLogs))
}
func (c *ExecutorsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/executors", c.RequireAuth(c.handleGetExecutors))
}
func (c *CatalogueController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/networks", c.RequireAuth(c.handleGetNetworks))
	mux.HandleFunc("GET /api/templates", c.RequireAuth(c.handleGetTemplates))
}

// NewRouter builds the full REST surface.
func NewRouter(service WorkflowService, apiKeyHash string) *http.ServeMux {
	auth := NewAuthController(apiKeyHash)
	mux := http.NewServeMux()
	NewWorkflowsController(service, auth).RegisterRoutes(mux)
	NewLogsController(service, auth).RegisterRoutes(mux)
	NewExecutorsController(service, auth).RegisterRoutes(mux)
	NewCatalogueController(auth).RegisterRoutes(mux)
	return mux
}
