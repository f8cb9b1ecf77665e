// Package chainflow wires the engine, persistence and REST surface into a runnable service.
package chainflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/RealZimboGuy/chainflow/internal/audit"
	"github.com/RealZimboGuy/chainflow/internal/config"
	"github.com/RealZimboGuy/chainflow/internal/controllers"
	"github.com/RealZimboGuy/chainflow/internal/engine"
	"github.com/RealZimboGuy/chainflow/internal/network"
	"github.com/RealZimboGuy/chainflow/internal/repository"
	"github.com/RealZimboGuy/chainflow/internal/steps"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/lmittmann/tint"
)

const shutdownTimeout = 15 * time.Second

// App is a fully wired engine bound to one database.
type App struct {
	DB      *sql.DB
	Manager *engine.WorkflowManager
}

// Bootstrap opens the configured database, runs migrations and registers this process as an executor.
// A nil adapter selects the simulated networks.
func Bootstrap(ctx context.Context, adapter network.Adapter) (*App, error) {
	db, err := repository.Open()
	if err != nil {
		return nil, err
	}
	clock := core.NewRealClock()
	if adapter == nil {
		adapter = network.NewSimulator(clock, network.WithMaxLatency(config.GetSystemSettingDuration(config.NETWORK_MAX_LATENCY)))
	}

	workflowRepo := repository.NewWorkflowRepository(db, clock)
	auditRepo := repository.NewAuditLogRepository(db)
	executorRepo := repository.NewExecutorRepository(db)

	auditLogger := audit.NewLogger(auditRepo, clock)
	runner := steps.NewExecutor(adapter, clock)
	retry := models.RetryConfig{
		MaxRetryCount: config.GetSystemSettingInteger(config.RECOVERY_MAX_RETRIES),
		BaseInterval:  config.GetSystemSettingDuration(config.RECOVERY_BACKOFF_BASE),
		MaxInterval:   config.GetSystemSettingDuration(config.RECOVERY_BACKOFF_MAX),
	}
	recovery := engine.NewRecoveryEngine(runner, auditLogger, clock, retry)
	orchestrator := engine.NewOrchestrator(workflowRepo, runner, recovery, auditLogger)
	manager := engine.NewWorkflowManager(workflowRepo, auditRepo, executorRepo, orchestrator, auditLogger, clock)

	if err := manager.RegisterExecutor(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &App{DB: db, Manager: manager}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

// Start boots the workflow engine and HTTP server and blocks until ctx is cancelled,
// then shuts both down. Extra routes may be registered on mux before calling.
func Start(ctx context.Context, mux *http.ServeMux) error {
	app, err := Bootstrap(ctx, nil)
	if err != nil {
		return err
	}
	defer app.Close()

	engineCtx, stopEngine := context.WithCancel(ctx)
	defer stopEngine()
	engineDone := make(chan error, 1)
	go func() { engineDone <- app.Manager.StartEngine(engineCtx) }()

	if mux == nil {
		mux = http.NewServeMux()
	}
	mux.Handle("/api/", controllers.NewRouter(app.Manager, config.GetSystemSettingString(config.API_KEY_HASH)))

	addr := ":" + config.GetSystemSettingString(config.SERVER_WEB_PORT)
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "addr", addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("Shutting down")
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		slog.Error("HTTP server shutdown failed", "error", serr)
	}
	stopEngine()
	<-engineDone

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run creates a workflow from def and executes it to a terminal state on the calling goroutine.
func (a *App) Run(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error) {
	wf, err := a.Manager.CreateWorkflow(ctx, def)
	if err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return a.Manager.ExecuteNow(ctx, wf.ID)
}

// SetupLogger installs a tint handler as the default slog logger, level from CFLOW_LOG_LEVEL.
func SetupLogger() {
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      parseLevel(config.GetSystemSettingString(config.LOG_LEVEL)),
			TimeFormat: time.RFC3339Nano,
		}),
	))
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo
	}
	return level
}
