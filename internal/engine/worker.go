package engine

import (
	"context"
	"log/slog"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
)

// Worker runs admitted workflows from the queue until ctx is cancelled.
func Worker(ctx context.Context, id int, executorID int64, orchestrator *Orchestrator, queue <-chan *domain.Workflow) {
	for {
		select {
		case <-ctx.Done():
			return
		case wf := <-queue:
			slog.Info("Worker starting workflow", "worker_id", id, "workflowId", wf.ID)
			final, err := orchestrator.Run(ctx, wf, executorID)
			if err != nil {
				slog.Error("Worker workflow run failed", "worker_id", id, "workflowId", wf.ID, "error", err)
				continue
			}
			slog.Info("Worker finished workflow", "worker_id", id, "workflowId", wf.ID, "status", final.Status)
		}
	}
}
