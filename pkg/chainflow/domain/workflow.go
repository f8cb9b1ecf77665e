package domain

import (
	"time"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/shopspring/decimal"
)

type Workflow struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Status      models.WorkflowStatus `json:"status"`
	CurrentStep int                   `json:"currentStep"`
	TotalSteps  int                   `json:"totalSteps"`
	Definition  WorkflowDefinition    `json:"definition"`
	StepResults []StepResult          `json:"stepResults"`
	ExecutorID  int64                 `json:"executorId,omitempty"` // holder of the execution lease, 0 when free
	Created     time.Time             `json:"createdAt"`
	Updated     time.Time             `json:"updatedAt"`
	Completed   *time.Time            `json:"completedAt,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// CompletedResults returns the completed step results in step order.
func (w *Workflow) CompletedResults() []StepResult {
	return CompletedResults(w.StepResults)
}

func CompletedResults(results []StepResult) []StepResult {
	var out []StepResult
	for _, r := range results {
		if r.Status == models.StepCompleted {
			out = append(out, r)
		}
	}
	return out
}

// StepResult is the outcome of one step attempt.
type StepResult struct {
	StepIndex  int               `json:"stepIndex"`
	Type       models.StepType   `json:"type"`
	Status     models.StepStatus `json:"status"`
	Network    models.NetworkID  `json:"network"`
	TxRef      string            `json:"txRef,omitempty"`
	Amount     decimal.Decimal   `json:"amount"`
	Token      string            `json:"token"`
	Fee        decimal.Decimal   `json:"fee"`
	DurationMs int64             `json:"durationMs"`
	RetryCount int               `json:"retryCount"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Started    time.Time         `json:"startedAt"`
	Completed  *time.Time        `json:"completedAt,omitempty"`
}

// Clone returns a copy that shares no metadata map with the receiver.
func (r StepResult) Clone() StepResult {
	if r.Metadata != nil {
		md := make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			md[k] = v
		}
		r.Metadata = md
	}
	return r
}
