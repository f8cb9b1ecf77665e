package domain

import (
	"time"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

// AuditEntry is one structured event in a workflow's audit trail.
// Step is -1 for workflow level events.
type AuditEntry struct {
	ID         string             `json:"id"`
	WorkflowID string             `json:"workflowId"`
	Step       int                `json:"step"`
	Action     string             `json:"action"`
	Network    models.NetworkID   `json:"network"`
	Status     models.AuditStatus `json:"status"`
	TxRef      string             `json:"txRef,omitempty"`
	Amount     string             `json:"amount,omitempty"`
	Token      string             `json:"token,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
	DurationMs int64              `json:"durationMs,omitempty"`
	Fee        string             `json:"fee,omitempty"`
	Metadata   map[string]string  `json:"metadata,omitempty"`
	Message    string             `json:"message,omitempty"`
}

// AuditFilter narrows an audit log query. Zero values are ignored.
type AuditFilter struct {
	WorkflowID string
	Network    models.NetworkID
	Status     models.AuditStatus
	Limit      int
}
