package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
)

const defaultAuditLimit = 100

// AuditLogRepository stores audit entries. Entries are append only.
type AuditLogRepository struct {
	db *sql.DB
}

func NewAuditLogRepository(db *sql.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Save(ctx context.Context, e *domain.AuditEntry) error {
	var metadata any
	if len(e.Metadata) > 0 {
		b, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
		metadata = string(b)
	}
	query := `INSERT INTO audit_logs (
		id, workflow_id, step, action, network, status, tx_ref, amount, token, logged_at, duration_ms, fee, metadata, message
	) VALUES (` + placeholders(1, 14) + `)`
	_, err := r.db.ExecContext(ctx, query, e.ID, e.WorkflowID, e.Step, e.Action, string(e.Network), string(e.Status),
		e.TxRef, e.Amount, e.Token, formatDateInDatabase(e.Timestamp), e.DurationMs, e.Fee, metadata, e.Message)
	return err
}

// Find returns matching entries newest first.
func (r *AuditLogRepository) Find(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	query := `SELECT id, workflow_id, step, action, network, status, tx_ref, amount, token, logged_at, duration_ms, fee, metadata, message
		FROM audit_logs WHERE 1 = 1`
	var args []any
	if filter.WorkflowID != "" {
		args = append(args, filter.WorkflowID)
		query += ` AND workflow_id = ` + placeholder(len(args))
	}
	if filter.Network != "" {
		args = append(args, string(filter.Network))
		query += ` AND network = ` + placeholder(len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = ` + placeholder(len(args))
	}
	args = append(args, limit)
	query += ` ORDER BY logged_at DESC, id DESC LIMIT ` + placeholder(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []domain.AuditEntry{}
	for rows.Next() {
		var (
			e               domain.AuditEntry
			network, status string
			metadata        sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.Step, &e.Action, &network, &status, &e.TxRef, &e.Amount, &e.Token,
			&e.Timestamp, &e.DurationMs, &e.Fee, &metadata, &e.Message); err != nil {
			return nil, err
		}
		e.Network = models.NetworkID(network)
		e.Status = models.AuditStatus(status)
		e.Timestamp = e.Timestamp.UTC()
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("audit entry %s metadata: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
