package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RealZimboGuy/chainflow/internal/statemachine"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/core"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/domain"
	"github.com/RealZimboGuy/chainflow/pkg/chainflow/models"
	"github.com/google/uuid"
)

const ALL_COLUMNS = `id, name, description, source_address, destination_address, status, current_step, total_steps,
	error_message, executor_id, created, updated, completed`

const terminalStatuses = `('COMPLETED', 'WITHDRAWN')`

type WorkflowRepository struct {
	db    *sql.DB
	clock core.Clock
}

func NewWorkflowRepository(db *sql.DB, clock core.Clock) *WorkflowRepository {
	return &WorkflowRepository{db: db, clock: clock}
}

func NewWorkflowID() string {
	return "wf_" + uuid.NewString()[:8]
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateWorkflow stores the definition rows and a new workflow in status CREATED.
func (r *WorkflowRepository) CreateWorkflow(ctx context.Context, def domain.WorkflowDefinition) (*domain.Workflow, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}
	now := r.clock.Now().UTC()
	wf := &domain.Workflow{
		ID:          NewWorkflowID(),
		Name:        def.Name,
		Description: def.Description,
		Status:      models.WorkflowCreated,
		TotalSteps:  len(def.Steps),
		Definition:  def,
		StepResults: []domain.StepResult{},
		Created:     now,
		Updated:     now,
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `INSERT INTO workflows (
		id, name, description, source_address, destination_address, status, current_step, total_steps, created, updated
	) VALUES (` + placeholders(1, 10) + `)`
	if _, err := tx.ExecContext(ctx, query, wf.ID, def.Name, def.Description, def.SourceAddress, def.DestinationAddress,
		string(wf.Status), 0, wf.TotalSteps, formatDateInDatabase(now), formatDateInDatabase(now)); err != nil {
		return nil, fmt.Errorf("insert workflow: %w", err)
	}

	stepQuery := `INSERT INTO workflow_steps (
		workflow_id, step_index, type, network, destination_network, token, destination_token, amount, to_address
	) VALUES (` + placeholders(1, 9) + `)`
	for i, s := range def.Steps {
		if _, err := tx.ExecContext(ctx, stepQuery, wf.ID, i, string(s.Type), string(s.Network), string(s.DestinationNetwork),
			s.Token, s.DestinationToken, s.Amount.String(), s.ToAddress); err != nil {
			return nil, fmt.Errorf("insert workflow step %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return wf, nil
}

func (r *WorkflowRepository) FindByID(ctx context.Context, id string) (*domain.Workflow, error) {
	query := `SELECT ` + ALL_COLUMNS + ` FROM workflows WHERE id = ` + placeholder(1)
	wf, err := scanWorkflow(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadChildren(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*domain.Workflow, error) {
	var (
		wf         domain.Workflow
		status     string
		errMsg     sql.NullString
		executorID sql.NullInt64
		completed  sql.NullTime
	)
	err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &wf.Definition.SourceAddress, &wf.Definition.DestinationAddress,
		&status, &wf.CurrentStep, &wf.TotalSteps, &errMsg, &executorID, &wf.Created, &wf.Updated, &completed)
	if err != nil {
		return nil, err
	}
	wf.Status = models.WorkflowStatus(status)
	wf.Error = errMsg.String
	wf.ExecutorID = executorID.Int64
	wf.Definition.Name = wf.Name
	wf.Definition.Description = wf.Description
	wf.Created = wf.Created.UTC()
	wf.Updated = wf.Updated.UTC()
	if completed.Valid {
		t := completed.Time.UTC()
		wf.Completed = &t
	}
	return &wf, nil
}

// loadChildren reads the definition steps and the step results with their metadata.
func (r *WorkflowRepository) loadChildren(ctx context.Context, wf *domain.Workflow) error {
	rows, err := r.db.QueryContext(ctx, `SELECT type, network, destination_network, token, destination_token, amount, to_address
		FROM workflow_steps WHERE workflow_id = `+placeholder(1)+` ORDER BY step_index`, wf.ID)
	if err != nil {
		return err
	}
	steps := []domain.StepDefinition{}
	for rows.Next() {
		var s domain.StepDefinition
		var typ, nw, dest string
		if err := rows.Scan(&typ, &nw, &dest, &s.Token, &s.DestinationToken, &s.Amount, &s.ToAddress); err != nil {
			rows.Close()
			return err
		}
		s.Type, s.Network, s.DestinationNetwork = models.StepType(typ), models.NetworkID(nw), models.NetworkID(dest)
		steps = append(steps, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	wf.Definition.Steps = steps

	rows, err = r.db.QueryContext(ctx, `SELECT step_index, type, status, network, tx_ref, amount, token, fee, duration_ms,
		retry_count, error_message, started, completed
		FROM workflow_step_results WHERE workflow_id = `+placeholder(1)+` ORDER BY step_index`, wf.ID)
	if err != nil {
		return err
	}
	results := []domain.StepResult{}
	for rows.Next() {
		var (
			res             domain.StepResult
			typ, status, nw string
			completed       sql.NullTime
		)
		if err := rows.Scan(&res.StepIndex, &typ, &status, &nw, &res.TxRef, &res.Amount, &res.Token, &res.Fee,
			&res.DurationMs, &res.RetryCount, &res.Error, &res.Started, &completed); err != nil {
			rows.Close()
			return err
		}
		res.Type, res.Status, res.Network = models.StepType(typ), models.StepStatus(status), models.NetworkID(nw)
		res.Started = res.Started.UTC()
		if completed.Valid {
			t := completed.Time.UTC()
			res.Completed = &t
		}
		res.Metadata = map[string]string{}
		results = append(results, res)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.db.QueryContext(ctx, `SELECT step_index, meta_key, meta_value
		FROM workflow_step_result_metadata WHERE workflow_id = `+placeholder(1), wf.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var k, v string
		if err := rows.Scan(&idx, &k, &v); err != nil {
			return err
		}
		if idx >= 0 && idx < len(results) {
			results[idx].Metadata[k] = v
		}
	}
	wf.StepResults = results
	return rows.Err()
}

// UpdateStatus writes status and error message. Terminal rows are never modified; the completed
// timestamp is set when the new status is terminal.
func (r *WorkflowRepository) UpdateStatus(ctx context.Context, id string, status models.WorkflowStatus, errMsg string) error {
	now := r.clock.Now().UTC()
	var completed *time.Time
	if statemachine.IsTerminalWorkflow(status) {
		completed = &now
	}
	query := `UPDATE workflows
		SET status = ` + placeholder(1) + `, error_message = ` + placeholder(2) + `, updated = ` + placeholder(3) + `,
		    completed = COALESCE(` + placeholder(4) + `, completed)
		WHERE id = ` + placeholder(5) + ` AND status NOT IN ` + terminalStatuses
	res, err := r.db.ExecContext(ctx, query, string(status), nullString(errMsg), formatDateInDatabase(now),
		formatDateInDatabaseNull(completed), id)
	if err != nil {
		return err
	}
	return r.checkAffected(ctx, r.db, res, id)
}

// UpdateStep persists progress in one transaction. It refuses to lower current_step, to store more
// results than steps, or to touch a terminal workflow.
func (r *WorkflowRepository) UpdateStep(ctx context.Context, id string, currentStep int, results []domain.StepResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	var current, total int
	err = tx.QueryRowContext(ctx, `SELECT status, current_step, total_steps FROM workflows WHERE id = `+placeholder(1)+forUpdate(), id).
		Scan(&status, &current, &total)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}
	switch {
	case statemachine.IsTerminalWorkflow(models.WorkflowStatus(status)):
		return fmt.Errorf("workflow %s: %w", id, core.ErrTerminal)
	case currentStep < current:
		return fmt.Errorf("workflow %s: current step cannot decrease from %d to %d", id, current, currentStep)
	case currentStep > total:
		return fmt.Errorf("workflow %s: current step %d beyond %d steps", id, currentStep, total)
	case len(results) > total:
		return fmt.Errorf("workflow %s: %d results exceed %d steps", id, len(results), total)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE workflows SET current_step = `+placeholder(1)+`, updated = `+placeholder(2)+
		` WHERE id = `+placeholder(3), currentStep, formatDateInDatabase(r.clock.Now()), id); err != nil {
		return err
	}
	if err := replaceResults(ctx, tx, id, results); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceResults(ctx context.Context, q querier, id string, results []domain.StepResult) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM workflow_step_result_metadata WHERE workflow_id = `+placeholder(1), id); err != nil {
		return err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM workflow_step_results WHERE workflow_id = `+placeholder(1), id); err != nil {
		return err
	}
	insert := `INSERT INTO workflow_step_results (
		workflow_id, step_index, type, status, network, tx_ref, amount, token, fee, duration_ms,
		retry_count, error_message, started, completed
	) VALUES (` + placeholders(1, 14) + `)`
	meta := `INSERT INTO workflow_step_result_metadata (workflow_id, step_index, meta_key, meta_value) VALUES (` + placeholders(1, 4) + `)`
	for i, res := range results {
		if _, err := q.ExecContext(ctx, insert, id, i, string(res.Type), string(res.Status), string(res.Network), res.TxRef,
			res.Amount.String(), res.Token, res.Fee.String(), res.DurationMs, res.RetryCount, res.Error,
			formatDateInDatabase(res.Started), formatDateInDatabaseNull(res.Completed)); err != nil {
			return fmt.Errorf("insert step result %d: %w", i, err)
		}
		for k, v := range res.Metadata {
			if _, err := q.ExecContext(ctx, meta, id, i, k, v); err != nil {
				return fmt.Errorf("insert step result %d metadata %s: %w", i, k, err)
			}
		}
	}
	return nil
}

// Claim takes the execution lease. Only one executor can hold it and terminal workflows cannot be claimed.
func (r *WorkflowRepository) Claim(ctx context.Context, id string, executorID int64) (bool, error) {
	query := `UPDATE workflows SET executor_id = ` + placeholder(1) + `
		WHERE id = ` + placeholder(2) + ` AND executor_id IS NULL AND status NOT IN ` + terminalStatuses
	res, err := r.db.ExecContext(ctx, query, executorID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *WorkflowRepository) Release(ctx context.Context, id string, executorID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE workflows SET executor_id = NULL WHERE id = `+placeholder(1)+
		` AND executor_id = `+placeholder(2), id, executorID)
	return err
}

func (r *WorkflowRepository) ClearExecutor(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE workflows SET executor_id = NULL WHERE id = `+placeholder(1), id)
	return err
}

// ListWorkflows returns the newest workflows first, optionally filtered by status.
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, status models.WorkflowStatus, limit int) ([]domain.Workflow, error) {
	if limit <= 0 {
		limit = 50
	}
	var args []any
	where := ""
	if status != "" {
		where = ` WHERE status = ` + placeholder(1)
		args = append(args, string(status))
	}
	args = append(args, limit)
	query := `SELECT ` + ALL_COLUMNS + ` FROM workflows` + where + ` ORDER BY created DESC LIMIT ` + placeholder(len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var list []*domain.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		list = append(list, wf)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Workflow, 0, len(list))
	for _, wf := range list {
		if err := r.loadChildren(ctx, wf); err != nil {
			return nil, err
		}
		out = append(out, *wf)
	}
	return out, nil
}

// Stats counts workflows by outcome. failed covers FAILED and WITHDRAWN; active covers EXECUTING, PENDING and RECOVERING.
func (r *WorkflowRepository) Stats(ctx context.Context) (domain.WorkflowStats, error) {
	var st domain.WorkflowStats
	rows, err := r.db.QueryContext(ctx, `SELECT status, created, completed FROM workflows`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	var totalMs, finished int64
	for rows.Next() {
		var status string
		var created time.Time
		var completed sql.NullTime
		if err := rows.Scan(&status, &created, &completed); err != nil {
			return st, err
		}
		st.Total++
		switch models.WorkflowStatus(status) {
		case models.WorkflowCompleted:
			st.Completed++
		case models.WorkflowFailed, models.WorkflowWithdrawn:
			st.Failed++
		case models.WorkflowExecuting, models.WorkflowPending, models.WorkflowRecovering:
			st.Active++
		}
		if completed.Valid {
			totalMs += completed.Time.Sub(created).Milliseconds()
			finished++
		}
	}
	if err := rows.Err(); err != nil {
		return st, err
	}
	if finished > 0 {
		st.AvgDurationMs = (totalMs + finished/2) / finished
	}
	if st.Total > 0 {
		st.SuccessRate = (st.Completed*100 + st.Total/2) / st.Total
	}
	return st, nil
}

// FindStuckWorkflows returns non-terminal workflows leased by an executor that has not been active since inactiveSince.
func (r *WorkflowRepository) FindStuckWorkflows(ctx context.Context, inactiveSince time.Time, limit int) ([]domain.StuckWorkflow, error) {
	query := `
		SELECT id, executor_id
		FROM workflows
		WHERE executor_id IS NOT NULL
		  AND status NOT IN ` + terminalStatuses + `
		  AND executor_id NOT IN (
		      SELECT id
		      FROM executors
		      WHERE last_active > ` + placeholder(1) + `
		  )
		ORDER BY updated ASC
		LIMIT ` + placeholder(2)
	rows, err := r.db.QueryContext(ctx, query, formatDateInDatabase(inactiveSince), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StuckWorkflow
	for rows.Next() {
		var s domain.StuckWorkflow
		if err := rows.Scan(&s.ID, &s.ExecutorID); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// checkAffected turns a zero-row update into ErrNotFound or ErrTerminal.
func (r *WorkflowRepository) checkAffected(ctx context.Context, q querier, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM workflows WHERE id = `+placeholder(1), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ErrNotFound
	}
	if err != nil {
		return err
	}
	if statemachine.IsTerminalWorkflow(models.WorkflowStatus(status)) {
		return fmt.Errorf("workflow %s: %w", id, core.ErrTerminal)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: strings.TrimSpace(s) != ""}
}
