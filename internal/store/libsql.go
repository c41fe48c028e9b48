package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/calder-io/flowgate/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *Workflow) error {
	trigger, err := json.Marshal(wf.Trigger)
	if err != nil {
		return fmt.Errorf("marshal trigger: %w", err)
	}
	steps, err := json.Marshal(wf.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	stats, err := json.Marshal(wf.Stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, org_id, name, description, status, trigger, steps, stats, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.ID, wf.OrgID, wf.Name, nullStr(wf.Description), string(wf.Status),
		string(trigger), string(steps), string(stats),
		timeOrNow(wf.CreatedAt), timeOrNow(wf.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, name, description, status, trigger, steps, stats, created_at, updated_at
		 FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return wf, err
}

func (s *LibSQLStore) UpdateWorkflow(ctx context.Context, id string, update WorkflowUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Stats != nil {
		stats, err := json.Marshal(update.Stats)
		if err != nil {
			return fmt.Errorf("marshal stats: %w", err)
		}
		sets = append(sets, "stats = ?")
		args = append(args, string(stats))
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE workflows SET %s WHERE id = ?", strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*Workflow, error) {
	var where []string
	var args []any

	if filter.OrgID != "" {
		where = append(where, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.TriggerType != "" {
		where = append(where, "json_extract(trigger, '$.type') = ?")
		args = append(args, filter.TriggerType)
	}

	query := `SELECT id, org_id, name, description, status, trigger, steps, stats, created_at, updated_at FROM workflows`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workflows []*Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkflow(row rowScanner) (*Workflow, error) {
	wf := &Workflow{}
	var (
		description                    sql.NullString
		status, trigger, steps, stats  string
	)
	err := row.Scan(&wf.ID, &wf.OrgID, &wf.Name, &description, &status,
		&trigger, &steps, &stats, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}
	wf.Description = description.String
	wf.Status = schema.WorkflowStatus(status)
	if err := json.Unmarshal([]byte(trigger), &wf.Trigger); err != nil {
		return nil, fmt.Errorf("unmarshal trigger: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &wf.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal([]byte(stats), &wf.Stats); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	return wf, nil
}

// --- Executions ---

func (s *LibSQLStore) CreateExecution(ctx context.Context, ex *Execution) error {
	input, err := marshalMapOrNull(ex.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	output, err := marshalMapOrNull(ex.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	results, err := json.Marshal(ex.StepResults)
	if err != nil {
		return fmt.Errorf("marshal step results: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions (id, workflow_id, org_id, status, triggered_by, input, output, error, step_results, created_at, started_at, completed_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ex.ID, ex.WorkflowID, ex.OrgID, string(ex.Status), ex.TriggeredBy,
		input, output, nullStr(ex.Error), string(results),
		timeOrNow(ex.CreatedAt), nullTime(ex.StartedAt), nullTime(ex.CompletedAt), ex.DurationMs,
	)
	return err
}

func (s *LibSQLStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, workflow_id, org_id, status, triggered_by, input, output, error, step_results, created_at, started_at, completed_at, duration_ms
		 FROM executions WHERE id = ?`, id)
	ex, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ex, err
}

func (s *LibSQLStore) UpdateExecution(ctx context.Context, ex *Execution) error {
	input, err := marshalMapOrNull(ex.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	output, err := marshalMapOrNull(ex.Output)
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	results, err := json.Marshal(ex.StepResults)
	if err != nil {
		return fmt.Errorf("marshal step results: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET status = ?, input = ?, output = ?, error = ?, step_results = ?, started_at = ?, completed_at = ?, duration_ms = ?
		 WHERE id = ?`,
		string(ex.Status), input, output, nullStr(ex.Error), string(results),
		nullTime(ex.StartedAt), nullTime(ex.CompletedAt), ex.DurationMs, ex.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "execution", ex.ID)
}

func (s *LibSQLStore) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*Execution, error) {
	var where []string
	var args []any

	if filter.OrgID != "" {
		where = append(where, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.WorkflowID != "" {
		where = append(where, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, workflow_id, org_id, status, triggered_by, input, output, error, step_results, created_at, started_at, completed_at, duration_ms FROM executions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var executions []*Execution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, ex)
	}
	return executions, rows.Err()
}

func scanExecution(row rowScanner) (*Execution, error) {
	ex := &Execution{}
	var (
		status, results        string
		input, output, errMsg  sql.NullString
		startedAt, completedAt sql.NullTime
	)
	err := row.Scan(&ex.ID, &ex.WorkflowID, &ex.OrgID, &status, &ex.TriggeredBy,
		&input, &output, &errMsg, &results, &ex.CreatedAt, &startedAt, &completedAt, &ex.DurationMs)
	if err != nil {
		return nil, err
	}
	ex.Status = schema.ExecutionStatus(status)
	ex.Error = errMsg.String
	if input.Valid && input.String != "" {
		_ = json.Unmarshal([]byte(input.String), &ex.Input)
	}
	if output.Valid && output.String != "" {
		_ = json.Unmarshal([]byte(output.String), &ex.Output)
	}
	if err := json.Unmarshal([]byte(results), &ex.StepResults); err != nil {
		return nil, fmt.Errorf("unmarshal step results: %w", err)
	}
	if startedAt.Valid {
		ex.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		ex.CompletedAt = &completedAt.Time
	}
	return ex, nil
}

// --- Approvals ---

func (s *LibSQLStore) CreateApproval(ctx context.Context, ap *PendingApproval) error {
	approvers, err := json.Marshal(ap.Approvers)
	if err != nil {
		return fmt.Errorf("marshal approvers: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO approvals (id, org_id, execution_id, workflow_id, step_id, approvers, requested_by, status, decided_by, reason, created_at, decided_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ap.ID, ap.OrgID, ap.ExecutionID, ap.WorkflowID, ap.StepID,
		string(approvers), ap.RequestedBy, string(ap.Status),
		nullStr(ap.DecidedBy), nullStr(ap.Reason),
		timeOrNow(ap.CreatedAt), nullTime(ap.DecidedAt),
	)
	return err
}

func (s *LibSQLStore) GetApproval(ctx context.Context, id string) (*PendingApproval, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, execution_id, workflow_id, step_id, approvers, requested_by, status, decided_by, reason, created_at, decided_at
		 FROM approvals WHERE id = ?`, id)
	ap, err := scanApproval(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ap, err
}

func (s *LibSQLStore) UpdateApproval(ctx context.Context, ap *PendingApproval) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET status = ?, decided_by = ?, reason = ?, decided_at = ? WHERE id = ?`,
		string(ap.Status), nullStr(ap.DecidedBy), nullStr(ap.Reason), nullTime(ap.DecidedAt), ap.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "approval", ap.ID)
}

func (s *LibSQLStore) ListApprovals(ctx context.Context, filter ApprovalFilter) ([]*PendingApproval, error) {
	var where []string
	var args []any

	if filter.OrgID != "" {
		where = append(where, "org_id = ?")
		args = append(args, filter.OrgID)
	}
	if filter.ExecutionID != "" {
		where = append(where, "execution_id = ?")
		args = append(args, filter.ExecutionID)
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	query := `SELECT id, org_id, execution_id, workflow_id, step_id, approvers, requested_by, status, decided_by, reason, created_at, decided_at FROM approvals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var approvals []*PendingApproval
	for rows.Next() {
		ap, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		approvals = append(approvals, ap)
	}
	return approvals, rows.Err()
}

func scanApproval(row rowScanner) (*PendingApproval, error) {
	ap := &PendingApproval{}
	var (
		approvers, status  string
		decidedBy, reason  sql.NullString
		decidedAt          sql.NullTime
	)
	err := row.Scan(&ap.ID, &ap.OrgID, &ap.ExecutionID, &ap.WorkflowID, &ap.StepID,
		&approvers, &ap.RequestedBy, &status, &decidedBy, &reason, &ap.CreatedAt, &decidedAt)
	if err != nil {
		return nil, err
	}
	ap.Status = schema.ApprovalStatus(status)
	ap.DecidedBy = decidedBy.String
	ap.Reason = reason.String
	if err := json.Unmarshal([]byte(approvers), &ap.Approvers); err != nil {
		return nil, fmt.Errorf("unmarshal approvers: %w", err)
	}
	if decidedAt.Valid {
		ap.DecidedAt = &decidedAt.Time
	}
	return ap, nil
}

// --- Event log ---

// AppendEvent appends an event with a monotonically increasing per-execution
// sequence. The single-connection pool serializes writers.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE execution_id = ?`, event.ExecutionID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload := any(nil)
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (execution_id, step_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ExecutionID, nullStr(event.StepID), event.Type, payload, event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

func (s *LibSQLStore) ListEvents(ctx context.Context, executionID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, step_id, event_type, payload, timestamp, sequence
		 FROM events WHERE execution_id = ? ORDER BY sequence ASC`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev := &Event{}
		var stepID, payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.ExecutionID, &stepID, &ev.Type, &payload, &ev.Timestamp, &ev.Sequence); err != nil {
			return nil, err
		}
		ev.StepID = stepID.String
		if payload.Valid && payload.String != "" {
			ev.Payload = json.RawMessage(payload.String)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// --- Helpers ---

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "%s %s not found", resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func marshalMapOrNull(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
