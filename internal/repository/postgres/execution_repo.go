package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestwave/acs/internal/domain"
)

type ExecutionRepo struct {
	pool *pgxpool.Pool
}

func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `id, workflow_id, device_id, status, task_id, result, created_at, updated_at`

// Create relies on the unique (workflow_id, device_id) index for run-once
// semantics across concurrent sessions.
func (r *ExecutionRepo) Create(ctx context.Context, ex *domain.WorkflowExecution) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO workflow_executions (workflow_id, device_id, status, task_id, result)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, ex.WorkflowID, ex.DeviceID, ex.Status, ex.TaskID, ex.Result).
		Scan(&ex.ID, &ex.CreatedAt, &ex.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

func scanExecution(row pgx.Row) (*domain.WorkflowExecution, error) {
	ex := &domain.WorkflowExecution{}
	err := row.Scan(&ex.ID, &ex.WorkflowID, &ex.DeviceID, &ex.Status, &ex.TaskID, &ex.Result, &ex.CreatedAt, &ex.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	return ex, nil
}

func (r *ExecutionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WorkflowExecution, error) {
	return scanExecution(r.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1`, id))
}

func (r *ExecutionRepo) GetByWorkflowAndDevice(ctx context.Context, workflowID, deviceID uuid.UUID) (*domain.WorkflowExecution, error) {
	return scanExecution(r.pool.QueryRow(ctx, `
		SELECT `+executionColumns+` FROM workflow_executions
		WHERE workflow_id = $1 AND device_id = $2
	`, workflowID, deviceID))
}

func (r *ExecutionRepo) GetByTask(ctx context.Context, taskID uuid.UUID) (*domain.WorkflowExecution, error) {
	return scanExecution(r.pool.QueryRow(ctx,
		`SELECT `+executionColumns+` FROM workflow_executions WHERE task_id = $1`, taskID))
}

func (r *ExecutionRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]*domain.WorkflowExecution, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+executionColumns+` FROM workflow_executions
		WHERE workflow_id = $1 ORDER BY created_at
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var exs []*domain.WorkflowExecution
	for rows.Next() {
		ex, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		exs = append(exs, ex)
	}
	if exs == nil {
		exs = []*domain.WorkflowExecution{}
	}
	return exs, rows.Err()
}

func (r *ExecutionRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.ExecutionStatus, result string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_executions SET status = $1, result = $2, updated_at = NOW() WHERE id = $3
	`, status, result, id)
	if err != nil {
		return fmt.Errorf("update execution status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ExecutionRepo) SetTask(ctx context.Context, id uuid.UUID, taskID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE workflow_executions SET task_id = $1, updated_at = NOW() WHERE id = $2
	`, taskID, id)
	if err != nil {
		return fmt.Errorf("set execution task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *ExecutionRepo) CountByStatus(ctx context.Context, workflowID uuid.UUID) (map[domain.ExecutionStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM workflow_executions
		WHERE workflow_id = $1 GROUP BY status
	`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("count executions: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.ExecutionStatus]int)
	for rows.Next() {
		var status domain.ExecutionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
