package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestwave/acs/internal/domain"
)

type WorkflowRepo struct {
	pool *pgxpool.Pool
}

func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

const workflowColumns = `
	id, group_id, name, task_type, schedule, depends_on_workflow_id,
	stop_on_failure_percent, params, firmware_id, status, created_at, updated_at`

func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.GroupWorkflow) error {
	paramsJSON, err := json.Marshal(wf.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if wf.Status == "" {
		wf.Status = domain.WorkflowActive
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO group_workflows (
			group_id, name, task_type, schedule, depends_on_workflow_id,
			stop_on_failure_percent, params, firmware_id, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, wf.GroupID, wf.Name, wf.TaskType, wf.Schedule, wf.DependsOnWorkflowID,
		wf.StopOnFailurePercent, paramsJSON, wf.FirmwareID, wf.Status).
		Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

func scanWorkflow(row pgx.Row) (*domain.GroupWorkflow, error) {
	wf := &domain.GroupWorkflow{}
	var paramsJSON []byte
	err := row.Scan(
		&wf.ID, &wf.GroupID, &wf.Name, &wf.TaskType, &wf.Schedule, &wf.DependsOnWorkflowID,
		&wf.StopOnFailurePercent, &paramsJSON, &wf.FirmwareID, &wf.Status, &wf.CreatedAt, &wf.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan workflow: %w", err)
	}
	if err := json.Unmarshal(paramsJSON, &wf.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return wf, nil
}

func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.GroupWorkflow, error) {
	return scanWorkflow(r.pool.QueryRow(ctx,
		`SELECT `+workflowColumns+` FROM group_workflows WHERE id = $1`, id))
}

func (r *WorkflowRepo) List(ctx context.Context) ([]*domain.GroupWorkflow, error) {
	return r.queryMany(ctx,
		`SELECT `+workflowColumns+` FROM group_workflows ORDER BY created_at`)
}

func (r *WorkflowRepo) ListActiveByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.GroupWorkflow, error) {
	return r.queryMany(ctx, `
		SELECT `+workflowColumns+` FROM group_workflows
		WHERE group_id = $1 AND status = 'active'
		ORDER BY created_at
	`, groupID)
}

func (r *WorkflowRepo) ListDependents(ctx context.Context, id uuid.UUID) ([]*domain.GroupWorkflow, error) {
	return r.queryMany(ctx, `
		SELECT `+workflowColumns+` FROM group_workflows
		WHERE depends_on_workflow_id = $1 AND status = 'active'
		ORDER BY created_at
	`, id)
}

func (r *WorkflowRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WorkflowStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE group_workflows SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update workflow status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM group_workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *WorkflowRepo) queryMany(ctx context.Context, sql string, args ...interface{}) ([]*domain.GroupWorkflow, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var wfs []*domain.GroupWorkflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		wfs = append(wfs, wf)
	}
	if wfs == nil {
		wfs = []*domain.GroupWorkflow{}
	}
	return wfs, rows.Err()
}
