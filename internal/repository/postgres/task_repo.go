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

type TaskRepo struct {
	pool *pgxpool.Pool
}

func NewTaskRepo(pool *pgxpool.Pool) *TaskRepo {
	return &TaskRepo{pool: pool}
}

func (r *TaskRepo) Create(ctx context.Context, t *domain.Task) error {
	paramsJSON, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	if t.Status == "" {
		t.Status = domain.TaskStatusPending
	}

	err = r.pool.QueryRow(ctx, `
		INSERT INTO tasks (device_id, type, status, params, command_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, t.DeviceID, t.Type, t.Status, paramsJSON, t.CommandKey).
		Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func scanTask(row pgx.Row) (*domain.Task, error) {
	t := &domain.Task{}
	var paramsJSON []byte
	err := row.Scan(
		&t.ID, &t.DeviceID, &t.Type, &t.Status, &paramsJSON,
		&t.CommandKey, &t.Result, &t.CreatedAt, &t.SentAt, &t.FinishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan task: %w", err)
	}
	if err := json.Unmarshal(paramsJSON, &t.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	return t, nil
}

const taskColumns = `id, device_id, type, status, params, command_key, result, created_at, sent_at, finished_at`

func (r *TaskRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return scanTask(r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (r *TaskRepo) GetByCommandKey(ctx context.Context, commandKey string) (*domain.Task, error) {
	return scanTask(r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE command_key = $1`, commandKey))
}

// NextPending claims nothing: the caller must MarkSent before handing the
// task's RPC to the device, which is what serializes per-device delivery.
func (r *TaskRepo) NextPending(ctx context.Context, deviceID uuid.UUID) (*domain.Task, error) {
	return scanTask(r.pool.QueryRow(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE device_id = $1 AND status = 'pending'
		ORDER BY created_at
		LIMIT 1
	`, deviceID))
}

func (r *TaskRepo) List(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 200 {
		f.PerPage = 50
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if f.DeviceID != nil {
		where += fmt.Sprintf(" AND device_id = $%d", argIdx)
		args = append(args, *f.DeviceID)
		argIdx++
	}
	if f.Status != nil {
		where += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, *f.Status)
		argIdx++
	}
	if f.Type != nil {
		where += fmt.Sprintf(" AND type = $%d", argIdx)
		args = append(args, *f.Type)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM tasks "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	offset := (f.Page - 1) * f.PerPage
	query := fmt.Sprintf(`
		SELECT %s FROM tasks %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, taskColumns, where, argIdx, argIdx+1)
	args = append(args, f.PerPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		tasks = append(tasks, t)
	}
	if tasks == nil {
		tasks = []*domain.Task{}
	}
	return tasks, total, rows.Err()
}

func (r *TaskRepo) CountPending(ctx context.Context, deviceID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM tasks WHERE device_id = $1 AND status = 'pending'
	`, deviceID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (r *TaskRepo) MarkSent(ctx context.Context, id uuid.UUID, commandKey string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = 'sent', command_key = $1, sent_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, commandKey, id)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TaskRepo) Finish(ctx context.Context, id uuid.UUID, status domain.TaskStatus, result string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = $1, result = $2, finished_at = NOW()
		WHERE id = $3 AND status NOT IN ('completed', 'failed', 'cancelled')
	`, status, result, id)
	if err != nil {
		return fmt.Errorf("finish task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either missing or already terminal.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrTaskTerminal
	}
	return nil
}

func (r *TaskRepo) Cancel(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE tasks SET status = 'cancelled', finished_at = NOW()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')
	`, id)
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return domain.ErrTaskTerminal
	}
	return nil
}
