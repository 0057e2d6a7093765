package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestwave/acs/internal/domain"
)

type ParameterRepo struct {
	pool *pgxpool.Pool
}

func NewParameterRepo(pool *pgxpool.Pool) *ParameterRepo {
	return &ParameterRepo{pool: pool}
}

// Upsert writes a whole Inform's worth of values in one batch.
func (r *ParameterRepo) Upsert(ctx context.Context, deviceID uuid.UUID, params map[string]domain.ParamValue) error {
	if len(params) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for name, v := range params {
		batch.Queue(`
			INSERT INTO parameters (device_id, name, value, type, updated_at)
			VALUES ($1, $2, $3, $4, NOW())
			ON CONFLICT (device_id, name)
			DO UPDATE SET value = EXCLUDED.value, type = EXCLUDED.type, updated_at = NOW()
		`, deviceID, name, v.Value, v.Type)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range params {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert parameter: %w", err)
		}
	}
	return nil
}

func (r *ParameterRepo) SetWritable(ctx context.Context, deviceID uuid.UUID, writable map[string]bool) error {
	if len(writable) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for name, w := range writable {
		batch.Queue(`
			INSERT INTO parameters (device_id, name, value, type, writable, updated_at)
			VALUES ($1, $2, '', '', $3, NOW())
			ON CONFLICT (device_id, name)
			DO UPDATE SET writable = EXCLUDED.writable, updated_at = NOW()
		`, deviceID, name, w)
	}
	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range writable {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("set writable: %w", err)
		}
	}
	return nil
}

func (r *ParameterRepo) GetAll(ctx context.Context, deviceID uuid.UUID) ([]*domain.Parameter, error) {
	return r.query(ctx, `
		SELECT device_id, name, value, type, writable, updated_at
		FROM parameters WHERE device_id = $1 ORDER BY name
	`, deviceID)
}

func (r *ParameterRepo) GetByNames(ctx context.Context, deviceID uuid.UUID, names []string) ([]*domain.Parameter, error) {
	return r.query(ctx, `
		SELECT device_id, name, value, type, writable, updated_at
		FROM parameters WHERE device_id = $1 AND name = ANY($2) ORDER BY name
	`, deviceID, names)
}

func (r *ParameterRepo) GetByPrefix(ctx context.Context, deviceID uuid.UUID, prefixes []string) ([]*domain.Parameter, error) {
	patterns := make([]string, len(prefixes))
	for i, p := range prefixes {
		patterns[i] = p + "%"
	}
	return r.query(ctx, `
		SELECT device_id, name, value, type, writable, updated_at
		FROM parameters WHERE device_id = $1 AND name LIKE ANY($2) ORDER BY name
	`, deviceID, patterns)
}

func (r *ParameterRepo) DeleteAll(ctx context.Context, deviceID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM parameters WHERE device_id = $1`, deviceID); err != nil {
		return fmt.Errorf("delete parameters: %w", err)
	}
	return nil
}

func (r *ParameterRepo) query(ctx context.Context, sql string, args ...interface{}) ([]*domain.Parameter, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query parameters: %w", err)
	}
	defer rows.Close()

	var params []*domain.Parameter
	for rows.Next() {
		p := &domain.Parameter{}
		if err := rows.Scan(&p.DeviceID, &p.Name, &p.Value, &p.Type, &p.Writable, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		params = append(params, p)
	}
	return params, rows.Err()
}
