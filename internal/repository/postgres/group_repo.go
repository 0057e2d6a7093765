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

type GroupRepo struct {
	pool *pgxpool.Pool
}

func NewGroupRepo(pool *pgxpool.Pool) *GroupRepo {
	return &GroupRepo{pool: pool}
}

func (r *GroupRepo) Create(ctx context.Context, g *domain.DeviceGroup) error {
	rulesJSON, err := json.Marshal(g.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO device_groups (name, description, match_type, rules, priority)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, g.Name, g.Description, g.MatchType, rulesJSON, g.Priority).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func scanGroup(row pgx.Row) (*domain.DeviceGroup, error) {
	g := &domain.DeviceGroup{}
	var rulesJSON []byte
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.MatchType, &rulesJSON, &g.Priority, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan group: %w", err)
	}
	if err := json.Unmarshal(rulesJSON, &g.Rules); err != nil {
		return nil, fmt.Errorf("unmarshal rules: %w", err)
	}
	return g, nil
}

func (r *GroupRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeviceGroup, error) {
	return scanGroup(r.pool.QueryRow(ctx, `
		SELECT id, name, description, match_type, rules, priority, created_at, updated_at
		FROM device_groups WHERE id = $1
	`, id))
}

func (r *GroupRepo) List(ctx context.Context) ([]*domain.DeviceGroup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, match_type, rules, priority, created_at, updated_at
		FROM device_groups ORDER BY priority DESC, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*domain.DeviceGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if groups == nil {
		groups = []*domain.DeviceGroup{}
	}
	return groups, rows.Err()
}

func (r *GroupRepo) Update(ctx context.Context, g *domain.DeviceGroup) error {
	rulesJSON, err := json.Marshal(g.Rules)
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE device_groups SET
			name = $1, description = $2, match_type = $3, rules = $4, priority = $5,
			updated_at = NOW()
		WHERE id = $6
	`, g.Name, g.Description, g.MatchType, rulesJSON, g.Priority, g.ID)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GroupRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM device_groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
