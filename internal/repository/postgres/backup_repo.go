package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestwave/acs/internal/domain"
)

type BackupRepo struct {
	pool *pgxpool.Pool
}

func NewBackupRepo(pool *pgxpool.Pool) *BackupRepo {
	return &BackupRepo{pool: pool}
}

func (r *BackupRepo) Create(ctx context.Context, b *domain.ConfigBackup) error {
	paramsJSON, err := json.Marshal(b.Parameters)
	if err != nil {
		return fmt.Errorf("marshal backup parameters: %w", err)
	}
	err = r.pool.QueryRow(ctx, `
		INSERT INTO config_backups (device_id, name, purpose, parameters)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, b.DeviceID, b.Name, b.Purpose, paramsJSON).Scan(&b.ID, &b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert backup: %w", err)
	}
	return nil
}

func scanBackup(row pgx.Row) (*domain.ConfigBackup, error) {
	b := &domain.ConfigBackup{}
	var paramsJSON []byte
	err := row.Scan(&b.ID, &b.DeviceID, &b.Name, &b.Purpose, &paramsJSON, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan backup: %w", err)
	}
	if err := json.Unmarshal(paramsJSON, &b.Parameters); err != nil {
		return nil, fmt.Errorf("unmarshal backup parameters: %w", err)
	}
	return b, nil
}

func (r *BackupRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConfigBackup, error) {
	return scanBackup(r.pool.QueryRow(ctx, `
		SELECT id, device_id, name, purpose, parameters, created_at
		FROM config_backups WHERE id = $1
	`, id))
}

func (r *BackupRepo) ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]*domain.ConfigBackup, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, device_id, name, purpose, parameters, created_at
		FROM config_backups WHERE device_id = $1 ORDER BY created_at DESC
	`, deviceID)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []*domain.ConfigBackup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, err
		}
		backups = append(backups, b)
	}
	if backups == nil {
		backups = []*domain.ConfigBackup{}
	}
	return backups, rows.Err()
}

func (r *BackupRepo) LatestByPurpose(ctx context.Context, deviceID uuid.UUID, purpose string, since time.Time) (*domain.ConfigBackup, error) {
	return scanBackup(r.pool.QueryRow(ctx, `
		SELECT id, device_id, name, purpose, parameters, created_at
		FROM config_backups
		WHERE device_id = $1 AND purpose = $2 AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, deviceID, purpose, since))
}

func (r *BackupRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM config_backups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
