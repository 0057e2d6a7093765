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

type FirmwareRepo struct {
	pool *pgxpool.Pool
}

func NewFirmwareRepo(pool *pgxpool.Pool) *FirmwareRepo {
	return &FirmwareRepo{pool: pool}
}

const firmwareColumns = `
	id, name, version, file_name, file_size, checksum_sha256,
	product_classes, active, storage_path, created_at`

func (r *FirmwareRepo) Create(ctx context.Context, fw *domain.Firmware) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO firmwares (name, version, file_name, file_size, checksum_sha256, product_classes, active, storage_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, fw.Name, fw.Version, fw.FileName, fw.FileSize, fw.ChecksumSHA256,
		fw.ProductClasses, fw.Active, fw.StoragePath).Scan(&fw.ID, &fw.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert firmware: %w", err)
	}
	return nil
}

func scanFirmware(row pgx.Row) (*domain.Firmware, error) {
	fw := &domain.Firmware{}
	err := row.Scan(
		&fw.ID, &fw.Name, &fw.Version, &fw.FileName, &fw.FileSize, &fw.ChecksumSHA256,
		&fw.ProductClasses, &fw.Active, &fw.StoragePath, &fw.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan firmware: %w", err)
	}
	return fw, nil
}

func (r *FirmwareRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Firmware, error) {
	return scanFirmware(r.pool.QueryRow(ctx,
		`SELECT `+firmwareColumns+` FROM firmwares WHERE id = $1`, id))
}

func (r *FirmwareRepo) List(ctx context.Context) ([]*domain.Firmware, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+firmwareColumns+` FROM firmwares ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list firmwares: %w", err)
	}
	defer rows.Close()

	var fws []*domain.Firmware
	for rows.Next() {
		fw, err := scanFirmware(rows)
		if err != nil {
			return nil, err
		}
		fws = append(fws, fw)
	}
	if fws == nil {
		fws = []*domain.Firmware{}
	}
	return fws, rows.Err()
}

func (r *FirmwareRepo) GetActiveForProductClass(ctx context.Context, productClass string) (*domain.Firmware, error) {
	return scanFirmware(r.pool.QueryRow(ctx, `
		SELECT `+firmwareColumns+` FROM firmwares
		WHERE active AND $1 = ANY(product_classes)
		ORDER BY created_at DESC
		LIMIT 1
	`, productClass))
}

// SetActive activating an image deactivates every other image sharing a
// product class, inside one transaction.
func (r *FirmwareRepo) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if active {
		if _, err := tx.Exec(ctx, `
			UPDATE firmwares SET active = FALSE
			WHERE id != $1 AND product_classes && (SELECT product_classes FROM firmwares WHERE id = $1)
		`, id); err != nil {
			return fmt.Errorf("deactivate overlapping firmwares: %w", err)
		}
	}
	tag, err := tx.Exec(ctx, `UPDATE firmwares SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return tx.Commit(ctx)
}

func (r *FirmwareRepo) Delete(ctx context.Context, id uuid.UUID) error {
	var active bool
	err := r.pool.QueryRow(ctx, `SELECT active FROM firmwares WHERE id = $1`, id).Scan(&active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("check firmware: %w", err)
	}
	if active {
		return domain.ErrFirmwareInUse
	}
	if _, err := r.pool.Exec(ctx, `DELETE FROM firmwares WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete firmware: %w", err)
	}
	return nil
}
