package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestwave/acs/internal/domain"
)

// MergeRunner executes identity merges inside a single database
// transaction. Any error out of fn rolls everything back.
type MergeRunner struct {
	pool *pgxpool.Pool
}

func NewMergeRunner(pool *pgxpool.Pool) *MergeRunner {
	return &MergeRunner{pool: pool}
}

func (m *MergeRunner) RunMerge(ctx context.Context, fn func(tx domain.MergeTx) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&mergeTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

type mergeTx struct {
	tx pgx.Tx
}

func (t *mergeTx) TransferBackups(ctx context.Context, fromDevice, toDevice uuid.UUID) (int, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE config_backups SET device_id = $1 WHERE device_id = $2
	`, toDevice, fromDevice)
	if err != nil {
		return 0, fmt.Errorf("transfer backups: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (t *mergeTx) CopyConnectionCredentials(ctx context.Context, fromDevice, toDevice uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE devices SET
			conn_req_user = src.conn_req_user,
			conn_req_password = src.conn_req_password,
			updated_at = NOW()
		FROM devices AS src
		WHERE devices.id = $1 AND src.id = $2
	`, toDevice, fromDevice)
	if err != nil {
		return fmt.Errorf("copy credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *mergeTx) CopySubscriber(ctx context.Context, fromDevice, toDevice uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE devices SET subscriber_id = src.subscriber_id, updated_at = NOW()
		FROM devices AS src
		WHERE devices.id = $1 AND src.id = $2
	`, toDevice, fromDevice)
	if err != nil {
		return fmt.Errorf("copy subscriber: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *mergeTx) UpdateTags(ctx context.Context, id uuid.UUID, tags []string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE devices SET tags = $1, updated_at = NOW() WHERE id = $2
	`, tags, id)
	if err != nil {
		return fmt.Errorf("update tags: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *mergeTx) SetOffline(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE devices SET online = FALSE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("set offline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
