package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crestwave/acs/internal/domain"
)

type DeviceRepo struct {
	pool *pgxpool.Pool
}

func NewDeviceRepo(pool *pgxpool.Pool) *DeviceRepo {
	return &DeviceRepo{pool: pool}
}

const deviceColumns = `
	id, device_key, manufacturer, oui, product_class, serial_number,
	software_version, hardware_version, ip_address, online, last_inform,
	conn_req_url, conn_req_user, conn_req_password,
	xmpp_jid, xmpp_enabled, udp_address,
	subscriber_id, tags, created_at, updated_at`

func scanDevice(row pgx.Row) (*domain.Device, error) {
	d := &domain.Device{}
	err := row.Scan(
		&d.ID, &d.DeviceKey, &d.Manufacturer, &d.OUI, &d.ProductClass, &d.SerialNumber,
		&d.SoftwareVersion, &d.HardwareVersion, &d.IPAddress, &d.Online, &d.LastInform,
		&d.ConnectionRequestURL, &d.ConnectionRequestUser, &d.ConnectionRequestPassword,
		&d.XMPPJID, &d.XMPPEnabled, &d.UDPAddress,
		&d.SubscriberID, &d.Tags, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan device: %w", err)
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d, nil
}

func (r *DeviceRepo) Create(ctx context.Context, d *domain.Device) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO devices (
			device_key, manufacturer, oui, product_class, serial_number,
			software_version, hardware_version, ip_address, online, last_inform,
			conn_req_url, conn_req_user, conn_req_password,
			xmpp_jid, xmpp_enabled, udp_address, subscriber_id, tags
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, created_at, updated_at
	`, d.DeviceKey, d.Manufacturer, d.OUI, d.ProductClass, d.SerialNumber,
		d.SoftwareVersion, d.HardwareVersion, d.IPAddress, d.Online, d.LastInform,
		d.ConnectionRequestURL, d.ConnectionRequestUser, d.ConnectionRequestPassword,
		d.XMPPJID, d.XMPPEnabled, d.UDPAddress, d.SubscriberID, d.Tags).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert device: %w", err)
	}
	return nil
}

func (r *DeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	return scanDevice(r.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = $1`, id))
}

func (r *DeviceRepo) GetByKey(ctx context.Context, key string) (*domain.Device, error) {
	return scanDevice(r.pool.QueryRow(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE device_key = $1`, key))
}

func (r *DeviceRepo) FindSiblings(ctx context.Context, serialNumber, productClass, excludeKey string) ([]*domain.Device, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+deviceColumns+`
		FROM devices
		WHERE serial_number = $1 AND product_class = $2 AND device_key != $3
		ORDER BY created_at
	`, serialNumber, productClass, excludeKey)
	if err != nil {
		return nil, fmt.Errorf("find siblings: %w", err)
	}
	defer rows.Close()

	var devices []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *DeviceRepo) List(ctx context.Context, f domain.DeviceFilter) ([]*domain.Device, int, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 500 {
		f.PerPage = 50
	}
	if f.SortBy == "" {
		f.SortBy = "created_at"
	}
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}

	where := "WHERE 1=1"
	args := []interface{}{}
	argIdx := 1

	if f.Manufacturer != nil {
		where += fmt.Sprintf(" AND manufacturer = $%d", argIdx)
		args = append(args, *f.Manufacturer)
		argIdx++
	}
	if f.ProductClass != nil {
		where += fmt.Sprintf(" AND product_class = $%d", argIdx)
		args = append(args, *f.ProductClass)
		argIdx++
	}
	if f.OUI != nil {
		where += fmt.Sprintf(" AND oui = $%d", argIdx)
		args = append(args, *f.OUI)
		argIdx++
	}
	if f.Online != nil {
		where += fmt.Sprintf(" AND online = $%d", argIdx)
		args = append(args, *f.Online)
		argIdx++
	}
	if len(f.Tags) > 0 {
		where += fmt.Sprintf(" AND tags @> $%d", argIdx)
		args = append(args, f.Tags)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM devices " + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count devices: %w", err)
	}

	orderCol := "created_at"
	switch f.SortBy {
	case "created_at", "updated_at", "last_inform", "device_key", "product_class":
		orderCol = f.SortBy
	}
	orderDir := "DESC"
	if f.SortOrder == "asc" {
		orderDir = "ASC"
	}

	offset := (f.Page - 1) * f.PerPage
	query := fmt.Sprintf(`
		SELECT %s FROM devices %s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, deviceColumns, where, orderCol, orderDir, argIdx, argIdx+1)
	args = append(args, f.PerPage, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	var devices []*domain.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, 0, err
		}
		devices = append(devices, d)
	}
	if devices == nil {
		devices = []*domain.Device{}
	}
	return devices, total, rows.Err()
}

func (r *DeviceRepo) Update(ctx context.Context, d *domain.Device) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET
			manufacturer = $1, software_version = $2, hardware_version = $3,
			ip_address = $4, conn_req_url = $5, conn_req_user = $6, conn_req_password = $7,
			xmpp_jid = $8, xmpp_enabled = $9, udp_address = $10, subscriber_id = $11,
			updated_at = NOW()
		WHERE id = $12
	`, d.Manufacturer, d.SoftwareVersion, d.HardwareVersion,
		d.IPAddress, d.ConnectionRequestURL, d.ConnectionRequestUser, d.ConnectionRequestPassword,
		d.XMPPJID, d.XMPPEnabled, d.UDPAddress, d.SubscriberID, d.ID)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DeviceRepo) UpdateTags(ctx context.Context, id uuid.UUID, tags []string) error {
	tag, err := r.pool.Exec(ctx, `
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

func (r *DeviceRepo) UpdateOnline(ctx context.Context, id uuid.UUID, online bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET online = $1, updated_at = NOW() WHERE id = $2
	`, online, id)
	if err != nil {
		return fmt.Errorf("update online: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *DeviceRepo) SetLastInform(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE devices SET last_inform = $1, online = TRUE, updated_at = NOW() WHERE id = $2
	`, at, id)
	if err != nil {
		return fmt.Errorf("set last inform: %w", err)
	}
	return nil
}

func (r *DeviceRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkStaleOffline flips online devices whose last inform predates the
// cutoff. Returns how many rows changed.
func (r *DeviceRepo) MarkStaleOffline(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE devices SET online = FALSE, updated_at = NOW()
		WHERE online = TRUE AND (last_inform IS NULL OR last_inform < $1)
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark stale offline: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *DeviceRepo) CountOnline(ctx context.Context) (int, int, error) {
	var online, total int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE online), COUNT(*) FROM devices
	`).Scan(&online, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count online: %w", err)
	}
	return online, total, nil
}
