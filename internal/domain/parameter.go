package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Parameter is a (device, name) -> value tuple. Append/update only;
// historical values live in ConfigBackup snapshots, not here.
type Parameter struct {
	DeviceID  uuid.UUID `json:"device_id"`
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	Type      string    `json:"type"`
	Writable  bool      `json:"writable"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ParameterRepository interface {
	Upsert(ctx context.Context, deviceID uuid.UUID, params map[string]ParamValue) error
	SetWritable(ctx context.Context, deviceID uuid.UUID, writable map[string]bool) error
	GetAll(ctx context.Context, deviceID uuid.UUID) ([]*Parameter, error)
	GetByNames(ctx context.Context, deviceID uuid.UUID, names []string) ([]*Parameter, error)
	// GetByPrefix returns parameters whose name starts with any given prefix.
	GetByPrefix(ctx context.Context, deviceID uuid.UUID, prefixes []string) ([]*Parameter, error)
	DeleteAll(ctx context.Context, deviceID uuid.UUID) error
}
