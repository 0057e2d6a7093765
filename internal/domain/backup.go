package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	BackupPurposeManual           = "manual"
	BackupPurposeTR181Migration   = "tr181_migration_backup"
	BackupPurposeCortecaTransition = "corteca_transition"
)

// ConfigBackup is a named, timestamped snapshot of a device's parameter set,
// used both for user-facing restore and as migration safety-net data.
type ConfigBackup struct {
	ID         uuid.UUID             `json:"id"`
	DeviceID   uuid.UUID             `json:"device_id"`
	Name       string                `json:"name"`
	Purpose    string                `json:"purpose"`
	Parameters map[string]ParamValue `json:"parameters"`
	CreatedAt  time.Time             `json:"created_at"`
}

type BackupRepository interface {
	Create(ctx context.Context, backup *ConfigBackup) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConfigBackup, error)
	ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]*ConfigBackup, error)
	// LatestByPurpose returns the most recent backup with the given purpose
	// created at or after the cutoff, or ErrNotFound.
	LatestByPurpose(ctx context.Context, deviceID uuid.UUID, purpose string, since time.Time) (*ConfigBackup, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
