package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Firmware is an uploadable image the ACS can push via a Download RPC.
// At most one firmware per product class carries the active flag; workflow
// upgrades without an explicit firmware resolve through it.
type Firmware struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Version        string    `json:"version"`
	FileName       string    `json:"file_name"`
	FileSize       int64     `json:"file_size"`
	ChecksumSHA256 string    `json:"checksum_sha256"`
	ProductClasses []string  `json:"product_classes"`
	Active         bool      `json:"active"`
	StoragePath    string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

type FirmwareRepository interface {
	Create(ctx context.Context, fw *Firmware) error
	GetByID(ctx context.Context, id uuid.UUID) (*Firmware, error)
	List(ctx context.Context) ([]*Firmware, error)
	// GetActiveForProductClass returns the currently active firmware for
	// the product class, or ErrNotFound.
	GetActiveForProductClass(ctx context.Context, productClass string) (*Firmware, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}
