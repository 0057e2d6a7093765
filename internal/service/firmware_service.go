package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/domain"
	"github.com/crestwave/acs/internal/storage"
)

type FirmwareService struct {
	firmware domain.FirmwareRepository
	store    storage.FileStore
	log      *slog.Logger
}

func NewFirmwareService(firmware domain.FirmwareRepository, store storage.FileStore, log *slog.Logger) *FirmwareService {
	return &FirmwareService{firmware: firmware, store: store, log: log}
}

// Upload stores the image and registers it. The sha256 is computed while
// writing so the record always matches what is on disk.
func (s *FirmwareService) Upload(ctx context.Context, name, version, fileName string, productClasses []string, reader io.Reader) (*domain.Firmware, error) {
	if version == "" || fileName == "" {
		return nil, fmt.Errorf("%w: version and file name are required", domain.ErrInvalidInput)
	}
	if name == "" {
		name = fileName
	}

	path, size, checksum, err := s.store.Save(fileName, reader)
	if err != nil {
		return nil, fmt.Errorf("store firmware: %w", err)
	}

	fw := &domain.Firmware{
		Name:           name,
		Version:        version,
		FileName:       fileName,
		FileSize:       size,
		ChecksumSHA256: checksum,
		ProductClasses: productClasses,
		StoragePath:    path,
	}
	if err := s.firmware.Create(ctx, fw); err != nil {
		s.store.Delete(path)
		return nil, err
	}

	s.log.Info("firmware uploaded",
		"id", fw.ID, "version", version, "file", fileName, "size", size)
	return fw, nil
}

func (s *FirmwareService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Firmware, error) {
	return s.firmware.GetByID(ctx, id)
}

func (s *FirmwareService) List(ctx context.Context) ([]*domain.Firmware, error) {
	return s.firmware.List(ctx)
}

func (s *FirmwareService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.firmware.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.log.Info("firmware active flag changed", "id", id, "active", active)
	return nil
}

func (s *FirmwareService) Delete(ctx context.Context, id uuid.UUID) error {
	fw, err := s.firmware.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.firmware.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.store.Delete(fw.StoragePath); err != nil {
		s.log.Warn("remove firmware file", "id", id, "path", fw.StoragePath, "err", err)
	}
	s.log.Info("firmware deleted", "id", id, "version", fw.Version)
	return nil
}

// OpenByFileName serves a device's firmware fetch. File names are unique
// enough in practice; the newest matching record wins.
func (s *FirmwareService) OpenByFileName(ctx context.Context, fileName string) (*domain.Firmware, io.ReadCloser, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, nil, domain.ErrNotFound
	}
	all, err := s.firmware.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, fw := range all {
		if fw.FileName == fileName {
			rc, err := s.store.Open(fw.StoragePath)
			if err != nil {
				return nil, nil, err
			}
			return fw, rc, nil
		}
	}
	return nil, nil, domain.ErrNotFound
}
