package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/crestwave/acs/internal/datamodel"
	"github.com/crestwave/acs/internal/domain"
)

// ConnectionNotifier asks a device to connect to the ACS out of band.
type ConnectionNotifier interface {
	Request(ctx context.Context, d *domain.Device) error
}

type DeviceService struct {
	devices  domain.DeviceRepository
	params   domain.ParameterRepository
	notifier ConnectionNotifier
	log      *slog.Logger
}

func NewDeviceService(devices domain.DeviceRepository, params domain.ParameterRepository, notifier ConnectionNotifier, log *slog.Logger) *DeviceService {
	return &DeviceService{devices: devices, params: params, notifier: notifier, log: log}
}

func (s *DeviceService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Device, error) {
	return s.devices.GetByID(ctx, id)
}

func (s *DeviceService) List(ctx context.Context, filter domain.DeviceFilter) ([]*domain.Device, int, error) {
	return s.devices.List(ctx, filter)
}

func (s *DeviceService) UpdateTags(ctx context.Context, id uuid.UUID, tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	return s.devices.UpdateTags(ctx, id, tags)
}

// Delete removes the device record. Parameters, tasks, backups and
// executions go with it through foreign keys.
func (s *DeviceService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.devices.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info("device deleted", "id", id)
	return nil
}

func (s *DeviceService) CountOnline(ctx context.Context) (online, total int, err error) {
	return s.devices.CountOnline(ctx)
}

// Parameters returns the cached parameter set plus the inferred data model.
func (s *DeviceService) Parameters(ctx context.Context, id uuid.UUID) ([]*domain.Parameter, domain.DataModel, error) {
	params, err := s.params.GetAll(ctx, id)
	if err != nil {
		return nil, domain.DataModelUnknown, err
	}
	return params, datamodel.Infer(params), nil
}

// RequestConnection pokes the device over XMPP, UDP or HTTP so it informs
// promptly instead of waiting for its periodic interval.
func (s *DeviceService) RequestConnection(ctx context.Context, id uuid.UUID) error {
	device, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.notifier == nil {
		return fmt.Errorf("no connection request channel configured")
	}
	return s.notifier.Request(ctx, device)
}
