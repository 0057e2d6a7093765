package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crestwave/acs/internal/datamodel"
	"github.com/crestwave/acs/internal/domain"
)

// Config carries the deployment-specific knobs of the migration planner.
type Config struct {
	// RequiredFirmware is the version substring a unit must run.
	RequiredFirmware string
	// PreconfigURL serves the vendor pre-configuration file whose receipt
	// triggers the data-model switch on the device.
	PreconfigURL string
	// BackupMaxAge bounds how old a migration backup may be before a
	// fresh harvest is scheduled.
	BackupMaxAge time.Duration
}

type Planner struct {
	devices  domain.DeviceRepository
	tasks    domain.TaskRepository
	backups  domain.BackupRepository
	params   domain.ParameterRepository
	firmware domain.FirmwareRepository
	cfg      Config
	log      *slog.Logger
}

func NewPlanner(
	devices domain.DeviceRepository,
	tasks domain.TaskRepository,
	backups domain.BackupRepository,
	params domain.ParameterRepository,
	firmware domain.FirmwareRepository,
	cfg Config,
	log *slog.Logger,
) *Planner {
	if cfg.BackupMaxAge == 0 {
		cfg.BackupMaxAge = 7 * 24 * time.Hour
	}
	return &Planner{devices: devices, tasks: tasks, backups: backups, params: params, firmware: firmware, cfg: cfg, log: log}
}

// CheckDevice gathers the eligibility input for a device and runs the pure
// check.
func (p *Planner) CheckDevice(ctx context.Context, device *domain.Device) (Eligibility, error) {
	rows, err := p.params.GetAll(ctx, device.ID)
	if err != nil {
		return Eligibility{}, err
	}
	params := make(map[string]domain.ParamValue, len(rows))
	for _, row := range rows {
		params[row.Name] = domain.ParamValue{Value: row.Value, Type: row.Type}
	}

	var active *domain.Firmware
	if fw, err := p.firmware.GetActiveForProductClass(ctx, device.ProductClass); err == nil {
		active = fw
	}

	var lastBackup *time.Time
	if b, err := p.backups.LatestByPurpose(ctx, device.ID, domain.BackupPurposeTR181Migration, time.Time{}); err == nil {
		t := b.CreatedAt
		lastBackup = &t
	}

	pending, err := p.tasks.CountPending(ctx, device.ID)
	if err != nil {
		return Eligibility{}, err
	}

	return Check(Input{
		Device:           device,
		DataModel:        datamodel.InferFromNames(params),
		KnownParams:      params,
		ActiveFirmware:   active,
		RequiredFirmware: p.cfg.RequiredFirmware,
		LastBackupAt:     lastBackup,
		BackupMaxAge:     p.cfg.BackupMaxAge,
		PendingTasks:     pending,
	}), nil
}

// Plan builds and queues the ordered migration task sequence for an
// eligible device:
//
//  1. full-parameter harvest tagged as the migration backup, skipped when
//     a recent one exists
//  2. set the vendor ConfigMigration flag to 1 — strictly before step 3,
//     because the migration firmware reads the flag only while processing
//     the pre-configuration file
//  3. download of the pre-configuration file that triggers the switch
//
// The device gains the tr181_migration_pending tag.
func (p *Planner) Plan(ctx context.Context, device *domain.Device) ([]*domain.Task, error) {
	var planned []*domain.Task
	step := 0

	cutoff := time.Now().Add(-p.cfg.BackupMaxAge)
	if _, err := p.backups.LatestByPurpose(ctx, device.ID, domain.BackupPurposeTR181Migration, cutoff); err != nil {
		step++
		harvest := &domain.Task{
			DeviceID: device.ID,
			Type:     domain.TaskGetParams,
			Status:   domain.TaskStatusPending,
			Params: domain.TaskParams{
				Names:         []string{domain.DataModelTR098.RootPath()},
				BackupName:    fmt.Sprintf("pre-migration %s", time.Now().Format("2006-01-02")),
				BackupPurpose: domain.BackupPurposeTR181Migration,
				MigrationStep: step,
			},
		}
		if err := p.tasks.Create(ctx, harvest); err != nil {
			return nil, fmt.Errorf("create harvest task: %w", err)
		}
		planned = append(planned, harvest)
	} else {
		p.log.Info("recent migration backup exists, skipping harvest", "device", device.DeviceKey)
	}

	step++
	flag := &domain.Task{
		DeviceID: device.ID,
		Type:     domain.TaskSetParams,
		Status:   domain.TaskStatusPending,
		Params: domain.TaskParams{
			Values: map[string]domain.ParamValue{
				ConfigMigrationParam: {Value: "1", Type: "xsd:boolean"},
			},
			MigrationStep: step,
		},
	}
	if err := p.tasks.Create(ctx, flag); err != nil {
		return nil, fmt.Errorf("create flag task: %w", err)
	}
	planned = append(planned, flag)

	step++
	preconf := &domain.Task{
		DeviceID: device.ID,
		Type:     domain.TaskDownload,
		Status:   domain.TaskStatusPending,
		Params: domain.TaskParams{
			Download: &domain.DownloadParams{
				FileType: "3 Vendor Configuration File",
				URL:      p.cfg.PreconfigURL,
			},
			MigrationStep: step,
		},
	}
	if err := p.tasks.Create(ctx, preconf); err != nil {
		return nil, fmt.Errorf("create preconfig task: %w", err)
	}
	planned = append(planned, preconf)

	if err := p.devices.UpdateTags(ctx, device.ID, device.WithTag(TagMigrationPending)); err != nil {
		return nil, fmt.Errorf("tag device: %w", err)
	}

	p.log.Info("migration plan queued", "device", device.DeviceKey, "tasks", len(planned))
	return planned, nil
}
