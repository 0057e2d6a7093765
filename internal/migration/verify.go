package migration

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crestwave/acs/internal/datamodel"
	"github.com/crestwave/acs/internal/domain"
)

// Outcome classifies a post-migration verification.
type Outcome string

const (
	OutcomeVerified       Outcome = "verified"
	OutcomeModelUnchanged Outcome = "model_unchanged"
	OutcomeWiFiLost       Outcome = "wifi_lost"
)

// VerifyResult is the report of one verification pass, including the
// fallback task queued when WiFi settings did not survive the switch.
type VerifyResult struct {
	Outcome      Outcome          `json:"outcome"`
	DataModel    domain.DataModel `json:"data_model"`
	ExpectedSSID string           `json:"expected_ssid,omitempty"`
	ObservedSSID string           `json:"observed_ssid,omitempty"`
	FallbackTask *domain.Task     `json:"fallback_task,omitempty"`
	CheckedAt    time.Time        `json:"checked_at"`
}

type Verifier struct {
	devices domain.DeviceRepository
	tasks   domain.TaskRepository
	backups domain.BackupRepository
	params  domain.ParameterRepository
	log     *slog.Logger
}

func NewVerifier(
	devices domain.DeviceRepository,
	tasks domain.TaskRepository,
	backups domain.BackupRepository,
	params domain.ParameterRepository,
	log *slog.Logger,
) *Verifier {
	return &Verifier{devices: devices, tasks: tasks, backups: backups, params: params, log: log}
}

// Verify checks a device after the migration preconfig completed. An
// unchanged data model is an explicit failure, never silently recorded as
// success. A changed model with a lost primary SSID yields the wifi_lost
// outcome and queues a fallback set built from the pre-migration backup.
func (v *Verifier) Verify(ctx context.Context, device *domain.Device) (*VerifyResult, error) {
	rows, err := v.params.GetAll(ctx, device.ID)
	if err != nil {
		return nil, err
	}
	model := datamodel.Infer(rows)

	res := &VerifyResult{DataModel: model, CheckedAt: time.Now()}

	if model != domain.DataModelTR181 {
		res.Outcome = OutcomeModelUnchanged
		v.log.Warn("migration verification failed, data model unchanged",
			"device", device.DeviceKey, "model", string(model))
		return res, nil
	}

	backup, err := v.backups.LatestByPurpose(ctx, device.ID, domain.BackupPurposeTR181Migration, time.Time{})
	if err != nil {
		// No safety-net backup to compare against; the model switched,
		// which is the hard requirement.
		res.Outcome = OutcomeVerified
		if err := v.markMigrated(ctx, device); err != nil {
			return nil, err
		}
		return res, nil
	}

	expected, ok := backup.Parameters[datamodel.PrimarySSIDPath(domain.DataModelTR098)]
	if !ok {
		res.Outcome = OutcomeVerified
		if err := v.markMigrated(ctx, device); err != nil {
			return nil, err
		}
		return res, nil
	}
	res.ExpectedSSID = expected.Value

	byName := make(map[string]string, len(rows))
	for _, row := range rows {
		byName[row.Name] = row.Value
	}
	observed := byName[datamodel.PrimarySSIDPath(domain.DataModelTR181)]
	res.ObservedSSID = observed

	if observed == expected.Value {
		res.Outcome = OutcomeVerified
		if err := v.markMigrated(ctx, device); err != nil {
			return nil, err
		}
		v.log.Info("migration verified", "device", device.DeviceKey, "ssid", observed)
		return res, nil
	}

	res.Outcome = OutcomeWiFiLost
	fallback, err := v.queueWiFiFallback(ctx, device, backup)
	if err != nil {
		return nil, fmt.Errorf("queue wifi fallback: %w", err)
	}
	res.FallbackTask = fallback
	if err := v.markMigrated(ctx, device); err != nil {
		return nil, err
	}
	v.log.Warn("wifi settings lost across migration, fallback queued",
		"device", device.DeviceKey, "expected", expected.Value, "observed", observed)
	return res, nil
}

// queueWiFiFallback builds a set_params task re-applying the backed-up WiFi
// settings on their TR-181 paths.
func (v *Verifier) queueWiFiFallback(ctx context.Context, device *domain.Device, backup *domain.ConfigBackup) (*domain.Task, error) {
	values := map[string]domain.ParamValue{}
	for _, pair := range datamodel.WiFiPairs {
		old, ok := backup.Parameters[pair.TR098]
		if !ok || old.Value == "" {
			continue
		}
		values[pair.TR181] = old
	}
	if len(values) == 0 {
		return nil, nil
	}
	task := &domain.Task{
		DeviceID: device.ID,
		Type:     domain.TaskSetParams,
		Status:   domain.TaskStatusPending,
		Params:   domain.TaskParams{Values: values},
	}
	if err := v.tasks.Create(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (v *Verifier) markMigrated(ctx context.Context, device *domain.Device) error {
	tags := make([]string, 0, len(device.Tags)+1)
	for _, t := range device.Tags {
		if t == TagMigrationPending {
			continue
		}
		tags = append(tags, t)
	}
	found := false
	for _, t := range tags {
		if t == TagMigrated {
			found = true
		}
	}
	if !found {
		tags = append(tags, TagMigrated)
	}
	return v.devices.UpdateTags(ctx, device.ID, tags)
}
