package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/crestwave/acs/internal/datamodel"
	"github.com/crestwave/acs/internal/domain"
)

// placeholders substitutes {field} tokens in workflow parameter values with
// per-device attributes, so one workflow definition can carry device-specific
// values like per-unit upload URLs.
func substitutePlaceholders(s string, d *domain.Device) string {
	r := strings.NewReplacer(
		"{serial_number}", d.SerialNumber,
		"{oui}", d.OUI,
		"{product_class}", d.ProductClass,
		"{device_key}", d.DeviceKey,
		"{software_version}", d.SoftwareVersion,
		"{subscriber_id}", d.SubscriberID,
	)
	return r.Replace(s)
}

func substituteParams(p domain.TaskParams, d *domain.Device) domain.TaskParams {
	if p.Values != nil {
		values := make(map[string]domain.ParamValue, len(p.Values))
		for name, v := range p.Values {
			v.Value = substitutePlaceholders(v.Value, d)
			values[name] = v
		}
		p.Values = values
	}
	if p.Download != nil {
		dl := *p.Download
		dl.URL = substitutePlaceholders(dl.URL, d)
		dl.TargetFileName = substitutePlaceholders(dl.TargetFileName, d)
		p.Download = &dl
	}
	if p.Upload != nil {
		up := *p.Upload
		up.URL = substitutePlaceholders(up.URL, d)
		p.Upload = &up
	}
	return p
}

// BuilderConfig carries the endpoints baked into generated tasks.
type BuilderConfig struct {
	// FirmwareBaseURL is the public prefix devices download firmware
	// images from; the file name is appended.
	FirmwareBaseURL string
}

// Builder turns an abstract workflow step into a concrete device task. The
// task-type set is closed: unknown types are an error, not a no-op.
type Builder struct {
	params   domain.ParameterRepository
	backups  domain.BackupRepository
	firmware domain.FirmwareRepository
	cfg      BuilderConfig
}

func NewBuilder(params domain.ParameterRepository, backups domain.BackupRepository, firmware domain.FirmwareRepository, cfg BuilderConfig) *Builder {
	return &Builder{params: params, backups: backups, firmware: firmware, cfg: cfg}
}

// Synchronous reports whether a workflow step runs inside the engine rather
// than as a queued device RPC.
func Synchronous(t domain.WorkflowTaskType) bool {
	return t == domain.WFTransitionBackup || t == domain.WFExtractWiFiSSH
}

// Build constructs the pending task for one (workflow, device) pair.
// Synchronous step types never reach here.
func (b *Builder) Build(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device) (*domain.Task, error) {
	params := substituteParams(wf.Params, d)

	switch wf.TaskType {
	case domain.WFFirmwareUpgrade:
		return b.buildFirmwareUpgrade(ctx, wf, d, params)

	case domain.WFSetParams:
		if len(params.Values) == 0 {
			return nil, fmt.Errorf("workflow %s: set_parameter_values requires values", wf.Name)
		}
		return &domain.Task{DeviceID: d.ID, Type: domain.TaskSetParams, Status: domain.TaskStatusPending, Params: params}, nil

	case domain.WFGetParams:
		if len(params.Names) == 0 {
			params.Names = []string{rootPathFor(ctx, b.params, d)}
		}
		return &domain.Task{DeviceID: d.ID, Type: domain.TaskGetParams, Status: domain.TaskStatusPending, Params: params}, nil

	case domain.WFDownload:
		if params.Download == nil || params.Download.URL == "" {
			return nil, fmt.Errorf("workflow %s: download requires a URL", wf.Name)
		}
		return &domain.Task{DeviceID: d.ID, Type: domain.TaskDownload, Status: domain.TaskStatusPending, Params: params}, nil

	case domain.WFUpload:
		if params.Upload == nil || params.Upload.URL == "" {
			return nil, fmt.Errorf("workflow %s: upload requires a URL", wf.Name)
		}
		return &domain.Task{DeviceID: d.ID, Type: domain.TaskUpload, Status: domain.TaskStatusPending, Params: params}, nil

	case domain.WFBackup:
		return b.buildBackup(ctx, wf, d, params)

	case domain.WFRestore:
		return b.buildRestore(ctx, wf, d)

	case domain.WFReboot:
		return &domain.Task{DeviceID: d.ID, Type: domain.TaskReboot, Status: domain.TaskStatusPending}, nil

	case domain.WFMigrationFlag:
		return &domain.Task{
			DeviceID: d.ID,
			Type:     domain.TaskSetParams,
			Status:   domain.TaskStatusPending,
			Params: domain.TaskParams{
				Values: map[string]domain.ParamValue{
					"InternetGatewayDevice.X_CALIX_SXACC.ConfigMigration": {Value: "1", Type: "xsd:boolean"},
				},
			},
		}, nil

	case domain.WFMigrationPreconf:
		if params.Download == nil || params.Download.URL == "" {
			return nil, fmt.Errorf("workflow %s: migration_preconfig requires a download URL", wf.Name)
		}
		dl := *params.Download
		dl.FileType = "3 Vendor Configuration File"
		params.Download = &dl
		return &domain.Task{DeviceID: d.ID, Type: domain.TaskDownload, Status: domain.TaskStatusPending, Params: params}, nil

	default:
		return nil, fmt.Errorf("workflow %s: unknown task type %q", wf.Name, wf.TaskType)
	}
}

// buildFirmwareUpgrade resolves the image: explicit firmware_id wins, the
// product class's active image otherwise. A device already running the
// target version yields ErrNotFound so the engine can skip it.
func (b *Builder) buildFirmwareUpgrade(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device, params domain.TaskParams) (*domain.Task, error) {
	var fw *domain.Firmware
	var err error
	if wf.FirmwareID != nil {
		fw, err = b.firmware.GetByID(ctx, *wf.FirmwareID)
	} else {
		fw, err = b.firmware.GetActiveForProductClass(ctx, d.ProductClass)
	}
	if err != nil {
		return nil, fmt.Errorf("workflow %s: resolve firmware: %w", wf.Name, err)
	}

	if strings.Contains(d.SoftwareVersion, fw.Version) {
		return nil, fmt.Errorf("device already on %s: %w", fw.Version, domain.ErrNotFound)
	}

	dl := domain.DownloadParams{
		FileType: "1 Firmware Upgrade Image",
		URL:      strings.TrimSuffix(b.cfg.FirmwareBaseURL, "/") + "/" + fw.FileName,
		FileSize: fw.FileSize,
	}
	if params.Download != nil {
		dl.Username = params.Download.Username
		dl.Password = params.Download.Password
		dl.DelaySeconds = params.Download.DelaySeconds
	}
	return &domain.Task{
		DeviceID: d.ID,
		Type:     domain.TaskDownload,
		Status:   domain.TaskStatusPending,
		Params:   domain.TaskParams{Download: &dl, Raw: map[string]string{"firmware_version": fw.Version, "checksum_sha256": fw.ChecksumSHA256}},
	}, nil
}

// buildBackup queues a full-tree read whose response is snapshotted as a
// named backup. The tree root follows the data model the device currently
// reports.
func (b *Builder) buildBackup(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device, params domain.TaskParams) (*domain.Task, error) {
	name := params.BackupName
	if name == "" {
		name = fmt.Sprintf("%s %s", wf.Name, time.Now().Format("2006-01-02 15:04"))
	}
	purpose := params.BackupPurpose
	if purpose == "" {
		purpose = domain.BackupPurposeManual
	}
	return &domain.Task{
		DeviceID: d.ID,
		Type:     domain.TaskGetParams,
		Status:   domain.TaskStatusPending,
		Params: domain.TaskParams{
			Names:         []string{rootPathFor(ctx, b.params, d)},
			BackupName:    name,
			BackupPurpose: purpose,
		},
	}, nil
}

// buildRestore replays the latest backup as a set. Params.Names, when given,
// restricts the restore to that subset of snapshot parameters.
func (b *Builder) buildRestore(ctx context.Context, wf *domain.GroupWorkflow, d *domain.Device) (*domain.Task, error) {
	purpose := wf.Params.BackupPurpose
	if purpose == "" {
		purpose = domain.BackupPurposeManual
	}
	backup, err := b.backups.LatestByPurpose(ctx, d.ID, purpose, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("workflow %s: no backup to restore: %w", wf.Name, err)
	}

	rows, err := b.params.GetAll(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	values := RestoreValues(backup.Parameters, writableSet(rows), wf.Params.Names, datamodel.Infer(rows))
	if len(values) == 0 {
		return nil, fmt.Errorf("workflow %s: backup %s has no restorable parameters", wf.Name, backup.Name)
	}
	return &domain.Task{DeviceID: d.ID, Type: domain.TaskSetParams, Status: domain.TaskStatusPending, Params: domain.TaskParams{Values: values}}, nil
}

// RestoreValues filters a snapshot down to what a restore may set on the
// device: writable parameters only, never ACS connection settings, optionally
// restricted to a subset of snapshot names. A snapshot taken under TR-098 is
// translated path by path when the device has since moved to TR-181, and
// writability is judged on the translated name.
func RestoreValues(snapshot map[string]domain.ParamValue, writable map[string]bool, subset []string, target domain.DataModel) map[string]domain.ParamValue {
	only := make(map[string]bool, len(subset))
	for _, n := range subset {
		only[n] = true
	}

	values := make(map[string]domain.ParamValue)
	for name, v := range snapshot {
		if len(only) > 0 && !only[name] {
			continue
		}
		if isProtectedPath(name) {
			continue
		}
		if target == domain.DataModelTR181 && strings.HasPrefix(name, domain.DataModelTR098.RootPath()) {
			converted, ok := datamodel.ConvertPath(name)
			if !ok {
				continue
			}
			name = converted
		}
		if !writable[name] {
			continue
		}
		values[name] = v
	}
	return values
}

// writableSet indexes cached parameter rows by name for writability lookups.
func writableSet(rows []*domain.Parameter) map[string]bool {
	writable := make(map[string]bool, len(rows))
	for _, row := range rows {
		writable[row.Name] = row.Writable
	}
	return writable
}

// isProtectedPath marks parameters a restore must never rewrite.
func isProtectedPath(name string) bool {
	return strings.Contains(name, ".ManagementServer.")
}

// rootPathFor infers the device's data model from its stored parameters and
// returns the matching tree root, defaulting to TR-098 for devices never
// fully queried.
func rootPathFor(ctx context.Context, params domain.ParameterRepository, d *domain.Device) string {
	rows, err := params.GetAll(ctx, d.ID)
	if err == nil {
		if model := datamodel.Infer(rows); model != domain.DataModelUnknown {
			return model.RootPath()
		}
	}
	return domain.DataModelTR098.RootPath()
}
