package migration

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/crestwave/acs/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func gigaSpire() *domain.Device {
	return &domain.Device{
		DeviceKey:       domain.DeviceKeyFor("D0768F", "GigaSpire BLAST u6", "CXNK9900"),
		Manufacturer:    "Calix",
		OUI:             "D0768F",
		ProductClass:    "GigaSpire BLAST u6",
		SerialNumber:    "CXNK9900",
		SoftwareVersion: "21.4.0.150",
		Online:          true,
	}
}

func tr098Params() map[string]domain.ParamValue {
	return map[string]domain.ParamValue{
		"InternetGatewayDevice.DeviceInfo.SoftwareVersion":           {Value: "21.4.0.150"},
		"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID": {Value: "HomeNet"},
		ConfigMigrationParam: {Value: "0", Type: "xsd:boolean"},
	}
}

// --- Eligibility ---

func TestCheck_EligibleUnit(t *testing.T) {
	now := time.Now()
	got := Check(Input{
		Device:           gigaSpire(),
		DataModel:        domain.DataModelTR098,
		KnownParams:      tr098Params(),
		RequiredFirmware: "21.4",
		LastBackupAt:     &now,
		BackupMaxAge:     7 * 24 * time.Hour,
	})
	if !got.Eligible {
		t.Fatalf("expected eligible, reasons: %v", got.Reasons)
	}
	if len(got.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", got.Warnings)
	}
}

func TestCheck_WrongFamilyBlocks(t *testing.T) {
	d := gigaSpire()
	d.OUI = "000631"
	d.ProductClass = "844G"
	d.Manufacturer = "Calix"
	got := Check(Input{Device: d, DataModel: domain.DataModelTR098, KnownParams: tr098Params(), RequiredFirmware: "21.4"})
	if got.Eligible {
		t.Fatal("GigaCenter must not be eligible")
	}
}

func TestCheck_ManufacturerFallback(t *testing.T) {
	// Unknown OUI but Calix manufacturer and GigaSpire product class still
	// qualifies.
	d := gigaSpire()
	d.OUI = "AABBCC"
	got := Check(Input{Device: d, DataModel: domain.DataModelTR098, KnownParams: tr098Params(), RequiredFirmware: "21.4"})
	if !got.Eligible {
		t.Fatalf("manufacturer fallback failed: %v", got.Reasons)
	}
}

func TestCheck_AlreadyTR181Blocks(t *testing.T) {
	got := Check(Input{Device: gigaSpire(), DataModel: domain.DataModelTR181, KnownParams: tr098Params(), RequiredFirmware: "21.4"})
	if got.Eligible {
		t.Fatal("a TR-181 device must not be eligible")
	}
}

func TestCheck_FirmwareMismatchBlocks(t *testing.T) {
	got := Check(Input{Device: gigaSpire(), DataModel: domain.DataModelTR098, KnownParams: tr098Params(), RequiredFirmware: "22.1"})
	if got.Eligible {
		t.Fatal("firmware mismatch must block")
	}
}

func TestCheck_ActiveFirmwareSatisfiesVersion(t *testing.T) {
	got := Check(Input{
		Device:         gigaSpire(),
		DataModel:      domain.DataModelTR098,
		KnownParams:    tr098Params(),
		ActiveFirmware: &domain.Firmware{Version: "21.4.0.150"},
	})
	if !got.Eligible {
		t.Fatalf("active firmware match should qualify: %v", got.Reasons)
	}
}

func TestCheck_SoftConditionsWarnOnly(t *testing.T) {
	d := gigaSpire()
	d.Online = false
	stale := time.Now().Add(-30 * 24 * time.Hour)
	params := tr098Params()
	delete(params, ConfigMigrationParam)
	got := Check(Input{
		Device:           d,
		DataModel:        domain.DataModelTR098,
		KnownParams:      params,
		RequiredFirmware: "21.4",
		LastBackupAt:     &stale,
		BackupMaxAge:     7 * 24 * time.Hour,
		PendingTasks:     2,
	})
	if !got.Eligible {
		t.Fatalf("soft conditions must not block: %v", got.Reasons)
	}
	if len(got.Warnings) != 4 {
		t.Fatalf("expected 4 warnings (offline, stale backup, pending tasks, missing flag), got %v", got.Warnings)
	}
}

// --- Planner ---

func newTestPlanner(t *testing.T) (*Planner, *mockDeviceRepo, *mockTaskRepo, *mockBackupRepo, *mockParamRepo) {
	t.Helper()
	devices := newMockDeviceRepo()
	tasks := newMockTaskRepo()
	backups := newMockBackupRepo()
	params := newMockParamRepo()
	fw := newMockFirmwareRepo()
	p := NewPlanner(devices, tasks, backups, params, fw, Config{
		RequiredFirmware: "21.4",
		PreconfigURL:     "https://acs.example.net/files/preconfig.xml",
		BackupMaxAge:     7 * 24 * time.Hour,
	}, testLogger())
	return p, devices, tasks, backups, params
}

func TestPlan_FullSequence(t *testing.T) {
	p, devices, tasks, _, _ := newTestPlanner(t)
	d := gigaSpire()
	if err := devices.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}

	planned, err := p.Plan(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(planned) != 3 {
		t.Fatalf("expected harvest+flag+preconfig, got %d tasks", len(planned))
	}

	queued := tasks.byDevice(d.ID)
	if queued[0].Type != domain.TaskGetParams || queued[0].Params.BackupPurpose != domain.BackupPurposeTR181Migration {
		t.Fatalf("step 1 must be the backup harvest, got %+v", queued[0])
	}
	if queued[1].Type != domain.TaskSetParams {
		t.Fatalf("step 2 must set the migration flag, got %s", queued[1].Type)
	}
	if v := queued[1].Params.Values[ConfigMigrationParam]; v.Value != "1" {
		t.Fatalf("ConfigMigration must be set to 1, got %q", v.Value)
	}
	if queued[2].Type != domain.TaskDownload {
		t.Fatalf("step 3 must be the preconfig download, got %s", queued[2].Type)
	}
	if queued[2].Params.Download.FileType != "3 Vendor Configuration File" {
		t.Fatalf("preconfig file type wrong: %q", queued[2].Params.Download.FileType)
	}

	// The flag set must come strictly before the preconfig download.
	if queued[1].Params.MigrationStep >= queued[2].Params.MigrationStep {
		t.Fatal("flag step must precede preconfig step")
	}

	stored, _ := devices.GetByID(context.Background(), d.ID)
	if !stored.HasTag(TagMigrationPending) {
		t.Fatal("device must gain the migration-pending tag")
	}
}

func TestPlan_SkipsHarvestOnRecentBackup(t *testing.T) {
	p, devices, tasks, backups, _ := newTestPlanner(t)
	d := gigaSpire()
	if err := devices.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if err := backups.Create(context.Background(), &domain.ConfigBackup{
		DeviceID:   d.ID,
		Purpose:    domain.BackupPurposeTR181Migration,
		Parameters: tr098Params(),
		CreatedAt:  time.Now().Add(-time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	planned, err := p.Plan(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(planned) != 2 {
		t.Fatalf("expected harvest skipped, got %d tasks", len(planned))
	}
	for _, task := range tasks.byDevice(d.ID) {
		if task.Params.BackupPurpose == domain.BackupPurposeTR181Migration {
			t.Fatal("harvest task must not be queued when a recent backup exists")
		}
	}
}

func TestPlan_StaleBackupForcesHarvest(t *testing.T) {
	p, devices, _, backups, _ := newTestPlanner(t)
	d := gigaSpire()
	if err := devices.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if err := backups.Create(context.Background(), &domain.ConfigBackup{
		DeviceID:   d.ID,
		Purpose:    domain.BackupPurposeTR181Migration,
		Parameters: tr098Params(),
		CreatedAt:  time.Now().Add(-30 * 24 * time.Hour),
	}); err != nil {
		t.Fatal(err)
	}

	planned, err := p.Plan(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if len(planned) != 3 {
		t.Fatalf("stale backup must force a fresh harvest, got %d tasks", len(planned))
	}
}

// --- Verifier ---

func newTestVerifier(t *testing.T) (*Verifier, *mockDeviceRepo, *mockTaskRepo, *mockBackupRepo, *mockParamRepo) {
	t.Helper()
	devices := newMockDeviceRepo()
	tasks := newMockTaskRepo()
	backups := newMockBackupRepo()
	params := newMockParamRepo()
	return NewVerifier(devices, tasks, backups, params, testLogger()), devices, tasks, backups, params
}

func TestVerify_ModelUnchangedIsExplicitFailure(t *testing.T) {
	v, devices, _, _, params := newTestVerifier(t)
	d := gigaSpire()
	d.Tags = []string{TagMigrationPending}
	if err := devices.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if err := params.Upsert(context.Background(), d.ID, tr098Params()); err != nil {
		t.Fatal(err)
	}

	res, err := v.Verify(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeModelUnchanged {
		t.Fatalf("expected model_unchanged, got %s", res.Outcome)
	}
	stored, _ := devices.GetByID(context.Background(), d.ID)
	if stored.HasTag(TagMigrated) {
		t.Fatal("unchanged model must not be recorded as migrated")
	}
}

func TestVerify_SSIDSurvived(t *testing.T) {
	v, devices, _, backups, params := newTestVerifier(t)
	d := gigaSpire()
	d.Tags = []string{TagMigrationPending}
	if err := devices.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	if err := backups.Create(context.Background(), &domain.ConfigBackup{
		DeviceID:   d.ID,
		Purpose:    domain.BackupPurposeTR181Migration,
		Parameters: tr098Params(),
	}); err != nil {
		t.Fatal(err)
	}
	if err := params.Upsert(context.Background(), d.ID, map[string]domain.ParamValue{
		"Device.DeviceInfo.SoftwareVersion": {Value: "22.1.0.10"},
		"Device.WiFi.SSID.1.SSID":           {Value: "HomeNet"},
	}); err != nil {
		t.Fatal(err)
	}

	res, err := v.Verify(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeVerified {
		t.Fatalf("expected verified, got %s (%q vs %q)", res.Outcome, res.ExpectedSSID, res.ObservedSSID)
	}

	stored, _ := devices.GetByID(context.Background(), d.ID)
	if !stored.HasTag(TagMigrated) || stored.HasTag(TagMigrationPending) {
		t.Fatalf("tags not swapped: %v", stored.Tags)
	}
}

func TestVerify_WiFiLostQueuesFallback(t *testing.T) {
	v, devices, tasks, backups, params := newTestVerifier(t)
	d := gigaSpire()
	d.Tags = []string{TagMigrationPending}
	if err := devices.Create(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	backupParams := tr098Params()
	backupParams["InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.KeyPassphrase"] = domain.ParamValue{Value: "s3cret"}
	if err := backups.Create(context.Background(), &domain.ConfigBackup{
		DeviceID:   d.ID,
		Purpose:    domain.BackupPurposeTR181Migration,
		Parameters: backupParams,
	}); err != nil {
		t.Fatal(err)
	}
	// Post-migration the device came up with factory WiFi.
	if err := params.Upsert(context.Background(), d.ID, map[string]domain.ParamValue{
		"Device.DeviceInfo.SoftwareVersion": {Value: "22.1.0.10"},
		"Device.WiFi.SSID.1.SSID":           {Value: "CXNK9900-FACTORY"},
	}); err != nil {
		t.Fatal(err)
	}

	res, err := v.Verify(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeWiFiLost {
		t.Fatalf("expected wifi_lost, got %s", res.Outcome)
	}
	if res.FallbackTask == nil {
		t.Fatal("expected a fallback task")
	}

	queued := tasks.byDevice(d.ID)
	if len(queued) != 1 || queued[0].Type != domain.TaskSetParams {
		t.Fatalf("expected one set_params fallback, got %+v", queued)
	}
	values := queued[0].Params.Values
	if values["Device.WiFi.SSID.1.SSID"].Value != "HomeNet" {
		t.Fatalf("fallback must restore the SSID on its TR-181 path, got %v", values)
	}
	if values["Device.WiFi.AccessPoint.1.Security.KeyPassphrase"].Value != "s3cret" {
		t.Fatalf("fallback must restore the passphrase, got %v", values)
	}
	for name := range values {
		if strings.HasPrefix(name, "InternetGatewayDevice.") {
			t.Fatalf("fallback must only use TR-181 paths, got %s", name)
		}
	}
}

// --- Reconciler ---

func TestReconcile_MergesPredecessor(t *testing.T) {
	devices := newMockDeviceRepo()
	params := newMockParamRepo()
	backups := newMockBackupRepo()
	runner := &mockMergeRunner{devices: devices, backups: backups}
	r := NewReconciler(devices, params, runner, testLogger())

	pred := gigaSpire()
	pred.Tags = []string{TagMigrationPending}
	pred.ConnectionRequestUser = "acs"
	pred.ConnectionRequestPassword = "hunter2"
	pred.SubscriberID = "sub-123"
	if err := devices.Create(context.Background(), pred); err != nil {
		t.Fatal(err)
	}
	if err := backups.Create(context.Background(), &domain.ConfigBackup{
		DeviceID: pred.ID, Purpose: domain.BackupPurposeTR181Migration, Parameters: tr098Params(),
	}); err != nil {
		t.Fatal(err)
	}

	// Same physical unit re-registered under a new OUI after migration.
	succ := gigaSpire()
	succ.OUI = "CCBE59"
	succ.DeviceKey = domain.DeviceKeyFor(succ.OUI, succ.ProductClass, succ.SerialNumber)
	if err := devices.Create(context.Background(), succ); err != nil {
		t.Fatal(err)
	}

	res, err := r.Reconcile(context.Background(), succ)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Merged {
		t.Fatalf("expected a merge, got %+v", res)
	}
	if res.BackupsTransferred != 1 || !res.CredentialsCopied || !res.SubscriberCopied {
		t.Fatalf("merge incomplete: %+v", res)
	}

	merged, _ := devices.GetByID(context.Background(), succ.ID)
	if merged.ConnectionRequestUser != "acs" || merged.SubscriberID != "sub-123" {
		t.Fatalf("successor did not receive the history: %+v", merged)
	}
	if !merged.HasTag(TagMigrated) {
		t.Fatalf("successor must carry the migration tag: %v", merged.Tags)
	}
	old, _ := devices.GetByID(context.Background(), pred.ID)
	if !old.HasTag(TagMigrationSuperseded) || old.Online {
		t.Fatalf("predecessor must be superseded and offline: %+v", old)
	}
	moved, _ := backups.ListByDevice(context.Background(), succ.ID)
	if len(moved) != 1 {
		t.Fatalf("backup not transferred, successor has %d", len(moved))
	}
}

func TestReconcile_NoPredecessorNoMerge(t *testing.T) {
	devices := newMockDeviceRepo()
	params := newMockParamRepo()
	backups := newMockBackupRepo()
	r := NewReconciler(devices, params, &mockMergeRunner{devices: devices, backups: backups}, testLogger())

	succ := gigaSpire()
	if err := devices.Create(context.Background(), succ); err != nil {
		t.Fatal(err)
	}

	res, err := r.Reconcile(context.Background(), succ)
	if err != nil {
		t.Fatal(err)
	}
	if res.Merged {
		t.Fatal("no sibling, nothing to merge")
	}
}

func TestReconcile_FailureRollsBackEverything(t *testing.T) {
	devices := newMockDeviceRepo()
	params := newMockParamRepo()
	backups := newMockBackupRepo()
	runner := &mockMergeRunner{devices: devices, backups: backups, failOn: "copy_subscriber"}
	r := NewReconciler(devices, params, runner, testLogger())

	pred := gigaSpire()
	pred.Tags = []string{TagMigrationPending}
	pred.ConnectionRequestUser = "acs"
	pred.SubscriberID = "sub-123"
	if err := devices.Create(context.Background(), pred); err != nil {
		t.Fatal(err)
	}
	if err := backups.Create(context.Background(), &domain.ConfigBackup{
		DeviceID: pred.ID, Purpose: domain.BackupPurposeTR181Migration, Parameters: tr098Params(),
	}); err != nil {
		t.Fatal(err)
	}

	succ := gigaSpire()
	succ.OUI = "CCBE59"
	succ.DeviceKey = domain.DeviceKeyFor(succ.OUI, succ.ProductClass, succ.SerialNumber)
	if err := devices.Create(context.Background(), succ); err != nil {
		t.Fatal(err)
	}

	res, err := r.Reconcile(context.Background(), succ)
	if err == nil {
		t.Fatal("expected the injected failure to surface")
	}
	if res.Merged || res.Err == "" {
		t.Fatalf("failed merge must report Err and not claim success: %+v", res)
	}

	// Everything rolled back: backups stayed on the predecessor, successor
	// received nothing, predecessor is untouched.
	left, _ := backups.ListByDevice(context.Background(), pred.ID)
	if len(left) != 1 {
		t.Fatalf("backup leaked off the predecessor, it has %d", len(left))
	}
	after, _ := devices.GetByID(context.Background(), succ.ID)
	if after.ConnectionRequestUser != "" || after.SubscriberID != "" {
		t.Fatalf("successor mutated despite rollback: %+v", after)
	}
	oldAfter, _ := devices.GetByID(context.Background(), pred.ID)
	if oldAfter.HasTag(TagMigrationSuperseded) || !oldAfter.Online {
		t.Fatalf("predecessor mutated despite rollback: %+v", oldAfter)
	}
}
