// Package migration holds the TR-098 to TR-181 data-model migration logic
// for the GigaSpire family: eligibility, task planning, post-migration
// verification, and identity reconciliation.
package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/crestwave/acs/internal/domain"
)

// Device tags used to track migration state.
const (
	TagMigrationPending    = "tr181_migration_pending"
	TagMigrationSuperseded = "tr181_migration_superseded"
	TagMigrated            = "tr181_migrated"
)

// ConfigMigrationParam is the vendor sentinel flag the migration firmware
// reads at the moment it processes the pre-configuration file. It must be
// set to 1 before the preconfig download, never after.
const ConfigMigrationParam = "InternetGatewayDevice.X_CALIX_SXACC.ConfigMigration"

// Device families allowed to migrate: OUI allow-list cross-referenced with
// a product-class substring, manufacturer name as the fallback when the
// OUI is inconclusive.
var (
	eligibleOUIs                 = map[string]bool{"D0768F": true, "CCBE59": true}
	eligibleProductClassFragment = "GigaSpire"
	eligibleManufacturer         = "Calix"
)

// Eligibility is the structured result of a migration pre-check. Never an
// error: callers must inspect Eligible before acting.
type Eligibility struct {
	Eligible bool     `json:"eligible"`
	Reasons  []string `json:"reasons"`
	Warnings []string `json:"warnings"`
}

// Input carries everything the eligibility check reads. It is a pure
// function over this snapshot; nothing is fetched.
type Input struct {
	Device         *domain.Device
	DataModel      domain.DataModel
	KnownParams    map[string]domain.ParamValue
	ActiveFirmware *domain.Firmware
	// RequiredFirmware is the version substring migration firmware must
	// match when no active-firmware record resolves.
	RequiredFirmware string
	LastBackupAt     *time.Time
	BackupMaxAge     time.Duration
	PendingTasks     int
}

func isTargetFamily(d *domain.Device) bool {
	if eligibleOUIs[strings.ToUpper(d.OUI)] && strings.Contains(d.ProductClass, eligibleProductClassFragment) {
		return true
	}
	// OUI inconclusive: fall back to manufacturer-name substring match.
	return strings.Contains(d.Manufacturer, eligibleManufacturer) &&
		strings.Contains(d.ProductClass, eligibleProductClassFragment)
}

func firmwareMatches(in Input) bool {
	if in.RequiredFirmware != "" && strings.Contains(in.Device.SoftwareVersion, in.RequiredFirmware) {
		return true
	}
	// Cross-reference against the device type's currently active firmware.
	if in.ActiveFirmware != nil && strings.Contains(in.Device.SoftwareVersion, in.ActiveFirmware.Version) {
		return true
	}
	return false
}

// Check evaluates migration eligibility. Hard blockers set Eligible=false;
// soft conditions only surface as warnings.
func Check(in Input) Eligibility {
	out := Eligibility{Eligible: true, Reasons: []string{}, Warnings: []string{}}
	d := in.Device

	if !isTargetFamily(d) {
		out.Eligible = false
		out.Reasons = append(out.Reasons, fmt.Sprintf("device %s is not an eligible GigaSpire unit", d.DeviceKey))
	}
	if in.DataModel == domain.DataModelTR181 {
		out.Eligible = false
		out.Reasons = append(out.Reasons, "device already reports the TR-181 data model")
	}
	if !firmwareMatches(in) {
		out.Eligible = false
		out.Reasons = append(out.Reasons, fmt.Sprintf("firmware %q does not match the required migration version", d.SoftwareVersion))
	}

	if !d.Online {
		out.Warnings = append(out.Warnings, "device is currently offline; migration will start at its next inform")
	}
	if in.BackupMaxAge > 0 {
		if in.LastBackupAt == nil || time.Since(*in.LastBackupAt) > in.BackupMaxAge {
			out.Warnings = append(out.Warnings, fmt.Sprintf("no configuration backup within the last %s", in.BackupMaxAge))
		}
	}
	if in.PendingTasks > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d pending tasks will run before migration steps", in.PendingTasks))
	}
	if _, ok := in.KnownParams[ConfigMigrationParam]; !ok {
		// Warning only: absence may simply mean the parameter was never
		// queried, not that the firmware lacks it. Flagged for product
		// review rather than tightened into a blocker.
		out.Warnings = append(out.Warnings, "ConfigMigration parameter not found among known parameters")
	}

	return out
}
