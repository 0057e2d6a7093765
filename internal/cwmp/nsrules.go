package cwmp

import (
	"strings"

	"github.com/crestwave/acs/internal/domain"
)

// NamespaceRule pins a device family to a CWMP version. These mappings were
// reverse-engineered from live traffic and are not derivable from the
// TR-069 spec; treat them as configuration data, seeded below and
// overridable from a YAML file. First matching rule wins.
type NamespaceRule struct {
	Manufacturer         string `yaml:"manufacturer,omitempty"`
	ProductClassContains string `yaml:"product_class_contains,omitempty"`
	OUI                  string `yaml:"oui,omitempty"`
	CwmpVersion          string `yaml:"cwmp_version"`
}

// DefaultNamespaceRules is the built-in seed table. GigaCenter units stall
// on anything newer than 1.0 while GigaSpire firmware, on the same TR-098
// data model, requires 1.2. Nokia fleets split by OUI: two OUIs of the same
// brand answer to different versions.
func DefaultNamespaceRules() []NamespaceRule {
	return []NamespaceRule{
		{Manufacturer: "Calix", ProductClassContains: "GigaCenter", CwmpVersion: "1.0"},
		{Manufacturer: "Calix", ProductClassContains: "844", CwmpVersion: "1.0"},
		{Manufacturer: "Calix", ProductClassContains: "GigaSpire", CwmpVersion: "1.2"},
		{Manufacturer: "Calix", ProductClassContains: "GS", CwmpVersion: "1.2"},
		{OUI: "209BCD", CwmpVersion: "1.1"},
		{OUI: "3C9066", CwmpVersion: "1.0"},
		{Manufacturer: "Nokia", CwmpVersion: "1.1"},
	}
}

// VersionNamespace maps a dotted CWMP version to its namespace URN.
func VersionNamespace(version string) string {
	switch version {
	case "1.2":
		return NamespaceCWMP12
	case "1.1":
		return NamespaceCWMP11
	default:
		return NamespaceCWMP10
	}
}

// ResolveNamespace applies the rule table to a device. Returns false when no
// rule matches, letting the caller fall through to the 1.0 default.
func ResolveNamespace(rules []NamespaceRule, d *domain.Device) (string, bool) {
	for _, r := range rules {
		if r.OUI != "" && !strings.EqualFold(r.OUI, d.OUI) {
			continue
		}
		if r.Manufacturer != "" && !strings.EqualFold(r.Manufacturer, d.Manufacturer) {
			continue
		}
		if r.ProductClassContains != "" && !strings.Contains(d.ProductClass, r.ProductClassContains) {
			continue
		}
		if r.OUI == "" && r.Manufacturer == "" && r.ProductClassContains == "" {
			continue
		}
		return VersionNamespace(r.CwmpVersion), true
	}
	return "", false
}
