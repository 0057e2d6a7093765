package datamodel

import "strings"

// staticMap holds the exact TR-098 -> TR-181 translations for known paths.
// Entries were collected against live GigaSpire and GigaCenter firmware;
// the pattern fallback below handles everything else.
var staticMap = map[string]string{
	// WiFi
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID":          "Device.WiFi.SSID.1.SSID",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.Enable":        "Device.WiFi.Radio.1.Enable",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.Channel":       "Device.WiFi.Radio.1.Channel",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.KeyPassphrase": "Device.WiFi.AccessPoint.1.Security.KeyPassphrase",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.BeaconType":    "Device.WiFi.AccessPoint.1.Security.ModeEnabled",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.SSID":          "Device.WiFi.SSID.5.SSID",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.Enable":        "Device.WiFi.Radio.2.Enable",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.Channel":       "Device.WiFi.Radio.2.Channel",
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.KeyPassphrase": "Device.WiFi.AccessPoint.5.Security.KeyPassphrase",

	// DHCP
	"InternetGatewayDevice.LANDevice.1.LANHostConfigManagement.MinAddress":     "Device.DHCPv4.Server.Pool.1.MinAddress",
	"InternetGatewayDevice.LANDevice.1.LANHostConfigManagement.MaxAddress":     "Device.DHCPv4.Server.Pool.1.MaxAddress",
	"InternetGatewayDevice.LANDevice.1.LANHostConfigManagement.SubnetMask":     "Device.DHCPv4.Server.Pool.1.SubnetMask",
	"InternetGatewayDevice.LANDevice.1.LANHostConfigManagement.DNSServers":     "Device.DHCPv4.Server.Pool.1.DNSServers",
	"InternetGatewayDevice.LANDevice.1.LANHostConfigManagement.DHCPLeaseTime":  "Device.DHCPv4.Server.Pool.1.LeaseTime",
	"InternetGatewayDevice.LANDevice.1.LANHostConfigManagement.DHCPServerEnable": "Device.DHCPv4.Server.Enable",

	// Time / NTP
	"InternetGatewayDevice.Time.NTPServer1":    "Device.Time.NTPServer1",
	"InternetGatewayDevice.Time.NTPServer2":    "Device.Time.NTPServer2",
	"InternetGatewayDevice.Time.LocalTimeZone": "Device.Time.LocalTimeZone",
	"InternetGatewayDevice.Time.Enable":        "Device.Time.Enable",

	// Parental controls (vendor extension prefixes differ between models)
	"InternetGatewayDevice.X_Authentication.WebAccount.Enable": "Device.X_Authentication.WebAccount.Enable",
	"InternetGatewayDevice.X_CALIX_SXACC.ParentalControl.Enable": "Device.X_CALIX_SXACC.ParentalControl.Enable",
	"InternetGatewayDevice.X_000631_ParentalControl.Enable":      "Device.X_000631_ParentalControl.Enable",
}

// patternSubs are prefix substitutions applied when no static entry
// matches, most specific first.
var patternSubs = []struct{ from, to string }{
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.", "Device.WiFi.Radio."},
	{"InternetGatewayDevice.LANDevice.1.LANHostConfigManagement.", "Device.DHCPv4.Server.Pool.1."},
	{"InternetGatewayDevice.Time.", "Device.Time."},
	{"InternetGatewayDevice.DeviceInfo.", "Device.DeviceInfo."},
}

// managementServerPaths must never appear in conversion output: rewriting
// the ACS connection parameters would lock the ACS out of the device.
func isManagementServerPath(name string) bool {
	for _, frag := range []string{".ManagementServer.URL", ".ManagementServer.Username", ".ManagementServer.Password", ".ManagementServer.ConnectionRequest"} {
		if strings.Contains(name, frag) {
			return true
		}
	}
	return false
}

// ConvertPath translates one TR-098 parameter path to its TR-181
// equivalent: static table, then pattern substitution, then a naive root
// swap. The second return is false for paths that must be excluded from
// conversion output entirely.
func ConvertPath(name string) (string, bool) {
	if isManagementServerPath(name) {
		return "", false
	}
	if mapped, ok := staticMap[name]; ok {
		return mapped, true
	}
	for _, sub := range patternSubs {
		if strings.HasPrefix(name, sub.from) {
			return sub.to + strings.TrimPrefix(name, sub.from), true
		}
	}
	if strings.HasPrefix(name, "InternetGatewayDevice.") {
		return "Device." + strings.TrimPrefix(name, "InternetGatewayDevice."), true
	}
	return name, true
}
