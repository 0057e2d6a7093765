package datamodel

import (
	"strings"

	"github.com/crestwave/acs/internal/domain"
)

// WiFiPairs maps each TR-098 WiFi parameter to its TR-181 twin. Used by the
// post-migration WiFi fallback: when the SSID check fails after a data-model
// switch, these are the parameters re-applied from the pre-migration backup.
var WiFiPairs = []struct {
	TR098 string
	TR181 string
}{
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID", "Device.WiFi.SSID.1.SSID"},
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.KeyPassphrase", "Device.WiFi.AccessPoint.1.Security.KeyPassphrase"},
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.Enable", "Device.WiFi.Radio.1.Enable"},
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.Channel", "Device.WiFi.Radio.1.Channel"},
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.SSID", "Device.WiFi.SSID.5.SSID"},
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.KeyPassphrase", "Device.WiFi.AccessPoint.5.Security.KeyPassphrase"},
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.Enable", "Device.WiFi.Radio.2.Enable"},
	{"InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.Channel", "Device.WiFi.Radio.2.Channel"},
}

// PrimarySSIDPath returns the primary SSID parameter for a data model.
func PrimarySSIDPath(model domain.DataModel) string {
	if model == domain.DataModelTR181 {
		return "Device.WiFi.SSID.1.SSID"
	}
	return "InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID"
}

// WiFiParamPrefixes are the stored-parameter name prefixes considered
// WiFi-related when building a transition backup from cached rows instead
// of querying a live device.
var WiFiParamPrefixes = []string{
	"InternetGatewayDevice.LANDevice.1.WLANConfiguration.",
	"Device.WiFi.",
}

// IsWiFiParam reports whether a parameter name is WiFi-related.
func IsWiFiParam(name string) bool {
	for _, p := range WiFiParamPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
