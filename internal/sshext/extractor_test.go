package sshext

import "testing"

func TestParseWiFiOutput_VendorCLI(t *testing.T) {
	out := `
# wifi configuration
ssid_2g="HomeNet"
key_2g='s3cret pass'
channel_2g=6
enabled_2g=1
ssid_5g="HomeNet-5G"
noise_floor=-92
`
	values := parseWiFiOutput(out)
	if got := values["InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID"].Value; got != "HomeNet" {
		t.Fatalf("2g ssid: %q", got)
	}
	if got := values["InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.KeyPassphrase"].Value; got != "s3cret pass" {
		t.Fatalf("passphrase quoting: %q", got)
	}
	if got := values["InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.SSID"].Value; got != "HomeNet-5G" {
		t.Fatalf("5g ssid: %q", got)
	}
	if len(values) != 5 {
		t.Fatalf("unexpected keys parsed: %v", values)
	}
}

func TestParseWiFiOutput_UCI(t *testing.T) {
	out := `
wireless.radio0.channel='11'
wireless.@wifi-iface[0].ssid='HomeNet'
wireless.@wifi-iface[0].key='hunter2'
`
	values := parseWiFiOutput(out)
	if got := values["InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID"].Value; got != "HomeNet" {
		t.Fatalf("uci ssid: %q", got)
	}
	if got := values["InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.KeyPassphrase"].Value; got != "hunter2" {
		t.Fatalf("uci key: %q", got)
	}
}

func TestParseWiFiOutput_EmptyAndGarbage(t *testing.T) {
	if values := parseWiFiOutput("segmentation fault\n"); len(values) != 0 {
		t.Fatalf("garbage must parse to nothing, got %v", values)
	}
	if values := parseWiFiOutput(""); len(values) != 0 {
		t.Fatalf("empty must parse to nothing, got %v", values)
	}
}
