// Package sshext recovers WiFi settings over SSH from devices whose
// remote management tree stops exposing them, typically right before a
// platform transition.
package sshext

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/crestwave/acs/internal/domain"
)

// Config holds the SSH account provisioned on managed units.
type Config struct {
	Username string
	Password string
	Port     int
	Timeout  time.Duration
}

// Extractor logs into a device and reads its WiFi configuration from the
// vendor CLI.
type Extractor struct {
	cfg Config
	log *slog.Logger
}

func NewExtractor(cfg Config, log *slog.Logger) *Extractor {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Extractor{cfg: cfg, log: log}
}

// wifiCommands are tried in order; the first that yields parseable output
// wins. Different firmware generations ship different CLIs.
var wifiCommands = []string{
	"show wifi config",
	"uci show wireless",
}

// ExtractWiFi connects, runs the CLI dump, and maps the output onto TR-098
// parameter paths so it folds into the regular parameter cache.
func (e *Extractor) ExtractWiFi(ctx context.Context, d *domain.Device) (map[string]domain.ParamValue, error) {
	if d.IPAddress == "" {
		return nil, fmt.Errorf("device %s has no known IP address", d.DeviceKey)
	}
	addr := net.JoinHostPort(d.IPAddress, fmt.Sprintf("%d", e.cfg.Port))

	config := &ssh.ClientConfig{
		User:            e.cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(e.cfg.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.cfg.Timeout,
	}

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", d.DeviceKey, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	for _, cmd := range wifiCommands {
		output, err := runCommand(client, cmd)
		if err != nil {
			e.log.Debug("wifi command failed", "device", d.DeviceKey, "cmd", cmd, "error", err)
			continue
		}
		values := parseWiFiOutput(output)
		if len(values) > 0 {
			e.log.Info("wifi settings extracted", "device", d.DeviceKey, "cmd", cmd, "count", len(values))
			return values, nil
		}
	}
	return nil, fmt.Errorf("no wifi settings recoverable from %s", d.DeviceKey)
}

func runCommand(client *ssh.Client, cmd string) (string, error) {
	sess, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer sess.Close()
	var out bytes.Buffer
	sess.Stdout = &out
	if err := sess.Run(cmd); err != nil {
		return "", err
	}
	return out.String(), nil
}

// outputKeys maps CLI keys onto TR-098 paths. Both CLI dialects use the
// same key names with different separators.
var outputKeys = map[string]string{
	"ssid_2g":       "InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID",
	"key_2g":        "InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.KeyPassphrase",
	"channel_2g":    "InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.Channel",
	"enabled_2g":    "InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.Enable",
	"ssid_5g":       "InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.SSID",
	"key_5g":        "InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.KeyPassphrase",
	"channel_5g":    "InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.Channel",
	"enabled_5g":    "InternetGatewayDevice.LANDevice.1.WLANConfiguration.5.Enable",
	"wireless.ssid": "InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.SSID",
	"wireless.key":  "InternetGatewayDevice.LANDevice.1.WLANConfiguration.1.KeyPassphrase",
}

// parseWiFiOutput reads key=value lines, tolerating the quoting and
// whitespace differences between CLI dialects.
func parseWiFiOutput(output string) map[string]domain.ParamValue {
	values := make(map[string]domain.ParamValue)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[0]))
		val := strings.Trim(strings.TrimSpace(kv[1]), `'"`)
		path, ok := outputKeys[key]
		if !ok {
			// uci keys come prefixed with the section, e.g.
			// wireless.@wifi-iface[0].ssid
			if idx := strings.LastIndex(key, "."); idx >= 0 {
				path, ok = outputKeys["wireless."+key[idx+1:]]
			}
			if !ok {
				continue
			}
		}
		if val != "" {
			values[path] = domain.ParamValue{Value: val}
		}
	}
	return values
}
