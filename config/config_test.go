package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInterfaceName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
		errorMsg  string
	}{
		// Valid interface names
		{"valid wireless interface", "wlan0", false, ""},
		{"valid predictable name", "wlp2s0", false, ""},
		{"valid interface with dash", "wlan0-1", false, ""},
		{"valid interface with underscore", "wlan_0", false, ""},
		{"valid interface with dot", "wlan0.100", false, ""},

		// Invalid interface names - security risks
		{"empty string", "", true, "interface name cannot be empty"},
		{"command injection semicolon", "wlan0;reboot", true, "interface name contains invalid characters"},
		{"command injection ampersand", "wlan0&&id", true, "interface name contains invalid characters"},
		{"command injection pipe", "wlan0|nc", true, "interface name contains invalid characters"},
		{"command injection backtick", "wlan0`id`", true, "interface name contains invalid characters"},
		{"command injection dollar", "wlan0$(id)", true, "interface name contains invalid characters"},
		{"path traversal", "../etc", true, "interface name contains invalid characters"},
		{"double dot", "wlan..0", true, "interface name contains invalid characters"},
		{"forward slash", "wlan0/test", true, "interface name contains invalid characters"},
		{"quotes", "wlan0\"x", true, "interface name contains invalid characters"},
		{"space", "wlan0 test", true, "interface name contains invalid characters"},
		{"newline", "wlan0\nid", true, "interface name contains invalid characters"},
		{"null byte", "wlan0\x00", true, "interface name contains invalid characters"},

		// Length validation
		{"too long", strings.Repeat("a", 16), true, "interface name too long: 16 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInterfaceName(tt.input)
			if tt.wantError {
				if err == nil {
					t.Errorf("ValidateInterfaceName(%q) expected error but got nil", tt.input)
				} else if tt.errorMsg != "" && !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("ValidateInterfaceName(%q) error = %v, expected to contain %q", tt.input, err, tt.errorMsg)
				}
			} else if err != nil {
				t.Errorf("ValidateInterfaceName(%q) unexpected error = %v", tt.input, err)
			}
		})
	}
}

func TestConfig_ValidateAndSetDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.ValidateAndSetDefaults())

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "wlan0", cfg.Wifi.Interface)
	assert.Equal(t, "wlan0mon", cfg.MonitorInterface())
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout())
	assert.Equal(t, 60*time.Second, cfg.RecordPeriod())
	assert.Equal(t, []string{"Probe Request", "other"}, cfg.Capture.PacketTypes)
}

func TestConfig_ValidateAndSetDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Wifi.Interface = "wlp3s0"
	cfg.Capture.QueryTimeoutSeconds = 2
	cfg.Capture.PacketTypes = []string{"Beacon"}
	require.NoError(t, cfg.ValidateAndSetDefaults())

	assert.Equal(t, "wlp3s0", cfg.Wifi.Interface)
	assert.Equal(t, 2*time.Second, cfg.QueryTimeout())
	assert.Equal(t, []string{"Beacon"}, cfg.Capture.PacketTypes)
}

func TestConfig_ValidateAndSetDefaults_RejectsLongMonitorName(t *testing.T) {
	cfg := &Config{}
	cfg.Wifi.Interface = "wlx00c0ca123456" // 15 chars, +mon overflows
	err := cfg.ValidateAndSetDefaults()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitor_suffix")
}

func TestLoadConfig_JSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
  "logging": {"level": "debug"},
  "wifi": {"interface": "wlan1", "use_sudo": true},
  "capture": {"query_timeout_seconds": 3}
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "wlan1", cfg.Wifi.Interface)
	assert.True(t, cfg.Wifi.UseSudo)
	assert.Equal(t, 3*time.Second, cfg.QueryTimeout())
	assert.Equal(t, 60*time.Second, cfg.RecordPeriod())
}

func TestLoadConfig_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
wifi:
  interface: wlan2
capture:
  packet_types: ["Probe Request", "Beacon"]
status:
  listen_addr: 127.0.0.1:7711
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "wlan2", cfg.Wifi.Interface)
	assert.Equal(t, []string{"Probe Request", "Beacon"}, cfg.Capture.PacketTypes)
	assert.Equal(t, "127.0.0.1:7711", cfg.Status.ListenAddr)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	injected := filepath.Join(dir, "injected.json")
	require.NoError(t, os.WriteFile(injected, []byte(`{"wifi":{"interface":"wlan0;reboot"}}`), 0644))
	_, err = LoadConfig(injected)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid wifi.interface")
}
