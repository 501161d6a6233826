package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
)

// maxInterfaceNameLen mirrors IFNAMSIZ-1 on Linux
const maxInterfaceNameLen = 15

var interfaceNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// Config represents the application configuration
type Config struct {
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Wifi    WifiConfig    `json:"wifi" yaml:"wifi"`
	Capture CaptureConfig `json:"capture" yaml:"capture"`
	Status  StatusConfig  `json:"status" yaml:"status"`
}

// LoggingConfig controls the process logger
type LoggingConfig struct {
	// Level is the minimum log level to output (debug, info, warn, error)
	Level string `json:"level" yaml:"level"`
	// File is the path to the log file. If empty, logs to stdout only
	File string `json:"file" yaml:"file"`
	// MaxSizeMB is the maximum size of log file before rotation
	MaxSizeMB int `json:"max_size_mb" yaml:"max_size_mb"`
	// LogRetentionDays is how long rotated log files are kept
	LogRetentionDays int `json:"log_retention_days" yaml:"log_retention_days"`
}

// WifiConfig describes the adapter being driven
type WifiConfig struct {
	// Interface is the managed interface, e.g. wlan0
	Interface string `json:"interface" yaml:"interface"`
	// MonitorSuffix is appended to Interface to name the monitor interface
	MonitorSuffix string `json:"monitor_suffix" yaml:"monitor_suffix"`
	// UseSudo prefixes privileged commands with sudo -n
	UseSudo bool `json:"use_sudo" yaml:"use_sudo"`
}

// CaptureConfig controls capture sessions
type CaptureConfig struct {
	// QueryTimeoutSeconds bounds the capture startup handshake
	QueryTimeoutSeconds int `json:"query_timeout_seconds" yaml:"query_timeout_seconds"`
	// RecordPeriodSeconds is the default reporting period of a session
	RecordPeriodSeconds int `json:"record_period_seconds" yaml:"record_period_seconds"`
	// PacketTypes lists the frame types that are reported
	PacketTypes []string `json:"packet_types" yaml:"packet_types"`
	// SnapLen is the tcpdump snapshot length
	SnapLen int `json:"snap_len" yaml:"snap_len"`
	// LogRatePerSecond caps packet report lines
	LogRatePerSecond int `json:"log_rate_per_second" yaml:"log_rate_per_second"`
}

// StatusConfig controls the gRPC health endpoint
type StatusConfig struct {
	// ListenAddr enables the endpoint when set, e.g. 127.0.0.1:7711
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
}

// Defaults returns the configuration used for every unset field
func Defaults() Config {
	return Config{
		Logging: LoggingConfig{
			Level:            "info",
			MaxSizeMB:        100,
			LogRetentionDays: 7,
		},
		Wifi: WifiConfig{
			Interface:     "wlan0",
			MonitorSuffix: "mon",
		},
		Capture: CaptureConfig{
			QueryTimeoutSeconds: 5,
			RecordPeriodSeconds: 60,
			PacketTypes:         []string{"Probe Request", "other"},
			SnapLen:             256,
			LogRatePerSecond:    20,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file
func LoadConfig(configPath string) (*Config, error) {
	// Set default config path if not provided
	if configPath == "" {
		configPath = "config.json"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %v", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %v", err)
	}

	if err := config.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	return &config, nil
}

// ValidateAndSetDefaults fills unset fields from Defaults and validates
// the result
func (c *Config) ValidateAndSetDefaults() error {
	if err := mergo.Merge(c, Defaults()); err != nil {
		return fmt.Errorf("failed to apply defaults: %v", err)
	}
	if _, err := logger.ParseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %v", err)
	}
	if err := ValidateInterfaceName(c.Wifi.Interface); err != nil {
		return fmt.Errorf("invalid wifi.interface: %v", err)
	}
	if err := ValidateInterfaceName(c.MonitorInterface()); err != nil {
		return fmt.Errorf("invalid wifi.monitor_suffix: %v", err)
	}
	if c.Capture.QueryTimeoutSeconds < 0 || c.Capture.RecordPeriodSeconds < 0 {
		return fmt.Errorf("capture durations must not be negative")
	}
	return nil
}

// MonitorInterface returns the name of the monitor interface
func (c *Config) MonitorInterface() string {
	return c.Wifi.Interface + c.Wifi.MonitorSuffix
}

// QueryTimeout returns the capture startup bound
func (c *Config) QueryTimeout() time.Duration {
	return time.Duration(c.Capture.QueryTimeoutSeconds) * time.Second
}

// RecordPeriod returns the default capture reporting period
func (c *Config) RecordPeriod() time.Duration {
	return time.Duration(c.Capture.RecordPeriodSeconds) * time.Second
}

// ValidateInterfaceName rejects names that are empty, too long or contain
// anything besides letters, digits, '.', '_' and '-'. Interface names end up
// in privileged commands, so shell metacharacters must never pass.
func ValidateInterfaceName(name string) error {
	if name == "" {
		return fmt.Errorf("interface name cannot be empty")
	}
	if len(name) > maxInterfaceNameLen {
		return fmt.Errorf("interface name too long: %d characters", len(name))
	}
	if !interfaceNamePattern.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("interface name contains invalid characters")
	}
	return nil
}

// InitializeLogging sets up logging based on config
func (c *Config) InitializeLogging() error {
	level, err := logger.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %v", err)
	}

	logConfig := logger.Config{
		LogLevel:   level,
		LogFile:    c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxAgeDays: c.Logging.LogRetentionDays,
	}

	if err := logger.Initialize(logConfig); err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}

	return nil
}
