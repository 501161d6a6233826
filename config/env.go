package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override the config file
const (
	EnvInterface  = "ENIGMA_WIFI_INTERFACE"
	EnvUseSudo    = "ENIGMA_WIFI_USE_SUDO"
	EnvLogLevel   = "ENIGMA_WIFI_LOG_LEVEL"
	EnvStatusAddr = "ENIGMA_WIFI_STATUS_ADDR"
)

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// Variables already set win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %v", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from the environment and validates the result
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvInterface); v != "" {
		c.Wifi.Interface = v
	}
	if v := os.Getenv(EnvUseSudo); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %v", EnvUseSudo, err)
		}
		c.Wifi.UseSudo = b
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvStatusAddr); v != "" {
		c.Status.ListenAddr = v
	}
	return c.ValidateAndSetDefaults()
}
