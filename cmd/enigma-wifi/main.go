package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"EnigmaNetz/Enigma-Wifi-Sensor/config"
	collect_logs "EnigmaNetz/Enigma-Wifi-Sensor/internal/collect_logs"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/runner"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root cobra command with all subcommands
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "enigma-wifi",
		Short: "Wireless adapter mode controller",
		Long: `Enigma Wifi Sensor switches a wireless adapter between dormant, monitor
and capture modes and reports the devices it hears.

The configuration is loaded from --config, or from /etc/enigma-wifi/config.json
or config.json in the working directory. See config.example.json.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a JSON or YAML config file")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newCollectLogsCmd(&configPath),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
		},
	}
}

func newCollectLogsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "collect-logs",
		Short: "Package logs, config and adapter diagnostics into a zip archive for support",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			opts := collect_logs.Options{
				ConfigPath: path,
				Interface:  cfg.Wifi.Interface,
				Runner:     runner.NewExecRunner(cfg.Wifi.UseSudo, logger.Discard()),
			}
			if cfg.Logging.File != "" {
				opts.LogDir = filepath.Dir(cfg.Logging.File)
			}

			zipName := fmt.Sprintf("enigma-wifi-logs-%s.zip", time.Now().Format("20060102-150405"))
			if err := collect_logs.CollectLogs(cmd.Context(), zipName, opts); err != nil {
				return fmt.Errorf("failed to collect logs: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s with logs, config, and diagnostics.\n", zipName)
			return nil
		},
	}
}

// defaultConfigPaths are tried in order when --config is not given
func defaultConfigPaths() []string {
	if runtime.GOOS == "windows" {
		return []string{`C:\ProgramData\EnigmaWifi\config.json`, "config.json"}
	}
	return []string{"/etc/enigma-wifi/config.json", "config.json"}
}

// loadConfig loads the explicit path, or the first default path that
// exists, then applies environment overrides (including a .env file in the
// working directory). With no file at all the built-in defaults are used.
func loadConfig(path string) (*config.Config, string, error) {
	if err := config.LoadEnvFile(".env"); err != nil {
		return nil, "", err
	}
	cfg, found, err := loadConfigFile(path)
	if err != nil {
		return nil, "", err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}
	return cfg, found, nil
}

func loadConfigFile(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadConfig(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	for _, p := range defaultConfigPaths() {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		cfg, err := config.LoadConfig(p)
		if err != nil {
			return nil, "", err
		}
		return cfg, p, nil
	}
	cfg := config.Defaults()
	if err := cfg.ValidateAndSetDefaults(); err != nil {
		return nil, "", err
	}
	return &cfg, "", nil
}
