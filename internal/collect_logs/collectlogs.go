package collect_logs

import (
	"archive/zip"
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/metadata"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/runner"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/version"
)

// Options selects what goes into the support bundle
type Options struct {
	// LogDir holds the rotated log files, default "logs"
	LogDir string
	// ConfigPath is added when present, default "config.json"
	ConfigPath string
	// Interface is the managed adapter described in sensor-info.txt
	Interface string
	// Runner collects adapter diagnostics; nil skips them
	Runner runner.Runner
}

// diagnosticCommands are run for the adapter-info.txt section
var diagnosticCommands = []string{"iw dev", "iw phy", "ifconfig -a"}

// CollectLogs creates a zip archive with logs, config, version, system,
// sensor and adapter info for diagnostics. zipName is the output file name
// (e.g., "enigma-wifi-logs-YYYYMMDD-HHMMSS.zip").
func CollectLogs(ctx context.Context, zipName string, opts Options) error {
	if opts.LogDir == "" {
		opts.LogDir = "logs"
	}
	if opts.ConfigPath == "" {
		opts.ConfigPath = "config.json"
	}

	zipFile, err := os.Create(zipName)
	if err != nil {
		return fmt.Errorf("failed to create zip: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)
	defer zipWriter.Close()

	// logs/ may not exist
	_ = addDirToZip(zipWriter, opts.LogDir, zipName)

	if _, err := os.Stat(opts.ConfigPath); err == nil {
		_ = addFileToZip(zipWriter, opts.ConfigPath, filepath.Base(opts.ConfigPath))
	}

	_ = addStringToZip(zipWriter, "version.txt", version.Version+"\n")
	_ = addStringToZip(zipWriter, "system-info.txt", getSystemInfo())
	_ = addStringToZip(zipWriter, "sensor-info.txt", metadata.Format(metadata.Generate(opts.Interface)))

	if opts.Runner != nil {
		_ = addStringToZip(zipWriter, "adapter-info.txt", getAdapterInfo(ctx, opts.Runner))
	}
	return nil
}

func addFileToZip(zipWriter *zip.Writer, filename, name string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w, err := zipWriter.Create(filepath.ToSlash(name))
	if err != nil {
		return err
	}
	_, err = io.Copy(w, file)
	return err
}

func addStringToZip(zipWriter *zip.Writer, filename, content string) error {
	w, err := zipWriter.Create(filename)
	if err != nil {
		return err
	}
	_, err = w.Write([]byte(content))
	return err
}

// addDirToZip adds every file under dir as base(dir)/relative, skipping
// the archive being written when it lives inside dir
func addDirToZip(zipWriter *zip.Writer, dir, skip string) error {
	skipAbs, _ := filepath.Abs(skip)
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == skipAbs {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return nil
		}
		// Non-fatal, just skip
		_ = addFileToZip(zipWriter, path, filepath.Join(filepath.Base(dir), rel))
		return nil
	})
}

func getAdapterInfo(ctx context.Context, r runner.Runner) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var b strings.Builder
	for _, cmd := range diagnosticCommands {
		fmt.Fprintf(&b, "$ %s\n", cmd)
		res, err := r.Run(ctx, cmd)
		switch {
		case err != nil:
			fmt.Fprintf(&b, "error: %v\n", err)
		case res.Failed():
			fmt.Fprintf(&b, "exit %d: %s\n", res.ExitCode, strings.TrimSpace(res.Stderr))
		default:
			b.WriteString(res.Stdout)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func getSystemInfo() string {
	var b strings.Builder
	b.WriteString("OS: ")
	b.WriteString(runtime.GOOS)
	b.WriteString("\nArch: ")
	b.WriteString(runtime.GOARCH)
	b.WriteString("\nGo version: ")
	b.WriteString(runtime.Version())
	b.WriteString(fmt.Sprintf("\nNumCPU: %d\n", runtime.NumCPU()))
	if hn, err := os.Hostname(); err == nil {
		b.WriteString("Hostname: ")
		b.WriteString(hn)
		b.WriteString("\n")
	}

	if runtime.GOOS == "linux" {
		if f, err := os.Open("/etc/os-release"); err == nil {
			defer f.Close()
			b.WriteString("/etc/os-release:\n")
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				line := scanner.Text()
				if strings.HasPrefix(line, "NAME=") || strings.HasPrefix(line, "VERSION=") || strings.HasPrefix(line, "PRETTY_NAME=") {
					b.WriteString("  " + line + "\n")
				}
			}
		}
		if data, err := os.ReadFile("/proc/sys/kernel/osrelease"); err == nil {
			b.WriteString("Kernel: " + strings.TrimSpace(string(data)) + "\n")
		}
	}
	return b.String()
}
