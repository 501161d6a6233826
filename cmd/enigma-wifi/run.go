package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"EnigmaNetz/Enigma-Wifi-Sensor/config"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/capture"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/capture/linux"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/metadata"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/monitor"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/runner"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/status"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/wifi"
)

// shutdownTimeout bounds putting the adapter back to sleep on exit
const shutdownTimeout = 30 * time.Second

func newRunCmd(configPath *string) *cobra.Command {
	var record bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the controller, reading operator commands from stdin",
		Long: `Run starts the mode controller on the configured interface and reads
operator commands (wake, sleep, record [secs], pause, interface <name>,
status, quit) from stdin. On SIGINT or SIGTERM the adapter is paused and put
back to sleep before exiting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if err := cfg.InitializeLogging(); err != nil {
				return err
			}
			log := logger.GetLogger()
			if path != "" {
				log.Info("Loaded config from %s", path)
			}
			log.Info("Loaded config: %+v", cfg)
			log.Info("Sensor info: %v", metadata.Generate(cfg.Wifi.Interface))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r := runner.NewExecRunner(cfg.Wifi.UseSudo, log)
			pipeline := monitor.NewPipeline(r, cfg.Wifi.MonitorSuffix, log)
			source := linux.Factory(linux.Options{SnapLen: cfg.Capture.SnapLen, Sudo: cfg.Wifi.UseSudo}, log)
			return serve(ctx, cfg, pipeline, source, cmd.InOrStdin(), cmd.OutOrStdout(), record, log)
		},
	}
	cmd.Flags().BoolVar(&record, "record", false, "wake the adapter and start recording immediately")
	return cmd
}

// serve runs the controller until ctx is done or the operator quits, then
// puts the adapter back to sleep
func serve(ctx context.Context, cfg *config.Config, sw wifi.Switcher, source capture.SourceFactory,
	in io.Reader, out io.Writer, record bool, log *logger.Logger) error {

	capCtrl := capture.NewController(source, capture.Config{
		QueryTimeout:     cfg.QueryTimeout(),
		PacketTypes:      cfg.Capture.PacketTypes,
		LogRatePerSecond: cfg.Capture.LogRatePerSecond,
	}, log)
	ctrl := wifi.NewController(sw, wifi.FromCapture(capCtrl), wifi.Options{
		Interface:     cfg.Wifi.Interface,
		DefaultPeriod: cfg.RecordPeriod(),
	}, log)
	capCtrl.SetObserver(ctrl.HandleCaptureEvent)

	if cfg.Status.ListenAddr != "" {
		st := status.New(cfg.Status.ListenAddr, log)
		ctrl.AddObserver(st.Observe)
		if err := st.Start(); err != nil {
			return err
		}
		defer st.Stop()
	}

	// The loop outlives ctx so the adapter can still be put to sleep
	loopCtx, cancelLoop := context.WithCancel(context.Background())
	loopDone := make(chan error, 1)
	go func() { loopDone <- ctrl.Run(loopCtx) }()

	if record {
		ctrl.WakeUp()
		ctrl.Record(cfg.RecordPeriod())
	}

	lines := readLines(in)
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info("Shutdown signal received")
			break loop
		case line, ok := <-lines:
			if !ok {
				// stdin closed, keep running until signaled
				lines = nil
				continue
			}
			err := dispatch(ctrl, line, out)
			if errors.Is(err, errQuit) {
				break loop
			}
			if err != nil {
				fmt.Fprintln(out, err)
			}
		}
	}

	shutdown(ctrl, log)
	cancelLoop()
	<-loopDone
	return nil
}

// shutdown pauses and sleeps the adapter
func shutdown(ctrl *wifi.Controller, log *logger.Logger) {
	ctrl.Sleep()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := ctrl.WaitFor(ctx, wifi.Dormant); err != nil {
		log.Warn("Adapter left in %s: %v", ctrl.Mode(), err)
		return
	}
	log.Info("Adapter is dormant, exiting")
}
