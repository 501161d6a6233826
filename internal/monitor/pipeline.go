// Package monitor switches a wireless adapter in and out of monitor mode by
// running ordered sequences of iw/ifconfig commands. Each step carries its
// own error policy: idempotent re-application and best-effort cleanup are
// ignored, anything else aborts the sequence.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
	"EnigmaNetz/Enigma-Wifi-Sensor/internal/runner"
)

// ExitAlreadyMonitor is the iw exit status for "already in monitor mode"
const ExitAlreadyMonitor = 233

// Disposition tells the pipeline what to do with a step's outcome
type Disposition int

const (
	// Continue means the outcome is acceptable and the next step runs
	Continue Disposition = iota
	// Abort means the step failed fatally
	Abort
)

// Classifier maps a command outcome to a Disposition. err is non-nil only
// when the command could not be started.
type Classifier func(res runner.Result, err error) Disposition

// FatalOnError aborts on a start failure or any non-zero exit
func FatalOnError(res runner.Result, err error) Disposition {
	if err != nil || res.Failed() {
		return Abort
	}
	return Continue
}

// IgnoreErrors never aborts
func IgnoreErrors(runner.Result, error) Disposition {
	return Continue
}

// IgnoreExitCodes aborts like FatalOnError except for the listed exit codes
func IgnoreExitCodes(codes ...int) Classifier {
	return func(res runner.Result, err error) Disposition {
		if err != nil {
			return Abort
		}
		for _, c := range codes {
			if res.ExitCode == c {
				return Continue
			}
		}
		return FatalOnError(res, nil)
	}
}

// Step is one command of a sequence
type Step struct {
	Name     string
	Command  string
	Classify Classifier
}

// StepError reports the step that aborted a sequence
type StepError struct {
	Step     string
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = "no error output"
	}
	return fmt.Sprintf("%s: %s exited %d: %s", e.Step, e.Command, e.ExitCode, msg)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline runs monitor-mode sequences for one adapter. Sequences never
// interleave: each holds the pipeline lock from first to last step.
type Pipeline struct {
	runner runner.Runner
	suffix string
	log    *logger.Logger
	mu     sync.Mutex
}

// NewPipeline creates a Pipeline. suffix is appended to the managed
// interface name to form the monitor interface name.
func NewPipeline(r runner.Runner, suffix string, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pipeline{runner: r, suffix: suffix, log: log}
}

// MonitorName returns the monitor interface name for iface
func (p *Pipeline) MonitorName(iface string) string {
	return iface + p.suffix
}

// EnterMonitorMode creates iface+suffix as a monitor interface on the radio
// backing iface, brings it up and removes the managed interface.
func (p *Pipeline) EnterMonitorMode(ctx context.Context, iface string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mon := p.MonitorName(iface)
	p.log.Info("[monitor] Activating monitor mode on %s", iface)

	phy, err := p.physicalRadio(ctx, iface)
	if err != nil {
		p.log.Error("[monitor] Error while entering monitor mode: %v", err)
		return err
	}
	p.log.Info("[monitor] Physical interface to use: %s", phy)

	err = p.run(ctx, []Step{
		{
			Name:     "add monitor interface",
			Command:  fmt.Sprintf("iw phy %s interface add %s type monitor", phy, mon),
			Classify: IgnoreExitCodes(ExitAlreadyMonitor),
		},
		{
			Name:     "bring monitor interface up",
			Command:  fmt.Sprintf("ifconfig %s up", mon),
			Classify: FatalOnError,
		},
		{
			Name:     "delete managed interface",
			Command:  fmt.Sprintf("iw dev %s del", iface),
			Classify: IgnoreErrors,
		},
	})
	if err != nil {
		p.log.Error("[monitor] Error while entering monitor mode: %v", err)
		return err
	}
	p.log.Info("[monitor] Monitor mode active on %s", mon)
	return nil
}

// ExitMonitorMode restores iface as a managed interface and removes the
// monitor interface.
func (p *Pipeline) ExitMonitorMode(ctx context.Context, iface string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	mon := p.MonitorName(iface)
	p.log.Info("[monitor] Deactivating monitor mode on %s", mon)

	phy, err := p.physicalRadio(ctx, iface)
	if err != nil {
		p.log.Error("[monitor] Error while exiting monitor mode: %v", err)
		return err
	}

	err = p.run(ctx, []Step{
		{
			Name:     "add managed interface",
			Command:  fmt.Sprintf("iw phy %s interface add %s type managed", phy, iface),
			Classify: FatalOnError,
		},
		{
			Name:     "delete monitor interface",
			Command:  fmt.Sprintf("iw dev %s del", mon),
			Classify: FatalOnError,
		},
		{
			Name:     "bring managed interface up",
			Command:  fmt.Sprintf("ifconfig %s up", iface),
			Classify: IgnoreErrors,
		},
	})
	if err != nil {
		p.log.Error("[monitor] Error while exiting monitor mode: %v", err)
		return err
	}
	p.log.Info("[monitor] Monitor mode deactivated, %s is managed again", iface)
	return nil
}

// run executes steps in order and stops at the first aborting step.
// Callers hold p.mu.
func (p *Pipeline) run(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		res, err := p.runner.Run(ctx, step.Command)
		if step.Classify(res, err) == Abort {
			return &StepError{
				Step:     step.Name,
				Command:  step.Command,
				ExitCode: res.ExitCode,
				Stderr:   res.Stderr,
				Err:      err,
			}
		}
		if err != nil || res.Failed() {
			p.log.Debug("[monitor] Ignoring %s failure (exit %d): %s", step.Name, res.ExitCode, strings.TrimSpace(res.Stderr))
		}
	}
	return nil
}
