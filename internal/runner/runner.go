// Package runner executes single external commands and captures their
// exit status and output. It never retries.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"EnigmaNetz/Enigma-Wifi-Sensor/internal/logger"
)

// Result is the outcome of a command that ran to completion
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Failed reports whether the command exited non-zero
func (r Result) Failed() bool {
	return r.ExitCode != 0
}

// Runner runs one command string. A non-zero exit is reported through
// Result.ExitCode with a nil error; the error is reserved for commands that
// could not be started at all.
type Runner interface {
	Run(ctx context.Context, command string) (Result, error)
}

// commandContext is swapped in tests
var commandContext = exec.CommandContext

// ExecRunner runs commands directly with os/exec. Command strings are split
// with shell quoting rules but never passed to a shell, so pipes and
// substitutions are not interpreted.
type ExecRunner struct {
	// Prefix is prepended to every argv, e.g. []string{"sudo", "-n"}
	Prefix []string
	log    *logger.Logger
}

// NewExecRunner creates an ExecRunner. When sudo is true commands are run
// through non-interactive sudo.
func NewExecRunner(sudo bool, log *logger.Logger) *ExecRunner {
	r := &ExecRunner{log: log}
	if sudo {
		r.Prefix = []string{"sudo", "-n"}
	}
	if r.log == nil {
		r.log = logger.GetLogger()
	}
	return r
}

// Run implements Runner
func (r *ExecRunner) Run(ctx context.Context, command string) (Result, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return Result{}, fmt.Errorf("invalid command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("empty command")
	}
	argv = append(append([]string(nil), r.Prefix...), argv...)

	r.log.Debug("[runner] exec: %s", strings.Join(argv, " "))

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			r.log.Debug("[runner] %s exited %d: %s", argv[0], res.ExitCode, strings.TrimSpace(res.Stderr))
			return res, nil
		}
		return res, fmt.Errorf("failed to run %s: %w", argv[0], err)
	}
	return res, nil
}
