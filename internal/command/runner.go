// Package command runs external programs with a hard time bound and maps
// their failures onto workflow error kinds.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// DefaultWaitDelay bounds how long Run waits for output pipes to drain after
// the process has been killed.
const DefaultWaitDelay = 2 * time.Second

// Result is the captured outcome of one invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes a program. A non-zero timeout is a hard upper bound.
//
// Errors carry one of the kinds CommandNotFound, CommandFailed, Timeout or
// Cancelled. The Result is non-nil whenever the process was started.
type Runner interface {
	Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*Result, error)
}

// ExecRunner runs programs through os/exec.
type ExecRunner struct {
	logger    *logger.Logger
	waitDelay time.Duration
}

// NewExecRunner creates a runner.
func NewExecRunner(log *logger.Logger) *ExecRunner {
	if log == nil {
		log = logger.NewDefault()
	}
	return &ExecRunner{logger: log, waitDelay: DefaultWaitDelay}
}

// Run starts name with args and waits for it, killing it when timeout
// elapses or ctx is cancelled. For sudo invocations the wrapped program is
// looked up first, so a missing target is CommandNotFound rather than a
// failed sudo.
func (r *ExecRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*Result, error) {
	if name == "sudo" && len(args) > 0 {
		if _, err := exec.LookPath(args[0]); err != nil {
			return nil, wipeerr.New(wipeerr.CommandNotFound, "Command not found: %s", args[0])
		}
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = r.waitDelay

	r.logger.Debugw("Running command", "program", name, "args", args, "timeout", timeout)

	start := time.Now()
	err := cmd.Run()
	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return result, nil
	}
	return result, classify(err, runCtx, ctx, timeout, name, result)
}

func classify(err error, runCtx, parent context.Context, timeout time.Duration, name string, result *Result) error {
	if errors.Is(err, exec.ErrNotFound) || (result.ExitCode == -1 && errors.Is(err, fs.ErrNotExist)) {
		return wipeerr.New(wipeerr.CommandNotFound, "Command not found: %s", name)
	}
	if parent.Err() != nil {
		return wipeerr.Wrap(parent.Err(), wipeerr.Cancelled, "command %s interrupted", name)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return wipeerr.New(wipeerr.Timeout, "Command timed out after %s", HumanDuration(timeout))
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg := strings.TrimSpace(result.Stderr); msg != "" {
			return wipeerr.New(wipeerr.CommandFailed, "%s", msg)
		}
		return wipeerr.New(wipeerr.CommandFailed, "Command failed with return code %d", exitErr.ExitCode())
	}
	return wipeerr.Wrap(err, wipeerr.CommandFailed, "run %s", name)
}

// HumanDuration renders whole hours and minutes in words, e.g. "1 hour".
func HumanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return fmt.Sprintf("1 %s", unit)
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	case d >= time.Second && d%time.Second == 0:
		return plural(int64(d/time.Second), "second")
	default:
		return d.String()
	}
}

// Privileged prefixes the invocation with sudo when sudo is set.
func Privileged(sudo bool, name string, args ...string) (string, []string) {
	if !sudo {
		return name, args
	}
	return "sudo", append([]string{name}, args...)
}

// String renders a command line for display.
func String(name string, args ...string) string {
	return strings.Join(append([]string{name}, args...), " ")
}
