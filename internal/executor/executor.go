// Package executor runs a planned erase command and verifies the result.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dbsmedya/gowipe/internal/command"
	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/verifier"
)

// DefaultTimeout is the hard bound on one erase command.
const DefaultTimeout = time.Hour

// Verifier samples a device after an erase.
type Verifier interface {
	Verify(ctx context.Context, path string, method device.Method) *verifier.Result
}

// Outcome is everything one attempt produced.
type Outcome struct {
	Operation    *EraseOperation
	Stdout       string
	Stderr       string
	Verification *verifier.Result
}

// Executor runs erase commands. It never retries on its own.
type Executor struct {
	runner   command.Runner
	verifier Verifier
	timeout  time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

// New creates an Executor. A non-positive timeout selects DefaultTimeout.
func New(runner command.Runner, v Verifier, timeout time.Duration, log *logger.Logger) (*Executor, error) {
	if runner == nil {
		return nil, fmt.Errorf("command runner is nil")
	}
	if v == nil {
		return nil, fmt.Errorf("verifier is nil")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Executor{
		runner:   runner,
		verifier: v,
		timeout:  timeout,
		logger:   log,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Execute runs the first attempt of plan.
//
// The returned Outcome is non-nil whenever the command was attempted, even
// when err is set. A failed erase returns its classified error and no
// verification; a completed erase is always followed by verification, whose
// problems are reported in Outcome.Verification and never in err.
func (e *Executor) Execute(ctx context.Context, plan *planner.ExecutionPlan) (*Outcome, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	return e.attempt(ctx, plan, 1, "")
}

// Retry runs plan again as a new operation following previous. The previous
// operation is left untouched.
func (e *Executor) Retry(ctx context.Context, plan *planner.ExecutionPlan, previous *EraseOperation) (*Outcome, error) {
	if plan == nil {
		return nil, fmt.Errorf("plan is nil")
	}
	if previous == nil {
		return e.attempt(ctx, plan, 1, "")
	}
	if previous.PlanID != plan.ID {
		return nil, fmt.Errorf("operation %s belongs to plan %s, not %s", previous.ID, previous.PlanID, plan.ID)
	}
	return e.attempt(ctx, plan, previous.Attempt+1, previous.ID)
}

func (e *Executor) attempt(ctx context.Context, plan *planner.ExecutionPlan, attempt int, retryOf string) (*Outcome, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	op := newOperation(plan.ID, plan.Method, plan.Device.Path, plan.Device.Serial, attempt)
	op.RetryOf = retryOf
	log := e.logger.WithOperation(op.ID).WithDevice(plan.Device.Serial)

	op.start(e.now())
	log.Infow("Starting erase",
		"method", plan.Method,
		"attempt", attempt,
		"program", plan.Command.Program,
		"args", plan.Command.Args,
		"timeout", e.timeout)

	result, err := e.runner.Run(ctx, e.timeout, plan.Command.Program, plan.Command.Args...)
	op.finish(e.now(), err)

	out := &Outcome{Operation: op}
	if result != nil {
		out.Stdout = strings.TrimSpace(result.Stdout)
		out.Stderr = strings.TrimSpace(result.Stderr)
	}

	if err != nil {
		log.Errorw("Erase failed",
			"kind", op.ErrorKind,
			"error", op.ErrorMessage,
			"duration_ms", op.DurationMS)
		return out, err
	}

	log.Infow("Erase completed", "duration_ms", op.DurationMS)
	out.Verification = e.verifier.Verify(ctx, plan.Device.Path, plan.Method)
	return out, nil
}
