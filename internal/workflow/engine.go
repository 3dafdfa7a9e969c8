// Package workflow drives the collect, plan, execute and report phases
// against one state store. Each phase runs only after its predecessor has
// completed.
package workflow

import (
	"context"
	"fmt"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/report"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// Phase data keys.
const (
	KeyDevices        = "devices"
	KeyDeviceCount    = "device_count"
	KeySystemInfo     = "system_info"
	KeyExecutionPlan  = "execution_plan"
	KeyEraseOperation = "erase_operation"
	KeyCommandOutput  = "command_output"
	KeyCommandError   = "command_error"
	KeyExecutionTime  = "execution_time"
	KeyVerification   = "verification"
	KeyAttempts       = "attempts"
	KeyJSONReport     = "json_report"
	KeyTimestamp      = "timestamp"
	KeyGeneratedAt    = "generated_at"
	KeyError          = "error"
	KeyErrorKind      = "error_kind"
	KeyAuditError     = "audit_error"
)

// Discoverer enumerates devices and host facts.
type Discoverer interface {
	Discover(ctx context.Context) ([]device.DiscoveredDevice, error)
	SystemInfo(ctx context.Context) device.SystemInfo
}

// PlanBuilder creates execution plans.
type PlanBuilder interface {
	CreatePlan(ctx context.Context, rec device.DeviceRecord, caps device.EraseCapabilitySet) (*planner.ExecutionPlan, error)
}

// EraseRunner runs plans.
type EraseRunner interface {
	Execute(ctx context.Context, plan *planner.ExecutionPlan) (*executor.Outcome, error)
	Retry(ctx context.Context, plan *planner.ExecutionPlan, previous *executor.EraseOperation) (*executor.Outcome, error)
}

// Confirmer asks the operator to approve a destructive plan.
type Confirmer interface {
	Confirm(ctx context.Context, plan *planner.ExecutionPlan) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, plan *planner.ExecutionPlan) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, plan *planner.ExecutionPlan) (bool, error) {
	return f(ctx, plan)
}

// AlwaysConfirm approves every plan. Used for non-interactive runs.
var AlwaysConfirm = ConfirmFunc(func(context.Context, *planner.ExecutionPlan) (bool, error) { return true, nil })

// ReportWriter renders the final workflow state.
type ReportWriter interface {
	Write(ctx context.Context, st *state.WorkflowState) (*report.Artifact, error)
}

// Auditor records erase attempts outside the state file.
type Auditor interface {
	Record(ctx context.Context, hostUUID string, plan *planner.ExecutionPlan, out *executor.Outcome) error
}

// DeviceLocker serializes erases of one device across hosts.
type DeviceLocker interface {
	Acquire(ctx context.Context, serial string) (release func(), err error)
}

// Dependencies are the collaborators an Engine drives. Auditor and Locker
// are optional.
type Dependencies struct {
	Discoverer Discoverer
	Planner    PlanBuilder
	Executor   EraseRunner
	Confirmer  Confirmer
	Reporter   ReportWriter
	Auditor    Auditor
	Locker     DeviceLocker
}

// Options tune phase behavior.
type Options struct {
	// DeviceSelector picks the plan target by serial or path; empty selects
	// the first collected device.
	DeviceSelector string
	// Description overrides the per-device description during collect.
	Description string
}

// Engine runs phases against a state store.
type Engine struct {
	store *state.Store
	deps  Dependencies
	opts  Options
	log   *logger.Logger
}

// New creates an Engine. Every dependency except Auditor and Locker is
// required.
func New(store *state.Store, deps Dependencies, opts Options, log *logger.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("state store is nil")
	}
	switch {
	case deps.Discoverer == nil:
		return nil, fmt.Errorf("discoverer is nil")
	case deps.Planner == nil:
		return nil, fmt.Errorf("planner is nil")
	case deps.Executor == nil:
		return nil, fmt.Errorf("executor is nil")
	case deps.Confirmer == nil:
		return nil, fmt.Errorf("confirmer is nil")
	case deps.Reporter == nil:
		return nil, fmt.Errorf("report writer is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Engine{store: store, deps: deps, opts: opts, log: log}, nil
}

// Status returns a snapshot of the workflow state.
func (e *Engine) Status() *state.WorkflowState {
	return e.store.Snapshot()
}

// Run executes every phase in order, stopping at the first failure.
func (e *Engine) Run(ctx context.Context) error {
	steps := []struct {
		phase state.Phase
		run   func(context.Context) error
	}{
		{state.PhaseCollect, e.Collect},
		{state.PhasePlan, e.Plan},
		{state.PhaseExecute, e.Execute},
		{state.PhaseReport, e.Report},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("%s phase: %w", step.phase, err)
		}
	}
	e.log.Info("Workflow completed")
	return nil
}

// requirePredecessor fails with PhaseOutOfOrder unless the phase before
// phase has completed.
func (e *Engine) requirePredecessor(phase state.Phase) error {
	prev, ok := phase.Predecessor()
	if !ok {
		return nil
	}
	status, err := e.store.GetStatus(prev)
	if err != nil {
		return err
	}
	if status != state.StatusCompleted {
		return wipeerr.WithHint(
			wipeerr.New(wipeerr.PhaseOutOfOrder, "%s phase must be completed before %s (current status: %s)", prev, phase, status),
			fmt.Sprintf("run: gowipe %s", prev))
	}
	return nil
}

// resetDownstream moves every phase after phase back to pending so results
// derived from earlier inputs cannot be reported against new ones. Their
// data is kept, which preserves the attempts history.
func (e *Engine) resetDownstream(phase state.Phase) error {
	after := false
	for _, p := range state.Phases {
		if !after {
			after = p == phase
			continue
		}
		status, err := e.store.GetStatus(p)
		if err != nil {
			return err
		}
		if status == state.StatusPending {
			continue
		}
		if err := e.store.Transition(p, state.StatusPending, nil); err != nil {
			return err
		}
		e.log.WithPhase(string(p)).Infow("Phase reset", "previous_status", status, "rerun", phase)
	}
	return nil
}

// fail persists phase as failed with err's message and kind, then returns
// err. A persistence failure takes precedence.
func (e *Engine) fail(phase state.Phase, err error, extra map[string]interface{}) error {
	data := map[string]interface{}{
		KeyError:     err.Error(),
		KeyErrorKind: string(wipeerr.KindOf(err)),
	}
	for k, v := range extra {
		data[k] = v
	}
	if terr := e.store.Transition(phase, state.StatusFailed, data); terr != nil {
		return fmt.Errorf("%w (additionally failed to record failure: %v)", err, terr)
	}
	return err
}
