package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// Collect discovers devices and host facts. Later phases return to pending.
func (e *Engine) Collect(ctx context.Context) error {
	log := e.log.WithPhase(string(state.PhaseCollect))

	if err := e.store.Transition(state.PhaseCollect, state.StatusRunning, nil); err != nil {
		return err
	}
	if err := e.resetDownstream(state.PhaseCollect); err != nil {
		return err
	}

	devices, err := e.deps.Discoverer.Discover(ctx)
	if err != nil {
		return e.fail(state.PhaseCollect, err, nil)
	}
	if len(devices) == 0 {
		log.Warn("No NVMe devices found")
		return e.fail(state.PhaseCollect, wipeerr.New(wipeerr.DeviceUnavailable, "No devices found"), nil)
	}

	if e.opts.Description != "" {
		for i := range devices {
			devices[i].Description = e.opts.Description
		}
	}

	info := e.deps.Discoverer.SystemInfo(ctx)
	log.Infow("System information collected",
		"system_uuid", info.SystemUUID,
		"os", info.OSInfo,
		"kernel", info.KernelVersion)
	for _, d := range devices {
		log.Infow("Device collected",
			"path", d.Path,
			"model", d.Model,
			"serial", d.Serial,
			"capacity", d.Capacity,
			"methods", d.EraseSupport.Supported())
	}

	return e.store.Transition(state.PhaseCollect, state.StatusCompleted, map[string]interface{}{
		KeyDevices:     devices,
		KeyDeviceCount: len(devices),
		KeySystemInfo:  info,
	})
}

// Plan selects the target device and builds its execution plan. Execute and
// report return to pending, so an erase recorded for an earlier plan is
// never reported against this one.
func (e *Engine) Plan(ctx context.Context) error {
	if err := e.requirePredecessor(state.PhasePlan); err != nil {
		return err
	}
	log := e.log.WithPhase(string(state.PhasePlan))

	var devices []device.DiscoveredDevice
	if _, err := e.store.Decode(state.PhaseCollect, KeyDevices, &devices); err != nil {
		return err
	}

	if err := e.store.Transition(state.PhasePlan, state.StatusRunning, nil); err != nil {
		return err
	}
	if err := e.resetDownstream(state.PhasePlan); err != nil {
		return err
	}

	target, err := planner.SelectDevice(devices, e.opts.DeviceSelector)
	if err != nil {
		return e.fail(state.PhasePlan, err, nil)
	}
	if e.opts.DeviceSelector == "" && len(devices) > 1 {
		others := make([]string, 0, len(devices)-1)
		for _, d := range devices[1:] {
			others = append(others, d.Path)
		}
		log.Infow("Multiple devices collected, selecting the first", "selected", target.Path, "others", others)
	}

	plan, err := e.deps.Planner.CreatePlan(ctx, target.DeviceRecord, target.EraseSupport)
	if err != nil {
		return e.fail(state.PhasePlan, err, nil)
	}

	// A successful plan supersedes any earlier failure recorded here.
	return e.store.Transition(state.PhasePlan, state.StatusCompleted, map[string]interface{}{
		KeyExecutionPlan: plan,
		KeyError:         nil,
		KeyErrorKind:     nil,
	})
}

// CurrentPlan returns the plan recorded by the plan phase.
func (e *Engine) CurrentPlan() (*planner.ExecutionPlan, error) {
	var plan planner.ExecutionPlan
	ok, err := e.store.Decode(state.PhasePlan, KeyExecutionPlan, &plan)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, wipeerr.New(wipeerr.PhaseOutOfOrder, "no execution plan recorded")
	}
	return &plan, nil
}

// Execute confirms and runs the recorded plan. Declining the confirmation
// leaves every phase untouched. Re-running after a failure is an explicit
// retry that records a new erase operation; earlier attempts stay in the
// attempts history.
func (e *Engine) Execute(ctx context.Context) error {
	if err := e.requirePredecessor(state.PhaseExecute); err != nil {
		return err
	}
	log := e.log.WithPhase(string(state.PhaseExecute))

	plan, err := e.CurrentPlan()
	if err != nil {
		return err
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	var previous *executor.EraseOperation
	var prevOp executor.EraseOperation
	if ok, err := e.store.Decode(state.PhaseExecute, KeyEraseOperation, &prevOp); err != nil {
		return err
	} else if ok && prevOp.PlanID == plan.ID {
		previous = &prevOp
		log.Infow("Previous attempt found for this plan",
			"operation", prevOp.ID,
			"attempt", prevOp.Attempt,
			"status", prevOp.Status)
	}
	var attempts []executor.AttemptSummary
	if _, err := e.store.Decode(state.PhaseExecute, KeyAttempts, &attempts); err != nil {
		return err
	}

	ok, err := e.deps.Confirmer.Confirm(ctx, plan)
	if err != nil {
		return wipeerr.Wrap(err, wipeerr.Cancelled, "confirmation failed")
	}
	if !ok {
		log.Warn("Wipe cancelled by operator")
		return wipeerr.New(wipeerr.Cancelled, "Wipe cancelled by operator")
	}

	if e.deps.Locker != nil {
		release, err := e.deps.Locker.Acquire(ctx, plan.Device.Serial)
		if err != nil {
			return err
		}
		defer release()
	}

	if err := e.store.Transition(state.PhaseExecute, state.StatusRunning, nil); err != nil {
		return err
	}
	if err := e.resetDownstream(state.PhaseExecute); err != nil {
		return err
	}

	var out *executor.Outcome
	var runErr error
	if previous != nil {
		out, runErr = e.deps.Executor.Retry(ctx, plan, previous)
	} else {
		out, runErr = e.deps.Executor.Execute(ctx, plan)
	}
	if out == nil {
		if runErr == nil {
			runErr = errors.New("executor returned no outcome")
		}
		return e.fail(state.PhaseExecute, runErr, nil)
	}

	data := map[string]interface{}{
		KeyEraseOperation: out.Operation,
		KeyCommandOutput:  out.Stdout,
		KeyCommandError:   out.Stderr,
		KeyExecutionTime:  out.Operation.Duration,
		KeyVerification:   out.Verification,
		KeyAttempts:       append(attempts, out.Summary()),
		KeyAuditError:     nil,
	}
	if e.deps.Auditor != nil {
		if err := e.deps.Auditor.Record(ctx, e.hostUUID(), plan, out); err != nil {
			log.Warnw("Failed to record attempt in audit ledger", "error", err)
			data[KeyAuditError] = err.Error()
		}
	}

	if runErr != nil {
		return e.fail(state.PhaseExecute, runErr, data)
	}

	data[KeyError] = nil
	data[KeyErrorKind] = nil
	if err := e.store.Transition(state.PhaseExecute, state.StatusCompleted, data); err != nil {
		return err
	}

	if v := out.Verification; v != nil && !v.Success {
		log.Warnw("Wipe completed but could not be verified", "error", v.Error)
	}
	return nil
}

func (e *Engine) hostUUID() string {
	var info device.SystemInfo
	if ok, err := e.store.Decode(state.PhaseCollect, KeySystemInfo, &info); err != nil || !ok {
		return ""
	}
	return info.SystemUUID
}

// Report writes the JSON report for the completed workflow.
func (e *Engine) Report(ctx context.Context) error {
	if err := e.requirePredecessor(state.PhaseReport); err != nil {
		return err
	}
	log := e.log.WithPhase(string(state.PhaseReport))

	plan, err := e.CurrentPlan()
	if err != nil {
		return err
	}
	var op executor.EraseOperation
	if _, err := e.store.Decode(state.PhaseExecute, KeyEraseOperation, &op); err != nil {
		return err
	}
	if op.PlanID != plan.ID {
		return wipeerr.WithHint(
			wipeerr.New(wipeerr.PhaseOutOfOrder, "no erase operation recorded for plan %s", plan.ID),
			"run: gowipe execute")
	}

	if err := e.store.Transition(state.PhaseReport, state.StatusRunning, nil); err != nil {
		return err
	}

	artifact, err := e.deps.Reporter.Write(ctx, e.store.Snapshot())
	if err != nil {
		return e.fail(state.PhaseReport, err, nil)
	}
	log.Infow("Report generated", "path", artifact.Path)

	return e.store.Transition(state.PhaseReport, state.StatusCompleted, map[string]interface{}{
		KeyJSONReport:  artifact.Path,
		KeyTimestamp:   artifact.Timestamp,
		KeyGeneratedAt: artifact.GeneratedAt.Format(time.RFC3339),
		KeyError:       nil,
		KeyErrorKind:   nil,
	})
}
