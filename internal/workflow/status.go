package workflow

import (
	"time"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/state"
)

// PhaseSummary is one phase's status line.
type PhaseSummary struct {
	Phase     state.Phase  `json:"phase" yaml:"phase"`
	Status    state.Status `json:"status" yaml:"status"`
	Error     string       `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string       `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

// DeviceSummary is a collected device reduced to what an operator scans for.
type DeviceSummary struct {
	Path     string          `json:"path" yaml:"path"`
	Model    string          `json:"model" yaml:"model"`
	Serial   string          `json:"serial" yaml:"serial"`
	Capacity string          `json:"capacity" yaml:"capacity"`
	Methods  []device.Method `json:"methods" yaml:"methods"`
}

// PlanSummary describes the recorded plan.
type PlanSummary struct {
	ID                string        `json:"id" yaml:"id"`
	Device            string        `json:"device" yaml:"device"`
	Method            device.Method `json:"method" yaml:"method"`
	Command           string        `json:"command" yaml:"command"`
	EstimatedDuration string        `json:"estimated_duration" yaml:"estimated_duration"`
	SafetyIssues      []string      `json:"safety_issues,omitempty" yaml:"safety_issues,omitempty"`
}

// OperationSummary describes the most recent erase attempt.
type OperationSummary struct {
	ID         string       `json:"id" yaml:"id"`
	Attempt    int          `json:"attempt" yaml:"attempt"`
	Status     state.Status `json:"status" yaml:"status"`
	DurationMS int64        `json:"duration_ms" yaml:"duration_ms"`
	Error      string       `json:"error,omitempty" yaml:"error,omitempty"`
	Verified   *bool        `json:"wipe_verified,omitempty" yaml:"wipe_verified,omitempty"`
}

// Summary is the read-only view printed by the status command.
type Summary struct {
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" yaml:"updated_at"`
	Phases    []PhaseSummary    `json:"phases" yaml:"phases"`
	Devices   []DeviceSummary   `json:"devices,omitempty" yaml:"devices,omitempty"`
	Plan      *PlanSummary      `json:"plan,omitempty" yaml:"plan,omitempty"`
	Operation *OperationSummary `json:"last_operation,omitempty" yaml:"last_operation,omitempty"`
	Report    string            `json:"report,omitempty" yaml:"report,omitempty"`
	// Next is the phase to run next, empty once everything completed.
	Next state.Phase `json:"next,omitempty" yaml:"next,omitempty"`
}

// Summarize condenses ws without modifying it.
func Summarize(ws *state.WorkflowState) (*Summary, error) {
	s := &Summary{CreatedAt: ws.CreatedAt, UpdatedAt: ws.UpdatedAt}

	for _, p := range state.Phases {
		status, err := ws.Status(p)
		if err != nil {
			return nil, err
		}
		ps := PhaseSummary{Phase: p, Status: status}
		if _, err := ws.Decode(p, KeyError, &ps.Error); err != nil {
			return nil, err
		}
		if _, err := ws.Decode(p, KeyErrorKind, &ps.ErrorKind); err != nil {
			return nil, err
		}
		s.Phases = append(s.Phases, ps)
		if s.Next == "" && status != state.StatusCompleted {
			s.Next = p
		}
	}

	var devices []device.DiscoveredDevice
	if _, err := ws.Decode(state.PhaseCollect, KeyDevices, &devices); err != nil {
		return nil, err
	}
	for _, d := range devices {
		s.Devices = append(s.Devices, DeviceSummary{
			Path:     d.Path,
			Model:    d.Model,
			Serial:   d.Serial,
			Capacity: d.Capacity,
			Methods:  d.EraseSupport.Supported(),
		})
	}

	var plan planner.ExecutionPlan
	if ok, err := ws.Decode(state.PhasePlan, KeyExecutionPlan, &plan); err != nil {
		return nil, err
	} else if ok {
		s.Plan = &PlanSummary{
			ID:                plan.ID,
			Device:            plan.Device.Path,
			Method:            plan.Method,
			Command:           plan.Command.String(),
			EstimatedDuration: plan.EstimatedDuration,
			SafetyIssues:      plan.SafetyIssues,
		}
	}

	var op executor.EraseOperation
	if ok, err := ws.Decode(state.PhaseExecute, KeyEraseOperation, &op); err != nil {
		return nil, err
	} else if ok {
		s.Operation = &OperationSummary{
			ID:         op.ID,
			Attempt:    op.Attempt,
			Status:     op.Status,
			DurationMS: op.DurationMS,
			Error:      op.ErrorMessage,
		}
		var attempts []executor.AttemptSummary
		if _, err := ws.Decode(state.PhaseExecute, KeyAttempts, &attempts); err != nil {
			return nil, err
		}
		for _, a := range attempts {
			if a.OperationID == op.ID {
				s.Operation.Verified = a.WipeVerified
			}
		}
	}

	if _, err := ws.Decode(state.PhaseReport, KeyJSONReport, &s.Report); err != nil {
		return nil, err
	}
	return s, nil
}
