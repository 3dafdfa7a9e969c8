// Package report assembles the JSON wipe report from the final workflow
// state.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/verifier"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// TimestampLayout names report files, e.g. wipe_report_20261015_090000.json.
const TimestampLayout = "20060102_150405"

// Metadata describes the report itself.
type Metadata struct {
	GeneratedAt time.Time `json:"generated_at"`
	GeneratedBy string    `json:"generated_by"`
	Hostname    string    `json:"hostname"`
}

// Summary is the headline outcome of the last erase attempt.
type Summary struct {
	Method          device.Method `json:"method"`
	Status          state.Status  `json:"status"`
	DurationSeconds float64       `json:"duration_seconds"`
	DurationMS      int64         `json:"duration_ms"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time"`
	Attempts        int           `json:"attempts"`
	WipeVerified    *bool         `json:"wipe_verified"`
}

// Report is the document written to disk.
type Report struct {
	Metadata         Metadata                   `json:"report_metadata"`
	DeviceInfo       device.DiscoveredDevice    `json:"device_info"`
	SystemInfo       device.SystemInfo          `json:"system_info"`
	ExecutionPlan    planner.ExecutionPlan      `json:"execution_plan"`
	ExecutionResults map[string]json.RawMessage `json:"execution_results"`
	WipeSummary      Summary                    `json:"wipe_summary"`
	Verification     *verifier.Result           `json:"verification"`
	Disclaimer       string                     `json:"verification_disclaimer"`
}

// Artifact locates a written report.
type Artifact struct {
	Path        string
	Timestamp   string
	GeneratedAt time.Time
}

// Build assembles a report from st. The collect, plan and execute phases
// must all carry data, and the recorded erase operation must belong to the
// current plan.
func Build(st *state.WorkflowState, meta Metadata) (*Report, error) {
	var devices []device.DiscoveredDevice
	if err := requireData(st, state.PhaseCollect, "devices", &devices); err != nil {
		return nil, err
	}
	var plan planner.ExecutionPlan
	if err := requireData(st, state.PhasePlan, "execution_plan", &plan); err != nil {
		return nil, err
	}
	var op executor.EraseOperation
	if err := requireData(st, state.PhaseExecute, "erase_operation", &op); err != nil {
		return nil, err
	}
	if op.PlanID != plan.ID {
		return nil, wipeerr.WithHint(
			wipeerr.New(wipeerr.PhaseOutOfOrder, "erase operation %s belongs to plan %s, not the current plan %s", op.ID, op.PlanID, plan.ID),
			"run: gowipe execute")
	}

	r := &Report{
		Metadata:      meta,
		DeviceInfo:    deviceFor(devices, plan),
		ExecutionPlan: plan,
		Disclaimer:    verifier.Disclaimer,
		WipeSummary: Summary{
			Method:          op.Method,
			Status:          op.Status,
			DurationSeconds: op.Duration,
			DurationMS:      op.DurationMS,
			StartTime:       op.StartTime,
			EndTime:         op.EndTime,
			Attempts:        op.Attempt,
		},
	}
	if _, err := st.Decode(state.PhaseCollect, "system_info", &r.SystemInfo); err != nil {
		return nil, err
	}
	if _, err := st.Decode(state.PhaseExecute, "verification", &r.Verification); err != nil {
		return nil, err
	}
	if v := r.Verification; v != nil && v.Success {
		effective := v.WipeEffective
		r.WipeSummary.WipeVerified = &effective
	}

	rec, err := st.Record(state.PhaseExecute)
	if err != nil {
		return nil, err
	}
	r.ExecutionResults = make(map[string]json.RawMessage, len(rec.Data))
	for k, v := range rec.Data {
		r.ExecutionResults[k] = v
	}
	return r, nil
}

func requireData(st *state.WorkflowState, phase state.Phase, key string, v interface{}) error {
	ok, err := st.Decode(phase, key, v)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("missing %s data %q; ensure all phases completed successfully", phase, key)
	}
	return nil
}

// deviceFor returns the collected entry for the planned device, falling
// back to the plan's own record.
func deviceFor(devices []device.DiscoveredDevice, plan planner.ExecutionPlan) device.DiscoveredDevice {
	for _, d := range devices {
		if d.Serial == plan.Device.Serial && d.Path == plan.Device.Path {
			return d
		}
	}
	return device.DiscoveredDevice{
		DeviceRecord: plan.Device,
		EraseSupport: plan.Capabilities,
		Description:  device.DefaultDescription(plan.Device.Model),
	}
}

// Writer writes reports into a directory.
type Writer struct {
	dir         string
	generatedBy string
	logger      *logger.Logger
	now         func() time.Time
}

// NewWriter creates a Writer for dir.
func NewWriter(dir, generatedBy string, log *logger.Logger) (*Writer, error) {
	if dir == "" {
		return nil, fmt.Errorf("report directory is empty")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Writer{
		dir:         dir,
		generatedBy: generatedBy,
		logger:      log,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// Write builds the report for st and stores it as
// wipe_report_<timestamp>.json.
func (w *Writer) Write(ctx context.Context, st *state.WorkflowState) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := w.now()
	host, _ := os.Hostname()

	r, err := Build(st, Metadata{GeneratedAt: now, GeneratedBy: w.generatedBy, Hostname: host})
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	ts := now.Format(TimestampLayout)
	path := filepath.Join(w.dir, fmt.Sprintf("wipe_report_%s.json", ts))
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	w.logger.Infow("JSON report saved", "path", path)
	return &Artifact{Path: path, Timestamp: ts, GeneratedAt: now}, nil
}
