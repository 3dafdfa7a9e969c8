package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// Prober re-checks that a device is present and responsive.
type Prober interface {
	Probe(ctx context.Context, path string) error
}

// SafetyInspector reports advisory findings about a device.
type SafetyInspector interface {
	Inspect(ctx context.Context, path string) []string
}

// Options configures command synthesis.
type Options struct {
	NVMeBinary string
	UseSudo    bool
}

// Planner builds execution plans.
type Planner struct {
	prober    Prober
	inspector SafetyInspector
	opts      Options
	logger    *logger.Logger
	now       func() time.Time
}

// New creates a Planner.
func New(prober Prober, inspector SafetyInspector, opts Options, log *logger.Logger) (*Planner, error) {
	if prober == nil {
		return nil, fmt.Errorf("prober is nil")
	}
	if inspector == nil {
		return nil, fmt.Errorf("safety inspector is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Planner{
		prober:    prober,
		inspector: inspector,
		opts:      opts,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// CreatePlan re-validates the device, runs the safety checks and selects
// the strongest supported method.
func (p *Planner) CreatePlan(ctx context.Context, rec device.DeviceRecord, caps device.EraseCapabilitySet) (*ExecutionPlan, error) {
	log := p.logger.WithDevice(rec.Serial)

	if !caps.Any() {
		return nil, wipeerr.New(wipeerr.NoSupportedMethod, "No supported erase methods found for device %s", rec.Path)
	}

	log.Debugw("Re-validating device", "path", rec.Path)
	if err := p.prober.Probe(ctx, rec.Path); err != nil {
		if wipeerr.KindOf(err) == wipeerr.DeviceUnavailable || wipeerr.KindOf(err) == wipeerr.Cancelled {
			return nil, err
		}
		return nil, wipeerr.Wrap(err, wipeerr.DeviceUnavailable, "Device %s is no longer available", rec.Path)
	}

	issues := p.inspector.Inspect(ctx, rec.Path)
	if issues == nil {
		issues = []string{}
	}
	if len(issues) > 0 {
		log.Warnw("Safety checks reported issues", "count", len(issues))
	} else {
		log.Info("Safety checks PASSED")
	}

	method, err := SelectMethod(caps)
	if err != nil {
		return nil, err
	}

	plan := &ExecutionPlan{
		ID:                uuid.NewString(),
		Device:            rec,
		Capabilities:      caps,
		Method:            method,
		Command:           BuildCommand(rec, method, p.opts.NVMeBinary, p.opts.UseSudo),
		SafetyIssues:      issues,
		EstimatedDuration: EstimateDuration(rec.CapacityBytes(), method),
		Warnings:          Warnings(method, issues),
		CreatedAt:         p.now(),
	}

	log.Infow("Execution plan created",
		"plan", plan.ID,
		"method", plan.Method,
		"command", plan.Command.String(),
		"estimate", plan.EstimatedDuration)
	return plan, nil
}
