package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dbsmedya/gowipe/internal/audit"
	"github.com/dbsmedya/gowipe/internal/command"
	"github.com/dbsmedya/gowipe/internal/config"
	"github.com/dbsmedya/gowipe/internal/database"
	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/report"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/verifier"
	"github.com/dbsmedya/gowipe/internal/workflow"
)

// app holds the components one command invocation works with.
type app struct {
	cfg    *config.Config
	log    *logger.Logger
	store  *state.Store
	engine *workflow.Engine
	db     *database.Manager
}

// newApp loads configuration and wires the workflow engine. The state file
// stays locked until close.
func newApp(ctx context.Context, in io.Reader, out io.Writer) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}
	if err := a.wire(ctx, command.NewExecRunner(log), in, out); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, runner command.Runner, in io.Reader, out io.Writer) error {
	cfg, log := a.cfg, a.log

	store, err := state.Open(cfg.State.Path(), log)
	if err != nil {
		return err
	}
	a.store = store

	nvme, err := device.NewNVMe(runner, device.NVMeOptions{
		Binary:       cfg.Execution.NVMeBinary,
		UseSudo:      cfg.Execution.UseSudo,
		DeviceGlob:   cfg.Collect.DeviceGlob,
		ProbeTimeout: time.Duration(cfg.Execution.ProbeTimeoutSeconds) * time.Second,
	}, log)
	if err != nil {
		return err
	}
	inspector, err := device.NewSafetyInspector(runner, device.SafetyOptions{
		MountsFile: cfg.Safety.MountsFile,
		LsofBinary: cfg.Safety.LsofBinary,
		UseSudo:    cfg.Execution.UseSudo,
	}, log)
	if err != nil {
		return err
	}
	plans, err := planner.New(nvme, inspector, planner.Options{
		NVMeBinary: cfg.Execution.NVMeBinary,
		UseSudo:    cfg.Execution.UseSudo,
	}, log)
	if err != nil {
		return err
	}
	sampler := verifier.NewSampler(verifier.Options{
		SampleBytes:  cfg.Verification.SampleBytes,
		PreviewBytes: cfg.Verification.PreviewBytes,
		Timeout:      time.Duration(cfg.Verification.TimeoutSeconds) * time.Second,
		DirectIO:     cfg.Verification.DirectIO,
	}, log)
	exec, err := executor.New(runner, sampler, time.Duration(cfg.Execution.TimeoutSeconds)*time.Second, log)
	if err != nil {
		return err
	}
	writer, err := report.NewWriter(cfg.Report.Dir, "gowipe "+Version, log)
	if err != nil {
		return err
	}

	var confirmer workflow.Confirmer = &promptConfirmer{in: in, out: out}
	if assumeYes {
		log.Warn("Erase confirmation skipped (--yes)")
		confirmer = workflow.AlwaysConfirm
	}

	deps := workflow.Dependencies{
		Discoverer: nvme,
		Planner:    plans,
		Executor:   exec,
		Confirmer:  confirmer,
		Reporter:   writer,
	}
	if cfg.Audit.Enabled {
		if err := a.wireAudit(ctx, &deps); err != nil {
			return err
		}
	}

	a.engine, err = workflow.New(store, deps, workflow.Options{
		DeviceSelector: cfg.Device.Select,
		Description:    cfg.Collect.Description,
	}, log)
	return err
}

// wireAudit connects the audit database and adds the ledger and the device
// lock to deps.
func (a *app) wireAudit(ctx context.Context, deps *workflow.Dependencies) error {
	a.db = database.NewManager(&a.cfg.Audit.Database, a.log)
	if err := a.db.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to audit database: %w", err)
	}

	ledger, err := audit.NewLedger(a.db.DB, a.log)
	if err != nil {
		return err
	}
	if err := ledger.InitializeTables(ctx); err != nil {
		return fmt.Errorf("failed to initialize audit tables: %w", err)
	}
	locker, err := workflow.NewMySQLLocker(a.db.DB, a.log)
	if err != nil {
		return err
	}

	deps.Auditor = ledger
	deps.Locker = locker
	a.log.Infow("Audit ledger enabled", "host", a.cfg.Audit.Database.Host, "database", a.cfg.Audit.Database.Database)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warnw("Failed to close audit database", "error", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warnw("Failed to release state file", "error", err)
		}
	}
	_ = a.log.Sync()
}

// runWithApp wires an app under a signal-aware context and runs fn.
func runWithApp(fn func(ctx context.Context, a *app) error) error {
	ctx, stop := setupSignalHandler(context.Background(), func(sig os.Signal) {
		fmt.Fprintf(os.Stderr, "\nReceived %s, stopping...\n", sig)
	})
	defer stop()

	a, err := newApp(ctx, os.Stdin, outputWriter)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}
