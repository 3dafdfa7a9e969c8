package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dbsmedya/gowipe/internal/database"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/state"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and audit database connectivity",
	Long: `Validate checks the configuration file and, when the audit ledger is
enabled, connects to and pings the audit database.

Checks performed:
  - Configuration syntax and required fields
  - Execution, verification and logging settings
  - Audit database connectivity (when audit.enabled is true)

Example:
  gowipe validate --config gowipe.yaml`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	w := outputWriter
	printHeader(w, "Configuration Validation")
	fmt.Fprintln(w)
	printField(w, "Config file", GetConfigFile())
	printField(w, "State file", cfg.State.Path())
	printField(w, "Report dir", cfg.Report.Dir)
	printField(w, "nvme binary", cfg.Execution.NVMeBinary)
	printField(w, "Use sudo", cfg.Execution.UseSudo)
	printField(w, "Erase timeout", fmt.Sprintf("%ds", cfg.Execution.TimeoutSeconds))
	printField(w, "Sample bytes", cfg.Verification.SampleBytes)
	printField(w, "Audit ledger", cfg.Audit.Enabled)
	fmt.Fprintln(w)

	if cfg.Audit.Enabled {
		log, err := logger.New(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		db := database.NewManager(&cfg.Audit.Database, log)
		ctx := context.Background()
		if err := db.Connect(ctx); err != nil {
			fmt.Fprintf(w, "%s Audit database unreachable: %v\n", statusIcon(state.StatusFailed), err)
			return fmt.Errorf("audit database connection failed: %w", err)
		}
		defer db.Close()
		if err := db.Ping(ctx); err != nil {
			return fmt.Errorf("audit database ping failed: %w", err)
		}
		fmt.Fprintf(w, "%s Audit database reachable\n", statusIcon(state.StatusCompleted))
	}

	fmt.Fprintf(w, "%s Configuration is valid\n", statusIcon(state.StatusCompleted))
	return nil
}
