package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/gowipe/internal/config"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile     string
	logLevel    string
	logFormat   string
	stateDir    string
	deviceSel   string
	timeoutSecs int
	sampleBytes int
	noSudo      bool
	assumeYes   bool
)

var rootCmd = &cobra.Command{
	Use:   "gowipe",
	Short: "NVMe secure erase orchestrator",
	Long: `A phase-gated tool for sanitizing NVMe block devices.

Phases run in order and each one is recorded in a state file:
  1. collect  - discover NVMe namespaces and their erase capabilities
  2. plan     - select a device and the strongest supported erase method
  3. execute  - confirm, run the erase and sample the device afterwards
  4. report   - write a JSON report of the whole run

A phase only runs once its predecessor has completed.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(wipeerr.ExitCode(err))
	}
}

// printError writes err and any operator hints attached to it.
func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", color.Red.Sprint("Error:"), err)
	if kind := wipeerr.KindOf(err); kind != "" {
		fmt.Fprintf(w, "  kind: %s\n", kind)
	}
	if hints := wipeerr.Hints(err); hints != "" {
		fmt.Fprintf(w, "%s %s\n", color.Yellow.Sprint("Hint:"), hints)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "gowipe.yaml",
		"Path to configuration file (defaults apply when it does not exist)")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Workflow overrides
	rootCmd.PersistentFlags().StringVar(&stateDir, "state-dir", "",
		"Override directory for the state file and reports")
	rootCmd.PersistentFlags().StringVar(&deviceSel, "device", "",
		"Select the device to plan by serial number or path")
	rootCmd.PersistentFlags().IntVar(&timeoutSecs, "timeout", 0,
		"Override erase command timeout in seconds")
	rootCmd.PersistentFlags().IntVar(&sampleBytes, "sample-bytes", 0,
		"Override number of bytes sampled during verification")
	rootCmd.PersistentFlags().BoolVar(&noSudo, "no-sudo", false,
		"Run nvme-cli without sudo")

	// Safety overrides
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false,
		"Skip the interactive erase confirmation")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() config.Overrides {
	return config.Overrides{
		LogLevel:       logLevel,
		LogFormat:      logFormat,
		StateDir:       stateDir,
		Device:         deviceSel,
		TimeoutSeconds: timeoutSecs,
		SampleBytes:    sampleBytes,
		NoSudo:         noSudo,
	}
}

// loadConfig loads the config file, applies CLI overrides and validates the
// result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyOverrides(GetCLIOverrides())
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
