package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/workflow"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show workflow progress",
	Long: `Status prints every phase with its status, the collected devices, the
current plan and the last erase attempt. It only reads the state file and
never creates or locks anything.

Example:
  gowipe status --output json`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text",
		"Output format (text, json, yaml)")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ws, err := state.Load(cfg.State.Path())
	if err != nil {
		return err
	}
	s, err := workflow.Summarize(ws)
	if err != nil {
		return err
	}
	return writeSummary(outputWriter, s, statusOutput)
}

func writeSummary(w io.Writer, s *workflow.Summary, format string) error {
	switch format {
	case "text", "":
		printSummary(w, s)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q (want text, json or yaml)", format)
	}
}
