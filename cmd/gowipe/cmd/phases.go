package cmd

import (
	"context"
	"fmt"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/verifier"
	"github.com/dbsmedya/gowipe/internal/workflow"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Discover NVMe devices and their erase capabilities",
	Long: `Collect enumerates NVMe namespaces, queries each one with nvme-cli and
records model, serial, geometry and supported erase methods together with
host facts.

Example:
  gowipe collect --config gowipe.yaml`,
	Args: cobra.NoArgs,
	RunE: runCollect,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build an erase plan for the selected device",
	Long: `Plan selects the target device (first collected, or --device by serial
or path), re-checks that it is reachable, inspects it for mounts and open
handles, and picks the strongest supported erase method:
crypto_erase, then secure_erase, then format.

Example:
  gowipe plan --device S5GXNF0R123456`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Run the planned erase and verify the device",
	Long: `Execute shows the plan, asks for confirmation, runs the erase command
and samples the start of the device to check the result.

Running execute again after a failed attempt retries the same plan as a
new operation; earlier attempts stay in the history.

THIS DESTROYS ALL DATA ON THE TARGET DEVICE.

Example:
  gowipe execute`,
	Args: cobra.NoArgs,
	RunE: runExecute,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Write the JSON wipe report",
	Long: `Report assembles device, plan, execution and verification details into
wipe_report_<timestamp>.json in the report directory.

Example:
  gowipe report --state-dir /var/lib/gowipe`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Run collect, plan, execute and report in order",
	Long: `Workflow runs every phase in order and stops at the first failure.
The erase still requires confirmation unless --yes is given.

Example:
  gowipe workflow --device /dev/nvme1n1`,
	Args: cobra.NoArgs,
	RunE: runWorkflow,
}

func init() {
	rootCmd.AddCommand(collectCmd, planCmd, executeCmd, reportCmd, workflowCmd)
}

func runCollect(cmd *cobra.Command, args []string) error {
	return runWithApp(func(ctx context.Context, a *app) error {
		if err := a.engine.Collect(ctx); err != nil {
			return err
		}
		s, err := workflow.Summarize(a.engine.Status())
		if err != nil {
			return err
		}
		fmt.Fprintf(outputWriter, "%s Collected %d device(s)\n\n", statusIcon(state.StatusCompleted), len(s.Devices))
		printSummary(outputWriter, s)
		return nil
	})
}

func runPlan(cmd *cobra.Command, args []string) error {
	return runWithApp(func(ctx context.Context, a *app) error {
		if err := a.engine.Plan(ctx); err != nil {
			return err
		}
		plan, err := a.engine.CurrentPlan()
		if err != nil {
			return err
		}
		printPlan(outputWriter, plan)
		fmt.Fprintln(outputWriter)
		fmt.Fprintln(outputWriter, "Next: gowipe execute")
		return nil
	})
}

func runExecute(cmd *cobra.Command, args []string) error {
	return runWithApp(func(ctx context.Context, a *app) error {
		before, _ := lastOutcome(a.engine.Status())
		err := a.engine.Execute(ctx)
		op, v := lastOutcome(a.engine.Status())
		if op != nil && op.Terminal() && (before == nil || before.ID != op.ID) {
			fmt.Fprintln(outputWriter)
			printOutcome(outputWriter, op, v)
		}
		return err
	})
}

func runReport(cmd *cobra.Command, args []string) error {
	return runWithApp(func(ctx context.Context, a *app) error {
		if err := a.engine.Report(ctx); err != nil {
			return err
		}
		var path string
		if _, err := a.engine.Status().Decode(state.PhaseReport, workflow.KeyJSONReport, &path); err != nil {
			return err
		}
		fmt.Fprintf(outputWriter, "%s Report written to %s\n", statusIcon(state.StatusCompleted), color.Cyan.Sprint(path))
		return nil
	})
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	return runWithApp(func(ctx context.Context, a *app) error {
		runErr := a.engine.Run(ctx)
		s, err := workflow.Summarize(a.engine.Status())
		if err != nil {
			return err
		}
		fmt.Fprintln(outputWriter)
		printSummary(outputWriter, s)
		return runErr
	})
}

// lastOutcome returns the latest erase operation and its verification, or
// nil when execute has not produced one.
func lastOutcome(ws *state.WorkflowState) (*executor.EraseOperation, *verifier.Result) {
	var op executor.EraseOperation
	if ok, err := ws.Decode(state.PhaseExecute, workflow.KeyEraseOperation, &op); err != nil || !ok {
		return nil, nil
	}
	var v *verifier.Result
	_, _ = ws.Decode(state.PhaseExecute, workflow.KeyVerification, &v)
	return &op, v
}
