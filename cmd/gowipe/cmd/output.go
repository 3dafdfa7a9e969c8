package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/verifier"
	"github.com/dbsmedya/gowipe/internal/workflow"
)

// outputWriter is used for printing output, can be overridden in tests
var outputWriter io.Writer = os.Stdout

// setOutputWriter sets the output writer (used for testing)
func setOutputWriter(w io.Writer) {
	outputWriter = w
}

// resetOutputWriter resets output to stdout (used for testing)
func resetOutputWriter() {
	outputWriter = os.Stdout
}

// printHeader prints a formatted header
func printHeader(w io.Writer, format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := runewidth.StringWidth(title) + 4
	fmt.Fprintln(w, strings.Repeat("=", width))
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "[%s]\n", title)
	fmt.Fprintln(w, strings.Repeat("-", runewidth.StringWidth(title)+2))
}

// printField prints an aligned "label: value" line.
func printField(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "  %s %v\n", runewidth.FillRight(label+":", 20), value)
}

// statusIcon returns a colored marker for a phase status.
func statusIcon(s state.Status) string {
	switch s {
	case state.StatusCompleted:
		return color.Green.Sprint("✔")
	case state.StatusFailed:
		return color.Red.Sprint("✘")
	case state.StatusRunning:
		return color.Yellow.Sprint("▶")
	default:
		return color.Gray.Sprint("○")
	}
}

func printPlan(w io.Writer, plan *planner.ExecutionPlan) {
	printHeader(w, "Execution Plan")
	fmt.Fprintln(w)
	printSection(w, "Target")
	printField(w, "Device", plan.Device.Path)
	printField(w, "Model", plan.Device.Model)
	printField(w, "Serial", plan.Device.Serial)
	printField(w, "Capacity", plan.Device.Capacity)
	fmt.Fprintln(w)
	printSection(w, "Erase")
	printField(w, "Method", color.Cyan.Sprint(plan.Method))
	printField(w, "Command", plan.Command.String())
	printField(w, "Estimated duration", plan.EstimatedDuration)
	printField(w, "Plan ID", plan.ID)

	if len(plan.Warnings) > 0 {
		fmt.Fprintln(w)
		printSection(w, "Warnings")
		for _, warning := range plan.Warnings {
			fmt.Fprintf(w, "  %s %s\n", color.Yellow.Sprint("!"), warning)
		}
	}
}

func printVerification(w io.Writer, v *verifier.Result) {
	printSection(w, "Verification")
	if v == nil {
		printField(w, "Result", "not run")
		return
	}
	if !v.Success {
		printField(w, "Result", color.Yellow.Sprint("unavailable"))
		printField(w, "Reason", v.Error)
		return
	}
	result := color.Green.Sprint("effective")
	if !v.WipeEffective {
		result = color.Red.Sprint("NOT effective")
	}
	printField(w, "Result", result)
	printField(w, "Expected", v.ExpectedResult)
	printField(w, "Sampled bytes", v.TotalBytes)
	printField(w, "Zero bytes", fmt.Sprintf("%d (%.2f%%)", v.ZeroBytes, v.ZeroPercentage))
	printField(w, "Sample", v.HexdumpSample)
	fmt.Fprintf(w, "  %s\n", color.Gray.Sprint(v.Disclaimer))
}

func printOutcome(w io.Writer, op *executor.EraseOperation, v *verifier.Result) {
	printHeader(w, "Erase %s", op.Status)
	fmt.Fprintln(w)
	printField(w, "Operation", op.ID)
	printField(w, "Attempt", op.Attempt)
	printField(w, "Method", op.Method)
	printField(w, "Duration", fmt.Sprintf("%.3fs", op.Duration))
	if op.ErrorMessage != "" {
		printField(w, "Error", color.Red.Sprint(op.ErrorMessage))
	}
	fmt.Fprintln(w)
	printVerification(w, v)
}

func printSummary(w io.Writer, s *workflow.Summary) {
	printHeader(w, "Workflow Status")
	fmt.Fprintln(w)

	printSection(w, "Phases")
	for _, p := range s.Phases {
		line := fmt.Sprintf("  %s %s %s", statusIcon(p.Status), runewidth.FillRight(string(p.Phase), 8), p.Status)
		if p.Error != "" {
			line += fmt.Sprintf("  (%s: %s)", p.ErrorKind, p.Error)
		}
		fmt.Fprintln(w, line)
	}

	if len(s.Devices) > 0 {
		fmt.Fprintln(w)
		printSection(w, "Devices")
		for _, d := range s.Devices {
			methods := make([]string, len(d.Methods))
			for i, m := range d.Methods {
				methods[i] = string(m)
			}
			fmt.Fprintf(w, "  %s %s %s %s [%s]\n",
				runewidth.FillRight(d.Path, 14),
				runewidth.FillRight(runewidth.Truncate(d.Model, 28, "…"), 28),
				runewidth.FillRight(d.Serial, 20),
				runewidth.FillLeft(d.Capacity, 10),
				strings.Join(methods, ", "))
		}
	}

	if s.Plan != nil {
		fmt.Fprintln(w)
		printSection(w, "Plan")
		printField(w, "Device", s.Plan.Device)
		printField(w, "Method", s.Plan.Method)
		printField(w, "Command", s.Plan.Command)
		printField(w, "Estimated duration", s.Plan.EstimatedDuration)
		for _, issue := range s.Plan.SafetyIssues {
			fmt.Fprintf(w, "  %s %s\n", color.Yellow.Sprint("!"), issue)
		}
	}

	if op := s.Operation; op != nil {
		fmt.Fprintln(w)
		printSection(w, "Last Erase")
		printField(w, "Operation", op.ID)
		printField(w, "Attempt", op.Attempt)
		printField(w, "Status", op.Status)
		printField(w, "Duration", fmt.Sprintf("%dms", op.DurationMS))
		if op.Error != "" {
			printField(w, "Error", op.Error)
		}
		if op.Verified != nil {
			printField(w, "Wipe verified", *op.Verified)
		}
	}

	if s.Report != "" {
		fmt.Fprintln(w)
		printField(w, "Report", s.Report)
	}
	if s.Next != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Next: gowipe %s\n", s.Next)
	}
}
