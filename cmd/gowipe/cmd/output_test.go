package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/verifier"
	"github.com/dbsmedya/gowipe/internal/workflow"
)

func TestPrintHeader(t *testing.T) {
	var buf bytes.Buffer
	printHeader(&buf, "Erase %s", "completed")
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"===================",
		"  Erase completed",
		"===================",
	}, lines)
}

func TestPrintSection(t *testing.T) {
	var buf bytes.Buffer
	printSection(&buf, "Plan")
	assert.Equal(t, "[Plan]\n------\n", buf.String())
}

func TestPrintPlan(t *testing.T) {
	var buf bytes.Buffer
	printPlan(&buf, testPlan())
	out := buf.String()

	assert.Contains(t, out, "Execution Plan")
	assert.Contains(t, out, "/dev/nvme0n1")
	assert.Contains(t, out, "crypto_erase")
	assert.Contains(t, out, "~1 minutes")
	assert.Contains(t, out, "! /dev/nvme0n1p1 is mounted at /boot")
}

func TestPrintOutcome(t *testing.T) {
	var buf bytes.Buffer
	op := &executor.EraseOperation{ID: "op-1", Attempt: 2, Method: device.MethodFormat, Status: state.StatusCompleted, Duration: 12.5}
	printOutcome(&buf, op, verifier.Classify(make([]byte, 1000), device.MethodFormat, 4))
	out := buf.String()

	assert.Contains(t, out, "Erase completed")
	assert.Contains(t, out, "12.500s")
	assert.Contains(t, out, "effective")
	assert.Contains(t, out, "1000 (100.00%)")
	assert.Contains(t, out, verifier.Disclaimer)

	buf.Reset()
	printOutcome(&buf, op, &verifier.Result{Error: "Verification timed out after 1m0s"})
	assert.Contains(t, buf.String(), "unavailable")
	assert.Contains(t, buf.String(), "Verification timed out after 1m0s")

	buf.Reset()
	printOutcome(&buf, op, nil)
	assert.Contains(t, buf.String(), "not run")
}

func TestPrintSummary(t *testing.T) {
	verified := true
	s := &workflow.Summary{
		Phases: []workflow.PhaseSummary{
			{Phase: state.PhaseCollect, Status: state.StatusCompleted},
			{Phase: state.PhasePlan, Status: state.StatusCompleted},
			{Phase: state.PhaseExecute, Status: state.StatusFailed, Error: "Command timed out after 1 hour", ErrorKind: "Timeout"},
			{Phase: state.PhaseReport, Status: state.StatusPending},
		},
		Devices: []workflow.DeviceSummary{{
			Path: "/dev/nvme0n1", Model: "Samsung SSD 980 PRO 1TB", Serial: "S5GXNF0R123456", Capacity: "931.5 GB",
			Methods: []device.Method{device.MethodCryptoErase, device.MethodFormat},
		}},
		Plan:      &workflow.PlanSummary{Device: "/dev/nvme0n1", Method: device.MethodCryptoErase, Command: "nvme format /dev/nvme0n1 --ses=2 --force"},
		Operation: &workflow.OperationSummary{ID: "op-1", Attempt: 1, Status: state.StatusFailed, Verified: &verified},
		Next:      state.PhaseExecute,
	}

	var buf bytes.Buffer
	printSummary(&buf, s)
	out := buf.String()

	assert.Contains(t, out, "✘ execute  failed  (Timeout: Command timed out after 1 hour)")
	assert.Contains(t, out, "○ report   pending")
	assert.Contains(t, out, "[crypto_erase, format]")
	assert.Contains(t, out, "Last Erase")
	assert.Contains(t, out, "Next: gowipe execute")
}
