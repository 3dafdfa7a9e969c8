package executor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gowipe/internal/command"
	"github.com/dbsmedya/gowipe/internal/command/commandtest"
	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/verifier"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

type fakeVerifier struct {
	result *verifier.Result
	calls  []string
}

func (f *fakeVerifier) Verify(_ context.Context, path string, method device.Method) *verifier.Result {
	f.calls = append(f.calls, path+" "+string(method))
	if f.result != nil {
		return f.result
	}
	return verifier.Classify(make([]byte, 1000), method, 0)
}

const formatLine = "sudo nvme format /dev/nvme0n1 --namespace-id=1 --ses=2 --force"

func testPlan() *planner.ExecutionPlan {
	rec := device.DeviceRecord{Serial: "S5GXNF0R123456", Path: "/dev/nvme0n1", NamespaceID: 1, SectorCount: 1953525168, SectorSize: 512}
	caps := device.EraseCapabilitySet{Format: true, SecureErase: true, CryptoErase: true}
	return &planner.ExecutionPlan{
		ID:           "plan-1",
		Device:       rec,
		Capabilities: caps,
		Method:       device.MethodCryptoErase,
		Command:      planner.BuildCommand(rec, device.MethodCryptoErase, "nvme", true),
	}
}

type clock struct {
	t    time.Time
	step time.Duration
}

func (c *clock) now() time.Time {
	t := c.t
	c.t = c.t.Add(c.step)
	return t
}

func newTestExecutor(t *testing.T, runner command.Runner, v Verifier) *Executor {
	t.Helper()
	e, err := New(runner, v, 0, logger.NewNop())
	require.NoError(t, err)
	c := &clock{t: time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), step: 1234 * time.Millisecond}
	e.now = c.now
	return e
}

func TestNewDefaults(t *testing.T) {
	e, err := New(&commandtest.Runner{}, &fakeVerifier{}, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, e.timeout)

	_, err = New(nil, &fakeVerifier{}, 0, nil)
	assert.Error(t, err)
	_, err = New(&commandtest.Runner{}, nil, 0, nil)
	assert.Error(t, err)
}

func TestExecuteSuccessAlwaysVerifies(t *testing.T) {
	runner := (&commandtest.Runner{}).OnStdout(formatLine, "Success formatting namespace:1\n")
	v := &fakeVerifier{}
	e := newTestExecutor(t, runner, v)

	out, err := e.Execute(context.Background(), testPlan())
	require.NoError(t, err)

	op := out.Operation
	assert.Equal(t, state.StatusCompleted, op.Status)
	assert.Equal(t, 1, op.Attempt)
	assert.Equal(t, "plan-1", op.PlanID)
	assert.Equal(t, int64(1234), op.DurationMS)
	assert.Equal(t, 1.234, op.Duration)
	require.NotNil(t, op.EndTime)
	assert.Empty(t, op.ErrorMessage)
	assert.Equal(t, "Success formatting namespace:1", out.Stdout)

	assert.Equal(t, []string{"/dev/nvme0n1 crypto_erase"}, v.calls)
	require.NotNil(t, out.Verification)
	assert.Equal(t, []string{formatLine}, runner.Lines())
	assert.Equal(t, time.Hour, runner.Calls[0].Timeout)
}

func TestExecuteVerificationFailureKeepsCompleted(t *testing.T) {
	runner := (&commandtest.Runner{}).OnStdout(formatLine, "")
	v := &fakeVerifier{result: &verifier.Result{Success: false, Error: "Verification timed out after 1m0s"}}

	out, err := newTestExecutor(t, runner, v).Execute(context.Background(), testPlan())
	require.NoError(t, err)
	assert.Equal(t, state.StatusCompleted, out.Operation.Status)
	assert.False(t, out.Verification.Success)
	assert.Nil(t, out.Summary().WipeVerified)
}

func TestExecuteFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind wipeerr.Kind
	}{
		{"timeout", wipeerr.New(wipeerr.Timeout, "Command timed out after 1 hour"), wipeerr.Timeout},
		{"non-zero exit", wipeerr.New(wipeerr.CommandFailed, "NVMe status: INVALID_FORMAT"), wipeerr.CommandFailed},
		{"missing binary", wipeerr.New(wipeerr.CommandNotFound, "Command not found: sudo"), wipeerr.CommandNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := (&commandtest.Runner{}).OnError(formatLine, tt.err)
			v := &fakeVerifier{}

			out, err := newTestExecutor(t, runner, v).Execute(context.Background(), testPlan())
			require.Error(t, err)
			assert.True(t, wipeerr.Is(err, tt.kind))

			require.NotNil(t, out)
			assert.Equal(t, state.StatusFailed, out.Operation.Status)
			assert.Equal(t, tt.kind, out.Operation.ErrorKind)
			assert.Equal(t, tt.err.Error(), out.Operation.ErrorMessage)
			assert.Nil(t, out.Verification)
			assert.Empty(t, v.calls)
			assert.Len(t, runner.Calls, 1, "no automatic retry")
		})
	}
}

func TestExecuteRejectsInvalidPlan(t *testing.T) {
	runner := &commandtest.Runner{}
	plan := testPlan()
	plan.Capabilities = device.EraseCapabilitySet{Format: true}

	out, err := newTestExecutor(t, runner, &fakeVerifier{}).Execute(context.Background(), plan)
	assert.Nil(t, out)
	assert.True(t, wipeerr.Is(err, wipeerr.NoSupportedMethod))
	assert.Empty(t, runner.Calls)
}

func TestRetryCreatesNewOperation(t *testing.T) {
	runner := (&commandtest.Runner{}).OnError(formatLine, wipeerr.New(wipeerr.CommandFailed, "busy"))
	e := newTestExecutor(t, runner, &fakeVerifier{})
	plan := testPlan()

	first, err := e.Execute(context.Background(), plan)
	require.Error(t, err)
	firstCopy := *first.Operation

	runner.OnStdout(formatLine, "")
	second, err := e.Retry(context.Background(), plan, first.Operation)
	require.NoError(t, err)

	assert.NotEqual(t, first.Operation.ID, second.Operation.ID)
	assert.Equal(t, 2, second.Operation.Attempt)
	assert.Equal(t, first.Operation.ID, second.Operation.RetryOf)
	assert.Equal(t, state.StatusCompleted, second.Operation.Status)
	assert.Equal(t, firstCopy, *first.Operation, "previous attempt must not change")
}

func TestRetryRejectsForeignOperation(t *testing.T) {
	e := newTestExecutor(t, &commandtest.Runner{}, &fakeVerifier{})
	_, err := e.Retry(context.Background(), testPlan(), &EraseOperation{ID: "op", PlanID: "other"})
	assert.Error(t, err)
}

func TestOperationJSONShape(t *testing.T) {
	runner := (&commandtest.Runner{}).OnError(formatLine, wipeerr.New(wipeerr.Timeout, "Command timed out after 1 hour"))
	out, _ := newTestExecutor(t, runner, &fakeVerifier{}).Execute(context.Background(), testPlan())

	raw, err := json.Marshal(out.Operation)
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	for _, key := range []string{"method", "start_time", "end_time", "duration", "duration_ms", "status", "error_message", "error_kind"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, "Timeout", m["error_kind"])
}
