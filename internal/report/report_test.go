package report

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/executor"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/planner"
	"github.com/dbsmedya/gowipe/internal/state"
	"github.com/dbsmedya/gowipe/internal/verifier"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

var (
	testRecord = device.DeviceRecord{
		Model:       "Samsung SSD 980 PRO 1TB",
		Serial:      "S5GXNF0R123456",
		Firmware:    "5B2QGXA7",
		SectorCount: 1953525168,
		SectorSize:  512,
		Capacity:    "931.5 GB",
		Path:        "/dev/nvme0n1",
		NamespaceID: 1,
	}
	testCaps = device.EraseCapabilitySet{Format: true, SecureErase: true, CryptoErase: true}
)

func completedState(t *testing.T) *state.Store {
	t.Helper()
	store, err := state.Open(filepath.Join(t.TempDir(), "state.json"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	devices := []device.DiscoveredDevice{
		{DeviceRecord: device.DeviceRecord{Serial: "OTHER", Path: "/dev/nvme1n1"}, EraseSupport: device.EraseCapabilitySet{Format: true}},
		{DeviceRecord: testRecord, EraseSupport: testCaps, Description: "Rack 4 build host"},
	}
	require.NoError(t, store.Transition(state.PhaseCollect, state.StatusCompleted, map[string]interface{}{
		"devices":      devices,
		"device_count": 2,
		"system_info":  device.SystemInfo{SystemUUID: "4c4c4544-004d", OSInfo: "Linux 6.8.0", KernelVersion: "6.8.0"},
	}))

	plan := planner.ExecutionPlan{
		ID:           "plan-1",
		Device:       testRecord,
		Capabilities: testCaps,
		Method:       device.MethodCryptoErase,
		Command:      planner.BuildCommand(testRecord, device.MethodCryptoErase, "nvme", true),
	}
	require.NoError(t, store.Transition(state.PhasePlan, state.StatusCompleted, map[string]interface{}{"execution_plan": plan}))

	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	op := executor.EraseOperation{
		ID: "op-2", PlanID: "plan-1", Attempt: 2, Method: device.MethodCryptoErase,
		StartTime: start, EndTime: &end, Duration: 1.5, DurationMS: 1500, Status: state.StatusCompleted,
	}
	require.NoError(t, store.Transition(state.PhaseExecute, state.StatusCompleted, map[string]interface{}{
		"erase_operation": op,
		"command_output":  "Success formatting namespace:1",
		"verification":    verifier.Classify([]byte{0x13, 0x37, 0x42}, device.MethodCryptoErase, 0),
	}))
	return store
}

func TestBuild(t *testing.T) {
	store := completedState(t)
	r, err := Build(store.Snapshot(), Metadata{GeneratedBy: "operator"})
	require.NoError(t, err)

	assert.Equal(t, "Rack 4 build host", r.DeviceInfo.Description)
	assert.Equal(t, "S5GXNF0R123456", r.DeviceInfo.Serial)
	assert.Equal(t, "4c4c4544-004d", r.SystemInfo.SystemUUID)
	assert.Equal(t, "plan-1", r.ExecutionPlan.ID)

	assert.Equal(t, device.MethodCryptoErase, r.WipeSummary.Method)
	assert.Equal(t, state.StatusCompleted, r.WipeSummary.Status)
	assert.Equal(t, 1.5, r.WipeSummary.DurationSeconds)
	assert.Equal(t, int64(1500), r.WipeSummary.DurationMS)
	assert.Equal(t, 2, r.WipeSummary.Attempts)
	require.NotNil(t, r.WipeSummary.WipeVerified)
	assert.True(t, *r.WipeSummary.WipeVerified)

	require.NotNil(t, r.Verification)
	assert.Equal(t, "133742", r.Verification.HexdumpSample)
	assert.Contains(t, r.ExecutionResults, "command_output")
	assert.NotEmpty(t, r.Disclaimer)
}

func TestBuildMissingPhaseData(t *testing.T) {
	store, err := state.Open(filepath.Join(t.TempDir(), "state.json"), logger.NewNop())
	require.NoError(t, err)
	defer store.Close()

	_, err = Build(store.Snapshot(), Metadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure all phases completed")
}

func TestBuildRejectsOperationFromOtherPlan(t *testing.T) {
	store := completedState(t)
	plan := planner.ExecutionPlan{ID: "plan-2", Device: testRecord, Capabilities: testCaps, Method: device.MethodCryptoErase}
	require.NoError(t, store.Transition(state.PhasePlan, state.StatusCompleted, map[string]interface{}{"execution_plan": plan}))

	_, err := Build(store.Snapshot(), Metadata{})
	require.Error(t, err)
	assert.True(t, wipeerr.Is(err, wipeerr.PhaseOutOfOrder))
	assert.Contains(t, err.Error(), "plan-1")
}

func TestBuildFallsBackToPlanDevice(t *testing.T) {
	store := completedState(t)
	require.NoError(t, store.Transition(state.PhaseCollect, state.StatusCompleted, map[string]interface{}{
		"devices": []device.DiscoveredDevice{},
	}))

	r, err := Build(store.Snapshot(), Metadata{})
	require.NoError(t, err)
	assert.Equal(t, "S5GXNF0R123456", r.DeviceInfo.Serial)
	assert.Equal(t, "NVMe device Samsung SSD 980 PRO 1TB", r.DeviceInfo.Description)
}

func TestWriterWrite(t *testing.T) {
	store := completedState(t)
	dir := filepath.Join(t.TempDir(), "reports")

	w, err := NewWriter(dir, "operator", logger.NewNop())
	require.NoError(t, err)
	w.now = func() time.Time { return time.Date(2026, 10, 15, 9, 30, 5, 0, time.UTC) }

	artifact, err := w.Write(context.Background(), store.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, "20261015_093005", artifact.Timestamp)
	assert.Equal(t, filepath.Join(dir, "wipe_report_20261015_093005.json"), artifact.Path)

	raw, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &doc))
	for _, key := range []string{"report_metadata", "device_info", "system_info", "execution_plan", "execution_results", "wipe_summary", "verification"} {
		assert.Contains(t, doc, key)
	}

	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(doc["wipe_summary"], &summary))
	assert.Equal(t, "crypto_erase", summary["method"])
	assert.Equal(t, 1500.0, summary["duration_ms"])
}

func TestWriterRejectsEmptyDir(t *testing.T) {
	_, err := NewWriter("", "", nil)
	assert.Error(t, err)
}

func TestWriterHonoursCancellation(t *testing.T) {
	store := completedState(t)
	w, err := NewWriter(t.TempDir(), "", logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = w.Write(ctx, store.Snapshot())
	assert.ErrorIs(t, err, context.Canceled)
}
