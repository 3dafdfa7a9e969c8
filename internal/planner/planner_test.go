package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

type fakeProber struct {
	err   error
	paths []string
}

func (f *fakeProber) Probe(_ context.Context, path string) error {
	f.paths = append(f.paths, path)
	return f.err
}

type fakeInspector struct {
	issues []string
}

func (f *fakeInspector) Inspect(context.Context, string) []string { return f.issues }

var testDevice = device.DeviceRecord{
	Model:       "Samsung SSD 980 PRO 1TB",
	Serial:      "S5GXNF0R123456",
	Firmware:    "5B2QGXA7",
	SectorCount: 1953525168,
	SectorSize:  512,
	Capacity:    "931.5 GB",
	Path:        "/dev/nvme0n1",
	NamespaceID: 1,
}

func newTestPlanner(t *testing.T, prober Prober, inspector SafetyInspector) *Planner {
	t.Helper()
	p, err := New(prober, inspector, Options{NVMeBinary: "nvme", UseSudo: true}, logger.NewNop())
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return p
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, &fakeInspector{}, Options{}, nil)
	assert.Error(t, err)
	_, err = New(&fakeProber{}, nil, Options{}, nil)
	assert.Error(t, err)
}

func TestCreatePlanPrefersCryptoErase(t *testing.T) {
	prober := &fakeProber{}
	p := newTestPlanner(t, prober, &fakeInspector{})

	plan, err := p.CreatePlan(context.Background(), testDevice, device.EraseCapabilitySet{Format: true, SecureErase: true, CryptoErase: true})
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, device.MethodCryptoErase, plan.Method)
	assert.Equal(t, "sudo", plan.Command.Program)
	assert.Equal(t, []string{"nvme", "format", "/dev/nvme0n1", "--namespace-id=1", "--ses=2", "--force"}, plan.Command.Args)
	assert.Equal(t, "Crypto erase on /dev/nvme0n1", plan.Command.Description)
	assert.Equal(t, "~1 minutes", plan.EstimatedDuration)
	assert.Equal(t, []string{}, plan.SafetyIssues)
	assert.Len(t, plan.Warnings, 4)
	assert.Equal(t, []string{"/dev/nvme0n1"}, prober.paths)
	assert.NoError(t, plan.Validate())
}

func TestCreatePlanNeverSelectsUnsupportedMethod(t *testing.T) {
	p := newTestPlanner(t, &fakeProber{}, &fakeInspector{})

	for bits := 1; bits < 8; bits++ {
		caps := device.EraseCapabilitySet{
			Format:      bits&1 != 0,
			SecureErase: bits&2 != 0,
			CryptoErase: bits&4 != 0,
		}
		plan, err := p.CreatePlan(context.Background(), testDevice, caps)
		require.NoError(t, err, "caps=%+v", caps)
		assert.True(t, caps.Supports(plan.Method), "caps=%+v method=%s", caps, plan.Method)
		assert.Equal(t, caps.Supported()[0], plan.Method, "caps=%+v", caps)
	}
}

func TestCreatePlanSecureAndFormatCommands(t *testing.T) {
	p := newTestPlanner(t, &fakeProber{}, &fakeInspector{})
	p.opts.UseSudo = false

	plan, err := p.CreatePlan(context.Background(), testDevice, device.EraseCapabilitySet{Format: true, SecureErase: true})
	require.NoError(t, err)
	assert.Equal(t, "nvme", plan.Command.Program)
	assert.Equal(t, []string{"format", "/dev/nvme0n1", "--namespace-id=1", "--ses=1", "--force"}, plan.Command.Args)

	plan, err = p.CreatePlan(context.Background(), testDevice, device.EraseCapabilitySet{Format: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"format", "/dev/nvme0n1", "--namespace-id=1", "--force"}, plan.Command.Args)
	assert.Equal(t, "Format on /dev/nvme0n1", plan.Command.Description)
}

func TestCreatePlanNoSupportedMethod(t *testing.T) {
	prober := &fakeProber{}
	p := newTestPlanner(t, prober, &fakeInspector{})

	plan, err := p.CreatePlan(context.Background(), testDevice, device.EraseCapabilitySet{})
	assert.Nil(t, plan)
	assert.True(t, wipeerr.Is(err, wipeerr.NoSupportedMethod))
	assert.Empty(t, prober.paths)
}

func TestCreatePlanDeviceGone(t *testing.T) {
	p := newTestPlanner(t, &fakeProber{err: errors.New("stat /dev/nvme0n1: no such file or directory")}, &fakeInspector{})

	_, err := p.CreatePlan(context.Background(), testDevice, device.EraseCapabilitySet{Format: true})
	assert.True(t, wipeerr.Is(err, wipeerr.DeviceUnavailable))
	assert.Contains(t, err.Error(), "is no longer available")
}

func TestCreatePlanKeepsSafetyIssuesVerbatim(t *testing.T) {
	issues := []string{
		"Partition /dev/nvme0n1p2 of /dev/nvme0n1 is currently mounted at /",
		"Device /dev/nvme0n1 is in use by other processes",
	}
	p := newTestPlanner(t, &fakeProber{}, &fakeInspector{issues: issues})

	plan, err := p.CreatePlan(context.Background(), testDevice, device.EraseCapabilitySet{Format: true, CryptoErase: true})
	require.NoError(t, err)
	assert.Equal(t, issues, plan.SafetyIssues)
	assert.Equal(t, issues, plan.Warnings[len(plan.Warnings)-2:])
}

func TestPlansAreIndependent(t *testing.T) {
	p := newTestPlanner(t, &fakeProber{}, &fakeInspector{})
	caps := device.EraseCapabilitySet{Format: true}

	a, err := p.CreatePlan(context.Background(), testDevice, caps)
	require.NoError(t, err)
	b, err := p.CreatePlan(context.Background(), testDevice, caps)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestValidateRejectsUnsupportedMethod(t *testing.T) {
	plan := &ExecutionPlan{
		ID:           "p1",
		Device:       testDevice,
		Capabilities: device.EraseCapabilitySet{Format: true},
		Method:       device.MethodCryptoErase,
		Command:      Command{Program: "nvme"},
	}
	assert.True(t, wipeerr.Is(plan.Validate(), wipeerr.NoSupportedMethod))

	plan.Method = "sanitize"
	assert.Error(t, plan.Validate())
}

func TestEstimateDuration(t *testing.T) {
	const tib = uint64(1) << 40
	assert.Equal(t, UnknownDuration, EstimateDuration(0, device.MethodCryptoErase))
	assert.Equal(t, "~1 minutes", EstimateDuration(tib, device.MethodCryptoErase))
	assert.Equal(t, "~2 minutes", EstimateDuration(4*tib, device.MethodCryptoErase))
	assert.Equal(t, "~8 minutes", EstimateDuration(4*tib, device.MethodFormat))
	assert.Equal(t, "~20 minutes", EstimateDuration(4*tib, device.MethodSecureErase))
}

func TestWarnings(t *testing.T) {
	w := Warnings(device.MethodFormat, []string{"Device /dev/nvme0n1 is in use by other processes"})
	require.Len(t, w, 5)
	assert.Contains(t, w[0], "PERMANENTLY DESTROY")
	assert.Contains(t, w[3], "partition tables")
	assert.Equal(t, "Device /dev/nvme0n1 is in use by other processes", w[4])
}

func TestSelectDevice(t *testing.T) {
	devices := []device.DiscoveredDevice{
		{DeviceRecord: device.DeviceRecord{Serial: "A", Path: "/dev/nvme0n1"}},
		{DeviceRecord: device.DeviceRecord{Serial: "B", Path: "/dev/nvme1n1"}},
	}

	d, err := SelectDevice(devices, "")
	require.NoError(t, err)
	assert.Equal(t, "A", d.Serial)

	d, err = SelectDevice(devices, "B")
	require.NoError(t, err)
	assert.Equal(t, "/dev/nvme1n1", d.Path)

	d, err = SelectDevice(devices, "/dev/nvme1n1")
	require.NoError(t, err)
	assert.Equal(t, "B", d.Serial)

	_, err = SelectDevice(devices, "C")
	assert.True(t, wipeerr.Is(err, wipeerr.DeviceUnavailable))
	assert.Contains(t, wipeerr.Hints(err), "/dev/nvme0n1 (A)")

	_, err = SelectDevice(nil, "")
	assert.True(t, wipeerr.Is(err, wipeerr.DeviceUnavailable))
}
