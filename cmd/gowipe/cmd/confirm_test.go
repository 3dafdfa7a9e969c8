package cmd

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/planner"
)

func testPlan() *planner.ExecutionPlan {
	rec := device.DeviceRecord{
		Model: "Samsung SSD 980 PRO 1TB", Serial: "S5GXNF0R123456", Path: "/dev/nvme0n1",
		NamespaceID: 1, SectorCount: 1953525168, SectorSize: 512, Capacity: "931.5 GB",
	}
	return &planner.ExecutionPlan{
		ID:                "plan-1",
		Device:            rec,
		Capabilities:      device.EraseCapabilitySet{Format: true, CryptoErase: true},
		Method:            device.MethodCryptoErase,
		Command:           planner.BuildCommand(rec, device.MethodCryptoErase, "nvme", true),
		EstimatedDuration: "~1 minutes",
		Warnings:          planner.Warnings(device.MethodCryptoErase, []string{"/dev/nvme0n1p1 is mounted at /boot"}),
		SafetyIssues:      []string{"/dev/nvme0n1p1 is mounted at /boot"},
	}
}

func TestPromptConfirmer(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"exact phrase", "YES\n", true},
		{"surrounding space", "  YES  \n", true},
		{"lowercase", "yes\n", false},
		{"y", "y\n", false},
		{"empty line", "\n", false},
		{"no newline", "YES", true},
		{"eof", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &promptConfirmer{in: strings.NewReader(tt.input), out: &out}

			ok, err := p.Confirm(context.Background(), testPlan())
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.Contains(t, out.String(), "Type YES to proceed")
			assert.Contains(t, out.String(), "sudo nvme format /dev/nvme0n1 --namespace-id=1 --ses=2 --force")
			assert.Contains(t, out.String(), "/dev/nvme0n1p1 is mounted at /boot")
		})
	}
}

func TestPromptConfirmerCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := (&promptConfirmer{in: r, out: io.Discard}).Confirm(ctx, testPlan())
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
