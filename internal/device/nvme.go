package device

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dbsmedya/gowipe/internal/command"
	"github.com/dbsmedya/gowipe/internal/logger"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// namespacePattern matches namespace block devices (nvme0n1), not
// controllers (nvme0) or partitions (nvme0n1p1).
var namespacePattern = regexp.MustCompile(`^nvme\d+n(\d+)$`)

// NVMeOptions configures NVMe discovery.
type NVMeOptions struct {
	Binary        string
	UseSudo       bool
	DeviceGlob    string
	ProbeTimeout  time.Duration
	MachineIDPath string
}

// NVMe discovers and probes NVMe namespaces through nvme-cli.
type NVMe struct {
	runner command.Runner
	opts   NVMeOptions
	logger *logger.Logger
}

// NewNVMe creates an NVMe discoverer.
func NewNVMe(runner command.Runner, opts NVMeOptions, log *logger.Logger) (*NVMe, error) {
	if runner == nil {
		return nil, fmt.Errorf("command runner is nil")
	}
	if opts.Binary == "" {
		opts.Binary = "nvme"
	}
	if opts.DeviceGlob == "" {
		opts.DeviceGlob = "/dev/nvme*n*"
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.MachineIDPath == "" {
		opts.MachineIDPath = "/etc/machine-id"
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &NVMe{runner: runner, opts: opts, logger: log}, nil
}

// controllerIdentity is the subset of `nvme id-ctrl` output we use.
type controllerIdentity struct {
	MN   string `json:"mn"`
	SN   string `json:"sn"`
	FR   string `json:"fr"`
	FNA  uint32 `json:"fna"`
	OACS uint32 `json:"oacs"`
}

// namespaceIdentity is the subset of `nvme id-ns` output we use.
type namespaceIdentity struct {
	NSZE  uint64 `json:"nsze"`
	FLBAS uint32 `json:"flbas"`
	LBAFs []struct {
		DS uint32 `json:"ds"`
	} `json:"lbafs"`
}

// ListDevices returns namespace device paths matching the configured glob,
// sorted.
func (n *NVMe) ListDevices() ([]string, error) {
	matches, err := filepath.Glob(n.opts.DeviceGlob)
	if err != nil {
		return nil, fmt.Errorf("invalid device glob %q: %w", n.opts.DeviceGlob, err)
	}

	var devices []string
	for _, m := range matches {
		if namespacePattern.MatchString(filepath.Base(m)) {
			devices = append(devices, m)
		}
	}
	sort.Strings(devices)

	n.logger.Debugw("Listed NVMe devices", "glob", n.opts.DeviceGlob, "matches", len(matches), "devices", devices)
	return devices, nil
}

// Discover identifies every listed device. Devices whose identify query
// fails are skipped with a warning.
func (n *NVMe) Discover(ctx context.Context) ([]DiscoveredDevice, error) {
	paths, err := n.ListDevices()
	if err != nil {
		return nil, err
	}

	devices := make([]DiscoveredDevice, 0, len(paths))
	for _, path := range paths {
		d, err := n.Describe(ctx, path)
		if err != nil {
			if wipeerr.Is(err, wipeerr.Cancelled) {
				return nil, err
			}
			n.logger.Warnw("Skipping device", "path", path, "error", err)
			continue
		}
		n.logger.WithDevice(d.Serial).Infow("Discovered device",
			"path", d.Path,
			"model", d.Model,
			"capacity", d.Capacity,
			"crypto_erase", d.EraseSupport.CryptoErase,
			"secure_erase", d.EraseSupport.SecureErase)
		devices = append(devices, *d)
	}
	return devices, nil
}

// Describe identifies one device.
func (n *NVMe) Describe(ctx context.Context, path string) (*DiscoveredDevice, error) {
	ctrl, err := n.identifyController(ctx, path)
	if err != nil {
		return nil, err
	}

	rec := DeviceRecord{
		Model:       orUnknown(ctrl.MN),
		Serial:      orUnknown(ctrl.SN),
		Firmware:    orUnknown(ctrl.FR),
		Path:        path,
		NamespaceID: namespaceID(path),
	}

	// Capacity is informational; a failing id-ns leaves it unknown.
	if ns, err := n.identifyNamespace(ctx, path); err != nil {
		n.logger.Debugw("Namespace identify failed", "path", path, "error", err)
	} else {
		rec.SectorCount, rec.SectorSize = ns.geometry()
	}
	rec.Capacity = FormatBytes(rec.CapacityBytes())

	attrs := &IdentifyAttributes{FNA: ctrl.FNA, OACS: ctrl.OACS}
	return &DiscoveredDevice{
		DeviceRecord: rec,
		Attributes:   attrs,
		EraseSupport: Classify(attrs),
		Description:  DefaultDescription(rec.Model),
	}, nil
}

// Probe re-checks that path still exists and answers an identify query
// within the probe timeout.
func (n *NVMe) Probe(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return wipeerr.Wrap(err, wipeerr.DeviceUnavailable, "Device %s is no longer available", path)
	}
	if _, err := n.identifyController(ctx, path); err != nil {
		if wipeerr.Is(err, wipeerr.Cancelled) {
			return err
		}
		return wipeerr.Wrap(err, wipeerr.DeviceUnavailable, "Device %s is not responding", path)
	}
	return nil
}

func (n *NVMe) identifyController(ctx context.Context, path string) (*controllerIdentity, error) {
	var out controllerIdentity
	if err := n.runJSON(ctx, &out, "id-ctrl", path, "--output-format=json"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (n *NVMe) identifyNamespace(ctx context.Context, path string) (*namespaceIdentity, error) {
	var out namespaceIdentity
	if err := n.runJSON(ctx, &out, "id-ns", path, "--output-format=json"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (n *NVMe) runJSON(ctx context.Context, v interface{}, args ...string) error {
	name, argv := command.Privileged(n.opts.UseSudo, n.opts.Binary, args...)
	res, err := n.runner.Run(ctx, n.opts.ProbeTimeout, name, argv...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(res.Stdout), v); err != nil {
		return fmt.Errorf("parse %s %s output: %w", n.opts.Binary, args[0], err)
	}
	return nil
}

// geometry returns the sector count and the size of the active LBA format.
func (ns *namespaceIdentity) geometry() (count, size uint64) {
	idx := int(ns.FLBAS & 0xf)
	if idx >= len(ns.LBAFs) || ns.LBAFs[idx].DS == 0 || ns.LBAFs[idx].DS >= 64 {
		return ns.NSZE, 0
	}
	return ns.NSZE, uint64(1) << ns.LBAFs[idx].DS
}

func namespaceID(path string) int {
	m := namespacePattern.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return 0
	}
	id, _ := strconv.Atoi(m[1])
	return id
}

func orUnknown(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "Unknown"
	}
	return s
}

// SystemInfo gathers host facts. Missing facts are reported as "Unknown".
func (n *NVMe) SystemInfo(ctx context.Context) SystemInfo {
	info := SystemInfo{SystemUUID: "Unknown", OSInfo: "Unknown", KernelVersion: "Unknown"}

	if data, err := os.ReadFile(n.opts.MachineIDPath); err == nil && strings.TrimSpace(string(data)) != "" {
		info.SystemUUID = strings.TrimSpace(string(data))
	} else {
		name, argv := command.Privileged(n.opts.UseSudo, "dmidecode", "-s", "system-uuid")
		if res, err := n.runner.Run(ctx, n.opts.ProbeTimeout, name, argv...); err == nil && strings.TrimSpace(res.Stdout) != "" {
			info.SystemUUID = strings.TrimSpace(res.Stdout)
		}
	}

	if osInfo, kernel, err := uname(); err == nil {
		info.OSInfo = osInfo
		info.KernelVersion = kernel
	} else {
		n.logger.Debugw("uname failed", "error", err)
	}
	return info
}
