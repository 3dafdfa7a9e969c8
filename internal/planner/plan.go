// Package planner turns a discovered device into a concrete, immutable
// execution plan.
package planner

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/dbsmedya/gowipe/internal/command"
	"github.com/dbsmedya/gowipe/internal/device"
	"github.com/dbsmedya/gowipe/internal/wipeerr"
)

// Command is an opaque program invocation.
type Command struct {
	Program     string   `json:"command"`
	Args        []string `json:"args"`
	Description string   `json:"description"`
}

// String renders the command line.
func (c Command) String() string {
	return command.String(c.Program, c.Args...)
}

// ExecutionPlan is bound to exactly one device. It is never modified after
// creation; re-planning produces a new plan with a new ID.
type ExecutionPlan struct {
	ID                string                    `json:"id"`
	Device            device.DeviceRecord       `json:"device"`
	Capabilities      device.EraseCapabilitySet `json:"erase_support"`
	Method            device.Method             `json:"erase_method"`
	Command           Command                   `json:"command"`
	SafetyIssues      []string                  `json:"safety_issues"`
	EstimatedDuration string                    `json:"estimated_duration"`
	Warnings          []string                  `json:"warnings"`
	CreatedAt         time.Time                 `json:"created_at"`
}

// Validate checks the plan's invariant: the method must be one the device
// supports.
func (p *ExecutionPlan) Validate() error {
	if !p.Method.Valid() {
		return fmt.Errorf("plan %s has unknown erase method %q", p.ID, p.Method)
	}
	if !p.Capabilities.Supports(p.Method) {
		return wipeerr.New(wipeerr.NoSupportedMethod, "plan %s selects %s, which device %s does not support", p.ID, p.Method, p.Device.Serial)
	}
	if p.Command.Program == "" {
		return fmt.Errorf("plan %s has no command", p.ID)
	}
	return nil
}

// SelectMethod picks the strongest supported method.
func SelectMethod(caps device.EraseCapabilitySet) (device.Method, error) {
	for _, m := range device.MethodPriority {
		if caps.Supports(m) {
			return m, nil
		}
	}
	return "", wipeerr.New(wipeerr.NoSupportedMethod, "No supported erase methods found")
}

// secureEraseSetting is the Secure Erase Settings value passed to
// `nvme format`. Crypto and user-data erase differ only here.
func secureEraseSetting(m device.Method) int {
	switch m {
	case device.MethodCryptoErase:
		return 2
	case device.MethodSecureErase:
		return 1
	default:
		return 0
	}
}

var methodLabels = map[device.Method]string{
	device.MethodCryptoErase: "Crypto erase",
	device.MethodSecureErase: "Secure erase",
	device.MethodFormat:      "Format",
}

// BuildCommand synthesizes the nvme-cli invocation for method.
func BuildCommand(rec device.DeviceRecord, m device.Method, nvmeBinary string, sudo bool) Command {
	if nvmeBinary == "" {
		nvmeBinary = "nvme"
	}
	args := []string{"format", rec.Path}
	if rec.NamespaceID > 0 {
		args = append(args, "--namespace-id="+strconv.Itoa(rec.NamespaceID))
	}
	if ses := secureEraseSetting(m); ses > 0 {
		args = append(args, "--ses="+strconv.Itoa(ses))
	}
	args = append(args, "--force")

	program, argv := command.Privileged(sudo, nvmeBinary, args...)
	return Command{
		Program:     program,
		Args:        argv,
		Description: fmt.Sprintf("%s on %s", methodLabels[m], rec.Path),
	}
}

// minutesPerTiB is a coarse throughput model per method.
var minutesPerTiB = map[device.Method]float64{
	device.MethodCryptoErase: 0.5,
	device.MethodFormat:      2,
	device.MethodSecureErase: 5,
}

// UnknownDuration is reported when capacity is unknown.
const UnknownDuration = "Unknown (depends on capacity)"

// EstimateDuration returns a rough, display-only duration estimate.
func EstimateDuration(capacityBytes uint64, m device.Method) string {
	rate, ok := minutesPerTiB[m]
	if capacityBytes == 0 || !ok {
		return UnknownDuration
	}
	tib := float64(capacityBytes) / float64(uint64(1)<<40)
	minutes := int(math.Ceil(tib * rate))
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("~%d minutes", minutes)
}

var boilerplateWarnings = []string{
	"THIS OPERATION WILL PERMANENTLY DESTROY ALL DATA ON THE DEVICE",
	"This operation cannot be undone",
	"Ensure you have backed up any important data",
}

var methodWarnings = map[device.Method]string{
	device.MethodCryptoErase: "Crypto erase will destroy the media encryption key",
	device.MethodSecureErase: "Secure erase will overwrite all user data",
	device.MethodFormat:      "Format will remove all data and partition tables",
}

// Warnings assembles the fixed warnings, one method warning and every
// safety issue verbatim.
func Warnings(m device.Method, safetyIssues []string) []string {
	out := make([]string, 0, len(boilerplateWarnings)+1+len(safetyIssues))
	out = append(out, boilerplateWarnings...)
	if w, ok := methodWarnings[m]; ok {
		out = append(out, w)
	}
	return append(out, safetyIssues...)
}

// SelectDevice picks the device matching selector by serial or path, or the
// first device when selector is empty.
func SelectDevice(devices []device.DiscoveredDevice, selector string) (*device.DiscoveredDevice, error) {
	if len(devices) == 0 {
		return nil, wipeerr.New(wipeerr.DeviceUnavailable, "No devices found. Run collect phase first.")
	}
	if selector == "" {
		d := devices[0]
		return &d, nil
	}
	for i := range devices {
		if devices[i].Serial == selector || devices[i].Path == selector {
			d := devices[i]
			return &d, nil
		}
	}

	known := make([]string, 0, len(devices))
	for _, d := range devices {
		known = append(known, fmt.Sprintf("%s (%s)", d.Path, d.Serial))
	}
	return nil, wipeerr.WithHint(
		wipeerr.New(wipeerr.DeviceUnavailable, "No collected device matches %q", selector),
		"collected devices: "+strings.Join(known, ", "))
}
