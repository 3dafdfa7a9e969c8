// Package device models NVMe targets and the erase methods they support.
package device

import (
	"fmt"
)

// Method is a sanitization method.
type Method string

const (
	MethodFormat      Method = "format"
	MethodSecureErase Method = "secure_erase"
	MethodCryptoErase Method = "crypto_erase"
)

// MethodPriority orders methods strongest first. Planning picks the first
// supported entry.
var MethodPriority = []Method{MethodCryptoErase, MethodSecureErase, MethodFormat}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodFormat, MethodSecureErase, MethodCryptoErase:
		return true
	}
	return false
}

// DeviceRecord identifies one physical target. The serial number is the
// key used across phases.
type DeviceRecord struct {
	Model       string `json:"model"`
	Serial      string `json:"serial"`
	Firmware    string `json:"firmware"`
	SectorCount uint64 `json:"sector_count"`
	SectorSize  uint64 `json:"sector_size"`
	Capacity    string `json:"capacity"`
	Path        string `json:"path"`
	NamespaceID int    `json:"namespace_id,omitempty"`
}

// CapacityBytes returns the raw capacity, 0 when unknown.
func (d DeviceRecord) CapacityBytes() uint64 {
	return d.SectorCount * d.SectorSize
}

// IdentifyAttributes are the controller identify fields that drive
// capability classification.
type IdentifyAttributes struct {
	// FNA is the Format NVM Attributes field.
	FNA uint32 `json:"fna"`
	// OACS is the Optional Admin Command Support field.
	OACS uint32 `json:"oacs"`
}

const (
	fnaCryptoErase = 0x4
	oacsFormatNVM  = 0x2
)

// EraseCapabilitySet lists the methods a device supports.
type EraseCapabilitySet struct {
	Format      bool `json:"format"`
	SecureErase bool `json:"secure_erase"`
	CryptoErase bool `json:"crypto_erase"`
}

// Classify derives capabilities from identify attributes. A nil attrs means
// the attributes were absent or unreadable. Format is always reported so a
// reachable device has at least one method.
func Classify(attrs *IdentifyAttributes) EraseCapabilitySet {
	caps := EraseCapabilitySet{Format: true}
	if attrs == nil {
		return caps
	}
	caps.CryptoErase = attrs.FNA&fnaCryptoErase != 0
	caps.SecureErase = attrs.OACS&oacsFormatNVM != 0
	return caps
}

// Supports reports whether m is in the set.
func (c EraseCapabilitySet) Supports(m Method) bool {
	switch m {
	case MethodFormat:
		return c.Format
	case MethodSecureErase:
		return c.SecureErase
	case MethodCryptoErase:
		return c.CryptoErase
	}
	return false
}

// Any reports whether at least one method is supported.
func (c EraseCapabilitySet) Any() bool {
	return c.Format || c.SecureErase || c.CryptoErase
}

// Supported lists supported methods in priority order.
func (c EraseCapabilitySet) Supported() []Method {
	var out []Method
	for _, m := range MethodPriority {
		if c.Supports(m) {
			out = append(out, m)
		}
	}
	return out
}

// DiscoveredDevice is a DeviceRecord with the facts gathered alongside it.
type DiscoveredDevice struct {
	DeviceRecord
	Attributes   *IdentifyAttributes `json:"attributes,omitempty"`
	EraseSupport EraseCapabilitySet  `json:"erase_support"`
	Description  string              `json:"description"`
}

// SystemInfo holds host facts, recorded as opaque strings.
type SystemInfo struct {
	SystemUUID    string `json:"system_uuid"`
	OSInfo        string `json:"os_info"`
	KernelVersion string `json:"kernel_version"`
}

// DefaultDescription is used when the operator gives none.
func DefaultDescription(model string) string {
	return fmt.Sprintf("NVMe device %s", model)
}

// FormatBytes renders a byte count with binary units, e.g. "931.5 GB".
func FormatBytes(n uint64) string {
	if n == 0 {
		return "Unknown"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	for _, u := range units {
		if v < 1024 {
			return fmt.Sprintf("%.1f %s", v, u)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.1f PB", v)
}
