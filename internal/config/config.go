// Package config provides configuration structures and loading for GoWipe.
package config

import "path/filepath"

// Config represents the complete application configuration.
type Config struct {
	State        StateConfig        `yaml:"state" mapstructure:"state"`
	Report       ReportConfig       `yaml:"report" mapstructure:"report"`
	Collect      CollectConfig      `yaml:"collect" mapstructure:"collect"`
	Device       DeviceConfig       `yaml:"device" mapstructure:"device"`
	Execution    ExecutionConfig    `yaml:"execution" mapstructure:"execution"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Safety       SafetyConfig       `yaml:"safety" mapstructure:"safety"`
	Audit        AuditConfig        `yaml:"audit" mapstructure:"audit"`
	Logging      LoggingConfig      `yaml:"logging" mapstructure:"logging"`
}

// StateConfig controls where the workflow state document lives.
type StateConfig struct {
	Dir  string `yaml:"dir" mapstructure:"dir"`
	File string `yaml:"file" mapstructure:"file"`
}

// Path returns the full path of the state document.
func (s StateConfig) Path() string {
	return filepath.Join(s.Dir, s.File)
}

// ReportConfig controls report output.
type ReportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// CollectConfig controls device discovery.
type CollectConfig struct {
	DeviceGlob  string `yaml:"device_glob" mapstructure:"device_glob"`
	Description string `yaml:"description" mapstructure:"description"`
}

// DeviceConfig selects the target device for planning.
type DeviceConfig struct {
	Select string `yaml:"select" mapstructure:"select"` // serial number or device path; empty = first device
}

// ExecutionConfig controls the destructive command invocation.
type ExecutionConfig struct {
	NVMeBinary          string `yaml:"nvme_binary" mapstructure:"nvme_binary"`
	UseSudo             bool   `yaml:"use_sudo" mapstructure:"use_sudo"`
	TimeoutSeconds      int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	ProbeTimeoutSeconds int    `yaml:"probe_timeout_seconds" mapstructure:"probe_timeout_seconds"`
}

// VerificationConfig controls post-erase sampling.
type VerificationConfig struct {
	SampleBytes    int  `yaml:"sample_bytes" mapstructure:"sample_bytes"`
	PreviewBytes   int  `yaml:"preview_bytes" mapstructure:"preview_bytes"`
	TimeoutSeconds int  `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	DirectIO       bool `yaml:"direct_io" mapstructure:"direct_io"`
}

// SafetyConfig controls the advisory pre-flight checks.
type SafetyConfig struct {
	MountsFile string `yaml:"mounts_file" mapstructure:"mounts_file"`
	LsofBinary string `yaml:"lsof_binary" mapstructure:"lsof_binary"`
}

// AuditConfig represents the optional MySQL audit ledger.
type AuditConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
}

// DatabaseConfig represents a MySQL database connection configuration.
type DatabaseConfig struct {
	Host               string `yaml:"host" mapstructure:"host"`
	Port               int    `yaml:"port" mapstructure:"port"`
	User               string `yaml:"user" mapstructure:"user"`
	Password           string `yaml:"password" mapstructure:"password"`
	Database           string `yaml:"database" mapstructure:"database"`
	TLS                string `yaml:"tls" mapstructure:"tls"` // disable, preferred, required
	MaxConnections     int    `yaml:"max_connections" mapstructure:"max_connections"`
	MaxIdleConnections int    `yaml:"max_idle_connections" mapstructure:"max_idle_connections"`
}

// LoggingConfig represents logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // json or text
	Output string `yaml:"output" mapstructure:"output"` // stdout, stderr, or file path
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		State: StateConfig{
			Dir:  "build",
			File: "state.json",
		},
		Report: ReportConfig{
			Dir: "build",
		},
		Collect: CollectConfig{
			DeviceGlob: "/dev/nvme*n*",
		},
		Execution: ExecutionConfig{
			NVMeBinary:          "nvme",
			UseSudo:             true,
			TimeoutSeconds:      3600,
			ProbeTimeoutSeconds: 5,
		},
		Verification: VerificationConfig{
			SampleBytes:    100 * 1024 * 1024,
			PreviewBytes:   64,
			TimeoutSeconds: 60,
			DirectIO:       true,
		},
		Safety: SafetyConfig{
			MountsFile: "/proc/mounts",
			LsofBinary: "lsof",
		},
		Audit: AuditConfig{
			Enabled: false,
			Database: DatabaseConfig{
				Port:               3306,
				TLS:                "preferred",
				MaxConnections:     4,
				MaxIdleConnections: 2,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}
