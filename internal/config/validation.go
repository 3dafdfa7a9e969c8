package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// Validate checks the configuration for required fields and valid values.
func (c *Config) Validate() error {
	var errors ValidationErrors

	errors = append(errors, c.validateState()...)
	errors = append(errors, c.validateExecution()...)
	errors = append(errors, c.validateVerification()...)

	if c.Audit.Enabled {
		errors = append(errors, c.validateDatabase("audit.database", &c.Audit.Database)...)
	}

	errors = append(errors, c.validateLogging()...)

	if len(errors) > 0 {
		return errors
	}
	return nil
}

func (c *Config) validateState() ValidationErrors {
	var errors ValidationErrors

	if c.State.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "state.dir",
			Message: "dir is required",
		})
	}

	if c.State.File == "" {
		errors = append(errors, ValidationError{
			Field:   "state.file",
			Message: "file is required",
		})
	}

	if c.Report.Dir == "" {
		errors = append(errors, ValidationError{
			Field:   "report.dir",
			Message: "dir is required",
		})
	}

	return errors
}

func (c *Config) validateExecution() ValidationErrors {
	var errors ValidationErrors

	if c.Execution.NVMeBinary == "" {
		errors = append(errors, ValidationError{
			Field:   "execution.nvme_binary",
			Message: "nvme_binary is required",
		})
	}

	if c.Execution.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "execution.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}

	if c.Execution.ProbeTimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "execution.probe_timeout_seconds",
			Message: "probe_timeout_seconds must be positive",
		})
	}

	return errors
}

func (c *Config) validateVerification() ValidationErrors {
	var errors ValidationErrors

	if c.Verification.SampleBytes <= 0 {
		errors = append(errors, ValidationError{
			Field:   "verification.sample_bytes",
			Message: "sample_bytes must be positive",
		})
	}

	if c.Verification.PreviewBytes < 0 {
		errors = append(errors, ValidationError{
			Field:   "verification.preview_bytes",
			Message: "preview_bytes cannot be negative",
		})
	}

	if c.Verification.TimeoutSeconds <= 0 {
		errors = append(errors, ValidationError{
			Field:   "verification.timeout_seconds",
			Message: "timeout_seconds must be positive",
		})
	}

	if c.Execution.TimeoutSeconds > 0 && c.Verification.TimeoutSeconds >= c.Execution.TimeoutSeconds {
		errors = append(errors, ValidationError{
			Field:   "verification.timeout_seconds",
			Message: "timeout_seconds must be shorter than execution.timeout_seconds",
		})
	}

	return errors
}

func (c *Config) validateDatabase(prefix string, db *DatabaseConfig) ValidationErrors {
	var errors ValidationErrors

	if db.Host == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".host",
			Message: "host is required",
		})
	}

	if db.Port <= 0 || db.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Message: "port must be between 1 and 65535",
		})
	}

	if db.User == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Message: "user is required",
		})
	}

	if db.Database == "" {
		errors = append(errors, ValidationError{
			Field:   prefix + ".database",
			Message: "database name is required",
		})
	}

	validTLS := map[string]bool{"disable": true, "preferred": true, "required": true, "": true}
	if !validTLS[db.TLS] {
		errors = append(errors, ValidationError{
			Field:   prefix + ".tls",
			Message: "tls must be 'disable', 'preferred', or 'required'",
		})
	}

	if db.MaxConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_connections",
			Message: "max_connections cannot be negative",
		})
	}

	if db.MaxIdleConnections < 0 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".max_idle_connections",
			Message: "max_idle_connections cannot be negative",
		})
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[c.Logging.Level] {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Message: "level must be 'debug', 'info', 'warn', or 'error'",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "": true}
	if !validFormats[c.Logging.Format] {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Message: "format must be 'json' or 'text'",
		})
	}

	return errors
}
