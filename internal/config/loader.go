package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from the specified file path.
// It supports YAML files and performs environment variable substitution.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadOrDefault behaves like Load, but returns the default configuration when
// configPath does not exist. Any other read error is returned.
func LoadOrDefault(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg := DefaultConfig()
		substituteEnvVars(cfg)
		return cfg, nil
	}
	return Load(configPath)
}

// LoadFromViper creates a Config from an existing Viper instance.
// Useful for testing or when Viper is configured externally.
func LoadFromViper(v *viper.Viper) (*Config, error) {
	cfg := DefaultConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	substituteEnvVars(cfg)
	return cfg, nil
}

// envVarPattern matches ${VAR_NAME} or $VAR_NAME patterns
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable values.
func substituteEnvVars(cfg *Config) {
	cfg.State.Dir = expandEnvVar(cfg.State.Dir)
	cfg.Report.Dir = expandEnvVar(cfg.Report.Dir)
	cfg.Device.Select = expandEnvVar(cfg.Device.Select)

	db := &cfg.Audit.Database
	db.Host = expandEnvVar(db.Host)
	db.User = expandEnvVar(db.User)
	db.Password = expandEnvVar(db.Password)
	db.Database = expandEnvVar(db.Database)

	cfg.Logging.Output = expandEnvVar(cfg.Logging.Output)
}

// expandEnvVar expands environment variables in the format ${VAR} or $VAR.
func expandEnvVar(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// Return original if env var not found
		return match
	})
}

// Overrides contains CLI flag values that take precedence over the file.
// Zero values mean "not set".
type Overrides struct {
	LogLevel       string
	LogFormat      string
	StateDir       string
	Device         string
	TimeoutSeconds int
	SampleBytes    int
	NoSudo         bool
}

// ApplyOverrides applies CLI flag overrides to the configuration.
// Only non-zero/non-empty values are applied.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		c.Logging.Format = o.LogFormat
	}
	if o.StateDir != "" {
		c.State.Dir = o.StateDir
		c.Report.Dir = o.StateDir
	}
	if o.Device != "" {
		c.Device.Select = o.Device
	}
	if o.TimeoutSeconds > 0 {
		c.Execution.TimeoutSeconds = o.TimeoutSeconds
	}
	if o.SampleBytes > 0 {
		c.Verification.SampleBytes = o.SampleBytes
	}
	if o.NoSudo {
		c.Execution.UseSudo = false
	}
}
