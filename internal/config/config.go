// Package config loads the single settings resource every pipeline step
// consumes. Settings live in one YAML file whose path is given on the
// command line; the platform credential is the only value sourced from the
// environment, so the settings file stays safe to commit.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/soil-moisture-etl/internal/domain"
)

// Duration wraps time.Duration with Go-style YAML parsing ("30s", "2m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Platform configures the external geospatial platform client.
type Platform struct {
	BaseURL    string   `yaml:"base_url"`
	Timeout    Duration `yaml:"timeout"`
	CacheSize  int      `yaml:"cache_size"`
	MaxRetries int      `yaml:"max_retries"`
	TokenFile  string   `yaml:"token_file"`

	// Token is resolved from the environment or token file, never from the
	// settings file itself.
	Token string `yaml:"-"`
}

// Log configures the slog handler shared by every step.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds all pipeline settings, populated from the YAML settings file.
type Config struct {
	ProjectName string `yaml:"project_name"`
	WorkDir     string `yaml:"wrk_dir"`
	DataDir     string `yaml:"data_dir"`
	DataSource  string `yaml:"data_source"` // ICOS or ISMN

	// ISMN-specific selection.
	NetworkName   string    `yaml:"network_name"`
	SWCDepthRange []float64 `yaml:"swc_depth_range"` // [from, to] metres

	Variables          []string `yaml:"variables"`
	OverwriteVariables bool     `yaml:"overwrite_variables"`

	InterpolateIndex       bool `yaml:"interpolate_index"`
	InterpolationLimitDays int  `yaml:"interpolation_limit_days"`

	Platform Platform `yaml:"platform"`
	Log      Log      `yaml:"log"`

	// MetricsFile is where the run's prometheus metrics are written in
	// textfile-collector format. Empty disables the export.
	MetricsFile string `yaml:"metrics_file"`
}

// Load reads and validates the settings file, applying defaults where
// unset. A .env file next to the working directory is honored for the
// platform token.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &domain.ConfigError{Field: "settings", Err: err}
	}

	cfg := &Config{
		InterpolateIndex:       true,
		InterpolationLimitDays: 30,
		Platform: Platform{
			Timeout:    Duration(30 * time.Second),
			CacheSize:  1000,
			MaxRetries: 4,
		},
		Log: Log{Level: "info", Format: "text"},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &domain.ConfigError{Field: "settings", Err: err}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ProjectName == "" {
		return &domain.ConfigError{Field: "project_name"}
	}
	if c.WorkDir == "" {
		return &domain.ConfigError{Field: "wrk_dir"}
	}
	if c.DataSource == "" {
		return &domain.ConfigError{Field: "data_source"}
	}
	if _, ok := domain.ParseNetwork(c.DataSource); !ok {
		return &domain.ConfigError{
			Field: "data_source",
			Err:   fmt.Errorf("must be ICOS or ISMN, got %q", c.DataSource),
		}
	}
	if len(c.SWCDepthRange) != 0 && len(c.SWCDepthRange) != 2 {
		return &domain.ConfigError{
			Field: "swc_depth_range",
			Err:   fmt.Errorf("expected [from, to], got %d values", len(c.SWCDepthRange)),
		}
	}
	if c.InterpolationLimitDays < 0 {
		return &domain.ConfigError{
			Field: "interpolation_limit_days",
			Err:   errors.New("must not be negative"),
		}
	}
	return nil
}

// Network returns the configured data source as a typed network.
func (c *Config) Network() domain.Network {
	n, _ := domain.ParseNetwork(c.DataSource)
	return n
}

// RequireDataDir verifies the raw archive path exists and is readable.
// Readers call this before parsing; a bad path aborts the step.
func (c *Config) RequireDataDir() error {
	if c.DataDir == "" {
		return &domain.ConfigError{Field: "data_dir"}
	}
	if _, err := os.Stat(c.DataDir); err != nil {
		return &domain.ConfigError{Field: "data_dir", Err: err}
	}
	return nil
}

// RequireWorkDir verifies the working directory exists, creating it when
// missing so a fresh checkout can run end to end.
func (c *Config) RequireWorkDir() error {
	if err := os.MkdirAll(c.WorkDir, 0o755); err != nil {
		return &domain.ConfigError{Field: "wrk_dir", Err: err}
	}
	return nil
}

// RequireVariables verifies the compile step has a covariate list.
func (c *Config) RequireVariables() error {
	if len(c.Variables) == 0 {
		return &domain.ConfigError{Field: "variables"}
	}
	return nil
}

// ResolveToken loads the platform credential from PLATFORM_TOKEN or, when
// unset, from the configured token file. The compile step requires it; the
// readers never touch the platform.
func (c *Config) ResolveToken() error {
	if tok := strings.TrimSpace(os.Getenv("PLATFORM_TOKEN")); tok != "" {
		c.Platform.Token = tok
		return nil
	}
	if c.Platform.TokenFile != "" {
		data, err := os.ReadFile(c.Platform.TokenFile)
		if err != nil {
			return &domain.ConfigError{Field: "platform.token_file", Err: err}
		}
		if tok := strings.TrimSpace(string(data)); tok != "" {
			c.Platform.Token = tok
			return nil
		}
	}
	return &domain.ConfigError{
		Field: "platform.token_file",
		Err:   errors.New("no credential: set PLATFORM_TOKEN or platform.token_file"),
	}
}

// DepthRange returns the configured sensor depth window, defaulting to the
// top 10 cm when unset.
func (c *Config) DepthRange() (from, to float64) {
	if len(c.SWCDepthRange) == 2 {
		return c.SWCDepthRange[0], c.SWCDepthRange[1]
	}
	return 0, 0.1
}
