// Package config loads the service configuration from YAML and fills
// defaults so zero-value configs are runnable.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Capture  CaptureConfig  `yaml:"capture"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Server   ServerConfig   `yaml:"server"`
	Audit    AuditConfig    `yaml:"audit"`
	Log      LogConfig      `yaml:"log"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	MemoryLimit     int64         `yaml:"memory_limit"`
	RecycleInterval time.Duration `yaml:"recycle_interval"`
	BlockResources  []string      `yaml:"block_resources"`
	Mode            string        `yaml:"mode"` // headless | headful
	XvfbDisplay     string        `yaml:"xvfb_display"`
}

// CaptureConfig bounds tree acquisition.
type CaptureConfig struct {
	MaxDepth          int           `yaml:"max_depth"`
	NodeWarnThreshold int           `yaml:"node_warn_threshold"`
	Timeout           time.Duration `yaml:"timeout"`
}

// PipelineConfig tunes compaction.
type PipelineConfig struct {
	MinTextLength int  `yaml:"min_text_length"`
	Occlusion     bool `yaml:"occlusion"`
	BucketStates  bool `yaml:"bucket_states"`
}

// SnapshotConfig controls serialization caching.
type SnapshotConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Listen string `yaml:"listen"`
}

// AuditConfig configures the action audit log.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

// LoadFile reads a YAML config file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a runnable configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.Mode == "" {
		c.Browser.Mode = "headless"
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Capture.MaxDepth <= 0 {
		c.Capture.MaxDepth = 100
	}
	if c.Capture.NodeWarnThreshold <= 0 {
		c.Capture.NodeWarnThreshold = 50000
	}
	if c.Capture.Timeout <= 0 {
		c.Capture.Timeout = 8 * time.Second
	}
	if c.Pipeline.MinTextLength <= 0 {
		c.Pipeline.MinTextLength = 3
	}
	if c.Snapshot.MaxAge <= 0 {
		c.Snapshot.MaxAge = 30 * time.Second
	}
	if c.Server.Listen == "" {
		c.Server.Listen = ":8942"
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "domsnap_audit.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
