package domsnap

import (
	"github.com/hazyhaar/domsnap/internal/config"
)

// Config is the top-level service configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// CaptureConfig bounds tree acquisition.
type CaptureConfig = config.CaptureConfig

// PipelineConfig tunes compaction.
type PipelineConfig = config.PipelineConfig

// SnapshotConfig controls serialization caching.
type SnapshotConfig = config.SnapshotConfig

// ServerConfig configures the HTTP surface.
type ServerConfig = config.ServerConfig

// AuditConfig configures the action audit log.
type AuditConfig = config.AuditConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a runnable configuration.
func DefaultConfig() *Config {
	return config.Default()
}
