// Package config provides unified configuration for the padsync server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the padsync server.
type Config struct {
	// DataDir is the base directory for all data files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Geometry configuration
	Geometry GeometryConfig `json:"geometry" yaml:"geometry"`

	// History configuration
	History HistoryConfig `json:"history" yaml:"history"`

	// Backup configuration
	Backup BackupConfig `json:"backup" yaml:"backup"`

	// Storage configuration (backup target)
	Storage StorageConfig `json:"storage" yaml:"storage"`
}

// ServerConfig holds the websocket server configuration.
type ServerConfig struct {
	// Addr is the listen address for the socket endpoint
	Addr string `json:"addr" yaml:"addr"`

	// ReadTimeout is the read deadline applied after a pong
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the per-message write deadline
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`

	// PingInterval is the interval between keepalive pings
	PingInterval time.Duration `json:"ping_interval" yaml:"ping_interval"`

	// EventBuffer is the per-connection buffered event channel size.
	// A connection that falls this many events behind starts losing
	// events (delivery is at-most-once; it recovers on reconnect).
	EventBuffer int `json:"event_buffer" yaml:"event_buffer"`
}

// GeometryConfig holds the geometry store configuration.
type GeometryConfig struct {
	// BatchSize is the maximum number of track points per streamed batch
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// HistoryConfig holds the history log configuration.
type HistoryConfig struct {
	// Retain is the number of history entries kept per pad
	Retain int `json:"retain" yaml:"retain"`
}

// BackupConfig holds the pad backup daemon configuration.
type BackupConfig struct {
	// Enabled controls whether the backup daemon runs
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Interval is the time between snapshot sweeps of dirty pads
	Interval time.Duration `json:"interval" yaml:"interval"`
}

// StorageConfig holds object storage configuration for backups.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/padsync",
		Server: ServerConfig{
			Addr:         ":8090",
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			PingInterval: 25 * time.Second,
			EventBuffer:  256,
		},
		Geometry: GeometryConfig{
			BatchSize: 1000,
		},
		History: HistoryConfig{
			Retain: 100,
		},
		Backup: BackupConfig{
			Enabled:  false,
			Interval: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Type: "local",
			Path: "",
		},
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/padsync"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "backups")
	}
}

// PadDBPath returns the path to the pad database (objects + history).
func (c *Config) PadDBPath() string {
	return filepath.Join(c.DataDir, "pads.db")
}

// GeometryDBPath returns the path to the geometry database.
func (c *Config) GeometryDBPath() string {
	return filepath.Join(c.DataDir, "geometry.db")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if c.Server.EventBuffer <= 0 {
		return fmt.Errorf("server.event_buffer must be positive, got %d", c.Server.EventBuffer)
	}

	if c.Geometry.BatchSize <= 0 {
		return fmt.Errorf("geometry.batch_size must be positive, got %d", c.Geometry.BatchSize)
	}

	if c.History.Retain <= 0 {
		return fmt.Errorf("history.retain must be positive, got %d", c.History.Retain)
	}

	if c.Storage.Type != "local" && c.Storage.Type != "s3" {
		return fmt.Errorf("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}

	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when storage type is s3")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the PADSYNC_ prefix.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PADSYNC_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PADSYNC_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PADSYNC_GEOMETRY_BATCH_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Geometry.BatchSize)
	}
	if v := os.Getenv("PADSYNC_HISTORY_RETAIN"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.History.Retain)
	}
	if v := os.Getenv("PADSYNC_BACKUP_ENABLED"); v != "" {
		cfg.Backup.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PADSYNC_BACKUP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Backup.Interval = d
		}
	}
	if v := os.Getenv("PADSYNC_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("PADSYNC_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PADSYNC_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("PADSYNC_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("PADSYNC_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.Storage.Path,
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
