// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logflow/alphaflow/pkg/discovery"
	lferrors "github.com/logflow/alphaflow/pkg/errors"
)

// Config holds all alphaflow configuration.
type Config struct {
	Version int `yaml:"version"`

	Discovery DiscoveryConfig `yaml:"discovery"`
	Columns   ColumnsConfig   `yaml:"columns"`
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DiscoveryConfig holds default discovery options.
type DiscoveryConfig struct {
	NodeThreshold int64  `yaml:"node_threshold"`
	EdgeThreshold int64  `yaml:"edge_threshold"`
	StartName     string `yaml:"start_name"`
	EndName       string `yaml:"end_name"`

	// UseDuckDB computes variants of CSV and Parquet logs in SQL.
	UseDuckDB bool `yaml:"use_duckdb"`

	// Workers bounds concurrent file loads; 0 means one per file.
	Workers int `yaml:"workers"`
}

// Options converts the section to engine options.
func (d DiscoveryConfig) Options() discovery.Options {
	return discovery.Options{
		Thresholds: discovery.Thresholds{Node: d.NodeThreshold, Edge: d.EdgeThreshold},
		StartName:  d.StartName,
		EndName:    d.EndName,
	}
}

// ColumnsConfig names the event log columns for tabular formats.
type ColumnsConfig struct {
	CaseID          string `yaml:"case_id"`
	Activity        string `yaml:"activity"`
	Timestamp       string `yaml:"timestamp"`
	Resource        string `yaml:"resource"`
	TimestampFormat string `yaml:"timestamp_format"`
	Delimiter       string `yaml:"delimiter"`
}

// ServerConfig for the HTTP server.
type ServerConfig struct {
	Port          int      `yaml:"port"`
	Host          string   `yaml:"host"`
	MaxUploadSize string   `yaml:"max_upload_size"`
	CORSOrigins   []string `yaml:"cors_origins"`

	// StoreDir holds uploaded logs and their index.
	StoreDir string `yaml:"store_dir"`
}

// CacheConfig for the Redis result cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

// StorageConfig for s3:// inputs.
type StorageConfig struct {
	Region       string `yaml:"region"`
	Endpoint     string `yaml:"endpoint"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
	TempDir      string `yaml:"temp_dir"`
}

// TelemetryConfig for OTLP tracing.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
	Insecure    bool    `yaml:"insecure"`
}

// LoggingConfig for the process logger.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		Discovery: DiscoveryConfig{
			StartName: discovery.DefaultStartName,
			EndName:   discovery.DefaultEndName,
		},
		Columns: ColumnsConfig{
			CaseID:          "case:concept:name",
			Activity:        "concept:name",
			Timestamp:       "time:timestamp",
			Resource:        "org:resource",
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			Delimiter:       ",",
		},
		Server: ServerConfig{
			Port:          8080,
			Host:          "localhost",
			MaxUploadSize: "64MB",
			CORSOrigins:   []string{"*"},
			StoreDir:      filepath.Join(os.TempDir(), "alphaflow", "logs"),
		},
		Cache: CacheConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			Prefix:  "alphaflow:",
			TTL:     24 * time.Hour,
		},
		Storage: StorageConfig{
			Region:  "us-east-1",
			TempDir: filepath.Join(os.TempDir(), "alphaflow"),
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "alphaflow",
			SampleRatio: 1.0,
			Insecure:    true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Validate checks values the engine would reject later.
func (c *Config) Validate() error {
	if err := c.Discovery.Options().Validate(); err != nil {
		return err
	}
	if c.Discovery.StartName == c.Discovery.EndName {
		return lferrors.New(lferrors.CodeNameCollision, "start and end names must differ").
			WithContext("name", c.Discovery.StartName)
	}
	if len(c.Columns.Delimiter) != 1 {
		return lferrors.New(lferrors.CodeInvalidFormat, "delimiter must be a single byte").
			WithContext("delimiter", c.Columns.Delimiter)
	}
	if _, err := ParseSize(c.Server.MaxUploadSize); err != nil {
		return err
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return lferrors.Newf(lferrors.CodeInvalidFormat, "sample ratio %g outside [0,1]", c.Telemetry.SampleRatio)
	}
	return nil
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	paths  []string // Paths that were loaded
	search []string
}

// NewManager creates a new configuration manager that searches the standard
// system, user and project locations.
func NewManager() *Manager {
	return &Manager{
		config: Default(),
		search: defaultConfigPaths(),
	}
}

// NewManagerWithPaths creates a manager that only reads the given files, in
// order.
func NewManagerWithPaths(paths ...string) *Manager {
	return &Manager{
		config: Default(),
		search: paths,
	}
}

// Load loads configuration from all sources in priority order.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			// Ignore missing files, but fail on broken ones
			if !os.IsNotExist(err) {
				return lferrors.Wrap(err, lferrors.CodeInvalidFormat, "failed to load config").
					WithContext("path", path)
			}
		} else {
			m.paths = append(m.paths, path)
		}
	}

	m.loadEnv()

	return m.config.Validate()
}

// defaultConfigPaths returns config file paths in priority order.
func defaultConfigPaths() []string {
	var paths []string

	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/alphaflow/config.yaml")
	}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".alphaflow", "config.yaml"))
	}

	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".alphaflow.yaml"))
	}

	return paths
}

// loadFile loads a single config file and merges it.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var partial Config
	if err := yaml.Unmarshal(data, &partial); err != nil {
		return err
	}

	m.merge(&partial)
	return nil
}

// merge merges non-zero values from src into config.
func (m *Manager) merge(src *Config) {
	dst := m.config

	// Discovery
	if src.Discovery.NodeThreshold != 0 {
		dst.Discovery.NodeThreshold = src.Discovery.NodeThreshold
	}
	if src.Discovery.EdgeThreshold != 0 {
		dst.Discovery.EdgeThreshold = src.Discovery.EdgeThreshold
	}
	setString(&dst.Discovery.StartName, src.Discovery.StartName)
	setString(&dst.Discovery.EndName, src.Discovery.EndName)
	if src.Discovery.UseDuckDB {
		dst.Discovery.UseDuckDB = true
	}
	if src.Discovery.Workers != 0 {
		dst.Discovery.Workers = src.Discovery.Workers
	}

	// Columns
	setString(&dst.Columns.CaseID, src.Columns.CaseID)
	setString(&dst.Columns.Activity, src.Columns.Activity)
	setString(&dst.Columns.Timestamp, src.Columns.Timestamp)
	setString(&dst.Columns.Resource, src.Columns.Resource)
	setString(&dst.Columns.TimestampFormat, src.Columns.TimestampFormat)
	setString(&dst.Columns.Delimiter, src.Columns.Delimiter)

	// Server
	if src.Server.Port != 0 {
		dst.Server.Port = src.Server.Port
	}
	setString(&dst.Server.Host, src.Server.Host)
	setString(&dst.Server.MaxUploadSize, src.Server.MaxUploadSize)
	if len(src.Server.CORSOrigins) > 0 {
		dst.Server.CORSOrigins = src.Server.CORSOrigins
	}
	setString(&dst.Server.StoreDir, src.Server.StoreDir)

	// Cache
	if src.Cache.Enabled {
		dst.Cache.Enabled = true
	}
	setString(&dst.Cache.Addr, src.Cache.Addr)
	setString(&dst.Cache.Password, src.Cache.Password)
	if src.Cache.DB != 0 {
		dst.Cache.DB = src.Cache.DB
	}
	setString(&dst.Cache.Prefix, src.Cache.Prefix)
	if src.Cache.TTL != 0 {
		dst.Cache.TTL = src.Cache.TTL
	}

	// Storage
	setString(&dst.Storage.Region, src.Storage.Region)
	setString(&dst.Storage.Endpoint, src.Storage.Endpoint)
	setString(&dst.Storage.AccessKey, src.Storage.AccessKey)
	setString(&dst.Storage.SecretKey, src.Storage.SecretKey)
	setString(&dst.Storage.TempDir, src.Storage.TempDir)
	if src.Storage.UsePathStyle {
		dst.Storage.UsePathStyle = true
	}

	// Telemetry
	if src.Telemetry.Enabled {
		dst.Telemetry.Enabled = true
	}
	setString(&dst.Telemetry.Endpoint, src.Telemetry.Endpoint)
	setString(&dst.Telemetry.ServiceName, src.Telemetry.ServiceName)
	if src.Telemetry.SampleRatio != 0 {
		dst.Telemetry.SampleRatio = src.Telemetry.SampleRatio
	}

	// Logging
	setString(&dst.Logging.Level, src.Logging.Level)
	if src.Logging.JSON {
		dst.Logging.JSON = true
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// loadEnv loads configuration from ALPHAFLOW_* environment variables.
func (m *Manager) loadEnv() {
	c := m.config

	if v, ok := envInt64("ALPHAFLOW_NODE_THRESHOLD"); ok {
		c.Discovery.NodeThreshold = v
	}
	if v, ok := envInt64("ALPHAFLOW_EDGE_THRESHOLD"); ok {
		c.Discovery.EdgeThreshold = v
	}
	if v, ok := envInt64("ALPHAFLOW_PORT"); ok {
		c.Server.Port = int(v)
	}
	if v := os.Getenv("ALPHAFLOW_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("ALPHAFLOW_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
		c.Cache.Enabled = true
	}
	if v := os.Getenv("ALPHAFLOW_S3_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
	}
	if v := os.Getenv("ALPHAFLOW_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
		c.Telemetry.Enabled = true
	}
	if v := os.Getenv("ALPHAFLOW_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ALPHAFLOW_LOG_JSON"); v != "" {
		c.Logging.JSON, _ = strconv.ParseBool(v)
	}
}

func envInt64(key string) (int64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Save writes the current config to path.
func (m *Manager) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(m.config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ParseSize parses sizes like "64MB", "1GB" or "512" (bytes).
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, lferrors.New(lferrors.CodeInvalidFormat, "empty size")
	}

	units := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	mult := int64(1)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			mult = u.mult
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, lferrors.New(lferrors.CodeInvalidFormat, fmt.Sprintf("invalid size %q", s))
	}
	return n * mult, nil
}

// Global instance
var (
	globalManager *Manager
	globalOnce    sync.Once
	globalErr     error
)

// Global returns the global configuration manager and the error, if any,
// from its first load.
func Global() (*Manager, error) {
	globalOnce.Do(func() {
		globalManager = NewManager()
		globalErr = globalManager.Load()
	})
	return globalManager, globalErr
}
