// ABOUTME: Configuration loading and parsing for psychat-gateway
// ABOUTME: Supports YAML or TOML files with ${VAR} expansion, env overrides and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Environment variables read by ApplyEnv.
const (
	EnvUpstreamBaseURL   = "ANYTHINGLLM_API_BASE_URL"
	EnvUpstreamWorkspace = "ANYTHINGLLM_WORKSPACE_SLUG"
	EnvUpstreamAPIKey    = "ANYTHINGLLM_API_KEY"
	EnvUpstreamTimeout   = "ANYTHINGLLM_TIMEOUT"
	EnvDatabasePath      = "PSYCHAT_DB_PATH"
	EnvHTTPAddr          = "PSYCHAT_HTTP_ADDR"
	EnvConfigPath        = "PSYCHAT_CONFIG"
)

// Config represents the complete psychat-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Upstream  UpstreamConfig  `yaml:"upstream" toml:"upstream"`
	Stream    StreamConfig    `yaml:"stream" toml:"stream"`
	CORS      CORSConfig      `yaml:"cors" toml:"cors"`
	Feedback  FeedbackConfig  `yaml:"feedback" toml:"feedback"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds the HTTP listen address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
	HTTPS     bool   `yaml:"https" toml:"https"`   // serve :443 with tailnet certs
	Funnel    bool   `yaml:"funnel" toml:"funnel"` // public HTTPS via Funnel
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
	Path   string `yaml:"path" toml:"path"`
}

// UpstreamConfig holds the AnythingLLM workspace connection
type UpstreamConfig struct {
	BaseURL       string        `yaml:"base_url" toml:"base_url"`
	WorkspaceSlug string        `yaml:"workspace_slug" toml:"workspace_slug"`
	APIKey        string        `yaml:"api_key" toml:"api_key"`
	Timeout       time.Duration `yaml:"-" toml:"-"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// StreamConfig holds relay pacing
type StreamConfig struct {
	ChunkDelay time.Duration `yaml:"-" toml:"-"`

	ChunkDelayRaw string `yaml:"chunk_delay" toml:"chunk_delay"`
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// FeedbackConfig holds duplicate-feedback suppression settings
type FeedbackConfig struct {
	DedupeWindow time.Duration `yaml:"-" toml:"-"`

	DedupeWindowRaw string `yaml:"dedupe_window" toml:"dedupe_window"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // "text" or "json"
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{HTTPAddr: "127.0.0.1:8000"},
		Database: DatabaseConfig{Driver: "sqlite", Path: "./data/psychat.db"},
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:3001/api",
			Timeout: 120 * time.Second,
		},
		Stream:   StreamConfig{ChunkDelay: 50 * time.Millisecond},
		CORS:     CORSConfig{AllowedOrigins: []string{"*"}},
		Feedback: FeedbackConfig{DedupeWindow: 5 * time.Minute},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Metrics:  MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, unset keys
// keep their defaults, and the ANYTHINGLLM_* / PSYCHAT_* overrides win over
// the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expandedData, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Resolve loads path, or $PSYCHAT_CONFIG when path is empty, or falls back
// to defaults plus environment when neither names a file.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		return Load(path)
	}

	cfg := Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// ApplyEnv overlays environment overrides using lookup (os.LookupEnv in production).
// ANYTHINGLLM_TIMEOUT accepts a duration ("90s") or whole seconds ("90").
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvUpstreamBaseURL); ok && v != "" {
		c.Upstream.BaseURL = v
	}
	if v, ok := lookup(EnvUpstreamWorkspace); ok {
		c.Upstream.WorkspaceSlug = v
	}
	if v, ok := lookup(EnvUpstreamAPIKey); ok {
		c.Upstream.APIKey = v
	}
	if v, ok := lookup(EnvUpstreamTimeout); ok && v != "" {
		d, err := parseTimeout(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUpstreamTimeout, err)
		}
		c.Upstream.Timeout = d
	}
	if v, ok := lookup(EnvDatabasePath); ok && v != "" {
		c.Database.Path = v
	}
	if v, ok := lookup(EnvHTTPAddr); ok && v != "" {
		c.Server.HTTPAddr = v
	}
	return nil
}

func parseTimeout(v string) (time.Duration, error) {
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q", v)
	}
	return d, nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
// A missing upstream workspace is not an error here: the gateway starts and
// answers chat turns with service_not_configured.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}

	// Tailscale requires a hostname
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case "", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if c.Stream.ChunkDelay < 0 {
		return fmt.Errorf("stream.chunk_delay must not be negative")
	}
	if c.Feedback.DedupeWindow < 0 {
		return fmt.Errorf("feedback.dedupe_window must not be negative")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Upstream.TimeoutRaw != "" {
		cfg.Upstream.Timeout, err = parseTimeout(cfg.Upstream.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing upstream.timeout: %w", err)
		}
	}

	if cfg.Stream.ChunkDelayRaw != "" {
		cfg.Stream.ChunkDelay, err = time.ParseDuration(cfg.Stream.ChunkDelayRaw)
		if err != nil {
			return fmt.Errorf("parsing stream.chunk_delay %q: %w", cfg.Stream.ChunkDelayRaw, err)
		}
	}

	if cfg.Feedback.DedupeWindowRaw != "" {
		cfg.Feedback.DedupeWindow, err = time.ParseDuration(cfg.Feedback.DedupeWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing feedback.dedupe_window %q: %w", cfg.Feedback.DedupeWindowRaw, err)
		}
	}

	return nil
}
