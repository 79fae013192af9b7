// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, overrides and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// clearEnv unsets every override so the host environment cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvUpstreamBaseURL, EnvUpstreamWorkspace, EnvUpstreamAPIKey,
		EnvUpstreamTimeout, EnvDatabasePath, EnvHTTPAddr, EnvConfigPath,
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"

database:
  driver: "sqlite3"
  path: "./test.db"

upstream:
  base_url: "http://llm.internal:3001/api"
  workspace_slug: "care"
  api_key: "k-123"
  timeout: "45s"

stream:
  chunk_delay: "20ms"

cors:
  allowed_origins:
    - "https://chat.example.org"

feedback:
  dedupe_window: "10m"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/internal/metrics"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Driver != "sqlite3" || cfg.Database.Path != "./test.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Upstream.BaseURL != "http://llm.internal:3001/api" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.WorkspaceSlug != "care" || cfg.Upstream.APIKey != "k-123" {
		t.Errorf("Upstream = %+v", cfg.Upstream)
	}
	if cfg.Upstream.Timeout != 45*time.Second {
		t.Errorf("Upstream.Timeout = %v, want 45s", cfg.Upstream.Timeout)
	}
	if cfg.Stream.ChunkDelay != 20*time.Millisecond {
		t.Errorf("Stream.ChunkDelay = %v, want 20ms", cfg.Stream.ChunkDelay)
	}
	if len(cfg.CORS.AllowedOrigins) != 1 || cfg.CORS.AllowedOrigins[0] != "https://chat.example.org" {
		t.Errorf("CORS.AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.Feedback.DedupeWindow != 10*time.Minute {
		t.Errorf("Feedback.DedupeWindow = %v, want 10m", cfg.Feedback.DedupeWindow)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/internal/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.toml", `
[server]
http_addr = "127.0.0.1:9000"

[database]
path = "/var/lib/psychat/psychat.db"

[upstream]
workspace_slug = "care"
timeout = "30"

[stream]
chunk_delay = "0s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "/var/lib/psychat/psychat.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("Upstream.Timeout = %v, want 30s (bare seconds)", cfg.Upstream.Timeout)
	}
	if cfg.Stream.ChunkDelay != 0 {
		t.Errorf("Stream.ChunkDelay = %v, want 0", cfg.Stream.ChunkDelay)
	}

	// Sections absent from the file keep their defaults
	if cfg.Upstream.BaseURL != "http://localhost:3001/api" {
		t.Errorf("Upstream.BaseURL = %q, want default", cfg.Upstream.BaseURL)
	}
	if cfg.Feedback.DedupeWindow != 5*time.Minute {
		t.Errorf("Feedback.DedupeWindow = %v, want default 5m", cfg.Feedback.DedupeWindow)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, want default sqlite", cfg.Database.Driver)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_PSYCHAT_KEY", "from-env")

	path := writeConfig(t, "config.yaml", `
upstream:
  workspace_slug: "care"
  api_key: "${TEST_PSYCHAT_KEY}"
  base_url: "${TEST_PSYCHAT_UNSET_VAR}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upstream.APIKey != "from-env" {
		t.Errorf("Upstream.APIKey = %q, want %q", cfg.Upstream.APIKey, "from-env")
	}
	if cfg.Upstream.BaseURL != "" {
		t.Errorf("Upstream.BaseURL = %q, want empty for unset variable", cfg.Upstream.BaseURL)
	}
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvUpstreamWorkspace, "override-ws")
	t.Setenv(EnvUpstreamTimeout, "15s")
	t.Setenv(EnvDatabasePath, "/tmp/override.db")
	t.Setenv(EnvHTTPAddr, ":9999")

	path := writeConfig(t, "config.yaml", `
server:
  http_addr: ":8000"
database:
  path: "./file.db"
upstream:
  workspace_slug: "file-ws"
  timeout: "60s"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Upstream.WorkspaceSlug != "override-ws" {
		t.Errorf("Upstream.WorkspaceSlug = %q", cfg.Upstream.WorkspaceSlug)
	}
	if cfg.Upstream.Timeout != 15*time.Second {
		t.Errorf("Upstream.Timeout = %v", cfg.Upstream.Timeout)
	}
	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Server.HTTPAddr != ":9999" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
}

func TestResolve_EnvOnly(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvUpstreamBaseURL, "http://anythingllm:3001/api")
	t.Setenv(EnvUpstreamWorkspace, "care")
	t.Setenv(EnvUpstreamAPIKey, "secret")

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if cfg.Upstream.BaseURL != "http://anythingllm:3001/api" {
		t.Errorf("Upstream.BaseURL = %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.WorkspaceSlug != "care" || cfg.Upstream.APIKey != "secret" {
		t.Errorf("Upstream = %+v", cfg.Upstream)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:8000" {
		t.Errorf("Server.HTTPAddr = %q, want default", cfg.Server.HTTPAddr)
	}
}

func TestResolve_ConfigPathFromEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "psychat.yaml", `
upstream:
  workspace_slug: "from-file"
`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if cfg.Upstream.WorkspaceSlug != "from-file" {
		t.Errorf("Upstream.WorkspaceSlug = %q", cfg.Upstream.WorkspaceSlug)
	}
}

func TestLoad_MissingWorkspaceIsNotAnError(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", "logging:\n  level: warn\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Upstream.WorkspaceSlug != "" {
		t.Errorf("Upstream.WorkspaceSlug = %q, want empty", cfg.Upstream.WorkspaceSlug)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidSyntax(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"config.yaml": "server:\n  http_addr: [unclosed",
		"config.toml": "[server\nhttp_addr = ",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, name, content))
			if err == nil || !strings.Contains(err.Error(), "parsing config file") {
				t.Errorf("Load() error = %v, want parse error", err)
			}
		})
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"timeout", "upstream:\n  timeout: \"soon\"\n", "upstream.timeout"},
		{"chunk delay", "stream:\n  chunk_delay: \"fast\"\n", "stream.chunk_delay"},
		{"dedupe window", "feedback:\n  dedupe_window: \"5 minutes\"\n", "feedback.dedupe_window"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Load() error = %v, want mention of %s", err, tt.field)
			}
		})
	}
}

func TestApplyEnv_InvalidTimeout(t *testing.T) {
	cfg := Default()
	lookup := func(key string) (string, bool) {
		if key == EnvUpstreamTimeout {
			return "eventually", true
		}
		return "", false
	}
	if err := cfg.ApplyEnv(lookup); err == nil {
		t.Error("ApplyEnv() expected error for invalid timeout")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"tailscale without http addr", func(c *Config) {
			c.Server.HTTPAddr = ""
			c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "psychat"}
		}, ""},
		{"tailscale without hostname", func(c *Config) { c.Tailscale.Enabled = true }, "tailscale.hostname"},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"zero timeout", func(c *Config) { c.Upstream.Timeout = 0 }, "upstream.timeout"},
		{"negative chunk delay", func(c *Config) { c.Stream.ChunkDelay = -time.Millisecond }, "stream.chunk_delay"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"relative metrics path", func(c *Config) { c.Metrics.Path = "metrics" }, "metrics.path"},
		{"metrics disabled ignores path", func(c *Config) {
			c.Metrics = MetricsConfig{Enabled: false}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_EXPAND_A", "alpha")
	t.Setenv("TEST_EXPAND_B", "beta")

	tests := []struct {
		input string
		want  string
	}{
		{"no vars", "no vars"},
		{"${TEST_EXPAND_A}", "alpha"},
		{"${TEST_EXPAND_A}-${TEST_EXPAND_B}", "alpha-beta"},
		{"x${TEST_EXPAND_MISSING}y", "xy"},
		{"$TEST_EXPAND_A", "$TEST_EXPAND_A"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.input); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
