// Package config handles configuration loading for psychat-gateway.
//
// # Overview
//
// Configuration comes from an optional YAML or TOML file layered over
// Default(), then environment overrides, then Validate(). The result is
// built once at startup and passed explicitly to every component.
//
// # Configuration File
//
// Resolve picks the file in this order:
//
//  1. The --config flag
//  2. Path from the PSYCHAT_CONFIG environment variable
//  3. No file: defaults plus environment only
//
// Files ending in .toml are decoded with BurntSushi/toml, anything else
// with yaml.v3.
//
// # Environment Variable Expansion
//
// Values can reference environment variables:
//
//	upstream:
//	  api_key: "${ANYTHINGLLM_API_KEY}"
//
// Unset variables expand to the empty string.
//
// # Environment Overrides
//
//	ANYTHINGLLM_API_BASE_URL    upstream.base_url
//	ANYTHINGLLM_WORKSPACE_SLUG  upstream.workspace_slug
//	ANYTHINGLLM_API_KEY         upstream.api_key
//	ANYTHINGLLM_TIMEOUT         upstream.timeout ("90s" or "90")
//	PSYCHAT_DB_PATH             database.path
//	PSYCHAT_HTTP_ADDR           server.http_addr
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8000"
//	tailscale:
//	  enabled: false
//	  hostname: "psychat"
//	  auth_key: "${TS_AUTHKEY}"
//	  state_dir: "./data/tsnet"
//	  ephemeral: false
//	  https: false
//	  funnel: false
//	database:
//	  driver: "sqlite"            # or "sqlite3" for the cgo driver
//	  path: "./data/psychat.db"
//	upstream:
//	  base_url: "http://localhost:3001/api"
//	  workspace_slug: "care"
//	  api_key: ""
//	  timeout: "120s"
//	stream:
//	  chunk_delay: "50ms"
//	cors:
//	  allowed_origins: ["*"]
//	feedback:
//	  dedupe_window: "5m"
//	logging:
//	  level: "info"               # debug, info, warn, error
//	  format: "text"              # text or json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
//
// A missing workspace slug does not fail validation; chat requests are then
// answered with service_not_configured.
package config
