// Package config handles configuration loading for dock-gateway.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Load starts from Default(), so a file only needs the keys it
// changes. Files ending in .toml are decoded as TOML.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from DOCK_GATEWAY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/dock-gateway/gateway.yaml
//  3. ~/.config/dock-gateway/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${DOCK_GATEWAY_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	events:
//	  initial_backoff: "500ms"
//	  max_backoff: "30s"
//	  dedupe_ttl: "5m"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
//	engine:
//	  socket: "/var/run/docker.sock"   # or host + port
//	  host: ""
//	  port: 2375
//	  api_version: "1.43"              # optional /v1.43 path prefix
//	  timeout: "30s"
//
//	events:
//	  enabled: true
//	  initial_backoff: "500ms"
//	  max_backoff: "30s"
//	  backoff_multiplier: 2.0
//	  jitter: true
//	  dedupe_ttl: "5m"
//	  dedupe_size: 4096
//
//	hub:
//	  queue_size: 64
//	  send_timeout: "5s"
//	  origin_patterns: ["*.example.com"]
//
//	database:
//	  path: "/var/lib/dock-gateway/events.db"   # empty disables the ledger
//	  retention: "168h"
//
//	auth:
//	  jwt_secret: "${DOCK_GATEWAY_JWT_SECRET}"  # empty disables auth
//
//	tailscale:
//	  enabled: false
//	  hostname: "dock-gateway"
//	  auth_key: "${TS_AUTHKEY}"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
//	metrics:
//	  enabled: false
//	  path: "/metrics"
//
// # Validation
//
// Load() validates:
//
//   - server.http_addr unless tailscale is enabled
//   - exactly one of engine.socket and engine.host
//   - backoff bounds and hub queue settings
//   - JWT secret minimum length (32 bytes) when set
//   - logging level and format values
package config
