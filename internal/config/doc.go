// Package config handles configuration loading for palaver.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable
// expansion. The package provides validation and sensible defaults for
// the realtime tuning knobs.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PALAVER_JWT_SECRET}"
//
// # Configuration Sections
//
// Server and persistence:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//	database:
//	  path: "/var/lib/palaver/palaver.db"
//
// Realtime tuning (durations use time.ParseDuration syntax):
//
//	realtime:
//	  send_buffer: 64         # per-connection outbound queue
//	  backlog_limit: 100      # unread messages returned on join
//	  ping_interval: "30s"
//	  pong_timeout: "60s"
//	  typing_interval: "2s"   # minimum gap between typing fan-outs
//
// Tailscale (optional tailnet exposure):
//
//	tailscale:
//	  enabled: false
//	  hostname: "palaver"
//	  auth_key: "${TS_AUTHKEY}"
//	  funnel: false
//
// Logging and metrics:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
