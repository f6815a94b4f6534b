// Package config loads the tracksync configuration file.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/tracksync/config.toml (default)
//  3. If the config file doesn't exist, fall back to Default()
//  4. If the file exists but fields are missing or empty, keep their defaults
//
// # Default Values
//
//   - API base URL: http://127.0.0.1:8000
//   - Tracking stream path: /ws/tracking/ (scheme derived from the base URL)
//   - Heartbeat: 30s, never below 5s
//   - Pong timeout: 90s; "0s" disables it
//   - Reconnect: 1s base, 30s cap, 10 attempts (0 means unlimited)
//   - Queue backend: badger under ~/.local/share/tracksync/queue.badger
//   - High lane auto-sync: 10s; full sync: off
//   - Connectivity probe: 15s
//   - Log file: <data_dir>/tracksync.log
//
// # TOML Format
//
//	api_base_url = "https://parks.example.org/v1"
//	api_token = "..."
//	heartbeat_interval = "20s"
//	pong_timeout = "60s"
//	reconnect_max_attempts = 0
//	queue_backend = "sqlite"
//	data_dir = "~/tracksync"
//	metrics_addr = "127.0.0.1:9464"
//
//	[cache.animals]
//	ttl = "15s"
//
//	[cache.waterholes]
//	path = "/api/waterholes/"
//	ttl = "1h"
//	refresh = false
//
// Durations use Go syntax. Cache tables override the built-in keys field by
// field or add new keys, which then need both path and ttl.
//
// # Error Handling
//
// Load returns errors for path expansion failures, read errors other than
// a missing file, TOML syntax errors ("parse config: ..."), unparsable
// durations, and an unknown queue_backend.
package config
