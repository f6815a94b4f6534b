package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("APIBaseURL = %q, want %q", cfg.APIBaseURL, defaultAPIBaseURL)
	}
	if cfg.QueueBackend != BackendBadger {
		t.Fatalf("QueueBackend = %q, want badger", cfg.QueueBackend)
	}
	wantDataDir, err := expandPath(defaultDataDir)
	if err != nil {
		t.Fatalf("expandPath(defaultDataDir) returned error: %v", err)
	}
	if cfg.DataDir != wantDataDir {
		t.Fatalf("DataDir = %q, want %q", cfg.DataDir, wantDataDir)
	}
	if cfg.QueueLocation() != filepath.Join(wantDataDir, "queue.badger") {
		t.Fatalf("QueueLocation = %q", cfg.QueueLocation())
	}
	if cfg.PongTimeout != 90*time.Second {
		t.Fatalf("PongTimeout = %s, want 90s", cfg.PongTimeout)
	}
	if cfg.Reconnect.MaxAttempts != 10 {
		t.Fatalf("Reconnect.MaxAttempts = %d, want 10", cfg.Reconnect.MaxAttempts)
	}
	want := []string{"alerts", "animals", "corridors", "rangers", "risk_zones"}
	if got := cfg.CacheKeys(); strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("CacheKeys = %v, want %v", got, want)
	}
	if !cfg.Cache["rangers"].Refresh || cfg.Cache["corridors"].Refresh {
		t.Fatalf("refresh flags wrong: %#v", cfg.Cache)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
api_base_url = "  https://parks.example.org/v1  "
heartbeat_interval = "1s"
pong_timeout = "0s"
reconnect_base_delay = "2s"
reconnect_max_delay = "1m"
reconnect_max_attempts = 0
queue_backend = " SQLite "
data_dir = "  ~/.tracksync  "
full_sync_interval = "5m"
api_rate_limit = 2.5

[cache.animals]
ttl = "15s"

[cache.waterholes]
path = "/api/waterholes/"
ttl = "1h"
refresh = true
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBaseURL != "https://parks.example.org/v1" {
		t.Fatalf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.HeartbeatInterval != minHeartbeat {
		t.Fatalf("HeartbeatInterval = %s, want clamp to %s", cfg.HeartbeatInterval, minHeartbeat)
	}
	if cfg.PongTimeout != 0 {
		t.Fatalf("PongTimeout = %s, want disabled", cfg.PongTimeout)
	}
	if cfg.Reconnect.Base != 2*time.Second || cfg.Reconnect.Max != time.Minute || cfg.Reconnect.MaxAttempts != 0 {
		t.Fatalf("Reconnect = %#v", cfg.Reconnect)
	}
	if cfg.QueueBackend != BackendSQLite {
		t.Fatalf("QueueBackend = %q", cfg.QueueBackend)
	}
	if !strings.HasPrefix(cfg.DataDir, home) {
		t.Fatalf("DataDir = %q, want it under HOME %q", cfg.DataDir, home)
	}
	if cfg.LogFile != filepath.Join(cfg.DataDir, "tracksync.log") {
		t.Fatalf("LogFile = %q", cfg.LogFile)
	}
	if cfg.QueueLocation() != filepath.Join(cfg.DataDir, "queue.db") {
		t.Fatalf("QueueLocation = %q", cfg.QueueLocation())
	}
	if cfg.APIRateLimit != 2.5 {
		t.Fatalf("APIRateLimit = %v, want 2.5", cfg.APIRateLimit)
	}
	if cfg.FullSyncInterval != 5*time.Minute {
		t.Fatalf("FullSyncInterval = %s", cfg.FullSyncInterval)
	}
	animals := cfg.Cache["animals"]
	if animals.TTL != 15*time.Second || animals.Path != "/api/animals/" || !animals.Refresh {
		t.Fatalf("animals = %#v", animals)
	}
	if wh := cfg.Cache["waterholes"]; wh.Path != "/api/waterholes/" || wh.TTL != time.Hour || !wh.Refresh {
		t.Fatalf("waterholes = %#v", wh)
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
api_base_url = "   "
queue_backend = ""
heartbeat_interval = ""
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIBaseURL != defaultAPIBaseURL {
		t.Fatalf("APIBaseURL = %q, want %q", cfg.APIBaseURL, defaultAPIBaseURL)
	}
	if cfg.HeartbeatInterval != defaultHeartbeat {
		t.Fatalf("HeartbeatInterval = %s, want %s", cfg.HeartbeatInterval, defaultHeartbeat)
	}
}

func TestLoad_InvalidValuesFail(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "toml", content: `api_base_url = [`, want: "parse config"},
		{name: "duration", content: `heartbeat_interval = "soon"`, want: "parse heartbeat_interval"},
		{name: "backend", content: `queue_backend = "redis"`, want: "queue_backend"},
		{name: "rate limit", content: `api_rate_limit = -1.0`, want: "api_rate_limit"},
		{name: "new cache key without path", content: "[cache.x]\nttl = \"1m\"", want: "cache.x"},
		{name: "max below base", content: "reconnect_base_delay = \"1m\"\nreconnect_max_delay = \"1s\"", want: "reconnect_max_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatalf("Load returned nil error, want %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %q, want it to mention %q", err.Error(), tt.want)
			}
		})
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
