package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/five82/tracksync/internal/retry"
)

// Config is the resolved tracksync configuration.
type Config struct {
	APIBaseURL   string
	APIToken     string
	TrackingPath string
	// APIRateLimit caps REST requests per second. Zero is unlimited.
	APIRateLimit float64

	HeartbeatInterval time.Duration
	PongTimeout       time.Duration
	Reconnect         retry.Policy

	QueueBackend     string
	DataDir          string
	HighLaneInterval time.Duration
	FullSyncInterval time.Duration

	ProbeInterval time.Duration
	MetricsAddr   string
	LogFile       string

	Cache map[string]CacheSource
}

// CacheSource binds a cache key to a REST collection.
type CacheSource struct {
	Path    string
	TTL     time.Duration
	Refresh bool
}

// Queue backends.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

const (
	defaultConfigPath   = "~/.config/tracksync/config.toml"
	defaultAPIBaseURL   = "http://127.0.0.1:8000"
	defaultTrackingPath = "/ws/tracking/"
	defaultDataDir      = "~/.local/share/tracksync"
	defaultLogName      = "tracksync.log"

	defaultHeartbeat     = 30 * time.Second
	minHeartbeat         = 5 * time.Second
	defaultPongTimeout   = 90 * time.Second
	defaultHighLane      = 10 * time.Second
	defaultProbeInterval = 15 * time.Second
	defaultAPIRateLimit  = 10
)

var backends = []string{BackendBadger, BackendSQLite, BackendFile, BackendMemory}

// DefaultCache returns the built-in collection table.
func DefaultCache() map[string]CacheSource {
	return map[string]CacheSource{
		"animals":    {Path: "/api/animals/", TTL: 30 * time.Second, Refresh: true},
		"alerts":     {Path: "/api/alerts/", TTL: 30 * time.Second, Refresh: true},
		"rangers":    {Path: "/api/rangers/", TTL: 30 * time.Second, Refresh: true},
		"corridors":  {Path: "/api/corridors/", TTL: 10 * time.Minute},
		"risk_zones": {Path: "/api/risk-zones/", TTL: 10 * time.Minute},
	}
}

// Default returns the configuration used when no file exists.
func Default() Config {
	dataDir := mustExpand(defaultDataDir)
	return Config{
		APIBaseURL:        defaultAPIBaseURL,
		TrackingPath:      defaultTrackingPath,
		APIRateLimit:      defaultAPIRateLimit,
		HeartbeatInterval: defaultHeartbeat,
		PongTimeout:       defaultPongTimeout,
		Reconnect:         retry.DefaultPolicy(),
		QueueBackend:      BackendBadger,
		DataDir:           dataDir,
		HighLaneInterval:  defaultHighLane,
		ProbeInterval:     defaultProbeInterval,
		LogFile:           filepath.Join(dataDir, defaultLogName),
		Cache:             DefaultCache(),
	}
}

type rawCache struct {
	Path    string `toml:"path"`
	TTL     string `toml:"ttl"`
	Refresh *bool  `toml:"refresh"`
}

type rawConfig struct {
	APIBaseURL           string              `toml:"api_base_url"`
	APIToken             string              `toml:"api_token"`
	TrackingPath         string              `toml:"tracking_path"`
	APIRateLimit         *float64            `toml:"api_rate_limit"`
	HeartbeatInterval    string              `toml:"heartbeat_interval"`
	PongTimeout          string              `toml:"pong_timeout"`
	ReconnectBaseDelay   string              `toml:"reconnect_base_delay"`
	ReconnectMaxDelay    string              `toml:"reconnect_max_delay"`
	ReconnectMaxAttempts *int                `toml:"reconnect_max_attempts"`
	QueueBackend         string              `toml:"queue_backend"`
	DataDir              string              `toml:"data_dir"`
	HighLaneInterval     string              `toml:"high_lane_interval"`
	FullSyncInterval     string              `toml:"full_sync_interval"`
	ProbeInterval        string              `toml:"probe_interval"`
	MetricsAddr          string              `toml:"metrics_addr"`
	LogFile              string              `toml:"log_file"`
	Cache                map[string]rawCache `toml:"cache"`
}

// Load locates and parses the config file, falling back to defaults when it
// is missing. Empty fields keep their defaults.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawConfig
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.apply(raw); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) apply(raw rawConfig) error {
	setString(&c.APIBaseURL, raw.APIBaseURL)
	setString(&c.APIToken, raw.APIToken)
	setString(&c.TrackingPath, raw.TrackingPath)
	setString(&c.MetricsAddr, raw.MetricsAddr)
	if raw.APIRateLimit != nil {
		if *raw.APIRateLimit < 0 {
			return fmt.Errorf("api_rate_limit must not be negative")
		}
		c.APIRateLimit = *raw.APIRateLimit
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"heartbeat_interval", raw.HeartbeatInterval, &c.HeartbeatInterval},
		{"pong_timeout", raw.PongTimeout, &c.PongTimeout},
		{"reconnect_base_delay", raw.ReconnectBaseDelay, &c.Reconnect.Base},
		{"reconnect_max_delay", raw.ReconnectMaxDelay, &c.Reconnect.Max},
		{"high_lane_interval", raw.HighLaneInterval, &c.HighLaneInterval},
		{"full_sync_interval", raw.FullSyncInterval, &c.FullSyncInterval},
		{"probe_interval", raw.ProbeInterval, &c.ProbeInterval},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.name, d.raw); err != nil {
			return err
		}
	}
	if c.HeartbeatInterval < minHeartbeat {
		c.HeartbeatInterval = minHeartbeat
	}
	if c.Reconnect.Max < c.Reconnect.Base {
		return fmt.Errorf("reconnect_max_delay %s is below reconnect_base_delay %s", c.Reconnect.Max, c.Reconnect.Base)
	}
	if raw.ReconnectMaxAttempts != nil {
		if *raw.ReconnectMaxAttempts < 0 {
			return fmt.Errorf("reconnect_max_attempts must not be negative")
		}
		c.Reconnect.MaxAttempts = uint(*raw.ReconnectMaxAttempts)
	}

	if backend := strings.ToLower(strings.TrimSpace(raw.QueueBackend)); backend != "" {
		if !slices.Contains(backends, backend) {
			return fmt.Errorf("queue_backend %q: want one of %s", raw.QueueBackend, strings.Join(backends, ", "))
		}
		c.QueueBackend = backend
	}

	if dir := strings.TrimSpace(raw.DataDir); dir != "" {
		c.DataDir = mustExpand(dir)
		c.LogFile = filepath.Join(c.DataDir, defaultLogName)
	}
	if logFile := strings.TrimSpace(raw.LogFile); logFile != "" {
		c.LogFile = mustExpand(logFile)
	}

	for key, rc := range raw.Cache {
		src := c.Cache[key]
		setString(&src.Path, rc.Path)
		if err := setDuration(&src.TTL, "cache."+key+".ttl", rc.TTL); err != nil {
			return err
		}
		if rc.Refresh != nil {
			src.Refresh = *rc.Refresh
		}
		if src.Path == "" {
			return fmt.Errorf("cache.%s: path is required", key)
		}
		if src.TTL <= 0 {
			return fmt.Errorf("cache.%s: ttl must be positive", key)
		}
		c.Cache[key] = src
	}
	return nil
}

// QueueLocation returns the storage location for the configured backend.
func (c Config) QueueLocation() string {
	switch c.QueueBackend {
	case BackendSQLite:
		return filepath.Join(c.DataDir, "queue.db")
	case BackendFile:
		return filepath.Join(c.DataDir, "kv")
	case BackendMemory:
		return ""
	default:
		return filepath.Join(c.DataDir, "queue.badger")
	}
}

// CacheKeys returns the configured cache keys in sorted order.
func (c Config) CacheKeys() []string {
	keys := make([]string, 0, len(c.Cache))
	for k := range c.Cache {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func setString(dst *string, raw string) {
	if v := strings.TrimSpace(raw); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, raw string) error {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", name)
	}
	*dst = d
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
