// Package config loads and validates the application configuration: a JSON
// file, CLEANSIGHT_* environment overrides on top, then struct and JSON
// schema validation. SafeConfig wraps a loaded config for concurrent reads.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/Jiadezhende/CleanSightBackend/errors"
)

const envPrefix = "CLEANSIGHT"

// Defaults.
const (
	DefaultListenAddr     = ":8000"
	DefaultMetricsPort    = 9090
	DefaultSegmentLength  = 10
	DefaultRealtimeCap    = 30
	DefaultWorkers        = 4
	DefaultWorkerQueue    = 64
	DefaultFrameRate      = 30
	DefaultOutputRoot     = "./data"
	DefaultTaskTimeoutMS  = 5000
	DefaultIdleSleepMS    = 10
	DefaultPushIntervalMS = 30
)

// EngineConfig holds the processing knobs.
type EngineConfig struct {
	SegmentLength    int    `json:"segment_length"`
	RealtimeCapacity int    `json:"realtime_capacity"`
	Workers          int    `json:"workers"`
	WorkerQueue      int    `json:"worker_queue"`
	FrameRate        int    `json:"frame_rate"`
	TaskTimeoutMS    int    `json:"task_timeout_ms"`
	IdleSleepMS      int    `json:"idle_sleep_ms"`
	OutputRoot       string `json:"output_root"`

	// CachePolicy is unbounded, drop-oldest or reject.
	CachePolicy   string `json:"cache_policy,omitempty"`
	CacheMaxDepth int    `json:"cache_max_depth,omitempty"`

	// IngestRateLimit is frames per second per client; zero disables.
	IngestRateLimit float64 `json:"ingest_rate_limit,omitempty"`
	IngestBurst     int     `json:"ingest_burst,omitempty"`
}

// ServerConfig holds the transport knobs.
type ServerConfig struct {
	ListenAddr     string `json:"listen_addr"`
	MetricsPort    int    `json:"metrics_port"`
	PushIntervalMS int    `json:"push_interval_ms"`
}

// NATSConfig holds the optional event bus connection.
type NATSConfig struct {
	URL string `json:"url,omitempty"`
}

// LogConfig holds logging knobs.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // debug, info, warn, error
	Format string `json:"format,omitempty"` // json or text
}

// Config is the complete application configuration.
type Config struct {
	Engine EngineConfig `json:"engine"`
	Server ServerConfig `json:"server"`
	NATS   NATSConfig   `json:"nats,omitempty"`
	Log    LogConfig    `json:"log,omitempty"`
}

// Default returns a config with every knob at its default.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			SegmentLength:    DefaultSegmentLength,
			RealtimeCapacity: DefaultRealtimeCap,
			Workers:          DefaultWorkers,
			WorkerQueue:      DefaultWorkerQueue,
			FrameRate:        DefaultFrameRate,
			TaskTimeoutMS:    DefaultTaskTimeoutMS,
			IdleSleepMS:      DefaultIdleSleepMS,
			OutputRoot:       DefaultOutputRoot,
			CachePolicy:      "unbounded",
		},
		Server: ServerConfig{
			ListenAddr:     DefaultListenAddr,
			MetricsPort:    DefaultMetricsPort,
			PushIntervalMS: DefaultPushIntervalMS,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads the config file, layers environment overrides and validates.
// An empty path yields the defaults plus environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapFatal(err, "Config", "Load", "read config file")
		}
		if err := validateSchema(data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(err, "Config", "Load", "parse config file")
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers CLEANSIGHT_* environment variables over the config.
func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v := os.Getenv(envPrefix + "_" + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(envPrefix + "_" + key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v := os.Getenv(envPrefix + "_" + key); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = f
			}
		}
	}

	setInt("SEGMENT_LENGTH", &c.Engine.SegmentLength)
	setInt("REALTIME_CAPACITY", &c.Engine.RealtimeCapacity)
	setInt("WORKERS", &c.Engine.Workers)
	setInt("WORKER_QUEUE", &c.Engine.WorkerQueue)
	setInt("FRAME_RATE", &c.Engine.FrameRate)
	setInt("TASK_TIMEOUT_MS", &c.Engine.TaskTimeoutMS)
	setInt("IDLE_SLEEP_MS", &c.Engine.IdleSleepMS)
	setString("OUTPUT_ROOT", &c.Engine.OutputRoot)
	setString("CACHE_POLICY", &c.Engine.CachePolicy)
	setInt("CACHE_MAX_DEPTH", &c.Engine.CacheMaxDepth)
	setFloat("INGEST_RATE_LIMIT", &c.Engine.IngestRateLimit)
	setInt("INGEST_BURST", &c.Engine.IngestBurst)

	setString("LISTEN_ADDR", &c.Server.ListenAddr)
	setInt("METRICS_PORT", &c.Server.MetricsPort)
	setInt("PUSH_INTERVAL_MS", &c.Server.PushIntervalMS)

	setString("NATS_URL", &c.NATS.URL)
	setString("LOG_LEVEL", &c.Log.Level)
	setString("LOG_FORMAT", &c.Log.Format)
}

// Validate checks cross-field constraints the schema cannot express.
func (c *Config) Validate() error {
	fail := func(msg string) error {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Config", "Validate", msg)
	}

	if c.Engine.SegmentLength <= 0 {
		return fail("segment_length must be positive")
	}
	if c.Engine.RealtimeCapacity <= 0 {
		return fail("realtime_capacity must be positive")
	}
	if c.Engine.Workers <= 0 || c.Engine.WorkerQueue <= 0 {
		return fail("workers and worker_queue must be positive")
	}
	if c.Engine.FrameRate <= 0 {
		return fail("frame_rate must be positive")
	}
	if c.Engine.TaskTimeoutMS <= 0 {
		return fail("task_timeout_ms must be positive")
	}
	if c.Engine.OutputRoot == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "output_root")
	}
	switch c.Engine.CachePolicy {
	case "", "unbounded":
	case "drop-oldest", "reject":
		if c.Engine.CacheMaxDepth <= 0 {
			return fail("cache_max_depth required for bounded cache policy")
		}
	default:
		return fail("cache_policy must be unbounded, drop-oldest or reject")
	}
	if c.Server.ListenAddr == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "listen_addr")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		return fail("metrics_port out of range")
	}
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fail("log level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "", "json", "text":
	default:
		return fail("log format must be json or text")
	}
	return nil
}

// TaskTimeout returns the task timeout as a duration.
func (c *Config) TaskTimeout() time.Duration {
	return time.Duration(c.Engine.TaskTimeoutMS) * time.Millisecond
}

// IdleSleep returns the idle sleep as a duration.
func (c *Config) IdleSleep() time.Duration {
	return time.Duration(c.Engine.IdleSleepMS) * time.Millisecond
}

// PushInterval returns the live-preview cadence as a duration.
func (c *Config) PushInterval() time.Duration {
	return time.Duration(c.Server.PushIntervalMS) * time.Millisecond
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}

// SafeConfig provides thread-safe access to a configuration.
type SafeConfig struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewSafeConfig wraps a config; nil gets the defaults.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{cfg: cfg}
}

// Get returns a copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.cfg.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.cfg = cfg
	return nil
}
