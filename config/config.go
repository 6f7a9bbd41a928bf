package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SOCSYNC_"

// Config is the root configuration.
type Config struct {
	SocSync SocSyncConfig `yaml:"socsync"`
}

// SocSyncConfig is the project configuration.
type SocSyncConfig struct {
	Backend BackendConfig `yaml:"backend"`
	Push    PushConfig    `yaml:"push"`
	Sync    SyncConfig    `yaml:"sync"`
	Audit   AuditConfig   `yaml:"audit"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// BackendConfig controls the REST client.
type BackendConfig struct {
	URL     string            `yaml:"url"`
	Token   string            `yaml:"token"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// PushConfig controls the push connection.
type PushConfig struct {
	Transport         string          `yaml:"transport"` // websocket|redis
	WebSocket         WebSocketConfig `yaml:"websocket"`
	Redis             RedisConfig     `yaml:"redis"`
	ReconnectInterval time.Duration   `yaml:"reconnect_interval"`
	MaxReconnectDelay time.Duration   `yaml:"max_reconnect_delay"`
	MaxAttempts       int             `yaml:"max_attempts"`
	Jitter            float64         `yaml:"jitter"`
	HeartbeatTimeout  time.Duration   `yaml:"heartbeat_timeout"`
	HandshakeTimeout  time.Duration   `yaml:"handshake_timeout"`
	WriteTimeout      time.Duration   `yaml:"write_timeout"`
	QueueSize         int             `yaml:"queue_size"`
	Capture           CaptureConfig   `yaml:"capture"`
}

// CaptureConfig controls raw push frame capture for replay.
type CaptureConfig struct {
	Enabled       bool             `yaml:"enabled"`
	File          FileOutputConfig `yaml:"file"`
	BatchSize     int              `yaml:"batch_size"`
	FlushInterval time.Duration    `yaml:"flush_interval"`
}

// WebSocketConfig controls the websocket transport.
type WebSocketConfig struct {
	URL          string        `yaml:"url"`
	PingInterval time.Duration `yaml:"ping_interval"`
}

// RedisConfig controls the Redis list transport.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	OutboundKey  string        `yaml:"outbound_key"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// SyncConfig controls snapshot and mutation behavior.
type SyncConfig struct {
	ResyncThreshold time.Duration `yaml:"resync_threshold"`
	ResyncInterval  time.Duration `yaml:"resync_interval"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	SnapshotTimeout time.Duration `yaml:"snapshot_timeout"`
	SnapshotLimit   int           `yaml:"snapshot_limit"`
	MutationTimeout time.Duration `yaml:"mutation_timeout"`
	MaxBuffered     int           `yaml:"max_buffered"`
	AckDeltas       bool          `yaml:"ack_deltas"`
}

// AuditConfig controls audit event sinks.
type AuditConfig struct {
	Enabled       bool             `yaml:"enabled"`
	Outputs       []string         `yaml:"outputs"` // file|http|console
	File          AuditFileConfig  `yaml:"file"`
	HTTP          HTTPOutputConfig `yaml:"http"`
	Buffer        int              `yaml:"buffer"`
	FlushInterval time.Duration    `yaml:"flush_interval"`
	MaxRetries    int              `yaml:"max_retries"`
}

// AuditFileConfig config for the audit JSON lines file.
type AuditFileConfig struct {
	Path     string `yaml:"path"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// FileOutputConfig config for local JSON output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file, then applies environment
// overrides. A missing file is not an error when path is empty.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	}

	if err := ApplyEnv(&cfg, os.Getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// ApplyEnv overrides cfg from SOCSYNC_* variables read through getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	s := &cfg.SocSync
	e := envReader{getenv: getenv}

	e.str("BACKEND_URL", &s.Backend.URL)
	e.str("TOKEN", &s.Backend.Token)
	e.duration("BACKEND_TIMEOUT", &s.Backend.Timeout)

	e.str("PUSH_TRANSPORT", &s.Push.Transport)
	e.str("PUSH_URL", &s.Push.WebSocket.URL)
	e.str("REDIS_ADDR", &s.Push.Redis.Addr)
	e.str("REDIS_PASSWORD", &s.Push.Redis.Password)
	e.integer("REDIS_DB", &s.Push.Redis.DB)
	e.str("REDIS_KEY", &s.Push.Redis.Key)
	e.duration("RECONNECT_INTERVAL", &s.Push.ReconnectInterval)
	e.duration("MAX_RECONNECT_DELAY", &s.Push.MaxReconnectDelay)
	e.integer("MAX_RECONNECT_ATTEMPTS", &s.Push.MaxAttempts)
	e.duration("HEARTBEAT_TIMEOUT", &s.Push.HeartbeatTimeout)
	e.integer("QUEUE_SIZE", &s.Push.QueueSize)
	e.boolean("CAPTURE", &s.Push.Capture.Enabled)
	e.str("CAPTURE_FILE", &s.Push.Capture.File.Path)

	e.duration("RESYNC_THRESHOLD", &s.Sync.ResyncThreshold)
	e.duration("MUTATION_TIMEOUT", &s.Sync.MutationTimeout)
	e.boolean("ACK_DELTAS", &s.Sync.AckDeltas)

	e.str("AUDIT_FILE", &s.Audit.File.Path)
	e.str("AUDIT_URL", &s.Audit.HTTP.URL)
	e.str("METRICS_ADDR", &s.Metrics.Addr)
	e.str("LOG_LEVEL", &s.Logging.Level)

	if len(e.errs) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(e.errs, "; "))
	}
	return nil
}

type envReader struct {
	getenv func(string) string
	errs   []string
}

func (e *envReader) lookup(name string) (string, bool) {
	v := strings.TrimSpace(e.getenv(EnvPrefix + name))
	return v, v != ""
}

func (e *envReader) str(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) duration(name string, dst *time.Duration) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s%s=%q: %v", EnvPrefix, name, v, err))
		return
	}
	*dst = d
}

func (e *envReader) integer(name string, dst *int) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s%s=%q: %v", EnvPrefix, name, v, err))
		return
	}
	*dst = n
}

func (e *envReader) boolean(name string, dst *bool) {
	v, ok := e.lookup(name)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Sprintf("%s%s=%q: %v", EnvPrefix, name, v, err))
		return
	}
	*dst = b
}
