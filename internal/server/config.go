package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/chatrelay/internal/transport"
)

// DuplicatePolicy decides what happens when a handshake names an id that
// already has a live session.
type DuplicatePolicy string

const (
	// DuplicateReplace overwrites the directory entry and leaves the
	// earlier connection open but unreachable.
	DuplicateReplace DuplicatePolicy = "replace"
	// DuplicateReject closes the newcomer.
	DuplicateReject DuplicatePolicy = "reject"
	// DuplicateEvict drives the earlier session through departure and then
	// admits the newcomer.
	DuplicateEvict DuplicatePolicy = "evict"
)

// ParseDuplicatePolicy validates a policy name. The empty string selects
// DuplicateReplace.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch p := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case DuplicateReplace, DuplicateReject, DuplicateEvict:
		return p, nil
	case "":
		return DuplicateReplace, nil
	default:
		return "", fmt.Errorf("unknown duplicate policy %q", s)
	}
}

// RateLimitConfig defines the parameters for per-session frame rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// LogConfig selects the logger level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds the relay configuration.
type Config struct {
	Port             string            `yaml:"port"`
	HTTPAddr         string            `yaml:"http_addr"`
	AllowedOrigins   []string          `yaml:"allowed_origins"`
	MaxMessageSize   int64             `yaml:"max_message_size"`
	Framing          transport.Framing `yaml:"framing"`
	IdleTimeout      time.Duration     `yaml:"idle_timeout"`
	ReapInterval     time.Duration     `yaml:"reap_interval"`
	HandshakeTimeout time.Duration     `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration     `yaml:"write_timeout"`
	ShutdownTimeout  time.Duration     `yaml:"shutdown_timeout"`
	SendQueueSize    int               `yaml:"send_queue_size"`
	DuplicatePolicy  DuplicatePolicy   `yaml:"duplicate_policy"`
	RateLimit        RateLimitConfig   `yaml:"rate_limit"`
	Log              LogConfig         `yaml:"log"`
	PresenceDB       string            `yaml:"presence_db"`
}

func defaultConfig() Config {
	return Config{
		Port:     ":54000",
		HTTPAddr: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:   transport.DefaultMaxFrameSize,
		Framing:          transport.FramingRead,
		IdleTimeout:      60 * time.Second,
		ReapInterval:     60 * time.Second,
		HandshakeTimeout: 30 * time.Second,
		WriteTimeout:     10 * time.Second,
		ShutdownTimeout:  5 * time.Second,
		SendQueueSize:    256,
		DuplicatePolicy:  DuplicateReplace,
		RateLimit: RateLimitConfig{
			Burst:          20,
			RefillInterval: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// sanitizeConfig replaces out-of-range numeric values with defaults.
// Enumerations are left for Validate to reject.
func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if cfg.ReapInterval <= 0 {
		cfg.ReapInterval = def.ReapInterval
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = def.SendQueueSize
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}
	if cfg.Framing == "" {
		cfg.Framing = def.Framing
	}
	if cfg.DuplicatePolicy == "" {
		cfg.DuplicatePolicy = def.DuplicatePolicy
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Log.Format
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Validate reports the first enumeration field holding an unknown value.
func (c *Config) Validate() error {
	framing, err := transport.ParseFraming(string(c.Framing))
	if err != nil {
		return err
	}
	c.Framing = framing

	policy, err := ParseDuplicatePolicy(string(c.DuplicatePolicy))
	if err != nil {
		return err
	}
	c.DuplicatePolicy = policy

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// LoadConfigFile reads a YAML configuration file on top of the defaults.
// Keys missing from the file keep their default values.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// NewConfigFromEnv creates a Config from environment variables, falling
// back to defaults for anything unset.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	ApplyEnv(&cfg)
	return &cfg
}

// ApplyEnv overlays environment variables onto cfg. Unparseable numeric
// values are ignored.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if port, ok := lookup("SERVER_PORT"); ok && port != "" {
		cfg.Port = port
	}

	// An explicitly empty HTTP_ADDR disables the HTTP listener.
	if addr, ok := lookup("HTTP_ADDR"); ok {
		cfg.HTTPAddr = addr
	}

	if origins, ok := lookup("ALLOWED_ORIGINS"); ok && origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize, ok := lookup("MAX_MESSAGE_SIZE"); ok && maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if framing, ok := lookup("FRAMING"); ok && framing != "" {
		cfg.Framing = transport.Framing(framing)
	}

	if v, ok := lookup("IDLE_TIMEOUT"); ok && v != "" {
		cfg.IdleTimeout = parseSeconds(v, cfg.IdleTimeout)
	}

	if v, ok := lookup("REAP_INTERVAL"); ok && v != "" {
		cfg.ReapInterval = parseSeconds(v, cfg.ReapInterval)
	}

	if v, ok := lookup("HANDSHAKE_TIMEOUT"); ok && v != "" {
		cfg.HandshakeTimeout = parseSeconds(v, cfg.HandshakeTimeout)
	}

	if policy, ok := lookup("DUPLICATE_POLICY"); ok && policy != "" {
		cfg.DuplicatePolicy = DuplicatePolicy(policy)
	}

	if burst, ok := lookup("RATE_LIMIT_BURST"); ok && burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval, ok := lookup("RATE_LIMIT_REFILL_INTERVAL"); ok && interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if level, ok := lookup("LOG_LEVEL"); ok && level != "" {
		cfg.Log.Level = level
	}

	if format, ok := lookup("LOG_FORMAT"); ok && format != "" {
		cfg.Log.Format = format
	}

	if path, ok := lookup("PRESENCE_DB"); ok {
		cfg.PresenceDB = path
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseSeconds accepts a bare number of seconds or a Go duration string.
func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
