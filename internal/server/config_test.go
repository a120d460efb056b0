package server

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/Tyrowin/chatrelay/internal/transport"
)

// TestNewConfig tests the defaults.
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Port != ":54000" {
		t.Errorf("Port = %q, want :54000", cfg.Port)
	}
	if cfg.MaxMessageSize != 512 {
		t.Errorf("MaxMessageSize = %d, want 512", cfg.MaxMessageSize)
	}
	if cfg.Framing != transport.FramingRead {
		t.Errorf("Framing = %q, want read", cfg.Framing)
	}
	if cfg.IdleTimeout != 60*time.Second || cfg.ReapInterval != 60*time.Second {
		t.Errorf("IdleTimeout/ReapInterval = %v/%v, want 60s/60s", cfg.IdleTimeout, cfg.ReapInterval)
	}
	if cfg.DuplicatePolicy != DuplicateReplace {
		t.Errorf("DuplicatePolicy = %q, want replace", cfg.DuplicatePolicy)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

// TestApplyEnv tests the environment overlay against a fixed lookup.
func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SERVER_PORT":                "127.0.0.1:6000",
		"HTTP_ADDR":                  "",
		"ALLOWED_ORIGINS":            "http://a.test, http://b.test",
		"MAX_MESSAGE_SIZE":           "4096",
		"FRAMING":                    "line",
		"IDLE_TIMEOUT":               "90",
		"REAP_INTERVAL":              "15s",
		"HANDSHAKE_TIMEOUT":          "bogus",
		"DUPLICATE_POLICY":           "evict",
		"RATE_LIMIT_BURST":           "5",
		"RATE_LIMIT_REFILL_INTERVAL": "2",
		"LOG_LEVEL":                  "debug",
		"LOG_FORMAT":                 "json",
		"PRESENCE_DB":                "/tmp/presence.db",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := NewConfig()
	applyEnv(cfg, lookup)

	if cfg.Port != "127.0.0.1:6000" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr = %q, want empty", cfg.HTTPAddr)
	}
	if want := []string{"http://a.test", "http://b.test"}; !reflect.DeepEqual(cfg.AllowedOrigins, want) {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins, want)
	}
	if cfg.MaxMessageSize != 4096 {
		t.Errorf("MaxMessageSize = %d", cfg.MaxMessageSize)
	}
	if cfg.Framing != transport.FramingLine {
		t.Errorf("Framing = %q", cfg.Framing)
	}
	if cfg.IdleTimeout != 90*time.Second {
		t.Errorf("IdleTimeout = %v", cfg.IdleTimeout)
	}
	if cfg.ReapInterval != 15*time.Second {
		t.Errorf("ReapInterval = %v", cfg.ReapInterval)
	}
	if cfg.HandshakeTimeout != 30*time.Second {
		t.Errorf("HandshakeTimeout = %v, want default kept for bad value", cfg.HandshakeTimeout)
	}
	if cfg.DuplicatePolicy != DuplicateEvict {
		t.Errorf("DuplicatePolicy = %q", cfg.DuplicatePolicy)
	}
	if cfg.RateLimit.Burst != 5 || cfg.RateLimit.RefillInterval != 2*time.Second {
		t.Errorf("RateLimit = %+v", cfg.RateLimit)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.PresenceDB != "/tmp/presence.db" {
		t.Errorf("PresenceDB = %q", cfg.PresenceDB)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

// TestApplyEnvIgnoresBadNumbers tests that unparseable numbers keep the
// previous values.
func TestApplyEnvIgnoresBadNumbers(t *testing.T) {
	env := map[string]string{
		"MAX_MESSAGE_SIZE": "-1",
		"RATE_LIMIT_BURST": "many",
		"IDLE_TIMEOUT":     "0",
	}
	cfg := NewConfig()
	applyEnv(cfg, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	def := NewConfig()
	if cfg.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("MaxMessageSize = %d, want %d", cfg.MaxMessageSize, def.MaxMessageSize)
	}
	if cfg.RateLimit.Burst != def.RateLimit.Burst {
		t.Errorf("RateLimit.Burst = %d, want %d", cfg.RateLimit.Burst, def.RateLimit.Burst)
	}
	if cfg.IdleTimeout != def.IdleTimeout {
		t.Errorf("IdleTimeout = %v, want %v", cfg.IdleTimeout, def.IdleTimeout)
	}
}

// TestLoadConfigFile tests YAML loading on top of the defaults.
func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	data := `
port: "127.0.0.1:7000"
framing: line
max_message_size: 2048
idle_timeout: 2m
send_queue_size: -3
allowed_origins:
  - "*"
log:
  format: json
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	if cfg.Port != "127.0.0.1:7000" || cfg.Framing != transport.FramingLine {
		t.Errorf("Port/Framing = %q/%q", cfg.Port, cfg.Framing)
	}
	if cfg.MaxMessageSize != 2048 || cfg.IdleTimeout != 2*time.Minute {
		t.Errorf("MaxMessageSize/IdleTimeout = %d/%v", cfg.MaxMessageSize, cfg.IdleTimeout)
	}
	if cfg.SendQueueSize != 256 {
		t.Errorf("SendQueueSize = %d, want sanitized default 256", cfg.SendQueueSize)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want default kept", cfg.HTTPAddr)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

// TestLoadConfigFileErrors tests missing and malformed files.
func TestLoadConfigFileErrors(t *testing.T) {
	if _, err := LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("idle_timeout: [not, a, duration]\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfigFile(path); err == nil {
		t.Error("expected error for malformed file")
	}
}

// TestValidate tests enumeration checks and normalization.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "upper-case policy", mutate: func(c *Config) { c.DuplicatePolicy = "REJECT" }},
		{name: "unknown framing", mutate: func(c *Config) { c.Framing = "datagram" }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.DuplicatePolicy = "merge" }, wantErr: true},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "loud" }, wantErr: true},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	cfg := NewConfig()
	cfg.DuplicatePolicy = "REJECT"
	if err := cfg.Validate(); err != nil || cfg.DuplicatePolicy != DuplicateReject {
		t.Errorf("Validate did not normalize policy: %q, %v", cfg.DuplicatePolicy, err)
	}
}

// TestSanitizeConfig tests that non-positive values fall back to defaults.
func TestSanitizeConfig(t *testing.T) {
	cfg := sanitizeConfig(Config{})
	def := defaultConfig()

	if cfg.Port != def.Port || cfg.MaxMessageSize != def.MaxMessageSize {
		t.Errorf("Port/MaxMessageSize = %q/%d", cfg.Port, cfg.MaxMessageSize)
	}
	if cfg.IdleTimeout != def.IdleTimeout || cfg.ReapInterval != def.ReapInterval {
		t.Errorf("IdleTimeout/ReapInterval = %v/%v", cfg.IdleTimeout, cfg.ReapInterval)
	}
	if cfg.SendQueueSize != def.SendQueueSize || cfg.RateLimit != def.RateLimit {
		t.Errorf("SendQueueSize/RateLimit = %d/%+v", cfg.SendQueueSize, cfg.RateLimit)
	}
	if cfg.HTTPAddr != "" {
		t.Errorf("HTTPAddr = %q, empty must stay empty", cfg.HTTPAddr)
	}

	origins := []string{"http://a.test"}
	out := sanitizeConfig(Config{AllowedOrigins: origins})
	out.AllowedOrigins[0] = "changed"
	if origins[0] != "http://a.test" {
		t.Error("sanitizeConfig aliased AllowedOrigins")
	}
}

// TestNewConfigFromEnv tests the environment-only configuration path.
func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":6100")
	t.Setenv("FRAMING", "line")
	t.Setenv("IDLE_TIMEOUT", "45")

	cfg := NewConfigFromEnv()
	if cfg.Port != ":6100" || cfg.Framing != transport.FramingLine || cfg.IdleTimeout != 45*time.Second {
		t.Errorf("config = %q/%q/%v", cfg.Port, cfg.Framing, cfg.IdleTimeout)
	}
	if cfg.ReapInterval != 60*time.Second {
		t.Errorf("ReapInterval = %v, want default", cfg.ReapInterval)
	}
}
