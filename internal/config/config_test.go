package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

var configEnv = []string{
	"AGENTLINK_LISTEN_ADDR", "AGENTLINK_PROTOCOL_VERSION", "AGENTLINK_CLIENT_CONSTRAINT",
	"AGENTLINK_HANDSHAKE_TIMEOUT", "AGENTLINK_ALLOWED_ORIGINS",
	"AGENTLINK_HEARTBEAT_INTERVAL", "AGENTLINK_HEARTBEAT_TIMEOUT",
	"AGENTLINK_MAX_FRAME_BYTES", "AGENTLINK_MAX_PAYLOAD_BYTES", "AGENTLINK_MAX_ATTACHMENT_BYTES",
	"AGENTLINK_MAX_INFLIGHT", "AGENTLINK_EVENT_QUEUE_SIZE",
	"AGENTLINK_REQUEST_TIMEOUT", "AGENTLINK_DEDUPE_IDEMPOTENT", "AGENTLINK_PROJECT_FILE",
	"COMMS_URL", "SERVICE_NAME", "AGENTLINK_EVENT_SUBJECT_PREFIX",
	"DATABASE_URL", "RUN_MIGRATIONS", "MIGRATION_PATH",
	"AGENTLINK_HTTP_ADDR", "HTTP_PORT", "HEALTH_CHECK_TIMEOUT", "LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, env := range configEnv {
		if v, ok := os.LookupEnv(env); ok {
			os.Unsetenv(env)
			t.Cleanup(func() { os.Setenv(env, v) })
		}
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9870" {
		t.Errorf("config:config_test - ListenAddr = %q, want %q", cfg.ListenAddr, "127.0.0.1:9870")
	}
	if cfg.ProtocolVersion != 1 {
		t.Errorf("config:config_test - ProtocolVersion = %d, want 1", cfg.ProtocolVersion)
	}
	if cfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("config:config_test - HandshakeTimeout = %v, want 10s", cfg.HandshakeTimeout)
	}
	if cfg.HeartbeatInterval != 10*time.Second || cfg.HeartbeatTimeout != 30*time.Second {
		t.Errorf("config:config_test - heartbeat = %v/%v, want 10s/30s", cfg.HeartbeatInterval, cfg.HeartbeatTimeout)
	}
	if cfg.MaxFrameBytes != 32<<20 || cfg.MaxPayloadBytes != 1<<20 || cfg.MaxAttachmentBytes != 16<<20 {
		t.Errorf("config:config_test - limits = %+v, unexpected defaults", cfg.Limits())
	}
	if cfg.MaxInFlight != 8 {
		t.Errorf("config:config_test - MaxInFlight = %d, want 8", cfg.MaxInFlight)
	}
	if cfg.EventQueueSize != 256 {
		t.Errorf("config:config_test - EventQueueSize = %d, want 256", cfg.EventQueueSize)
	}
	if cfg.RequestTimeout != 25*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 25s", cfg.RequestTimeout)
	}
	if !cfg.DedupeIdempotent {
		t.Error("config:config_test - expected DedupeIdempotent=true by default")
	}
	if cfg.COMMSURL != "" {
		t.Errorf("config:config_test - COMMSURL = %q, want empty", cfg.COMMSURL)
	}
	if cfg.COMMSName != "agent-link" {
		t.Errorf("config:config_test - COMMSName = %q, want %q", cfg.COMMSName, "agent-link")
	}
	if cfg.EventSubjectPrefix != "agentlink.events" {
		t.Errorf("config:config_test - EventSubjectPrefix = %q", cfg.EventSubjectPrefix)
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("config:config_test - DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=false by default")
	}
	if cfg.MigrationPath != "migrations" {
		t.Errorf("config:config_test - MigrationPath = %q, want %q", cfg.MigrationPath, "migrations")
	}
	if cfg.HTTPListenAddr() != ":8080" {
		t.Errorf("config:config_test - HTTPListenAddr = %q, want :8080", cfg.HTTPListenAddr())
	}
	if cfg.HealthCheckTimeout != 5*time.Second {
		t.Errorf("config:config_test - HealthCheckTimeout = %v, want 5s", cfg.HealthCheckTimeout)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("config:config_test - SlogLevel = %v, want info", cfg.SlogLevel())
	}
	if err := cfg.ValidateForServe(); err != nil {
		t.Errorf("config:config_test - defaults should validate: %v", err)
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	overrides := map[string]string{
		"AGENTLINK_LISTEN_ADDR":       "0.0.0.0:7000",
		"AGENTLINK_CLIENT_CONSTRAINT": "^1.2.0",
		"AGENTLINK_ALLOWED_ORIGINS":   "http://a.local,http://b.local",
		"AGENTLINK_MAX_INFLIGHT":      "4",
		"AGENTLINK_REQUEST_TIMEOUT":   "2s",
		"AGENTLINK_DEDUPE_IDEMPOTENT": "false",
		"AGENTLINK_PROJECT_FILE":      "/tmp/project.json",
		"COMMS_URL":                   "nats://custom:4222",
		"DATABASE_URL":                "postgres://test@localhost/test",
		"RUN_MIGRATIONS":              "true",
		"AGENTLINK_HTTP_ADDR":         "127.0.0.1:9999",
		"LOG_LEVEL":                   "debug",
	}
	for k, v := range overrides {
		t.Setenv(k, v)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("config:config_test - unexpected error: %v", err)
	}
	if cfg.ListenAddr != "0.0.0.0:7000" {
		t.Errorf("config:config_test - ListenAddr = %q", cfg.ListenAddr)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.local" {
		t.Errorf("config:config_test - AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.MaxInFlight != 4 {
		t.Errorf("config:config_test - MaxInFlight = %d, want 4", cfg.MaxInFlight)
	}
	if cfg.RequestTimeout != 2*time.Second {
		t.Errorf("config:config_test - RequestTimeout = %v, want 2s", cfg.RequestTimeout)
	}
	if cfg.DedupeIdempotent {
		t.Error("config:config_test - expected DedupeIdempotent=false")
	}
	if cfg.ProjectFile != "/tmp/project.json" {
		t.Errorf("config:config_test - ProjectFile = %q", cfg.ProjectFile)
	}
	if cfg.COMMSURL != "nats://custom:4222" {
		t.Errorf("config:config_test - COMMSURL = %q", cfg.COMMSURL)
	}
	if !cfg.RunMigrations {
		t.Error("config:config_test - expected RunMigrations=true")
	}
	if cfg.HTTPListenAddr() != "127.0.0.1:9999" {
		t.Errorf("config:config_test - HTTPListenAddr = %q", cfg.HTTPListenAddr())
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("config:config_test - SlogLevel = %v, want debug", cfg.SlogLevel())
	}
	cons, err := cfg.Constraint()
	if err != nil || cons == nil {
		t.Fatalf("config:config_test - Constraint() = %v, %v", cons, err)
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("AGENTLINK_REQUEST_TIMEOUT", "soon")
	if _, err := LoadConfig(); err == nil {
		t.Fatal("config:config_test - expected error for invalid duration")
	}
}

func TestValidateForServe(t *testing.T) {
	valid := func() *Config {
		return &Config{
			ListenAddr:         "127.0.0.1:0",
			ProtocolVersion:    1,
			HandshakeTimeout:   time.Second,
			HeartbeatInterval:  time.Second,
			HeartbeatTimeout:   3 * time.Second,
			MaxFrameBytes:      1024,
			MaxPayloadBytes:    512,
			MaxAttachmentBytes: 256,
			MaxInFlight:        1,
			EventQueueSize:     1,
			RequestTimeout:     time.Second,
			HealthCheckTimeout: time.Second,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, true},
		{"zero protocol version", func(c *Config) { c.ProtocolVersion = 0 }, true},
		{"zero request timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"heartbeat timeout not above interval", func(c *Config) { c.HeartbeatTimeout = c.HeartbeatInterval }, true},
		{"zero inflight cap", func(c *Config) { c.MaxInFlight = 0 }, true},
		{"zero event queue", func(c *Config) { c.EventQueueSize = 0 }, true},
		{"frame below payload", func(c *Config) { c.MaxFrameBytes = 100 }, true},
		{"bad constraint", func(c *Config) { c.ClientConstraint = "not a range" }, true},
		{"good constraint", func(c *Config) { c.ClientConstraint = ">=1.0.0" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.ValidateForServe()
			if (err != nil) != tt.wantErr {
				t.Errorf("config:config_test - ValidateForServe() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateForDB(t *testing.T) {
	if err := (&Config{}).ValidateForDB(); err == nil {
		t.Error("config:config_test - expected error without DATABASE_URL")
	}
	if err := (&Config{DatabaseURL: "postgres://x"}).ValidateForDB(); err != nil {
		t.Errorf("config:config_test - unexpected error: %v", err)
	}
}
