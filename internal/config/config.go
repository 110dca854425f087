// Package config provides server configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/morezero/agent-link/pkg/codec"
	"github.com/morezero/agent-link/pkg/semver"
)

const logPrefix = "config:LoadConfig"

// Config holds agent-link configuration.
type Config struct {
	// Agent listener
	ListenAddr       string        `envconfig:"AGENTLINK_LISTEN_ADDR" default:"127.0.0.1:9870"`
	ProtocolVersion  int           `envconfig:"AGENTLINK_PROTOCOL_VERSION" default:"1"`
	ClientConstraint string        `envconfig:"AGENTLINK_CLIENT_CONSTRAINT"`
	HandshakeTimeout time.Duration `envconfig:"AGENTLINK_HANDSHAKE_TIMEOUT" default:"10s"`
	AllowedOrigins   []string      `envconfig:"AGENTLINK_ALLOWED_ORIGINS"`

	// Heartbeat
	HeartbeatInterval time.Duration `envconfig:"AGENTLINK_HEARTBEAT_INTERVAL" default:"10s"`
	HeartbeatTimeout  time.Duration `envconfig:"AGENTLINK_HEARTBEAT_TIMEOUT" default:"30s"`

	// Limits
	MaxFrameBytes      int `envconfig:"AGENTLINK_MAX_FRAME_BYTES" default:"33554432"`
	MaxPayloadBytes    int `envconfig:"AGENTLINK_MAX_PAYLOAD_BYTES" default:"1048576"`
	MaxAttachmentBytes int `envconfig:"AGENTLINK_MAX_ATTACHMENT_BYTES" default:"16777216"`
	MaxInFlight        int `envconfig:"AGENTLINK_MAX_INFLIGHT" default:"8"`
	EventQueueSize     int `envconfig:"AGENTLINK_EVENT_QUEUE_SIZE" default:"256"`

	// Dispatch
	RequestTimeout   time.Duration `envconfig:"AGENTLINK_REQUEST_TIMEOUT" default:"25s"`
	DedupeIdempotent bool          `envconfig:"AGENTLINK_DEDUPE_IDEMPOTENT" default:"true"`

	// Project manifest (empty = config/project.json, project.json, then built-in sample)
	ProjectFile string `envconfig:"AGENTLINK_PROJECT_FILE"`

	// COMMS: mirror host events to NATS at COMMSURL. Empty disables the mirror.
	COMMSURL           string `envconfig:"COMMS_URL"`
	COMMSName          string `envconfig:"SERVICE_NAME" default:"agent-link"`
	EventSubjectPrefix string `envconfig:"AGENTLINK_EVENT_SUBJECT_PREFIX" default:"agentlink.events"`

	// Database audit sink. Empty DATABASE_URL disables it.
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	RunMigrations bool   `envconfig:"RUN_MIGRATIONS" default:"false"`
	MigrationPath string `envconfig:"MIGRATION_PATH" default:"migrations"`

	// HTTP admin endpoint (AGENTLINK_HTTP_ADDR preferred, e.g. "0.0.0.0:8080")
	HTTPAddr           string        `envconfig:"AGENTLINK_HTTP_ADDR"`
	HTTPPort           int           `envconfig:"HTTP_PORT" default:"8080"`
	HealthCheckTimeout time.Duration `envconfig:"HEALTH_CHECK_TIMEOUT" default:"5s"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Limits returns the codec limits the config describes.
func (c *Config) Limits() codec.Limits {
	return codec.Limits{
		MaxPayload:    c.MaxPayloadBytes,
		MaxAttachment: c.MaxAttachmentBytes,
		MaxFrame:      c.MaxFrameBytes,
	}
}

// Constraint parses ClientConstraint. An empty value yields nil.
func (c *Config) Constraint() (*semver.Constraint, error) {
	if strings.TrimSpace(c.ClientConstraint) == "" {
		return nil, nil
	}
	cons, err := semver.ParseConstraint(c.ClientConstraint)
	if err != nil {
		return nil, fmt.Errorf("%s - AGENTLINK_CLIENT_CONSTRAINT: %w", logPrefix, err)
	}
	return cons, nil
}

// HTTPListenAddr returns HTTPAddr, or ":<HTTPPort>" when unset.
func (c *Config) HTTPListenAddr() string {
	if c.HTTPAddr != "" {
		return c.HTTPAddr
	}
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ValidateForServe checks required config when running the bridge.
func (c *Config) ValidateForServe() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%s - AGENTLINK_LISTEN_ADDR is required for serve", logPrefix)
	}
	if c.ProtocolVersion <= 0 {
		return fmt.Errorf("%s - AGENTLINK_PROTOCOL_VERSION must be positive", logPrefix)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%s - AGENTLINK_REQUEST_TIMEOUT must be positive", logPrefix)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%s - AGENTLINK_HANDSHAKE_TIMEOUT must be positive", logPrefix)
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("%s - AGENTLINK_HEARTBEAT_TIMEOUT must exceed a positive AGENTLINK_HEARTBEAT_INTERVAL", logPrefix)
	}
	if c.HealthCheckTimeout <= 0 {
		return fmt.Errorf("%s - HEALTH_CHECK_TIMEOUT must be positive", logPrefix)
	}
	if c.MaxInFlight <= 0 {
		return fmt.Errorf("%s - AGENTLINK_MAX_INFLIGHT must be positive", logPrefix)
	}
	if c.EventQueueSize <= 0 {
		return fmt.Errorf("%s - AGENTLINK_EVENT_QUEUE_SIZE must be positive", logPrefix)
	}
	if c.MaxPayloadBytes <= 0 || c.MaxAttachmentBytes < 0 || c.MaxFrameBytes <= 0 {
		return fmt.Errorf("%s - frame, payload and attachment limits must be positive", logPrefix)
	}
	if c.MaxFrameBytes < c.MaxPayloadBytes {
		return fmt.Errorf("%s - AGENTLINK_MAX_FRAME_BYTES (%d) is below AGENTLINK_MAX_PAYLOAD_BYTES (%d)",
			logPrefix, c.MaxFrameBytes, c.MaxPayloadBytes)
	}
	if _, err := c.Constraint(); err != nil {
		return err
	}
	return nil
}

// ValidateForDB checks required config when running DB-dependent commands (migrate, ensure-db).
func (c *Config) ValidateForDB() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("%s - DATABASE_URL is required", logPrefix)
	}
	return nil
}
