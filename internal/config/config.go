// Package config loads the gateway's environment-driven configuration.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Config captures every knob the gateway reads from the environment.
// Defaults match the values the deployed service has always shipped with.
type Config struct {
	// Host is the bind address. ENV: MCP_HOST
	Host string `env:"MCP_HOST,default=0.0.0.0"`
	// Port is the listen port. ENV: MCP_PORT
	Port int `env:"MCP_PORT,default=9000"`

	// BearerToken enables static bearer-token authentication when non-empty.
	// ENV: BEARER_TOKEN
	BearerToken string `env:"BEARER_TOKEN,default="`
	// JWTSecret enables HS256 JWT bearer validation when non-empty. Takes
	// precedence over BearerToken.
	// ENV: AUTH_JWT_SECRET
	JWTSecret string `env:"AUTH_JWT_SECRET,default="`

	// LogLevel is one of debug, info, warn, error. ENV: LOG_LEVEL
	LogLevel string `env:"LOG_LEVEL,default=info"`

	// SessionTTL bounds how long an idle streaming session is retained.
	// ENV: SESSION_TTL
	SessionTTL time.Duration `env:"SESSION_TTL,default=30m"`
	// SessionBackend selects the session store: "memory" or "redis".
	// ENV: SESSION_BACKEND
	SessionBackend string `env:"SESSION_BACKEND,default=memory"`
	// RedisAddr like "localhost:6379", used when SessionBackend is "redis".
	// ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// RedisKeyPrefix namespaces session keys in Redis.
	// ENV: SESSIONS_KEY_PREFIX
	RedisKeyPrefix string `env:"SESSIONS_KEY_PREFIX,default=uptimecheck:sessions:"`
}

// Load populates a Config from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthEnabled reports whether any bearer credential check is configured.
func (c *Config) AuthEnabled() bool {
	return c.BearerToken != "" || c.JWTSecret != ""
}

// SlogLevel maps the configured LOG_LEVEL string to a slog.Level. Unknown
// values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
