// Package config loads gateway configuration from the environment.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/metamcp/metamcp/pkg/errors"
)

// Defaults applied when the corresponding env var is unset.
const (
	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 12009
	DefaultTokenTTLMinutes = 15
)

// Config holds the resolved gateway configuration.
type Config struct {
	// DatabaseURL is the Postgres connection string. Required.
	DatabaseURL string

	// JWTSecret signs bearer tokens. Required.
	JWTSecret string

	// EncryptionKey encrypts API key material at rest. Required,
	// supplied as 64 hex characters.
	EncryptionKey [32]byte

	// ServerHost and ServerPort are the HTTP bind address.
	ServerHost string
	ServerPort int

	// TokenTTL is the lifetime of issued bearer tokens.
	TokenTTL time.Duration

	// CORSAllowedOrigins lists origins permitted to call the API.
	// Empty means same-origin only.
	CORSAllowedOrigins []string
}

// Address returns the host:port the HTTP server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_HOST", DefaultServerHost)
	v.SetDefault("SERVER_PORT", DefaultServerPort)
	v.SetDefault("TOKEN_TTL_MINUTES", DefaultTokenTTLMinutes)

	cfg := &Config{
		DatabaseURL: v.GetString("DATABASE_URL"),
		JWTSecret:   v.GetString("JWT_SECRET"),
		ServerHost:  v.GetString("SERVER_HOST"),
		ServerPort:  v.GetInt("SERVER_PORT"),
		TokenTTL:    time.Duration(v.GetInt("TOKEN_TTL_MINUTES")) * time.Minute,
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New(errors.KindConfig, "DATABASE_URL must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New(errors.KindConfig, "JWT_SECRET must be set")
	}
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		return nil, errors.Newf(errors.KindConfig, "SERVER_PORT out of range: %d", cfg.ServerPort)
	}
	if cfg.TokenTTL <= 0 {
		return nil, errors.Newf(errors.KindConfig, "TOKEN_TTL_MINUTES must be positive")
	}

	key, err := parseEncryptionKey(v.GetString("ENCRYPTION_KEY"))
	if err != nil {
		return nil, err
	}
	cfg.EncryptionKey = key

	if origins := v.GetString("CORS_ALLOWED_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
			}
		}
	}

	return cfg, nil
}

// parseEncryptionKey decodes the 64 hex character key into its 32 raw bytes.
func parseEncryptionKey(s string) ([32]byte, error) {
	var key [32]byte
	if s == "" {
		return key, errors.New(errors.KindConfig, "ENCRYPTION_KEY must be set")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return key, errors.Wrap(errors.KindConfig, "ENCRYPTION_KEY is not valid hex", err)
	}
	if len(raw) != 32 {
		return key, errors.Newf(errors.KindConfig, "ENCRYPTION_KEY must decode to 32 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}
