// Package config loads process-wide configuration from environment variables. It is read once at startup in
// cmd/anonycnbot and passed by reference to every component that needs it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config holds application configuration populated from environment variables. Field groups follow spec.md §6.
type Config struct {
	// Platform credentials, shared by every relay.
	TeleAPIID   int
	TeleAPIHash string

	// Father relay (the operator bot that spawns group relays).
	FatherToken            string
	FatherInviteAwardDays  int

	// Storage root for the SQLite/Postgres database file and the SDK's own workdir.
	BaseDir string

	// Optional outbound proxy used for all platform connections.
	Proxy string

	// External cache backing. When Host is empty, cmd/anonycnbot dials localhost instead; there is no in-process
	// substitute.
	RedisHost     string
	RedisPort     int
	RedisDB       int
	RedisPassword string

	// Database, ambient (not named directly in spec.md §6 but required to reach BaseDir's store).
	DatabaseURL     string
	DatabaseMaxConn int
	DatabaseMinConn int

	// Runtime/log mode.
	Env string // "development" or "production"
}

// Load reads configuration from environment variables with defaults, returning an error if a set value cannot be
// parsed or a required security value is missing.
func Load() (*Config, error) {
	p := &parser{}

	cfg := &Config{
		TeleAPIID:   p.int("TELE_API_ID", 0),
		TeleAPIHash: envStr("TELE_API_HASH", ""),

		FatherToken:           envStr("FATHER_TOKEN", ""),
		FatherInviteAwardDays: p.int("FATHER_INVITE_AWARD_DAYS", 180),

		BaseDir: envStr("BASEDIR", "./data"),
		Proxy:   envStr("PROXY", ""),

		RedisHost:     envStr("REDIS_HOST", ""),
		RedisPort:     p.int("REDIS_PORT", 6379),
		RedisDB:       p.int("REDIS_DB", 0),
		RedisPassword: envStr("REDIS_PASSWORD", ""),

		DatabaseURL:     envStr("DATABASE_URL", ""),
		DatabaseMaxConn: p.int("DATABASE_MAX_CONNS", 25),
		DatabaseMinConn: p.int("DATABASE_MIN_CONNS", 5),

		Env: envStr("ENV", "production"),
	}

	if parseErr := errors.Join(p.errs...); parseErr != nil {
		return nil, parseErr
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment returns true when running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// RedisConfigured returns true when REDIS_HOST is set. It only gates REDIS_PORT validation: cmd/anonycnbot connects to
// a Valkey/Redis server either way (localhost when REDIS_HOST is empty), and no in-process substitute exists.
func (c *Config) RedisConfigured() bool {
	return c.RedisHost != ""
}

func (c *Config) validate() error {
	var errs []error

	if c.TeleAPIID == 0 {
		errs = append(errs, fmt.Errorf("TELE_API_ID is required"))
	}
	if c.TeleAPIHash == "" {
		errs = append(errs, fmt.Errorf("TELE_API_HASH is required"))
	}
	if c.FatherToken == "" {
		errs = append(errs, fmt.Errorf("FATHER_TOKEN is required"))
	}
	if c.BaseDir == "" {
		errs = append(errs, fmt.Errorf("BASEDIR must not be empty"))
	}
	if c.FatherInviteAwardDays < 0 {
		errs = append(errs, fmt.Errorf("FATHER_INVITE_AWARD_DAYS must not be negative"))
	}
	if c.DatabaseMaxConn < 1 {
		errs = append(errs, fmt.Errorf("DATABASE_MAX_CONNS must be at least 1"))
	}
	if c.DatabaseMinConn < 0 {
		errs = append(errs, fmt.Errorf("DATABASE_MIN_CONNS must not be negative"))
	}
	if c.DatabaseMinConn > c.DatabaseMaxConn {
		errs = append(errs, fmt.Errorf("DATABASE_MIN_CONNS (%d) must not exceed DATABASE_MAX_CONNS (%d)", c.DatabaseMinConn, c.DatabaseMaxConn))
	}
	if c.RedisConfigured() && (c.RedisPort < 1 || c.RedisPort > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be between 1 and 65535"))
	}

	return errors.Join(errs...)
}

// parser collects parse errors so Load can report all invalid values at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	return n
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
