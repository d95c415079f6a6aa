// Package config loads server settings from the environment, with an
// optional .env file for development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds everything the process reads from the environment.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":27933".
	Addr string
	// InboxSize is the engine command queue capacity.
	InboxSize int
	// MailboxSize is the per-player outbound buffer capacity.
	MailboxSize int
	// LogLevel is a logrus level name ("debug", "info", ...).
	LogLevel logrus.Level
}

const (
	defaultAddr        = ":27933"
	defaultInboxSize   = 1024
	defaultMailboxSize = 256
)

// Load reads a .env file if one is present (missing files are fine outside
// development) and resolves the configuration from environment variables:
// BK2D_ADDR, BK2D_INBOX_SIZE, BK2D_MAILBOX_SIZE, BK2D_LOG_LEVEL.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:        defaultAddr,
		InboxSize:   defaultInboxSize,
		MailboxSize: defaultMailboxSize,
		LogLevel:    logrus.InfoLevel,
	}

	if v := os.Getenv("BK2D_ADDR"); v != "" {
		cfg.Addr = v
	}
	var err error
	if cfg.InboxSize, err = intEnv("BK2D_INBOX_SIZE", cfg.InboxSize); err != nil {
		return Config{}, err
	}
	if cfg.MailboxSize, err = intEnv("BK2D_MAILBOX_SIZE", cfg.MailboxSize); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("BK2D_LOG_LEVEL"); v != "" {
		level, err := logrus.ParseLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: bad BK2D_LOG_LEVEL: %w", err)
		}
		cfg.LogLevel = level
	}
	return cfg, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}
