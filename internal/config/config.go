// Package config loads server settings from an optional YAML file, then
// applies environment overrides. Environment wins so deployments can keep a
// checked-in file and still override per instance.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backend names accepted in the "store" key.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Config is the full server configuration.
type Config struct {
	// Addr is the listen address.
	Addr string `yaml:"addr"`
	// BaseURL prefixes snapshot share links. Defaults to http://<addr>.
	BaseURL string `yaml:"base_url"`

	// Store selects the snapshot backend: memory, sqlite, or postgres.
	Store string `yaml:"store"`
	// SQLitePath is the database file for the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
	// DatabaseURL is the postgres connection string.
	DatabaseURL string `yaml:"database_url"`
	// RedisAddr enables the cross-instance broadcast bridge when set.
	RedisAddr string `yaml:"redis_addr"`

	// MaxSnapshots bounds the store; 0 means unbounded. At capacity the
	// oldest snapshot is evicted.
	MaxSnapshots int `yaml:"max_snapshots"`
	// ClearOnSave empties the live document after each save.
	ClearOnSave bool `yaml:"clear_on_save"`
	// AppendUpdates switches updates from replacement to append.
	AppendUpdates bool `yaml:"append_updates"`
	// MaxDocumentLen bounds the document in append mode; 0 means unbounded.
	MaxDocumentLen int `yaml:"max_document_len"`

	// ChatEnabled turns on the chat log and its events.
	ChatEnabled bool `yaml:"chat_enabled"`
	// ChatHistory caps retained chat messages.
	ChatHistory int `yaml:"chat_history"`

	// WriteTimeoutRaw bounds each durable store operation, as a duration
	// string like "5s". Parsed into WriteTimeout by Load.
	WriteTimeoutRaw string        `yaml:"write_timeout"`
	WriteTimeout    time.Duration `yaml:"-"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		Addr:         ":8080",
		Store:        StoreMemory,
		SQLitePath:   "sharethecode.db",
		ChatHistory:  200,
		WriteTimeout: 5 * time.Second,
	}
}

// Load reads the file at path (skipped when path is empty) over the defaults
// and then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if cfg.WriteTimeoutRaw != "" {
		d, err := time.ParseDuration(cfg.WriteTimeoutRaw)
		if err != nil {
			return Config{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.WriteTimeout = d
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	if cfg.BaseURL == "" {
		if strings.HasPrefix(cfg.Addr, ":") {
			cfg.BaseURL = "http://localhost" + cfg.Addr
		} else {
			cfg.BaseURL = "http://" + cfg.Addr
		}
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SHARETHECODE_ADDR"); v != "" {
		c.Addr = v
	}
	if v := os.Getenv("SHARETHECODE_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("SHARETHECODE_STORE"); v != "" {
		c.Store = v
	}
	if v := os.Getenv("SHARETHECODE_SQLITE_PATH"); v != "" {
		c.SQLitePath = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
}

func (c *Config) validate() error {
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("store %q requires database_url or DATABASE_URL", c.Store)
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.MaxSnapshots < 0 {
		return fmt.Errorf("max_snapshots must not be negative")
	}
	if c.ChatHistory < 0 {
		return fmt.Errorf("chat_history must not be negative")
	}
	return nil
}
