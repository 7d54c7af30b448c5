// Package config loads the runtime configuration from a YAML (or JSON) file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aretw0/autotron/pkg/adapters/process"
	"github.com/aretw0/autotron/pkg/persistence/middleware"
	"gopkg.in/yaml.v3"
)

// EncryptionKeyEnv overrides encryption.key so the key can stay out of the file.
const EncryptionKeyEnv = "AUTOTRON_ENCRYPTION_KEY"

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Redis configures the redis graph store.
type Redis struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	Prefix   string `yaml:"prefix" json:"prefix"`
}

// Encryption configures at-rest encryption of stored graphs.
// Keys are base64 encoded 32 byte AES keys.
type Encryption struct {
	Key          string   `yaml:"key" json:"key"`
	FallbackKeys []string `yaml:"fallback_keys" json:"fallback_keys"`
}

// Enabled reports whether stored graphs are encrypted.
func (e Encryption) Enabled() bool {
	return e.Key != ""
}

// Config is the runtime configuration.
type Config struct {
	GraphDir string `yaml:"graph_dir" json:"graph_dir"`
	Store    string `yaml:"store" json:"store"`
	Redis    Redis  `yaml:"redis" json:"redis"`

	Encryption Encryption     `yaml:"encryption" json:"encryption"`
	Bridge     process.Config `yaml:"bridge" json:"bridge"`

	TickInterval    time.Duration `yaml:"tick_interval" json:"tick_interval"`
	AuditInterval   time.Duration `yaml:"audit_interval" json:"audit_interval"`
	FrontendTimeout time.Duration `yaml:"frontend_timeout" json:"frontend_timeout"`

	CommandGrace time.Duration `yaml:"command_grace" json:"command_grace"`
	MaxHistory   int           `yaml:"max_history" json:"max_history"`
	VerifyDelay  time.Duration `yaml:"verify_delay" json:"verify_delay"`
	MaxAttempts  int           `yaml:"max_attempts" json:"max_attempts"`

	ActuationTimeout time.Duration `yaml:"actuation_timeout" json:"actuation_timeout"`
	ActuationRate    float64       `yaml:"actuation_rate" json:"actuation_rate"`
	ActuationBurst   int           `yaml:"actuation_burst" json:"actuation_burst"`

	HTTPAddr string `yaml:"http_addr" json:"http_addr"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		GraphDir:         "graphs",
		Store:            StoreFile,
		Redis:            Redis{Addr: "localhost:6379", Prefix: "autotron"},
		TickInterval:     500 * time.Millisecond,
		AuditInterval:    time.Minute,
		FrontendTimeout:  30 * time.Second,
		CommandGrace:     2 * time.Second,
		MaxHistory:       1000,
		VerifyDelay:      5 * time.Second,
		MaxAttempts:      2,
		ActuationTimeout: 10 * time.Second,
		ActuationRate:    20,
		ActuationBurst:   5,
		HTTPAddr:         ":8080",
		LogLevel:         "info",
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// The encryption key may also come from the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return cfg, fmt.Errorf("failed to read config: %w", err)
		default:
			// JSON documents are valid YAML.
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}
	if key := os.Getenv(EncryptionKeyEnv); key != "" {
		cfg.Encryption.Key = key
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store: unknown backend %q", c.Store))
	}
	if c.Store == StoreFile && c.GraphDir == "" {
		errs = append(errs, errors.New("graph_dir: required for the file store"))
	}
	if c.Store == StoreRedis && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr: required for the redis store"))
	}
	for name, d := range map[string]time.Duration{
		"tick_interval":     c.TickInterval,
		"frontend_timeout":  c.FrontendTimeout,
		"verify_delay":      c.VerifyDelay,
		"actuation_timeout": c.ActuationTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", name))
		}
	}
	if c.AuditInterval < 0 || c.CommandGrace < 0 {
		errs = append(errs, errors.New("audit_interval and command_grace must not be negative"))
	}
	if c.MaxHistory <= 0 {
		errs = append(errs, errors.New("max_history: must be positive"))
	}
	if c.Encryption.Enabled() {
		keys, err := middleware.ParseKeys(c.Encryption.Key, c.Encryption.FallbackKeys...)
		if err == nil {
			_, err = middleware.NewEncryptionMiddleware(keys)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("encryption: %w", err))
		}
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, errors.New("max_attempts: must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
