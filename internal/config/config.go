package config

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the process-wide queue configuration. It is built once at
// startup and handed to every component that needs it.
type Config struct {
	MaxRetries      int           `env:"QUEUECTL_MAX_RETRIES,default=3"`
	BaseBackoff     int           `env:"QUEUECTL_BASE_BACKOFF,default=2"`
	PollInterval    time.Duration `env:"QUEUECTL_POLL_INTERVAL,default=1s"`
	BackoffMode     string        `env:"QUEUECTL_BACKOFF_MODE,default=sleep"`
	Shell           string        `env:"QUEUECTL_SHELL,default=/bin/sh"`
	ClaimRetries    int           `env:"QUEUECTL_CLAIM_RETRIES,default=5"`
	StaleAfter      time.Duration `env:"QUEUECTL_STALE_AFTER,default=0s"`
	ShutdownTimeout time.Duration `env:"QUEUECTL_SHUTDOWN_TIMEOUT,default=10s"`
	Workers         int           `env:"QUEUECTL_WORKERS,default=1"`
	ListenAddr      string        `env:"QUEUECTL_LISTEN_ADDR,default=:8080"`
	LogLevel        string        `env:"QUEUECTL_LOG_LEVEL,default=info"`
	LogFormat       string        `env:"QUEUECTL_LOG_FORMAT,default=text"`

	mu sync.RWMutex
}

// to help with testing
var envProcess = envconfig.Process

func LoadFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns a Config populated with the documented defaults.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(c *Config) {
	c.MaxRetries = 3
	c.BaseBackoff = 2
	c.PollInterval = time.Second
	c.BackoffMode = BackoffModeSleep
	c.Shell = "/bin/sh"
	c.ClaimRetries = 5
	c.StaleAfter = 0
	c.ShutdownTimeout = 10 * time.Second
	c.Workers = 1
	c.ListenAddr = ":8080"
	c.LogLevel = "info"
	c.LogFormat = "text"
}

func validateConfig(cfg *Config) error {
	var errors []string

	if cfg.MaxRetries < 0 {
		errors = append(errors, "QUEUECTL_MAX_RETRIES must be non-negative")
	}
	if cfg.BaseBackoff < 0 {
		errors = append(errors, "QUEUECTL_BASE_BACKOFF must be non-negative")
	}
	if cfg.PollInterval <= 0 {
		errors = append(errors, "QUEUECTL_POLL_INTERVAL must be positive")
	}
	if cfg.BackoffMode != BackoffModeSleep && cfg.BackoffMode != BackoffModeSchedule {
		errors = append(errors, "QUEUECTL_BACKOFF_MODE must be sleep or schedule")
	}
	if strings.TrimSpace(cfg.Shell) == "" {
		errors = append(errors, "QUEUECTL_SHELL is required")
	}
	if cfg.ClaimRetries < 1 {
		errors = append(errors, "QUEUECTL_CLAIM_RETRIES must be at least 1")
	}
	if cfg.StaleAfter < 0 {
		errors = append(errors, "QUEUECTL_STALE_AFTER must be non-negative")
	}
	if cfg.ShutdownTimeout < 0 {
		errors = append(errors, "QUEUECTL_SHUTDOWN_TIMEOUT must be non-negative")
	}
	if cfg.Workers < 1 {
		errors = append(errors, "QUEUECTL_WORKERS must be at least 1")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}
	return nil
}

// Keys lists the keys accepted by Get and Set, sorted.
func (c *Config) Keys() []string {
	keys := []string{
		KeyMaxRetries,
		KeyBaseBackoff,
		KeyPollInterval,
		KeyBackoffMode,
		KeyShell,
		KeyClaimRetries,
		KeyStaleAfter,
		KeyShutdownTimeout,
	}
	sort.Strings(keys)
	return keys
}

// Get returns the string form of a settable key.
func (c *Config) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch key {
	case KeyMaxRetries:
		return strconv.Itoa(c.MaxRetries), true
	case KeyBaseBackoff:
		return strconv.Itoa(c.BaseBackoff), true
	case KeyPollInterval:
		return c.PollInterval.String(), true
	case KeyBackoffMode:
		return c.BackoffMode, true
	case KeyShell:
		return c.Shell, true
	case KeyClaimRetries:
		return strconv.Itoa(c.ClaimRetries), true
	case KeyStaleAfter:
		return c.StaleAfter.String(), true
	case KeyShutdownTimeout:
		return c.ShutdownTimeout.String(), true
	}
	return "", false
}

// GetInt looks key up and parses it, returning def when the key is unknown
// or not an integer.
func (c *Config) GetInt(key string, def int) int {
	v, ok := c.Get(key)
	if !ok {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

// Set parses and validates value for key. The previous value is kept on error.
func (c *Config) Set(key, value string) error {
	value = strings.TrimSpace(value)

	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.snapshot()
	switch key {
	case KeyMaxRetries:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q", key, value)
		}
		next.MaxRetries = i
	case KeyBaseBackoff:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q", key, value)
		}
		next.BaseBackoff = i
	case KeyPollInterval:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q", key, value)
		}
		next.PollInterval = d
	case KeyBackoffMode:
		next.BackoffMode = strings.ToLower(value)
	case KeyShell:
		next.Shell = value
	case KeyClaimRetries:
		i, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q", key, value)
		}
		next.ClaimRetries = i
	case KeyStaleAfter:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q", key, value)
		}
		next.StaleAfter = d
	case KeyShutdownTimeout:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: %q", key, value)
		}
		next.ShutdownTimeout = d
	default:
		return fmt.Errorf("unknown config key %q", key)
	}

	if err := validateConfig(next); err != nil {
		// Report the key the caller used, not the environment variable.
		return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), envName(key), key))
	}
	c.restore(next)
	return nil
}

func envName(key string) string {
	return "QUEUECTL_" + strings.ToUpper(key)
}

// Apply sets every pair in values, stopping at the first invalid one.
func (c *Config) Apply(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := c.Set(k, values[k]); err != nil {
			return fmt.Errorf("apply %s: %w", k, err)
		}
	}
	return nil
}

// Values returns every settable key with its current value.
func (c *Config) Values() map[string]string {
	out := make(map[string]string)
	for _, k := range c.Keys() {
		v, _ := c.Get(k)
		out[k] = v
	}
	return out
}

// Snapshot returns a copy that can be read without further locking.
func (c *Config) Snapshot() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot()
}

func (c *Config) snapshot() *Config {
	return &Config{
		MaxRetries:      c.MaxRetries,
		BaseBackoff:     c.BaseBackoff,
		PollInterval:    c.PollInterval,
		BackoffMode:     c.BackoffMode,
		Shell:           c.Shell,
		ClaimRetries:    c.ClaimRetries,
		StaleAfter:      c.StaleAfter,
		ShutdownTimeout: c.ShutdownTimeout,
		Workers:         c.Workers,
		ListenAddr:      c.ListenAddr,
		LogLevel:        c.LogLevel,
		LogFormat:       c.LogFormat,
	}
}

func (c *Config) restore(n *Config) {
	c.MaxRetries = n.MaxRetries
	c.BaseBackoff = n.BaseBackoff
	c.PollInterval = n.PollInterval
	c.BackoffMode = n.BackoffMode
	c.Shell = n.Shell
	c.ClaimRetries = n.ClaimRetries
	c.StaleAfter = n.StaleAfter
	c.ShutdownTimeout = n.ShutdownTimeout
}
