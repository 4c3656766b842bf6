package config

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name          string
		setupEnv      func(context.Context, *Config) error
		expectError   bool
		errorContains string
		validate      func(*testing.T, *Config)
	}{
		{
			name: "defaults are accepted",
			setupEnv: func(ctx context.Context, cfg *Config) error {
				applyDefaults(cfg)
				return nil
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 3, cfg.MaxRetries)
				assert.Equal(t, 2, cfg.BaseBackoff)
				assert.Equal(t, time.Second, cfg.PollInterval)
				assert.Equal(t, BackoffModeSleep, cfg.BackoffMode)
			},
		},
		{
			name: "env processing failure",
			setupEnv: func(ctx context.Context, cfg *Config) error {
				return errors.New("env: QUEUECTL_MAX_RETRIES is not an int")
			},
			expectError:   true,
			errorContains: "failed to process env config",
		},
		{
			name: "validation error after successful env processing",
			setupEnv: func(ctx context.Context, cfg *Config) error {
				applyDefaults(cfg)
				cfg.BackoffMode = "later"
				return nil
			},
			expectError:   true,
			errorContains: "config validation failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			originalEnvProcess := envProcess
			defer func() { envProcess = originalEnvProcess }()

			envProcess = func(ctx context.Context, v any, mus ...envconfig.Mutator) error {
				return tt.setupEnv(ctx, v.(*Config))
			}

			cfg, err := LoadFromEnv(context.Background())
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				return
			}

			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, cfg)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := Default()
	cfg.MaxRetries = -1
	cfg.ClaimRetries = 0
	cfg.Shell = " "

	err := validateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUECTL_MAX_RETRIES must be non-negative")
	assert.Contains(t, err.Error(), "QUEUECTL_CLAIM_RETRIES must be at least 1")
	assert.Contains(t, err.Error(), "QUEUECTL_SHELL is required")
}

func TestConfig_Set(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
		check   func(*testing.T, *Config)
	}{
		{
			name:  "max retries",
			key:   KeyMaxRetries,
			value: "7",
			check: func(t *testing.T, c *Config) { assert.Equal(t, 7, c.MaxRetries) },
		},
		{
			name:  "base backoff",
			key:   KeyBaseBackoff,
			value: "3",
			check: func(t *testing.T, c *Config) { assert.Equal(t, 3, c.BaseBackoff) },
		},
		{
			name:  "poll interval",
			key:   KeyPollInterval,
			value: "250ms",
			check: func(t *testing.T, c *Config) { assert.Equal(t, 250*time.Millisecond, c.PollInterval) },
		},
		{
			name:  "backoff mode is case-insensitive",
			key:   KeyBackoffMode,
			value: "SCHEDULE",
			check: func(t *testing.T, c *Config) { assert.Equal(t, BackoffModeSchedule, c.BackoffMode) },
		},
		{
			name:    "unknown key",
			key:     "colour",
			value:   "blue",
			wantErr: "unknown config key",
		},
		{
			name:    "not an integer",
			key:     KeyMaxRetries,
			value:   "many",
			wantErr: "invalid value for max_retries",
		},
		{
			name:    "fails validation and keeps old value",
			key:     KeyMaxRetries,
			value:   "-2",
			wantErr: "max_retries must be non-negative",
			check:   func(t *testing.T, c *Config) { assert.Equal(t, 3, c.MaxRetries) },
		},
		{
			name:    "error names the key, not the env var",
			key:     KeyBaseBackoff,
			value:   "-1",
			wantErr: "base_backoff must be non-negative",
		},
		{
			name:    "claim retries lower bound",
			key:     KeyClaimRetries,
			value:   "0",
			wantErr: "claim_retries must be at least 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			err := cfg.Set(tt.key, tt.value)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfig_GetAndApply(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Apply(map[string]string{
		KeyMaxRetries:  "5",
		KeyBaseBackoff: "4",
	}))

	v, ok := cfg.Get(KeyMaxRetries)
	assert.True(t, ok)
	assert.Equal(t, "5", v)
	assert.Equal(t, 4, cfg.GetInt(KeyBaseBackoff, 0))
	assert.Equal(t, 9, cfg.GetInt("missing", 9))
	assert.Equal(t, 9, cfg.GetInt(KeyShell, 9))

	_, ok = cfg.Get("missing")
	assert.False(t, ok)

	values := cfg.Values()
	assert.Len(t, values, len(cfg.Keys()))
	assert.Equal(t, "/bin/sh", values[KeyShell])

	err := cfg.Apply(map[string]string{"nope": "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply nope")
}

func TestParseJobState(t *testing.T) {
	s, err := ParseJobState("pending")
	require.NoError(t, err)
	assert.Equal(t, JobStatePending, s)

	s, err = ParseJobState(" Dead ")
	require.NoError(t, err)
	assert.Equal(t, JobStateDead, s)

	_, err = ParseJobState("bogus-state")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown job state")
}
