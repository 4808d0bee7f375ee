package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payrecovery/internal/shared"
)

var envKeys = []string{
	"ENV", "HTTP_ADDR", "LOG_CONSOLE_LEVEL", "LOG_FILE_LEVEL", "LOG_FILE",
	"RETRY_POLL_INTERVAL", "RETRY_TIMEZONE", "RETRY_OPTIMAL_HOURS",
	"RETENTION_PERIOD", "RETENTION_SCHEDULE",
	"ARCHIVE_DRIVER", "ARCHIVE_PATH", "ARCHIVE_DSN",
	"GATEWAY_SUCCESS_RATE", "GATEWAY_OUTAGE_RATE", "GATEWAY_RETRY_ATTEMPTS",
}

// clearEnv isolates a test from the developer's environment. t.Setenv restores
// the previous values afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "prod", c.Env)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, "data/logs/payrecovery.log", c.Log.File)
	assert.Equal(t, 60*time.Second, c.Retry.PollInterval)
	assert.Equal(t, time.Local, c.Retry.Location)
	assert.Equal(t, []int{10, 14, 19}, c.Retry.OptimalHours)
	assert.Equal(t, 720*time.Hour, c.Retention.Period)
	assert.Equal(t, "@hourly", c.Retention.Schedule)
	assert.Equal(t, "sqlite", c.Archive.Driver)
	assert.Equal(t, "data/archive.db", c.Archive.Path)
	assert.InDelta(t, 0.3, c.Gateway.SuccessRate, 1e-9)
	assert.Zero(t, c.Gateway.OutageRate)
	assert.Equal(t, 3, c.Gateway.RetryAttempts)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "dev")
	t.Setenv("RETRY_POLL_INTERVAL", "5s")
	t.Setenv("RETRY_TIMEZONE", "UTC")
	t.Setenv("RETRY_OPTIMAL_HOURS", " 9, 18 ")
	t.Setenv("ARCHIVE_DRIVER", "postgres")
	t.Setenv("ARCHIVE_DSN", "postgres://localhost/payrecovery")
	t.Setenv("GATEWAY_SUCCESS_RATE", "1")

	c, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, c.Retry.PollInterval)
	assert.Equal(t, time.UTC, c.Retry.Location)
	assert.Equal(t, []int{9, 18}, c.Retry.OptimalHours)
	assert.Equal(t, "postgres", c.Archive.Driver)
	assert.InDelta(t, 1.0, c.Gateway.SuccessRate, 1e-9)
}

func TestLoad_DisableOptimalHours(t *testing.T) {
	clearEnv(t)
	t.Setenv("RETRY_OPTIMAL_HOURS", "none")

	c, err := Load()
	require.NoError(t, err)
	assert.NotNil(t, c.Retry.OptimalHours)
	assert.Empty(t, c.Retry.OptimalHours)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad env", map[string]string{"ENV": "staging"}},
		{"bad level", map[string]string{"LOG_CONSOLE_LEVEL": "loud"}},
		{"bad interval", map[string]string{"RETRY_POLL_INTERVAL": "soon"}},
		{"negative interval", map[string]string{"RETRY_POLL_INTERVAL": "-1s"}},
		{"bad timezone", map[string]string{"RETRY_TIMEZONE": "Mars/Olympus"}},
		{"hour out of range", map[string]string{"RETRY_OPTIMAL_HOURS": "10,25"}},
		{"hour not a number", map[string]string{"RETRY_OPTIMAL_HOURS": "noon"}},
		{"bad driver", map[string]string{"ARCHIVE_DRIVER": "mongo"}},
		{"postgres without dsn", map[string]string{"ARCHIVE_DRIVER": "postgres"}},
		{"rate above one", map[string]string{"GATEWAY_SUCCESS_RATE": "1.5"}},
		{"negative outage rate", map[string]string{"GATEWAY_OUTAGE_RATE": "-0.1"}},
		{"zero gateway attempts", map[string]string{"GATEWAY_RETRY_ATTEMPTS": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err), "got %v", err)
		})
	}
}
