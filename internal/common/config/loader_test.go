package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
app:
  name: service-dispatch
camunda:
  broker_address: localhost:26500
database:
  postgres:
    host: localhost
    database: dispatch
    user: dispatch
    password: ${TEST_DISPATCH_DB_PASSWORD}
  redis:
    address: localhost:6379
dispatch:
  top_n: 3
  urgency_timeouts:
    urgent: 300000
  zones:
    Bonamoussadi: Douala
workers:
  dispatch-request:
    enabled: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile_Defaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Dispatch.TopN)
	assert.Equal(t, 600000, cfg.Dispatch.AcceptanceTimeout)
	assert.Equal(t, 4, cfg.Dispatch.FanoutConcurrency)
	assert.Equal(t, TimerBackendLocal, cfg.Dispatch.TimerBackend)
	assert.Equal(t, StorePostgres, cfg.Dispatch.Store)
	assert.Equal(t, ScoreWeights{Rating: 0.4, Proximity: 0.3, ResponseTime: 0.2, Specialization: 0.1}, cfg.Dispatch.Weights)
	assert.Equal(t, 0.6, cfg.Escalation.Threshold)
	assert.Equal(t, 10, cfg.Escalation.MaxTurns)
	assert.Equal(t, "disable", cfg.Database.Postgres.SSLMode)
	assert.Equal(t, 5, cfg.Workers["dispatch-request"].MaxJobsActive)
	// viper lower-cases map keys
	assert.Equal(t, "Douala", cfg.Dispatch.Zones["bonamoussadi"])
}

func TestLoadFromFile_ExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_DISPATCH_DB_PASSWORD", "s3cret")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Database.Postgres.Password)
}

func TestLoadFromFile_EnvOverride(t *testing.T) {
	t.Setenv("DISPATCH_TOP_N", "5")

	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Dispatch.TopN)
}

func TestLoadFromFile_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing broker",
			body:    "database:\n  redis:\n    address: x\ndispatch:\n  store: memory\n",
			wantErr: "camunda.broker_address",
		},
		{
			name:    "bad timer backend",
			body:    "camunda:\n  broker_address: x\ndatabase:\n  redis:\n    address: x\ndispatch:\n  store: memory\n  timer_backend: cron\n",
			wantErr: "dispatch.timer_backend",
		},
		{
			name:    "negative weight",
			body:    "camunda:\n  broker_address: x\ndatabase:\n  redis:\n    address: x\ndispatch:\n  store: memory\n  weights:\n    rating: -1\n",
			wantErr: "dispatch.weights",
		},
		{
			name:    "postgres host required",
			body:    "camunda:\n  broker_address: x\ndatabase:\n  redis:\n    address: x\n",
			wantErr: "database.postgres.host",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAcceptanceTimeoutFor(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, baseYAML))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Dispatch.AcceptanceTimeoutFor("urgent"))
	assert.Equal(t, 10*time.Minute, cfg.Dispatch.AcceptanceTimeoutFor("normal"))
}

func TestGetWorkerConfig_Fallback(t *testing.T) {
	cfg := &Config{}
	wc := GetWorkerConfig(cfg, "unknown")
	assert.True(t, wc.Enabled)
	assert.Equal(t, 3, wc.MaxRetries)
	assert.True(t, IsWorkerEnabled(cfg, "unknown"))
}
