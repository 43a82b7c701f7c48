package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/delivery-queue/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.HTTPPort)
	assert.True(t, cfg.Queue.Enabled)
	assert.Equal(t, 5, cfg.Queue.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Queue.DrainInterval)
	assert.Equal(t, 7*24*time.Hour, cfg.Queue.RetentionTTL)
	assert.False(t, cfg.Queue.PriorityOrdering)
	assert.Equal(t, 5*time.Minute, cfg.Queue.SendingLease)
	assert.Equal(t, 5*time.Second, cfg.Events.RetryDelay)
	assert.Equal(t, config.StoreMemory, cfg.Store.Backend)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("QUEUE_ENABLED", "false")
	t.Setenv("QUEUE_MAX_ATTEMPTS", "2")
	t.Setenv("QUEUE_DRAIN_INTERVAL", "1s")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/queue")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.False(t, cfg.Queue.Enabled)
	assert.Equal(t, 2, cfg.Queue.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Queue.DrainInterval)
	assert.Equal(t, config.StorePostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://u:p@localhost:5432/queue", cfg.DB.DatabaseURL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Events.KafkaBrokers)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres"}},
		{"unknown backend", map[string]string{"STORE_BACKEND": "cassandra"}},
		{"zero attempts", map[string]string{"QUEUE_MAX_ATTEMPTS": "0"}},
		{"negative drain interval", map[string]string{"QUEUE_DRAIN_INTERVAL": "-1s"}},
		{"zero sending lease", map[string]string{"QUEUE_SENDING_LEASE": "0s"}},
		{"sample rate above one", map[string]string{"OTEL_SAMPLE_RATE": "1.5"}},
		{"min conns above max", map[string]string{"DB_MIN_CONNS": "30"}},
		{"unparseable duration", map[string]string{"QUEUE_RETENTION_TTL": "a week"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}
