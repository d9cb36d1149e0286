package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMapDefaults(t *testing.T) {
	cfg, err := FromMap(map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.Addr)
	assert.Equal(t, StoreMemory, cfg.StoreBackend)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 10*time.Second, cfg.Verification.EventTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Realtime.IdleTimeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, int32(-1), cfg.Kafka.AuditPartitions)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestFromMapOverrides(t *testing.T) {
	cfg, err := FromMap(map[string]string{
		"ENVIRONMENT":                "production",
		"JWT_SECRET":                 "s3cret",
		"STORE_BACKEND":              "Redis",
		"REDIS_URL":                  "redis://localhost:6379/0",
		"KAFKA_BROKERS":              "k1:9092,k2:9092",
		"VERIFICATION_EVENT_TIMEOUT": "3s",
		"WS_MAX_FRAMES_PER_SECOND":   "5",
		"ACCOUNT_DIRECTORY":          "mpamba:+265888000111=J Banda,tnm:+265999000111=Mary Phiri",
	})
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.StoreBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3*time.Second, cfg.Verification.EventTimeout)
	assert.Equal(t, 5, cfg.Realtime.MaxFramesPerSecond)
	assert.Equal(t, map[string]string{
		"mpamba:+265888000111": "J Banda",
		"tnm:+265999000111":    "Mary Phiri",
	}, cfg.Verification.AccountDirectory)
}

func TestFromMapRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"production without secret", map[string]string{"ENVIRONMENT": "production"}, "JWT_SECRET"},
		{"redis without url", map[string]string{"STORE_BACKEND": "redis"}, "REDIS_URL"},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres"}, "DATABASE_URL"},
		{"unknown backend", map[string]string{"STORE_BACKEND": "mongo"}, "STORE_BACKEND"},
		{"bad duration", map[string]string{"WS_IDLE_TIMEOUT": "soon"}, "parse env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.vars)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
