//go:build integration

// Package containers starts throwaway backing services for integration tests.
// Clients are built with the same platform constructors the server uses.
package containers

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"lms/internal/platform/config"
	redisclient "lms/internal/platform/redis"
)

type Redis struct {
	URL    string
	Client *redis.Client
}

// NewRedisContainer starts redis:7-alpine for the life of t.
func NewRedisContainer(t *testing.T) *Redis {
	t.Helper()
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err, "start redis")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err, "redis connection string")

	client, err := redisclient.New(ctx, config.RedisConfig{URL: url, PoolSize: 16})
	require.NoError(t, err, "connect redis")
	t.Cleanup(func() { _ = client.Close() })

	return &Redis{URL: url, Client: client.Client}
}

// FlushAll isolates subtests sharing one container.
func (r *Redis) FlushAll(ctx context.Context) error {
	return r.Client.FlushAll(ctx).Err()
}
