package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/radiusdt/partner-portal/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisOptions(t *testing.T) {
	opts := redisOptions(config.RedisConfig{Addr: "cache:6379", DB: 2})
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 20, opts.PoolSize)
	assert.Equal(t, "partner-portal", opts.ClientName)

	opts = redisOptions(config.RedisConfig{PoolSize: 5})
	assert.Equal(t, 5, opts.PoolSize)
}

func TestNewRedisDB(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	r, err := NewRedisDB(ctx, config.RedisConfig{Addr: mr.Addr(), KeyPrefix: "acme:"}, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "acme:session:", r.Namespace("session"))
	require.NoError(t, r.Health(ctx))

	mr.Close()
	assert.Error(t, r.Health(ctx))
	_ = r.Close()
}

func TestNewRedisDBUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisDB(context.Background(), config.RedisConfig{Addr: addr}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}
