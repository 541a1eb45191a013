package main

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"taskboard/backend/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cacheConfig(t *testing.T, addr string) *config.Config {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	return &config.Config{
		Redis: config.RedisConfig{Host: host, Port: port, DialTimeout: 200 * time.Millisecond},
		Cache: config.CacheConfig{Enabled: true, L1MaxTTL: time.Second},
	}
}

func TestNewTaskCacheDisabled(t *testing.T) {
	cfg := &config.Config{Cache: config.CacheConfig{Enabled: false}}
	assert.Nil(t, newTaskCache(context.Background(), cfg, slog.Default()))
}

func TestNewTaskCacheWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	c := newTaskCache(ctx, cacheConfig(t, mr.Addr()), slog.Default())
	require.NotNil(t, c)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "tasks:startup-check", "v", time.Minute))
	assert.True(t, mr.Exists("tasks:startup-check"))
}

func TestNewTaskCacheFallsBackToMemory(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	ctx := context.Background()

	c := newTaskCache(ctx, cacheConfig(t, addr), logger)
	require.NotNil(t, c)
	defer c.Close()

	assert.Contains(t, logs.String(), "redis_unavailable")
	require.NoError(t, c.Health(ctx))

	require.NoError(t, c.Set(ctx, "tasks:startup-check", "v", time.Minute))
	var got string
	require.NoError(t, c.Get(ctx, "tasks:startup-check", &got))
	assert.Equal(t, "v", got)
}
