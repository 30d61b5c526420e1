package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)

	config := DefaultConfig()
	config.Addr = mr.Addr()
	config.DefaultTTL = time.Minute
	config.HealthCheckInterval = 0

	manager, err := NewManager(config, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, manager
}

func TestNewManager(t *testing.T) {
	_, manager := setupTestRedis(t)

	assert.NotNil(t, manager.Client())
	assert.NotNil(t, manager.logger)
}

func TestNewManager_ConnectionFailure(t *testing.T) {
	manager, err := NewManager(Config{Addr: "127.0.0.1:1"}, zap.NewNop())
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "redis.internal:6380"

	opts := cfg.Options()
	assert.Equal(t, "redis.internal:6380", opts.Addr)
	assert.Nil(t, opts.TLSConfig)

	cfg.TLS = true
	opts = cfg.Options()
	require.NotNil(t, opts.TLSConfig)
	assert.Equal(t, "redis.internal", opts.TLSConfig.ServerName)
}

func TestManager_SetAndGet_UsesPrefix(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", time.Minute))

	value, err := manager.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", value)

	raw, err := mr.Get("stategraph:k")
	require.NoError(t, err)
	assert.Equal(t, "v", raw)
}

func TestManager_Miss(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	value, err := manager.Get(ctx, "non-existent")
	assert.True(t, IsCacheMiss(err))
	assert.Empty(t, value)

	var result map[string]any
	err = manager.GetJSON(ctx, "non-existent", &result)
	assert.True(t, IsCacheMiss(fmt.Errorf("wrapped: %w", err)))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", 0))
	require.NoError(t, manager.Set(ctx, "b", "2", 0))
	require.NoError(t, manager.Delete(ctx, "a", "b"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	type forecast struct {
		City  string  `json:"city"`
		TempC float64 `json:"temp_c"`
	}
	require.NoError(t, manager.SetJSON(ctx, "f", forecast{City: "Paris", TempC: 21.5}, time.Minute))

	var got forecast
	require.NoError(t, manager.GetJSON(ctx, "f", &got))
	assert.Equal(t, forecast{City: "Paris", TempC: 21.5}, got)

	assert.Error(t, manager.SetJSON(ctx, "bad", make(chan int), time.Minute))

	require.NoError(t, manager.Set(ctx, "not-json", "plain", time.Minute))
	assert.Error(t, manager.GetJSON(ctx, "not-json", &got))
}

func TestManager_TTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "short", "v", 100*time.Millisecond))
	require.NoError(t, manager.Set(ctx, "default", "v", 0))

	assert.Equal(t, time.Minute, mr.TTL("stategraph:default"))

	mr.FastForward(200 * time.Millisecond)
	_, err := manager.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(ctx), ErrClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), ErrClosed)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestManager_HealthCheckLoopStopsOnClose(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.HealthCheckInterval = 10 * time.Millisecond

	manager, err := NewManager(cfg, zap.NewNop())
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, manager.Close())
}

func TestManager_GetStats(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, manager.Set(ctx, "b", "2", time.Minute))

	stats, err := manager.GetStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Keys)

	require.NoError(t, manager.Close())
	_, err = manager.GetStats(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParseInfo(t *testing.T) {
	info := "# Stats\r\nkeyspace_hits:12\r\nkeyspace_misses:3\r\n\r\n# Memory\r\nused_memory:1048576\r\n# Clients\r\nconnected_clients:4\r\nunknown_field:x\r\n"

	stats := parseInfo(info)
	assert.Equal(t, uint64(12), stats.Hits)
	assert.Equal(t, uint64(3), stats.Misses)
	assert.Equal(t, int64(1048576), stats.UsedMemory)
	assert.Equal(t, 4, stats.Connections)
}

func TestManager_ConcurrentOperations(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			key := fmt.Sprintf("concurrent-%d", id)
			assert.NoError(t, manager.Set(ctx, key, "value", time.Minute))
			v, err := manager.Get(ctx, key)
			assert.NoError(t, err)
			assert.Equal(t, "value", v)
		}(i)
	}
	wg.Wait()
}
