package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", cfg.App.Addr())
	require.Equal(t, "0.0.0.0:8081", cfg.Realtime.Addr())
	require.Equal(t, 64, cfg.Realtime.SendBuffer)
	require.Equal(t, 250*time.Millisecond, cfg.Realtime.StatsDebounce)
	require.Equal(t, time.Hour, cfg.Auth.AccessTokenTTL())
	require.Empty(t, cfg.Redis.Addr)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REALTIME_STATS_DEBOUNCE", "2s")
	t.Setenv("REALTIME_SEND_BUFFER", "8")
	t.Setenv("REALTIME_REPLAY_SIZE", "not-a-number")
	t.Setenv("HTTP_REQUEST_TIMEOUT_SECONDS", "0")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 2*time.Second, cfg.Realtime.StatsDebounce)
	require.Equal(t, 8, cfg.Realtime.SendBuffer)
	require.Equal(t, 1024, cfg.Realtime.ReplaySize)
	require.Zero(t, cfg.App.RequestTimeout())
}

func TestLoad_RejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "x")
	_, err := Load()
	require.Error(t, err)
}
