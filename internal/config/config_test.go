package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithMemoryBackends(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REMOTE_BACKEND", " Memory ")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, RemoteMemory, cfg.RemoteBackend)
	require.Equal(t, ":8080", cfg.Address())
	require.Equal(t, 15*time.Second, cfg.ProbeInterval)
	require.Equal(t, 2*time.Minute, cfg.LeaseTTL)
	require.True(t, cfg.StartOnline)
	require.False(t, cfg.IsProduction())
}

func TestLoadDoesNotInjectWeakRemoteSecret(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("REMOTE_BACKEND", "postgrest")
	t.Setenv("REMOTE_URL", "https://example.supabase.co/rest/v1")
	t.Setenv("REMOTE_JWT_SECRET", "")

	_, err := Load()
	require.ErrorContains(t, err, "REMOTE_JWT_SECRET")

	t.Setenv("REMOTE_JWT_SECRET", "0123456789abcdef0123456789abcdef")
	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "service_role", cfg.RemoteRole)
}

func TestValidate(t *testing.T) {
	base := Config{
		StoreBackend:  StoreMemory,
		RemoteBackend: RemoteMemory,
		ProbeInterval: time.Second,
		ProbeTimeout:  time.Second,
		SyncRateLimit: 1,
	}
	require.NoError(t, base.Validate())

	cfg := base
	cfg.StoreBackend = "leveldb"
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.RemoteBackend = RemotePostgres
	require.ErrorContains(t, cfg.Validate(), "REMOTE_DSN")
	cfg.RemoteDSN = "postgres://localhost/inventory"
	require.NoError(t, cfg.Validate())

	cfg = base
	cfg.StoreBackend = StoreSQLite
	require.Error(t, cfg.Validate())

	cfg = base
	cfg.ProbeTimeout = 0
	require.Error(t, cfg.Validate())
}
