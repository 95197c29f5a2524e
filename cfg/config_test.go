package cfg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func restoreConfig(t *testing.T) {
	t.Helper()
	saved := *Config
	t.Cleanup(func() { *Config = saved })
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, "nats://127.0.0.1:4222", Config.Daemon.NatsURL)
	assert.Equal(t, "llc_wallet", Config.Daemon.WalletService)
	assert.Equal(t, "wallet_ui", Config.Daemon.OriginService)
	assert.Equal(t, 60, Config.Cache.RetentionSeconds)
	assert.True(t, Config.Sync.DedupeEnabled)
	assert.Equal(t, 2, Config.Compression.Level)
	assert.Equal(t, 8575, Config.Admin.Port)
	require.NoError(t, Validate())
}

func TestLoadFromTOML(t *testing.T) {
	restoreConfig(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
client_id = 42

[daemon]
nats_url = "nats://10.0.0.5:4222"
wallet_service = "testnet_wallet"

[cache]
retention_seconds = 5

[sync]
dedupe_enabled = false

[compression]
level = 0
`), 0644))

	require.NoError(t, Load(path))
	assert.Equal(t, uint64(42), Config.ClientID)
	assert.Equal(t, "nats://10.0.0.5:4222", Config.Daemon.NatsURL)
	assert.Equal(t, "testnet_wallet", Config.Daemon.WalletService)
	assert.Equal(t, 5, Config.Cache.RetentionSeconds)
	assert.False(t, Config.Sync.DedupeEnabled)
	assert.Equal(t, 0, Config.Compression.Level)

	// Sections not present in the file keep their defaults
	assert.Equal(t, "wallet_ui", Config.Daemon.OriginService)
	assert.Equal(t, 8575, Config.Admin.Port)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	restoreConfig(t)
	Config.ClientID = 7

	require.NoError(t, Load("/nonexistent/config.toml"))
	assert.Equal(t, "llc_wallet", Config.Daemon.WalletService)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func()
	}{
		{"empty nats url", func() { Config.Daemon.NatsURL = "" }},
		{"empty wallet service", func() { Config.Daemon.WalletService = "" }},
		{"zero call timeout", func() { Config.Daemon.CallTimeoutMS = 0 }},
		{"negative retention size", func() { Config.Cache.RetentionSize = -1 }},
		{"compression level too high", func() { Config.Compression.Level = 5 }},
		{"dedupe without capacity", func() { Config.Sync.DedupeCapacity = 0 }},
		{"admin port out of range", func() { Config.Admin.Port = 70000 }},
		{"prometheus port out of range", func() { Config.Prometheus.Port = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			restoreConfig(t)
			tc.mutate()
			assert.Error(t, Validate())
		})
	}
}
