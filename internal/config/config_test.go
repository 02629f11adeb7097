package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
chain:
  network: matic
  rpc_endpoint: http://localhost:8545
store:
  backend: memory
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "matic", cfg.Chain.Network)
	assert.Equal(t, uint64(2000), cfg.Chain.LogRange)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "store", cfg.Pricing.PairLookup)
	assert.Equal(t, "ledger", cfg.Pricing.Balances)
	assert.Equal(t, "rpc", cfg.Feed.Source)
	assert.Equal(t, time.Minute, cfg.Scheduler.StatsInterval)
	assert.Equal(t, 250*time.Millisecond, cfg.Realtime.FlushInterval)
}

func TestLoadRejectsUnknownModes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"store backend", "store:\n  backend: sqlite\n"},
		{"pair lookup", "pricing:\n  pair_lookup: oracle\n"},
		{"balances", "pricing:\n  balances: guess\n"},
		{"feed", "feed:\n  source: websocket\n"},
		{"kafka without brokers", "feed:\n  source: kafka\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestConnectionString(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	c := DatabaseConfig{Host: "db", Port: 5432, Name: "honeyswap", User: "u", Password: "p", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/honeyswap?sslmode=disable", c.ConnectionString())
}
