package config

import (
	"os"
	"path/filepath"
	"testing"

	"mt5dash/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAccountsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validAccounts = `
accounts:
  - name: Main
    login: 12345
    password: secret
    server: Broker-Demo
    initial_balance: 10000
  - name: Scalper
    login: 67890
    password: secret2
    server: Broker-Live
    initial_balance: 2500.50
`

func TestLoadConfig(t *testing.T) {
	t.Run("defaults with valid accounts file", func(t *testing.T) {
		t.Setenv("ACCOUNTS_FILE", writeAccountsFile(t, validAccounts))

		cfg, err := LoadConfig()
		require.NoError(t, err)

		assert.Equal(t, "http://127.0.0.1:8228", cfg.BridgeURL)
		assert.Equal(t, ":8080", cfg.HTTPAddr)
		assert.Equal(t, 365, cfg.HistoryDays)
		require.Len(t, cfg.Accounts, 2)
		assert.Equal(t, int64(12345), cfg.Accounts[0].Login)
		assert.Equal(t, "Broker-Demo", cfg.Accounts[0].Server)
		assert.InDelta(t, 2500.50, cfg.Accounts[1].InitialBalance, 1e-9)
	})

	t.Run("env overrides", func(t *testing.T) {
		t.Setenv("ACCOUNTS_FILE", writeAccountsFile(t, validAccounts))
		t.Setenv("BRIDGE_URL", "http://bridge:9000")
		t.Setenv("HISTORY_DAYS", "30")
		t.Setenv("LOG_LEVEL", "debug")

		cfg, err := LoadConfig()
		require.NoError(t, err)
		assert.Equal(t, "http://bridge:9000", cfg.BridgeURL)
		assert.Equal(t, 30, cfg.HistoryDays)
		assert.Equal(t, "debug", cfg.LogLevel)
	})

	t.Run("missing accounts file", func(t *testing.T) {
		t.Setenv("ACCOUNTS_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		_, err := LoadConfig()
		assert.ErrorIs(t, err, ports.ErrConfigurationError)
	})

	t.Run("rejects non-positive initial balance", func(t *testing.T) {
		t.Setenv("ACCOUNTS_FILE", writeAccountsFile(t, `
accounts:
  - login: 12345
    server: Broker-Demo
    initial_balance: 0
`))
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "initial_balance")
	})

	t.Run("rejects duplicate logins", func(t *testing.T) {
		t.Setenv("ACCOUNTS_FILE", writeAccountsFile(t, `
accounts:
  - login: 12345
    server: A
    initial_balance: 100
  - login: 12345
    server: B
    initial_balance: 200
`))
		_, err := LoadConfig()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate login")
	})
}

func TestAccountByLogin(t *testing.T) {
	cfg := &Config{Accounts: []Account{{Login: 1, Name: "A"}, {Login: 2, Name: "B"}}}

	acc, ok := cfg.AccountByLogin(2)
	require.True(t, ok)
	assert.Equal(t, "B", acc.Name)

	_, ok = cfg.AccountByLogin(3)
	assert.False(t, ok)
}
