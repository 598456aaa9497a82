package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3fund/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:8545/", cfg.RPCURL)
	assert.Equal(t, int64(31337), cfg.ChainID)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", cfg.ContractAddress)
	assert.Equal(t, config.TxConfirmTimeout, cfg.ConfirmTimeout)
	assert.Equal(t, config.TxPollInterval, cfg.PollInterval)
	assert.Equal(t, uint(3), cfg.ReadRetries)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, dir, cfg.Dir())
	assert.Equal(t, int64(31337), cfg.PinnedChainID().Int64())

	// Loading never writes a file.
	_, err = os.Stat(cfg.Path())
	assert.True(t, os.IsNotExist(err))
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.RPCURL = "https://rpc.example.org"
	cfg.ConfirmTimeout = 90 * time.Second
	cfg.ConfirmBlocks = 12
	cfg.DefaultWallet = "alice"
	require.NoError(t, cfg.Save())

	info, err := os.Stat(cfg.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	data, err := os.ReadFile(cfg.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), `confirm_timeout = '1m30s'`)

	reloaded, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.example.org", reloaded.RPCURL)
	assert.Equal(t, 90*time.Second, reloaded.ConfirmTimeout)
	assert.Equal(t, uint64(12), reloaded.ConfirmBlocks)
	assert.Equal(t, "alice", reloaded.DefaultWallet)

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestLoadHandEditedFile(t *testing.T) {
	dir := t.TempDir()
	body := "rpc_url = 'http://10.0.0.5:8545'\nchain_id = 0\npoll_interval = '250ms'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0o600))

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.5:8545", cfg.RPCURL)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.Nil(t, cfg.PinnedChainID())
	assert.Equal(t, config.DefaultContractAddress, cfg.ContractAddress)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("rpc_url = ["), 0o600))

	_, err := config.Load(dir)
	assert.ErrorContains(t, err, "reading config")
}

func TestLoadRejectsBadContractAddress(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("contract_address = '0x1234'\n"), 0o600))

	_, err := config.Load(dir)
	assert.ErrorContains(t, err, "contract_address")
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("rpc_url = 'http://file:8545'\n"), 0o600))
	t.Setenv("W3FUND_RPC_URL", "http://env:8545")
	t.Setenv("W3FUND_CONFIRM_BLOCKS", "4")

	cfg, err := config.Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "http://env:8545", cfg.RPCURL)
	assert.Equal(t, uint64(4), cfg.ConfirmBlocks)
}

func TestConfigDirFromEnv(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	t.Setenv(config.DirEnv, dir)

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Dir())
	assert.Equal(t, filepath.Join(dir, "wallets.json"), cfg.WalletsPath())
	assert.Equal(t, filepath.Join(dir, "grants.json"), cfg.GrantsPath())
	assert.Equal(t, filepath.Join(dir, "submissions.json"), cfg.SubmissionsPath())
	assert.Equal(t, filepath.Join(dir, "keys"), cfg.KeysDir())

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSetAndGet(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cfg.Set(config.KeyConfirmTimeout, "45s"))
	require.NoError(t, cfg.Set(config.KeyChainID, "1"))
	require.NoError(t, cfg.Set(config.KeyLogLevel, "DEBUG"))

	got, err := cfg.Get(config.KeyConfirmTimeout)
	require.NoError(t, err)
	assert.Equal(t, "45s", got)
	got, err = cfg.Get(config.KeyChainID)
	require.NoError(t, err)
	assert.Equal(t, "1", got)
	assert.Equal(t, "debug", cfg.LogLevel)

	for _, key := range config.Keys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestSetRejectsInvalid(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	assert.ErrorIs(t, cfg.Set("network", "base"), config.ErrUnknownKey)
	assert.Error(t, cfg.Set(config.KeyChainID, "abc"))
	assert.Error(t, cfg.Set(config.KeyRPCURL, "ftp://node"))
	assert.Error(t, cfg.Set(config.KeyConfirmTimeout, "0s"), "unbounded wait")

	_, err = cfg.Get("network")
	assert.ErrorIs(t, err, config.ErrUnknownKey)

	// Failed sets leave the config untouched.
	assert.Equal(t, config.DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, config.TxConfirmTimeout, cfg.ConfirmTimeout)
}
