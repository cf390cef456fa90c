package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, int64(1), cfg.DefaultChainID)
	assert.Equal(t, "fastest", cfg.RPCAlgorithm)
	assert.False(t, cfg.OptOutUsageAnalytics)
	assert.True(t, cfg.WalletConnect.AutoSaveAndResume)
	assert.True(t, cfg.WalletConnect.RetryOnTimeout)
	assert.Equal(t, 3, cfg.WalletConnect.ConnectRetryCount)
	assert.Equal(t, 5, cfg.WalletConnect.MaxTimeoutRetries)
	assert.Equal(t, config.DefaultBridgeURL, cfg.WalletConnect.BridgeURL)
	assert.Equal(t, config.DefaultMetaMaskURL, cfg.MetaMask.ProviderURL)
}

func TestSaveAndReloadConfig(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)

	cfg.ClientID = "abc123"
	cfg.DefaultChainID = 421614
	cfg.WalletConnect.MaxTimeoutRetries = 0
	cfg.WalletConnect.SupportedChainIDs = []int64{1, 8453}

	require.NoError(t, cfg.Save())

	reloaded, err := config.Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "abc123", reloaded.ClientID)
	assert.Equal(t, int64(421614), reloaded.DefaultChainID)
	assert.Equal(t, 0, reloaded.WalletConnect.MaxTimeoutRetries, "zero must survive reload as unbounded")
	assert.Equal(t, []int64{1, 8453}, reloaded.WalletConnect.SupportedChainIDs)
}

func TestConfigFilePermissions(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.Save())

	info, err := os.Stat(filepath.Join(dir, "config.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0o600))

	_, err := config.Load(dir)
	assert.Error(t, err)
}

func TestAddCustomRPC(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, cfg.AddRPC(8453, "https://custom.base.rpc"))
	assert.Contains(t, cfg.GetRPCs(8453), "https://custom.base.rpc")
}

func TestAddDuplicateRPCErrors(t *testing.T) {
	cfg, _ := config.Load(t.TempDir())

	cfg.AddRPC(8453, "https://custom.base.rpc") //nolint:errcheck
	err := cfg.AddRPC(8453, "https://custom.base.rpc")
	assert.Error(t, err)
}

func TestRemoveCustomRPC(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	cfg.AddRPC(8453, "https://rpc1.base") //nolint:errcheck
	cfg.AddRPC(8453, "https://rpc2.base") //nolint:errcheck

	require.NoError(t, cfg.RemoveRPC(8453, "https://rpc1.base"))
	assert.Equal(t, []string{"https://rpc2.base"}, cfg.GetRPCs(8453))

	assert.Error(t, cfg.RemoveRPC(8453, "https://missing"))
}

func TestLocalKeysRoundTrip(t *testing.T) {
	cfg, err := config.Load(t.TempDir())
	require.NoError(t, err)

	empty, err := cfg.LoadLocalKeys()
	require.NoError(t, err)
	assert.Empty(t, empty.Wallets)

	require.NoError(t, cfg.SaveLocalKeys(&config.LocalKeysFile{
		Wallets: []config.LocalKey{{Name: "main", Address: "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", KeyRef: "w3link.main"}},
	}))

	loaded, err := cfg.LoadLocalKeys()
	require.NoError(t, err)
	require.Len(t, loaded.Wallets, 1)
	assert.Equal(t, "main", loaded.Wallets[0].Name)
}

func TestDefaultHasNoBackingDir(t *testing.T) {
	cfg := config.Default()
	assert.Error(t, cfg.Save())
	assert.Equal(t, config.DefaultProjectID, cfg.WalletConnect.ProjectID)
}
