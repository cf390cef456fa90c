package cmd

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/Mohsinsiddi/w3link/internal/walletconnect"
)

const (
	hardhatKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	hardhatAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

// cli is an isolated config dir with in-memory key and session stores.
type cli struct {
	dir      string
	sessions *walletconnect.MemoryStore
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	c := &cli{dir: t.TempDir(), sessions: walletconnect.NewMemoryStore()}
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "config.json"),
		[]byte(`{"opt_out_usage_analytics": true, "default_chain_id": 1}`), 0o600))

	keys := wallet.NewInMemoryKeystore()
	origKeys, origSessions, origPick := keyBackend, sessionStore, pickProvider
	keyBackend = func() wallet.KeystoreBackend { return keys }
	sessionStore = func() walletconnect.SessionStore { return c.sessions }
	pickProvider = func() (string, error) { return string(wallet.ProviderPrivateKey), nil }
	t.Cleanup(func() {
		keyBackend, sessionStore, pickProvider = origKeys, origSessions, origPick
	})
	return c
}

func (c *cli) run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	prompter = nil
	logger = slog.New(slog.DiscardHandler)

	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--config", c.dir}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// resetFlags restores every flag to its default; cobra keeps values
// between executions.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func TestVerifyMatchingSigner(t *testing.T) {
	c := newCLI(t)
	key, err := crypto.HexToECDSA(hardhatKey)
	require.NoError(t, err)
	sig, err := wallet.SignPersonal(key, []byte("hello"))
	require.NoError(t, err)

	out, err := c.run(t, "", "verify", "hello", "--sig", hexutil.Encode(sig), "--address", strings.ToLower(hardhatAddress))
	require.NoError(t, err)
	assert.Contains(t, out, hardhatAddress)
	assert.Contains(t, out, "signer matches")
}

func TestVerifyMismatch(t *testing.T) {
	c := newCLI(t)
	key, err := crypto.HexToECDSA(hardhatKey)
	require.NoError(t, err)
	sig, err := wallet.SignPersonal(key, []byte("hello"))
	require.NoError(t, err)

	out, err := c.run(t, "", "verify", "hello", "--sig", hexutil.Encode(sig),
		"--address", "0x0000000000000000000000000000000000000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), hardhatAddress)
	assert.Contains(t, out, "does not match")
}

func TestVerifyNeedsSignature(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "verify", "hello")
	assert.ErrorContains(t, err, "--sig")
}

func TestWalletLifecycle(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "", "wallet", "generate", "dev")
	require.NoError(t, err)
	assert.Contains(t, out, `key "dev" created`)

	out, err = c.run(t, "", "wallet", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "dev")
	assert.Contains(t, out, "1 key(s)")

	out, err = c.run(t, "n\n", "wallet", "remove", "dev")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")

	out, err = c.run(t, "y\n", "wallet", "remove", "dev")
	require.NoError(t, err)
	assert.Contains(t, out, `key "dev" removed`)

	out, err = c.run(t, "", "wallet", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No keys stored yet.")
}

func TestWalletImportExport(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "", "wallet", "import", "dev", "--private-key", "0x"+hardhatKey)
	require.NoError(t, err)
	assert.Contains(t, out, hardhatAddress)

	_, err = c.run(t, "", "wallet", "import", "dev", "--private-key", hardhatKey)
	assert.ErrorIs(t, err, wallet.ErrExists)

	out, err = c.run(t, "y\n", "wallet", "export", "dev")
	require.NoError(t, err)
	assert.Contains(t, out, hardhatKey)

	_, err = c.run(t, "y\n", "wallet", "export", "missing")
	assert.ErrorIs(t, err, wallet.ErrNotFound)
}

func TestConnectStoredKey(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "wallet", "import", "dev", "--private-key", hardhatKey)
	require.NoError(t, err)

	out, err := c.run(t, "", "connect", "--provider", "privateKey", "--key", "dev", "--chain", "base")
	require.NoError(t, err)
	assert.Contains(t, out, hardhatAddress)
	assert.Contains(t, out, "Base")
	assert.Contains(t, out, "local")
	assert.NotContains(t, out, "ephemeral")
}

func TestConnectPicksProviderAndSavesKey(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "", "connect", "--save", "fresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Connected")
	assert.Contains(t, out, `key saved as "fresh"`)

	out, err = c.run(t, "", "wallet", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "fresh")
}

func TestConnectEphemeralWarns(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "", "connect", "--provider", "privateKey")
	require.NoError(t, err)
	assert.Contains(t, out, "ephemeral")
}

func TestConnectRejectsBadOptions(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "", "connect", "--provider", "carrierPigeon")
	assert.ErrorIs(t, err, wallet.ErrConfiguration)

	_, err = c.run(t, "", "connect", "--provider", "inApp")
	assert.ErrorIs(t, err, wallet.ErrConfiguration)

	_, err = c.run(t, "", "connect", "--provider", "privateKey", "--key", "nope")
	assert.ErrorIs(t, err, wallet.ErrNotFound)

	_, err = c.run(t, "", "connect", "--provider", "privateKey", "--chain", "atlantis")
	assert.ErrorContains(t, err, "unknown chain")
}

func TestSignMessage(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "wallet", "import", "dev", "--private-key", hardhatKey)
	require.NoError(t, err)

	key, err := crypto.HexToECDSA(hardhatKey)
	require.NoError(t, err)
	want, err := wallet.SignPersonal(key, []byte("hello"))
	require.NoError(t, err)

	out, err := c.run(t, "", "sign", "hello", "--provider", "privateKey", "--key", "dev")
	require.NoError(t, err)
	assert.Contains(t, out, hexutil.Encode(want))
	assert.Contains(t, out, "w3link verify")
}

func TestSignTypedData(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "wallet", "import", "dev", "--private-key", hardhatKey)
	require.NoError(t, err)

	typed := filepath.Join(t.TempDir(), "mail.json")
	require.NoError(t, os.WriteFile(typed, []byte(`{
		"types": {
			"EIP712Domain": [{"name": "name", "type": "string"}, {"name": "chainId", "type": "uint256"}],
			"Mail": [{"name": "contents", "type": "string"}]
		},
		"primaryType": "Mail",
		"domain": {"name": "w3link", "chainId": "1"},
		"message": {"contents": "hi"}
	}`), 0o600))

	out, err := c.run(t, "", "sign", "--typed", typed, "--provider", "privateKey", "--key", "dev")
	require.NoError(t, err)
	assert.Contains(t, out, "Mail")
	assert.Contains(t, out, "Signature")
}

func TestSignNeedsExactlyOneInput(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "sign", "--provider", "privateKey")
	assert.ErrorContains(t, err, "either a message or --typed")
}

func TestConfigSetAndShow(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "", "config", "set", "default-chain", "base")
	require.NoError(t, err)
	assert.Contains(t, out, "default-chain set")

	_, err = c.run(t, "", "config", "set", "debug-logs", "true")
	require.NoError(t, err)

	_, err = c.run(t, "", "config", "set", "bridge-chains", "ethereum, 8453")
	require.NoError(t, err)

	cfg, err := config.Load(c.dir)
	require.NoError(t, err)
	assert.Equal(t, int64(8453), cfg.DefaultChainID)
	assert.True(t, cfg.ShowDebugLogs)
	assert.True(t, cfg.OptOutUsageAnalytics)
	assert.Equal(t, []int64{1, 8453}, cfg.WalletConnect.SupportedChainIDs)

	out, err = c.run(t, "", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"default_chain_id": 8453`)
}

func TestConfigSetRejects(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "", "config", "set", "colour", "blue")
	assert.ErrorContains(t, err, "unknown key")

	_, err = c.run(t, "", "config", "set", "rpc-algorithm", "random")
	assert.ErrorContains(t, err, "rpc-algorithm")

	_, err = c.run(t, "", "config", "set", "opt-out-analytics", "maybe")
	assert.ErrorContains(t, err, "true or false")

	_, err = c.run(t, "", "config", "set", "max-timeout-retries", "-1")
	assert.Error(t, err)
}

func TestConfigRPCs(t *testing.T) {
	c := newCLI(t)

	_, err := c.run(t, "", "config", "add-rpc", "base", "https://base.example")
	require.NoError(t, err)

	out, err := c.run(t, "", "config", "add-rpc", "8453", "https://base.example")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")

	out, err = c.run(t, "", "chains")
	require.NoError(t, err)
	assert.Contains(t, out, "custom (1)")

	_, err = c.run(t, "", "config", "remove-rpc", "base", "https://base.example")
	require.NoError(t, err)

	_, err = c.run(t, "", "config", "remove-rpc", "base", "https://base.example")
	assert.ErrorContains(t, err, "not found")
}

func TestChainsHidesTestnets(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "", "chains")
	require.NoError(t, err)
	assert.Contains(t, out, "ethereum *")
	assert.Contains(t, out, "base")
	assert.NotContains(t, out, "sepolia")

	out, err = c.run(t, "", "chains", "--testnets")
	require.NoError(t, err)
	assert.Contains(t, out, "sepolia")
}

func TestSessionStatusAndClear(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(t, "", "session", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "No saved WalletConnect session.")

	require.NoError(t, c.sessions.Save(&walletconnect.SavedSession{
		Topic:     "topic-1",
		BridgeURL: "wss://bridge.example",
		PeerMeta:  &walletconnect.PeerMeta{Name: "Rainbow"},
		Accounts:  []string{hardhatAddress},
		ChainID:   8453,
	}))

	out, err = c.run(t, "", "session", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Rainbow")
	assert.Contains(t, out, hardhatAddress)
	assert.Contains(t, out, "Base")

	out, err = c.run(t, "", "session", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
	assert.False(t, c.sessions.Exists())
}

func TestParseTokenPaymaster(t *testing.T) {
	tp, err := parseTokenPaymaster("base_usdc")
	require.NoError(t, err)
	assert.Equal(t, wallet.TokenPaymasterBaseUSDC, tp)

	tp, err = parseTokenPaymaster("")
	require.NoError(t, err)
	assert.Equal(t, wallet.TokenPaymasterNone, tp)

	_, err = parseTokenPaymaster("DOGE")
	assert.ErrorIs(t, err, wallet.ErrConfiguration)
}

func TestConnectFlagsSmartOptions(t *testing.T) {
	cfg = config.Default()
	f := connectFlags{
		provider:     "inapp",
		chain:        "8453",
		email:        "me@example.com",
		smart:        true,
		sponsor:      true,
		tokenPayment: "BASE_USDC",
	}
	opts, err := f.options()
	require.NoError(t, err)
	assert.Equal(t, wallet.ProviderInApp, opts.Provider)
	assert.Equal(t, int64(8453), opts.ChainID)
	require.NotNil(t, opts.InApp)
	assert.Equal(t, "me@example.com", opts.InApp.Email)
	require.NotNil(t, opts.Smart)
	assert.True(t, opts.Smart.SponsorGas)
	assert.Equal(t, wallet.TokenPaymasterBaseUSDC, opts.Smart.TokenPaymaster)
	assert.NoError(t, opts.Validate())
}

func TestLookupChainAcceptsUnknownIDs(t *testing.T) {
	c, err := lookupChain("31337")
	require.NoError(t, err)
	assert.Equal(t, int64(31337), c.ChainID)

	c, err = lookupChain("Base")
	require.NoError(t, err)
	assert.Equal(t, int64(8453), c.ChainID)
}

func TestSendRequestValidation(t *testing.T) {
	t.Cleanup(func() { sendTo, sendValue, sendData = "", "", "" })

	sendTo, sendValue, sendData = hardhatAddress, "0.5", "a9059cbb"
	req, err := sendRequest()
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", req.Value.String())
	assert.Equal(t, []byte{0xa9, 0x05, 0x9c, 0xbb}, req.Data)

	sendTo, sendValue, sendData = hardhatAddress, "", "0xzz"
	_, err = sendRequest()
	assert.ErrorContains(t, err, "--data")

	sendTo, sendValue, sendData = hardhatAddress, "-1", ""
	_, err = sendRequest()
	assert.ErrorContains(t, err, "negative")
}

func TestSendRejectsBadRecipient(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(t, "", "send", "--to", "nope", "--provider", "privateKey")
	assert.ErrorContains(t, err, "address or ENS name")
}

func TestSendCancelled(t *testing.T) {
	c := newCLI(t)
	out, err := c.run(t, "n\n", "send", "--to", hardhatAddress, "--value", "0.1", "--provider", "privateKey")
	require.NoError(t, err)
	assert.Contains(t, out, "0.1 ETH")
	assert.Contains(t, out, "Cancelled.")
}
