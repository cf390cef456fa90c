package walletconnect

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

type call struct {
	method string
	params any
}

// scripted answers wallet requests and records them.
func scripted(calls *[]call, answers map[string]any) func(string, any, any) error {
	return func(method string, params any, out any) error {
		*calls = append(*calls, call{method, params})
		ans, ok := answers[method]
		if !ok {
			return nil
		}
		if err, isErr := ans.(error); isErr {
			return err
		}
		if out == nil {
			return nil
		}
		data, _ := json.Marshal(ans)
		return json.Unmarshal(data, out)
	}
}

func connectedWallet(t *testing.T, answers map[string]any) (*Wallet, *[]call) {
	t.Helper()
	calls := &[]call{}
	f := &fakeFactory{respond: scripted(calls, answers)}
	c, _, _ := newTestConnector(Settings{}, f)
	w, err := Connect(context.Background(), c, 137, chain.NewRegistry())
	require.NoError(t, err)
	return w, calls
}

func TestWalletBasics(t *testing.T) {
	w, _ := connectedWallet(t, nil)

	addr, err := w.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), addr)
	assert.Equal(t, wallet.AccountExternal, w.AccountType())
	assert.Equal(t, int64(137), w.ChainID())
	ok, _ := w.IsConnected(context.Background())
	assert.True(t, ok)
	assert.Contains(t, w.URI(), "wc:key-1@1")

	_, err = w.LinkAccount(context.Background(), nil, wallet.LinkOptions{})
	assert.ErrorIs(t, err, wallet.ErrUnsupported)
}

func TestWalletPersonalSignHexEncodes(t *testing.T) {
	w, calls := connectedWallet(t, map[string]any{"personal_sign": "0xbeef"})

	sig, err := w.PersonalSign(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xbe, 0xef}, sig)

	require.Len(t, *calls, 1)
	params := (*calls)[0].params.([]any)
	assert.Equal(t, "0x68656c6c6f", params[0])
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", params[1])
}

func TestWalletSendTransaction(t *testing.T) {
	hash := common.HexToHash("0x01")
	w, calls := connectedWallet(t, map[string]any{"eth_sendTransaction": hash})

	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	got, err := w.SendTransaction(context.Background(), &wallet.TxRequest{To: &to, Data: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, hash, got)

	tx := (*calls)[0].params.([]any)[0].(map[string]any)
	assert.Equal(t, to.Hex(), tx["to"])
	assert.Equal(t, "0x01", tx["data"])
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", tx["from"])
}

func TestWalletSwitchNetworkAddsUnknownChain(t *testing.T) {
	w, calls := connectedWallet(t, map[string]any{
		"wallet_switchEthereumChain": &RPCError{Code: 4902, Message: "unrecognized chain"},
	})

	require.NoError(t, w.SwitchNetwork(context.Background(), 8453))
	require.Len(t, *calls, 2)
	assert.Equal(t, "wallet_addEthereumChain", (*calls)[1].method)
	added := (*calls)[1].params.([]any)[0].(map[string]any)
	assert.Equal(t, "0x2105", added["chainId"])

	assert.ErrorIs(t, w.SwitchNetwork(context.Background(), 0), wallet.ErrConfiguration)
}

func TestWalletSwitchNetworkOtherError(t *testing.T) {
	w, calls := connectedWallet(t, map[string]any{
		"wallet_switchEthereumChain": &RPCError{Code: 4001, Message: "user rejected"},
	})
	err := w.SwitchNetwork(context.Background(), 8453)
	assert.Error(t, err)
	assert.Len(t, *calls, 1)
}

func TestWalletDisconnect(t *testing.T) {
	w, _ := connectedWallet(t, nil)
	require.NoError(t, w.Disconnect(context.Background()))

	ok, _ := w.IsConnected(context.Background())
	assert.False(t, ok)
	_, err := w.PersonalSign(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
}
