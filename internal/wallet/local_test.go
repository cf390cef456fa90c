package wallet_test

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

func greeting() apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Greeting": {{Name: "text", Type: "string"}},
		},
		PrimaryType: "Greeting",
		Domain: apitypes.TypedDataDomain{
			Name:    "w3link",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(testChainID),
		},
		Message: apitypes.TypedDataMessage{"text": "gm"},
	}
}

func TestGenerateWalletIsLocalAndChecksummed(t *testing.T) {
	w, err := wallet.GenerateWallet(421614, nil)
	require.NoError(t, err)

	addr, err := w.Address(context.Background())
	require.NoError(t, err)
	assert.True(t, common.IsHexAddress(addr.Hex()))
	assert.Equal(t, common.HexToAddress(addr.Hex()).Hex(), addr.Hex())
	assert.Equal(t, wallet.AccountLocal, w.AccountType())
	assert.Equal(t, int64(421614), w.ChainID())

	// Address is derived from the key, so reimporting the export gives it back.
	exported, err := w.Export()
	require.NoError(t, err)
	again, err := wallet.NewPrivateKeyWallet(exported, 1, nil)
	require.NoError(t, err)
	againAddr, _ := again.Address(context.Background())
	assert.Equal(t, addr, againAddr)
}

func TestNewPrivateKeyWalletKnownAddress(t *testing.T) {
	w, err := wallet.NewPrivateKeyWallet(testKey, 1, nil)
	require.NoError(t, err)
	addr, _ := w.Address(context.Background())
	assert.Equal(t, testAddress, addr.Hex())

	_, err = wallet.NewPrivateKeyWallet("0xnothex", 1, nil)
	assert.ErrorIs(t, err, wallet.ErrInvalidKey)
}

func TestPrivateKeyWalletPersonalSign(t *testing.T) {
	w, err := wallet.NewPrivateKeyWallet(testKey, 1, nil)
	require.NoError(t, err)

	msg := []byte("hello w3link")
	sig, err := w.PersonalSign(context.Background(), msg)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Contains(t, []byte{27, 28}, sig[64])

	signer, err := wallet.RecoverPersonalSign(msg, sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, signer.Hex())

	other, err := wallet.RecoverPersonalSign([]byte("tampered"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, testAddress, other.Hex())
}

func TestPrivateKeyWalletSignTypedData(t *testing.T) {
	w, err := wallet.NewPrivateKeyWallet(testKey, 1, nil)
	require.NoError(t, err)

	sig, err := w.SignTypedData(context.Background(), greeting())
	require.NoError(t, err)

	signer, err := wallet.RecoverTypedData(greeting(), sig)
	require.NoError(t, err)
	assert.Equal(t, testAddress, signer.Hex())
}

func TestRecoverRejectsBadLength(t *testing.T) {
	_, err := wallet.RecoverPersonalSign([]byte("x"), []byte{1, 2, 3})
	assert.ErrorContains(t, err, "invalid signature length")
}

func TestPrivateKeyWalletDisconnectDropsKey(t *testing.T) {
	w, err := wallet.NewPrivateKeyWallet(testKey, 1, nil)
	require.NoError(t, err)

	ok, _ := w.IsConnected(context.Background())
	assert.True(t, ok)

	require.NoError(t, w.Disconnect(context.Background()))
	ok, _ = w.IsConnected(context.Background())
	assert.False(t, ok)

	_, err = w.PersonalSign(context.Background(), []byte("x"))
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
}

func TestPrivateKeyWalletSwitchNetworkAndLink(t *testing.T) {
	w, err := wallet.NewPrivateKeyWallet(testKey, 1, nil)
	require.NoError(t, err)

	require.NoError(t, w.SwitchNetwork(context.Background(), 8453))
	assert.Equal(t, int64(8453), w.ChainID())
	assert.ErrorIs(t, w.SwitchNetwork(context.Background(), 0), wallet.ErrConfiguration)

	_, err = w.LinkAccount(context.Background(), nil, wallet.LinkOptions{})
	assert.ErrorIs(t, err, wallet.ErrUnsupported)
}

func TestPrivateKeyWalletSendTransactionDynamicFee(t *testing.T) {
	srv, log := rpcMock(t, map[string]any{
		"eth_getTransactionCount":  "0x3",
		"eth_gasPrice":             "0x3b9aca00",
		"eth_maxPriorityFeePerGas": "0x5f5e100",
		"eth_estimateGas":          "0x5208",
		"eth_sendRawTransaction":   "0x" + common.Bytes2Hex(make([]byte, 32)),
	})

	w, err := wallet.NewPrivateKeyWallet(testKey, testChainID, mockSessions(t, srv.URL))
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	hash, err := w.SendTransaction(context.Background(), &wallet.TxRequest{To: &to, Value: big.NewInt(1000)})
	require.NoError(t, err)

	params := log.params("eth_sendRawTransaction")
	require.Len(t, params, 1)
	var raw hexutil.Bytes
	require.NoError(t, json.Unmarshal(params[0], &raw))

	tx := new(types.Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw))
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(3), tx.Nonce())
	assert.Equal(t, uint64(21000), tx.Gas())
	assert.Equal(t, big.NewInt(100_000_000), tx.GasTipCap())
	assert.Equal(t, big.NewInt(2_000_000_000), tx.GasFeeCap())

	from, err := types.Sender(types.NewLondonSigner(big.NewInt(testChainID)), tx)
	require.NoError(t, err)
	assert.Equal(t, testAddress, from.Hex())
}

func TestPrivateKeyWalletSendTransactionLegacyChain(t *testing.T) {
	srv, log := rpcMock(t, map[string]any{
		"eth_getTransactionCount": "0x0",
		"eth_gasPrice":            "0x3b9aca00",
		"eth_sendRawTransaction":  "0x" + common.Bytes2Hex(make([]byte, 32)),
	})

	w, err := wallet.NewPrivateKeyWallet(testKey, testChainID, mockSessions(t, srv.URL))
	require.NoError(t, err)

	to := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	_, err = w.SendTransaction(context.Background(), &wallet.TxRequest{To: &to, Gas: 30000})
	require.NoError(t, err)

	var raw hexutil.Bytes
	require.NoError(t, json.Unmarshal(log.params("eth_sendRawTransaction")[0], &raw))
	tx := new(types.Transaction)
	require.NoError(t, tx.UnmarshalBinary(raw))
	assert.Equal(t, uint8(types.LegacyTxType), tx.Type())
	assert.Equal(t, uint64(30000), tx.Gas())
	assert.Empty(t, log.params("eth_estimateGas"))
}

func TestPrivateKeyWalletSendWithoutSessions(t *testing.T) {
	w, err := wallet.NewPrivateKeyWallet(testKey, 1, nil)
	require.NoError(t, err)
	_, err = w.SendTransaction(context.Background(), &wallet.TxRequest{})
	assert.ErrorIs(t, err, wallet.ErrConfiguration)
}

func TestPrivateKeyWalletSendRequiresRequest(t *testing.T) {
	w, err := wallet.NewPrivateKeyWallet(testKey, 1, nil)
	require.NoError(t, err)
	_, err = w.SendTransaction(context.Background(), nil)
	assert.ErrorIs(t, err, wallet.ErrConfiguration)
	assert.ErrorContains(t, err, "transaction request is required")
}
