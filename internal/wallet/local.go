package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Mohsinsiddi/w3link/internal/chain"
)

// ChainSessions resolves the RPC session for a chain id.
// *chain.Sessions implements it.
type ChainSessions interface {
	Get(ctx context.Context, chainID int64) (*chain.Session, error)
}

// PrivateKeyWallet holds a secp256k1 key in process memory.
type PrivateKeyWallet struct {
	address  common.Address
	sessions ChainSessions

	mu      sync.RWMutex
	key     *ecdsa.PrivateKey
	chainID int64
}

// GenerateWallet creates a wallet around a freshly generated key.
func GenerateWallet(chainID int64, sessions ChainSessions) (*PrivateKeyWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	return newPrivateKeyWallet(key, chainID, sessions), nil
}

// NewPrivateKeyWallet creates a wallet from a hex private key.
func NewPrivateKeyWallet(hexKey string, chainID int64, sessions ChainSessions) (*PrivateKeyWallet, error) {
	key, err := crypto.HexToECDSA(normaliseHexKey(hexKey))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return newPrivateKeyWallet(key, chainID, sessions), nil
}

func newPrivateKeyWallet(key *ecdsa.PrivateKey, chainID int64, sessions ChainSessions) *PrivateKeyWallet {
	return &PrivateKeyWallet{
		address:  crypto.PubkeyToAddress(key.PublicKey),
		sessions: sessions,
		key:      key,
		chainID:  chainID,
	}
}

// Export returns the private key as 0x-prefixed hex.
func (w *PrivateKeyWallet) Export() (string, error) {
	key, err := w.signingKey()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(crypto.FromECDSA(key)), nil
}

func (w *PrivateKeyWallet) Address(context.Context) (common.Address, error) {
	return w.address, nil
}

func (w *PrivateKeyWallet) AccountType() AccountType { return AccountLocal }

func (w *PrivateKeyWallet) ChainID() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID
}

func (w *PrivateKeyWallet) IsConnected(context.Context) (bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.key != nil, nil
}

func (w *PrivateKeyWallet) PersonalSign(_ context.Context, message []byte) ([]byte, error) {
	key, err := w.signingKey()
	if err != nil {
		return nil, err
	}
	return SignPersonal(key, message)
}

func (w *PrivateKeyWallet) SignTypedData(_ context.Context, data apitypes.TypedData) ([]byte, error) {
	key, err := w.signingKey()
	if err != nil {
		return nil, err
	}
	return SignTypedData(key, data)
}

// SignTransaction fills in missing fields of req against the chain's RPC
// and returns the signed transaction.
func (w *PrivateKeyWallet) SignTransaction(ctx context.Context, req *TxRequest) (*types.Transaction, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: transaction request is required", ErrConfiguration)
	}
	key, err := w.signingKey()
	if err != nil {
		return nil, err
	}
	if w.sessions == nil {
		return nil, fmt.Errorf("%w: no chain sessions for sending", ErrConfiguration)
	}

	chainID := req.ChainID
	if chainID == 0 {
		chainID = w.ChainID()
	}
	sess, err := w.sessions.Get(ctx, chainID)
	if err != nil {
		return nil, err
	}
	tx, err := PrepareTransaction(ctx, sess.Client, chainID, w.address, req)
	if err != nil {
		return nil, err
	}

	signed, err := types.SignTx(tx, types.NewLondonSigner(big.NewInt(chainID)), key)
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}
	return signed, nil
}

func (w *PrivateKeyWallet) SendTransaction(ctx context.Context, req *TxRequest) (common.Hash, error) {
	signed, err := w.SignTransaction(ctx, req)
	if err != nil {
		return common.Hash{}, err
	}
	sess, err := w.sessions.Get(ctx, signed.ChainId().Int64())
	if err != nil {
		return common.Hash{}, err
	}
	return sess.Client.SendTransaction(ctx, signed)
}

func (w *PrivateKeyWallet) SwitchNetwork(_ context.Context, chainID int64) error {
	if chainID <= 0 {
		return fmt.Errorf("%w: chain id must be greater than 0", ErrConfiguration)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.chainID = chainID
	return nil
}

// Disconnect drops the key from memory.
func (w *PrivateKeyWallet) Disconnect(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.key = nil
	return nil
}

func (w *PrivateKeyWallet) LinkAccount(context.Context, Wallet, LinkOptions) ([]LinkedAccount, error) {
	return nil, fmt.Errorf("%w: linking accounts to a local key", ErrUnsupported)
}

func (w *PrivateKeyWallet) signingKey() (*ecdsa.PrivateKey, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.key == nil {
		return nil, ErrNotConnected
	}
	return w.key, nil
}

// PrepareTransaction turns req into an unsigned transaction, querying the
// node for whatever the caller left out. EIP-1559 is used when the node reports a
// priority fee and the caller did not pin a legacy gas price.
func PrepareTransaction(ctx context.Context, c *chain.Client, chainID int64, from common.Address, req *TxRequest) (*types.Transaction, error) {
	var nonce uint64
	if req.Nonce != nil {
		nonce = *req.Nonce
	} else {
		n, err := c.PendingNonce(ctx, from)
		if err != nil {
			return nil, fmt.Errorf("fetching nonce: %w", err)
		}
		nonce = n
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasPrice, tip := req.GasPrice, req.MaxPriorityFeePerGas
	feeCap := req.MaxFeePerGas
	if gasPrice == nil && feeCap == nil {
		suggested, suggestedTip, err := c.SuggestFees(ctx)
		if err != nil {
			return nil, err
		}
		gasPrice = suggested
		if tip == nil {
			tip = suggestedTip
		}
	}
	dynamic := req.GasPrice == nil && (feeCap != nil || tip != nil)
	if dynamic && feeCap == nil {
		feeCap = new(big.Int).Mul(gasPrice, big.NewInt(2))
		if feeCap.Cmp(tip) < 0 {
			feeCap = new(big.Int).Set(tip)
		}
	}
	if dynamic && tip == nil {
		tip = new(big.Int).Set(feeCap)
	}

	gas := req.Gas
	if gas == 0 {
		msg := ethereum.CallMsg{From: from, To: req.To, Value: value, Data: req.Data}
		estimated, err := c.EstimateGas(ctx, msg)
		if err != nil {
			return nil, err
		}
		gas = estimated
	}

	if dynamic {
		return types.NewTx(&types.DynamicFeeTx{
			ChainID:   big.NewInt(chainID),
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        req.To,
			Value:     value,
			Data:      req.Data,
		}), nil
	}
	return types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gas,
		To:       req.To,
		Value:    value,
		Data:     req.Data,
	}), nil
}
