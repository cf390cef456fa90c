package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Mohsinsiddi/w3link/internal/chain"
)

// Requester sends an EIP-1193 request to a wallet that keeps its own keys.
type Requester interface {
	Request(ctx context.Context, method string, params any, out any) error
}

// codeUnknownChain is the EIP-3326 error for a chain the wallet has not
// been told about.
const codeUnknownChain = 4902

// External implements the signing operations of an external wallet over
// a Requester. Bridge and browser-extension wallets share it.
type External struct {
	req      Requester
	registry *chain.Registry
}

// NewExternal returns signing helpers over req. registry supplies the
// chain metadata for wallet_addEthereumChain and may be nil.
func NewExternal(req Requester, registry *chain.Registry) *External {
	return &External{req: req, registry: registry}
}

// PersonalSign asks the wallet for an EIP-191 signature of message.
func (e *External) PersonalSign(ctx context.Context, from common.Address, message []byte) ([]byte, error) {
	var sig hexutil.Bytes
	if err := e.req.Request(ctx, "personal_sign", []any{hexutil.Encode(message), from.Hex()}, &sig); err != nil {
		return nil, fmt.Errorf("personal_sign: %w", err)
	}
	return sig, nil
}

// SignTypedData asks for an EIP-712 signature.
func (e *External) SignTypedData(ctx context.Context, from common.Address, data apitypes.TypedData) ([]byte, error) {
	var sig hexutil.Bytes
	if err := e.req.Request(ctx, "eth_signTypedData_v4", []any{from.Hex(), data}, &sig); err != nil {
		return nil, fmt.Errorf("eth_signTypedData_v4: %w", err)
	}
	return sig, nil
}

// SendTransaction has the wallet fill in, sign and broadcast req.
func (e *External) SendTransaction(ctx context.Context, from common.Address, req *TxRequest) (common.Hash, error) {
	var hash common.Hash
	if err := e.req.Request(ctx, "eth_sendTransaction", []any{TxParams(from, req)}, &hash); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	return hash, nil
}

// SwitchChain moves the wallet to chainID, adding the chain first when
// the wallet does not know it.
func (e *External) SwitchChain(ctx context.Context, chainID int64) error {
	params := []any{map[string]string{"chainId": hexutil.EncodeUint64(uint64(chainID))}}
	err := e.req.Request(ctx, "wallet_switchEthereumChain", params, nil)
	if code, ok := chain.ErrorCode(err); !ok || code != codeUnknownChain {
		if err != nil {
			return fmt.Errorf("wallet_switchEthereumChain: %w", err)
		}
		return nil
	}

	if e.registry == nil {
		return fmt.Errorf("%w: chain %d is unknown to the wallet", ErrUnsupported, chainID)
	}
	c, lookupErr := e.registry.GetByChainID(chainID)
	if lookupErr != nil {
		return fmt.Errorf("%w: chain %d is unknown to the wallet", ErrUnsupported, chainID)
	}
	if err := e.req.Request(ctx, "wallet_addEthereumChain", []any{AddChainParams(c)}, nil); err != nil {
		return fmt.Errorf("wallet_addEthereumChain: %w", err)
	}
	return nil
}

// TxParams renders req as eth_sendTransaction parameters.
func TxParams(from common.Address, req *TxRequest) map[string]any {
	p := map[string]any{"from": from.Hex()}
	if req.To != nil {
		p["to"] = req.To.Hex()
	}
	if len(req.Data) > 0 {
		p["data"] = hexutil.Encode(req.Data)
	}
	setBig := func(key string, v *big.Int) {
		if v != nil {
			p[key] = hexutil.EncodeBig(v)
		}
	}
	setBig("value", req.Value)
	setBig("gasPrice", req.GasPrice)
	setBig("maxFeePerGas", req.MaxFeePerGas)
	setBig("maxPriorityFeePerGas", req.MaxPriorityFeePerGas)
	if req.Gas > 0 {
		p["gas"] = hexutil.EncodeUint64(req.Gas)
	}
	if req.Nonce != nil {
		p["nonce"] = hexutil.EncodeUint64(*req.Nonce)
	}
	if req.ChainID > 0 {
		p["chainId"] = hexutil.EncodeUint64(uint64(req.ChainID))
	}
	return p
}

// AddChainParams renders c as EIP-3085 wallet_addEthereumChain parameters.
func AddChainParams(c *chain.Chain) map[string]any {
	p := map[string]any{
		"chainId":   c.HexChainID(),
		"chainName": c.DisplayName,
		"nativeCurrency": map[string]any{
			"name":     c.NativeCurrency.Name,
			"symbol":   c.NativeCurrency.Symbol,
			"decimals": c.NativeCurrency.Decimals,
		},
		"rpcUrls": c.RPCs,
	}
	if c.Explorer != "" {
		p["blockExplorerUrls"] = []string{c.Explorer}
	}
	return p
}
