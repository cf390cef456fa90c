package smart

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// BundlerURL returns thirdweb's bundler endpoint for chainID.
func BundlerURL(chainID int64) string {
	return fmt.Sprintf("https://%d.bundler.thirdweb.com", chainID)
}

// bundler speaks the bundler and paymaster JSON-RPC methods. The two may
// share one endpoint.
type bundler struct {
	rpc        *chain.Client
	paymaster  *chain.Client
	entryPoint common.Address
}

type gasPrice struct {
	MaxFeePerGas         hexutil.Big `json:"maxFeePerGas"`
	MaxPriorityFeePerGas hexutil.Big `json:"maxPriorityFeePerGas"`
}

type gasEstimate struct {
	PreVerificationGas   hexutil.Big `json:"preVerificationGas"`
	VerificationGasLimit hexutil.Big `json:"verificationGasLimit"`
	CallGasLimit         hexutil.Big `json:"callGasLimit"`
}

type sponsorship struct {
	PaymasterAndData     hexutil.Bytes `json:"paymasterAndData"`
	PreVerificationGas   *hexutil.Big  `json:"preVerificationGas,omitempty"`
	VerificationGasLimit *hexutil.Big  `json:"verificationGasLimit,omitempty"`
	CallGasLimit         *hexutil.Big  `json:"callGasLimit,omitempty"`
}

// UnmarshalJSON accepts both the bare paymasterAndData string and the
// object form that also carries gas limits.
func (s *sponsorship) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &s.PaymasterAndData)
	}
	type plain sponsorship
	return json.Unmarshal(b, (*plain)(s))
}

// Receipt is the bundler's record of an included user operation.
type Receipt struct {
	UserOpHash common.Hash `json:"userOpHash"`
	Success    bool        `json:"success"`
	Reason     string      `json:"reason"`
	Receipt    struct {
		TransactionHash common.Hash `json:"transactionHash"`
	} `json:"receipt"`
}

func (b *bundler) gasPrice(ctx context.Context) (*gasPrice, error) {
	var out gasPrice
	if err := b.rpc.Call(ctx, &out, "thirdweb_getUserOperationGasPrice"); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *bundler) sponsor(ctx context.Context, op *UserOperation, pmContext map[string]any) (*sponsorship, error) {
	params := []any{op, b.entryPoint}
	if pmContext != nil {
		params = append(params, pmContext)
	}
	var out sponsorship
	if err := b.paymaster.Call(ctx, &out, "pm_sponsorUserOperation", params...); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *bundler) estimate(ctx context.Context, op *UserOperation) (*gasEstimate, error) {
	var out gasEstimate
	if err := b.rpc.Call(ctx, &out, "eth_estimateUserOperationGas", op, b.entryPoint); err != nil {
		return nil, err
	}
	return &out, nil
}

func (b *bundler) send(ctx context.Context, op *UserOperation) (common.Hash, error) {
	var hash common.Hash
	if err := b.rpc.Call(ctx, &hash, "eth_sendUserOperation", op, b.entryPoint); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// waitReceipt polls until the bundler reports the operation included or
// ctx ends.
func (b *bundler) waitReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		var r *Receipt
		if err := b.rpc.Call(ctx, &r, "eth_getUserOperationReceipt", hash); err != nil {
			return nil, err
		}
		if r != nil && r.Receipt.TransactionHash != (common.Hash{}) {
			return r, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: waiting for user operation %s: %w", wallet.ErrTimeout, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (b *bundler) close() {
	b.rpc.Close()
	if b.paymaster != b.rpc {
		b.paymaster.Close()
	}
}
