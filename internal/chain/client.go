package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client is a JSON-RPC client for one EVM endpoint. Typed calls go through
// ethclient; Call is the escape hatch for bundler and wallet_* methods.
type Client struct {
	url string
	rpc *rpc.Client
	eth *ethclient.Client
}

type clientOptions struct {
	httpClient *http.Client
	headers    map[string]string
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(o *clientOptions) {
		if hc != nil {
			o.httpClient = hc
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(o *clientOptions) {
		if value != "" {
			o.headers[key] = value
		}
	}
}

// Dial creates a client for url. HTTP endpoints are connected lazily.
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	o := clientOptions{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(&o)
	}

	rpcOpts := []rpc.ClientOption{rpc.WithHTTPClient(o.httpClient)}
	for k, v := range o.headers {
		rpcOpts = append(rpcOpts, rpc.WithHeader(k, v))
	}

	rc, err := rpc.DialOptions(ctx, url, rpcOpts...)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}
	return &Client{url: url, rpc: rc, eth: ethclient.NewClient(rc)}, nil
}

// URL returns the endpoint this client talks to.
func (c *Client) URL() string { return c.url }

// Close releases the underlying connection.
func (c *Client) Close() { c.rpc.Close() }

// Call performs a raw JSON-RPC call and decodes the result into result.
func (c *Client) Call(ctx context.Context, result any, method string, params ...any) error {
	if err := c.rpc.CallContext(ctx, result, method, params...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// ChainID returns the chain id reported by the node.
func (c *Client) ChainID(ctx context.Context) (int64, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_chainId: %w", err)
	}
	return id.Int64(), nil
}

// BlockNumber returns the latest block number.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// Balance returns the native balance of address at the latest block.
func (c *Client) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.eth.BalanceAt(ctx, address, nil)
}

// PendingNonce returns the next nonce for address including pending txs.
func (c *Client) PendingNonce(ctx context.Context, address common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, address)
}

// SuggestFees returns the gas price and, when the node supports EIP-1559,
// the priority fee. tip is nil on legacy chains.
func (c *Client) SuggestFees(ctx context.Context) (gasPrice, tip *big.Int, err error) {
	gasPrice, err = c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("eth_gasPrice: %w", err)
	}
	tip, err = c.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return gasPrice, nil, nil
	}
	return gasPrice, tip, nil
}

// EstimateGas estimates the gas needed for msg.
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.eth.EstimateGas(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("eth_estimateGas: %w", err)
	}
	return gas, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (common.Hash, error) {
	if err := c.eth.SendTransaction(ctx, tx); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendRawTransaction: %w", err)
	}
	return tx.Hash(), nil
}

// SendRawTransaction broadcasts already-encoded signed transaction bytes.
func (c *Client) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	if err := c.Call(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

// CallContract executes a read-only call against to at the latest block.
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("eth_call: %w", err)
	}
	return out, nil
}

// Code returns the deployed bytecode at address.
func (c *Client) Code(ctx context.Context, address common.Address) ([]byte, error) {
	return c.eth.CodeAt(ctx, address, nil)
}

// WaitForReceipt polls until the receipt for hash is available or ctx ends.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash, interval time.Duration) (*types.Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		receipt, err := c.eth.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("eth_getTransactionReceipt: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// Ping measures latency of an eth_blockNumber round-trip.
func (c *Client) Ping(ctx context.Context) (latency time.Duration, blockNum uint64, err error) {
	start := time.Now()
	blockNum, err = c.eth.BlockNumber(ctx)
	latency = time.Since(start)
	return latency, blockNum, err
}

// ErrorCode extracts the JSON-RPC error code from err, if it carries one.
func ErrorCode(err error) (int, bool) {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode(), true
	}
	return 0, false
}

// IsThirdwebHost reports whether url points at a thirdweb-operated service,
// which expects the client id header.
func IsThirdwebHost(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(u.Hostname(), ".thirdweb.com")
}
