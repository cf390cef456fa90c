// Package extension connects to a browser-extension style wallet that
// exposes the EIP-1193 request interface over JSON-RPC, such as a desktop
// wallet's local provider endpoint.
package extension

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// codeUserRejected is the EIP-1193 error for a request the user declined.
const codeUserRejected = 4001

// Wallet is an external wallet reached through a provider endpoint.
type Wallet struct {
	client *chain.Client
	ext    *wallet.External
	logger *slog.Logger

	mu        sync.RWMutex
	account   common.Address
	chainID   int64
	connected bool
}

type options struct {
	httpClient *http.Client
	registry   *chain.Registry
	logger     *slog.Logger
}

// Option configures Connect.
type Option func(*options)

// WithHTTPClient sets the HTTP client used to reach the provider.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithRegistry supplies chain metadata for adding unknown chains.
func WithRegistry(r *chain.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Connect asks the provider at providerURL for account access and moves
// it to chainID.
func Connect(ctx context.Context, providerURL string, chainID int64, opts ...Option) (*Wallet, error) {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	if providerURL == "" {
		return nil, fmt.Errorf("%w: provider url is required", wallet.ErrConfiguration)
	}

	var dialOpts []chain.ClientOption
	if o.httpClient != nil {
		dialOpts = append(dialOpts, chain.WithHTTPClient(o.httpClient))
	}
	client, err := chain.Dial(ctx, providerURL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", wallet.ErrTransport, err)
	}

	w := &Wallet{client: client, logger: o.logger}
	w.ext = wallet.NewExternal(requester{client}, o.registry)

	var accounts []common.Address
	if err := client.Call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		client.Close()
		return nil, classify(err)
	}
	if len(accounts) == 0 {
		client.Close()
		return nil, fmt.Errorf("%w: provider returned no accounts", wallet.ErrAuthentication)
	}

	current, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, classify(err)
	}

	w.account = accounts[0]
	w.chainID = current
	w.connected = true
	if chainID > 0 && chainID != current {
		if err := w.SwitchNetwork(ctx, chainID); err != nil {
			client.Close()
			return nil, err
		}
	}
	w.logger.Debug("extension wallet connected", "address", w.account.Hex(), "chain", w.ChainID())
	return w, nil
}

func (w *Wallet) Address(context.Context) (common.Address, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.connected {
		return common.Address{}, wallet.ErrNotConnected
	}
	return w.account, nil
}

func (w *Wallet) AccountType() wallet.AccountType { return wallet.AccountExternal }

func (w *Wallet) ChainID() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.chainID
}

// IsConnected asks the provider whether the account is still exposed.
func (w *Wallet) IsConnected(ctx context.Context) (bool, error) {
	w.mu.RLock()
	connected, account := w.connected, w.account
	w.mu.RUnlock()
	if !connected {
		return false, nil
	}
	var accounts []common.Address
	if err := w.client.Call(ctx, &accounts, "eth_accounts"); err != nil {
		return false, classify(err)
	}
	for _, a := range accounts {
		if a == account {
			return true, nil
		}
	}
	return false, nil
}

func (w *Wallet) PersonalSign(ctx context.Context, message []byte) ([]byte, error) {
	from, err := w.Address(ctx)
	if err != nil {
		return nil, err
	}
	sig, err := w.ext.PersonalSign(ctx, from, message)
	return sig, classify(err)
}

func (w *Wallet) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	from, err := w.Address(ctx)
	if err != nil {
		return nil, err
	}
	sig, err := w.ext.SignTypedData(ctx, from, data)
	return sig, classify(err)
}

func (w *Wallet) SendTransaction(ctx context.Context, req *wallet.TxRequest) (common.Hash, error) {
	from, err := w.Address(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	hash, err := w.ext.SendTransaction(ctx, from, req)
	return hash, classify(err)
}

func (w *Wallet) SwitchNetwork(ctx context.Context, chainID int64) error {
	if chainID <= 0 {
		return fmt.Errorf("%w: chain id must be greater than 0", wallet.ErrConfiguration)
	}
	if err := w.ext.SwitchChain(ctx, chainID); err != nil {
		return classify(err)
	}
	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()
	return nil
}

// Disconnect revokes the account permission and closes the client.
// Providers that do not support revocation are simply forgotten.
func (w *Wallet) Disconnect(ctx context.Context) error {
	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return nil
	}
	w.connected = false
	w.mu.Unlock()

	params := map[string]any{"eth_accounts": map[string]any{}}
	if err := w.client.Call(ctx, nil, "wallet_revokePermissions", params); err != nil {
		w.logger.Debug("provider did not revoke permissions", "err", err)
	}
	w.client.Close()
	return nil
}

func (w *Wallet) LinkAccount(context.Context, wallet.Wallet, wallet.LinkOptions) ([]wallet.LinkedAccount, error) {
	return nil, fmt.Errorf("%w: extension wallets cannot link accounts", wallet.ErrUnsupported)
}

// requester adapts chain.Client to wallet.Requester.
type requester struct{ c *chain.Client }

func (r requester) Request(ctx context.Context, method string, params any, out any) error {
	var args []any
	switch p := params.(type) {
	case nil:
	case []any:
		args = p
	default:
		args = []any{p}
	}
	return r.c.Call(ctx, out, method, args...)
}

// classify tags provider errors: user rejections are authentication
// failures, anything without an RPC error code is a transport failure.
func classify(err error) error {
	if err == nil {
		return nil
	}
	code, ok := chain.ErrorCode(err)
	switch {
	case ok && code == codeUserRejected:
		return fmt.Errorf("%w: %w", wallet.ErrAuthentication, err)
	case errors.Is(err, wallet.ErrUnsupported):
		return err
	case !ok && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", wallet.ErrTransport, err)
	default:
		return err
	}
}
