package walletconnect

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// Wallet is an external wallet reached through a Connector.
type Wallet struct {
	connector *Connector
	registry  *chain.Registry
}

// Connect pairs (or resumes) a bridge session on chainID and returns a
// wallet over it. When the connector reports a connection already in
// progress the current session is used.
func Connect(ctx context.Context, c *Connector, chainID int64, registry *chain.Registry) (*Wallet, error) {
	if _, err := c.Connect(ctx, chainID); err != nil {
		return nil, err
	}
	s := c.Session()
	if s == nil || !s.SessionConnected() {
		return nil, fmt.Errorf("%w: bridge session is not connected", wallet.ErrNotConnected)
	}
	return &Wallet{connector: c, registry: registry}, nil
}

// URI is the pairing URI of the current session.
func (w *Wallet) URI() string {
	if s := w.connector.Session(); s != nil {
		return s.URI()
	}
	return ""
}

// Connector returns the connector behind w.
func (w *Wallet) Connector() *Connector { return w.connector }

func (w *Wallet) session() (Session, error) {
	s := w.connector.Session()
	if s == nil || !s.SessionConnected() {
		return nil, wallet.ErrNotConnected
	}
	return s, nil
}

func (w *Wallet) external() (*wallet.External, common.Address, error) {
	s, err := w.session()
	if err != nil {
		return nil, common.Address{}, err
	}
	accounts := s.Accounts()
	if len(accounts) == 0 || !common.IsHexAddress(accounts[0]) {
		return nil, common.Address{}, fmt.Errorf("%w: wallet shared no account", wallet.ErrNotConnected)
	}
	return wallet.NewExternal(s, w.registry), common.HexToAddress(accounts[0]), nil
}

func (w *Wallet) Address(context.Context) (common.Address, error) {
	_, addr, err := w.external()
	return addr, err
}

func (w *Wallet) AccountType() wallet.AccountType { return wallet.AccountExternal }

func (w *Wallet) ChainID() int64 {
	if s := w.connector.Session(); s != nil {
		return s.ChainID()
	}
	return w.connector.LastChainID()
}

func (w *Wallet) IsConnected(context.Context) (bool, error) {
	s := w.connector.Session()
	return s != nil && s.SessionConnected(), nil
}

func (w *Wallet) PersonalSign(ctx context.Context, message []byte) ([]byte, error) {
	ext, from, err := w.external()
	if err != nil {
		return nil, err
	}
	return ext.PersonalSign(ctx, from, message)
}

func (w *Wallet) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	ext, from, err := w.external()
	if err != nil {
		return nil, err
	}
	return ext.SignTypedData(ctx, from, data)
}

func (w *Wallet) SendTransaction(ctx context.Context, req *wallet.TxRequest) (common.Hash, error) {
	ext, from, err := w.external()
	if err != nil {
		return common.Hash{}, err
	}
	return ext.SendTransaction(ctx, from, req)
}

func (w *Wallet) SwitchNetwork(ctx context.Context, chainID int64) error {
	if chainID <= 0 {
		return fmt.Errorf("%w: chain id must be greater than 0", wallet.ErrConfiguration)
	}
	if !w.connector.Supports(chainID) {
		return fmt.Errorf("%w: chain %d is not in the bridge's supported chains", wallet.ErrUnsupported, chainID)
	}
	ext, _, err := w.external()
	if err != nil {
		return err
	}
	return ext.SwitchChain(ctx, chainID)
}

// Disconnect ends the bridge session and forgets the saved copy.
func (w *Wallet) Disconnect(ctx context.Context) error {
	return w.connector.Close(ctx)
}

func (w *Wallet) LinkAccount(context.Context, wallet.Wallet, wallet.LinkOptions) ([]wallet.LinkedAccount, error) {
	return nil, fmt.Errorf("%w: bridge wallets cannot link accounts", wallet.ErrUnsupported)
}
