package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// AccountType says who controls a wallet's keys.
type AccountType int

const (
	// AccountLocal keys live in this process.
	AccountLocal AccountType = iota
	// AccountCustodial keys are held by a hosted wallet service.
	AccountCustodial
	// AccountExternal keys are held by another app reached over a bridge
	// or provider endpoint.
	AccountExternal
	// AccountSmart is a contract account controlled by a personal wallet.
	AccountSmart
)

func (t AccountType) String() string {
	switch t {
	case AccountLocal:
		return "local"
	case AccountCustodial:
		return "custodial"
	case AccountExternal:
		return "external"
	case AccountSmart:
		return "smart account"
	default:
		return "unknown"
	}
}

// Wallet is the capability set every wallet variant implements.
// Variants that cannot perform an operation return ErrUnsupported.
type Wallet interface {
	Address(ctx context.Context) (common.Address, error)
	AccountType() AccountType
	ChainID() int64
	IsConnected(ctx context.Context) (bool, error)
	PersonalSign(ctx context.Context, message []byte) ([]byte, error)
	SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error)
	SendTransaction(ctx context.Context, tx *TxRequest) (common.Hash, error)
	SwitchNetwork(ctx context.Context, chainID int64) error
	Disconnect(ctx context.Context) error
	LinkAccount(ctx context.Context, toLink Wallet, opts LinkOptions) ([]LinkedAccount, error)
}

// TxRequest is an unsigned transaction. Zero fields are filled in by the
// wallet (nonce, gas, fees); ChainID defaults to the wallet's chain.
type TxRequest struct {
	ChainID              int64
	To                   *common.Address
	Value                *big.Int
	Data                 []byte
	Gas                  uint64
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	Nonce                *uint64
}

// LinkOptions carries the credentials used to link a second auth method
// to a custodial wallet.
type LinkOptions struct {
	OTP          string
	ChainID      int64
	JWTOrPayload string
}

// LinkedAccount is one auth method attached to a custodial wallet.
type LinkedAccount struct {
	Type    string               `json:"type"`
	Details LinkedAccountDetails `json:"details"`
}

// LinkedAccountDetails holds whichever identifiers the auth method has.
type LinkedAccountDetails struct {
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	ID      string `json:"id,omitempty"`
}
