// Package smart upgrades a personal wallet to an ERC-4337 smart account.
// Transactions become user operations sent through a bundler, optionally
// sponsored by a paymaster, and signed by the personal wallet.
package smart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/metrics"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// Deps are the services a smart account needs besides its options.
type Deps struct {
	// Sessions resolves the chain RPC used for eth_call and eth_getCode.
	Sessions wallet.ChainSessions
	// Defaults fill options left empty.
	Defaults   config.SmartConfig
	HTTPClient *http.Client
	ClientID   string
	BundleID   string
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// PollInterval spaces receipt polls. Defaults to config.UserOpPollInterval.
	PollInterval time.Duration
	// ReceiptTimeout bounds the wait for inclusion. Defaults to
	// config.UserOpReceiptTimeout.
	ReceiptTimeout time.Duration
}

// Account is a smart account controlled by a personal wallet. It owns the
// personal wallet: Disconnect and LinkAccount are forwarded to it.
type Account struct {
	personal wallet.Wallet
	admin    common.Address
	opts     wallet.SmartOptions
	deps     Deps
	logger   *slog.Logger

	factory    common.Address
	entryPoint common.Address

	mu       sync.Mutex
	chainID  int64
	address  common.Address
	deployed bool
	bundler  *bundler
}

// New wraps personal in a smart account on chainID. A personal wallet that
// already is a smart account is returned unchanged.
func New(ctx context.Context, personal wallet.Wallet, chainID int64, opts *wallet.SmartOptions, deps Deps) (wallet.Wallet, error) {
	if acct, ok := personal.(*Account); ok {
		acct.logger.Warn("wallet is already a smart account")
		return acct, nil
	}
	if opts == nil {
		return nil, fmt.Errorf("%w: smart account options are required", wallet.ErrConfiguration)
	}
	if chainID <= 0 {
		return nil, fmt.Errorf("%w: chain id must be greater than 0, got %d", wallet.ErrConfiguration, chainID)
	}
	if personal == nil {
		return nil, fmt.Errorf("%w: a personal wallet is required", wallet.ErrConfiguration)
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("%w: chain sessions are required", wallet.ErrConfiguration)
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.PollInterval <= 0 {
		deps.PollInterval = config.UserOpPollInterval
	}
	if deps.ReceiptTimeout <= 0 {
		deps.ReceiptTimeout = config.UserOpReceiptTimeout
	}
	if err := checkTokenChain(opts.TokenPaymaster, chainID); err != nil {
		return nil, err
	}

	a := &Account{
		personal: personal,
		opts:     *opts,
		deps:     deps,
		logger:   deps.Logger,
		chainID:  chainID,
	}
	var err error
	if a.factory, err = addressOption("factory", opts.FactoryAddress, deps.Defaults.FactoryAddress, DefaultFactory); err != nil {
		return nil, err
	}
	if a.entryPoint, err = addressOption("entry point", opts.EntryPoint, deps.Defaults.EntryPoint, DefaultEntryPoint); err != nil {
		return nil, err
	}
	if a.admin, err = personal.Address(ctx); err != nil {
		return nil, fmt.Errorf("personal wallet address: %w", err)
	}

	if a.bundler, err = a.dialBundler(ctx, chainID); err != nil {
		return nil, err
	}
	if err := a.resolveAddress(ctx); err != nil {
		a.bundler.close()
		return nil, err
	}
	a.logger.Debug("smart account ready",
		"address", a.address.Hex(),
		"admin", a.admin.Hex(),
		"chain", chainID,
		"sponsored", opts.SponsorGas,
	)
	return a, nil
}

// Personal returns the controlling wallet.
func (a *Account) Personal() wallet.Wallet { return a.personal }

func (a *Account) Address(context.Context) (common.Address, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.address, nil
}

func (a *Account) AccountType() wallet.AccountType { return wallet.AccountSmart }

func (a *Account) ChainID() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chainID
}

func (a *Account) IsConnected(ctx context.Context) (bool, error) {
	return a.personal.IsConnected(ctx)
}

// IsDeployed reports whether the account contract has code on the current
// chain.
func (a *Account) IsDeployed(ctx context.Context) (bool, error) {
	a.mu.Lock()
	if a.deployed {
		a.mu.Unlock()
		return true, nil
	}
	chainID, address := a.chainID, a.address
	a.mu.Unlock()

	client, err := a.client(ctx, chainID)
	if err != nil {
		return false, err
	}
	code, err := client.Code(ctx, address)
	if err != nil {
		return false, fmt.Errorf("%w: reading account code: %w", wallet.ErrTransport, err)
	}
	if len(code) == 0 {
		return false, nil
	}
	a.mu.Lock()
	a.deployed = true
	a.mu.Unlock()
	return true, nil
}

// ForceDeploy deploys the account contract with an empty self-call. It
// is a no-op when the account already exists.
func (a *Account) ForceDeploy(ctx context.Context) error {
	deployed, err := a.IsDeployed(ctx)
	if err != nil || deployed {
		return err
	}
	address, _ := a.Address(ctx)
	callData, err := packExecute(address, nil, nil)
	if err != nil {
		return err
	}
	if _, err := a.sendUserOp(ctx, callData); err != nil {
		return fmt.Errorf("deploying smart account: %w", err)
	}
	a.mu.Lock()
	a.deployed = true
	a.mu.Unlock()
	return nil
}

// SendTransaction wraps req in an execute call and submits it as a user
// operation. It returns the hash of the bundle transaction that included
// it.
func (a *Account) SendTransaction(ctx context.Context, req *wallet.TxRequest) (common.Hash, error) {
	if req == nil || req.To == nil {
		return common.Hash{}, fmt.Errorf("%w: smart accounts cannot deploy contracts directly", wallet.ErrUnsupported)
	}
	if req.ChainID != 0 && req.ChainID != a.ChainID() {
		if err := a.SwitchNetwork(ctx, req.ChainID); err != nil {
			return common.Hash{}, err
		}
	}
	callData, err := packExecute(*req.To, req.Value, req.Data)
	if err != nil {
		return common.Hash{}, err
	}
	return a.sendUserOp(ctx, callData)
}

// PersonalSign deploys the account if needed and has the personal wallet
// sign the account's EIP-712 AccountMessage wrapping the EIP-191 hash of
// message. The result validates through the account's EIP-1271 check.
func (a *Account) PersonalSign(ctx context.Context, message []byte) ([]byte, error) {
	if err := a.ForceDeploy(ctx); err != nil {
		return nil, err
	}
	hash := wallet.HashPersonal(message)
	return a.personal.SignTypedData(ctx, a.accountMessage(hash))
}

// SignTypedData signs data directly when it targets this account, and
// through the AccountMessage wrapper otherwise.
func (a *Account) SignTypedData(ctx context.Context, data apitypes.TypedData) ([]byte, error) {
	address, _ := a.Address(ctx)
	if common.HexToAddress(data.Domain.VerifyingContract) == address {
		return a.personal.SignTypedData(ctx, data)
	}
	if err := a.ForceDeploy(ctx); err != nil {
		return nil, err
	}
	hash, _, err := apitypes.TypedDataAndHash(data)
	if err != nil {
		return nil, fmt.Errorf("hashing typed data: %w", err)
	}
	return a.personal.SignTypedData(ctx, a.accountMessage(hash))
}

// SwitchNetwork moves the account and its personal wallet to chainID.
// Bundler endpoints follow the chain unless they were set explicitly.
func (a *Account) SwitchNetwork(ctx context.Context, chainID int64) error {
	if chainID <= 0 {
		return fmt.Errorf("%w: chain id must be greater than 0", wallet.ErrConfiguration)
	}
	if chainID == a.ChainID() {
		return nil
	}
	if err := checkTokenChain(a.opts.TokenPaymaster, chainID); err != nil {
		return err
	}
	if err := a.personal.SwitchNetwork(ctx, chainID); err != nil && !errors.Is(err, wallet.ErrUnsupported) {
		return err
	}
	b, err := a.dialBundler(ctx, chainID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	old := a.bundler
	a.bundler = b
	a.chainID = chainID
	a.deployed = false
	a.mu.Unlock()
	old.close()
	return nil
}

func (a *Account) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	b := a.bundler
	a.mu.Unlock()
	b.close()
	return a.personal.Disconnect(ctx)
}

func (a *Account) LinkAccount(ctx context.Context, toLink wallet.Wallet, opts wallet.LinkOptions) ([]wallet.LinkedAccount, error) {
	return a.personal.LinkAccount(ctx, toLink, opts)
}

// sendUserOp builds, sponsors, estimates, signs and submits a user
// operation calling the account with callData, then waits for inclusion.
func (a *Account) sendUserOp(ctx context.Context, callData []byte) (hash common.Hash, err error) {
	a.mu.Lock()
	chainID, sender, b := a.chainID, a.address, a.bundler
	a.mu.Unlock()
	defer func() {
		a.deps.Metrics.RecordUserOp(strconv.FormatInt(chainID, 10), err)
	}()

	op, err := a.buildUserOp(ctx, chainID, sender, callData)
	if err != nil {
		return common.Hash{}, err
	}
	if err := a.fillGas(ctx, b, op); err != nil {
		return common.Hash{}, err
	}

	opHash, err := op.Hash(a.entryPoint, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := a.personal.PersonalSign(ctx, opHash.Bytes())
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing user operation: %w", err)
	}
	op.Signature = sig

	userOpHash, err := b.send(ctx, op)
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: eth_sendUserOperation: %w", wallet.ErrTransport, err)
	}
	a.logger.Debug("user operation sent", "hash", userOpHash.Hex(), "chain", chainID)

	waitCtx, cancel := context.WithTimeout(ctx, a.deps.ReceiptTimeout)
	defer cancel()
	receipt, err := b.waitReceipt(waitCtx, userOpHash, a.deps.PollInterval)
	if err != nil {
		if errors.Is(err, wallet.ErrTimeout) {
			return common.Hash{}, err
		}
		return common.Hash{}, fmt.Errorf("%w: %w", wallet.ErrTransport, err)
	}
	if !receipt.Success {
		a.logger.Warn("user operation reverted", "hash", userOpHash.Hex(), "reason", receipt.Reason)
	}
	return receipt.Receipt.TransactionHash, nil
}

func (a *Account) buildUserOp(ctx context.Context, chainID int64, sender common.Address, callData []byte) (*UserOperation, error) {
	deployed, err := a.IsDeployed(ctx)
	if err != nil {
		return nil, err
	}
	var initCode []byte
	if !deployed {
		if initCode, err = packInitCode(a.factory, a.admin); err != nil {
			return nil, err
		}
	}
	nonce, err := a.nonce(ctx, chainID, sender)
	if err != nil {
		return nil, err
	}
	return &UserOperation{
		Sender:           sender,
		Nonce:            toBig(nonce),
		InitCode:         initCode,
		CallData:         callData,
		PaymasterAndData: []byte{},
		Signature:        dummySignature,
	}, nil
}

// fillGas prices the operation, sponsors it when asked and estimates its
// gas limits. Sponsored operations are re-sponsored after estimation so
// the paymaster signature covers the final limits.
func (a *Account) fillGas(ctx context.Context, b *bundler, op *UserOperation) error {
	price, err := b.gasPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: fetching user operation gas price: %w", wallet.ErrTransport, err)
	}
	op.MaxFeePerGas = price.MaxFeePerGas
	op.MaxPriorityFeePerGas = price.MaxPriorityFeePerGas

	sponsored := a.opts.SponsorGas || a.opts.TokenPaymaster != wallet.TokenPaymasterNone
	if sponsored {
		sp, err := b.sponsor(ctx, op, a.paymasterContext())
		if err != nil {
			return fmt.Errorf("%w: pm_sponsorUserOperation: %w", wallet.ErrTransport, err)
		}
		op.PaymasterAndData = sp.PaymasterAndData
		if sp.CallGasLimit != nil && sp.VerificationGasLimit != nil && sp.PreVerificationGas != nil {
			op.CallGasLimit = *sp.CallGasLimit
			op.VerificationGasLimit = *sp.VerificationGasLimit
			op.PreVerificationGas = *sp.PreVerificationGas
			return nil
		}
	}

	est, err := b.estimate(ctx, op)
	if err != nil {
		return fmt.Errorf("%w: eth_estimateUserOperationGas: %w", wallet.ErrTransport, err)
	}
	op.CallGasLimit = est.CallGasLimit
	op.VerificationGasLimit = est.VerificationGasLimit
	op.PreVerificationGas = est.PreVerificationGas

	if sponsored {
		sp, err := b.sponsor(ctx, op, a.paymasterContext())
		if err != nil {
			return fmt.Errorf("%w: pm_sponsorUserOperation: %w", wallet.ErrTransport, err)
		}
		op.PaymasterAndData = sp.PaymasterAndData
	}
	return nil
}

func (a *Account) paymasterContext() map[string]any {
	token, ok := paymasterTokens[a.opts.TokenPaymaster]
	if !ok {
		return nil
	}
	return map[string]any{"token": token.address.Hex()}
}

// nonce reads the entry point nonce under a random 192-bit key so
// concurrent operations do not collide.
func (a *Account) nonce(ctx context.Context, chainID int64, sender common.Address) (*big.Int, error) {
	id := uuid.New()
	key := new(big.Int).SetBytes(id[:])
	data, err := entryPointContract.Pack("getNonce", sender, key)
	if err != nil {
		return nil, fmt.Errorf("encoding getNonce: %w", err)
	}
	client, err := a.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	out, err := client.CallContract(ctx, a.entryPoint, data)
	if err != nil {
		return nil, fmt.Errorf("%w: reading account nonce: %w", wallet.ErrTransport, err)
	}
	vals, err := entryPointContract.Unpack("getNonce", out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("decoding getNonce: %w", err)
	}
	n, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("decoding getNonce: unexpected %T", vals[0])
	}
	return n, nil
}

// resolveAddress fixes the account address: the override when given,
// otherwise the factory's counterfactual address for the admin.
func (a *Account) resolveAddress(ctx context.Context) error {
	if a.opts.AccountAddressOverride != "" {
		if !common.IsHexAddress(a.opts.AccountAddressOverride) {
			return fmt.Errorf("%w: invalid account address override %q", wallet.ErrConfiguration, a.opts.AccountAddressOverride)
		}
		a.address = common.HexToAddress(a.opts.AccountAddressOverride)
		return nil
	}

	data, err := factoryContract.Pack("getAddress", a.admin, []byte{})
	if err != nil {
		return fmt.Errorf("encoding getAddress: %w", err)
	}
	client, err := a.client(ctx, a.chainID)
	if err != nil {
		return err
	}
	out, err := client.CallContract(ctx, a.factory, data)
	if err != nil {
		return fmt.Errorf("%w: factory getAddress: %w", wallet.ErrTransport, err)
	}
	vals, err := factoryContract.Unpack("getAddress", out)
	if err != nil || len(vals) != 1 {
		return fmt.Errorf("decoding getAddress: %w", err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return fmt.Errorf("decoding getAddress: unexpected %T", vals[0])
	}
	a.address = addr
	return nil
}

func (a *Account) client(ctx context.Context, chainID int64) (*chain.Client, error) {
	sess, err := a.deps.Sessions.Get(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", wallet.ErrTransport, err)
	}
	return sess.Client, nil
}

func (a *Account) dialBundler(ctx context.Context, chainID int64) (*bundler, error) {
	bundlerURL := firstNonEmpty(a.opts.BundlerURL, a.deps.Defaults.BundlerURL, BundlerURL(chainID))
	paymasterURL := firstNonEmpty(a.opts.PaymasterURL, a.deps.Defaults.PaymasterURL, bundlerURL)

	rpcClient, err := a.dial(ctx, bundlerURL)
	if err != nil {
		return nil, err
	}
	b := &bundler{rpc: rpcClient, paymaster: rpcClient, entryPoint: a.entryPoint}
	if paymasterURL != bundlerURL {
		if b.paymaster, err = a.dial(ctx, paymasterURL); err != nil {
			rpcClient.Close()
			return nil, err
		}
	}
	return b, nil
}

func (a *Account) dial(ctx context.Context, url string) (*chain.Client, error) {
	var opts []chain.ClientOption
	if a.deps.HTTPClient != nil {
		opts = append(opts, chain.WithHTTPClient(a.deps.HTTPClient))
	}
	if chain.IsThirdwebHost(url) {
		opts = append(opts,
			chain.WithHeader("x-client-id", a.deps.ClientID),
			chain.WithHeader("x-bundle-id", a.deps.BundleID),
		)
	}
	c, err := chain.Dial(ctx, url, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", wallet.ErrTransport, err)
	}
	return c, nil
}

// accountMessage is the EIP-712 wrapper the account contract verifies
// signatures against.
func (a *Account) accountMessage(hash []byte) apitypes.TypedData {
	a.mu.Lock()
	chainID, address := a.chainID, a.address
	a.mu.Unlock()
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": eip712DomainType,
			"AccountMessage": {
				{Name: "message", Type: "bytes"},
			},
		},
		PrimaryType: "AccountMessage",
		Domain:      accountDomain(chainID, address),
		Message: apitypes.TypedDataMessage{
			"message": hexutil.Encode(hash),
		},
	}
}

var eip712DomainType = []apitypes.Type{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

func accountDomain(chainID int64, address common.Address) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:              "Account",
		Version:           "1",
		ChainId:           math.NewHexOrDecimal256(chainID),
		VerifyingContract: address.Hex(),
	}
}

func addressOption(name string, values ...string) (common.Address, error) {
	v := firstNonEmpty(values...)
	if !common.IsHexAddress(v) {
		return common.Address{}, fmt.Errorf("%w: invalid %s address %q", wallet.ErrConfiguration, name, v)
	}
	return common.HexToAddress(v), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
