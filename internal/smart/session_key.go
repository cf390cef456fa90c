package smart

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/google/uuid"

	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// defaultRequestValidity is how long a signed permission request may be
// submitted when no validity end is given.
const defaultRequestValidity = 24 * time.Hour

// SessionKeyRequest grants a secondary signer scoped use of the account.
type SessionKeyRequest struct {
	Signer          common.Address
	ApprovedTargets []common.Address
	// NativeTokenLimitPerTx caps the value of each transaction, in wei.
	NativeTokenLimitPerTx *big.Int
	PermissionStart       time.Time
	PermissionEnd         time.Time
	// ReqValidityStart and ReqValidityEnd bound when the grant itself may
	// be submitted. The end defaults to a day from now.
	ReqValidityStart time.Time
	ReqValidityEnd   time.Time
}

var signerPermissionType = []apitypes.Type{
	{Name: "signer", Type: "address"},
	{Name: "isAdmin", Type: "uint8"},
	{Name: "approvedTargets", Type: "address[]"},
	{Name: "nativeTokenLimitPerTransaction", Type: "uint256"},
	{Name: "permissionStartTimestamp", Type: "uint128"},
	{Name: "permissionEndTimestamp", Type: "uint128"},
	{Name: "reqValidityStartTimestamp", Type: "uint128"},
	{Name: "reqValidityEndTimestamp", Type: "uint128"},
	{Name: "uid", Type: "bytes32"},
}

// CreateSessionKey has the personal wallet sign a SignerPermissionRequest
// and submits it to the account through setPermissionsForSigner.
func (a *Account) CreateSessionKey(ctx context.Context, req SessionKeyRequest) (common.Hash, error) {
	perms, err := buildPermissions(req, time.Now())
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := a.personal.SignTypedData(ctx, a.permissionTypedData(perms))
	if err != nil {
		return common.Hash{}, fmt.Errorf("signing permission request: %w", err)
	}
	callData, err := accountContract.Pack("setPermissionsForSigner", perms, sig)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encoding setPermissionsForSigner: %w", err)
	}
	hash, err := a.sendUserOp(ctx, callData)
	if err != nil {
		return common.Hash{}, err
	}
	a.logger.Info("session key granted", "signer", req.Signer.Hex(), "tx", hash.Hex())
	return hash, nil
}

func buildPermissions(req SessionKeyRequest, now time.Time) (signerPermissions, error) {
	if req.Signer == (common.Address{}) {
		return signerPermissions{}, fmt.Errorf("%w: session key signer is required", wallet.ErrConfiguration)
	}
	if !req.PermissionEnd.After(req.PermissionStart) {
		return signerPermissions{}, fmt.Errorf("%w: permission end must be after its start", wallet.ErrConfiguration)
	}
	validityEnd := req.ReqValidityEnd
	if validityEnd.IsZero() {
		validityEnd = now.Add(defaultRequestValidity)
	}
	limit := req.NativeTokenLimitPerTx
	if limit == nil {
		limit = new(big.Int)
	}
	targets := req.ApprovedTargets
	if targets == nil {
		targets = []common.Address{}
	}
	id := uuid.New()
	return signerPermissions{
		Signer:                         req.Signer,
		ApprovedTargets:                targets,
		NativeTokenLimitPerTransaction: limit,
		PermissionStartTimestamp:       unix(req.PermissionStart),
		PermissionEndTimestamp:         unix(req.PermissionEnd),
		ReqValidityStartTimestamp:      unix(req.ReqValidityStart),
		ReqValidityEndTimestamp:        unix(validityEnd),
		Uid:                            [32]byte(crypto.Keccak256Hash(id[:])),
	}, nil
}

func (a *Account) permissionTypedData(p signerPermissions) apitypes.TypedData {
	a.mu.Lock()
	chainID, address := a.chainID, a.address
	a.mu.Unlock()

	targets := make([]any, len(p.ApprovedTargets))
	for i, t := range p.ApprovedTargets {
		targets[i] = t.Hex()
	}
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain":            eip712DomainType,
			"SignerPermissionRequest": signerPermissionType,
		},
		PrimaryType: "SignerPermissionRequest",
		Domain:      accountDomain(chainID, address),
		Message: apitypes.TypedDataMessage{
			"signer":                         p.Signer.Hex(),
			"isAdmin":                        "0",
			"approvedTargets":                targets,
			"nativeTokenLimitPerTransaction": p.NativeTokenLimitPerTransaction.String(),
			"permissionStartTimestamp":       p.PermissionStartTimestamp.String(),
			"permissionEndTimestamp":         p.PermissionEndTimestamp.String(),
			"reqValidityStartTimestamp":      p.ReqValidityStartTimestamp.String(),
			"reqValidityEndTimestamp":        p.ReqValidityEndTimestamp.String(),
			"uid":                            hexutil.Encode(p.Uid[:]),
		},
	}
}

func unix(t time.Time) *big.Int {
	if t.IsZero() {
		return new(big.Int)
	}
	return big.NewInt(t.Unix())
}
