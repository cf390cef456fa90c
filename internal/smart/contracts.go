package smart

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultEntryPoint is the ERC-4337 v0.6 entry point.
	DefaultEntryPoint = "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"
	// DefaultFactory is thirdweb's default account factory for v0.6.
	DefaultFactory = "0x85e23b94e7F5E9cC1fF78BCe78cfb15B81f0DF00"
)

const factoryABI = `[
	{"type":"function","name":"getAddress","stateMutability":"view",
	 "inputs":[{"name":"_adminSigner","type":"address"},{"name":"_data","type":"bytes"}],
	 "outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"createAccount","stateMutability":"nonpayable",
	 "inputs":[{"name":"_admin","type":"address"},{"name":"_data","type":"bytes"}],
	 "outputs":[{"name":"","type":"address"}]}
]`

const accountABI = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable",
	 "inputs":[{"name":"_target","type":"address"},{"name":"_value","type":"uint256"},{"name":"_calldata","type":"bytes"}],
	 "outputs":[]},
	{"type":"function","name":"setPermissionsForSigner","stateMutability":"nonpayable",
	 "inputs":[
		{"name":"_req","type":"tuple","components":[
			{"name":"signer","type":"address"},
			{"name":"isAdmin","type":"uint8"},
			{"name":"approvedTargets","type":"address[]"},
			{"name":"nativeTokenLimitPerTransaction","type":"uint256"},
			{"name":"permissionStartTimestamp","type":"uint128"},
			{"name":"permissionEndTimestamp","type":"uint128"},
			{"name":"reqValidityStartTimestamp","type":"uint128"},
			{"name":"reqValidityEndTimestamp","type":"uint128"},
			{"name":"uid","type":"bytes32"}]},
		{"name":"_signature","type":"bytes"}],
	 "outputs":[]}
]`

const entryPointABI = `[
	{"type":"function","name":"getNonce","stateMutability":"view",
	 "inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],
	 "outputs":[{"name":"nonce","type":"uint256"}]}
]`

var (
	factoryContract    = mustABI(factoryABI)
	accountContract    = mustABI(accountABI)
	entryPointContract = mustABI(entryPointABI)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// signerPermissions mirrors the account's SignerPermissionRequest tuple.
// Field names match the ABI component names.
type signerPermissions struct {
	Signer                         common.Address
	IsAdmin                        uint8
	ApprovedTargets                []common.Address
	NativeTokenLimitPerTransaction *big.Int
	PermissionStartTimestamp       *big.Int
	PermissionEndTimestamp         *big.Int
	ReqValidityStartTimestamp      *big.Int
	ReqValidityEndTimestamp        *big.Int
	Uid                            [32]byte
}

func packExecute(target common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}
	out, err := accountContract.Pack("execute", target, value, data)
	if err != nil {
		return nil, fmt.Errorf("encoding execute: %w", err)
	}
	return out, nil
}

func packInitCode(factory, admin common.Address) ([]byte, error) {
	call, err := factoryContract.Pack("createAccount", admin, []byte{})
	if err != nil {
		return nil, fmt.Errorf("encoding createAccount: %w", err)
	}
	return append(factory.Bytes(), call...), nil
}
