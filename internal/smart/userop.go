package smart

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// UserOperation is an ERC-4337 v0.6 user operation in its JSON-RPC form.
type UserOperation struct {
	Sender               common.Address `json:"sender"`
	Nonce                hexutil.Big    `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         hexutil.Big    `json:"callGasLimit"`
	VerificationGasLimit hexutil.Big    `json:"verificationGasLimit"`
	PreVerificationGas   hexutil.Big    `json:"preVerificationGas"`
	MaxFeePerGas         hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas hexutil.Big    `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// dummySignature has the length and shape of a real ECDSA signature so
// bundlers can simulate validation before the operation is signed.
var dummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

var (
	tAddress = mustType("address")
	tUint256 = mustType("uint256")
	tBytes32 = mustType("bytes32")

	packedOpArgs = abi.Arguments{
		{Type: tAddress}, {Type: tUint256}, {Type: tBytes32}, {Type: tBytes32},
		{Type: tUint256}, {Type: tUint256}, {Type: tUint256}, {Type: tUint256},
		{Type: tUint256}, {Type: tBytes32},
	}
	opHashArgs = abi.Arguments{{Type: tBytes32}, {Type: tAddress}, {Type: tUint256}}
)

func mustType(name string) abi.Type {
	t, err := abi.NewType(name, "", nil)
	if err != nil {
		panic(err)
	}
	return t
}

// Hash returns the hash the account owner signs: the packed operation,
// without its signature, bound to entryPoint and chainID.
func (op *UserOperation) Hash(entryPoint common.Address, chainID int64) (common.Hash, error) {
	packed, err := packedOpArgs.Pack(
		op.Sender,
		op.Nonce.ToInt(),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		op.CallGasLimit.ToInt(),
		op.VerificationGasLimit.ToInt(),
		op.PreVerificationGas.ToInt(),
		op.MaxFeePerGas.ToInt(),
		op.MaxPriorityFeePerGas.ToInt(),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("packing user operation: %w", err)
	}
	enc, err := opHashArgs.Pack(crypto.Keccak256Hash(packed), entryPoint, big.NewInt(chainID))
	if err != nil {
		return common.Hash{}, fmt.Errorf("packing user operation hash: %w", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

func toBig(v *big.Int) hexutil.Big {
	if v == nil {
		return hexutil.Big{}
	}
	return hexutil.Big(*v)
}
