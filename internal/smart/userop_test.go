package smart

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOp() *UserOperation {
	return &UserOperation{
		Sender:               common.HexToAddress("0x00000000000000000000000000000000000ac0c7"),
		Nonce:                toBig(big.NewInt(1)),
		CallData:             []byte{1, 2, 3},
		CallGasLimit:         toBig(big.NewInt(100)),
		VerificationGasLimit: toBig(big.NewInt(200)),
		PreVerificationGas:   toBig(big.NewInt(300)),
		MaxFeePerGas:         toBig(big.NewInt(10)),
		MaxPriorityFeePerGas: toBig(big.NewInt(1)),
	}
}

func TestUserOpHashIgnoresSignature(t *testing.T) {
	entryPoint := common.HexToAddress(DefaultEntryPoint)
	op := sampleOp()

	h1, err := op.Hash(entryPoint, 1)
	require.NoError(t, err)
	op.Signature = dummySignature
	h2, err := op.Hash(entryPoint, 1)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := op.Hash(entryPoint, 8453)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	op.CallData = []byte{9}
	h4, err := op.Hash(entryPoint, 1)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}

func TestUserOpJSON(t *testing.T) {
	raw, err := json.Marshal(sampleOp())
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0x1", fields["nonce"])
	assert.Equal(t, "0x64", fields["callGasLimit"])
	assert.Equal(t, "0x", fields["initCode"])
	assert.Equal(t, "0x010203", fields["callData"])
}

func TestSponsorshipForms(t *testing.T) {
	var bare sponsorship
	require.NoError(t, json.Unmarshal([]byte(`"0xbeef"`), &bare))
	assert.Equal(t, hexutil.Bytes{0xbe, 0xef}, bare.PaymasterAndData)
	assert.Nil(t, bare.CallGasLimit)

	var full sponsorship
	require.NoError(t, json.Unmarshal([]byte(`{"paymasterAndData":"0x01","callGasLimit":"0x10","verificationGasLimit":"0x20","preVerificationGas":"0x30"}`), &full))
	assert.Equal(t, hexutil.Bytes{0x01}, full.PaymasterAndData)
	require.NotNil(t, full.CallGasLimit)
	assert.Equal(t, int64(16), full.CallGasLimit.ToInt().Int64())
}

func TestBundlerURL(t *testing.T) {
	assert.Equal(t, "https://8453.bundler.thirdweb.com", BundlerURL(8453))
}
