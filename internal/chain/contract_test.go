package chain

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const balanceOfABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"owner","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]}
]`

func TestContractRead(t *testing.T) {
	srv := rpcMock(t, map[string]any{
		"eth_call": "0x000000000000000000000000000000000000000000000000000000000000002a",
	})
	c := dialMock(t, srv)

	token, err := NewContract(c, common.HexToAddress("0x1000000000000000000000000000000000000001"), balanceOfABI)
	require.NoError(t, err)

	out, err := token.Read(context.Background(), "balanceOf", common.HexToAddress("0xaa"))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, big.NewInt(42), out[0])
}

func TestContractReadRejectsWriteFunction(t *testing.T) {
	token, err := NewContract(nil, common.Address{}, balanceOfABI)
	require.NoError(t, err)

	_, err = token.Read(context.Background(), "transfer", common.Address{}, big.NewInt(1))
	assert.ErrorContains(t, err, "not a read function")

	_, err = token.Read(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")
}

func TestContractPack(t *testing.T) {
	token, err := NewContract(nil, common.Address{}, balanceOfABI)
	require.NoError(t, err)

	data, err := token.Pack("transfer", common.HexToAddress("0xbb"), big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, "a9059cbb", common.Bytes2Hex(data[:4]))
	assert.Len(t, data, 4+64)
}

func TestNewContractBadABI(t *testing.T) {
	_, err := NewContract(nil, common.Address{}, "not json")
	assert.Error(t, err)
}
