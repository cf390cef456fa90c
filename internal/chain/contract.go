package chain

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Contract binds an ABI to a deployed address on one chain.
type Contract struct {
	address common.Address
	abi     abi.ABI
	client  *Client
}

// NewContract parses abiJSON and binds it to address.
func NewContract(client *Client, address common.Address, abiJSON string) (*Contract, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI: %w", err)
	}
	return &Contract{address: address, abi: parsed, client: client}, nil
}

// Address returns the contract address.
func (c *Contract) Address() common.Address { return c.address }

// ABI returns the parsed ABI.
func (c *Contract) ABI() abi.ABI { return c.abi }

// Pack encodes a call to method with args.
func (c *Contract) Pack(method string, args ...any) ([]byte, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	return data, nil
}

// Read calls a view or pure function and returns its decoded outputs.
func (c *Contract) Read(ctx context.Context, method string, args ...any) ([]any, error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("function %q not found in ABI", method)
	}
	if !m.IsConstant() {
		return nil, fmt.Errorf("function %q is not a read function (stateMutability: %s)", method, m.StateMutability)
	}

	data, err := c.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	out, err := c.client.CallContract(ctx, c.address, data)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	values, err := c.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", method, err)
	}
	return values, nil
}
