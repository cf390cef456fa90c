// Package ens resolves ENS names so commands can take "vitalik.eth"
// wherever they take an address.
package ens

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// RegistryAddress is the ENS registry on Ethereum mainnet and Sepolia.
var RegistryAddress = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

// ErrNoRecord means the name (or address) has no resolver or record.
var ErrNoRecord = errors.New("ens: no record")

// Caller runs read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

const resolverABI = `[
	{"name":"resolver","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"addr","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"address"}]},
	{"name":"name","type":"function","stateMutability":"view","inputs":[{"name":"node","type":"bytes32"}],"outputs":[{"name":"","type":"string"}]}
]`

var parsedABI = func() abi.ABI {
	a, err := abi.JSON(strings.NewReader(resolverABI))
	if err != nil {
		panic(err)
	}
	return a
}()

// IsName reports whether s looks like an ENS name rather than an address.
func IsName(s string) bool {
	return strings.Contains(s, ".") && !common.IsHexAddress(s)
}

// Resolve returns the address name points to.
func Resolve(ctx context.Context, c Caller, name string) (common.Address, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	node := Namehash(name)

	resolver, err := resolverFor(ctx, c, node)
	if err != nil {
		return common.Address{}, fmt.Errorf("resolving %q: %w", name, err)
	}

	var addr common.Address
	if err := call(ctx, c, resolver, "addr", node, &addr); err != nil {
		return common.Address{}, fmt.Errorf("resolving %q: %w", name, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("resolving %q: %w", name, ErrNoRecord)
	}
	return addr, nil
}

// ReverseLookup returns the primary name set for address.
func ReverseLookup(ctx context.Context, c Caller, address common.Address) (string, error) {
	node := Namehash(strings.ToLower(address.Hex()[2:]) + ".addr.reverse")

	resolver, err := resolverFor(ctx, c, node)
	if err != nil {
		return "", fmt.Errorf("reverse lookup of %s: %w", address.Hex(), err)
	}

	var name string
	if err := call(ctx, c, resolver, "name", node, &name); err != nil {
		return "", fmt.Errorf("reverse lookup of %s: %w", address.Hex(), err)
	}
	if name == "" {
		return "", fmt.Errorf("reverse lookup of %s: %w", address.Hex(), ErrNoRecord)
	}
	return name, nil
}

// Namehash implements the EIP-137 namehash.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(name, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256([]byte(labels[i]))
		node = crypto.Keccak256Hash(node[:], label)
	}
	return node
}

func resolverFor(ctx context.Context, c Caller, node common.Hash) (common.Address, error) {
	var resolver common.Address
	if err := call(ctx, c, RegistryAddress, "resolver", node, &resolver); err != nil {
		return common.Address{}, err
	}
	if resolver == (common.Address{}) {
		return common.Address{}, ErrNoRecord
	}
	return resolver, nil
}

func call(ctx context.Context, c Caller, to common.Address, method string, node common.Hash, out any) error {
	data, err := parsedABI.Pack(method, node)
	if err != nil {
		return err
	}
	raw, err := c.CallContract(ctx, to, data)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return ErrNoRecord
	}
	vals, err := parsedABI.Unpack(method, raw)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", method, err)
	}
	return parsedABI.Methods[method].Outputs.Copy(out, vals)
}
