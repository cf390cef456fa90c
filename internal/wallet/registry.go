package wallet

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry maps checksum addresses to connected wallets and tracks the
// single active wallet. It holds references only; it never disconnects.
type Registry struct {
	mu      sync.RWMutex
	wallets map[common.Address]Wallet
	active  Wallet
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{wallets: make(map[common.Address]Wallet)}
}

// Add registers w under its address. Adding an address that is already
// registered keeps the original wallet.
func (r *Registry) Add(ctx context.Context, w Wallet) (Wallet, error) {
	addr, err := w.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving wallet address: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.wallets[addr]; ok {
		return existing, nil
	}
	r.wallets[addr] = w
	return w, nil
}

// SetActive replaces the active wallet.
func (r *Registry) SetActive(w Wallet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = w
}

// Active returns the active wallet, or nil.
func (r *Registry) Active() Wallet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// Get looks up a wallet by address in any casing.
func (r *Registry) Get(address string) (Wallet, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q is not an address", ErrNotFound, address)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wallets[common.HexToAddress(address)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, common.HexToAddress(address).Hex())
	}
	return w, nil
}

// Remove drops the wallet at address. Unknown addresses are ignored. If the
// removed wallet was active, no wallet is active afterwards.
func (r *Registry) Remove(address string) {
	if !common.IsHexAddress(address) {
		return
	}
	addr := common.HexToAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[addr]
	if !ok {
		return
	}
	delete(r.wallets, addr)
	if r.active == w {
		r.active = nil
	}
}

// Entry is one registered wallet.
type Entry struct {
	Address common.Address
	Wallet  Wallet
	Active  bool
}

// List returns every registered wallet sorted by address.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.wallets))
	for addr, w := range r.wallets {
		out = append(out, Entry{Address: addr, Wallet: w, Active: r.active == w})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address.Cmp(out[j].Address) < 0 })
	return out
}
