package chain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrChainNotFound is returned when a chain is not in the registry.
var ErrChainNotFound = errors.New("chain not found")

// Currency describes a chain's native currency.
type Currency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

// Chain holds all metadata for a single EVM chain.
type Chain struct {
	Name           string   `json:"name"`
	DisplayName    string   `json:"display_name"`
	ChainID        int64    `json:"chain_id"`
	NativeCurrency Currency `json:"native_currency"`
	RPCs           []string `json:"rpcs"`
	Explorer       string   `json:"explorer"`
	Testnet        bool     `json:"testnet"`
}

// CAIP2 returns the "eip155:<id>" identifier used by bridge wallets.
func (c *Chain) CAIP2() string {
	return fmt.Sprintf("eip155:%d", c.ChainID)
}

// HexChainID returns the chain id as a 0x-prefixed hex string.
func (c *Chain) HexChainID() string {
	return fmt.Sprintf("0x%x", c.ChainID)
}

// ThirdwebRPC returns the thirdweb-hosted RPC URL for chainID.
func ThirdwebRPC(chainID int64) string {
	return fmt.Sprintf("https://%d.rpc.thirdweb.com", chainID)
}

// Registry is the chain registry.
type Registry struct {
	chains []Chain
	byName map[string]*Chain
	byID   map[int64]*Chain
}

// NewRegistry creates and returns the built-in chain registry.
func NewRegistry() *Registry {
	chains := allChains()
	r := &Registry{
		chains: chains,
		byName: make(map[string]*Chain, len(chains)),
		byID:   make(map[int64]*Chain, len(chains)),
	}
	for i := range r.chains {
		c := &r.chains[i]
		r.byName[c.Name] = c
		r.byID[c.ChainID] = c
	}
	return r
}

// All returns every chain in the registry, ordered by chain id.
func (r *Registry) All() []Chain {
	out := make([]Chain, len(r.chains))
	copy(out, r.chains)
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}

// GetByName finds a chain by its slug name (e.g. "base", "arbitrum-sepolia").
func (r *Registry) GetByName(name string) (*Chain, error) {
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, ErrChainNotFound
	}
	return c, nil
}

// GetByChainID finds a chain by its numeric chain ID.
func (r *Registry) GetByChainID(id int64) (*Chain, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, ErrChainNotFound
	}
	return c, nil
}

// --- chain data ---

var ether = Currency{Name: "Ether", Symbol: "ETH", Decimals: 18}

func allChains() []Chain {
	return []Chain{
		{
			Name: "ethereum", DisplayName: "Ethereum", ChainID: 1, NativeCurrency: ether,
			RPCs:     []string{"https://eth.llamarpc.com", "https://ethereum-rpc.publicnode.com"},
			Explorer: "https://etherscan.io",
		},
		{
			Name: "sepolia", DisplayName: "Sepolia", ChainID: 11155111, NativeCurrency: ether, Testnet: true,
			RPCs:     []string{"https://ethereum-sepolia-rpc.publicnode.com"},
			Explorer: "https://sepolia.etherscan.io",
		},
		{
			Name: "arbitrum", DisplayName: "Arbitrum One", ChainID: 42161, NativeCurrency: ether,
			RPCs:     []string{"https://arb1.arbitrum.io/rpc", "https://arbitrum-one-rpc.publicnode.com"},
			Explorer: "https://arbiscan.io",
		},
		{
			Name: "arbitrum-sepolia", DisplayName: "Arbitrum Sepolia", ChainID: 421614, NativeCurrency: ether, Testnet: true,
			RPCs:     []string{"https://sepolia-rollup.arbitrum.io/rpc"},
			Explorer: "https://sepolia.arbiscan.io",
		},
		{
			Name: "polygon", DisplayName: "Polygon", ChainID: 137,
			NativeCurrency: Currency{Name: "POL", Symbol: "POL", Decimals: 18},
			RPCs:           []string{"https://polygon-rpc.com", "https://polygon-bor-rpc.publicnode.com"},
			Explorer:       "https://polygonscan.com",
		},
		{
			Name: "polygon-amoy", DisplayName: "Polygon Amoy", ChainID: 80002, Testnet: true,
			NativeCurrency: Currency{Name: "POL", Symbol: "POL", Decimals: 18},
			RPCs:           []string{"https://rpc-amoy.polygon.technology"},
			Explorer:       "https://amoy.polygonscan.com",
		},
		{
			Name: "base", DisplayName: "Base", ChainID: 8453, NativeCurrency: ether,
			RPCs:     []string{"https://mainnet.base.org", "https://base-rpc.publicnode.com"},
			Explorer: "https://basescan.org",
		},
		{
			Name: "base-sepolia", DisplayName: "Base Sepolia", ChainID: 84532, NativeCurrency: ether, Testnet: true,
			RPCs:     []string{"https://sepolia.base.org"},
			Explorer: "https://sepolia.basescan.org",
		},
		{
			Name: "optimism", DisplayName: "OP Mainnet", ChainID: 10, NativeCurrency: ether,
			RPCs:     []string{"https://mainnet.optimism.io", "https://optimism-rpc.publicnode.com"},
			Explorer: "https://optimistic.etherscan.io",
		},
		{
			Name: "optimism-sepolia", DisplayName: "OP Sepolia", ChainID: 11155420, NativeCurrency: ether, Testnet: true,
			RPCs:     []string{"https://sepolia.optimism.io"},
			Explorer: "https://sepolia-optimism.etherscan.io",
		},
		{
			Name: "avalanche", DisplayName: "Avalanche C-Chain", ChainID: 43114,
			NativeCurrency: Currency{Name: "Avalanche", Symbol: "AVAX", Decimals: 18},
			RPCs:           []string{"https://api.avax.network/ext/bc/C/rpc"},
			Explorer:       "https://snowtrace.io",
		},
		{
			Name: "celo", DisplayName: "Celo", ChainID: 42220,
			NativeCurrency: Currency{Name: "Celo", Symbol: "CELO", Decimals: 18},
			RPCs:           []string{"https://forno.celo.org"},
			Explorer:       "https://celoscan.io",
		},
		{
			Name: "ronin", DisplayName: "Ronin", ChainID: 2020,
			NativeCurrency: Currency{Name: "Ronin", Symbol: "RON", Decimals: 18},
			RPCs:           []string{"https://api.roninchain.com/rpc"},
			Explorer:       "https://app.roninchain.com",
		},
		{
			Name: "lisk", DisplayName: "Lisk", ChainID: 1135, NativeCurrency: ether,
			RPCs:     []string{"https://rpc.api.lisk.com"},
			Explorer: "https://blockscout.lisk.com",
		},
	}
}
