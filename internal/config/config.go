package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const (
	defaultChainID   = 1
	defaultAlgorithm = "fastest"

	defaultConnectRetryCount = 3
	defaultMaxTimeoutRetries = 5

	configFile  = "config.json"
	walletsFile = "wallets.json"
)

// Load reads config from dir (or creates defaults). dir defaults to ~/.w3link.
func Load(dir string) (*Config, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("could not determine home dir: %w", err)
		}
		dir = filepath.Join(home, ".w3link")
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("could not create config dir: %w", err)
	}

	cfg := defaults(dir)

	path := filepath.Join(dir, configFile)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.configDir = dir
	if cfg.CustomRPCs == nil {
		cfg.CustomRPCs = make(map[int64][]string)
	}
	cfg.WalletConnect.applyDefaults()

	return cfg, nil
}

// Default returns an in-memory config with defaults and no backing dir.
func Default() *Config {
	return defaults("")
}

// Save writes the config to disk.
func (c *Config) Save() error {
	if c.configDir == "" {
		return fmt.Errorf("config has no backing directory")
	}
	if err := os.MkdirAll(c.configDir, 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.configDir, configFile), data, 0o600)
}

// AddRPC adds a custom RPC URL for a chain.
func (c *Config) AddRPC(chainID int64, url string) error {
	if c.CustomRPCs == nil {
		c.CustomRPCs = make(map[int64][]string)
	}
	if slices.Contains(c.CustomRPCs[chainID], url) {
		return fmt.Errorf("RPC %s already exists for chain %d", url, chainID)
	}
	c.CustomRPCs[chainID] = append(c.CustomRPCs[chainID], url)
	return nil
}

// RemoveRPC removes a custom RPC URL for a chain.
func (c *Config) RemoveRPC(chainID int64, url string) error {
	rpcs := c.CustomRPCs[chainID]
	idx := slices.Index(rpcs, url)
	if idx == -1 {
		return fmt.Errorf("RPC %s not found for chain %d", url, chainID)
	}
	c.CustomRPCs[chainID] = slices.Delete(rpcs, idx, idx+1)
	return nil
}

// GetRPCs returns custom RPCs for a chain.
func (c *Config) GetRPCs(chainID int64) []string {
	return c.CustomRPCs[chainID]
}

// Dir returns the config directory.
func (c *Config) Dir() string {
	return c.configDir
}

// LoadLocalKeys reads wallets.json.
func (c *Config) LoadLocalKeys() (*LocalKeysFile, error) {
	return loadJSON[LocalKeysFile](filepath.Join(c.configDir, walletsFile))
}

// SaveLocalKeys writes wallets.json.
func (c *Config) SaveLocalKeys(f *LocalKeysFile) error {
	return saveJSON(filepath.Join(c.configDir, walletsFile), f)
}

// LocalKeysPath is the path of wallets.json.
func (c *Config) LocalKeysPath() string {
	return filepath.Join(c.configDir, walletsFile)
}

// --- helpers ---

func defaults(dir string) *Config {
	cfg := &Config{
		DefaultChainID: defaultChainID,
		RPCAlgorithm:   defaultAlgorithm,
		CustomRPCs:     make(map[int64][]string),
		WalletConnect: WalletConnectConfig{
			RetryOnTimeout:               true,
			MaxTimeoutRetries:            defaultMaxTimeoutRetries,
			AutoSaveAndResume:            true,
			CreateNewSessionOnDisconnect: true,
			ConnectRetryCount:            defaultConnectRetryCount,
		},
		MetaMask:  MetaMaskConfig{ProviderURL: DefaultMetaMaskURL},
		configDir: dir,
	}
	cfg.WalletConnect.applyDefaults()
	return cfg
}

func (w *WalletConnectConfig) applyDefaults() {
	if w.ProjectID == "" {
		w.ProjectID = DefaultProjectID
	}
	if w.BridgeURL == "" {
		w.BridgeURL = DefaultBridgeURL
	}
	if w.Name == "" {
		w.Name = "w3link game"
	}
	if w.Description == "" {
		w.Description = "w3link wallet connection"
	}
	if w.URL == "" {
		w.URL = "https://thirdweb.com"
	}
	if w.IconURL == "" {
		w.IconURL = "https://thirdweb.com/favicon.ico"
	}
	if w.ConnectRetryCount <= 0 {
		w.ConnectRetryCount = defaultConnectRetryCount
	}
}

func loadJSON[T any](path string) (*T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &zero, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func saveJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
