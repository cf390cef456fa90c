package config

// Config holds all w3link configuration.
type Config struct {
	ClientID             string             `json:"client_id"`
	BundleID             string             `json:"bundle_id,omitempty"`
	ShowDebugLogs        bool               `json:"show_debug_logs"`
	OptOutUsageAnalytics bool               `json:"opt_out_usage_analytics"`
	DefaultChainID       int64              `json:"default_chain_id"`
	RPCAlgorithm         string             `json:"rpc_algorithm"` // "fastest" | "round-robin" | "failover"
	CustomRPCs           map[int64][]string `json:"custom_rpcs"`
	RedirectPageHTML     string             `json:"redirect_page_html,omitempty"`

	WalletConnect WalletConnectConfig `json:"wallet_connect"`
	MetaMask      MetaMaskConfig      `json:"metamask"`
	Smart         SmartConfig         `json:"smart"`

	// internal: config dir path used for Save()
	configDir string
}

// WalletConnectConfig configures the bridge session used by WalletConnect wallets.
type WalletConnectConfig struct {
	ProjectID   string `json:"project_id"`
	BridgeURL   string `json:"bridge_url"`
	Name        string `json:"name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	IconURL     string `json:"icon_url"`

	SupportedChainIDs []int64 `json:"supported_chain_ids,omitempty"`

	RetryOnTimeout               bool `json:"retry_on_timeout"`
	MaxTimeoutRetries            int  `json:"max_timeout_retries"` // 0 = unbounded
	AutoSaveAndResume            bool `json:"auto_save_and_resume"`
	CreateNewSessionOnDisconnect bool `json:"create_new_session_on_disconnect"`
	ConnectRetryCount            int  `json:"connect_retry_count"`
	ConnectTimeoutSeconds        int  `json:"connect_timeout_seconds"`
}

// MetaMaskConfig points at an EIP-1193 provider exposed over JSON-RPC.
type MetaMaskConfig struct {
	ProviderURL string `json:"provider_url"`
}

// SmartConfig holds default endpoints for smart accounts.
type SmartConfig struct {
	FactoryAddress string `json:"factory_address,omitempty"`
	EntryPoint     string `json:"entry_point,omitempty"`
	BundlerURL     string `json:"bundler_url,omitempty"`
	PaymasterURL   string `json:"paymaster_url,omitempty"`
}

// LocalKey is a stored private-key wallet entry.
type LocalKey struct {
	Name      string `json:"name"`
	Address   string `json:"address"`
	KeyRef    string `json:"key_ref"` // keychain reference
	CreatedAt string `json:"created_at"`
}

// LocalKeysFile is the structure of wallets.json.
type LocalKeysFile struct {
	Wallets []LocalKey `json:"wallets"`
}
