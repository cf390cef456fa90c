package config

import "time"

// Fixed service endpoints.
const (
	AnalyticsEndpoint     = "https://c.thirdweb.com/event"
	EmbeddedWalletBaseURL = "https://embedded-wallet.thirdweb.com/api/2024-05-05"
	DefaultBridgeURL      = "wss://bridge.walletconnect.org"
	DefaultMetaMaskURL    = "http://127.0.0.1:1248"
	DefaultProjectID      = "08c4b07e3ad25f1a27c14a4e8cecb6f0"

	// SessionStorageKey is the single key the bridge session blob is stored under.
	SessionStorageKey = "__WALLETCONNECT_SESSION__"
)

// Timeouts shared by the connection flows.
const (
	LoginTimeout         = 90 * time.Second // browser OAuth popup/redirect
	BridgeConnectTimeout = 2 * time.Minute  // waiting for the wallet to approve a pairing
	TelemetryTimeout     = 10 * time.Second
	RPCSelectTimeout     = 10 * time.Second // RPC benchmark on first chain session
	UserOpReceiptTimeout = 3 * time.Minute
	UserOpPollInterval   = 1 * time.Second
	BridgeTimeoutBackoff = 500 * time.Millisecond
	BridgeMaxBackoff     = 10 * time.Second
)

// SDKVersion is reported in telemetry headers.
const SDKVersion = "1.0.0"
