package wallet

import "errors"

// Errors shared by every wallet variant. Callers match with errors.Is.
var (
	// ErrConfiguration marks an invalid or missing option. Never retried.
	ErrConfiguration = errors.New("invalid wallet configuration")
	// ErrAuthentication marks a failed, cancelled or timed out login.
	ErrAuthentication = errors.New("authentication failed")
	// ErrNotFound is returned for lookups of unknown wallets or keys.
	ErrNotFound = errors.New("wallet not found")
	// ErrTransport marks a bridge or RPC I/O failure.
	ErrTransport = errors.New("transport error")
	// ErrTimeout marks a negotiation that exceeded its deadline.
	ErrTimeout = errors.New("timed out")
	// ErrUnsupported is returned by variants that lack a capability.
	ErrUnsupported = errors.New("operation not supported by this wallet")
	// ErrNotConnected is returned when a wallet has no authenticated session.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrExists is returned when a named key is already stored.
	ErrExists = errors.New("wallet already exists")
	// ErrInvalidKey is returned for malformed private keys.
	ErrInvalidKey = errors.New("invalid private key")
)
