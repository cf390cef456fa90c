// Package connect turns a wallet.Options request into a connected,
// registered wallet: it builds the provider's wallet, logs it in when it
// has no session, optionally upgrades it to a smart account and tracks it
// in a registry.
package connect

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/Mohsinsiddi/w3link/internal/chain"
	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/inapp"
	"github.com/Mohsinsiddi/w3link/internal/metrics"
	"github.com/Mohsinsiddi/w3link/internal/smart"
	"github.com/Mohsinsiddi/w3link/internal/telemetry"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
	"github.com/Mohsinsiddi/w3link/internal/walletconnect"
)

// Usage event fields reported for every connection.
const (
	usageSource     = "connectWallet"
	usageAction     = "connect"
	smartWalletType = "smartWallet"
)

// authenticatable is a wallet that may need an interactive login after it
// is built.
type authenticatable interface {
	wallet.Wallet
	Login(ctx context.Context) error
}

// Manager owns the connection flow and the wallet registry of a process.
type Manager struct {
	cfg        *config.Config
	chains     *chain.Registry
	sessions   *chain.Sessions
	registry   *wallet.Registry
	keys       *wallet.KeyBook
	httpClient *http.Client
	prompter   inapp.OTPPrompter
	browser    inapp.Browser
	backendURL string
	tracker    *telemetry.Tracker
	trackerSet bool
	metrics    *metrics.Metrics
	logger     *slog.Logger
	builders   map[wallet.Provider]builder

	mu        sync.Mutex
	connector *walletconnect.Connector
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for every HTTP call the manager or
// its wallets make.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *Manager) { m.httpClient = hc }
}

// WithKeyBook lets private-key connections open stored keys by name.
func WithKeyBook(kb *wallet.KeyBook) Option {
	return func(m *Manager) { m.keys = kb }
}

// WithOTPPrompter sets how one-time passwords are read from the user.
func WithOTPPrompter(p inapp.OTPPrompter) Option {
	return func(m *Manager) { m.prompter = p }
}

// WithBrowser replaces the system-browser OAuth login.
func WithBrowser(b inapp.Browser) Option {
	return func(m *Manager) { m.browser = b }
}

// WithBackendURL points custodial wallets at another wallet backend.
func WithBackendURL(u string) Option {
	return func(m *Manager) { m.backendURL = u }
}

// WithConnector supplies the bridge connector used by WalletConnect.
func WithConnector(c *walletconnect.Connector) Option {
	return func(m *Manager) { m.connector = c }
}

// WithRegistry shares a wallet registry.
func WithRegistry(r *wallet.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

// WithSessions shares chain sessions.
func WithSessions(s *chain.Sessions) Option {
	return func(m *Manager) { m.sessions = s }
}

// WithTracker replaces the usage tracker. A nil tracker reports nothing.
func WithTracker(t *telemetry.Tracker) Option {
	return func(m *Manager) {
		m.tracker = t
		m.trackerSet = true
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// New returns a manager for cfg.
func New(cfg *config.Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is required", wallet.ErrConfiguration)
	}
	m := &Manager{
		cfg:        cfg,
		chains:     chain.NewRegistry(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
		builders:   defaultBuilders(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.registry == nil {
		m.registry = wallet.NewRegistry()
	}
	if m.sessions == nil {
		m.sessions = chain.NewSessions(m.chains,
			chain.WithCustomRPCs(cfg.CustomRPCs),
			chain.WithAlgorithm(cfg.RPCAlgorithm),
			chain.WithClientID(cfg.ClientID, cfg.BundleID),
			chain.WithSessionHTTPClient(m.httpClient),
			chain.WithSessionLogger(m.logger),
		)
	}
	if m.browser == nil {
		m.browser = inapp.NewLoopbackBrowser(
			inapp.WithRedirectPage(cfg.RedirectPageHTML),
			inapp.WithBrowserLogger(m.logger),
		)
	}
	if cfg.OptOutUsageAnalytics {
		m.tracker = nil
	} else if !m.trackerSet {
		m.tracker = telemetry.New(cfg.ClientID,
			telemetry.WithBundleID(cfg.BundleID),
			telemetry.WithHTTPClient(m.httpClient),
			telemetry.WithMetrics(m.metrics),
			telemetry.WithLogger(m.logger),
		)
	}
	return m, nil
}

// Connect builds, authenticates and registers the wallet opts describes,
// and makes it the active wallet. Nothing touches the network before opts
// validates.
func (m *Manager) Connect(ctx context.Context, opts *wallet.Options) (w wallet.Wallet, err error) {
	start := time.Now()
	defer func() {
		m.metrics.RecordConnect(walletType(opts), err, time.Since(start))
	}()

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	build, ok := m.builders[opts.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", wallet.ErrConfiguration, opts.Provider)
	}

	m.logger.Debug("connecting wallet", "provider", opts.Provider, "chain", opts.ChainID)
	w, err = build(ctx, m, opts)
	if err != nil {
		return nil, err
	}

	if a, ok := w.(authenticatable); ok {
		connected, err := a.IsConnected(ctx)
		if err != nil {
			return nil, err
		}
		if !connected {
			m.logger.Debug("session missing or expired, logging in", "provider", opts.Provider)
			if err := a.Login(ctx); err != nil {
				return nil, err
			}
		}
	}

	address, err := w.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving wallet address: %w", err)
	}
	m.tracker.Track(telemetry.Event{
		Source:        usageSource,
		Action:        usageAction,
		WalletAddress: address.Hex(),
		WalletType:    walletType(opts),
	})

	if opts.Smart != nil {
		m.logger.Debug("upgrading to smart account", "personal", address.Hex())
		return m.UpgradeToSmartWallet(ctx, w, opts.ChainID, opts.Smart)
	}
	if _, err := m.AddWallet(ctx, w); err != nil {
		return nil, err
	}
	m.SetActiveWallet(w)
	return w, nil
}

// UpgradeToSmartWallet wraps personal in a smart account and makes it the
// active wallet. Upgrading a smart account returns it unchanged.
func (m *Manager) UpgradeToSmartWallet(ctx context.Context, personal wallet.Wallet, chainID int64, opts *wallet.SmartOptions) (wallet.Wallet, error) {
	sw, err := smart.New(ctx, personal, chainID, opts, smart.Deps{
		Sessions:   m.sessions,
		Defaults:   m.cfg.Smart,
		HTTPClient: m.httpClient,
		ClientID:   m.cfg.ClientID,
		BundleID:   m.cfg.BundleID,
		Metrics:    m.metrics,
		Logger:     m.logger,
	})
	if err != nil {
		return nil, err
	}
	if _, err := m.AddWallet(ctx, sw); err != nil {
		return nil, err
	}
	m.SetActiveWallet(sw)
	return sw, nil
}

// LinkAccount attaches toLink's login to main.
func (m *Manager) LinkAccount(ctx context.Context, main, toLink wallet.Wallet, opts wallet.LinkOptions) ([]wallet.LinkedAccount, error) {
	if main == nil || toLink == nil {
		return nil, fmt.Errorf("%w: both wallets are required to link accounts", wallet.ErrConfiguration)
	}
	return main.LinkAccount(ctx, toLink, opts)
}

// AddWallet registers w. An address that is already registered keeps its
// original wallet, which is returned.
func (m *Manager) AddWallet(ctx context.Context, w wallet.Wallet) (wallet.Wallet, error) {
	kept, err := m.registry.Add(ctx, w)
	if err != nil {
		return nil, err
	}
	m.metrics.SetRegistered(len(m.registry.List()))
	return kept, nil
}

// SetActiveWallet makes w the active wallet.
func (m *Manager) SetActiveWallet(w wallet.Wallet) { m.registry.SetActive(w) }

// ActiveWallet returns the active wallet, or nil.
func (m *Manager) ActiveWallet() wallet.Wallet { return m.registry.Active() }

// Wallet looks up a registered wallet by address.
func (m *Manager) Wallet(address string) (wallet.Wallet, error) { return m.registry.Get(address) }

// RemoveWallet forgets the wallet at address.
func (m *Manager) RemoveWallet(address string) {
	m.registry.Remove(address)
	m.metrics.SetRegistered(len(m.registry.List()))
}

// Wallets lists the registered wallets.
func (m *Manager) Wallets() []wallet.Entry { return m.registry.List() }

// Contract binds abiJSON to address on chainID, over the chain's session.
func (m *Manager) Contract(ctx context.Context, address string, chainID int64, abiJSON string) (*chain.Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q is not a contract address", wallet.ErrConfiguration, address)
	}
	sess, err := m.sessions.Get(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return chain.NewContract(sess.Client, common.HexToAddress(address), abiJSON)
}

// Session returns the RPC session of chainID.
func (m *Manager) Session(ctx context.Context, chainID int64) (*chain.Session, error) {
	return m.sessions.Get(ctx, chainID)
}

// Chains is the chain metadata registry.
func (m *Manager) Chains() *chain.Registry { return m.chains }

// Connector returns the bridge connector, creating it on first use.
func (m *Manager) Connector() *walletconnect.Connector {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connector == nil {
		m.connector = walletconnect.NewConnector(
			walletconnect.SettingsFrom(m.cfg.WalletConnect),
			walletconnect.WithMetrics(m.metrics),
			walletconnect.WithConnectorLogger(m.logger),
		)
	}
	return m.connector
}

// Close waits for pending usage reports and releases chain sessions.
// Registered wallets stay connected.
func (m *Manager) Close() {
	m.tracker.Wait()
	m.mu.Lock()
	if m.connector != nil {
		m.connector.Wait()
	}
	m.mu.Unlock()
	m.sessions.Close()
}

func walletType(opts *wallet.Options) string {
	switch {
	case opts == nil:
		return "unknown"
	case opts.Smart != nil:
		return smartWalletType
	default:
		return string(opts.Provider)
	}
}
