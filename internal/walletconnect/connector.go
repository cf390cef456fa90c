package walletconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/metrics"
	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// ErrSessionFatal means the session could not be connected after every
// transport retry.
var ErrSessionFatal = errors.New("bridge session failed")

// State is the connector's view of the bridge.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateSessionConnected
	StateResuming
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSessionConnected:
		return "connected"
	case StateResuming:
		return "resuming"
	default:
		return "unknown"
	}
}

// Settings holds the connector policy.
type Settings struct {
	Meta      PeerMeta
	BridgeURL string
	// SupportedChains limits the chains a session may use. Empty allows any.
	SupportedChains []int64

	// RetryOnTimeout regenerates the session when the wallet does not
	// answer in time, up to MaxTimeoutRetries times (0 = unbounded).
	RetryOnTimeout    bool
	MaxTimeoutRetries int
	// ConnectRetryCount bounds transport retries of one session.
	ConnectRetryCount int

	AutoSaveAndResume            bool
	CreateNewSessionOnDisconnect bool

	Backoff    time.Duration
	MaxBackoff time.Duration
}

// SettingsFrom maps the config file section onto Settings.
func SettingsFrom(c config.WalletConnectConfig) Settings {
	icons := []string{}
	if c.IconURL != "" {
		icons = append(icons, c.IconURL)
	}
	return Settings{
		Meta:                         PeerMeta{Name: c.Name, Description: c.Description, URL: c.URL, Icons: icons},
		BridgeURL:                    c.BridgeURL,
		SupportedChains:              c.SupportedChainIDs,
		RetryOnTimeout:               c.RetryOnTimeout,
		MaxTimeoutRetries:            c.MaxTimeoutRetries,
		ConnectRetryCount:            c.ConnectRetryCount,
		AutoSaveAndResume:            c.AutoSaveAndResume,
		CreateNewSessionOnDisconnect: c.CreateNewSessionOnDisconnect,
		Backoff:                      config.BridgeTimeoutBackoff,
		MaxBackoff:                   config.BridgeMaxBackoff,
	}
}

// Handlers are the connector's event callbacks. Any may be nil. They run
// on the goroutine that caused the event.
type Handlers struct {
	OnConnectionStarted func(s Session)
	OnNewSessionStarted func(s Session)
	OnNewSession        func(data *SessionData)
	OnResumedSession    func(data *SessionData)
	OnConnected         func(data *SessionData)
	OnDisconnected      func()
	OnConnectionFailed  func(err error)
}

// SessionFactory builds sessions for the connector.
type SessionFactory interface {
	New(meta PeerMeta, bridgeURL string, chainID int64) (Session, error)
	Restore(saved *SavedSession) (Session, error)
}

// BridgeFactory builds relay sessions, each with its own transport.
type BridgeFactory struct {
	NewTransport   func() Transport
	ApproveTimeout time.Duration
	Logger         *slog.Logger
}

func (f BridgeFactory) New(meta PeerMeta, bridgeURL string, chainID int64) (Session, error) {
	return newBridgeSession(f.transport(), meta, bridgeURL, chainID, f.sessionConfig())
}

func (f BridgeFactory) Restore(saved *SavedSession) (Session, error) {
	return restoreBridgeSession(f.transport(), saved, f.sessionConfig())
}

func (f BridgeFactory) transport() Transport {
	if f.NewTransport != nil {
		return f.NewTransport()
	}
	return NewWebsocketTransport(WithTransportLogger(f.Logger))
}

func (f BridgeFactory) sessionConfig() sessionConfig {
	timeout := f.ApproveTimeout
	if timeout == 0 {
		timeout = config.BridgeConnectTimeout
	}
	return sessionConfig{approveTimeout: timeout, logger: f.Logger}
}

// Connector owns at most one bridge session and drives it through
// connect, pause, resume and disconnect.
type Connector struct {
	settings Settings
	factory  SessionFactory
	store    SessionStore
	handlers Handlers
	metrics  *metrics.Metrics
	logger   *slog.Logger

	mu          sync.Mutex
	session     Session
	watched     Session
	state       State
	lastChainID int64
	bg          context.Context
	cancelBG    context.CancelFunc
	wg          sync.WaitGroup
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithStore sets where sessions are saved. Defaults to DefaultFileStore.
func WithStore(s SessionStore) ConnectorOption {
	return func(c *Connector) { c.store = s }
}

// WithFactory replaces the session factory.
func WithFactory(f SessionFactory) ConnectorOption {
	return func(c *Connector) { c.factory = f }
}

// WithHandlers sets the event callbacks.
func WithHandlers(h Handlers) ConnectorOption {
	return func(c *Connector) { c.handlers = h }
}

// WithMetrics records bridge outcomes.
func WithMetrics(m *metrics.Metrics) ConnectorOption {
	return func(c *Connector) { c.metrics = m }
}

// WithConnectorLogger sets the logger.
func WithConnectorLogger(l *slog.Logger) ConnectorOption {
	return func(c *Connector) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewConnector returns an idle connector.
func NewConnector(settings Settings, opts ...ConnectorOption) *Connector {
	if settings.ConnectRetryCount <= 0 {
		settings.ConnectRetryCount = 3
	}
	if settings.BridgeURL == "" {
		settings.BridgeURL = config.DefaultBridgeURL
	}
	c := &Connector{
		settings: settings,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = DefaultFileStore()
	}
	if c.factory == nil {
		c.factory = BridgeFactory{Logger: c.logger}
	}
	c.bg, c.cancelBG = context.WithCancel(context.Background())
	return c
}

// Session returns the current session, or nil.
func (c *Connector) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// State returns the connector state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastChainID is the chain id of the most recent Connect.
func (c *Connector) LastChainID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastChainID
}

// Supports reports whether sessions may use chainID.
func (c *Connector) Supports(chainID int64) bool {
	if len(c.settings.SupportedChains) == 0 {
		return true
	}
	return slices.Contains(c.settings.SupportedChains, chainID)
}

// Connect returns a connected session's data. It resumes a saved session
// when there is one and otherwise pairs a new one. It returns (nil, nil)
// when a connection is already live or in progress.
func (c *Connector) Connect(ctx context.Context, chainID int64) (*SessionData, error) {
	if !c.Supports(chainID) {
		return nil, fmt.Errorf("%w: chain %d is not in the bridge's supported chains", wallet.ErrUnsupported, chainID)
	}
	timeouts := 0
	for {
		data, err := c.connectOnce(ctx, chainID)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, wallet.ErrTimeout) || !c.settings.RetryOnTimeout {
			c.failed(err)
			return nil, err
		}

		timeouts++
		if limit := c.settings.MaxTimeoutRetries; limit > 0 && timeouts > limit {
			err = fmt.Errorf("giving up after %d session timeouts: %w", limit, err)
			c.failed(err)
			return nil, err
		}
		c.metrics.RecordBridgeRetry("timeout")
		c.logger.Info("timeout reached, regenerating session", "attempt", timeouts)

		select {
		case <-time.After(c.backoff(timeouts)):
		case <-ctx.Done():
			c.failed(ctx.Err())
			return nil, ctx.Err()
		}
	}
}

func (c *Connector) connectOnce(ctx context.Context, chainID int64) (*SessionData, error) {
	saved, err := c.store.Load()
	if err != nil {
		c.logger.Warn("ignoring unreadable saved session", "err", err)
		saved = nil
	}

	if cur := c.Session(); cur != nil {
		switch {
		case saved != nil && cur.Key() != saved.Key:
			c.teardown(ctx, cur)
		case saved != nil && !cur.Connected() && !cur.Connecting():
			c.attach(cur, chainID)
			return c.complete(ctx, cur, true)
		case saved != nil:
			return nil, nil
		case cur.SessionConnected(), cur.TransportConnected():
			c.teardown(ctx, cur)
		case cur.Connecting():
			return nil, nil
		}
	}

	var s Session
	resumed := saved != nil
	if resumed {
		s, err = c.factory.Restore(saved)
	} else {
		s, err = c.factory.New(c.settings.Meta, c.settings.BridgeURL, chainID)
	}
	if err != nil {
		return nil, err
	}
	if !resumed && c.handlers.OnNewSessionStarted != nil {
		c.handlers.OnNewSessionStarted(s)
	}

	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	c.attach(s, chainID)
	return c.complete(ctx, s, resumed)
}

// complete runs ConnectSession, retrying transport failures.
func (c *Connector) complete(ctx context.Context, s Session, resumed bool) (*SessionData, error) {
	c.setState(StateConnecting)
	if resumed {
		c.setState(StateResuming)
	}
	if c.handlers.OnConnectionStarted != nil {
		c.handlers.OnConnectionStarted(s)
	}

	var lastErr error
	for tries := 1; tries <= c.settings.ConnectRetryCount; tries++ {
		data, err := s.ConnectSession(ctx)
		if err == nil {
			c.setState(StateSessionConnected)
			if resumed {
				c.metrics.RecordBridgeSession("resumed")
				if c.handlers.OnResumedSession != nil {
					c.handlers.OnResumedSession(data)
				}
			} else {
				c.metrics.RecordBridgeSession("new")
				if c.handlers.OnNewSession != nil {
					c.handlers.OnNewSession(data)
				}
			}
			if c.handlers.OnConnected != nil {
				c.handlers.OnConnected(data)
			}
			return data, nil
		}
		c.setState(StateDisconnected)
		if !errors.Is(err, wallet.ErrTransport) {
			return nil, err
		}
		lastErr = err
		c.metrics.RecordBridgeRetry("transport")
		c.logger.Debug("session connect failed", "attempt", tries, "err", err)
	}
	return nil, fmt.Errorf("%w: no connection after %d attempts: %w", ErrSessionFatal, c.settings.ConnectRetryCount, lastErr)
}

// Pause saves and parks a connected session, or disconnects it when
// sessions are not kept.
func (c *Connector) Pause(ctx context.Context) error {
	s := c.Session()
	if s == nil || !s.Connected() {
		return nil
	}
	if c.settings.AutoSaveAndResume {
		if err := c.store.Save(s.Save()); err != nil {
			return fmt.Errorf("saving session: %w", err)
		}
		c.setState(StateDisconnected)
		return s.CloseTransport(ctx)
	}
	c.detach(s)
	err := s.Disconnect(ctx)
	c.setState(StateDisconnected)
	c.emitDisconnected()
	return err
}

// Resume reconnects a saved session. It is a no-op when nothing is saved
// or sessions are not kept.
func (c *Connector) Resume(ctx context.Context) (*SessionData, error) {
	if !c.settings.AutoSaveAndResume || !c.store.Exists() {
		return nil, nil
	}
	return c.Connect(ctx, c.LastChainID())
}

// Close ends the current session without starting a new one and forgets
// any saved session.
func (c *Connector) Close(ctx context.Context) error {
	c.mu.Lock()
	s := c.session
	c.watched = nil
	c.cancelBG()
	c.bg, c.cancelBG = context.WithCancel(context.Background())
	c.mu.Unlock()

	var err error
	if s != nil {
		err = s.Disconnect(ctx)
	}
	if c.settings.AutoSaveAndResume {
		if cerr := c.store.Clear(); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.setState(StateDisconnected)
	if s != nil {
		c.emitDisconnected()
	}
	return err
}

// ClearSession forgets the saved session.
func (c *Connector) ClearSession() error {
	return c.store.Clear()
}

// Wait blocks until background reconnects have finished.
func (c *Connector) Wait() {
	c.wg.Wait()
}

// attach routes s's disconnect event to the connector.
func (c *Connector) attach(s Session, chainID int64) {
	c.mu.Lock()
	first := c.watched != s
	c.watched = s
	c.lastChainID = chainID
	c.mu.Unlock()
	if first {
		s.OnDisconnect(func() { c.onSessionDisconnect(s) })
	}
}

func (c *Connector) detach(s Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watched == s {
		c.watched = nil
	}
}

// teardown ends s without treating it as a remote disconnect.
func (c *Connector) teardown(ctx context.Context, s Session) {
	c.detach(s)
	var err error
	if s.SessionConnected() {
		err = s.Disconnect(ctx)
	} else if s.TransportConnected() {
		err = s.CloseTransport(ctx)
	}
	if err != nil {
		c.logger.Debug("tearing down previous session", "err", err)
	}
}

func (c *Connector) onSessionDisconnect(s Session) {
	c.mu.Lock()
	if c.watched != s {
		c.mu.Unlock()
		return
	}
	c.watched = nil
	c.state = StateDisconnected
	chainID := c.lastChainID
	bg := c.bg
	c.mu.Unlock()

	if c.settings.AutoSaveAndResume {
		if err := c.store.Clear(); err != nil {
			c.logger.Warn("clearing saved session", "err", err)
		}
	}
	c.emitDisconnected()

	if c.settings.CreateNewSessionOnDisconnect {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if _, err := c.Connect(bg, chainID); err != nil {
				c.logger.Warn("reconnect after disconnect failed", "err", err)
			}
		}()
	}
}

func (c *Connector) emitDisconnected() {
	c.metrics.RecordBridgeSession("disconnected")
	if c.handlers.OnDisconnected != nil {
		c.handlers.OnDisconnected()
	}
}

func (c *Connector) failed(err error) {
	c.setState(StateDisconnected)
	c.metrics.RecordBridgeSession("failed")
	if c.handlers.OnConnectionFailed != nil {
		c.handlers.OnConnectionFailed(err)
	}
}

func (c *Connector) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *Connector) backoff(attempt int) time.Duration {
	d := c.settings.Backoff
	if d <= 0 {
		return 0
	}
	for i := 1; i < attempt && d < c.settings.MaxBackoff; i++ {
		d *= 2
	}
	if c.settings.MaxBackoff > 0 && d > c.settings.MaxBackoff {
		d = c.settings.MaxBackoff
	}
	return d
}
