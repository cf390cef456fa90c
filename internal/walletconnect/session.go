package walletconnect

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

// SessionData is what the wallet granted when the session connected.
type SessionData struct {
	Accounts []string
	ChainID  int64
	PeerID   string
	PeerMeta *PeerMeta
}

// Session is one pairing with an external wallet.
type Session interface {
	// Key is the hex symmetric key; it identifies the pairing.
	Key() string
	// Connected reports both an approved session and a live transport.
	Connected() bool
	Connecting() bool
	SessionConnected() bool
	TransportConnected() bool
	// ConnectSession opens the transport and, for a new pairing, waits for
	// the wallet to approve. Transport failures wrap wallet.ErrTransport,
	// an approval that never comes wraps wallet.ErrTimeout.
	ConnectSession(ctx context.Context) (*SessionData, error)
	// Disconnect ends the session on both sides and fires the disconnect
	// handlers.
	Disconnect(ctx context.Context) error
	// CloseTransport closes the socket but keeps the session resumable.
	CloseTransport(ctx context.Context) error
	Save() *SavedSession
	// Request sends a JSON-RPC call to the wallet and decodes the result
	// into out.
	Request(ctx context.Context, method string, params any, out any) error
	Accounts() []string
	ChainID() int64
	URI() string
	OnDisconnect(fn func())
}

// approval resolves once, with the wallet's answer to a session request.
type approval struct {
	done chan struct{}
	once sync.Once
	data *SessionData
	err  error
}

func newApproval() *approval { return &approval{done: make(chan struct{})} }

func (a *approval) resolve(data *SessionData, err error) {
	a.once.Do(func() {
		a.data, a.err = data, err
		close(a.done)
	})
}

// bridgeSession implements Session over a relay Transport.
type bridgeSession struct {
	transport      Transport
	meta           PeerMeta
	bridgeURL      string
	approveTimeout time.Duration
	logger         *slog.Logger

	key            []byte
	clientID       string
	handshakeTopic string
	handshakeID    int64
	nextID         atomic.Int64

	mu               sync.Mutex
	peerID           string
	peerMeta         *PeerMeta
	accounts         []string
	chainID          int64
	sessionConnected bool
	connecting       bool
	pendingApproval  *approval
	pending          map[int64]chan rpcMessage
	onDisconnect     []func()
}

type sessionConfig struct {
	approveTimeout time.Duration
	logger         *slog.Logger
}

func newBridgeSession(t Transport, meta PeerMeta, bridgeURL string, chainID int64, cfg sessionConfig) (*bridgeSession, error) {
	key, err := newKey()
	if err != nil {
		return nil, fmt.Errorf("generating session key: %w", err)
	}
	s := newSessionShell(t, cfg)
	s.meta = meta
	s.bridgeURL = bridgeURL
	s.key = key
	s.clientID = uuid.NewString()
	s.handshakeTopic = uuid.NewString()
	s.handshakeID = s.newRequestID()
	s.chainID = chainID
	t.OnMessage(s.handleMessage)
	return s, nil
}

func restoreBridgeSession(t Transport, saved *SavedSession, cfg sessionConfig) (*bridgeSession, error) {
	key, err := hex.DecodeString(saved.Key)
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("%w: saved session has an invalid key", wallet.ErrConfiguration)
	}
	s := newSessionShell(t, cfg)
	s.meta = saved.ClientMeta
	s.bridgeURL = saved.BridgeURL
	s.key = key
	s.clientID = saved.ClientID
	s.handshakeTopic = saved.Topic
	s.handshakeID = saved.HandshakeID
	s.peerID = saved.PeerID
	s.peerMeta = saved.PeerMeta
	s.accounts = append([]string(nil), saved.Accounts...)
	s.chainID = saved.ChainID
	s.sessionConnected = saved.PeerID != "" && len(saved.Accounts) > 0
	t.OnMessage(s.handleMessage)
	return s, nil
}

func newSessionShell(t Transport, cfg sessionConfig) *bridgeSession {
	s := &bridgeSession{
		transport:      t,
		approveTimeout: cfg.approveTimeout,
		logger:         cfg.logger,
		pending:        make(map[int64]chan rpcMessage),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.nextID.Store(time.Now().UnixMilli() * 1000)
	return s
}

func (s *bridgeSession) newRequestID() int64 { return s.nextID.Add(1) }

func (s *bridgeSession) Key() string { return hex.EncodeToString(s.key) }

func (s *bridgeSession) Connected() bool {
	return s.SessionConnected() && s.TransportConnected()
}

func (s *bridgeSession) Connecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connecting
}

func (s *bridgeSession) SessionConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionConnected
}

func (s *bridgeSession) TransportConnected() bool { return s.transport.Connected() }

func (s *bridgeSession) Accounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accounts...)
}

func (s *bridgeSession) ChainID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chainID
}

func (s *bridgeSession) URI() string {
	return BuildURI(s.handshakeTopic, s.bridgeURL, s.key)
}

func (s *bridgeSession) OnDisconnect(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = append(s.onDisconnect, fn)
}

func (s *bridgeSession) Save() *SavedSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SavedSession{
		Key:         hex.EncodeToString(s.key),
		ClientID:    s.clientID,
		ClientMeta:  s.meta,
		Topic:       s.handshakeTopic,
		PeerID:      s.peerID,
		PeerMeta:    s.peerMeta,
		BridgeURL:   s.bridgeURL,
		Accounts:    append([]string(nil), s.accounts...),
		ChainID:     s.chainID,
		HandshakeID: s.handshakeID,
	}
}

func (s *bridgeSession) data() *SessionData {
	return &SessionData{
		Accounts: append([]string(nil), s.accounts...),
		ChainID:  s.chainID,
		PeerID:   s.peerID,
		PeerMeta: s.peerMeta,
	}
}

func (s *bridgeSession) ConnectSession(ctx context.Context) (*SessionData, error) {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return nil, errors.New("session is already connecting")
	}
	s.connecting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	if err := s.transport.Open(ctx, s.bridgeURL); err != nil {
		return nil, fmt.Errorf("%w: %w", wallet.ErrTransport, err)
	}
	if err := s.transport.Subscribe(ctx, s.clientID); err != nil {
		return nil, fmt.Errorf("%w: subscribing: %w", wallet.ErrTransport, err)
	}

	s.mu.Lock()
	if s.sessionConnected {
		data := s.data()
		s.mu.Unlock()
		return data, nil
	}
	// A retry after a transport failure keeps waiting on the same request.
	ap := s.pendingApproval
	if ap == nil {
		ap = newApproval()
		s.pendingApproval = ap
	}
	chainID := s.chainID
	s.mu.Unlock()

	req := rpcRequest{
		ID:      s.handshakeID,
		JSONRPC: "2.0",
		Method:  methodSessionRequest,
		Params:  []sessionRequestParams{{PeerID: s.clientID, PeerMeta: s.meta, ChainID: chainID}},
	}
	if err := s.publish(ctx, s.handshakeTopic, req); err != nil {
		return nil, fmt.Errorf("%w: sending session request: %w", wallet.ErrTransport, err)
	}
	s.logger.Debug("waiting for wallet approval", "uri", s.URI())

	var timeout <-chan time.Time
	if s.approveTimeout > 0 {
		timer := time.NewTimer(s.approveTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ap.done:
		return ap.data, ap.err
	case <-timeout:
		return nil, fmt.Errorf("waiting for wallet approval: %w", wallet.ErrTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *bridgeSession) Request(ctx context.Context, method string, params any, out any) error {
	s.mu.Lock()
	if !s.sessionConnected {
		s.mu.Unlock()
		return wallet.ErrNotConnected
	}
	peer := s.peerID
	id := s.newRequestID()
	ch := make(chan rpcMessage, 1)
	s.pending[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	if !s.transport.Connected() {
		if err := s.transport.Open(ctx, s.bridgeURL); err != nil {
			return fmt.Errorf("%w: %w", wallet.ErrTransport, err)
		}
		if err := s.transport.Subscribe(ctx, s.clientID); err != nil {
			return fmt.Errorf("%w: subscribing: %w", wallet.ErrTransport, err)
		}
	}
	req := rpcRequest{ID: id, JSONRPC: "2.0", Method: method, Params: params}
	if err := s.publish(ctx, peer, req); err != nil {
		return fmt.Errorf("%w: sending %s: %w", wallet.ErrTransport, method, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp.Error
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decoding %s result: %w", method, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *bridgeSession) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	wasConnected := s.sessionConnected
	peer := s.peerID
	s.mu.Unlock()

	if wasConnected && s.transport.Connected() {
		update := rpcRequest{
			ID:      s.newRequestID(),
			JSONRPC: "2.0",
			Method:  methodSessionUpdate,
			Params:  []sessionParams{{Approved: false}},
		}
		if err := s.publish(ctx, peer, update); err != nil {
			s.logger.Debug("could not tell wallet about disconnect", "err", err)
		}
	}
	s.ended()
	return s.transport.Close(ctx)
}

func (s *bridgeSession) CloseTransport(ctx context.Context) error {
	return s.transport.Close(ctx)
}

// ended marks the session over, fails waiters and fires the handlers.
func (s *bridgeSession) ended() {
	s.mu.Lock()
	s.sessionConnected = false
	s.accounts = nil
	ap := s.pendingApproval
	s.pendingApproval = nil
	handlers := append([]func(){}, s.onDisconnect...)
	s.mu.Unlock()

	if ap != nil {
		ap.resolve(nil, fmt.Errorf("%w: session ended", wallet.ErrNotConnected))
	}
	for _, fn := range handlers {
		fn()
	}
}

func (s *bridgeSession) publish(ctx context.Context, topic string, req rpcRequest) error {
	plain, err := json.Marshal(req)
	if err != nil {
		return err
	}
	payload, err := seal(s.key, plain)
	if err != nil {
		return err
	}
	return s.transport.Publish(ctx, topic, payload)
}

func (s *bridgeSession) handleMessage(topic, payload string) {
	if topic != s.clientID {
		return
	}
	plain, err := open(s.key, payload)
	if err != nil {
		s.logger.Debug("dropping undecryptable message", "err", err)
		return
	}
	var msg rpcMessage
	if err := json.Unmarshal(plain, &msg); err != nil {
		s.logger.Debug("dropping malformed message", "err", err)
		return
	}

	if msg.Method != "" {
		s.handleRequest(msg)
		return
	}
	if msg.ID == s.handshakeID {
		s.handleApproval(msg)
		return
	}
	s.mu.Lock()
	ch, ok := s.pending[msg.ID]
	s.mu.Unlock()
	if ok {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (s *bridgeSession) handleApproval(msg rpcMessage) {
	s.mu.Lock()
	ap := s.pendingApproval
	s.mu.Unlock()
	if ap == nil {
		return
	}
	if msg.Error != nil {
		ap.resolve(nil, fmt.Errorf("%w: wallet rejected the session: %w", wallet.ErrAuthentication, msg.Error))
		return
	}
	var p sessionParams
	if err := json.Unmarshal(msg.Result, &p); err != nil {
		ap.resolve(nil, fmt.Errorf("decoding session approval: %w", err))
		return
	}
	if !p.Approved {
		ap.resolve(nil, fmt.Errorf("%w: wallet rejected the session", wallet.ErrAuthentication))
		return
	}

	s.mu.Lock()
	s.peerID = p.PeerID
	s.peerMeta = p.PeerMeta
	s.accounts = p.Accounts
	s.chainID = p.ChainID
	s.sessionConnected = true
	s.pendingApproval = nil
	data := s.data()
	s.mu.Unlock()
	ap.resolve(data, nil)
}

// handleRequest handles calls the wallet makes to us. Only session
// updates are expected.
func (s *bridgeSession) handleRequest(msg rpcMessage) {
	if msg.Method != methodSessionUpdate {
		s.logger.Debug("ignoring wallet request", "method", msg.Method)
		return
	}
	var params []sessionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil || len(params) == 0 {
		s.logger.Debug("malformed session update", "err", err)
		return
	}
	p := params[0]
	if !p.Approved {
		s.logger.Debug("wallet ended the session")
		s.ended()
		_ = s.transport.Close(context.Background())
		return
	}
	s.mu.Lock()
	if len(p.Accounts) > 0 {
		s.accounts = p.Accounts
	}
	if p.ChainID != 0 {
		s.chainID = p.ChainID
	}
	s.mu.Unlock()
}
