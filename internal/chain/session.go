package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/rpc"
)

// ErrInvalidChainID is returned for chain ids that are zero or negative.
var ErrInvalidChainID = errors.New("invalid chain id")

// Session is a chain id bound to the RPC endpoint chosen for it.
type Session struct {
	ChainID int64
	RPCURL  string
	Client  *Client
	Chain   *Chain // nil when the chain is not in the registry
}

// Sessions lazily creates one Session per chain id and keeps it for the
// life of the process.
type Sessions struct {
	registry   *Registry
	customRPCs map[int64][]string
	algorithm  rpc.Algorithm
	clientID   string
	bundleID   string
	httpClient *http.Client
	timeout    time.Duration
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[int64]*Session
	selector *rpc.Selector
}

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithCustomRPCs sets user-supplied RPC URLs, which take priority over the
// registry.
func WithCustomRPCs(rpcs map[int64][]string) SessionsOption {
	return func(s *Sessions) { s.customRPCs = rpcs }
}

// WithAlgorithm sets the endpoint selection algorithm.
func WithAlgorithm(algo string) SessionsOption {
	return func(s *Sessions) { s.algorithm = rpc.ParseAlgorithm(algo) }
}

// WithClientID enables the thirdweb RPC for every chain and sends the
// client and bundle ids to thirdweb hosts.
func WithClientID(clientID, bundleID string) SessionsOption {
	return func(s *Sessions) {
		s.clientID = clientID
		s.bundleID = bundleID
	}
}

// WithSessionHTTPClient sets the HTTP client used by every chain client.
func WithSessionHTTPClient(hc *http.Client) SessionsOption {
	return func(s *Sessions) { s.httpClient = hc }
}

// WithSelectTimeout bounds endpoint probing.
func WithSelectTimeout(d time.Duration) SessionsOption {
	return func(s *Sessions) { s.timeout = d }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionsOption {
	return func(s *Sessions) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSessions returns an empty session cache backed by registry.
func NewSessions(registry *Registry, opts ...SessionsOption) *Sessions {
	s := &Sessions{
		registry:  registry,
		algorithm: rpc.AlgorithmFastest,
		timeout:   10 * time.Second,
		logger:    slog.New(slog.DiscardHandler),
		sessions:  make(map[int64]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.selector = rpc.NewSelector(s.algorithm, s.ping, s.timeout)
	return s
}

// Get returns the session for chainID, creating it on first use.
func (s *Sessions) Get(ctx context.Context, chainID int64) (*Session, error) {
	if chainID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChainID, chainID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[chainID]; ok {
		return sess, nil
	}

	candidates := s.Candidates(chainID)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no RPC endpoint for chain %d: %w", chainID, ErrChainNotFound)
	}

	url, err := s.selector.Select(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("selecting RPC for chain %d: %w", chainID, err)
	}

	client, err := s.dial(ctx, url)
	if err != nil {
		return nil, err
	}

	sess := &Session{ChainID: chainID, RPCURL: url, Client: client}
	if c, err := s.registry.GetByChainID(chainID); err == nil {
		sess.Chain = c
	}
	s.sessions[chainID] = sess
	s.logger.Debug("chain session created", "chain_id", chainID, "rpc", url)
	return sess, nil
}

// Candidates lists the RPC URLs considered for chainID, in priority order:
// custom URLs, then the thirdweb RPC when a client id is set, then the
// registry's public RPCs.
func (s *Sessions) Candidates(chainID int64) []string {
	if custom := s.customRPCs[chainID]; len(custom) > 0 {
		return append([]string(nil), custom...)
	}
	var urls []string
	if s.clientID != "" {
		urls = append(urls, ThirdwebRPC(chainID))
	}
	if c, err := s.registry.GetByChainID(chainID); err == nil {
		urls = append(urls, c.RPCs...)
	}
	return urls
}

// Close closes every cached client.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Client.Close()
		delete(s.sessions, id)
	}
}

func (s *Sessions) dial(ctx context.Context, url string) (*Client, error) {
	opts := []ClientOption{WithHTTPClient(s.httpClient)}
	if IsThirdwebHost(url) {
		opts = append(opts,
			WithHeader("x-client-id", s.clientID),
			WithHeader("x-bundle-id", s.bundleID),
		)
	}
	return Dial(ctx, url, opts...)
}

func (s *Sessions) ping(ctx context.Context, url string) (time.Duration, uint64, error) {
	c, err := s.dial(ctx, url)
	if err != nil {
		return 0, 0, err
	}
	defer c.Close()
	return c.Ping(ctx)
}
