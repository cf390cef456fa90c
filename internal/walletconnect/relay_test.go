package walletconnect

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memRelay is an in-process pub/sub relay.
type memRelay struct {
	mu       sync.Mutex
	subs     map[string][]*memTransport
	failOpen int
}

func newMemRelay() *memRelay {
	return &memRelay{subs: make(map[string][]*memTransport)}
}

func (r *memRelay) transport() *memTransport { return &memTransport{relay: r} }

type memTransport struct {
	relay   *memRelay
	mu      sync.Mutex
	open    bool
	handler func(topic, payload string)
}

func (t *memTransport) Open(context.Context, string) error {
	t.relay.mu.Lock()
	if t.relay.failOpen > 0 {
		t.relay.failOpen--
		t.relay.mu.Unlock()
		return errors.New("relay unreachable")
	}
	t.relay.mu.Unlock()
	t.mu.Lock()
	t.open = true
	t.mu.Unlock()
	return nil
}

func (t *memTransport) Close(context.Context) error {
	t.mu.Lock()
	t.open = false
	t.mu.Unlock()
	t.relay.mu.Lock()
	defer t.relay.mu.Unlock()
	for topic, subs := range t.relay.subs {
		kept := subs[:0]
		for _, s := range subs {
			if s != t {
				kept = append(kept, s)
			}
		}
		t.relay.subs[topic] = kept
	}
	return nil
}

func (t *memTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

func (t *memTransport) OnMessage(fn func(topic, payload string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

func (t *memTransport) Subscribe(_ context.Context, topic string) error {
	if !t.Connected() {
		return errTransportClosed
	}
	t.relay.mu.Lock()
	defer t.relay.mu.Unlock()
	t.relay.subs[topic] = append(t.relay.subs[topic], t)
	return nil
}

func (t *memTransport) Publish(_ context.Context, topic, payload string) error {
	if !t.Connected() {
		return errTransportClosed
	}
	t.relay.mu.Lock()
	subs := append([]*memTransport(nil), t.relay.subs[topic]...)
	t.relay.mu.Unlock()
	for _, s := range subs {
		s.mu.Lock()
		fn := s.handler
		s.mu.Unlock()
		if fn != nil {
			go fn(topic, payload)
		}
	}
	return nil
}

// fakePeer plays the wallet side of a session.
type fakePeer struct {
	t         *testing.T
	transport *memTransport
	key       []byte
	peerID    string
	approve   bool
	accounts  []string
	chainID   int64
	handle    func(method string, params json.RawMessage) (any, *RPCError)

	mu       sync.Mutex
	clientID string
	calls    []string
}

func newFakePeer(t *testing.T, relay *memRelay, uri string) *fakePeer {
	t.Helper()
	topic, _, key, err := ParseURI(uri)
	require.NoError(t, err)
	p := &fakePeer{
		t:         t,
		transport: relay.transport(),
		key:       key,
		peerID:    "wallet-peer",
		approve:   true,
		accounts:  []string{"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"},
		chainID:   137,
	}
	p.transport.OnMessage(p.onMessage)
	require.NoError(t, p.transport.Open(context.Background(), ""))
	require.NoError(t, p.transport.Subscribe(context.Background(), topic))
	require.NoError(t, p.transport.Subscribe(context.Background(), p.peerID))
	return p
}

func (p *fakePeer) onMessage(_ string, payload string) {
	plain, err := open(p.key, payload)
	if err != nil {
		return
	}
	var msg rpcMessage
	if err := json.Unmarshal(plain, &msg); err != nil {
		return
	}

	p.mu.Lock()
	p.calls = append(p.calls, msg.Method)
	p.mu.Unlock()

	switch msg.Method {
	case methodSessionRequest:
		var params []sessionRequestParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || len(params) == 0 {
			return
		}
		p.mu.Lock()
		p.clientID = params[0].PeerID
		p.mu.Unlock()
		p.reply(msg.ID, sessionParams{
			Approved: p.approve,
			ChainID:  p.chainID,
			Accounts: p.accounts,
			PeerID:   p.peerID,
			PeerMeta: &PeerMeta{Name: "Fake Wallet"},
		}, nil)
	case methodSessionUpdate:
	default:
		if p.handle == nil {
			p.reply(msg.ID, nil, &RPCError{Code: -32601, Message: "method not found"})
			return
		}
		result, rpcErr := p.handle(msg.Method, msg.Params)
		p.reply(msg.ID, result, rpcErr)
	}
}

func (p *fakePeer) reply(id int64, result any, rpcErr *RPCError) {
	out := map[string]any{"id": id, "jsonrpc": "2.0"}
	if rpcErr != nil {
		out["error"] = rpcErr
	} else {
		out["result"] = result
	}
	p.send(out)
}

// endSession tells the dapp the wallet closed the session.
func (p *fakePeer) endSession() {
	p.send(rpcRequest{ID: 1, JSONRPC: "2.0", Method: methodSessionUpdate, Params: []sessionParams{{Approved: false}}})
}

// send runs on relay goroutines, so failures are reported with assert.
func (p *fakePeer) send(v any) {
	data, err := json.Marshal(v)
	assert.NoError(p.t, err)
	payload, err := seal(p.key, data)
	assert.NoError(p.t, err)
	p.mu.Lock()
	to := p.clientID
	p.mu.Unlock()
	assert.NoError(p.t, p.transport.Publish(context.Background(), to, payload))
}

func (p *fakePeer) methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}
