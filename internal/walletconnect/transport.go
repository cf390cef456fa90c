package walletconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport carries relay frames between the session and the bridge.
type Transport interface {
	Open(ctx context.Context, bridgeURL string) error
	Close(ctx context.Context) error
	Connected() bool
	Subscribe(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic, payload string) error
	// OnMessage sets the callback for inbound published frames.
	OnMessage(fn func(topic, payload string))
}

var errTransportClosed = errors.New("transport is closed")

// WebsocketTransport is a Transport over a relay websocket.
type WebsocketTransport struct {
	dialer    *websocket.Dialer
	header    http.Header
	heartbeat time.Duration
	writeWait time.Duration
	logger    *slog.Logger

	mu      sync.RWMutex
	conn    *websocket.Conn
	done    chan struct{}
	handler func(topic, payload string)

	writeMu sync.Mutex
}

// TransportOption configures a WebsocketTransport.
type TransportOption func(*WebsocketTransport)

// WithHeartbeat sets the ping interval. Zero disables pings.
func WithHeartbeat(d time.Duration) TransportOption {
	return func(t *WebsocketTransport) { t.heartbeat = d }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) TransportOption {
	return func(t *WebsocketTransport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// WithRelayHeader adds a header to the relay handshake.
func WithRelayHeader(key, value string) TransportOption {
	return func(t *WebsocketTransport) {
		if value != "" {
			t.header.Set(key, value)
		}
	}
}

// WithTransportLogger sets the logger.
func WithTransportLogger(l *slog.Logger) TransportOption {
	return func(t *WebsocketTransport) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewWebsocketTransport returns a closed transport.
func NewWebsocketTransport(opts ...TransportOption) *WebsocketTransport {
	t := &WebsocketTransport{
		dialer:    websocket.DefaultDialer,
		header:    make(http.Header),
		heartbeat: 30 * time.Second,
		writeWait: 10 * time.Second,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Open dials bridgeURL. http(s) URLs are rewritten to ws(s). Opening an
// open transport is a no-op.
func (t *WebsocketTransport) Open(ctx context.Context, bridgeURL string) error {
	if t.Connected() {
		return nil
	}
	conn, _, err := t.dialer.DialContext(ctx, relayURL(bridgeURL), t.header)
	if err != nil {
		return fmt.Errorf("dialing relay %s: %w", bridgeURL, err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.done = done
	t.mu.Unlock()

	go t.readLoop(conn, done)
	if t.heartbeat > 0 {
		go t.heartbeatLoop(conn, done)
	}
	t.logger.Debug("relay connected", "url", bridgeURL)
	return nil
}

// Close closes the socket. Closing a closed transport is a no-op.
func (t *WebsocketTransport) Close(context.Context) error {
	t.mu.Lock()
	conn, done := t.conn, t.done
	t.conn, t.done = nil, nil
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	close(done)

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return conn.Close()
}

func (t *WebsocketTransport) Connected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn != nil
}

func (t *WebsocketTransport) OnMessage(fn func(topic, payload string)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

func (t *WebsocketTransport) Subscribe(ctx context.Context, topic string) error {
	return t.send(ctx, relayMessage{Topic: topic, Type: "sub", Silent: true})
}

func (t *WebsocketTransport) Publish(ctx context.Context, topic, payload string) error {
	return t.send(ctx, relayMessage{Topic: topic, Type: "pub", Payload: payload, Silent: true})
}

func (t *WebsocketTransport) send(ctx context.Context, msg relayMessage) error {
	t.mu.RLock()
	conn := t.conn
	t.mu.RUnlock()
	if conn == nil {
		return errTransportClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(t.writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing %s frame: %w", msg.Type, err)
	}
	return nil
}

func (t *WebsocketTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	defer t.drop(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
			default:
				t.logger.Debug("relay read failed", "err", err)
			}
			return
		}

		var msg relayMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Debug("ignoring malformed relay frame", "err", err)
			continue
		}
		if msg.Type != "pub" {
			continue
		}
		// Ack so the relay can drop the message from its queue.
		_ = t.send(context.Background(), relayMessage{Topic: msg.Topic, Type: "ack", Silent: true})

		t.mu.RLock()
		fn := t.handler
		t.mu.RUnlock()
		if fn != nil {
			fn(msg.Topic, msg.Payload)
		}
	}
}

func (t *WebsocketTransport) heartbeatLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
			t.writeMu.Unlock()
			if err != nil {
				t.logger.Debug("relay heartbeat failed", "err", err)
				_ = conn.Close()
				return
			}
		}
	}
}

// drop forgets conn after the socket died underneath us.
func (t *WebsocketTransport) drop(conn *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == conn {
		close(t.done)
		t.conn, t.done = nil, nil
		_ = conn.Close()
	}
}

func relayURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}
