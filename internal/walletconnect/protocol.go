// Package walletconnect connects to external wallets through a relay
// bridge. A dapp publishes an encrypted session request on a handshake
// topic, the wallet approves it and from then on both sides exchange
// encrypted JSON-RPC messages on each other's client topics.
package walletconnect

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// Wire methods of the bridge protocol.
const (
	methodSessionRequest = "wc_sessionRequest"
	methodSessionUpdate  = "wc_sessionUpdate"
)

// PeerMeta describes one side of a session to the other.
type PeerMeta struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Icons       []string `json:"icons"`
}

// relayMessage is one frame on the relay socket.
type relayMessage struct {
	Topic   string `json:"topic"`
	Type    string `json:"type"` // "pub" | "sub" | "ack"
	Payload string `json:"payload"`
	Silent  bool   `json:"silent"`
}

type rpcRequest struct {
	ID      int64  `json:"id"`
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// rpcMessage decodes both requests and responses coming from the wallet.
type rpcMessage struct {
	ID     int64           `json:"id"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError is an error answer from the wallet.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// ErrorCode returns the JSON-RPC error code.
func (e *RPCError) ErrorCode() int { return e.Code }

type sessionRequestParams struct {
	PeerID   string   `json:"peerId"`
	PeerMeta PeerMeta `json:"peerMeta"`
	ChainID  int64    `json:"chainId"`
}

// sessionParams is both the answer to a session request and the payload
// of a session update.
type sessionParams struct {
	Approved bool      `json:"approved"`
	ChainID  int64     `json:"chainId"`
	Accounts []string  `json:"accounts"`
	PeerID   string    `json:"peerId,omitempty"`
	PeerMeta *PeerMeta `json:"peerMeta,omitempty"`
}

// BuildURI returns the pairing URI a wallet scans to join the session.
func BuildURI(topic, bridgeURL string, key []byte) string {
	q := url.Values{"bridge": {bridgeURL}, "key": {hex.EncodeToString(key)}}
	return fmt.Sprintf("wc:%s@1?%s", topic, q.Encode())
}

// ParseURI splits a pairing URI into its handshake topic, bridge URL and
// symmetric key.
func ParseURI(uri string) (topic, bridgeURL string, key []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "wc:")
	if !ok {
		return "", "", nil, fmt.Errorf("not a pairing uri: %q", uri)
	}
	head, query, _ := strings.Cut(rest, "?")
	topic, version, _ := strings.Cut(head, "@")
	if topic == "" || version != "1" {
		return "", "", nil, fmt.Errorf("unsupported pairing uri: %q", uri)
	}
	q, err := url.ParseQuery(query)
	if err != nil {
		return "", "", nil, fmt.Errorf("parsing pairing uri: %w", err)
	}
	key, err = hex.DecodeString(q.Get("key"))
	if err != nil || len(key) == 0 {
		return "", "", nil, fmt.Errorf("pairing uri has no valid key")
	}
	return topic, q.Get("bridge"), key, nil
}
