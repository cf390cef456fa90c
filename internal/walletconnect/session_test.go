package walletconnect

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3link/internal/wallet"
)

func newTestSession(t *testing.T, relay *memRelay, timeout time.Duration) *bridgeSession {
	t.Helper()
	s, err := newBridgeSession(relay.transport(), PeerMeta{Name: "game"}, "https://bridge.test", 1, sessionConfig{approveTimeout: timeout})
	require.NoError(t, err)
	return s
}

func TestSessionApproval(t *testing.T) {
	relay := newMemRelay()
	s := newTestSession(t, relay, 5*time.Second)
	peer := newFakePeer(t, relay, s.URI())

	assert.False(t, s.Connected())
	data, err := s.ConnectSession(context.Background())
	require.NoError(t, err)

	assert.Equal(t, peer.accounts, data.Accounts)
	assert.Equal(t, int64(137), data.ChainID)
	assert.Equal(t, "Fake Wallet", data.PeerMeta.Name)
	assert.True(t, s.Connected())
	assert.False(t, s.Connecting())
	assert.Equal(t, int64(137), s.ChainID())
	assert.Equal(t, []string{methodSessionRequest}, peer.methods())
}

func TestSessionRejected(t *testing.T) {
	relay := newMemRelay()
	s := newTestSession(t, relay, 5*time.Second)
	peer := newFakePeer(t, relay, s.URI())
	peer.approve = false

	_, err := s.ConnectSession(context.Background())
	assert.ErrorIs(t, err, wallet.ErrAuthentication)
	assert.False(t, s.SessionConnected())
}

func TestSessionApprovalTimeout(t *testing.T) {
	relay := newMemRelay()
	s := newTestSession(t, relay, 50*time.Millisecond)

	_, err := s.ConnectSession(context.Background())
	assert.ErrorIs(t, err, wallet.ErrTimeout)
	assert.True(t, s.TransportConnected())
	assert.False(t, s.SessionConnected())
}

func TestSessionTransportFailureThenRetry(t *testing.T) {
	relay := newMemRelay()
	relay.failOpen = 1
	s := newTestSession(t, relay, 5*time.Second)
	newFakePeer(t, relay, s.URI())

	_, err := s.ConnectSession(context.Background())
	assert.ErrorIs(t, err, wallet.ErrTransport)

	data, err := s.ConnectSession(context.Background())
	require.NoError(t, err)
	assert.Len(t, data.Accounts, 1)
}

func TestSessionContextCancel(t *testing.T) {
	relay := newMemRelay()
	s := newTestSession(t, relay, time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.ConnectSession(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSessionRequest(t *testing.T) {
	relay := newMemRelay()
	s := newTestSession(t, relay, 5*time.Second)
	peer := newFakePeer(t, relay, s.URI())
	peer.handle = func(method string, params json.RawMessage) (any, *RPCError) {
		if method == "personal_sign" {
			return "0x1234", nil
		}
		return nil, &RPCError{Code: 4001, Message: "user rejected"}
	}

	var sig hexutil.Bytes
	assert.ErrorIs(t, s.Request(context.Background(), "personal_sign", []any{"0x00"}, &sig), wallet.ErrNotConnected)

	_, err := s.ConnectSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Request(context.Background(), "personal_sign", []any{"0x00"}, &sig))
	assert.Equal(t, hexutil.Bytes{0x12, 0x34}, sig)

	err = s.Request(context.Background(), "eth_sendTransaction", []any{}, nil)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, 4001, rpcErr.ErrorCode())
}

func TestSessionRemoteDisconnect(t *testing.T) {
	relay := newMemRelay()
	s := newTestSession(t, relay, 5*time.Second)
	peer := newFakePeer(t, relay, s.URI())

	ended := make(chan struct{}, 1)
	s.OnDisconnect(func() { ended <- struct{}{} })

	_, err := s.ConnectSession(context.Background())
	require.NoError(t, err)

	peer.endSession()
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler not called")
	}
	assert.False(t, s.SessionConnected())
	assert.Eventually(t, func() bool { return !s.TransportConnected() }, time.Second, 5*time.Millisecond)
}

func TestSessionLocalDisconnect(t *testing.T) {
	relay := newMemRelay()
	s := newTestSession(t, relay, 5*time.Second)
	peer := newFakePeer(t, relay, s.URI())

	var fired int
	s.OnDisconnect(func() { fired++ })
	_, err := s.ConnectSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Disconnect(context.Background()))
	assert.Equal(t, 1, fired)
	assert.False(t, s.Connected())
	assert.Eventually(t, func() bool {
		m := peer.methods()
		return len(m) == 2 && m[1] == methodSessionUpdate
	}, time.Second, 5*time.Millisecond)
}

func TestSessionSaveAndRestore(t *testing.T) {
	relay := newMemRelay()
	s := newTestSession(t, relay, 5*time.Second)
	peer := newFakePeer(t, relay, s.URI())
	peer.handle = func(string, json.RawMessage) (any, *RPCError) { return "0xabcd", nil }

	_, err := s.ConnectSession(context.Background())
	require.NoError(t, err)
	saved := s.Save()
	require.NoError(t, s.CloseTransport(context.Background()))
	assert.True(t, s.SessionConnected())
	assert.False(t, s.Connected())

	restored, err := restoreBridgeSession(relay.transport(), saved, sessionConfig{})
	require.NoError(t, err)
	assert.Equal(t, s.Key(), restored.Key())
	assert.Equal(t, s.URI(), restored.URI())

	data, err := restored.ConnectSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, peer.accounts, data.Accounts)
	// No second pairing request.
	assert.Equal(t, []string{methodSessionRequest}, peer.methods())

	var out hexutil.Bytes
	require.NoError(t, restored.Request(context.Background(), "eth_sign", nil, &out))
	assert.Equal(t, hexutil.Bytes{0xab, 0xcd}, out)
}

func TestRestoreRejectsBadKey(t *testing.T) {
	_, err := restoreBridgeSession(newMemRelay().transport(), &SavedSession{Key: "zz"}, sessionConfig{})
	assert.ErrorIs(t, err, wallet.ErrConfiguration)
}
