package smart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Mohsinsiddi/w3link/internal/chain"
)

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcHandler func(params []json.RawMessage) (any, *rpcError)

// rpcServer is a JSON-RPC endpoint serving both chain and bundler
// methods. It records the method and params of every call.
type rpcServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]rpcHandler
	calls    []call
}

type call struct {
	method string
	params []json.RawMessage
}

func newRPCServer(t *testing.T) *rpcServer {
	t.Helper()
	s := &rpcServer{handlers: make(map[string]rpcHandler)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage   `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.calls = append(s.calls, call{req.Method, req.Params})
		h, ok := s.handlers[req.Method]
		s.mu.Unlock()

		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if !ok {
			resp["error"] = rpcError{Code: -32601, Message: "method not found"}
		} else if res, e := h(req.Params); e != nil {
			resp["error"] = e
		} else {
			resp["result"] = res
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *rpcServer) handle(method string, h rpcHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

func (s *rpcServer) reply(method string, result any) {
	s.handle(method, func([]json.RawMessage) (any, *rpcError) { return result, nil })
}

// methods lists the called methods in order.
func (s *rpcServer) methods() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.method
	}
	return out
}

// last returns the params of the most recent call to method.
func (s *rpcServer) last(t *testing.T, method string) []json.RawMessage {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.calls) - 1; i >= 0; i-- {
		if s.calls[i].method == method {
			return s.calls[i].params
		}
	}
	require.Failf(t, "method not called", "%s", method)
	return nil
}

func (s *rpcServer) count(method string) int {
	n := 0
	for _, m := range s.methods() {
		if m == method {
			n++
		}
	}
	return n
}

// staticSessions always resolves to one client.
type staticSessions struct {
	client *chain.Client
}

func (s staticSessions) Get(_ context.Context, chainID int64) (*chain.Session, error) {
	return &chain.Session{ChainID: chainID, RPCURL: s.client.URL(), Client: s.client}, nil
}

func sessionsFor(t *testing.T, url string) staticSessions {
	t.Helper()
	c, err := chain.Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return staticSessions{client: c}
}
