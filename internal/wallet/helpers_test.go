package wallet_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Mohsinsiddi/w3link/internal/chain"
)

const (
	testKey     = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testChainID = int64(31337)
)

// rpcLog records the params of every JSON-RPC call a mock received.
type rpcLog struct {
	mu    sync.Mutex
	calls map[string][]json.RawMessage
}

func (l *rpcLog) params(method string) []json.RawMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[method]
}

// rpcMock serves fixed JSON-RPC results keyed by method.
func rpcMock(t *testing.T, responses map[string]any) (*httptest.Server, *rpcLog) {
	t.Helper()
	log := &rpcLog{calls: make(map[string][]json.RawMessage)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			ID     int               `json:"id"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		log.mu.Lock()
		log.calls[req.Method] = req.Params
		log.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
		if result, ok := responses[req.Method]; ok {
			resp["result"] = result
		} else {
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}
		json.NewEncoder(w).Encode(resp) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func mockSessions(t *testing.T, url string) *chain.Sessions {
	t.Helper()
	s := chain.NewSessions(chain.NewRegistry(), chain.WithCustomRPCs(map[int64][]string{testChainID: {url}}))
	t.Cleanup(s.Close)
	return s
}
