package inapp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

// fakeBackend is a scripted wallet backend. Handlers are keyed by
// "METHOD /path".
type fakeBackend struct {
	t        *testing.T
	srv      *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	headers  map[string]http.Header
	bodies   map[string]map[string]any
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:        t,
		handlers: make(map[string]http.HandlerFunc),
		headers:  make(map[string]http.Header),
		bodies:   make(map[string]map[string]any),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		b.mu.Lock()
		b.headers[key] = r.Header.Clone()
		b.bodies[key] = body
		h, ok := b.handlers[key]
		b.mu.Unlock()

		if !ok {
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) handle(key string, h http.HandlerFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[key] = h
}

func (b *fakeBackend) json(key string, status int, v any) {
	b.handle(key, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, v)
	})
}

func (b *fakeBackend) header(key string) http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headers[key]
}

func (b *fakeBackend) body(key string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bodies[key]
}

func (b *fakeBackend) client(opts ...ClientOption) *Client {
	return NewClient("test-client", append([]ClientOption{WithBaseURL(b.srv.URL), WithRateLimit(1000, 100)}, opts...)...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func authOK(token string) AuthResult {
	return AuthResult{AuthToken: token, WalletAddress: testAddress}
}
