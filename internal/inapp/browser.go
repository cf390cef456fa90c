package inapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/config"
)

// BrowserStatus is how a browser login ended.
type BrowserStatus int

const (
	BrowserSuccess BrowserStatus = iota
	BrowserFailed
	BrowserTimeout
)

func (s BrowserStatus) String() string {
	switch s {
	case BrowserSuccess:
		return "success"
	case BrowserFailed:
		return "failed"
	case BrowserTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// BrowserResult carries the redirect payload of a browser login.
type BrowserResult struct {
	Status     BrowserStatus
	AuthResult string
	Error      string
}

// Browser runs an interactive login page and waits for its redirect.
// loginURL receives the redirect URL the page must return to.
type Browser interface {
	Login(ctx context.Context, loginURL func(redirectURL string) string) (BrowserResult, error)
}

const defaultRedirectPage = `<!DOCTYPE html><html><head><title>w3link</title></head>` +
	`<body style="font-family:sans-serif;text-align:center;padding-top:4em">` +
	`<h2>Login complete</h2><p>You can close this window and return to the game.</p></body></html>`

// LoopbackBrowser opens the system browser and receives the redirect on a
// one-shot HTTP server bound to 127.0.0.1.
type LoopbackBrowser struct {
	open    func(url string) error
	timeout time.Duration
	page    string
	logger  *slog.Logger
}

// BrowserOption configures a LoopbackBrowser.
type BrowserOption func(*LoopbackBrowser)

// WithOpener replaces the function that launches the browser.
func WithOpener(fn func(url string) error) BrowserOption {
	return func(b *LoopbackBrowser) { b.open = fn }
}

// WithLoginTimeout overrides the login deadline.
func WithLoginTimeout(d time.Duration) BrowserOption {
	return func(b *LoopbackBrowser) { b.timeout = d }
}

// WithRedirectPage overrides the page shown after the redirect. Empty keeps
// the default.
func WithRedirectPage(html string) BrowserOption {
	return func(b *LoopbackBrowser) {
		if html != "" {
			b.page = html
		}
	}
}

// WithBrowserLogger sets the logger.
func WithBrowserLogger(l *slog.Logger) BrowserOption {
	return func(b *LoopbackBrowser) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewLoopbackBrowser returns a browser that waits up to config.LoginTimeout.
func NewLoopbackBrowser(opts ...BrowserOption) *LoopbackBrowser {
	b := &LoopbackBrowser{
		open:    openSystemBrowser,
		timeout: config.LoginTimeout,
		page:    defaultRedirectPage,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// redirectMessage is what the login page posts back on completion.
type redirectMessage struct {
	EventType  string `json:"eventType"`
	AuthResult string `json:"authResult"`
	Error      string `json:"error"`
}

// Login serves the redirect, opens the page and waits for the first of:
// a redirect, the login timeout, or ctx. The server is always shut down
// before Login returns.
func (b *LoopbackBrowser) Login(ctx context.Context, loginURL func(string) string) (BrowserResult, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return BrowserResult{}, fmt.Errorf("starting redirect listener: %w", err)
	}
	redirectURL := fmt.Sprintf("http://%s/callback", ln.Addr())

	done := make(chan BrowserResult, 1)
	var once sync.Once
	resolve := func(r BrowserResult) {
		once.Do(func() { done <- r })
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		var msg redirectMessage
		switch r.Method {
		case http.MethodGet:
			q := r.URL.Query()
			msg.AuthResult, msg.Error = q.Get("authResult"), q.Get("error")
			if msg.AuthResult != "" {
				msg.EventType = "userLoginSuccess"
			} else {
				msg.EventType = "userLoginFailed"
			}
		case http.MethodPost:
			if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		switch msg.EventType {
		case "userLoginSuccess":
			resolve(BrowserResult{Status: BrowserSuccess, AuthResult: msg.AuthResult})
		case "userLoginFailed":
			resolve(BrowserResult{Status: BrowserFailed, Error: msg.Error})
		default:
			http.Error(w, "unknown event", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(b.page))
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			b.logger.Warn("redirect server stopped", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	target := loginURL(redirectURL)
	b.logger.Debug("opening browser login", "redirect", redirectURL)
	if err := b.open(target); err != nil {
		return BrowserResult{}, fmt.Errorf("opening browser: %w", err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res, nil
	case <-timer.C:
		return BrowserResult{Status: BrowserTimeout, Error: "login timed out"}, nil
	case <-ctx.Done():
		return BrowserResult{}, ctx.Err()
	}
}

func openSystemBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}
