// Package telemetry reports anonymous usage events. Reporting never
// blocks the caller and never fails an operation.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Mohsinsiddi/w3link/internal/config"
	"github.com/Mohsinsiddi/w3link/internal/metrics"
)

// Event is one usage record.
type Event struct {
	Source        string `json:"source"`
	Action        string `json:"action"`
	WalletAddress string `json:"walletAddress"`
	WalletType    string `json:"walletType"`
}

func (e Event) valid() bool {
	return e.Source != "" && e.Action != "" && e.WalletAddress != "" && e.WalletType != ""
}

// Tracker posts events to the analytics endpoint in the background. A nil
// *Tracker drops everything.
type Tracker struct {
	endpoint string
	clientID string
	bundleID string
	http     *http.Client
	limiter  *rate.Limiter
	timeout  time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	wg sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithEndpoint overrides the analytics URL.
func WithEndpoint(u string) Option {
	return func(t *Tracker) { t.endpoint = u }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(t *Tracker) {
		if hc != nil {
			t.http = hc
		}
	}
}

func WithBundleID(id string) Option {
	return func(t *Tracker) { t.bundleID = id }
}

// WithRateLimit caps events per second; excess events are dropped.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(t *Tracker) { t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst) }
}

// WithTimeout bounds each report.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(t *Tracker) { t.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns a tracker reporting on behalf of clientID.
func New(clientID string, opts ...Option) *Tracker {
	t := &Tracker{
		endpoint: config.AnalyticsEndpoint,
		clientID: clientID,
		http:     &http.Client{Timeout: config.TelemetryTimeout},
		limiter:  rate.NewLimiter(2, 10),
		timeout:  config.TelemetryTimeout,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Track reports ev in a new goroutine. Incomplete events and events over
// the rate limit are dropped with a log line.
func (t *Tracker) Track(ev Event) {
	if t == nil {
		return
	}
	if !ev.valid() {
		t.logger.Warn("invalid usage analytics parameters", "source", ev.Source, "action", ev.Action)
		t.metrics.RecordTelemetry("invalid")
		return
	}
	if !t.limiter.Allow() {
		t.logger.Debug("usage event dropped by rate limit", "action", ev.Action)
		t.metrics.RecordTelemetry("dropped")
		return
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.Send(ctx, ev); err != nil {
			t.logger.Warn("failed to report usage analytics", "err", err)
			t.metrics.RecordTelemetry("failed")
			return
		}
		t.metrics.RecordTelemetry("sent")
	}()
}

// Send posts ev and waits for the answer.
func (t *Tracker) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", t.clientID)
	if t.bundleID != "" {
		req.Header.Set("x-bundle-id", t.bundleID)
	}
	req.Header.Set("x-sdk-name", "w3link")
	req.Header.Set("x-sdk-version", config.SDKVersion)
	req.Header.Set("x-sdk-os", runtime.GOOS)
	req.Header.Set("x-sdk-platform", "go")

	resp, err := t.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("analytics endpoint: status %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until every in-flight report has finished.
func (t *Tracker) Wait() {
	if t == nil {
		return
	}
	t.wg.Wait()
}
