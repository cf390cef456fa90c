package rpc

import (
	"context"
	"sync"
	"time"
)

// PingFunc probes url and reports its round-trip latency and latest block.
type PingFunc func(ctx context.Context, url string) (time.Duration, uint64, error)

// Result is the outcome of probing one URL.
type Result struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Err         error
}

// Benchmark probes every URL in parallel. Results keep the order of urls.
func Benchmark(ctx context.Context, urls []string, ping PingFunc) []Result {
	results := make([]Result, len(urls))
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			latency, block, err := ping(ctx, u)
			results[i] = Result{URL: u, Latency: latency, BlockNumber: block, Err: err}
		}()
	}
	wg.Wait()
	return results
}

// ToEndpoints converts probe results into checked endpoints.
func ToEndpoints(results []Result) []Endpoint {
	endpoints := make([]Endpoint, 0, len(results))
	for _, r := range results {
		endpoints = append(endpoints, Endpoint{
			URL:         r.URL,
			Latency:     r.Latency,
			BlockNumber: r.BlockNumber,
			Healthy:     r.Err == nil,
			Checked:     true,
		})
	}
	return endpoints
}

// HealthCheck probes a single URL. The node is unhealthy when the probe
// fails or when it lags more than a few blocks behind tip (0 skips that check).
func HealthCheck(ctx context.Context, url string, tip uint64, ping PingFunc) (Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	latency, block, err := ping(ctx, url)
	ep := Endpoint{
		URL:         url,
		Latency:     latency,
		BlockNumber: block,
		Healthy:     err == nil,
		Checked:     true,
	}
	if err == nil && tip > 0 && behind(tip, block) > staleBlockThreshold {
		ep.Healthy = false
	}
	return ep, err
}

// Selector picks one URL out of a candidate list by probing them. A single
// candidate is returned without probing.
type Selector struct {
	picker  *Picker
	ping    PingFunc
	timeout time.Duration
}

// NewSelector returns a Selector. timeout bounds each probe round; zero
// means the caller's context alone applies.
func NewSelector(algo Algorithm, ping PingFunc, timeout time.Duration) *Selector {
	return &Selector{picker: NewPicker(algo), ping: ping, timeout: timeout}
}

// Select returns the chosen URL, or ErrNoHealthyRPC.
func (s *Selector) Select(ctx context.Context, urls []string) (string, error) {
	switch len(urls) {
	case 0:
		return "", ErrNoHealthyRPC
	case 1:
		return urls[0], nil
	}

	if s.ping == nil {
		return urls[0], nil
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	winner, err := s.picker.Pick(ToEndpoints(Benchmark(ctx, urls, s.ping)))
	if err != nil {
		return "", err
	}
	return winner.URL, nil
}
