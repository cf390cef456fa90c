package rpc

import (
	"errors"
	"sync"
	"time"
)

// ErrNoHealthyRPC is returned when no endpoint in a list can be used.
var ErrNoHealthyRPC = errors.New("no healthy RPC endpoint available")

// Algorithm names an endpoint selection strategy.
type Algorithm string

const (
	AlgorithmFastest    Algorithm = "fastest"
	AlgorithmRoundRobin Algorithm = "round-robin"
	AlgorithmFailover   Algorithm = "failover"

	// Nodes more than this many blocks behind the tip are never picked.
	staleBlockThreshold = 3
	// A fastest-pick is reused for this long.
	cacheTTL = 5 * time.Minute
)

// ParseAlgorithm maps a config string to an Algorithm. Unknown or empty
// values fall back to fastest.
func ParseAlgorithm(s string) Algorithm {
	switch Algorithm(s) {
	case AlgorithmRoundRobin, AlgorithmFailover:
		return Algorithm(s)
	default:
		return AlgorithmFastest
	}
}

// Endpoint is one RPC URL with the result of probing it.
type Endpoint struct {
	URL         string
	Latency     time.Duration
	BlockNumber uint64
	Healthy     bool // meaningful only when Checked
	Checked     bool
}

// usable reports whether e may be picked at all.
func (e *Endpoint) usable() bool {
	return !e.Checked || e.Healthy
}

// Picker chooses among probed endpoints. It is safe for concurrent use.
type Picker struct {
	algo Algorithm

	mu          sync.Mutex
	next        int
	cachedURL   string
	cacheExpiry time.Time
	onBenchmark func()
	now         func() time.Time
}

// NewPicker returns a Picker for algo.
func NewPicker(algo Algorithm) *Picker {
	return &Picker{algo: algo, now: time.Now}
}

// OnBenchmark registers a hook that runs whenever the fastest picker
// scores endpoints instead of answering from its cache.
func (p *Picker) OnBenchmark(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onBenchmark = fn
}

// Pick returns the endpoint selected by the picker's algorithm.
func (p *Picker) Pick(endpoints []Endpoint) (*Endpoint, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoHealthyRPC
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.algo {
	case AlgorithmRoundRobin:
		return p.roundRobin(endpoints)
	case AlgorithmFailover:
		return failover(endpoints)
	default:
		return p.fastest(endpoints)
	}
}

func (p *Picker) fastest(endpoints []Endpoint) (*Endpoint, error) {
	if p.cachedURL != "" && p.now().Before(p.cacheExpiry) {
		for i := range endpoints {
			if endpoints[i].URL == p.cachedURL && endpoints[i].usable() {
				return &endpoints[i], nil
			}
		}
	}
	if p.onBenchmark != nil {
		p.onBenchmark()
	}

	tip := tipOf(endpoints)
	var (
		winner *Endpoint
		best   float64
	)
	for i := range endpoints {
		e := &endpoints[i]
		if !e.usable() || behind(tip, e.BlockNumber) > staleBlockThreshold {
			continue
		}
		if s := score(e, tip); winner == nil || s > best {
			winner, best = e, s
		}
	}
	if winner == nil {
		return nil, ErrNoHealthyRPC
	}

	p.cachedURL = winner.URL
	p.cacheExpiry = p.now().Add(cacheTTL)
	return winner, nil
}

func (p *Picker) roundRobin(endpoints []Endpoint) (*Endpoint, error) {
	var usable []*Endpoint
	for i := range endpoints {
		if endpoints[i].usable() {
			usable = append(usable, &endpoints[i])
		}
	}
	if len(usable) == 0 {
		return nil, ErrNoHealthyRPC
	}
	e := usable[p.next%len(usable)]
	p.next = (p.next + 1) % len(usable)
	return e, nil
}

// failover returns the first usable endpoint in configured order.
func failover(endpoints []Endpoint) (*Endpoint, error) {
	for i := range endpoints {
		if endpoints[i].usable() {
			return &endpoints[i], nil
		}
	}
	return nil, ErrNoHealthyRPC
}

// --- scoring ---

func tipOf(endpoints []Endpoint) uint64 {
	var tip uint64
	for _, e := range endpoints {
		if e.usable() && e.BlockNumber > tip {
			tip = e.BlockNumber
		}
	}
	return tip
}

func behind(tip, block uint64) uint64 {
	if block >= tip {
		return 0
	}
	return tip - block
}

// score favours low latency, with a small bonus for being at the tip.
func score(e *Endpoint, tip uint64) float64 {
	var s float64
	if ms := e.Latency.Milliseconds(); ms > 0 {
		s += 1000.0 / float64(ms)
	} else if e.Latency > 0 {
		s += 1000.0
	}
	if tip > 0 {
		s += float64(staleBlockThreshold+1) - float64(behind(tip, e.BlockNumber))
	}
	return s
}
