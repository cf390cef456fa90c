package rpc_test

import (
	"testing"
	"time"

	"github.com/Mohsinsiddi/w3link/internal/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// checked builds an endpoint that has been probed.
func checked(url string, latency time.Duration, block uint64, healthy bool) rpc.Endpoint {
	return rpc.Endpoint{URL: url, Latency: latency, BlockNumber: block, Healthy: healthy, Checked: true}
}

func unchecked(url string, latency time.Duration, block uint64) rpc.Endpoint {
	return rpc.Endpoint{URL: url, Latency: latency, BlockNumber: block}
}

func TestPickerSelectsFastest(t *testing.T) {
	endpoints := []rpc.Endpoint{
		unchecked("http://slow.rpc", 200*time.Millisecond, 100),
		unchecked("http://fast.rpc", 30*time.Millisecond, 100),
		unchecked("http://medium.rpc", 80*time.Millisecond, 100),
	}

	winner, err := rpc.NewPicker(rpc.AlgorithmFastest).Pick(endpoints)
	require.NoError(t, err)
	assert.Equal(t, "http://fast.rpc", winner.URL)
}

func TestPickerDiscardsStaleNodes(t *testing.T) {
	endpoints := []rpc.Endpoint{
		checked("http://fresh.rpc", 50*time.Millisecond, 1000, true),
		checked("http://stale.rpc", 10*time.Millisecond, 990, true),
	}

	winner, err := rpc.NewPicker(rpc.AlgorithmFastest).Pick(endpoints)
	require.NoError(t, err)
	assert.Equal(t, "http://fresh.rpc", winner.URL, "stale node should be skipped even if faster")
}

func TestPickerIgnoresUnhealthyTip(t *testing.T) {
	// An unhealthy node reporting a far-ahead block must not make the
	// healthy ones look stale.
	endpoints := []rpc.Endpoint{
		checked("http://bogus.rpc", 5*time.Millisecond, 5000, false),
		checked("http://ok.rpc", 50*time.Millisecond, 1000, true),
	}

	winner, err := rpc.NewPicker(rpc.AlgorithmFastest).Pick(endpoints)
	require.NoError(t, err)
	assert.Equal(t, "http://ok.rpc", winner.URL)
}

func TestPickerRoundRobinCycles(t *testing.T) {
	endpoints := []rpc.Endpoint{
		checked("http://rpc1", 0, 100, true),
		checked("http://rpc2", 0, 100, false),
		checked("http://rpc3", 0, 100, true),
	}

	picker := rpc.NewPicker(rpc.AlgorithmRoundRobin)
	var got []string
	for range 4 {
		e, err := picker.Pick(endpoints)
		require.NoError(t, err)
		got = append(got, e.URL)
	}
	assert.Equal(t, []string{"http://rpc1", "http://rpc3", "http://rpc1", "http://rpc3"}, got)
}

func TestPickerFailover(t *testing.T) {
	endpoints := []rpc.Endpoint{
		checked("http://primary", 0, 100, false),
		checked("http://secondary", 0, 100, true),
		checked("http://tertiary", 0, 100, true),
	}

	winner, err := rpc.NewPicker(rpc.AlgorithmFailover).Pick(endpoints)
	require.NoError(t, err)
	assert.Equal(t, "http://secondary", winner.URL)
}

func TestPickerErrorsWhenAllUnhealthy(t *testing.T) {
	endpoints := []rpc.Endpoint{
		checked("http://rpc1", 100*time.Millisecond, 0, false),
		checked("http://rpc2", 200*time.Millisecond, 0, false),
	}

	for _, algo := range []rpc.Algorithm{rpc.AlgorithmFastest, rpc.AlgorithmRoundRobin, rpc.AlgorithmFailover} {
		_, err := rpc.NewPicker(algo).Pick(endpoints)
		assert.ErrorIs(t, err, rpc.ErrNoHealthyRPC, string(algo))
	}
}

func TestPickerCachesWinner(t *testing.T) {
	runs := 0
	endpoints := []rpc.Endpoint{unchecked("http://fast.rpc", 30*time.Millisecond, 100)}

	picker := rpc.NewPicker(rpc.AlgorithmFastest)
	picker.OnBenchmark(func() { runs++ })

	for range 3 {
		_, err := picker.Pick(endpoints)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, runs)
}

func TestPickerEmptyEndpoints(t *testing.T) {
	_, err := rpc.NewPicker(rpc.AlgorithmFastest).Pick(nil)
	assert.ErrorIs(t, err, rpc.ErrNoHealthyRPC)
}

func TestParseAlgorithm(t *testing.T) {
	assert.Equal(t, rpc.AlgorithmFastest, rpc.ParseAlgorithm(""))
	assert.Equal(t, rpc.AlgorithmFastest, rpc.ParseAlgorithm("nonsense"))
	assert.Equal(t, rpc.AlgorithmRoundRobin, rpc.ParseAlgorithm("round-robin"))
	assert.Equal(t, rpc.AlgorithmFailover, rpc.ParseAlgorithm("failover"))
}
