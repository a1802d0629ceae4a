package ippool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	latencies map[string]time.Duration
	errs      map[string]error
}

func (f *fakeProber) Probe(_ context.Context, ip string, _ uint16, _ time.Duration) (time.Duration, error) {
	if err, ok := f.errs[ip]; ok {
		return 0, err
	}
	return f.latencies[ip], nil
}

// bestOf returns the lowest-latency successful result, as ranked by the
// pool's rankCandidates.
func bestOf(results []measuredCandidate) (Stat, bool) {
	stats, ok := rankCandidates(results, 0, time.Now(), time.Minute)
	if !ok {
		return Stat{}, false
	}
	return stats[0], true
}

func TestSampler_PicksLowestLatency(t *testing.T) {
	prober := &fakeProber{latencies: map[string]time.Duration{
		"1.1.1.1": 80 * time.Millisecond,
		"2.2.2.2": 20 * time.Millisecond,
		"3.3.3.3": 150 * time.Millisecond,
	}}
	s := newSampler(prober, 4, 0, time.Minute)

	candidates := []Candidate{
		{IP: "1.1.1.1", Source: SourceDns},
		{IP: "2.2.2.2", Source: SourceHistory},
		{IP: "3.3.3.3", Source: SourceBuiltin},
	}

	results, err := s.sample(context.Background(), "github.com:443", candidates, time.Second)
	require.NoError(t, err)

	best, ok := bestOf(results)
	require.True(t, ok)
	require.Equal(t, "2.2.2.2", best.IP)
}

func TestSampler_SkipsFailedProbes(t *testing.T) {
	prober := &fakeProber{
		latencies: map[string]time.Duration{"2.2.2.2": 20 * time.Millisecond},
		errs:      map[string]error{"1.1.1.1": context.DeadlineExceeded},
	}
	s := newSampler(prober, 4, 0, time.Minute)

	candidates := []Candidate{
		{IP: "1.1.1.1", Source: SourceDns},
		{IP: "2.2.2.2", Source: SourceHistory},
	}

	results, err := s.sample(context.Background(), "github.com:443", candidates, time.Second)
	require.NoError(t, err)

	best, ok := bestOf(results)
	require.True(t, ok)
	require.Equal(t, "2.2.2.2", best.IP)
}

func TestSampler_AllFailedYieldsNoBest(t *testing.T) {
	prober := &fakeProber{errs: map[string]error{"1.1.1.1": context.DeadlineExceeded}}
	s := newSampler(prober, 4, 0, time.Minute)

	results, err := s.sample(context.Background(), "github.com:443", []Candidate{{IP: "1.1.1.1"}}, time.Second)
	require.NoError(t, err)

	_, ok := bestOf(results)
	require.False(t, ok)
}
