package ippool

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Prober measures one candidate's TCP connect latency. It is a narrow seam
// so sampler_test.go can substitute a fake dialer instead of hitting the
// network.
type Prober interface {
	Probe(ctx context.Context, ip string, port uint16, timeout time.Duration) (time.Duration, error)
}

// tcpProber dials a real TCP connection and measures time-to-connect, per
// spec.md §4.1 "probing measures TCP connect latency, not a full TLS
// handshake".
type tcpProber struct {
	dialer net.Dialer
}

func NewTCPProber() Prober { return &tcpProber{} }

func (p *tcpProber) Probe(ctx context.Context, ip string, port uint16, timeout time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(int(port))))
	if err != nil {
		return 0, err
	}
	defer conn.Close()
	return time.Since(start), nil
}

// sampler coalesces concurrent probe requests for the same host:port
// (spec.md §4.1 "concurrent lookups for the same target are coalesced")
// using golang.org/x/sync/singleflight, runs a bounded number of probes in
// parallel via sourcegraph/conc, and rate-limits the total probe volume.
type sampler struct {
	group    singleflight.Group
	limiter  *rate.Limiter
	prober   Prober
	maxConc  int
	probeTTL time.Duration
}

func newSampler(prober Prober, maxConcurrentProbes int, probesPerSecond float64, probeTTL time.Duration) *sampler {
	if maxConcurrentProbes <= 0 {
		maxConcurrentProbes = 4
	}
	var limiter *rate.Limiter
	if probesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(probesPerSecond), maxConcurrentProbes)
	}
	return &sampler{prober: prober, maxConc: maxConcurrentProbes, limiter: limiter, probeTTL: probeTTL}
}

// measuredCandidate is a probed candidate with its result, or an error if
// the probe failed.
type measuredCandidate struct {
	Candidate
	latency time.Duration
	err     error
}

// sample probes every candidate concurrently (bounded by maxConc) and
// returns one result per candidate, in no particular order (rankCandidates
// sorts them). host:port is used only as the singleflight coalescing key.
func (s *sampler) sample(ctx context.Context, key string, candidates []Candidate, timeout time.Duration) ([]measuredCandidate, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.probeAll(ctx, candidates, timeout), nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]measuredCandidate), nil
}

func (s *sampler) probeAll(ctx context.Context, candidates []Candidate, timeout time.Duration) []measuredCandidate {
	p := pool.NewWithResults[measuredCandidate]().WithMaxGoroutines(s.maxConc).WithContext(ctx)

	for _, c := range candidates {
		c := c
		p.Go(func(ctx context.Context) (measuredCandidate, error) {
			if s.limiter != nil {
				if err := s.limiter.Wait(ctx); err != nil {
					return measuredCandidate{Candidate: c, err: err}, nil
				}
			}
			latency, err := s.prober.Probe(ctx, c.IP, c.Port, timeout)
			return measuredCandidate{Candidate: c, latency: latency, err: err}, nil
		})
	}

	results, _ := p.Wait()
	return results
}
