package ippool

import (
	"context"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/sourcegraph/log"

	"github.com/gitmesh/gitmesh/internal/events"
)

// Config is the subset of ip-config.json / app.toml's ip_pool.* knobs the
// pool consumes (spec.md §6).
type Config struct {
	Enabled             bool          `mapstructure:"enabled"`
	MaxCacheEntries     int           `mapstructure:"max_cache_entries"`
	CacheTTLSeconds     uint32        `mapstructure:"cache_ttl_seconds"`
	ProbeTimeoutMs      uint32        `mapstructure:"probe_timeout_ms"`
	MaxConcurrentProbes int           `mapstructure:"max_concurrent_probes"`
	ProbesPerSecond     float64       `mapstructure:"probes_per_second"`
	MaxAlternates       int           `mapstructure:"max_alternates"`
	Breaker             breakerConfig `mapstructure:"breaker"`

	// SingleflightTimeoutMs bounds how long a single coalesced sampling
	// round is allowed to run before pick_best gives up and falls back to
	// SystemDefault (spec.md §4.1 "singleflight_timeout_ms").
	SingleflightTimeoutMs uint32 `mapstructure:"singleflight_timeout_ms"`
	// CachePruneIntervalSecs is how often the daemon calls MaintenanceTick
	// (spec.md §4.1 "maintenance_tick").
	CachePruneIntervalSecs uint32 `mapstructure:"cache_prune_interval_secs"`
	// CircuitBreakerEnabled gates whether recordOutcome is ever allowed to
	// trip a breaker; disabled breakers still record outcomes but never
	// open (spec.md §4.1 "disabled breakers, by config, never trip").
	CircuitBreakerEnabled bool `mapstructure:"circuit_breaker_enabled"`
}

const defaultMaxAlternates = 3

// Pool is the scored IP candidate cache of spec.md §4.1. One Pool is shared
// process-wide; it is safe for concurrent use.
type Pool struct {
	logger    log.Logger
	bus       *events.Bus
	resolvers []Resolver
	sampler   *sampler
	cache     *cache

	mu        sync.RWMutex
	cfg       Config
	whitelist []*net.IPNet
	blacklist []*net.IPNet
}

func NewPool(logger log.Logger, bus *events.Bus, resolvers []Resolver, prober Prober, cfg Config) *Pool {
	return &Pool{
		logger:    logger.Scoped("ippool", "scored IP candidate cache for adaptive transport"),
		bus:       bus,
		resolvers: resolvers,
		sampler:   newSampler(prober, cfg.MaxConcurrentProbes, cfg.ProbesPerSecond, time.Duration(cfg.CacheTTLSeconds)*time.Second),
		cache:     newCache(cfg.MaxCacheEntries),
		cfg:       cfg,
	}
}

// UpdateFilters swaps in freshly loaded whitelist/blacklist CIDRs
// (ip-config.json's whitelist_cidrs / blacklist_cidrs), taking effect on
// the next refresh of any host:port.
func (p *Pool) UpdateFilters(whitelist, blacklist []*net.IPNet) {
	p.mu.Lock()
	p.whitelist = whitelist
	p.blacklist = blacklist
	p.mu.Unlock()
}

// PickBest implements spec.md §4.1's pick_best(host, port): return a cached,
// non-tripped candidate if one exists and is still fresh; otherwise
// synchronously refresh and return the best measured candidate, or
// SystemDefault if the pool is disabled or every candidate is tripped/probe
// failed.
func (p *Pool) PickBest(ctx context.Context, host string, port uint16) (Selection, error) {
	p.mu.RLock()
	enabled := p.cfg.Enabled
	p.mu.RUnlock()

	if !enabled {
		return Selection{Strategy: StrategySystemDefault}, nil
	}

	key := CacheKey{Host: host, Port: port}
	now := time.Now()

	if slot, ok := p.cache.get(key, now); ok && !slot.Best.Tripped(now) {
		return selectionFromSlot(slot, port), nil
	}

	slot, err := p.refresh(ctx, host, port)
	if err != nil || slot.Best.IP == "" {
		return Selection{Strategy: StrategySystemDefault}, err
	}
	if slot.Best.Tripped(now) {
		return Selection{Strategy: StrategySystemDefault}, nil
	}

	return selectionFromSlot(slot, port), nil
}

// selectionFromSlot projects a CacheSlot into the Selection the dialer
// consumes, carrying the bounded alternates list along with Best so a
// failed dial to Best can retry against the next candidate before falling
// back to the system resolver (spec.md §4.2).
func selectionFromSlot(slot CacheSlot, port uint16) Selection {
	latency := slot.Best.LatencyMs
	alternates := make([]AlternateIP, len(slot.Alternates))
	for i, alt := range slot.Alternates {
		alternates[i] = AlternateIP{IP: alt.IP, Source: alt.Source}
	}
	return Selection{
		Strategy:   StrategyCached,
		IP:         slot.Best.IP,
		Port:       port,
		Source:     slot.Best.Source,
		LatencyMs:  &latency,
		Alternates: alternates,
	}
}

// refresh gathers candidates from every configured resolver, probes them
// all, and caches the best (lowest-latency, untripped) result plus its
// next-N alternates.
func (p *Pool) refresh(ctx context.Context, host string, port uint16) (CacheSlot, error) {
	var candidates []Candidate
	for _, r := range p.resolvers {
		ips, err := r.Resolve(ctx, host)
		if err != nil {
			p.logger.Debug("resolver failed", log.String("source", string(r.Source())), log.String("host", host), log.Error(err))
			p.bus.Publish(events.IpPoolRefresh{Host: host, Port: port, Success: false, Reason: string(r.Source())})
			continue
		}
		for _, ip := range ips {
			candidates = append(candidates, Candidate{Host: host, Port: port, IP: ip, Source: r.Source()})
		}
	}

	p.mu.RLock()
	timeout := time.Duration(p.cfg.ProbeTimeoutMs) * time.Millisecond
	ttl := time.Duration(p.cfg.CacheTTLSeconds) * time.Second
	singleflightTimeout := time.Duration(p.cfg.SingleflightTimeoutMs) * time.Millisecond
	maxAlternates := p.cfg.MaxAlternates
	whitelist, blacklist := p.whitelist, p.blacklist
	p.mu.RUnlock()
	if maxAlternates <= 0 {
		maxAlternates = defaultMaxAlternates
	}

	candidates = filterCandidates(dedupCandidates(candidates), whitelist, blacklist)
	if len(candidates) == 0 {
		return CacheSlot{}, nil
	}

	sampleCtx := ctx
	if singleflightTimeout > 0 {
		var cancel context.CancelFunc
		sampleCtx, cancel = context.WithTimeout(ctx, singleflightTimeout)
		defer cancel()
	}

	measured, err := p.sampler.sample(sampleCtx, net.JoinHostPort(host, strconv.Itoa(int(port))), candidates, timeout)
	if err != nil {
		return CacheSlot{}, err
	}

	now := time.Now()
	stats, ok := rankCandidates(measured, maxAlternates, now, ttl)
	if !ok {
		p.bus.Publish(events.IpPoolRefresh{Host: host, Port: port, Success: false, Reason: "all_candidates_failed"})
		return CacheSlot{}, nil
	}

	key := CacheKey{Host: host, Port: port}
	// Carry each IP's breaker state over from the previous slot so a re-probe
	// does not reset a trip, and rank untripped candidates ahead of tripped.
	if prev, ok := p.cache.get(key, now); ok {
		old := append([]Stat{prev.Best}, prev.Alternates...)
		for i := range stats {
			for _, o := range old {
				if o.IP == stats[i].IP {
					stats[i].ConsecutiveFail, stats[i].Window, stats[i].TrippedUntil = o.ConsecutiveFail, o.Window, o.TrippedUntil
				}
			}
		}
		sort.SliceStable(stats, func(i, j int) bool { return !stats[i].Tripped(now) && stats[j].Tripped(now) })
	}

	slot := CacheSlot{Best: stats[0], Alternates: stats[1:]}
	p.cache.put(key, slot)
	p.bus.Publish(events.IpPoolRefresh{Host: host, Port: port, Success: true, Reason: string(slot.Best.Source)})
	return slot, nil
}

// rankCandidates sorts the successfully-measured candidates by latency and
// returns up to 1+maxAlternates Stat records: the fastest becomes Best, the
// rest are retained as alternates for retry selection (spec.md §4.1
// "the fastest successful probe becomes best; the next-N are retained as
// alternates").
func rankCandidates(measured []measuredCandidate, maxAlternates int, now time.Time, ttl time.Duration) ([]Stat, bool) {
	ok := make([]measuredCandidate, 0, len(measured))
	for _, m := range measured {
		if m.err == nil {
			ok = append(ok, m)
		}
	}
	if len(ok) == 0 {
		return nil, false
	}
	sort.Slice(ok, func(i, j int) bool { return ok[i].latency < ok[j].latency })

	n := len(ok)
	if n > maxAlternates+1 {
		n = maxAlternates + 1
	}
	stats := make([]Stat, n)
	for i := 0; i < n; i++ {
		stats[i] = Stat{
			IP:         ok[i].IP,
			Source:     ok[i].Source,
			LatencyMs:  uint32(ok[i].latency.Milliseconds()),
			MeasuredAt: now,
			ExpiresAt:  now.Add(ttl),
		}
	}
	return stats, true
}

// reportOutcome feeds a real connection attempt's success/failure back into
// the circuit breaker for (host, port, ip) (spec.md §4.1 "report_outcome").
// ip may be Best or one of the slot's alternates; whichever entry matches is
// the one scored, so a successful alternate doesn't get its breaker history
// conflated with Best's.
func (p *Pool) reportOutcome(host string, port uint16, ip string, source Source, success bool) {
	if ip == "" {
		return
	}
	key := CacheKey{Host: host, Port: port}
	now := time.Now()

	slot, ok := p.cache.get(key, now)
	if !ok {
		slot = CacheSlot{Best: Stat{IP: ip, Source: source}}
	}

	p.mu.RLock()
	breaker := p.cfg.Breaker
	breaker.Enabled = p.cfg.CircuitBreakerEnabled
	p.mu.RUnlock()

	target := &slot.Best
	if slot.Best.IP != ip {
		for i := range slot.Alternates {
			if slot.Alternates[i].IP == ip {
				target = &slot.Alternates[i]
				break
			}
		}
	}

	hadTrip := !target.TrippedUntil.IsZero()
	tripped := recordOutcome(target, breaker, success, now)
	p.cache.put(key, slot)

	if tripped {
		p.bus.Publish(events.IpPoolIpTripped{IP: target.IP, Reason: "circuit_breaker"})
	} else if success && hadTrip && !target.Tripped(now) {
		p.bus.Publish(events.IpPoolIpRecovered{IP: target.IP})
	}
}

// UpdateConfig applies a new configuration, resizing the cache if
// max_cache_entries changed (spec.md §4.1 "update_config").
func (p *Pool) UpdateConfig(cfg Config) {
	p.mu.Lock()
	old := p.cfg
	p.cfg = cfg
	p.mu.Unlock()

	if cfg.MaxCacheEntries != old.MaxCacheEntries {
		p.cache.resize(cfg.MaxCacheEntries)
	}
	p.bus.Publish(events.IpPoolConfigUpdate{Summary: "ip_pool config updated"})
}

// MaintenanceTick sweeps expired cache entries and clears breaker trips
// whose cooldown has elapsed (spec.md §4.1 "maintenance_tick").
func (p *Pool) MaintenanceTick() {
	now := time.Now()
	for _, key := range p.cache.keys() {
		slot, ok := p.cache.get(key, now)
		if !ok {
			continue
		}
		if slot.Best.TrippedUntil.IsZero() || slot.Best.Tripped(now) {
			continue
		}
		slot.Best.TrippedUntil = time.Time{}
		p.cache.put(key, slot)
		p.bus.Publish(events.IpPoolIpRecovered{IP: slot.Best.IP})
	}
}
