package ippool

import (
	"context"
	"testing"
	"time"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/require"

	"github.com/gitmesh/gitmesh/internal/events"
)

func newTestPool(t *testing.T, prober Prober, cfg Config) *Pool {
	t.Helper()
	bus := events.NewBus(logtest.Scoped(t))
	resolver := NewBuiltinResolver(map[string][]string{"github.com": {"10.0.0.1"}})
	return NewPool(logtest.Scoped(t), bus, []Resolver{resolver}, prober, cfg)
}

func TestPool_PickBest_DisabledReturnsSystemDefault(t *testing.T) {
	p := newTestPool(t, &fakeProber{}, Config{Enabled: false})
	sel, err := p.PickBest(context.Background(), "github.com", 443)
	require.NoError(t, err)
	require.Equal(t, StrategySystemDefault, sel.Strategy)
}

func TestPool_PickBest_CachesBestCandidate(t *testing.T) {
	prober := &fakeProber{latencies: map[string]time.Duration{"10.0.0.1": 5 * time.Millisecond}}
	p := newTestPool(t, prober, Config{
		Enabled: true, MaxCacheEntries: 10, CacheTTLSeconds: 60,
		ProbeTimeoutMs: 500, MaxConcurrentProbes: 4,
	})

	sel, err := p.PickBest(context.Background(), "github.com", 443)
	require.NoError(t, err)
	require.Equal(t, StrategyCached, sel.Strategy)
	require.Equal(t, "10.0.0.1", sel.IP)

	// Second call should hit the cache without re-probing (same result).
	sel2, err := p.PickBest(context.Background(), "github.com", 443)
	require.NoError(t, err)
	require.Equal(t, sel.IP, sel2.IP)
}

func TestPool_PickBest_RetainsAlternates(t *testing.T) {
	bus := events.NewBus(logtest.Scoped(t))
	resolver := NewBuiltinResolver(map[string][]string{
		"github.com": {"10.0.0.1", "10.0.0.2", "10.0.0.3"},
	})
	prober := &fakeProber{latencies: map[string]time.Duration{
		"10.0.0.1": 30 * time.Millisecond,
		"10.0.0.2": 10 * time.Millisecond,
		"10.0.0.3": 20 * time.Millisecond,
	}}
	p := NewPool(logtest.Scoped(t), bus, []Resolver{resolver}, prober, Config{
		Enabled: true, MaxCacheEntries: 10, CacheTTLSeconds: 60,
		ProbeTimeoutMs: 500, MaxConcurrentProbes: 4, MaxAlternates: 2,
	})

	sel, err := p.PickBest(context.Background(), "github.com", 443)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.2", sel.IP, "fastest probe wins")
	require.Len(t, sel.Alternates, 2)
	require.Equal(t, "10.0.0.3", sel.Alternates[0].IP)
	require.Equal(t, "10.0.0.1", sel.Alternates[1].IP)
}

func TestPool_ReportOutcome_TripsToSystemDefault(t *testing.T) {
	prober := &fakeProber{latencies: map[string]time.Duration{"10.0.0.1": 5 * time.Millisecond}}
	cfg := Config{
		Enabled: true, MaxCacheEntries: 10, CacheTTLSeconds: 60,
		ProbeTimeoutMs: 500, MaxConcurrentProbes: 4,
		CircuitBreakerEnabled: true,
		Breaker:               breakerConfig{ConsecutiveFailThreshold: 2, CooldownSeconds: 30},
	}
	p := newTestPool(t, prober, cfg)

	sel, err := p.PickBest(context.Background(), "github.com", 443)
	require.NoError(t, err)
	require.Equal(t, StrategyCached, sel.Strategy)

	p.reportOutcome("github.com", 443, sel.IP, sel.Source, false)
	p.reportOutcome("github.com", 443, sel.IP, sel.Source, false)

	sel2, err := p.PickBest(context.Background(), "github.com", 443)
	require.NoError(t, err)
	require.Equal(t, StrategySystemDefault, sel2.Strategy, "tripped IP falls back to system default")
}

func TestPool_UpdateConfig_ResizesCache(t *testing.T) {
	p := newTestPool(t, &fakeProber{}, Config{Enabled: true, MaxCacheEntries: 10})
	p.cache.put(CacheKey{Host: "a.example.com", Port: 443}, CacheSlot{Best: Stat{IP: "1.1.1.1"}})
	p.cache.put(CacheKey{Host: "b.example.com", Port: 443}, CacheSlot{Best: Stat{IP: "2.2.2.2"}})
	p.cache.put(CacheKey{Host: "c.example.com", Port: 443}, CacheSlot{Best: Stat{IP: "3.3.3.3"}})

	p.UpdateConfig(Config{Enabled: true, MaxCacheEntries: 2})
	require.LessOrEqual(t, p.cache.inner.Len(), 2)
}

func TestPool_MaintenanceTick_ClearsExpiredTrip(t *testing.T) {
	p := newTestPool(t, &fakeProber{}, Config{Enabled: true, MaxCacheEntries: 10})
	key := CacheKey{Host: "github.com", Port: 443}
	p.cache.put(key, CacheSlot{Best: Stat{IP: "10.0.0.1", TrippedUntil: time.Now().Add(-time.Second)}})

	p.MaintenanceTick()

	slot, ok := p.cache.get(key, time.Now())
	require.True(t, ok)
	require.False(t, slot.Best.Tripped(time.Now()))
}
