// Package ippool implements the scored IP candidate cache of spec.md §4.1:
// DNS/history/static candidate discovery, concurrent latency probing, a
// per-IP circuit breaker, and a bounded LRU cache of best-known candidates
// per host:port, refreshed by a background preheat loop.
package ippool

import "time"

// Source identifies where a candidate IP came from (spec.md §4.1 "Candidate
// sources").
type Source string

const (
	SourceBuiltin    Source = "Builtin"
	SourceHistory    Source = "History"
	SourceUserStatic Source = "UserStatic"
	SourceDns        Source = "Dns"
	SourceDoh        Source = "Doh"
	SourceDot        Source = "Dot"
	SourceFallback   Source = "Fallback"
)

// Candidate is one IP worth probing for a given host:port, before it has
// been measured.
type Candidate struct {
	Host   string
	Port   uint16
	IP     string
	Source Source
}

// CacheKey identifies a pool slot: one best-known IP per host:port pair
// (spec.md §4.1 "cache key is host:port").
type CacheKey struct {
	Host string
	Port uint16
}

// Stat is the measured, scored record the pool keeps for one IP, used both
// to rank candidates and to drive the per-IP circuit breaker.
type Stat struct {
	IP              string
	Source          Source
	LatencyMs       uint32
	MeasuredAt      time.Time
	ExpiresAt       time.Time
	ConsecutiveFail uint32
	Window          []WindowSample
	TrippedUntil    time.Time
}

// WindowSample is one outcome recorded for the circuit breaker's rolling
// failure-rate window (spec.md §4.1 "windowed failure rate"), timestamped so
// the window can be pruned by elapsed time rather than sample count.
type WindowSample struct {
	At     time.Time
	Failed bool
}

// Tripped reports whether the circuit breaker for this IP is currently open
// (spec.md §4.1 "circuit breaker").
func (s Stat) Tripped(now time.Time) bool {
	return now.Before(s.TrippedUntil)
}

// Expired reports whether this measurement is past its TTL and should be
// re-probed rather than reused (spec.md §4.1 "cache entries expire").
func (s Stat) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// CacheSlot is the per-host:port cache entry of spec.md §3: the current
// best-known IpStat plus a bounded ordered list of alternates retained for
// retry selection when dialing Best fails (spec.md §4.1 "sampling
// algorithm", §4.2 "tries the next candidate").
type CacheSlot struct {
	Best       Stat
	Alternates []Stat
}

// Strategy is the outcome of Pool.PickBest: either a cached candidate, or a
// directive to fall back to the system resolver/transport default.
type Strategy string

const (
	StrategyCached        Strategy = "Cached"
	StrategySystemDefault Strategy = "SystemDefault"
)

// AlternateIP is one next-best candidate carried alongside a Selection, for
// the dialer to try in order if Best's IP fails to connect (spec.md §4.2).
type AlternateIP struct {
	IP     string
	Source Source
}

// Selection is what the transport dialer receives from PickBest.
type Selection struct {
	Strategy   Strategy
	IP         string
	Port       uint16
	Source     Source
	LatencyMs  *uint32
	Alternates []AlternateIP
}
