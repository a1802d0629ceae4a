package ippool

import "time"

// breakerConfig holds the circuit breaker thresholds from app.toml's
// ip_pool.* knobs (spec.md §4.1 "circuit breaker").
type breakerConfig struct {
	ConsecutiveFailThreshold uint32 `mapstructure:"consecutive_fail_threshold"`
	WindowFailureRatePct     uint8  `mapstructure:"window_failure_rate_pct"`
	WindowMinSamples         uint32 `mapstructure:"window_min_samples"`
	FailureWindowSeconds     uint32 `mapstructure:"failure_window_seconds"`
	CooldownSeconds          uint32 `mapstructure:"cooldown_seconds"`

	// Enabled mirrors ip_pool.circuit_breaker_enabled (spec.md §4.1
	// "disabled breakers, by config, never trip"); it is copied in from
	// Config.CircuitBreakerEnabled by the caller, not decoded directly onto
	// this nested struct.
	Enabled bool
}

// breakerRingCap bounds the rolling window's sample slice independent of
// FailureWindowSeconds, the same ring-plus-time-cutoff combination
// internal/transport's auto-disable gate uses (pruneWindow in
// internal/transport/autodisable.go), so one pathological burst of samples
// within the window can't grow the slice unboundedly.
const breakerRingCap = 50

// pruneFailureWindow drops samples older than window seconds before now,
// mirroring internal/transport/autodisable.go's pruneWindow so the two
// structurally identical breakers use the same time-based approach instead
// of one being time-windowed and the other count-windowed.
func pruneFailureWindow(samples []WindowSample, now time.Time, window time.Duration) []WindowSample {
	if window <= 0 {
		return samples
	}
	cutoff := now.Add(-window)
	i := 0
	for i < len(samples) && samples[i].At.Before(cutoff) {
		i++
	}
	return samples[i:]
}

// recordOutcome updates st's circuit breaker counters for one probe/connect
// result, tripping TrippedUntil when either threshold is crossed:
// consecutive failures, or a high failure rate over the recent
// FailureWindowSeconds window. Reports whether this call caused the breaker
// to trip (it was not tripped before, and is now). A breaker with
// cfg.Enabled false still records the outcome (so counters stay warm if
// re-enabled) but never trips.
func recordOutcome(st *Stat, cfg breakerConfig, success bool, now time.Time) (tripped bool) {
	wasTripped := st.Tripped(now)

	if success {
		st.ConsecutiveFail = 0
	} else {
		st.ConsecutiveFail++
	}

	st.Window = append(st.Window, WindowSample{At: now, Failed: !success})
	st.Window = pruneFailureWindow(st.Window, now, time.Duration(cfg.FailureWindowSeconds)*time.Second)
	if len(st.Window) > breakerRingCap {
		st.Window = st.Window[len(st.Window)-breakerRingCap:]
	}

	if !cfg.Enabled {
		if success {
			st.TrippedUntil = time.Time{}
		}
		return false
	}

	trip := false
	if cfg.ConsecutiveFailThreshold > 0 && st.ConsecutiveFail >= cfg.ConsecutiveFailThreshold {
		trip = true
	}
	if cfg.WindowMinSamples > 0 && uint32(len(st.Window)) >= cfg.WindowMinSamples {
		var failures uint32
		for _, s := range st.Window {
			if s.Failed {
				failures++
			}
		}
		ratio := failures * 100 / uint32(len(st.Window))
		if uint8(ratio) >= cfg.WindowFailureRatePct {
			trip = true
		}
	}

	if trip {
		st.TrippedUntil = now.Add(time.Duration(cfg.CooldownSeconds) * time.Second)
	} else if success {
		st.TrippedUntil = time.Time{}
	}

	return !wasTripped && st.Tripped(now)
}
