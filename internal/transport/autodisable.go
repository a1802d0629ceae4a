package transport

import (
	"sync"
	"time"
)

const (
	autoDisableRingCap   = 20
	autoDisableWindow    = 120 * time.Second
	autoDisableMinSample = 5
)

// AutoDisableState is the process-wide gate of spec.md §4.2: a ring buffer
// of the last N (capped 20, 120s window, min 5 samples) fake-SNI attempts.
// When the failure ratio reaches thresholdPct, fake SNI is disabled for
// cooldownSec, recovering on the first attempt recorded after cooldown
// expires. Single mutex guards the ring and the disabled-until timestamp
// (spec.md §5).
type AutoDisableState struct {
	mu             sync.Mutex
	thresholdPct   uint8
	cooldown       time.Duration
	samples        []sample
	disabledUntil  time.Time
	recoveredCount uint64
}

type sample struct {
	at     time.Time
	failed bool
}

func NewAutoDisableState(thresholdPct uint8, cooldownSec uint32) *AutoDisableState {
	return &AutoDisableState{thresholdPct: thresholdPct, cooldown: time.Duration(cooldownSec) * time.Second}
}

// Outcome reports what RecordFakeAttempt observed beyond the raw bool.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeTriggered
	OutcomeRecovered
)

// RecordFakeAttempt records a fake-SNI attempt's outcome at "now" and
// returns whether this call tripped the gate (Triggered) or observed
// cooldown expiry (Recovered), per spec.md §4.2 and §8 property 5 /
// scenario S5.
func (a *AutoDisableState) RecordFakeAttempt(now time.Time, failed bool) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	wasDisabled := !a.disabledUntil.IsZero() && now.Before(a.disabledUntil)
	recovered := !a.disabledUntil.IsZero() && !now.Before(a.disabledUntil)

	a.samples = append(a.samples, sample{at: now, failed: failed})
	a.samples = pruneWindow(a.samples, now)
	if len(a.samples) > autoDisableRingCap {
		a.samples = a.samples[len(a.samples)-autoDisableRingCap:]
	}

	if recovered {
		a.disabledUntil = time.Time{}
		a.recoveredCount++
		return OutcomeRecovered
	}

	if wasDisabled {
		return OutcomeNone
	}

	if len(a.samples) < autoDisableMinSample {
		return OutcomeNone
	}

	var failures int
	for _, s := range a.samples {
		if s.failed {
			failures++
		}
	}
	ratio := float64(failures) / float64(len(a.samples))
	if ratio*100 >= float64(a.thresholdPct) {
		a.disabledUntil = now.Add(a.cooldown)
		return OutcomeTriggered
	}
	return OutcomeNone
}

func pruneWindow(samples []sample, now time.Time) []sample {
	cutoff := now.Add(-autoDisableWindow)
	i := 0
	for i < len(samples) && samples[i].at.Before(cutoff) {
		i++
	}
	return samples[i:]
}

// IsFakeDisabled reports whether fake SNI is currently gated off.
func (a *AutoDisableState) IsFakeDisabled(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.disabledUntil.IsZero() && now.Before(a.disabledUntil)
}

// RecoveredCount is the number of times the gate has recovered from
// cooldown, for observability.
func (a *AutoDisableState) RecoveredCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recoveredCount
}
