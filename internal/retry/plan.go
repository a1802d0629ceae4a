package retry

import (
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Plan is the RetryPlan of spec.md §4.4: {max, base_ms, factor, jitter}.
type Plan struct {
	Max    uint32  `mapstructure:"max"`
	BaseMs uint64  `mapstructure:"base_ms"`
	Factor float64 `mapstructure:"factor"`
	Jitter bool    `mapstructure:"jitter"`
}

// DefaultPlan mirrors the global retry.* configuration defaults
// (spec.md §6 configuration knobs).
func DefaultPlan() Plan {
	return Plan{Max: 6, BaseMs: 300, Factor: 2.0, Jitter: true}
}

// ShouldRetry reports whether another attempt is warranted: attemptsSoFar
// (1-indexed count already made) is less than Max, and category is
// retryable (spec.md §4.4).
func (p Plan) ShouldRetry(attemptsSoFar uint32, category Category) bool {
	return attemptsSoFar < p.Max && Retryable(category)
}

// Delay computes the backoff for attempt n (1-indexed), per spec.md §4.4 and
// concrete scenario S4: delay = base_ms * factor^(n-1), optionally
// multiplied by a uniform [0.5, 1.5) jitter factor. The exponential growth
// itself is computed by stepping a cenkalti/backoff/v4 ExponentialBackOff n
// times with its own randomization disabled; spec.md's jitter is applied on
// top so the testable [0.5, 1.5) bound stays exact. rng may be nil to use
// the package-level source (tests pass a seeded *rand.Rand for
// determinism).
func (p Plan) Delay(n uint32, rng *rand.Rand) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(p.BaseMs) * time.Millisecond
	b.Multiplier = p.Factor
	b.RandomizationFactor = 0
	b.MaxInterval = 24 * time.Hour // effectively uncapped; Plan.Max bounds attempt count instead
	b.MaxElapsedTime = 0
	b.Reset() // re-sync currentInterval with InitialInterval set above

	var d time.Duration
	for i := uint32(0); i < n; i++ {
		d = b.NextBackOff()
	}

	if p.Jitter {
		var j float64
		if rng != nil {
			j = 0.5 + rng.Float64()
		} else {
			j = 0.5 + rand.Float64()
		}
		d = time.Duration(float64(d) * j)
	}
	return d
}
