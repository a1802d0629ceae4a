package retry

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// S4 — Retry delay with jitter off.
func TestPlanDelay_NoJitter(t *testing.T) {
	p := Plan{Max: 3, BaseMs: 100, Factor: 2.0, Jitter: false}

	require.Equal(t, 100*time.Millisecond, p.Delay(1, nil))
	require.Equal(t, 200*time.Millisecond, p.Delay(2, nil))
	require.Equal(t, 400*time.Millisecond, p.Delay(3, nil))
}

func TestPlanDelay_JitterBounds(t *testing.T) {
	p := Plan{Max: 3, BaseMs: 100, Factor: 2.0, Jitter: true}
	rng := rand.New(rand.NewSource(1))

	d := p.Delay(1, rng)
	require.GreaterOrEqual(t, d, 50*time.Millisecond)
	require.Less(t, d, 150*time.Millisecond)
}

func TestShouldRetry(t *testing.T) {
	p := Plan{Max: 2, Factor: 1, BaseMs: 1}

	require.True(t, p.ShouldRetry(0, CategoryNetwork))
	require.True(t, p.ShouldRetry(1, CategoryNetwork))
	require.False(t, p.ShouldRetry(2, CategoryNetwork), "attempts_so_far must be < max")
	require.False(t, p.ShouldRetry(0, CategoryAuth), "Auth is never retried")
	require.False(t, p.ShouldRetry(0, CategoryCancel), "Cancel is never retried")
	require.False(t, p.ShouldRetry(0, CategoryInternal), "Internal is never retried")
}
