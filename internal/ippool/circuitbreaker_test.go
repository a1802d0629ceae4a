package ippool

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordOutcome_ConsecutiveFailureTrips(t *testing.T) {
	cfg := breakerConfig{ConsecutiveFailThreshold: 3, CooldownSeconds: 30, Enabled: true}
	st := Stat{}
	now := time.Unix(1_700_000_000, 0)

	require.False(t, recordOutcome(&st, cfg, false, now))
	require.False(t, recordOutcome(&st, cfg, false, now))
	require.True(t, recordOutcome(&st, cfg, false, now), "3rd consecutive failure trips the breaker")
	require.True(t, st.Tripped(now))
	require.False(t, st.Tripped(now.Add(31*time.Second)), "cooldown elapses")
}

func TestRecordOutcome_SuccessResetsConsecutiveCount(t *testing.T) {
	cfg := breakerConfig{ConsecutiveFailThreshold: 2, CooldownSeconds: 10, Enabled: true}
	st := Stat{}
	now := time.Unix(1_700_000_000, 0)

	recordOutcome(&st, cfg, false, now)
	recordOutcome(&st, cfg, true, now)
	require.Equal(t, uint32(0), st.ConsecutiveFail)
	require.False(t, recordOutcome(&st, cfg, false, now))
}

func TestRecordOutcome_WindowFailureRateTrips(t *testing.T) {
	cfg := breakerConfig{WindowFailureRatePct: 50, WindowMinSamples: 4, CooldownSeconds: 30, Enabled: true}
	st := Stat{}
	now := time.Unix(1_700_000_000, 0)

	require.False(t, recordOutcome(&st, cfg, true, now))
	require.False(t, recordOutcome(&st, cfg, true, now))
	require.False(t, recordOutcome(&st, cfg, false, now))
	require.True(t, recordOutcome(&st, cfg, false, now), "2/4 = 50% crosses the threshold")
}

func TestRecordOutcome_SuccessClearsTrip(t *testing.T) {
	cfg := breakerConfig{ConsecutiveFailThreshold: 1, CooldownSeconds: 9999, Enabled: true}
	st := Stat{}
	now := time.Unix(1_700_000_000, 0)

	recordOutcome(&st, cfg, false, now)
	require.True(t, st.Tripped(now))

	recordOutcome(&st, cfg, true, now)
	require.False(t, st.Tripped(now))
}

func TestRecordOutcome_DisabledBreakerNeverTrips(t *testing.T) {
	cfg := breakerConfig{ConsecutiveFailThreshold: 1, CooldownSeconds: 30, Enabled: false}
	st := Stat{}
	now := time.Unix(1_700_000_000, 0)

	require.False(t, recordOutcome(&st, cfg, false, now))
	require.False(t, recordOutcome(&st, cfg, false, now))
	require.False(t, recordOutcome(&st, cfg, false, now))
	require.False(t, st.Tripped(now))
}

func TestRecordOutcome_WindowPrunesByElapsedTime(t *testing.T) {
	cfg := breakerConfig{WindowFailureRatePct: 50, WindowMinSamples: 2, FailureWindowSeconds: 60, CooldownSeconds: 30, Enabled: true}
	st := Stat{}
	now := time.Unix(1_700_000_000, 0)

	recordOutcome(&st, cfg, false, now)
	recordOutcome(&st, cfg, false, now)
	require.Len(t, st.Window, 2)

	// Past the 60s window, the two old failures age out; a single fresh
	// success should not immediately trip (only one sample in window).
	later := now.Add(90 * time.Second)
	require.False(t, recordOutcome(&st, cfg, true, later))
	require.Len(t, st.Window, 1)
}
