package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// S5 — Auto-disable trigger & recover.
func TestAutoDisable_TriggerAndRecover(t *testing.T) {
	a := NewAutoDisableState(50, 30)
	start := time.Unix(1_700_000_000, 0)

	for i := 0; i < 4; i++ {
		require.Equal(t, OutcomeNone, a.RecordFakeAttempt(start.Add(time.Duration(i)*time.Second), false))
	}

	var last Outcome
	for i := 0; i < 3; i++ {
		last = a.RecordFakeAttempt(start.Add(time.Duration(4+i)*time.Second), true)
		require.Equal(t, OutcomeNone, last)
	}
	// 4th failure (8th sample overall) trips the gate.
	last = a.RecordFakeAttempt(start.Add(7*time.Second), true)
	require.Equal(t, OutcomeTriggered, last)
	require.True(t, a.IsFakeDisabled(start.Add(8*time.Second)))

	recoverAt := start.Add(7 * time.Second).Add(31 * time.Second)
	require.Equal(t, OutcomeRecovered, a.RecordFakeAttempt(recoverAt, false))
	require.False(t, a.IsFakeDisabled(recoverAt))
}

func TestAutoDisable_RequiresMinSamples(t *testing.T) {
	a := NewAutoDisableState(50, 30)
	now := time.Now()
	for i := 0; i < 4; i++ {
		require.Equal(t, OutcomeNone, a.RecordFakeAttempt(now, true))
	}
	require.False(t, a.IsFakeDisabled(now))
}

func TestAutoDisable_WindowExpiry(t *testing.T) {
	a := NewAutoDisableState(50, 30)
	start := time.Unix(1_700_000_000, 0)
	for i := 0; i < 4; i++ {
		a.RecordFakeAttempt(start.Add(time.Duration(i)*time.Second), true)
	}
	// This sample is outside the 120s window from the first 4, so only 1
	// sample is in-window: not enough to trip.
	later := start.Add(200 * time.Second)
	require.Equal(t, OutcomeNone, a.RecordFakeAttempt(later, true))
}
