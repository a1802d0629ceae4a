// Package eventtest provides assertion helpers over a MemoryBus, mirroring
// the teacher corpus's practice of shared internal/*test helper packages and
// grounded on the original Rust test suite's tests/common/event_assert.rs
// and tests/common/strategy_support.rs (see original_source/_INDEX.md).
package eventtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gitmesh/gitmesh/internal/events"
)

// RequireExactlyOneTerminal asserts that the events recorded for taskID
// contain exactly one terminal event (Completed, Failed, or Canceled), and
// that no terminal event precedes a TaskStarted for the same id
// (spec.md §8 property 1).
func RequireExactlyOneTerminal(t *testing.T, bus *events.MemoryBus, taskID string) events.Event {
	t.Helper()
	evs := bus.ForTask(taskID)

	sawStarted := false
	var terminal events.Event
	terminalCount := 0
	for _, ev := range evs {
		switch ev.(type) {
		case events.TaskStarted:
			sawStarted = true
		case events.TaskCompleted, events.TaskFailed, events.TaskCanceled:
			require.True(t, sawStarted, "terminal event observed before TaskStarted for %s", taskID)
			terminal = ev
			terminalCount++
		}
	}
	require.Equal(t, 1, terminalCount, "expected exactly one terminal event for task %s, events: %#v", taskID, evs)
	return terminal
}

// RequireMonotonicProgress asserts that, within each phase, TaskProgress
// percent values for taskID never decrease (spec.md §8 property 1).
func RequireMonotonicProgress(t *testing.T, bus *events.MemoryBus, taskID string) {
	t.Helper()
	last := map[string]uint32{}
	for _, ev := range bus.ForTask(taskID) {
		p, ok := ev.(events.TaskProgress)
		if !ok {
			continue
		}
		if prev, ok := last[p.Phase]; ok {
			require.GreaterOrEqual(t, p.Percent, prev, "percent regressed within phase %q", p.Phase)
		}
		last[p.Phase] = p.Percent
	}
}

// RetryCount returns the number of RetryApplied policy events observed for
// taskID, used to assert retry ordering (spec.md §8 property 8).
func RetryCount(bus *events.MemoryBus, taskID string) int {
	n := 0
	for _, ev := range bus.ForTask(taskID) {
		if _, ok := ev.(events.RetryApplied); ok {
			n++
		}
	}
	return n
}
