package soak

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestThresholdSummary_ReadyWhenAllChecksPass(t *testing.T) {
	s := NewThresholdSummary(AtLeast(0.995, 0.99), AtMost(0.01, 0.05), nil, nil, nil)
	require.True(t, s.Ready)
	require.Empty(t, s.FailingChecks)
}

func TestThresholdSummary_FailingChecksNamesEveryViolation(t *testing.T) {
	ipPool := AtLeast(0.5, 0.85)
	autoDisable := AtMost(2, 0)
	s := NewThresholdSummary(AtLeast(0.90, 0.99), AtMost(0.2, 0.05), &ipPool, &autoDisable, nil)

	require.False(t, s.Ready)
	if diff := cmp.Diff([]string{"success_rate", "fake_fallback_rate", "ip_pool_refresh_success_rate", "auto_disable_triggered"}, s.FailingChecks); diff != "" {
		t.Fatalf("unexpected failing checks (-want +got):\n%s", diff)
	}
}

func TestBuildComparisonSummary_FlagsSuccessRateRegression(t *testing.T) {
	target := 0.15
	baseline := &Report{
		ThresholdsOut: ThresholdSummary{SuccessRate: AtLeast(0.995, 0.99)},
		Timing: map[string]TimingSummary{
			"GitClone": {TotalMs: &FieldStats{P50: 1000}},
		},
		Options: OptionsSnapshot{Thresholds: Thresholds{MinLatencyImprovement: &target}},
	}

	current := &Report{
		ThresholdsOut: ThresholdSummary{SuccessRate: AtLeast(0.80, 0.99)},
		Timing: map[string]TimingSummary{
			"GitClone": {TotalMs: &FieldStats{P50: 1200}},
		},
		Options: OptionsSnapshot{Thresholds: Thresholds{MinLatencyImprovement: &target}},
	}

	summary := BuildComparisonSummary("baseline.json", baseline, current)
	require.Contains(t, summary.RegressionFlags, "success_rate.pass_regressed")
	require.Contains(t, summary.RegressionFlags, "success_rate.decreased")
	require.NotNil(t, summary.GitCloneTotalP50Improvement)
	require.True(t, *summary.GitCloneTotalP50Improvement < 0)
	require.Contains(t, summary.RegressionFlags, "latency_improvement.decreased")
}
