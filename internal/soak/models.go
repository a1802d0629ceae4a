// Package soak implements the long-running push/fetch/clone readiness
// harness (spec.md §3's soak-testing supplement, grounded on
// original_source's src-tauri/src/soak package): it drives the real
// internal/tasks.Registry against a throwaway local origin repository for
// many iterations, aggregates the event bus's Strategy/Policy/Transport
// events into a report, and checks the report against a set of readiness
// thresholds.
package soak

import "github.com/gitmesh/gitmesh/internal/retry"

// Thresholds are the readiness gates a soak report is checked against.
type Thresholds struct {
	MinSuccessRate               float64
	MaxFakeFallbackRate          float64
	MinIpPoolRefreshSuccessRate  float64
	MaxAutoDisableTriggered      uint64
	MinLatencyImprovement        *float64
}

// DefaultThresholds mirrors the original implementation's defaults.
func DefaultThresholds() Thresholds {
	improvement := 0.15
	return Thresholds{
		MinSuccessRate:              0.99,
		MaxFakeFallbackRate:         0.05,
		MinIpPoolRefreshSuccessRate: 0.85,
		MaxAutoDisableTriggered:     0,
		MinLatencyImprovement:       &improvement,
	}
}

// Options controls one soak run.
type Options struct {
	Iterations     uint32
	KeepClones     bool
	BaseDir        string // empty creates a temp dir
	BaselineReport string // empty skips baseline comparison
	Thresholds     Thresholds
	RetryPlan      retry.Plan
}

// OptionsSnapshot is the options actually used, for inclusion in Report.
type OptionsSnapshot struct {
	Iterations     uint32
	KeepClones     bool
	WorkspaceDir   string
	BaselineReport string
	Thresholds     Thresholds
}

type Report struct {
	StartedUnix   int64
	FinishedUnix  int64
	DurationSecs  int64
	Options       OptionsSnapshot
	Iterations    uint32
	Operations    map[string]OperationSummary
	Timing        map[string]TimingSummary
	Fallback      FallbackSummary
	AutoDisable   AutoDisableSummary
	CertFpEvents  uint64
	IpPool        IpPoolSummary
	Totals        TotalsSummary
	ThresholdsOut ThresholdSummary
	Comparison    *ComparisonSummary
}

type OperationSummary struct {
	Total       uint64
	Completed   uint64
	Failed      uint64
	Canceled    uint64
	SuccessRate float64
}

type TimingSummary struct {
	Samples              int
	UsedFake             int
	CertFpChangedSamples int
	FinalStageCounts     map[string]uint64
	ConnectMs            *FieldStats
	TlsMs                *FieldStats
	FirstByteMs          *FieldStats
	TotalMs              *FieldStats
}

type FieldStats struct {
	Count int
	Min   uint32
	Max   uint32
	Avg   float64
	P50   uint32
	P95   uint32
}

type FallbackSummary struct {
	Counts       map[string]uint64
	FakeToReal   uint64
	RealToDefault uint64
}

type AutoDisableSummary struct {
	Triggered uint64
	Recovered uint64
}

type IpPoolSummary struct {
	SelectionTotal       uint64
	SelectionByStrategy  map[string]uint64
	RefreshTotal         uint64
	RefreshSuccess       uint64
	RefreshFailure       uint64
	RefreshSuccessRate   float64
}

type TotalsSummary struct {
	TotalOperations uint64
	Completed       uint64
	Failed          uint64
	Canceled        uint64
}

type ThresholdCheck struct {
	Pass       bool
	Actual     float64
	Expected   float64
	Comparator string
	Details    string
}

func AtLeast(actual, expected float64) ThresholdCheck {
	return ThresholdCheck{Pass: actual >= expected, Actual: actual, Expected: expected, Comparator: ">="}
}

func AtMost(actual, expected float64) ThresholdCheck {
	return ThresholdCheck{Pass: actual <= expected, Actual: actual, Expected: expected, Comparator: "<="}
}

func NotApplicable(expected float64, comparator, reason string) ThresholdCheck {
	return ThresholdCheck{Pass: false, Expected: expected, Comparator: comparator, Details: reason}
}

type ThresholdSummary struct {
	SuccessRate              ThresholdCheck
	FakeFallbackRate         ThresholdCheck
	IpPoolRefreshSuccessRate *ThresholdCheck
	AutoDisableTriggered     *ThresholdCheck
	LatencyImprovement       *ThresholdCheck
	Ready                    bool
	FailingChecks            []string
}

func NewThresholdSummary(successRate, fakeFallbackRate ThresholdCheck, ipPoolRefresh, autoDisable, latency *ThresholdCheck) ThresholdSummary {
	s := ThresholdSummary{
		SuccessRate:              successRate,
		FakeFallbackRate:         fakeFallbackRate,
		IpPoolRefreshSuccessRate: ipPoolRefresh,
		AutoDisableTriggered:     autoDisable,
		LatencyImprovement:       latency,
	}
	s.recompute()
	return s
}

func (s *ThresholdSummary) SetLatencyImprovement(check ThresholdCheck) {
	s.LatencyImprovement = &check
	s.recompute()
}

func (s *ThresholdSummary) recompute() {
	var failing []string
	if !s.SuccessRate.Pass {
		failing = append(failing, "success_rate")
	}
	if !s.FakeFallbackRate.Pass {
		failing = append(failing, "fake_fallback_rate")
	}
	if s.IpPoolRefreshSuccessRate != nil && !s.IpPoolRefreshSuccessRate.Pass {
		failing = append(failing, "ip_pool_refresh_success_rate")
	}
	if s.AutoDisableTriggered != nil && !s.AutoDisableTriggered.Pass {
		failing = append(failing, "auto_disable_triggered")
	}
	if s.LatencyImprovement != nil && !s.LatencyImprovement.Pass {
		failing = append(failing, "latency_improvement")
	}
	s.Ready = len(failing) == 0
	s.FailingChecks = failing
}

type ComparisonSummary struct {
	BaselinePath                 string
	SuccessRateDelta              float64
	FakeFallbackRateDelta          float64
	CertFpEventsDelta              int64
	AutoDisableTriggeredDelta      int64
	AutoDisableRecoveredDelta      int64
	RegressionFlags                []string
	GitCloneTotalP50Improvement    *float64
	GitCloneTotalP50Current        *float64
	GitCloneTotalP50Baseline       *float64
}

// BuildComparisonSummary diffs current against a previously recorded
// baseline report, flagging any regression in the readiness signals.
func BuildComparisonSummary(baselinePath string, baseline, current *Report) ComparisonSummary {
	successDelta := current.ThresholdsOut.SuccessRate.Actual - baseline.ThresholdsOut.SuccessRate.Actual
	fallbackDelta := current.ThresholdsOut.FakeFallbackRate.Actual - baseline.ThresholdsOut.FakeFallbackRate.Actual
	certDelta := int64(current.CertFpEvents) - int64(baseline.CertFpEvents)
	triggeredDelta := int64(current.AutoDisable.Triggered) - int64(baseline.AutoDisable.Triggered)
	recoveredDelta := int64(current.AutoDisable.Recovered) - int64(baseline.AutoDisable.Recovered)

	var flags []string
	if baseline.ThresholdsOut.SuccessRate.Pass && !current.ThresholdsOut.SuccessRate.Pass {
		flags = append(flags, "success_rate.pass_regressed")
	}
	if successDelta < -0.0001 {
		flags = append(flags, "success_rate.decreased")
	}
	if baseline.ThresholdsOut.FakeFallbackRate.Pass && !current.ThresholdsOut.FakeFallbackRate.Pass {
		flags = append(flags, "fake_fallback_rate.pass_regressed")
	}
	if fallbackDelta > 0.0001 {
		flags = append(flags, "fake_fallback_rate.increased")
	}
	if triggeredDelta > 0 {
		flags = append(flags, "auto_disable.triggered_increase")
	}

	var baselineP50, currentP50, improvement *float64
	if bt, ok := baseline.Timing["GitClone"]; ok && bt.TotalMs != nil {
		v := float64(bt.TotalMs.P50)
		baselineP50 = &v
	}
	if ct, ok := current.Timing["GitClone"]; ok && ct.TotalMs != nil {
		v := float64(ct.TotalMs.P50)
		currentP50 = &v
	}
	if baselineP50 != nil && currentP50 != nil && *baselineP50 > 0 {
		v := (*baselineP50 - *currentP50) / *baselineP50
		improvement = &v
		if expected := current.Options.Thresholds.MinLatencyImprovement; expected != nil && v+1e-6 < *expected {
			flags = append(flags, "latency_improvement.decreased")
		}
	}

	return ComparisonSummary{
		BaselinePath:                baselinePath,
		SuccessRateDelta:            successDelta,
		FakeFallbackRateDelta:       fallbackDelta,
		CertFpEventsDelta:           certDelta,
		AutoDisableTriggeredDelta:   triggeredDelta,
		AutoDisableRecoveredDelta:   recoveredDelta,
		RegressionFlags:             flags,
		GitCloneTotalP50Improvement: improvement,
		GitCloneTotalP50Current:     currentP50,
		GitCloneTotalP50Baseline:    baselineP50,
	}
}
