package soak

import (
	"sort"
	"sync"

	"github.com/gitmesh/gitmesh/internal/events"
)

// aggregator subscribes to the event bus for the duration of a soak run and
// tallies every family of event the report cares about (spec.md §6's event
// schemas), mirroring the original SoakAggregator's counters one field at a
// time instead of replaying a captured event log.
type aggregator struct {
	mu sync.Mutex

	iterations uint32

	opTotal     map[string]uint64
	opCompleted map[string]uint64
	opFailed    map[string]uint64
	opCanceled  map[string]uint64

	timingSamples map[string][]events.AdaptiveTlsTiming

	fallbackCounts map[string]uint64
	fakeToReal     uint64
	realToDefault  uint64

	autoDisableTriggered uint64
	autoDisableRecovered uint64

	certFpEvents uint64

	ipPoolSelectionTotal      uint64
	ipPoolSelectionByStrategy map[string]uint64
	ipPoolRefreshTotal        uint64
	ipPoolRefreshSuccess      uint64
	ipPoolRefreshFailure      uint64
}

func newAggregator(iterations uint32) *aggregator {
	return &aggregator{
		iterations:                iterations,
		opTotal:                   map[string]uint64{},
		opCompleted:               map[string]uint64{},
		opFailed:                  map[string]uint64{},
		opCanceled:                map[string]uint64{},
		timingSamples:             map[string][]events.AdaptiveTlsTiming{},
		fallbackCounts:            map[string]uint64{},
		ipPoolSelectionByStrategy: map[string]uint64{},
	}
}

// Publish implements events.Subscriber. Invoked synchronously on the
// publisher's goroutine, so it must not block (spec.md §4.5).
func (a *aggregator) Publish(ev events.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch e := ev.(type) {
	case events.TaskStarted:
		a.opTotal[e.Kind]++
	case events.TaskCompleted:
		// Kind is not carried on TaskCompleted; the registry's Snapshot is
		// consulted by the runner instead, so completions are tallied there.
	case events.TaskFailed:
	case events.TaskCanceled:
	case events.AdaptiveTlsTiming:
		a.timingSamples[e.Kind] = append(a.timingSamples[e.Kind], e)
	case events.AdaptiveTlsFallback:
		a.fallbackCounts[e.To]++
		switch {
		case e.From == "Fake" && e.To == "Real":
			a.fakeToReal++
		case e.From == "Real" && e.To == "Default":
			a.realToDefault++
		}
	case events.AdaptiveTlsAutoDisable:
		if !e.Enabled {
			a.autoDisableTriggered++
		} else {
			a.autoDisableRecovered++
		}
	case events.CertFingerprintChanged:
		a.certFpEvents++
	case events.IpPoolSelection:
		a.ipPoolSelectionTotal++
		a.ipPoolSelectionByStrategy[e.Strategy]++
	case events.IpPoolRefresh:
		a.ipPoolRefreshTotal++
		if e.Success {
			a.ipPoolRefreshSuccess++
		} else {
			a.ipPoolRefreshFailure++
		}
	}
}

// recordOutcome is called by the runner once per finished task, since the
// terminal events above don't carry Kind; the registry.Snapshot the runner
// already polls does.
func (a *aggregator) recordOutcome(kind, outcome string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch outcome {
	case "Completed":
		a.opCompleted[kind]++
	case "Failed":
		a.opFailed[kind]++
	case "Canceled":
		a.opCanceled[kind]++
	}
}

func computeFieldStats(samples []uint32) *FieldStats {
	if len(samples) == 0 {
		return nil
	}
	sorted := append([]uint32(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum float64
	for _, v := range sorted {
		sum += float64(v)
	}

	return &FieldStats{
		Count: len(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Avg:   sum / float64(len(sorted)),
		P50:   percentile(sorted, 0.50),
		P95:   percentile(sorted, 0.95),
	}
}

func percentile(sorted []uint32, p float64) uint32 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func collectField(samples []events.AdaptiveTlsTiming, pick func(events.AdaptiveTlsTiming) *uint32) []uint32 {
	var out []uint32
	for _, s := range samples {
		if v := pick(s); v != nil {
			out = append(out, *v)
		}
	}
	return out
}

// into builds the final TimingSummary/OperationSummary/... maps from the
// tallies collected during the run.
func (a *aggregator) into(started, finished, duration int64, optsSnap OptionsSnapshot) *Report {
	a.mu.Lock()
	defer a.mu.Unlock()

	operations := map[string]OperationSummary{}
	var totalOps, totalCompleted, totalFailed, totalCanceled uint64
	kinds := map[string]struct{}{}
	for k := range a.opTotal {
		kinds[k] = struct{}{}
	}
	for k := range a.opCompleted {
		kinds[k] = struct{}{}
	}
	for k := range a.opFailed {
		kinds[k] = struct{}{}
	}
	for k := range a.opCanceled {
		kinds[k] = struct{}{}
	}
	for kind := range kinds {
		total := a.opTotal[kind]
		completed := a.opCompleted[kind]
		failed := a.opFailed[kind]
		canceled := a.opCanceled[kind]
		if total == 0 {
			total = completed + failed + canceled
		}
		var rate float64
		if total > 0 {
			rate = float64(completed) / float64(total)
		}
		operations[kind] = OperationSummary{Total: total, Completed: completed, Failed: failed, Canceled: canceled, SuccessRate: rate}
		totalOps += total
		totalCompleted += completed
		totalFailed += failed
		totalCanceled += canceled
	}

	timing := map[string]TimingSummary{}
	for kind, samples := range a.timingSamples {
		usedFake := 0
		certChanged := 0
		stageCounts := map[string]uint64{}
		for _, s := range samples {
			if s.UsedFakeSni {
				usedFake++
			}
			if s.CertFpChanged {
				certChanged++
			}
			stageCounts[s.FallbackStage]++
		}
		timing[kind] = TimingSummary{
			Samples:              len(samples),
			UsedFake:             usedFake,
			CertFpChangedSamples: certChanged,
			FinalStageCounts:     stageCounts,
			ConnectMs:            computeFieldStats(collectField(samples, func(e events.AdaptiveTlsTiming) *uint32 { return e.ConnectMs })),
			TlsMs:                computeFieldStats(collectField(samples, func(e events.AdaptiveTlsTiming) *uint32 { return e.TlsMs })),
			FirstByteMs:          computeFieldStats(collectField(samples, func(e events.AdaptiveTlsTiming) *uint32 { return e.FirstByteMs })),
			TotalMs:              computeFieldStats(collectField(samples, func(e events.AdaptiveTlsTiming) *uint32 { return e.TotalMs })),
		}
	}

	var successRate float64
	if totalOps > 0 {
		successRate = float64(totalCompleted) / float64(totalOps)
	}

	var fakeFallbackRate float64
	totalTimingSamples := 0
	usedFakeSamples := 0
	for _, t := range timing {
		totalTimingSamples += t.Samples
		usedFakeSamples += t.UsedFake
	}
	if totalTimingSamples > 0 {
		fakeFallbackRate = float64(a.fakeToReal) / float64(totalTimingSamples)
	}

	var refreshRate float64
	if a.ipPoolRefreshTotal > 0 {
		refreshRate = float64(a.ipPoolRefreshSuccess) / float64(a.ipPoolRefreshTotal)
	}

	th := optsSnap.Thresholds
	successCheck := AtLeast(successRate, th.MinSuccessRate)
	fallbackCheck := AtMost(fakeFallbackRate, th.MaxFakeFallbackRate)
	var ipPoolCheck *ThresholdCheck
	if a.ipPoolRefreshTotal > 0 {
		c := AtLeast(refreshRate, th.MinIpPoolRefreshSuccessRate)
		ipPoolCheck = &c
	}
	var autoDisableCheck *ThresholdCheck
	if th.MaxAutoDisableTriggered > 0 || a.autoDisableTriggered > 0 {
		c := AtMost(float64(a.autoDisableTriggered), float64(th.MaxAutoDisableTriggered))
		autoDisableCheck = &c
	}

	thresholds := NewThresholdSummary(successCheck, fallbackCheck, ipPoolCheck, autoDisableCheck, nil)

	return &Report{
		StartedUnix:  started,
		FinishedUnix: finished,
		DurationSecs: duration,
		Options:      optsSnap,
		Iterations:   a.iterations,
		Operations:   operations,
		Timing:       timing,
		Fallback: FallbackSummary{
			Counts:        a.fallbackCounts,
			FakeToReal:    a.fakeToReal,
			RealToDefault: a.realToDefault,
		},
		AutoDisable: AutoDisableSummary{Triggered: a.autoDisableTriggered, Recovered: a.autoDisableRecovered},
		CertFpEvents: a.certFpEvents,
		IpPool: IpPoolSummary{
			SelectionTotal:      a.ipPoolSelectionTotal,
			SelectionByStrategy: a.ipPoolSelectionByStrategy,
			RefreshTotal:        a.ipPoolRefreshTotal,
			RefreshSuccess:      a.ipPoolRefreshSuccess,
			RefreshFailure:      a.ipPoolRefreshFailure,
			RefreshSuccessRate:  refreshRate,
		},
		Totals: TotalsSummary{
			TotalOperations: totalOps,
			Completed:       totalCompleted,
			Failed:          totalFailed,
			Canceled:        totalCanceled,
		},
		ThresholdsOut: thresholds,
	}
}
