package soak

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/require"
)

// TestSoak is the entry point for `go test -run TestSoak`: a full
// push/fetch/clone soak run against a throwaway local origin repository.
// It is gated behind GITMESH_SOAK=1 since it takes real wall time and
// leaves state on disk (the original implementation's run_from_env has
// the same FWC_ADAPTIVE_TLS_SOAK guard).
func TestSoak(t *testing.T) {
	if !envEnabled() {
		t.Skip("set GITMESH_SOAK=1 to run the soak harness")
	}

	opts := OptionsFromEnv()
	if opts.BaseDir == "" {
		opts.BaseDir = t.TempDir()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	report, err := Run(ctx, logtest.Scoped(t), opts)
	require.NoError(t, err)
	require.Equal(t, opts.Iterations, report.Iterations)
	require.True(t, report.Totals.TotalOperations > 0)

	t.Logf("soak ready=%v failing=%v success_rate=%.4f", report.ThresholdsOut.Ready, report.ThresholdsOut.FailingChecks, report.ThresholdsOut.SuccessRate.Actual)
	require.NoError(t, WriteReport(filepath.Join(opts.BaseDir, "soak-report.json"), report))
}

// TestSoakTinyRun runs a minimal two-iteration soak locally (no env guard)
// so the harness itself is exercised by an ordinary `go test ./...`,
// independent of the opt-in long-form TestSoak above.
func TestSoakTinyRun(t *testing.T) {
	opts := Options{Iterations: 2, BaseDir: t.TempDir()}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := Run(ctx, logtest.Scoped(t), opts)
	require.NoError(t, err)
	require.Equal(t, uint32(2), report.Iterations)

	completed := report.Operations["GitClone"].Completed + report.Operations["GitCommit"].Completed
	require.True(t, completed > 0)
}
