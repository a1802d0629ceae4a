package soak

import (
	"os"
	"strconv"
	"strings"
)

const envGuard = "GITMESH_SOAK"

// envEnabled reports whether the soak harness is allowed to run in this
// process, mirroring the original implementation's FWC_ADAPTIVE_TLS_SOAK
// guard: soak iterations spin up real repositories and take real wall
// time, so they must be opted into explicitly rather than running as part
// of an ordinary test pass.
func envEnabled() bool {
	return os.Getenv(envGuard) == "1"
}

// OptionsFromEnv builds Options from GITMESH_SOAK_* environment variables,
// falling back to defaults for anything unset.
func OptionsFromEnv() Options {
	opts := Options{
		Iterations: 10,
		Thresholds: DefaultThresholds(),
	}

	if v, ok := os.LookupEnv("GITMESH_SOAK_ITERATIONS"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			opts.Iterations = uint32(n)
		}
	}
	if v, ok := os.LookupEnv("GITMESH_SOAK_KEEP_CLONES"); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true":
			opts.KeepClones = true
		}
	}
	if v, ok := os.LookupEnv("GITMESH_SOAK_BASE_DIR"); ok {
		opts.BaseDir = v
	}
	if v, ok := os.LookupEnv("GITMESH_SOAK_BASELINE_REPORT"); ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			opts.BaselineReport = trimmed
		}
	}
	if v, ok := os.LookupEnv("GITMESH_SOAK_MIN_SUCCESS_RATE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.Thresholds.MinSuccessRate = f
		}
	}
	if v, ok := os.LookupEnv("GITMESH_SOAK_MAX_FAKE_FALLBACK_RATE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.Thresholds.MaxFakeFallbackRate = f
		}
	}
	if v, ok := os.LookupEnv("GITMESH_SOAK_MIN_IP_POOL_REFRESH_RATE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			opts.Thresholds.MinIpPoolRefreshSuccessRate = f
		}
	}
	if v, ok := os.LookupEnv("GITMESH_SOAK_MAX_AUTO_DISABLE"); ok {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			opts.Thresholds.MaxAutoDisableTriggered = n
		}
	}
	if v, ok := os.LookupEnv("GITMESH_SOAK_MIN_LATENCY_IMPROVEMENT"); ok {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			opts.Thresholds.MinLatencyImprovement = nil
		} else if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			opts.Thresholds.MinLatencyImprovement = &f
		}
	}

	return opts
}
