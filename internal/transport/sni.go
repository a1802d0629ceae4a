// Package transport implements the adaptive TLS transport (spec.md §4.2):
// fake-SNI decision with deterministic rollout sampling, a per-attempt
// fallback state machine, a process-wide auto-disable gate, and the
// IP-pool-aware dialer used by internal/gitops's go-git HTTP client.
package transport

import (
	"crypto/sha256"
	"encoding/binary"
)

// Config is the subset of app.toml's http.* and tls.* knobs the SNI
// decision and dialer consume (spec.md §6).
type Config struct {
	FakeSniEnabled        bool
	FakeSniRolloutPercent uint8 // 0-100
	FakeSniCandidates     []string
	AutoDisableThresholdPct uint8
	AutoDisableCooldownSec  uint32

	// Default HTTP/TLS policy, overridden per-attempt by AttemptInfo's
	// pointer fields when a task carries a StrategyOverride (spec.md §4.4).
	FollowRedirects    bool
	MaxRedirects       uint8
	InsecureSkipVerify bool
	SkipSanWhitelist   bool
}

// Decision is the output of DecideSNI: whether to use a fake SNI value for
// this connection attempt, and which one.
type Decision struct {
	UseFakeSNI bool
	FakeSNI    string
	RealHost   string
	Sampled    bool
	PercentApplied uint8
}

// DecideSNI implements spec.md §4.2's decision table. sampleKey is typically
// the task id or request URL, hashed deterministically so the same key
// always falls on the same side of the rollout percentage (spec.md
// GLOSSARY: "Rollout percent").
func DecideSNI(cfg Config, realHost, sampleKey string, proxyPresent, forceRealSNI, autoDisabled bool) Decision {
	d := Decision{RealHost: realHost, PercentApplied: cfg.FakeSniRolloutPercent}

	if proxyPresent || forceRealSNI || !cfg.FakeSniEnabled || autoDisabled || len(cfg.FakeSniCandidates) == 0 {
		return d
	}

	d.Sampled = sampledIn(sampleKey, cfg.FakeSniRolloutPercent)
	if !d.Sampled {
		return d
	}

	d.UseFakeSNI = true
	d.FakeSNI = pickCandidate(cfg.FakeSniCandidates, sampleKey)
	return d
}

// sampledIn deterministically maps key onto [0,100) via a stable hash and
// compares against percent, so repeated calls for the same key always agree
// (spec.md §4.2: "deterministic sampling by task id or URL").
func sampledIn(key string, percent uint8) bool {
	if percent == 0 {
		return false
	}
	if percent >= 100 {
		return true
	}
	sum := sha256.Sum256([]byte(key))
	bucket := binary.BigEndian.Uint32(sum[:4]) % 100
	return bucket < uint32(percent)
}

// pickCandidate deterministically selects one of candidates for key, so a
// retried attempt for the same task reuses the same fake SNI.
func pickCandidate(candidates []string, key string) string {
	sum := sha256.Sum256([]byte("sni:" + key))
	idx := binary.BigEndian.Uint32(sum[:4]) % uint32(len(candidates))
	return candidates[idx]
}
