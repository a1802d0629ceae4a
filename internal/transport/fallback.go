package transport

import (
	"github.com/gitmesh/gitmesh/internal/errors"
)

// Stage is the fallback state machine of spec.md §4.2: Fake -> Real ->
// Default, monotonic within a single connection attempt.
type Stage int

const (
	StageFake Stage = iota
	StageReal
	StageDefault
)

func (s Stage) String() string {
	switch s {
	case StageFake:
		return "Fake"
	case StageReal:
		return "Real"
	case StageDefault:
		return "Default"
	default:
		return "Unknown"
	}
}

// FallbackMachine tracks one connection attempt's stage. It is not shared
// across attempts (spec.md §9: "local to a single connection attempt; not
// persisted across attempts").
type FallbackMachine struct {
	stage Stage
}

// NewFallbackMachine starts a machine at StageFake if useFakeSNI, else
// StageReal — a connection that never attempted fake SNI has nothing to
// fall back from.
func NewFallbackMachine(useFakeSNI bool) *FallbackMachine {
	if useFakeSNI {
		return &FallbackMachine{stage: StageFake}
	}
	return &FallbackMachine{stage: StageReal}
}

func (m *FallbackMachine) Stage() Stage { return m.stage }

// Transition is a single step of the fallback decision table (spec.md
// §4.2): TLS handshake failure with fake SNI moves to Real; TLS/Verify
// failure with real SNI moves to Default. Returns the (from, to, reason,
// ok) — ok is false when no further fallback is available (already at
// Default, or the failure category isn't one the state machine reacts to).
func (m *FallbackMachine) Transition(category errors.Category) (from, to Stage, reason string, ok bool) {
	from = m.stage
	switch m.stage {
	case StageFake:
		if category == errors.CategoryTls {
			m.stage = StageReal
			return from, m.stage, "tls_handshake_failed_with_fake_sni", true
		}
	case StageReal:
		if category == errors.CategoryTls || category == errors.CategoryVerify {
			m.stage = StageDefault
			return from, m.stage, "tls_or_verify_failed_with_real_sni", true
		}
	case StageDefault:
		// already at the terminal stage; no further fallback.
	}
	return from, from, "", false
}
