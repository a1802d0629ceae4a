package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecideSNI_RealHostAlwaysSet(t *testing.T) {
	cfg := Config{FakeSniEnabled: true, FakeSniRolloutPercent: 100, FakeSniCandidates: []string{"a.example.com"}}
	d := DecideSNI(cfg, "github.com", "task-1", false, false, false)
	require.Equal(t, "github.com", d.RealHost)
}

func TestDecideSNI_DisabledCases(t *testing.T) {
	cfg := Config{FakeSniEnabled: true, FakeSniRolloutPercent: 100, FakeSniCandidates: []string{"a.example.com"}}

	require.False(t, DecideSNI(cfg, "h", "k", true, false, false).UseFakeSNI, "proxy present forces real SNI")
	require.False(t, DecideSNI(cfg, "h", "k", false, true, false).UseFakeSNI, "force_real_sni forces real SNI")
	require.False(t, DecideSNI(cfg, "h", "k", false, false, true).UseFakeSNI, "auto-disable active forces real SNI")

	disabledCfg := cfg
	disabledCfg.FakeSniEnabled = false
	require.False(t, DecideSNI(disabledCfg, "h", "k", false, false, false).UseFakeSNI)
}

func TestDecideSNI_DeterministicSampling(t *testing.T) {
	cfg := Config{FakeSniEnabled: true, FakeSniRolloutPercent: 50, FakeSniCandidates: []string{"a.example.com", "b.example.com"}}

	d1 := DecideSNI(cfg, "github.com", "task-42", false, false, false)
	d2 := DecideSNI(cfg, "github.com", "task-42", false, false, false)
	require.Equal(t, d1, d2, "same sampleKey must always land on the same side and pick the same candidate")
}

func TestDecideSNI_RolloutBounds(t *testing.T) {
	cfg0 := Config{FakeSniEnabled: true, FakeSniRolloutPercent: 0, FakeSniCandidates: []string{"a.example.com"}}
	cfg100 := Config{FakeSniEnabled: true, FakeSniRolloutPercent: 100, FakeSniCandidates: []string{"a.example.com"}}

	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		require.False(t, DecideSNI(cfg0, "h", key, false, false, false).UseFakeSNI)
		require.True(t, DecideSNI(cfg100, "h", key, false, false, false).UseFakeSNI)
	}
}
