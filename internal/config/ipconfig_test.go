package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadIPConfig_MissingFileReturnsZeroValue(t *testing.T) {
	cfg, err := LoadIPConfig(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	require.Nil(t, cfg.UserStatic)
}

func TestSaveAndLoadIPConfig_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ip-config.json")
	cfg := IPConfig{
		UserStatic:   map[string][]string{"github.com": {"10.0.0.1", "10.0.0.2"}},
		PreheatHosts: []HostPort{{Host: "github.com", Port: 443}},
		Resolvers: []ResolverDefinition{
			{Type: "dot", Server: "1.1.1.1:853", TimeoutMs: 3000},
			{Type: "doh", Endpoint: "https://cloudflare-dns.com/dns-query", TimeoutMs: 3000},
		},
	}

	require.NoError(t, SaveIPConfig(path, cfg))

	got, err := LoadIPConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg.UserStatic, got.UserStatic)
	require.Equal(t, cfg.PreheatHosts, got.PreheatHosts)
	require.Equal(t, cfg.Resolvers, got.Resolvers)
}
