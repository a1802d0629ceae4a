package ippool

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterCandidates_EmptyListsPassEverything(t *testing.T) {
	candidates := []Candidate{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}}
	out := filterCandidates(candidates, nil, nil)
	require.Equal(t, candidates, out)
}

func TestFilterCandidates_BlacklistOnlyDropsMatches(t *testing.T) {
	blacklist, err := ParseCIDRList([]string{"10.0.0.0/24"})
	require.NoError(t, err)

	candidates := []Candidate{{IP: "10.0.0.1"}, {IP: "192.168.1.1"}}
	out := filterCandidates(candidates, nil, blacklist)
	require.Equal(t, []Candidate{{IP: "192.168.1.1"}}, out)
}

func TestFilterCandidates_WhitelistOnlyKeepsMatches(t *testing.T) {
	whitelist, err := ParseCIDRList([]string{"192.168.1.0/24"})
	require.NoError(t, err)

	candidates := []Candidate{{IP: "10.0.0.1"}, {IP: "192.168.1.1"}}
	out := filterCandidates(candidates, whitelist, nil)
	require.Equal(t, []Candidate{{IP: "192.168.1.1"}}, out)
}

// A candidate matching both lists is kept: spec.md §9 resolves the
// whitelist/blacklist precedence ambiguity in favor of the whitelist.
func TestFilterCandidates_WhitelistWinsOverBlacklist(t *testing.T) {
	whitelist, err := ParseCIDRList([]string{"10.0.0.1/32"})
	require.NoError(t, err)
	blacklist, err := ParseCIDRList([]string{"10.0.0.0/24"})
	require.NoError(t, err)

	candidates := []Candidate{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}}
	out := filterCandidates(candidates, whitelist, blacklist)
	require.Equal(t, []Candidate{{IP: "10.0.0.1"}}, out)
}

func TestDedupCandidates_KeepsFirstOccurrence(t *testing.T) {
	candidates := []Candidate{
		{IP: "10.0.0.1", Source: SourceBuiltin},
		{IP: "10.0.0.1", Source: SourceDns},
		{IP: "10.0.0.2", Source: SourceDns},
	}
	out := dedupCandidates(candidates)
	require.Equal(t, []Candidate{
		{IP: "10.0.0.1", Source: SourceBuiltin},
		{IP: "10.0.0.2", Source: SourceDns},
	}, out)
}

func TestParseCIDRList_AcceptsBareIP(t *testing.T) {
	nets, err := ParseCIDRList([]string{"10.0.0.1"})
	require.NoError(t, err)
	require.Len(t, nets, 1)
	require.True(t, nets[0].Contains(net.ParseIP("10.0.0.1")))
	require.False(t, nets[0].Contains(net.ParseIP("10.0.0.2")))
}

func TestParseCIDRList_RejectsGarbage(t *testing.T) {
	_, err := ParseCIDRList([]string{"not-an-ip"})
	require.Error(t, err)
}
