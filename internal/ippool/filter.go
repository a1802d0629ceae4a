package ippool

import (
	"net"

	"github.com/gitmesh/gitmesh/internal/errors"
)

// ParseCIDRList parses ip-config.json's whitelist_cidrs / blacklist_cidrs
// entries. A bare IP (no "/bits") is treated as a single-address CIDR.
func ParseCIDRList(cidrs []string) ([]*net.IPNet, error) {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, ipNet, err := net.ParseCIDR(c)
		if err == nil {
			out = append(out, ipNet)
			continue
		}

		ip := net.ParseIP(c)
		if ip == nil {
			return nil, errors.Newf("invalid CIDR or IP %q", c)
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		out = append(out, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return out, nil
}

func matchesAny(ip string, nets []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// filterCandidates applies spec.md §4.1's whitelist-then-blacklist CIDR
// filter. Precedence for a candidate matching both (spec.md §9, resolving
// an ambiguity in the source): the whitelist is applied first; when it is
// non-empty, only candidates it matches survive, so a whitelisted candidate
// is kept even if it also matches the blacklist.
func filterCandidates(candidates []Candidate, whitelist, blacklist []*net.IPNet) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if len(whitelist) > 0 {
			if matchesAny(c.IP, whitelist) {
				out = append(out, c)
			}
			continue
		}
		if matchesAny(c.IP, blacklist) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// dedupCandidates drops candidates sharing an IP with one already seen,
// keeping the first (highest-priority source) occurrence (spec.md §4.1
// "deduplicated by address").
func dedupCandidates(candidates []Candidate) []Candidate {
	seen := make(map[string]bool, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.IP] {
			continue
		}
		seen[c.IP] = true
		out = append(out, c)
	}
	return out
}
