package events

import "testing"

func TestSanitizeLabel(t *testing.T) {
	cases := map[string]string{
		"":                "unknown",
		"Network":         "network",
		"github.com:443":  "github_com_443",
		"  spaced  out  ": "spaced_out",
		"___":              "unknown",
		"GitClone":        "gitclone",
	}
	for in, want := range cases {
		if got := SanitizeLabel(in); got != want {
			t.Errorf("SanitizeLabel(%q) = %q, want %q", in, got, want)
		}
	}
}
