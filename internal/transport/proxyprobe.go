package transport

import (
	"net/http"
	"net/url"
	"os"
)

// ProxyPresent reports whether an HTTP(S) proxy is configured for
// requests to rawURL, consulting the standard HTTPS_PROXY/HTTP_PROXY/
// NO_PROXY environment variables the same way net/http's default
// transport does. It is one of the SNI decision's inputs (spec.md §4.2).
func ProxyPresent(rawURL string) bool {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		// No well-formed URL to ask http.ProxyFromEnvironment about — fall
		// back to a coarser check for any proxy env var being set at all.
		return proxyEnvSet()
	}
	proxyURL, err := http.ProxyFromEnvironment(req)
	return err == nil && proxyURL != nil
}

// proxyEnvSet is the fallback used when ProxyPresent has no parseable URL:
// it checks whether any proxy env var is present at all.
func proxyEnvSet() bool {
	for _, k := range []string{"HTTPS_PROXY", "https_proxy", "HTTP_PROXY", "http_proxy"} {
		if v := os.Getenv(k); v != "" {
			if _, err := url.Parse(v); err == nil {
				return true
			}
		}
	}
	return false
}
