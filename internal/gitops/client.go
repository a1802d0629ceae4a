package gitops

import (
	"context"
	"net"
	"net/http"

	"github.com/go-git/go-git/v5/plumbing/transport/client"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/gitmesh/gitmesh/internal/retry"
	"github.com/gitmesh/gitmesh/internal/transport"
)

// attemptInfoKey stashes a transport.AttemptInfo on the context passed into
// a go-git operation, so the shared *http.Client's DialTLSContext closure
// (installed once, process-wide) can recover per-task rollout sampling and
// event-correlation inputs that http.Transport's dial signature doesn't
// carry directly.
type attemptInfoKey struct{}

func withAttemptInfo(ctx context.Context, info transport.AttemptInfo) context.Context {
	return context.WithValue(ctx, attemptInfoKey{}, info)
}

func attemptInfoFrom(ctx context.Context) transport.AttemptInfo {
	if info, ok := ctx.Value(attemptInfoKey{}).(transport.AttemptInfo); ok {
		return info
	}
	return transport.AttemptInfo{}
}

// buildAttemptInfo assembles the AttemptInfo for one operation, folding in
// whatever effective HTTP/TLS policy internal/tasks' worker loop attached to
// ctx via retry.WithEffective after resolving the task's StrategyOverride
// (spec.md §4.4) against the daemon's global config.
func buildAttemptInfo(ctx context.Context, taskID, kind string) transport.AttemptInfo {
	info := transport.AttemptInfo{TaskID: taskID, Kind: kind}
	if eff, ok := retry.EffectiveFrom(ctx); ok {
		follow, maxRedirects, skipVerify := eff.Http.FollowRedirects, eff.Http.MaxRedirects, eff.Tls.InsecureSkipVerify
		info.FollowRedirects = &follow
		info.MaxRedirects = &maxRedirects
		info.InsecureSkipVerify = &skipVerify
	}
	return info
}

// newHTTPClient builds the *http.Client go-git's "https" protocol handler
// uses for every Clone/Fetch/Push. Its Transport routes TLS dials through
// dialer, which performs the adaptive fake-SNI substitution and real-host
// certificate verification of spec.md §4.2.
func newHTTPClient(dialer *transport.Dialer) *http.Client {
	rt := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.DialTLSContext(ctx, network, addr, attemptInfoFrom(ctx))
		},
	}
	return &http.Client{
		Transport: rt,
		// CheckRedirect reads the same per-request context DialTLSContext
		// does, so a task's http.* override (spec.md §4.4) governs redirect
		// following even though every task shares one process-wide Client.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			follow, maxRedirects := dialer.RedirectPolicy(attemptInfoFrom(req.Context()))
			if !follow || len(via) > int(maxRedirects) {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// installHTTPProtocol registers httpClient as the transport used for every
// "https://" remote go-git dials, process-wide (the library has no
// per-repository client hook, only a global protocol registry).
func installHTTPProtocol(httpClient *http.Client) {
	client.InstallProtocol("https", githttp.NewClient(httpClient))
}
