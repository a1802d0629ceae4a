package ippool

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/gitmesh/gitmesh/internal/errors"
)

// Resolver discovers IP candidates for a host from one source. Builtin and
// UserStatic resolvers are pure lookups against static tables; Dns/Doh/Dot
// resolvers make a real network query (spec.md §4.1 "candidate sources").
type Resolver interface {
	Source() Source
	Resolve(ctx context.Context, host string) ([]string, error)
}

// builtinResolver serves a small compiled-in table of well-known hosts to
// their historically stable IPs, used as a candidate source even when no
// network is reachable yet (spec.md §4.1 "builtin list").
type builtinResolver struct {
	table map[string][]string
}

func NewBuiltinResolver(table map[string][]string) Resolver {
	return &builtinResolver{table: table}
}

func (r *builtinResolver) Source() Source { return SourceBuiltin }

func (r *builtinResolver) Resolve(_ context.Context, host string) ([]string, error) {
	return append([]string(nil), r.table[host]...), nil
}

// userStaticResolver serves user-configured host -> IP overrides
// (ip-config.json's "user_static" entries).
type userStaticResolver struct {
	table map[string][]string
}

func NewUserStaticResolver(table map[string][]string) Resolver {
	return &userStaticResolver{table: table}
}

func (r *userStaticResolver) Source() Source { return SourceUserStatic }

func (r *userStaticResolver) Resolve(_ context.Context, host string) ([]string, error) {
	return append([]string(nil), r.table[host]...), nil
}

// systemResolver is the SourceFallback candidate source: the system
// resolver's A/AAAA answer, used when every other source is exhausted.
type systemResolver struct {
	lookup func(ctx context.Context, host string) ([]string, error)
}

func NewSystemResolver(lookup func(ctx context.Context, host string) ([]string, error)) Resolver {
	return &systemResolver{lookup: lookup}
}

func (r *systemResolver) Source() Source { return SourceFallback }

func (r *systemResolver) Resolve(ctx context.Context, host string) ([]string, error) {
	return r.lookup(ctx, host)
}

// dotResolver issues a DNS-over-TLS query against a fixed upstream server
// (spec.md §4.1 "DoT resolver"), using miekg/dns for message construction.
type dotResolver struct {
	server string // host:port, e.g. "1.1.1.1:853"
	client *dns.Client
}

func NewDoTResolver(server string, timeout time.Duration) Resolver {
	return &dotResolver{
		server: server,
		client: &dns.Client{
			Net:       "tcp-tls",
			Timeout:   timeout,
			TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		},
	}
}

func (r *dotResolver) Source() Source { return SourceDot }

func (r *dotResolver) Resolve(ctx context.Context, host string) ([]string, error) {
	return exchangeA(ctx, r.client, r.server, host)
}

func exchangeA(ctx context.Context, client *dns.Client, server, host string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true

	in, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, errors.WithCategory(err, errors.CategoryNetwork, "")
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, errors.Newf("dns query for %s failed with rcode %s", host, dns.RcodeToString[in.Rcode])
	}

	var ips []string
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips, nil
}

// dohResolver issues a DNS-over-HTTPS query (RFC 8484 wire format over
// POST) against a fixed upstream URL (spec.md §4.1 "DoH resolver").
type dohResolver struct {
	endpoint string
	http     *http.Client
}

func NewDoHResolver(endpoint string, timeout time.Duration) Resolver {
	return &dohResolver{endpoint: endpoint, http: &http.Client{Timeout: timeout}}
}

func (r *dohResolver) Source() Source { return SourceDoh }

func (r *dohResolver) Resolve(ctx context.Context, host string) ([]string, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(host), dns.TypeA)
	msg.RecursionDesired = true
	msg.Id = dns.Id()

	packed, err := msg.Pack()
	if err != nil {
		return nil, errors.Wrap(err, "packing dns query")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, strings.NewReader(string(packed)))
	if err != nil {
		return nil, errors.Wrap(err, "building doh request")
	}
	req.Header.Set("Content-Type", "application/dns-message")
	req.Header.Set("Accept", "application/dns-message")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, errors.WithCategory(err, errors.CategoryNetwork, "")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("doh query for %s returned status %d", host, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading doh response")
	}

	in := new(dns.Msg)
	if err := in.Unpack(body); err != nil {
		return nil, errors.Wrap(err, "unpacking doh response")
	}

	var ips []string
	for _, rr := range in.Answer {
		if a, ok := rr.(*dns.A); ok {
			ips = append(ips, a.A.String())
		}
	}
	return ips, nil
}
