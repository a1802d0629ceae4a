package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"testing"

	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/sourcegraph/log/logtest"
	"github.com/stretchr/testify/require"
)

type staticSelector struct {
	sel Selection
}

func (s staticSelector) PickBest(ctx context.Context, host string, port uint16) (Selection, error) {
	return s.sel, nil
}
func (s staticSelector) ReportOutcome(Selection, bool) {}

// newLoopbackTLSServer starts a TLS listener on 127.0.0.1 whose certificate
// is valid for certHost, returning its address and a pool containing its
// root so the dialer's manual verification can succeed.
func newLoopbackTLSServer(t *testing.T, certHost string) (addr string, roots *x509.CertPool, closeFn func()) {
	t.Helper()
	cert, pool := selfSignedCertFor(t, certHost)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{Certificates: []tls.Certificate{cert}})
	require.NoError(t, err)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	return ln.Addr().String(), pool, func() { ln.Close() }
}

func TestDialer_FakeSNIWithRealHostVerification(t *testing.T) {
	addr, roots, closeFn := newLoopbackTLSServer(t, "github.com")
	defer closeFn()

	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	cfg := Config{FakeSniEnabled: true, FakeSniRolloutPercent: 100, FakeSniCandidates: []string{"cdn.example.net"}}
	bus := events.NewBus(logtest.Scoped(t))
	sel := staticSelector{sel: Selection{Strategy: "Cached", IP: "127.0.0.1", Port: mustAtoi16(t, port)}}

	d := NewDialer(cfg, sel, bus)
	d.RootCAs = roots
	conn, err := d.DialTLSContext(context.Background(), "tcp", "github.com:"+port, AttemptInfo{TaskID: "t1", Kind: "clone"})
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialer_RealSNIWhenFakeDisabled(t *testing.T) {
	addr, roots, closeFn := newLoopbackTLSServer(t, "github.com")
	defer closeFn()

	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	cfg := Config{FakeSniEnabled: false}
	bus := events.NewBus(logtest.Scoped(t))
	sel := staticSelector{sel: Selection{Strategy: "Cached", IP: "127.0.0.1", Port: mustAtoi16(t, port)}}

	d := NewDialer(cfg, sel, bus)
	d.RootCAs = roots
	conn, err := d.DialTLSContext(context.Background(), "tcp", "github.com:"+port, AttemptInfo{TaskID: "t2", Kind: "fetch"})
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialer_FallsBackToAlternateOnDialFailure(t *testing.T) {
	addr, roots, closeFn := newLoopbackTLSServer(t, "github.com")
	defer closeFn()

	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	cfg := Config{FakeSniEnabled: false}
	bus := events.NewBus(logtest.Scoped(t))
	// 127.0.0.2 has nothing listening, so the primary candidate is refused
	// immediately and the dialer must fall through to the alternate
	// (127.0.0.1, the real loopback server) instead of giving up.
	sel := staticSelector{sel: Selection{
		Strategy: "Cached", IP: "127.0.0.2", Port: mustAtoi16(t, port),
		Alternates: []AlternateCandidate{{IP: "127.0.0.1", Source: "Dns"}},
	}}

	d := NewDialer(cfg, sel, bus)
	d.RootCAs = roots
	conn, err := d.DialTLSContext(context.Background(), "tcp", "github.com:"+port, AttemptInfo{TaskID: "t4", Kind: "clone"})
	require.NoError(t, err)
	defer conn.Close()
}

func TestDialer_FallsBackToSystemDefaultWhenAllCandidatesFail(t *testing.T) {
	cfg := Config{FakeSniEnabled: false}
	bus := events.NewBus(logtest.Scoped(t))
	// Neither the primary nor its alternate has anything listening, and the
	// final direct dial to 127.0.0.4:1 is refused too, so this exercises the
	// system-DNS-fallback branch returning an error rather than panicking or
	// hanging.
	sel := staticSelector{sel: Selection{
		Strategy: "Cached", IP: "127.0.0.2", Port: 1,
		Alternates: []AlternateCandidate{{IP: "127.0.0.3", Source: "Dns"}},
	}}

	d := NewDialer(cfg, sel, bus)
	_, err := d.DialTLSContext(context.Background(), "tcp", "127.0.0.4:1", AttemptInfo{TaskID: "t5", Kind: "clone"})
	require.Error(t, err)
}

func TestDialer_VerificationFailsAgainstWrongHost(t *testing.T) {
	addr, roots, closeFn := newLoopbackTLSServer(t, "github.com")
	defer closeFn()

	_, port, err := net.SplitHostPort(addr)
	require.NoError(t, err)

	cfg := Config{FakeSniEnabled: false}
	bus := events.NewBus(logtest.Scoped(t))
	sel := staticSelector{sel: Selection{Strategy: "Cached", IP: "127.0.0.1", Port: mustAtoi16(t, port)}}

	d := NewDialer(cfg, sel, bus)
	d.RootCAs = roots
	// gitlab.com is not in the cert's DNSNames, so verification against the
	// real host must fail even though the TCP connection succeeds.
	_, err = d.DialTLSContext(context.Background(), "tcp", "gitlab.com:"+port, AttemptInfo{TaskID: "t3", Kind: "fetch"})
	require.Error(t, err)
}
