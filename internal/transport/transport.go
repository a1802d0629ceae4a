package transport

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/events"
)

// IPSelector is the contract the Adaptive Transport uses against the IP
// Pool (spec.md §4.2 "IP pool interaction"), kept as a narrow interface
// here so this package never imports internal/ippool directly.
type IPSelector interface {
	PickBest(ctx context.Context, host string, port uint16) (Selection, error)
	ReportOutcome(sel Selection, success bool)
}

// Selection mirrors ippool.Selection's shape (Cached vs SystemDefault)
// without creating an import cycle.
type Selection struct {
	Strategy   string // "Cached" | "SystemDefault"
	Host       string
	IP         string
	Port       uint16
	Source     string
	LatencyMs  *uint32
	Alternates []AlternateCandidate
}

// AlternateCandidate mirrors ippool.AlternateIP: a next-best candidate the
// dialer tries in order if Selection.IP fails to connect, before falling
// back to the system resolver (spec.md §4.2).
type AlternateCandidate struct {
	IP     string
	Source string
}

// AttemptInfo carries the per-connection-attempt inputs the dialer needs
// beyond the raw network address: the task this connection belongs to (for
// rollout sampling and event correlation), and any per-task overrides.
type AttemptInfo struct {
	TaskID       string
	Kind         string
	ForceRealSNI bool

	// Per-task effective policy (spec.md §4.4). A nil pointer means "no
	// override for this task, inherit Config's default".
	FollowRedirects    *bool
	MaxRedirects       *uint8
	InsecureSkipVerify *bool
}

// Dialer implements the adaptive-TLS connection path of spec.md §4.2: it
// consults the IP pool, decides real-vs-fake SNI, dials, and verifies the
// certificate chain against the real host regardless of which SNI value
// was sent.
type Dialer struct {
	cfgMu     sync.RWMutex
	cfg       Config
	pool      IPSelector
	bus       *events.Bus
	gates     sync.Map // host -> *AutoDisableState
	fps       sync.Map // host -> string (last seen SPKI fingerprint hex)
	netDialer net.Dialer

	// RootCAs overrides the trust store used for the real-host
	// verification step. Nil means the system roots, the production
	// default; tests set this to verify against a throwaway CA.
	RootCAs *x509.CertPool
}

func NewDialer(cfg Config, pool IPSelector, bus *events.Bus) *Dialer {
	return &Dialer{cfg: cfg, pool: pool, bus: bus, netDialer: net.Dialer{Timeout: 10 * time.Second}}
}

// UpdateConfig swaps in a freshly reloaded Config, taking effect for every
// dial attempt started after the call returns (spec.md §4.2's rollout-
// percent and auto-disable knobs are hot-reloadable).
func (d *Dialer) UpdateConfig(cfg Config) {
	d.cfgMu.Lock()
	d.cfg = cfg
	d.cfgMu.Unlock()
}

func (d *Dialer) config() Config {
	d.cfgMu.RLock()
	defer d.cfgMu.RUnlock()
	return d.cfg
}

// RedirectPolicy resolves the effective follow/max-redirects pair for one
// attempt, honoring AttemptInfo's per-task override over Config's default
// (spec.md §4.4's http.* override). It's exported for internal/gitops'
// shared *http.Client, whose CheckRedirect can't see the Dialer directly.
func (d *Dialer) RedirectPolicy(info AttemptInfo) (follow bool, maxRedirects uint8) {
	cfg := d.config()
	follow, maxRedirects = cfg.FollowRedirects, cfg.MaxRedirects
	if info.FollowRedirects != nil {
		follow = *info.FollowRedirects
	}
	if info.MaxRedirects != nil {
		maxRedirects = *info.MaxRedirects
	}
	return follow, maxRedirects
}

func (d *Dialer) effectiveInsecureSkipVerify(info AttemptInfo) bool {
	if info.InsecureSkipVerify != nil {
		return *info.InsecureSkipVerify
	}
	return d.config().InsecureSkipVerify
}

func (d *Dialer) gateFor(host string) *AutoDisableState {
	if g, ok := d.gates.Load(host); ok {
		return g.(*AutoDisableState)
	}
	cfg := d.config()
	g := NewAutoDisableState(cfg.AutoDisableThresholdPct, cfg.AutoDisableCooldownSec)
	actual, _ := d.gates.LoadOrStore(host, g)
	return actual.(*AutoDisableState)
}

// DialTLSContext is installed as the go-git HTTP client's DialTLSContext
// (or used directly by internal/gitops). addr is "host:port" of the real
// remote; info carries task-scoped inputs for the SNI decision.
func (d *Dialer) DialTLSContext(ctx context.Context, network, addr string, info AttemptInfo) (net.Conn, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, errors.Wrap(err, "parsing dial address")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, errors.Wrap(err, "parsing dial port")
	}

	gate := d.gateFor(host)
	proxyPresent := ProxyPresent("https://" + host)
	decision := DecideSNI(d.config(), host, sampleKeyFor(info.TaskID, host), proxyPresent, info.ForceRealSNI, gate.IsFakeDisabled(time.Now()))

	if info.TaskID != "" {
		d.bus.Publish(events.AdaptiveTlsRollout{ID: info.TaskID, Kind: info.Kind, PercentApplied: decision.PercentApplied, Sampled: decision.Sampled})
	}

	machine := NewFallbackMachine(decision.UseFakeSNI)
	start := time.Now()

	conn, usedFake, connectMs, tlsMs, certChanged, err := d.attempt(ctx, network, host, uint16(port), decision, machine, info, gate)
	total := uint32(time.Since(start).Milliseconds())

	if info.TaskID != "" {
		d.bus.Publish(events.AdaptiveTlsTiming{
			ID: info.TaskID, Kind: info.Kind, UsedFakeSni: usedFake, FallbackStage: machine.Stage().String(),
			ConnectMs: connectMs, TlsMs: tlsMs, TotalMs: &total, CertFpChanged: certChanged,
		})
	}

	return conn, err
}

func (d *Dialer) attempt(ctx context.Context, network, host string, port uint16, decision Decision, machine *FallbackMachine, info AttemptInfo, gate *AutoDisableState) (net.Conn, bool, *uint32, *uint32, bool, error) {
	sel, _ := d.pool.PickBest(ctx, host, port)
	sel.Host = host
	if info.TaskID != "" {
		d.bus.Publish(events.IpPoolSelection{ID: info.TaskID, Host: host, Port: port, Strategy: sel.Strategy, Source: sel.Source, LatencyMs: sel.LatencyMs})
	}

	usedFake := decision.UseFakeSNI
	sni := host
	if usedFake {
		sni = decision.FakeSNI
	}

	connectStart := time.Now()
	rawConn, used, err := d.dialWithFallback(ctx, network, host, port, sel)
	if err != nil {
		d.pool.ReportOutcome(sel, false)
		return nil, usedFake, nil, nil, false, errors.WithCategory(err, errors.CategoryNetwork, "")
	}
	connectMs := uint32(time.Since(connectStart).Milliseconds())

	tlsStart := time.Now()
	tlsConn, err := d.handshake(rawConn, sni, host, d.effectiveInsecureSkipVerify(info))
	if err != nil {
		rawConn.Close()
		d.pool.ReportOutcome(used, false)

		cat := classifyTLSErr(err)
		if usedFake {
			d.publishAutoDisableOutcome(info, gate.RecordFakeAttempt(time.Now(), true))
		}
		from, to, reason, ok := machine.Transition(cat)
		if ok && info.TaskID != "" {
			d.bus.Publish(events.AdaptiveTlsFallback{ID: info.TaskID, Kind: info.Kind, From: from.String(), To: to.String(), Reason: reason})
		}
		if ok {
			// retry the attempt at the new stage, without fake SNI.
			return d.attempt(ctx, network, host, port, Decision{RealHost: host}, machine, info, gate)
		}
		return nil, usedFake, &connectMs, nil, false, errors.WithCategory(err, cat, "")
	}
	tlsMs := uint32(time.Since(tlsStart).Milliseconds())

	if usedFake {
		d.publishAutoDisableOutcome(info, gate.RecordFakeAttempt(time.Now(), false))
	}
	d.pool.ReportOutcome(used, true)
	certChanged := d.checkCertFingerprint(host, tlsConn)

	return tlsConn, usedFake, &connectMs, &tlsMs, certChanged, nil
}

// dialWithFallback tries sel's cached IP first, then each alternate in
// order, and only after every pooled candidate fails dials the hostname
// directly through the system resolver (spec.md §4.2 "tries the next
// candidate... after all candidates, attempts the system-DNS fallback").
// The returned Selection reflects whichever candidate actually connected,
// so ReportOutcome scores the right entry.
func (d *Dialer) dialWithFallback(ctx context.Context, network, host string, port uint16, sel Selection) (net.Conn, Selection, error) {
	portStr := strconv.Itoa(int(port))

	type candidate struct {
		ip     string
		source string
	}
	var candidates []candidate
	if sel.Strategy == "Cached" && sel.IP != "" {
		candidates = append(candidates, candidate{ip: sel.IP, source: sel.Source})
	}
	for _, alt := range sel.Alternates {
		candidates = append(candidates, candidate{ip: alt.IP, source: alt.Source})
	}

	var lastErr error
	for _, c := range candidates {
		conn, err := d.netDialer.DialContext(ctx, network, net.JoinHostPort(c.ip, portStr))
		if err == nil {
			used := sel
			used.IP = c.ip
			used.Source = c.source
			return conn, used, nil
		}
		lastErr = err
	}

	conn, err := d.netDialer.DialContext(ctx, network, net.JoinHostPort(host, portStr))
	if err != nil {
		if lastErr != nil {
			err = lastErr
		}
		return nil, sel, err
	}
	return conn, Selection{Strategy: "SystemDefault", Host: host, Port: port}, nil
}

// publishAutoDisableOutcome translates a RecordFakeAttempt Outcome into the
// AdaptiveTlsAutoDisable event spec.md §4.2/§6/§8 property 5 require on
// trip (Enabled: false) and on cooldown-expiry recovery (Enabled: true).
func (d *Dialer) publishAutoDisableOutcome(info AttemptInfo, outcome Outcome) {
	if outcome == OutcomeNone || info.TaskID == "" {
		return
	}
	cfg := d.config()
	d.bus.Publish(events.AdaptiveTlsAutoDisable{
		ID:           info.TaskID,
		Kind:         info.Kind,
		Enabled:      outcome == OutcomeRecovered,
		ThresholdPct: cfg.AutoDisableThresholdPct,
		CooldownSecs: cfg.AutoDisableCooldownSec,
	})
}

// handshake performs the TLS ClientHello with sni as the wire SNI value,
// but (unless skipVerify, a per-task TLS-override escape hatch spec.md §4.4
// scenario S3 governs) always verifies the certificate chain against
// realHost regardless of which SNI value was sent.
func (d *Dialer) handshake(raw net.Conn, sni, realHost string, skipVerify bool) (*tls.Conn, error) {
	cfg := &tls.Config{
		ServerName:         sni,
		InsecureSkipVerify: true, // we verify manually below (unless skipVerify), not via sni.
	}
	if !skipVerify {
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			opts := x509.VerifyOptions{
				DNSName:       realHost,
				Roots:         d.RootCAs,
				Intermediates: x509.NewCertPool(),
			}
			for _, cert := range cs.PeerCertificates[1:] {
				opts.Intermediates.AddCert(cert)
			}
			_, err := cs.PeerCertificates[0].Verify(opts)
			return err
		}
	}
	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.HandshakeContext(context.Background()); err != nil {
		return nil, err
	}
	return tlsConn, nil
}

func classifyTLSErr(err error) errors.Category {
	var certErr x509.CertificateInvalidError
	var unknownAuthErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	if errors.As(err, &certErr) || errors.As(err, &unknownAuthErr) || errors.As(err, &hostErr) {
		return errors.CategoryVerify
	}
	return errors.CategoryTls
}

// checkCertFingerprint records the SPKI SHA-256 fingerprint of the leaf
// certificate and emits CertFingerprintChanged if it differs from the
// previously observed value for this host (spec.md §4.2, informational).
func (d *Dialer) checkCertFingerprint(host string, conn *tls.Conn) bool {
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return false
	}
	sum := sha256.Sum256(state.PeerCertificates[0].RawSubjectPublicKeyInfo)
	fp := hex.EncodeToString(sum[:])

	prev, loaded := d.fps.Swap(host, fp)
	changed := loaded && prev.(string) != fp
	if changed {
		d.bus.Publish(events.CertFingerprintChanged{Host: host})
	}
	return changed
}

func sampleKeyFor(taskID, host string) string {
	if taskID != "" {
		return taskID
	}
	return host
}
