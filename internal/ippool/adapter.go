package ippool

import (
	"context"

	"github.com/gitmesh/gitmesh/internal/transport"
)

// TransportSelector adapts a *Pool to transport.IPSelector, translating
// between this package's Selection/Source types and transport's plain-
// string equivalents so internal/transport never needs to import
// internal/ippool.
type TransportSelector struct {
	pool *Pool
}

func NewTransportSelector(pool *Pool) *TransportSelector {
	return &TransportSelector{pool: pool}
}

func (a *TransportSelector) PickBest(ctx context.Context, host string, port uint16) (transport.Selection, error) {
	sel, err := a.pool.PickBest(ctx, host, port)
	if err != nil {
		return transport.Selection{}, err
	}
	alternates := make([]transport.AlternateCandidate, len(sel.Alternates))
	for i, alt := range sel.Alternates {
		alternates[i] = transport.AlternateCandidate{IP: alt.IP, Source: string(alt.Source)}
	}
	return transport.Selection{
		Strategy:   string(sel.Strategy),
		IP:         sel.IP,
		Port:       sel.Port,
		Source:     string(sel.Source),
		LatencyMs:  sel.LatencyMs,
		Alternates: alternates,
	}, nil
}

func (a *TransportSelector) ReportOutcome(sel transport.Selection, success bool) {
	if sel.Strategy != string(StrategyCached) {
		return
	}
	a.pool.reportOutcome(sel.Host, sel.Port, sel.IP, Source(sel.Source), success)
}
