package ippool

import (
	"context"
	"time"

	"github.com/sourcegraph/log"
)

// Preheater periodically refreshes the pool's cache for a configured set of
// hot hosts, so the first real connection attempt after startup can already
// use a warm cache entry (spec.md §4.1 "background preheat").
type Preheater struct {
	logger   log.Logger
	pool     *Pool
	targets  []CacheKey
	interval time.Duration
}

func NewPreheater(logger log.Logger, pool *Pool, targets []CacheKey, interval time.Duration) *Preheater {
	return &Preheater{
		logger:   logger.Scoped("ippool.preheat", "background refresh of hot host:port cache slots"),
		pool:     pool,
		targets:  targets,
		interval: interval,
	}
}

// Run blocks, refreshing every target once per interval, until ctx is
// canceled.
func (p *Preheater) Run(ctx context.Context) {
	if p.interval <= 0 || len(p.targets) == 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Preheater) tick(ctx context.Context) {
	for _, t := range p.targets {
		if ctx.Err() != nil {
			return
		}
		if _, err := p.pool.refresh(ctx, t.Host, t.Port); err != nil {
			p.logger.Debug("preheat refresh failed",
				log.String("host", t.Host),
				log.Error(err),
			)
		}
	}
}
