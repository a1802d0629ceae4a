// Package shared wires every gitmesh component into a running daemon
// process, the way the teacher's cmd/gitserver/shared.Main wires gitserver:
// config, logging, the event bus and its metrics bridge, the IP pool, the
// adaptive-TLS dialer, the task registry, and the gRPC API, then blocks
// serving until a shutdown signal arrives.
package shared

import (
	"context"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sourcegraph/log"
	"google.golang.org/grpc"

	v1 "github.com/gitmesh/gitmesh/internal/api/v1"
	"github.com/gitmesh/gitmesh/internal/config"
	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/events"
	"github.com/gitmesh/gitmesh/internal/gitops"
	"github.com/gitmesh/gitmesh/internal/ippool"
	"github.com/gitmesh/gitmesh/internal/tasks"
	"github.com/gitmesh/gitmesh/internal/transport"
)

// preheatInterval is how often the background preheater refreshes its
// configured hot hosts (spec.md §4.1 "background preheat").
const preheatInterval = 5 * time.Minute

// Config is the daemon's own startup configuration, separate from the
// hot-reloaded app.toml (internal/config.Watcher) it points at.
type Config struct {
	// ConfigPath is the app.toml path to load and watch.
	ConfigPath string
	// GRPCAddr is the "host:port" the TaskService listens on.
	GRPCAddr string
	// MaxWorkers bounds the task registry's concurrent Git workers.
	MaxWorkers int
}

func (c *Config) setDefaults() {
	if c.GRPCAddr == "" {
		c.GRPCAddr = "127.0.0.1:7420"
	}
}

// runMaintenanceTicker calls pool.MaintenanceTick on a fixed interval until
// ctx is canceled (spec.md §4.1 "maintenance_tick" sweeps expired cache
// entries and recovers elapsed circuit-breaker trips). intervalSecs of 0
// selects a sensible default rather than ticking every nanosecond.
func runMaintenanceTicker(ctx context.Context, pool *ippool.Pool, intervalSecs uint32) {
	interval := time.Duration(intervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			pool.MaintenanceTick()
		case <-ctx.Done():
			return
		}
	}
}

// Main runs the gitmesh daemon until ctx is canceled or a termination
// signal is received.
func Main(ctx context.Context, cfg Config) error {
	cfg.setDefaults()

	logger := log.Scoped("gitmeshd", "gitmesh daemon")

	watcher, err := config.NewWatcher(cfg.ConfigPath)
	if err != nil {
		return errors.Wrap(err, "loading configuration")
	}
	appCfg := watcher.Current()

	bus := events.NewBus(logger)

	metrics := events.NewMetricsBridge(prometheus.DefaultRegisterer)
	unsubscribeMetrics := bus.Subscribe("metrics-bridge", metrics)
	defer unsubscribeMetrics()

	ipConfigPath := filepath.Join(filepath.Dir(cfg.ConfigPath), "ip-config.json")
	ipCfg, err := config.LoadIPConfig(ipConfigPath)
	if err != nil {
		return errors.Wrap(err, "loading ip-config.json")
	}

	resolvers := []ippool.Resolver{
		ippool.NewBuiltinResolver(ipCfg.Builtin),
		ippool.NewUserStaticResolver(ipCfg.UserStatic),
		ippool.NewSystemResolver(net.DefaultResolver.LookupHost),
	}
	for _, rd := range ipCfg.Resolvers {
		timeout := time.Duration(rd.TimeoutMs) * time.Millisecond
		if timeout <= 0 {
			timeout = 3 * time.Second
		}
		switch rd.Type {
		case "dot":
			resolvers = append(resolvers, ippool.NewDoTResolver(rd.Server, timeout))
		case "doh":
			resolvers = append(resolvers, ippool.NewDoHResolver(rd.Endpoint, timeout))
		default:
			logger.Warn("ip-config.json: unknown resolver type, skipping", log.String("type", rd.Type))
		}
	}
	pool := ippool.NewPool(logger, bus, resolvers, ippool.NewTCPProber(), appCfg.IPPool)
	watcher.OnChange(func(c config.Config) { pool.UpdateConfig(c.IPPool) })

	whitelist, err := ippool.ParseCIDRList(ipCfg.WhitelistCIDRs)
	if err != nil {
		return errors.Wrap(err, "parsing ip-config.json whitelist_cidrs")
	}
	blacklist, err := ippool.ParseCIDRList(ipCfg.BlacklistCIDRs)
	if err != nil {
		return errors.Wrap(err, "parsing ip-config.json blacklist_cidrs")
	}
	pool.UpdateFilters(whitelist, blacklist)

	maintenanceCtx, stopMaintenance := context.WithCancel(context.Background())
	defer stopMaintenance()
	go runMaintenanceTicker(maintenanceCtx, pool, appCfg.IPPool.CachePruneIntervalSecs)

	preheatCtx, stopPreheat := context.WithCancel(context.Background())
	defer stopPreheat()
	if len(ipCfg.PreheatHosts) > 0 {
		targets := make([]ippool.CacheKey, len(ipCfg.PreheatHosts))
		for i, hp := range ipCfg.PreheatHosts {
			targets[i] = ippool.CacheKey{Host: hp.Host, Port: hp.Port}
		}
		preheater := ippool.NewPreheater(logger, pool, targets, preheatInterval)
		go preheater.Run(preheatCtx)
	}

	dialer := transport.NewDialer(appCfg.AsTransportConfig(), ippool.NewTransportSelector(pool), bus)
	watcher.OnChange(func(c config.Config) { dialer.UpdateConfig(c.AsTransportConfig()) })

	backend := gitops.NewBackend(dialer, bus)

	maxWorkers := cfg.MaxWorkers
	registry := tasks.NewRegistry(logger, bus, backend, appCfg.Retry, maxWorkers)
	registry.UpdateStrategy(appCfg.AsRetryHttpConfig(), appCfg.AsRetryTlsConfig())
	watcher.OnChange(func(c config.Config) { registry.UpdatePlan(c.Retry) })
	watcher.OnChange(func(c config.Config) { registry.UpdateStrategy(c.AsRetryHttpConfig(), c.AsRetryTlsConfig()) })

	server := v1.NewServer(registry, bus)
	grpcServer := v1.NewGRPCServer(server)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", cfg.GRPCAddr)
	}

	serveErrc := make(chan error, 1)
	go func() {
		logger.Info("gitmeshd: listening", log.String("addr", cfg.GRPCAddr))
		serveErrc <- grpcServer.Serve(lis)
	}()

	sigc := make(chan os.Signal, 2)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case <-ctx.Done():
	case <-sigc:
		go func() {
			<-sigc
			os.Exit(1)
		}()
	case err := <-serveErrc:
		if err != nil && err != grpc.ErrServerStopped {
			return errors.Wrap(err, "serving gRPC")
		}
		return nil
	}

	logger.Info("gitmeshd: shutting down")
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(10 * time.Second):
		grpcServer.Stop()
	}

	return registry.Wait()
}
