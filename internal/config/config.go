// Package config loads and hot-reloads the daemon's configuration:
// config/app.toml via spf13/viper, plus the two JSON side-files
// (ip-config.json, ip-history.json) read/written with json-iterator.
package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/gitmesh/gitmesh/internal/errors"
	"github.com/gitmesh/gitmesh/internal/ippool"
	"github.com/gitmesh/gitmesh/internal/retry"
	"github.com/gitmesh/gitmesh/internal/transport"
)

// Config is the typed view of app.toml (spec.md §6 configuration knobs).
type Config struct {
	Http    HttpConfig    `mapstructure:"http"`
	Tls     TlsConfig     `mapstructure:"tls"`
	IPPool  ippool.Config `mapstructure:"ip_pool"`
	Retry   retry.Plan    `mapstructure:"retry"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// HttpConfig mirrors app.toml's [http] table.
type HttpConfig struct {
	FollowRedirects bool  `mapstructure:"follow_redirects"`
	MaxRedirects    uint8 `mapstructure:"max_redirects"`
}

// TlsConfig mirrors app.toml's [tls] table and internal/transport's Config.
type TlsConfig struct {
	FakeSniEnabled          bool     `mapstructure:"fake_sni_enabled"`
	FakeSniRolloutPercent   uint8    `mapstructure:"fake_sni_rollout_percent"`
	FakeSniCandidates       []string `mapstructure:"fake_sni_candidates"`
	AutoDisableThresholdPct uint8    `mapstructure:"auto_disable_threshold_pct"`
	AutoDisableCooldownSec  uint32   `mapstructure:"auto_disable_cooldown_sec"`
	InsecureSkipVerify      bool     `mapstructure:"insecure_skip_verify"`
	SkipSanWhitelist        bool     `mapstructure:"skip_san_whitelist"`
}

// LoggingConfig mirrors app.toml's [logging] table.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AsTransportConfig projects the Tls table into transport.Config, the shape
// internal/transport actually consumes.
func (c Config) AsTransportConfig() transport.Config {
	return transport.Config{
		FakeSniEnabled:          c.Tls.FakeSniEnabled,
		FakeSniRolloutPercent:   c.Tls.FakeSniRolloutPercent,
		FakeSniCandidates:       c.Tls.FakeSniCandidates,
		AutoDisableThresholdPct: c.Tls.AutoDisableThresholdPct,
		AutoDisableCooldownSec:  c.Tls.AutoDisableCooldownSec,
		FollowRedirects:         c.Http.FollowRedirects,
		MaxRedirects:            c.Http.MaxRedirects,
		InsecureSkipVerify:      c.Tls.InsecureSkipVerify,
		SkipSanWhitelist:        c.Tls.SkipSanWhitelist,
	}
}

// AsRetryHttpConfig projects the [http] table into retry.HttpConfig, the
// shape ApplyHttpOverride consumes as its "global" input.
func (c Config) AsRetryHttpConfig() retry.HttpConfig {
	return retry.HttpConfig{FollowRedirects: c.Http.FollowRedirects, MaxRedirects: c.Http.MaxRedirects}
}

// AsRetryTlsConfig projects the [tls] table into retry.TlsConfig.
func (c Config) AsRetryTlsConfig() retry.TlsConfig {
	return retry.TlsConfig{InsecureSkipVerify: c.Tls.InsecureSkipVerify, SkipSanWhitelist: c.Tls.SkipSanWhitelist}
}

// Watcher loads app.toml through viper and re-parses it on file change,
// modeled on the teacher's conf.Watch: callers register callbacks that
// receive the freshly parsed Config (spec.md §4.1 "update_config", §4.2
// rollout-percent reload).
type Watcher struct {
	v *viper.Viper

	mu        sync.RWMutex
	current   Config
	callbacks []func(Config)
}

// NewWatcher loads path (an app.toml file) into a Watcher and starts
// watching it for changes. Watching lasts for the life of the process;
// Watcher has no method to stop it.
func NewWatcher(path string) (*Watcher, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "reading app.toml")
	}

	w := &Watcher{v: v}
	if err := w.reload(); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(fsnotify.Event) {
		if err := w.reload(); err != nil {
			return
		}
		w.notify()
	})
	v.WatchConfig()

	return w, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.follow_redirects", true)
	v.SetDefault("http.max_redirects", 5)

	v.SetDefault("tls.fake_sni_enabled", false)
	v.SetDefault("tls.fake_sni_rollout_percent", 0)
	v.SetDefault("tls.auto_disable_threshold_pct", 50)
	v.SetDefault("tls.auto_disable_cooldown_sec", 300)

	v.SetDefault("ip_pool.enabled", false)
	v.SetDefault("ip_pool.max_cache_entries", 256)
	v.SetDefault("ip_pool.cache_ttl_seconds", 300)
	v.SetDefault("ip_pool.probe_timeout_ms", 1500)
	v.SetDefault("ip_pool.max_concurrent_probes", 8)
	v.SetDefault("ip_pool.probes_per_second", 20)
	v.SetDefault("ip_pool.max_alternates", 3)
	v.SetDefault("ip_pool.singleflight_timeout_ms", 3000)
	v.SetDefault("ip_pool.cache_prune_interval_secs", 60)
	v.SetDefault("ip_pool.circuit_breaker_enabled", true)
	v.SetDefault("ip_pool.breaker.consecutive_fail_threshold", 3)
	v.SetDefault("ip_pool.breaker.window_failure_rate_pct", 50)
	v.SetDefault("ip_pool.breaker.window_min_samples", 5)
	v.SetDefault("ip_pool.breaker.failure_window_seconds", 60)
	v.SetDefault("ip_pool.breaker.cooldown_seconds", 120)

	v.SetDefault("retry.max", 6)
	v.SetDefault("retry.base_ms", 300)
	v.SetDefault("retry.factor", 2.0)
	v.SetDefault("retry.jitter", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "condensed")
}

func (w *Watcher) reload() error {
	var cfg Config
	if err := w.v.Unmarshal(&cfg); err != nil {
		return errors.Wrap(err, "unmarshalling app.toml")
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	return nil
}

// Current returns the most recently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers cb to be called with the new Config every time
// app.toml changes on disk. cb is also invoked once immediately with the
// current configuration.
func (w *Watcher) OnChange(cb func(Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, cb)
	current := w.current
	w.mu.Unlock()

	cb(current)
}

func (w *Watcher) notify() {
	w.mu.RLock()
	cfg := w.current
	cbs := make([]func(Config), len(w.callbacks))
	copy(cbs, w.callbacks)
	w.mu.RUnlock()

	for _, cb := range cbs {
		cb(cfg)
	}
}
