package retry

import (
	"context"
	"fmt"
)

// HttpConfig is the global/effective HTTP policy (spec.md §4.4 table,
// §6 http.* knobs).
type HttpConfig struct {
	FollowRedirects bool
	MaxRedirects    uint8
}

// TlsConfig is the global/effective TLS policy.
type TlsConfig struct {
	InsecureSkipVerify bool
	SkipSanWhitelist   bool
}

// RetryConfig is the global/effective retry policy, expressed with the same
// shape as Plan so it can be compared field-by-field for change detection.
type RetryConfig struct {
	Max    uint32
	BaseMs uint64
	Factor float64
	Jitter bool
}

// HttpOverride carries the optional per-task fields of a StrategyOverride's
// http section (spec.md §4.4). A nil pointer means "not specified, inherit
// global".
type HttpOverride struct {
	FollowRedirects *bool
	MaxRedirects    *uint8
}

type TlsOverride struct {
	InsecureSkipVerify *bool
	SkipSanWhitelist   *bool
}

type RetryOverride struct {
	Max    *uint32
	BaseMs *uint64
	Factor *float64
	Jitter *bool
}

// StrategyOverride is the full per-task override (spec.md §4.4).
type StrategyOverride struct {
	Http  *HttpOverride
	Tls   *TlsOverride
	Retry *RetryOverride
}

const maxRedirectsClamp = 20

// ApplyHttpOverride implements apply_http_override(global, override) per
// spec.md §4.4/§8 property 2 and scenarios S1/S2: clamps max_redirects to
// [0,20]; if the effective follow_redirects is false and the effective
// max_redirects (pre-force) is > 0, forces it to 0 and reports a conflict.
// changed reports whether the result differs from global in any field.
func ApplyHttpOverride(global HttpConfig, override *HttpOverride) (result HttpConfig, changed bool, conflict *string) {
	result = global

	if override != nil {
		if override.FollowRedirects != nil {
			result.FollowRedirects = *override.FollowRedirects
		}
		if override.MaxRedirects != nil {
			result.MaxRedirects = *override.MaxRedirects
		}
	}

	if result.MaxRedirects > maxRedirectsClamp {
		result.MaxRedirects = maxRedirectsClamp
	}

	if !result.FollowRedirects && result.MaxRedirects > 0 {
		before := result.MaxRedirects
		result.MaxRedirects = 0
		msg := fmt.Sprintf("followRedirects=false => force maxRedirects=0 (was %d)", before)
		conflict = &msg
	}

	changed = result != global
	return result, changed, conflict
}

// ApplyTlsOverride implements apply_tls_override per spec.md §4.4/§8
// property 3 and scenario S3: if insecure_skip_verify=true and
// skip_san_whitelist=true, forces skip_san_whitelist=false and reports a
// conflict. Conflict is reported iff the *input* pair was (true, true).
func ApplyTlsOverride(global TlsConfig, override *TlsOverride) (result TlsConfig, changed bool, conflict *string) {
	result = global

	if override != nil {
		if override.InsecureSkipVerify != nil {
			result.InsecureSkipVerify = *override.InsecureSkipVerify
		}
		if override.SkipSanWhitelist != nil {
			result.SkipSanWhitelist = *override.SkipSanWhitelist
		}
	}

	if result.InsecureSkipVerify && result.SkipSanWhitelist {
		result.SkipSanWhitelist = false
		msg := "insecureSkipVerify=true normalizes skipSanWhitelist=false"
		conflict = &msg
	}

	changed = result != global
	return result, changed, conflict
}

// ApplyRetryOverride implements the retry.* override rule: any field that
// differs from global marks retryStrategyOverrideApplied.
func ApplyRetryOverride(global RetryConfig, override *RetryOverride) (result RetryConfig, overrideApplied bool) {
	result = global
	if override == nil {
		return result, false
	}
	if override.Max != nil {
		result.Max = *override.Max
	}
	if override.BaseMs != nil {
		result.BaseMs = *override.BaseMs
	}
	if override.Factor != nil {
		result.Factor = *override.Factor
	}
	if override.Jitter != nil {
		result.Jitter = *override.Jitter
	}
	return result, result != global
}

// Effective is a task's fully-resolved HTTP/TLS policy after overrides were
// applied, threaded through a context.Context from internal/tasks' worker
// loop down to internal/gitops' backend so the per-task result of
// ApplyHttpOverride/ApplyTlsOverride actually reaches the HTTP client and
// TLS handshake, not just the event bus.
type Effective struct {
	Http HttpConfig
	Tls  TlsConfig
}

type effectiveCtxKey struct{}

// WithEffective attaches a task's resolved policy to ctx.
func WithEffective(ctx context.Context, eff Effective) context.Context {
	return context.WithValue(ctx, effectiveCtxKey{}, eff)
}

// EffectiveFrom recovers a policy attached by WithEffective, if any.
func EffectiveFrom(ctx context.Context) (Effective, bool) {
	eff, ok := ctx.Value(effectiveCtxKey{}).(Effective)
	return eff, ok
}

// ChangedFields returns the human-readable field names that differ between
// global and result, for Policy::RetryApplied.changed (spec.md §6).
func (ro *RetryOverride) ChangedFields(global, result RetryConfig) []string {
	var changed []string
	if global.Max != result.Max {
		changed = append(changed, "max")
	}
	if global.BaseMs != result.BaseMs {
		changed = append(changed, "baseMs")
	}
	if global.Factor != result.Factor {
		changed = append(changed, "factor")
	}
	if global.Jitter != result.Jitter {
		changed = append(changed, "jitter")
	}
	return changed
}
