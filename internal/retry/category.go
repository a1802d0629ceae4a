// Package retry implements the retry engine and per-task policy overrides
// (spec.md §4.4): error classification, retry plans with exponential
// backoff+jitter, strategy-override normalization, and partial-filter
// fallback. The apply_* functions are pure (config, override) -> (effective
// config, conflict, changed) per spec.md §9's design note that this is the
// seat of the property tests.
package retry

import (
	"context"
	"net"
	"strings"

	"github.com/gitmesh/gitmesh/internal/errors"
)

// Category is the error taxonomy from spec.md §4.4.
type Category = errors.Category

const (
	CategoryNetwork  = errors.CategoryNetwork
	CategoryTls      = errors.CategoryTls
	CategoryVerify   = errors.CategoryVerify
	CategoryAuth     = errors.CategoryAuth
	CategoryProtocol = errors.CategoryProtocol
	CategoryCancel   = errors.CategoryCancel
	CategoryInternal = errors.CategoryInternal
)

// Retryable reports whether category is ever subject to retry
// (spec.md §4.4: Auth, Cancel, Internal are never retried).
func Retryable(c Category) bool {
	switch c {
	case CategoryNetwork, CategoryTls, CategoryVerify, CategoryProtocol:
		return true
	default:
		return false
	}
}

// Classify maps an error from the underlying Git/HTTP stack onto the
// taxonomy. It first checks for an already-typed errors.Categorized (from
// internal/transport, internal/gitops), then falls back to locale-
// independent substring/token matching per spec.md §4.4 and §9.
func Classify(ctx context.Context, err error) Category {
	if err == nil {
		return CategoryInternal
	}
	if ctx != nil && ctx.Err() != nil {
		return CategoryCancel
	}

	var cat errors.Categorized
	if errors.As(err, &cat) {
		return cat.Category()
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "certificate", "x509", "unknown authority", "cert"):
		return CategoryVerify
	case containsAny(msg, "handshake", "tls"):
		return CategoryTls
	case containsAny(msg, "401", "403", "authentication required", "invalid credentials", "permission denied"):
		return CategoryAuth
	case containsAny(msg, "timed out", "timeout", "connection refused", "connection reset", "no route to host", "broken pipe", "dial tcp"):
		return CategoryNetwork
	case containsAny(msg, "context canceled", "operation was canceled", "canceled"):
		return CategoryCancel
	case containsAny(msg, "400", "404", "422", "unexpected http status", "invalid argument", "fatal:"):
		// HTTP-layer errors that arise before body exchange, and Git's own
		// protocol-level fatal() messages, are Protocol per spec.md §9
		// (distinguishing them from Network, which is connect/timeout/reset).
		return CategoryProtocol
	default:
		return CategoryInternal
	}
}

func containsAny(s string, tokens ...string) bool {
	for _, t := range tokens {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
