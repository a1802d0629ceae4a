// Package errors is a thin façade over cockroachdb/errors, mirroring the
// conventions of the teacher's lib/errors package: stack-trace-carrying
// errors with Wrap/Newf helpers and a safe-for-reporting category marker.
package errors

import (
	"github.com/cockroachdb/errors"
)

// Re-exported constructors so the rest of the module never imports
// cockroachdb/errors directly.
var (
	New    = errors.New
	Newf   = errors.Newf
	Wrap   = errors.Wrap
	Wrapf  = errors.Wrapf
	Is     = errors.Is
	As     = errors.As
	Cause  = errors.Cause
	Append = errors.Append
)

// Category is the error taxonomy from the retry/task subsystems
// (spec.md §4.4): Network, Tls, Verify, Auth, Protocol, Cancel, Internal.
type Category string

const (
	CategoryNetwork  Category = "Network"
	CategoryTls      Category = "Tls"
	CategoryVerify   Category = "Verify"
	CategoryAuth     Category = "Auth"
	CategoryProtocol Category = "Protocol"
	CategoryCancel   Category = "Cancel"
	CategoryInternal Category = "Internal"
)

// Categorized is implemented by errors that already know their taxonomy
// category, so the retry engine can classify by errors.As instead of
// token matching (spec.md §9 notes token matching is a fallback only).
type Categorized interface {
	error
	Category() Category
}

// categorized wraps an underlying error with an explicit category.
type categorized struct {
	cause error
	cat   Category
	code  string
}

func (e *categorized) Error() string { return e.cause.Error() }
func (e *categorized) Unwrap() error { return e.cause }
func (e *categorized) Category() Category { return e.cat }
func (e *categorized) Code() string       { return e.code }

// WithCategory annotates err with an explicit taxonomy category and an
// optional stable code (spec.md §7, e.g. "strategy_override_conflict").
func WithCategory(err error, cat Category, code string) error {
	if err == nil {
		return nil
	}
	return &categorized{cause: err, cat: cat, code: code}
}

// CategoryOf extracts the taxonomy category from err, defaulting to
// CategoryInternal when err does not implement Categorized.
func CategoryOf(err error) Category {
	var c Categorized
	if As(err, &c) {
		return c.Category()
	}
	return CategoryInternal
}

// CodeOf extracts the stable error code, if any, attached via WithCategory.
func CodeOf(err error) string {
	var c *categorized
	if As(err, &c) {
		return c.code
	}
	return ""
}
