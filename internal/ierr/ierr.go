// Package ierr is the core's error-handling idiom: a fluent builder over
// github.com/cockroachdb/errors terminated by Mark(sentinel), replacing the
// teacher's derive-macro error->status mapping (spec §9) with a plain
// function (ToTaxonomy) that needs no reflection or codegen.
package ierr

import (
	"encoding/json"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/meteroid-oss/meteroid-sub006/internal/types"
)

// Sentinels, one per spec §7 error kind.
var (
	ErrValidation         = errors.New("invalid argument")
	ErrNotFound           = errors.New("not found")
	ErrDuplicateValue     = errors.New("duplicate value")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrPaymentProvider    = errors.New("payment provider error")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrInitialization     = errors.New("initialization error")
	ErrSystem             = errors.New("internal error")
)

var sentinelKind = map[error]types.ErrorKind{
	ErrValidation:          types.ErrorKindInvalidArgument,
	ErrNotFound:            types.ErrorKindNotFound,
	ErrDuplicateValue:      types.ErrorKindDuplicateValue,
	ErrInsufficientFunds:   types.ErrorKindInsufficientFunds,
	ErrPaymentProvider:     types.ErrorKindPaymentProvider,
	ErrConcurrencyConflict: types.ErrorKindConcurrencyConflict,
	ErrInitialization:      types.ErrorKindInitialization,
	ErrSystem:              types.ErrorKindInternal,
}

// Builder provides a fluent interface for building errors. It does not
// itself implement `error` — Mark must be the terminal call.
type Builder struct {
	err error
}

// NewError starts a new error chain from a message.
func NewError(msg string) *Builder {
	return &Builder{err: errors.New(msg)}
}

// NewErrorf starts a new error chain from a formatted message.
func NewErrorf(format string, args ...any) *Builder {
	return &Builder{err: errors.Newf(format, args...)}
}

// WithError starts a chain wrapping an existing error.
func WithError(err error) *Builder {
	return &Builder{err: err}
}

// WithMessage adds internal (never user-facing) context.
func (b *Builder) WithMessage(msg string) *Builder {
	b.err = errors.WithMessage(b.err, msg)
	return b
}

// WithHint attaches the short human-readable message surfaced to callers.
func (b *Builder) WithHint(hint string) *Builder {
	b.err = errors.WithHint(b.err, hint)
	return b
}

// WithHintf is WithHint with formatting.
func (b *Builder) WithHintf(format string, args ...any) *Builder {
	b.err = errors.WithHintf(b.err, format, args...)
	return b
}

// WithReportableDetails attaches a JSON-serializable details blob. Never
// echoed as the primary message — spec §7 reserves it for
// webhook/gRPC-metadata-style server-side diagnosis.
func (b *Builder) WithReportableDetails(details map[string]any) *Builder {
	marshaled, err := json.Marshal(details)
	if err != nil {
		return b
	}
	b.err = errors.WithSafeDetails(b.err, "__json__:%s", errors.Safe(string(marshaled)))
	return b
}

// WithSourceLocation captures the filename+line of the call site into the
// error's reportable details, per spec §7's "source_details blob ...
// containing filename+line of the originating failure".
func (b *Builder) WithSourceLocation() *Builder {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		return b
	}
	return b.WithReportableDetails(map[string]any{"file": file, "line": line})
}

// Mark stamps the error with a sentinel from this package and returns the
// plain error. Must be the last call in the chain.
func (b *Builder) Mark(sentinel error) error {
	b.err = errors.Mark(b.err, sentinel)
	return b.err
}

// ToTaxonomy maps any error produced by this package back to the spec §7
// (kind, human message) pair. Errors not produced by this package are
// treated as Internal. No reflection, no generated switch — just sentinel
// membership tests, matching spec §9's "reimplement as a small generic
// function" instruction.
func ToTaxonomy(err error) (kind types.ErrorKind, message string) {
	if err == nil {
		return "", ""
	}
	for sentinel, k := range sentinelKind {
		if errors.Is(err, sentinel) {
			if hint := errors.GetAllHints(err); len(hint) > 0 {
				return k, hint[len(hint)-1]
			}
			return k, err.Error()
		}
	}
	return types.ErrorKindInternal, "an internal error occurred"
}

// Is reports whether err is marked with sentinel, a thin re-export so
// callers don't need to import cockroachdb/errors directly.
func Is(err, sentinel error) bool {
	return errors.Is(err, sentinel)
}

// Wrapf wraps err with additional formatted internal context without
// changing its sentinel mark, for quick propagation inside a single
// function without starting a full builder chain.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(err, format, args...)
}
