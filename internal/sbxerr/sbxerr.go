// Package sbxerr defines the error kinds shared by every blkar pipeline.
//
// Errors are built on github.com/cockroachdb/errors so that the usual
// Wrap/Wrapf/Is/As machinery works across the codec, pipeline, and CLI
// layers. Kind classifies an error without callers needing to match on
// error strings.
package sbxerr

import (
	"github.com/cockroachdb/errors"
)

// Kind identifies the broad category of a blkar error.
type Kind int

const (
	// KindUnknown is returned by Classify for errors not produced by this
	// package (e.g. a bare os.PathError).
	KindUnknown Kind = iota
	KindIO
	KindInvalidBlock
	KindUnknownVersion
	KindMetadataMalformed
	KindInsufficientShards
	KindHashMismatch
	KindUIDMismatch
	KindUsage
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "IO"
	case KindInvalidBlock:
		return "InvalidBlock"
	case KindUnknownVersion:
		return "UnknownVersion"
	case KindMetadataMalformed:
		return "MetadataMalformed"
	case KindInsufficientShards:
		return "InsufficientShards"
	case KindHashMismatch:
		return "HashMismatch"
	case KindUIDMismatch:
		return "UIDMismatch"
	case KindUsage:
		return "Usage"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// kindError tags an error with a Kind so Classify can recover it through
// however many layers of errors.Wrap the error has accumulated.
type kindError struct {
	kind Kind
	error
}

func (e *kindError) Unwrap() error { return e.error }

// New constructs an error of the given kind with a formatted message.
// Messages are single-line; no stack trace ever reaches reported output.
func New(kind Kind, format string, args ...interface{}) error {
	return &kindError{kind: kind, error: errors.Newf(format, args...)}
}

// Wrap attaches kind to an existing error, preserving its message as the
// wrapped cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, error: errors.Wrapf(err, format, args...)}
}

// Classify walks the error's Unwrap chain and returns the kind tag closest
// to the surface (the outermost one), returning KindUnknown if none is
// found.
func Classify(err error) Kind {
	for err != nil {
		if ke, ok := err.(*kindError); ok { //nolint:errorlint // intentional concrete walk
			return ke.kind
		}
		err = errors.UnwrapOnce(err)
	}
	return KindUnknown
}

// IO wraps err as a KindIO error.
func IO(err error, format string, args ...interface{}) error {
	return Wrap(KindIO, err, format, args...)
}

// InvalidBlockf builds a KindInvalidBlock error.
func InvalidBlockf(format string, args ...interface{}) error {
	return New(KindInvalidBlock, format, args...)
}

// UnknownVersionf builds a KindUnknownVersion error.
func UnknownVersionf(format string, args ...interface{}) error {
	return New(KindUnknownVersion, format, args...)
}

// MetadataMalformedf builds a KindMetadataMalformed error.
func MetadataMalformedf(format string, args ...interface{}) error {
	return New(KindMetadataMalformed, format, args...)
}

// InsufficientShardsf builds a KindInsufficientShards error.
func InsufficientShardsf(format string, args ...interface{}) error {
	return New(KindInsufficientShards, format, args...)
}

// HashMismatchf builds a KindHashMismatch error.
func HashMismatchf(format string, args ...interface{}) error {
	return New(KindHashMismatch, format, args...)
}

// UIDMismatchf builds a KindUIDMismatch error.
func UIDMismatchf(format string, args ...interface{}) error {
	return New(KindUIDMismatch, format, args...)
}

// Usagef builds a KindUsage error, for bad CLI parameters.
func Usagef(format string, args ...interface{}) error {
	return New(KindUsage, format, args...)
}

// Cancelled builds a KindCancelled error.
func Cancelled(format string, args ...interface{}) error {
	return New(KindCancelled, format, args...)
}

// AssertionFailedf records an internal invariant violation. It is never
// expected to surface to a user; reaching it is a bug in blkar itself.
func AssertionFailedf(format string, args ...interface{}) error {
	return errors.AssertionFailedf(format, args...)
}
