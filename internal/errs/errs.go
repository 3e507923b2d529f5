// Package errs defines the indexer's error kinds, grounded on the teacher's
// github.com/pkg/errors usage throughout database/, dbaccess/ and
// rpcclient/: errors are wrapped with context via errors.Wrap, and callers
// discriminate kinds with errors.Is/errors.As rather than a bespoke
// exception hierarchy.
package errs

import "github.com/pkg/errors"

// Kind classifies an error for the propagation policy in spec.md §7.
type Kind int

const (
	// KindFatalConfig: missing env, invalid network/blockchain pair.
	KindFatalConfig Kind = iota
	// KindFatalStore: I/O or decode error reading a column family.
	KindFatalStore
	// KindFatalIndex: missing prevout, missing token meta during a
	// Transferred action, reorg depth exceeded, header link mismatch.
	KindFatalIndex
	// KindProtocolReject: inscription parses but violates token rules.
	// Never propagated as a process error — dropped silently by callers.
	KindProtocolReject
	// KindTransient: RPC unavailable, retried with backoff.
	KindTransient
	// KindSubscriberLag: a fanout subscriber fell behind and was dropped.
	KindSubscriberLag
)

func (k Kind) String() string {
	switch k {
	case KindFatalConfig:
		return "fatal_config"
	case KindFatalStore:
		return "fatal_store"
	case KindFatalIndex:
		return "fatal_index"
	case KindProtocolReject:
		return "protocol_reject"
	case KindTransient:
		return "transient"
	case KindSubscriberLag:
		return "subscriber_lag"
	default:
		return "unknown"
	}
}

// kindError attaches a Kind to a wrapped error without losing the
// underlying stack trace pkg/errors already captured.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Cause() error  { return e.err }
func (e *kindError) Unwrap() error { return e.err }

// Wrap attaches kind to err with a message, matching the teacher's
// errors.Wrapf idiom.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrap(err, msg)}
}

// Wrapf is the formatted variant of Wrap.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: errors.Wrapf(err, format, args...)}
}

// New creates a new kinded error from a message.
func New(kind Kind, msg string) error {
	return &kindError{kind: kind, err: errors.New(msg)}
}

// KindOf extracts the Kind attached to err, if any, and whether one was
// found.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return 0, false
}

// IsFatal reports whether err belongs to a kind the indexer must abort on.
func IsFatal(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	return k == KindFatalConfig || k == KindFatalStore || k == KindFatalIndex
}
