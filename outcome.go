package fetchonce

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// ErrSessionClosed is returned by Fetch when the session closes before
// the reference resolves.
var ErrSessionClosed = errors.New("fetchonce: session closed")

// ErrAbandoned is returned by Task.Wait when the session closed (or
// the submit context was cancelled) before every reference of the item
// resolved. The item's completion hook does not fire.
var ErrAbandoned = errors.New("fetchonce: item abandoned")

// Outcome is the finalized result of one fetch: either a success value
// or a failure error. Outcomes stored in the session cache are
// immutable and shared by every waiter for the same fingerprint.
type Outcome[V any] struct {
	Value V
	Err   error
}

// OK reports whether the outcome is a success.
func (o Outcome[V]) OK() bool { return o.Err == nil }

// Result pairs one submitted Reference with its Outcome.
type Result[V any] struct {
	Ref     Reference
	Outcome Outcome[V]
}

// Results is the ordered per-item outcome list handed to the
// completion hook: one entry per extracted reference, in extraction
// order.
type Results[V any] []Result[V]

// Err combines the errors of all failed entries, or nil if every
// entry succeeded.
func (rs Results[V]) Err() error {
	var merr *multierror.Error
	for _, r := range rs {
		if r.Outcome.Err != nil {
			merr = multierror.Append(merr, r.Outcome.Err)
		}
	}
	return merr.ErrorOrNil()
}

// Values returns the payloads of the successful entries, in order.
func (rs Results[V]) Values() []V {
	vals := make([]V, 0, len(rs))
	for _, r := range rs {
		if r.Outcome.OK() {
			vals = append(vals, r.Outcome.Value)
		}
	}
	return vals
}

// maxErrorLen caps the message stored in a cached FetchError. Cached
// failures live for the whole session, so they must stay small.
const maxErrorLen = 256

// FetchError is the bounded failure record cached for a fingerprint.
// Sanitization drops the original error's wrapped chain and any
// attached stack trace; only the target and a truncated message are
// kept.
type FetchError struct {
	Target string
	Msg    string
}

func (e *FetchError) Error() string { return "fetch " + e.Target + ": " + e.Msg }

func sanitizeError(err error, ref Reference) error {
	if _, ok := err.(*FetchError); ok {
		return err
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return &FetchError{Target: ref.URL, Msg: msg}
}
