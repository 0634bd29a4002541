package bench

import (
	"fmt"
	"time"
)

// FailureReason classifies why a request attempt did not succeed.
type FailureReason string

const (
	// ReasonTimeout means the request did not complete within its timeout.
	ReasonTimeout FailureReason = "timeout"

	// ReasonConnection means no connection could be established or it was dropped.
	ReasonConnection FailureReason = "connection_error"

	// ReasonTransport covers any other transport-level failure.
	ReasonTransport FailureReason = "transport_error"

	// ReasonUnexpectedStatus means a response arrived with a status code the
	// target does not accept.
	ReasonUnexpectedStatus FailureReason = "unexpected_status"
)

// FailureReasons lists every reason in a stable order for reporting.
var FailureReasons = []FailureReason{
	ReasonTimeout,
	ReasonConnection,
	ReasonTransport,
	ReasonUnexpectedStatus,
}

// Outcome is the classified result of one attempt. The zero Reason means
// success.
type Outcome struct {
	StatusCode int           `json:"statusCode,omitempty"`
	Reason     FailureReason `json:"reason,omitempty"`
}

// Success returns a successful outcome with the given status code.
func Success(statusCode int) Outcome {
	return Outcome{StatusCode: statusCode}
}

// Failure returns a failed outcome for the given reason.
func Failure(reason FailureReason) Outcome {
	return Outcome{Reason: reason}
}

// UnexpectedStatus returns a failed outcome that keeps the received status code.
func UnexpectedStatus(statusCode int) Outcome {
	return Outcome{StatusCode: statusCode, Reason: ReasonUnexpectedStatus}
}

// IsSuccess reports whether the outcome is a success.
func (o Outcome) IsSuccess() bool {
	return o.Reason == ""
}

func (o Outcome) String() string {
	if o.IsSuccess() {
		return fmt.Sprintf("success(%d)", o.StatusCode)
	}
	if o.Reason == ReasonUnexpectedStatus {
		return fmt.Sprintf("failure(%s %d)", o.Reason, o.StatusCode)
	}
	return fmt.Sprintf("failure(%s)", o.Reason)
}

// Attempt is what a transport reports for one issued request, before the
// runner stamps it into a Sample.
type Attempt struct {
	Elapsed time.Duration
	Outcome Outcome
	Bytes   int64
}

// Sample is one measured request attempt. Samples are values; a Store hands
// out copies so a recorded Sample cannot change.
type Sample struct {
	// Seq is the issue index within its phase, assigned when the request is
	// issued. It differs from the Store position under concurrency.
	Seq uint64 `json:"seq"`

	// Worker is the concurrency slot that issued the request.
	Worker int `json:"worker"`

	// Start is the issue time as an offset from the start of the phase.
	Start time.Duration `json:"start"`

	// Elapsed is the request latency.
	Elapsed time.Duration `json:"elapsed"`

	Outcome Outcome `json:"outcome"`

	// Bytes is the number of response body bytes read.
	Bytes int64 `json:"bytes,omitempty"`
}

// End returns the completion offset of the sample.
func (s Sample) End() time.Duration {
	return s.Start + s.Elapsed
}
