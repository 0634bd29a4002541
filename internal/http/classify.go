package http

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/wesleyorama2/volley/internal/bench"
)

// classify maps a round-trip error to a failure reason.
func classify(err error) bench.FailureReason {
	if isTimeout(err) {
		return bench.ReasonTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return bench.ReasonConnection
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return bench.ReasonConnection
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF):
		return bench.ReasonConnection
	}
	return bench.ReasonTransport
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
