package query

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Outcome classifies a single attempt or a final result.
type Outcome int

// Outcomes. A final Result is always OutcomeSuccess or OutcomeFailure.
const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeTimeout
	OutcomeTransient
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeTransient:
		return "transient"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Sentinel errors providers can wrap to force a classification.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("request timed out")
	ErrTransient   = errors.New("transient failure")
)

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Classify maps an attempt error to an Outcome. It never blocks.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}

	if errors.Is(err, ErrRateLimited) {
		return OutcomeRateLimited
	}

	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeTimeout
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		switch code := sc.StatusCode(); {
		case code == http.StatusTooManyRequests:
			return OutcomeRateLimited
		case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
			return OutcomeTimeout
		case code == http.StatusBadGateway || code == http.StatusServiceUnavailable || code == http.StatusInternalServerError:
			return OutcomeTransient
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return OutcomeTimeout
	}

	if errors.Is(err, ErrTransient) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) {
		return OutcomeTransient
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return OutcomeTransient
	}

	return OutcomeFailure
}
