package resilience

import (
	"context"
	"errors"
	"net"
	"os/exec"
	"syscall"

	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
)

// Classify maps a raw backend failure into the failure taxonomy. It is a
// pure decision function: no side effects, no I/O.
//
// Classification order matters: an explicit AppError kind from a backend
// adapter always wins, then cancellation and deadline signals, then
// recognizable network failures. Anything else is unknown.
func Classify(err error) apperrors.ErrorKind {
	if err == nil {
		return ""
	}

	if kind, ok := apperrors.GetKind(err); ok {
		return kind
	}

	if errors.Is(err, context.Canceled) {
		return apperrors.KindCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return apperrors.KindTimeout
		}
		return apperrors.KindTransient
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return apperrors.KindTransient
	}

	// A CLI backend that ran to completion and reported failure via its exit
	// code gave a definitive answer; retrying will not change it.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return apperrors.KindTerminal
	}

	return apperrors.KindUnknown
}

// IsRetryable reports whether a failure of the given kind is eligible for
// another attempt. Timeouts count as transient for retry purposes.
func IsRetryable(kind apperrors.ErrorKind) bool {
	switch kind {
	case apperrors.KindTransient, apperrors.KindTimeout, apperrors.KindUnknown:
		return true
	}
	return false
}

// AffectsCircuit reports whether a failure of the given kind counts toward
// circuit health. Terminal and user-input failures are caller or catalog
// facts, not backend unavailability, and must not trip the breaker.
func AffectsCircuit(kind apperrors.ErrorKind) bool {
	switch kind {
	case apperrors.KindTransient, apperrors.KindTimeout, apperrors.KindUnknown:
		return true
	}
	return false
}

// IsReportable reports whether a finalized failure of the given kind should
// reach the telemetry sink. Transient failures are reported only after
// retry exhaustion, which is the only point this is consulted for them;
// unknown failures are always reported.
func IsReportable(kind apperrors.ErrorKind) bool {
	switch kind {
	case apperrors.KindTransient, apperrors.KindTimeout, apperrors.KindUnknown:
		return true
	}
	return false
}
