package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
	"github.com/pkgfleet/pkgfleet/pkg/logging"
)

// RetryConfig holds configuration for retry logic
type RetryConfig struct {
	// MaxAttempts is the total attempt budget for transient failures
	MaxAttempts int
	// UnknownMaxAttempts is the lower attempt budget for unrecognized failures
	UnknownMaxAttempts int
	// BaseDelay is the backoff base; jitter is drawn uniformly from [0, BaseDelay)
	BaseDelay time.Duration
	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration
	// OnRetry is called before each retry attempt
	OnRetry func(attempt int, kind apperrors.ErrorKind, delay time.Duration)
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:        3,
		UnknownMaxAttempts: 2,
		BaseDelay:          200 * time.Millisecond,
		MaxDelay:           10 * time.Second,
	}
}

// Policy decides whether and when a failed attempt is retried. Attempt
// counters are owned by the caller and start over for every operation
// against every backend; the policy itself is stateless and safe for
// concurrent use.
type Policy struct {
	config RetryConfig
	logger *logging.Logger
}

// NewPolicy creates a retry policy with the given configuration
func NewPolicy(config RetryConfig) *Policy {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.UnknownMaxAttempts <= 0 {
		config.UnknownMaxAttempts = 1
	}
	if config.BaseDelay <= 0 {
		config.BaseDelay = 200 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 10 * time.Second
	}

	return &Policy{
		config: config,
		logger: logging.GetLogger(),
	}
}

// ShouldRetry reports whether another attempt is allowed after the given
// number of completed attempts failed with the given kind. Terminal,
// user-input and cancelled failures are never retried.
func (p *Policy) ShouldRetry(attempt int, kind apperrors.ErrorKind) bool {
	switch kind {
	case apperrors.KindTransient, apperrors.KindTimeout:
		return attempt < p.config.MaxAttempts
	case apperrors.KindUnknown:
		return attempt < p.config.UnknownMaxAttempts
	}
	return false
}

// NextDelay computes the backoff delay before the attempt following the
// given completed attempt count: base * 2^attempt capped at MaxDelay, plus
// uniform jitter in [0, base) so concurrently-failing backends do not retry
// in lockstep.
func (p *Policy) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.config.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(p.config.MaxDelay) {
		delay = float64(p.config.MaxDelay)
	}

	jitter := rand.Int63n(int64(p.config.BaseDelay))
	return time.Duration(delay) + time.Duration(jitter)
}

// Sleep waits for the given delay or until the context is cancelled,
// whichever comes first. A cancelled wait returns the context error.
func (p *Policy) Sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MaxAttemptsFor returns the attempt budget for the given failure kind
func (p *Policy) MaxAttemptsFor(kind apperrors.ErrorKind) int {
	switch kind {
	case apperrors.KindTransient, apperrors.KindTimeout:
		return p.config.MaxAttempts
	case apperrors.KindUnknown:
		return p.config.UnknownMaxAttempts
	}
	return 1
}

// NotifyRetry invokes the retry callback if one is configured
func (p *Policy) NotifyRetry(attempt int, kind apperrors.ErrorKind, delay time.Duration) {
	if p.config.OnRetry != nil {
		p.config.OnRetry(attempt, kind, delay)
	}

	p.logger.Debug("Attempt failed, retrying",
		"attempt", attempt,
		"kind", string(kind),
		"delay", delay,
	)
}
