// Package resilience provides the failure-handling building blocks used by
// the pkgfleet orchestrator: error classification, retry with exponential
// backoff and jitter, per-backend circuit breakers, and a cooperative
// timeout guard.
//
// # Error Classification
//
// Classify maps a raw backend error into a failure kind that drives retry
// eligibility, circuit health and telemetry reporting:
//
//	kind := resilience.Classify(err)
//	if resilience.IsRetryable(kind) { ... }
//
// # Retry with Exponential Backoff
//
// A Policy computes delays and attempt budgets; the caller owns the attempt
// counter and the loop:
//
//	policy := resilience.NewPolicy(resilience.DefaultRetryConfig())
//	if policy.ShouldRetry(attempt, kind) {
//		policy.Sleep(ctx, policy.NextDelay(attempt))
//	}
//
// # Circuit Breaker
//
// Each backend gets an independent breaker; the registry keys them by
// backend id:
//
//	breakers := resilience.NewBreakerRegistry(resilience.BreakerConfig{
//		FailureThreshold: 5,
//		CoolDown:         30 * time.Second,
//	})
//	if breakers.Allow("winget") {
//		// invoke, then breakers.RecordSuccess / breakers.RecordFailure
//	}
//
// # Timeout Guard
//
// RunWithTimeout bounds one attempt with a deadline while leaving the
// workload cooperative:
//
//	value, err := resilience.RunWithTimeout(ctx, 30*time.Second, "search", invoke)
package resilience
