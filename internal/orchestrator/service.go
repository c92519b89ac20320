package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/pkgfleet/pkgfleet/internal/cache"
	"github.com/pkgfleet/pkgfleet/internal/connectivity"
	"github.com/pkgfleet/pkgfleet/internal/telemetry"
	"github.com/pkgfleet/pkgfleet/pkg/backend"
	"github.com/pkgfleet/pkgfleet/pkg/config"
	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
	"github.com/pkgfleet/pkgfleet/pkg/logging"
	"github.com/pkgfleet/pkgfleet/pkg/metrics"
	"github.com/pkgfleet/pkgfleet/pkg/resilience"
	"github.com/pkgfleet/pkgfleet/pkg/tracing"
)

// Options wires the orchestrator's collaborators. Zero-value fields get
// working defaults; Cache and Monitor may stay nil, which disables fallback
// and offline short-circuiting respectively.
type Options struct {
	Registry  *Registry
	Breakers  *resilience.BreakerRegistry
	Retry     *resilience.Policy
	Cache     *cache.ResultCache
	Monitor   *connectivity.Monitor
	Telemetry telemetry.Sink
	Metrics   *metrics.Metrics
	Tracing   *tracing.Service
	Config    config.ResilienceConfig
	Logger    *logging.Logger
}

// Orchestrator coordinates operations across all registered backends. For
// each operation it fans out one unit of work per target backend, applies
// the timeout guard, retry policy and circuit breaker per backend, falls
// back to cached results when live invocation is skipped or exhausted, and
// aggregates the per-backend outcomes into a single result.
type Orchestrator struct {
	registry  *Registry
	breakers  *resilience.BreakerRegistry
	retry     *resilience.Policy
	cache     *cache.ResultCache
	monitor   *connectivity.Monitor
	telemetry telemetry.Sink
	metrics   *metrics.Metrics
	tracing   *tracing.Service
	config    config.ResilienceConfig
	logger    *logging.Logger
}

// New creates an orchestrator from the given options
func New(opts Options) *Orchestrator {
	if opts.Registry == nil {
		opts.Registry = NewRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = logging.GetLogger()
	}
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NopSink{}
	}

	if opts.Config.RetryMaxAttempts <= 0 {
		opts.Config.RetryMaxAttempts = 3
	}
	if opts.Config.RetryUnknownMaxAttempts <= 0 {
		opts.Config.RetryUnknownMaxAttempts = 2
	}
	if opts.Config.BackoffBase <= 0 {
		opts.Config.BackoffBase = 200 * time.Millisecond
	}
	if opts.Config.BackoffCap <= 0 {
		opts.Config.BackoffCap = 10 * time.Second
	}
	if opts.Config.BreakerFailureThreshold <= 0 {
		opts.Config.BreakerFailureThreshold = 5
	}
	if opts.Config.BreakerCoolDown <= 0 {
		opts.Config.BreakerCoolDown = 30 * time.Second
	}
	if opts.Config.OperationTimeout <= 0 {
		opts.Config.OperationTimeout = 60 * time.Second
	}

	if opts.Retry == nil {
		opts.Retry = resilience.NewPolicy(resilience.RetryConfig{
			MaxAttempts:        opts.Config.RetryMaxAttempts,
			UnknownMaxAttempts: opts.Config.RetryUnknownMaxAttempts,
			BaseDelay:          opts.Config.BackoffBase,
			MaxDelay:           opts.Config.BackoffCap,
		})
	}

	o := &Orchestrator{
		registry:  opts.Registry,
		retry:     opts.Retry,
		cache:     opts.Cache,
		monitor:   opts.Monitor,
		telemetry: opts.Telemetry,
		metrics:   opts.Metrics,
		tracing:   opts.Tracing,
		config:    opts.Config,
		logger:    opts.Logger,
	}

	if opts.Breakers != nil {
		o.breakers = opts.Breakers
	} else {
		o.breakers = resilience.NewBreakerRegistry(resilience.BreakerConfig{
			FailureThreshold: opts.Config.BreakerFailureThreshold,
			CoolDown:         opts.Config.BreakerCoolDown,
			CoolDownCap:      opts.Config.BreakerCoolDownCap,
			OnStateChange:    o.onBreakerChange,
		})
	}

	return o
}

// RegisterBackend adds a backend and creates its breaker in the closed
// state using the backend's effective tunables
func (o *Orchestrator) RegisterBackend(b backend.Backend) error {
	if err := o.registry.Register(b); err != nil {
		return err
	}

	tunables := o.config.ForBackend(b.ID())
	o.breakers.Register(b.ID(), resilience.BreakerConfig{
		FailureThreshold: tunables.BreakerFailureThreshold,
		CoolDown:         tunables.BreakerCoolDown,
		CoolDownCap:      o.config.BreakerCoolDownCap,
		OnStateChange:    o.onBreakerChange,
	})

	o.logger.Info("Backend registered",
		"backend", b.ID(),
		"name", b.Name(),
	)
	return nil
}

// Registry exposes the backend registry for health surfaces
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// BreakerStates returns a snapshot of every backend's circuit state
func (o *Orchestrator) BreakerStates() map[string]resilience.CircuitState {
	return o.breakers.States()
}

// ExecuteAll runs the operation against every registered backend
func (o *Orchestrator) ExecuteAll(ctx context.Context, op backend.OperationKind, req backend.Request) (*Aggregated, error) {
	return o.Execute(ctx, op, req, o.registry.List())
}

// Execute runs the operation concurrently against the target backends and
// aggregates the per-backend outcomes. It returns a hard error only for
// caller-contract violations; backend failures surface as outcomes. The
// call does not return until every target reached a terminal outcome, and
// a cancelled context finalizes in-flight units promptly as cancelled while
// preserving outcomes that already completed.
func (o *Orchestrator) Execute(ctx context.Context, op backend.OperationKind, req backend.Request, targets []backend.Backend) (*Aggregated, error) {
	if len(targets) == 0 {
		return nil, apperrors.NewUserInputError("no target backends")
	}
	if !op.Valid() {
		return nil, apperrors.NewUserInputError(fmt.Sprintf("unknown operation kind %q", string(op)))
	}

	// Outcomes are keyed by backend id; a duplicate target would silently
	// overwrite a sibling's result.
	seen := make(map[string]struct{}, len(targets))
	for _, target := range targets {
		if _, dup := seen[target.ID()]; dup {
			return nil, apperrors.NewUserInputError(fmt.Sprintf("backend %s listed more than once", target.ID()))
		}
		seen[target.ID()] = struct{}{}
	}

	if logging.GetCorrelationID(ctx) == "" {
		ctx = logging.WithCorrelationID(ctx, logging.NewCorrelationID())
	}

	if o.tracing != nil {
		var span oteltrace.Span
		ctx, span = o.tracing.StartOperationSpan(ctx, string(op), len(targets))
		defer span.End()
	}

	started := time.Now()
	resultCh := make(chan Outcome, len(targets))

	var wg sync.WaitGroup
	for _, target := range targets {
		wg.Add(1)
		go func(b backend.Backend) {
			defer wg.Done()

			outcome := Outcome{
				BackendID: b.ID(),
				Operation: op,
				Status:    StatusFailed,
				Kind:      apperrors.KindUnknown,
			}
			defer func() {
				if r := recover(); r != nil {
					outcome.Message = fmt.Sprintf("backend panicked: %v", r)
					o.logger.Error("Backend invocation panicked",
						"backend", b.ID(),
						"operation", string(op),
						"panic", r,
					)
				}
				resultCh <- outcome
			}()

			outcome = o.runBackend(ctx, op, req, b)
		}(target)
	}

	// Barrier: every backend reaches a terminal outcome before aggregation,
	// no outcome is dropped because a sibling took longer.
	wg.Wait()
	close(resultCh)

	outcomes := make(map[string]Outcome, len(targets))
	for outcome := range resultCh {
		outcomes[outcome.BackendID] = outcome
	}

	agg := &Aggregated{
		Operation: op,
		Outcomes:  outcomes,
		Summary:   summarize(outcomes),
		Warnings:  collectWarnings(outcomes),
		Duration:  time.Since(started),
	}

	if o.metrics != nil {
		o.metrics.RecordExecute(string(op), string(agg.Summary), agg.Duration)
	}

	o.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"operation": string(op),
		"targets":   len(targets),
		"summary":   string(agg.Summary),
		"duration":  agg.Duration.String(),
	}).Info("Operation completed")

	return agg, nil
}

// runBackend drives one backend to a terminal outcome: offline and
// open-circuit short-circuits first, then the attempt loop with timeout
// guard, classification, breaker recording and retry, then a last cache
// fallback before giving up.
func (o *Orchestrator) runBackend(ctx context.Context, op backend.OperationKind, req backend.Request, b backend.Backend) Outcome {
	started := time.Now()
	outcome := Outcome{BackendID: b.ID(), Operation: op}
	timeout := o.timeoutFor(b.ID(), req)

	if op.NetworkRequired() && o.monitor != nil && !o.monitor.IsOnline() {
		outcome.Status = StatusSkipped
		outcome.SkipReason = SkipOffline
		return o.withFallback(ctx, op, req, outcome, started)
	}

	attempts := 0
	for {
		if ctx.Err() != nil {
			return o.cancelledOutcome(outcome, attempts, started)
		}

		// The breaker may have been opened by a concurrent operation or by
		// this loop's own failures; check before every attempt.
		if !o.breakers.Allow(b.ID()) {
			outcome.Status = StatusSkipped
			outcome.SkipReason = SkipCircuitOpen
			outcome.Attempts = attempts
			return o.withFallback(ctx, op, req, outcome, started)
		}

		attempts++
		if attempts > 1 && o.metrics != nil {
			o.metrics.RecordRetry(b.ID(), string(op))
		}

		attemptStart := time.Now()
		attemptCtx := ctx
		var span oteltrace.Span
		if o.tracing != nil {
			attemptCtx, span = o.tracing.StartBackendSpan(ctx, b.ID(), string(op), attempts)
		}
		value, err := resilience.RunWithTimeout(attemptCtx, timeout, string(op), func(invokeCtx context.Context) (interface{}, error) {
			return b.Invoke(invokeCtx, op, req)
		})
		if span != nil {
			span.End()
		}

		if err == nil {
			result, _ := value.(backend.Value)
			o.breakers.RecordSuccess(b.ID())
			if o.metrics != nil {
				o.metrics.RecordInvocation(b.ID(), string(op), "success", time.Since(attemptStart))
			}

			if o.cache != nil && op.Cacheable() {
				if cacheErr := o.cache.Put(ctx, b.ID(), op, req.Key, result); cacheErr != nil {
					o.logger.Warn("Failed to cache live result",
						"backend", b.ID(),
						"operation", string(op),
						"error", cacheErr.Error(),
					)
				}
			}

			outcome.Status = StatusSucceeded
			outcome.Value = result
			outcome.Source = SourceLive
			outcome.Attempts = attempts
			outcome.Duration = time.Since(started)
			return outcome
		}

		kind := resilience.Classify(err)
		o.breakers.RecordFailure(b.ID(), kind)
		if o.metrics != nil {
			o.metrics.RecordInvocation(b.ID(), string(op), string(kind), time.Since(attemptStart))
		}

		if kind == apperrors.KindCancelled {
			return o.cancelledOutcome(outcome, attempts, started)
		}

		// Unrecognized failures are reported immediately; the reporter's
		// dedup window keeps repeats quiet.
		if kind == apperrors.KindUnknown {
			o.telemetry.ReportFailure(ctx, b.ID(), op, kind, err.Error())
		}

		if !o.retry.ShouldRetry(attempts, kind) {
			if kind == apperrors.KindTransient || kind == apperrors.KindTimeout {
				o.telemetry.ReportFailure(ctx, b.ID(), op, kind, err.Error())
			}

			outcome.Status = StatusFailed
			outcome.Kind = kind
			outcome.Message = err.Error()
			outcome.Attempts = attempts
			return o.withFallback(ctx, op, req, outcome, started)
		}

		delay := o.retry.NextDelay(attempts)
		o.retry.NotifyRetry(attempts, kind, delay)
		if sleepErr := o.retry.Sleep(ctx, delay); sleepErr != nil {
			return o.cancelledOutcome(outcome, attempts, started)
		}
	}
}

// withFallback consults the result cache for a skipped or exhausted
// backend. A hit upgrades the outcome to a cache-sourced success while
// keeping the original reason for the warning; a miss leaves the outcome
// as is. Cache-sourced values are never written back.
func (o *Orchestrator) withFallback(ctx context.Context, op backend.OperationKind, req backend.Request, outcome Outcome, started time.Time) Outcome {
	if o.cache != nil && op.Cacheable() {
		if value, found, age := o.cache.Get(ctx, outcome.BackendID, op, req.Key); found {
			if o.metrics != nil {
				o.metrics.RecordCacheHit(outcome.BackendID, string(op))
			}

			outcome.Status = StatusSucceeded
			outcome.Value = value
			outcome.Source = SourceCache
			outcome.CacheAge = age
			outcome.Duration = time.Since(started)
			return outcome
		}

		if o.metrics != nil {
			o.metrics.RecordCacheMiss(outcome.BackendID, string(op))
		}
	}

	outcome.Duration = time.Since(started)
	return outcome
}

// cancelledOutcome finalizes a unit interrupted by caller cancellation.
// Cancelled outcomes are never retried and never reported.
func (o *Orchestrator) cancelledOutcome(outcome Outcome, attempts int, started time.Time) Outcome {
	outcome.Status = StatusFailed
	outcome.Kind = apperrors.KindCancelled
	outcome.Message = "operation cancelled by caller"
	outcome.Attempts = attempts
	outcome.Duration = time.Since(started)
	return outcome
}

// timeoutFor resolves the per-attempt deadline: an explicit request timeout
// wins over the backend's configured operation timeout
func (o *Orchestrator) timeoutFor(backendID string, req backend.Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	return o.config.ForBackend(backendID).OperationTimeout
}

// onBreakerChange forwards circuit transitions to metrics and the log
func (o *Orchestrator) onBreakerChange(name string, from, to resilience.CircuitState) {
	if o.metrics != nil {
		o.metrics.RecordBreakerTransition(name, from.String(), to.String())
	}
}
