package orchestrator

import (
	"time"

	"github.com/pkgfleet/pkgfleet/pkg/backend"
	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
)

// OutcomeStatus is the terminal status of one backend's part of an operation
type OutcomeStatus string

const (
	// StatusSucceeded - the backend produced a value, live or from cache
	StatusSucceeded OutcomeStatus = "succeeded"
	// StatusFailed - all attempts were exhausted or the failure was not retryable
	StatusFailed OutcomeStatus = "failed"
	// StatusSkipped - no live attempt was made and no cached value recovered it
	StatusSkipped OutcomeStatus = "skipped"
)

// ValueSource tells where a successful value came from
type ValueSource string

const (
	SourceLive  ValueSource = "live"
	SourceCache ValueSource = "cache"
)

// SkipReason tells why a backend was not attempted live
type SkipReason string

const (
	SkipCircuitOpen SkipReason = "circuit_open"
	SkipOffline     SkipReason = "offline"
)

// Outcome is the per-backend result of one Execute call. Exactly one of the
// status branches applies; circuit-open and offline are expected branches
// carried as values, not errors.
type Outcome struct {
	BackendID string                `json:"backend_id"`
	Operation backend.OperationKind `json:"operation"`
	Status    OutcomeStatus         `json:"status"`

	// Set when Status is StatusSucceeded
	Value  backend.Value `json:"value,omitempty"`
	Source ValueSource   `json:"source,omitempty"`
	// CacheAge is the age of the served entry when Source is SourceCache
	CacheAge time.Duration `json:"cache_age,omitempty"`

	// Set when Status is StatusFailed
	Kind    apperrors.ErrorKind `json:"kind,omitempty"`
	Message string              `json:"message,omitempty"`

	// Set when Status is StatusSkipped
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Attempts is the number of live invocations made
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// Summary classifies the aggregated result as a whole
type Summary string

const (
	AllSucceeded   Summary = "all_succeeded"
	PartialSuccess Summary = "partial_success"
	AllFailed      Summary = "all_failed"
)

// Warning is a structured, language-agnostic descriptor of a degraded
// per-backend outcome. Formatting and localization belong to the caller.
type Warning struct {
	BackendID string                `json:"backend_id"`
	Operation backend.OperationKind `json:"operation"`
	// Reason is the skip reason or failure kind that degraded the outcome
	Reason string `json:"reason"`
	// UsedCache is true when a cached value stood in for a live result
	UsedCache bool `json:"used_cache"`
}

// Aggregated is the orchestrator's result for one Execute call: every
// target backend reaches exactly one terminal outcome, keyed by identity.
type Aggregated struct {
	Operation backend.OperationKind `json:"operation"`
	Outcomes  map[string]Outcome    `json:"outcomes"`
	Summary   Summary               `json:"summary"`
	Warnings  []Warning             `json:"warnings,omitempty"`
	Duration  time.Duration         `json:"duration"`
}

// Succeeded returns the outcomes that produced a value
func (a *Aggregated) Succeeded() []Outcome {
	var succeeded []Outcome
	for _, outcome := range a.Outcomes {
		if outcome.Status == StatusSucceeded {
			succeeded = append(succeeded, outcome)
		}
	}
	return succeeded
}

// summarize derives the overall classification from the per-backend
// outcomes: partial success needs at least one success and at least one
// non-success; all-failed means zero successes.
func summarize(outcomes map[string]Outcome) Summary {
	succeeded := 0
	for _, outcome := range outcomes {
		if outcome.Status == StatusSucceeded {
			succeeded++
		}
	}

	switch {
	case succeeded == len(outcomes):
		return AllSucceeded
	case succeeded == 0:
		return AllFailed
	default:
		return PartialSuccess
	}
}

// collectWarnings lists every outcome that fell back to cache or never ran
func collectWarnings(outcomes map[string]Outcome) []Warning {
	var warnings []Warning
	for _, outcome := range outcomes {
		switch {
		case outcome.Status == StatusSucceeded && outcome.Source == SourceCache:
			reason := string(outcome.SkipReason)
			if reason == "" {
				reason = string(outcome.Kind)
			}
			warnings = append(warnings, Warning{
				BackendID: outcome.BackendID,
				Operation: outcome.Operation,
				Reason:    reason,
				UsedCache: true,
			})
		case outcome.Status == StatusSkipped:
			warnings = append(warnings, Warning{
				BackendID: outcome.BackendID,
				Operation: outcome.Operation,
				Reason:    string(outcome.SkipReason),
			})
		}
	}
	return warnings
}
