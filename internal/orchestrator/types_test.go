package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pkgfleet/pkgfleet/pkg/backend"
	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
)

func TestSummarize(t *testing.T) {
	succeeded := Outcome{Status: StatusSucceeded}
	failed := Outcome{Status: StatusFailed}
	skipped := Outcome{Status: StatusSkipped}

	tests := []struct {
		name     string
		outcomes map[string]Outcome
		want     Summary
	}{
		{"all succeeded", map[string]Outcome{"a": succeeded, "b": succeeded}, AllSucceeded},
		{"all failed", map[string]Outcome{"a": failed, "b": failed}, AllFailed},
		{"all skipped counts as failed", map[string]Outcome{"a": skipped}, AllFailed},
		{"mixed success and failure", map[string]Outcome{"a": succeeded, "b": failed}, PartialSuccess},
		{"mixed success and skip", map[string]Outcome{"a": succeeded, "b": skipped}, PartialSuccess},
		{"single success", map[string]Outcome{"a": succeeded}, AllSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, summarize(tt.outcomes))
		})
	}
}

func TestCollectWarnings(t *testing.T) {
	outcomes := map[string]Outcome{
		"apt": {
			BackendID: "apt",
			Operation: backend.OpSearch,
			Status:    StatusSucceeded,
			Source:    SourceLive,
		},
		"brew": {
			BackendID:  "brew",
			Operation:  backend.OpSearch,
			Status:     StatusSucceeded,
			Source:     SourceCache,
			SkipReason: SkipOffline,
		},
		"winget": {
			BackendID:  "winget",
			Operation:  backend.OpSearch,
			Status:     StatusSkipped,
			SkipReason: SkipCircuitOpen,
		},
		"scoop": {
			BackendID: "scoop",
			Operation: backend.OpSearch,
			Status:    StatusFailed,
			Kind:      apperrors.KindTerminal,
		},
	}

	warnings := collectWarnings(outcomes)
	assert.Len(t, warnings, 2)

	byBackend := make(map[string]Warning)
	for _, w := range warnings {
		byBackend[w.BackendID] = w
	}

	assert.True(t, byBackend["brew"].UsedCache)
	assert.Equal(t, string(SkipOffline), byBackend["brew"].Reason)

	assert.False(t, byBackend["winget"].UsedCache)
	assert.Equal(t, string(SkipCircuitOpen), byBackend["winget"].Reason)
}

func TestCollectWarnings_ExhaustedFallbackUsesFailureKind(t *testing.T) {
	outcomes := map[string]Outcome{
		"apt": {
			BackendID: "apt",
			Operation: backend.OpSearch,
			Status:    StatusSucceeded,
			Source:    SourceCache,
			Kind:      apperrors.KindTransient,
		},
	}

	warnings := collectWarnings(outcomes)
	assert.Len(t, warnings, 1)
	assert.Equal(t, string(apperrors.KindTransient), warnings[0].Reason)
	assert.True(t, warnings[0].UsedCache)
}

func TestAggregated_Succeeded(t *testing.T) {
	agg := &Aggregated{
		Outcomes: map[string]Outcome{
			"apt":  {BackendID: "apt", Status: StatusSucceeded},
			"brew": {BackendID: "brew", Status: StatusFailed},
		},
	}

	succeeded := agg.Succeeded()
	assert.Len(t, succeeded, 1)
	assert.Equal(t, "apt", succeeded[0].BackendID)
}
