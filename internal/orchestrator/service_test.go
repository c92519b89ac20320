package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgfleet/pkgfleet/internal/cache"
	"github.com/pkgfleet/pkgfleet/internal/connectivity"
	"github.com/pkgfleet/pkgfleet/pkg/backend"
	"github.com/pkgfleet/pkgfleet/pkg/config"
	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
	"github.com/pkgfleet/pkgfleet/pkg/resilience"
)

// fakeBackend scripts per-call results and counts invocations
type fakeBackend struct {
	id string
	fn func(call int) (backend.Value, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeBackend) Name() string { return f.id }
func (f *fakeBackend) ID() string   { return f.id }

func (f *fakeBackend) Invoke(ctx context.Context, op backend.OperationKind, req backend.Request) (backend.Value, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.fn(call)
}

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func succeedWith(payload string) func(int) (backend.Value, error) {
	return func(int) (backend.Value, error) {
		return backend.Value{MediaType: "application/json", Payload: json.RawMessage(payload)}, nil
	}
}

func alwaysFail(err error) func(int) (backend.Value, error) {
	return func(int) (backend.Value, error) {
		return backend.Value{}, err
	}
}

// recordingSink counts telemetry reports per backend
type recordingSink struct {
	mu      sync.Mutex
	reports []apperrors.ErrorKind
}

func (s *recordingSink) ReportFailure(ctx context.Context, backendID string, op backend.OperationKind, kind apperrors.ErrorKind, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, kind)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func fastConfig() config.ResilienceConfig {
	return config.ResilienceConfig{
		RetryMaxAttempts:        3,
		RetryUnknownMaxAttempts: 2,
		BackoffBase:             time.Millisecond,
		BackoffCap:              4 * time.Millisecond,
		BreakerFailureThreshold: 3,
		BreakerCoolDown:         time.Minute,
		OperationTimeout:        time.Second,
	}
}

type testEnv struct {
	orch    *Orchestrator
	cache   *cache.ResultCache
	monitor *connectivity.Monitor
	sink    *recordingSink
}

func newTestEnv(t *testing.T, cfg config.ResilienceConfig, backends ...backend.Backend) *testEnv {
	t.Helper()

	resultCache := cache.New(cache.NewMemoryStore(), nil)
	monitor := connectivity.NewMonitor(connectivity.Config{InitialOnline: true})
	sink := &recordingSink{}

	orch := New(Options{
		Cache:     resultCache,
		Monitor:   monitor,
		Telemetry: sink,
		Config:    cfg,
	})
	for _, b := range backends {
		require.NoError(t, orch.RegisterBackend(b))
	}

	return &testEnv{orch: orch, cache: resultCache, monitor: monitor, sink: sink}
}

func TestExecute_AllSucceedLive(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`"apt result"`)}
	brew := &fakeBackend{id: "brew", fn: succeedWith(`"brew result"`)}
	env := newTestEnv(t, fastConfig(), apt, brew)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	assert.Equal(t, AllSucceeded, agg.Summary)
	assert.Len(t, agg.Outcomes, 2)
	assert.Empty(t, agg.Warnings)

	for _, id := range []string{"apt", "brew"} {
		outcome := agg.Outcomes[id]
		assert.Equal(t, StatusSucceeded, outcome.Status)
		assert.Equal(t, SourceLive, outcome.Source)
		assert.Equal(t, 1, outcome.Attempts)
	}
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: func(call int) (backend.Value, error) {
		if call < 3 {
			return backend.Value{}, apperrors.NewTransientError("mirror busy")
		}
		return backend.Value{Payload: json.RawMessage(`"v1"`)}, nil
	}}
	env := newTestEnv(t, fastConfig(), apt)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, SourceLive, outcome.Source)
	assert.Equal(t, json.RawMessage(`"v1"`), outcome.Value.Payload)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, apt.callCount())

	// Recovered within the retry budget; nothing reaches the sink.
	assert.Equal(t, 0, env.sink.count())
}

func TestExecute_TransientExhaustionReportsOnce(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: alwaysFail(apperrors.NewTransientError("mirror down"))}

	cfg := fastConfig()
	cfg.BreakerFailureThreshold = 10
	env := newTestEnv(t, cfg, apt)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpInstall, backend.Request{Key: "htop"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, apperrors.KindTransient, outcome.Kind)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, AllFailed, agg.Summary)

	// Reported only at exhaustion, not per attempt.
	assert.Equal(t, 1, env.sink.count())
}

func TestExecute_BreakerOpensMidOperation(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: alwaysFail(apperrors.NewTransientError("mirror down"))}

	// Retry budget exceeds the breaker threshold, so the breaker opens while
	// the attempt loop is still willing to retry.
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 5
	cfg.BreakerFailureThreshold = 3
	env := newTestEnv(t, cfg, apt)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpInstall, backend.Request{Key: "htop"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, SkipCircuitOpen, outcome.SkipReason)
	assert.Equal(t, 3, outcome.Attempts, "no attempt may slip past the open breaker")
	assert.Equal(t, 3, apt.callCount())
}

func TestExecute_OpenBreakerSkipsSubsequentOperations(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: alwaysFail(apperrors.NewTransientError("mirror down"))}
	env := newTestEnv(t, fastConfig(), apt)

	ctx := context.Background()
	_, err := env.orch.ExecuteAll(ctx, backend.OpInstall, backend.Request{Key: "htop"})
	require.NoError(t, err)
	require.Equal(t, 3, apt.callCount())

	// Circuit is open now; the next operation makes zero live calls.
	agg, err := env.orch.ExecuteAll(ctx, backend.OpInstall, backend.Request{Key: "vim"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, SkipCircuitOpen, outcome.SkipReason)
	assert.Equal(t, 3, apt.callCount())
}

func TestExecute_BackendRecoversAfterTerminalTrialAnswer(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: func(call int) (backend.Value, error) {
		switch call {
		case 1:
			return backend.Value{}, apperrors.NewTransientError("mirror down")
		case 2:
			return backend.Value{}, apperrors.NewPackageNotFoundError("ghost-pkg")
		default:
			return backend.Value{Payload: json.RawMessage(`"back"`)}, nil
		}
	}}

	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerFailureThreshold = 1
	cfg.BreakerCoolDown = 30 * time.Millisecond
	env := newTestEnv(t, cfg, apt)

	ctx := context.Background()

	// Outage trips the breaker.
	agg, err := env.orch.ExecuteAll(ctx, backend.OpDetails, backend.Request{Key: "ghost-pkg"})
	require.NoError(t, err)
	require.Equal(t, StatusFailed, agg.Outcomes["apt"].Status)
	require.Equal(t, resilience.StateOpen, env.orch.BreakerStates()["apt"])

	time.Sleep(50 * time.Millisecond)

	// The half-open trial gets a definitive "not found": the backend is
	// reachable again, so the circuit closes despite the failed lookup.
	agg, err = env.orch.ExecuteAll(ctx, backend.OpDetails, backend.Request{Key: "ghost-pkg"})
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, agg.Outcomes["apt"].Status)
	assert.Equal(t, apperrors.KindTerminal, agg.Outcomes["apt"].Kind)
	assert.Equal(t, resilience.StateClosed, env.orch.BreakerStates()["apt"])

	// Later operations run live instead of being skipped.
	for i := 0; i < 3; i++ {
		agg, err = env.orch.ExecuteAll(ctx, backend.OpDetails, backend.Request{Key: "htop"})
		require.NoError(t, err)
		outcome := agg.Outcomes["apt"]
		assert.Equal(t, StatusSucceeded, outcome.Status, "operation %d", i)
		assert.Equal(t, SourceLive, outcome.Source, "operation %d", i)
	}
}

func TestExecute_TerminalFailureNotRetriedNotReported(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`"found"`)}
	brew := &fakeBackend{id: "brew", fn: alwaysFail(apperrors.NewPackageNotFoundError("htop"))}
	env := newTestEnv(t, fastConfig(), apt, brew)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpDetails, backend.Request{Key: "htop"})
	require.NoError(t, err)

	assert.Equal(t, PartialSuccess, agg.Summary)
	assert.Equal(t, StatusSucceeded, agg.Outcomes["apt"].Status)

	outcome := agg.Outcomes["brew"]
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, apperrors.KindTerminal, outcome.Kind)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Equal(t, 1, brew.callCount())

	// Definitive backend answers never reach the sink.
	assert.Equal(t, 0, env.sink.count())
}

func TestExecute_UserInputFailureDoesNotTripBreaker(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: alwaysFail(apperrors.NewUserInputError("bad package name"))}

	cfg := fastConfig()
	cfg.BreakerFailureThreshold = 1
	env := newTestEnv(t, cfg, apt)

	for i := 0; i < 3; i++ {
		_, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{Key: "!!"})
		require.NoError(t, err)
	}

	states := env.orch.BreakerStates()
	assert.Equal(t, resilience.StateClosed, states["apt"])
	assert.Equal(t, 3, apt.callCount())
	assert.Equal(t, 0, env.sink.count(), "caller mistakes are never reported")
}

func TestExecute_UnknownFailureReportedImmediately(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: alwaysFail(apperrors.NewUnknownError("garbled output"))}
	env := newTestEnv(t, fastConfig(), apt)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, apperrors.KindUnknown, outcome.Kind)
	assert.Equal(t, 2, outcome.Attempts, "unknown failures get the smaller budget")
	assert.Equal(t, 2, env.sink.count(), "every unknown attempt is handed to the sink")
}

func TestExecute_OfflineServesCachedResult(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`"cached"`)}
	env := newTestEnv(t, fastConfig(), apt)

	ctx := context.Background()

	// Warm the cache with a live success, then lose the network.
	_, err := env.orch.ExecuteAll(ctx, backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)
	require.Equal(t, 1, apt.callCount())

	env.monitor.SetOnline(false)

	agg, err := env.orch.ExecuteAll(ctx, backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, SourceCache, outcome.Source)
	assert.Equal(t, json.RawMessage(`"cached"`), outcome.Value.Payload)
	assert.Equal(t, 1, apt.callCount(), "offline operations must not touch the backend")

	require.Len(t, agg.Warnings, 1)
	assert.Equal(t, "apt", agg.Warnings[0].BackendID)
	assert.Equal(t, string(SkipOffline), agg.Warnings[0].Reason)
	assert.True(t, agg.Warnings[0].UsedCache)
}

func TestExecute_OfflineWithoutCacheSkips(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`"never called"`)}
	env := newTestEnv(t, fastConfig(), apt)

	env.monitor.SetOnline(false)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusSkipped, outcome.Status)
	assert.Equal(t, SkipOffline, outcome.SkipReason)
	assert.Equal(t, 0, apt.callCount())
	assert.Equal(t, AllFailed, agg.Summary)
}

func TestExecute_ListWorksOffline(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`["htop"]`)}
	env := newTestEnv(t, fastConfig(), apt)

	env.monitor.SetOnline(false)

	// Listing installed packages is a local operation.
	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpList, backend.Request{})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, agg.Outcomes["apt"].Status)
	assert.Equal(t, SourceLive, agg.Outcomes["apt"].Source)
}

func TestExecute_ExhaustedBackendFallsBackToCache(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	apt := &fakeBackend{id: "apt", fn: func(int) (backend.Value, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return backend.Value{Payload: json.RawMessage(`"stale"`)}, nil
		}
		return backend.Value{}, apperrors.NewTransientError("mirror down")
	}}

	cfg := fastConfig()
	cfg.BreakerFailureThreshold = 10
	env := newTestEnv(t, cfg, apt)

	ctx := context.Background()
	_, err := env.orch.ExecuteAll(ctx, backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	agg, err := env.orch.ExecuteAll(ctx, backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusSucceeded, outcome.Status)
	assert.Equal(t, SourceCache, outcome.Source)
	assert.Equal(t, json.RawMessage(`"stale"`), outcome.Value.Payload)
	assert.Equal(t, 3, outcome.Attempts)

	require.Len(t, agg.Warnings, 1)
	assert.Equal(t, string(apperrors.KindTransient), agg.Warnings[0].Reason)
	assert.True(t, agg.Warnings[0].UsedCache)
}

func TestExecute_NonCacheableOperationNeverCached(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`"installed"`)}
	env := newTestEnv(t, fastConfig(), apt)

	ctx := context.Background()
	_, err := env.orch.ExecuteAll(ctx, backend.OpInstall, backend.Request{Key: "htop"})
	require.NoError(t, err)

	_, found, _ := env.cache.Get(ctx, "apt", backend.OpInstall, "htop")
	assert.False(t, found)
}

func TestExecute_PartialSuccessMixedOutcomes(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`"ok"`)}
	brew := &fakeBackend{id: "brew", fn: alwaysFail(apperrors.NewTerminalError("unsupported"))}
	winget := &fakeBackend{id: "winget", fn: alwaysFail(apperrors.NewTransientError("down"))}
	env := newTestEnv(t, fastConfig(), apt, brew, winget)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	assert.Equal(t, PartialSuccess, agg.Summary)
	assert.Equal(t, StatusSucceeded, agg.Outcomes["apt"].Status)
	assert.Equal(t, StatusFailed, agg.Outcomes["brew"].Status)
	assert.Equal(t, StatusFailed, agg.Outcomes["winget"].Status)
	assert.Len(t, agg.Succeeded(), 1)
}

func TestExecute_CancelledContext(t *testing.T) {
	started := make(chan struct{})
	apt := &fakeBackend{id: "apt", fn: func(int) (backend.Value, error) {
		close(started)
		time.Sleep(10 * time.Second)
		return backend.Value{}, nil
	}}

	cfg := fastConfig()
	cfg.OperationTimeout = 30 * time.Second
	env := newTestEnv(t, cfg, apt)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	begin := time.Now()
	agg, err := env.orch.ExecuteAll(ctx, backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)
	assert.Less(t, time.Since(begin), 5*time.Second, "cancellation must finalize promptly")

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, apperrors.KindCancelled, outcome.Kind)
	assert.Equal(t, 0, env.sink.count(), "cancellations are never reported")
}

func TestExecute_CancellationPreservesCompletedOutcomes(t *testing.T) {
	fastDone := make(chan struct{})
	apt := &fakeBackend{id: "apt", fn: func(int) (backend.Value, error) {
		defer close(fastDone)
		return backend.Value{Payload: json.RawMessage(`"quick"`)}, nil
	}}
	brew := &fakeBackend{id: "brew", fn: func(int) (backend.Value, error) {
		time.Sleep(10 * time.Second)
		return backend.Value{}, nil
	}}

	cfg := fastConfig()
	cfg.OperationTimeout = 30 * time.Second
	env := newTestEnv(t, cfg, apt, brew)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-fastDone
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	agg, err := env.orch.ExecuteAll(ctx, backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, agg.Outcomes["apt"].Status)
	assert.Equal(t, apperrors.KindCancelled, agg.Outcomes["brew"].Kind)
	assert.Equal(t, PartialSuccess, agg.Summary)
}

func TestExecute_AttemptTimeoutClassifiedAndRetried(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: func(int) (backend.Value, error) {
		time.Sleep(time.Second)
		return backend.Value{}, nil
	}}

	cfg := fastConfig()
	cfg.OperationTimeout = 20 * time.Millisecond
	cfg.BreakerFailureThreshold = 10
	env := newTestEnv(t, cfg, apt)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	outcome := agg.Outcomes["apt"]
	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Equal(t, apperrors.KindTimeout, outcome.Kind)
	assert.Equal(t, 3, outcome.Attempts, "timeouts consume the transient budget")
}

func TestExecute_RequestTimeoutOverridesConfig(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: func(int) (backend.Value, error) {
		time.Sleep(time.Second)
		return backend.Value{}, nil
	}}

	cfg := fastConfig()
	cfg.OperationTimeout = 30 * time.Second
	cfg.RetryMaxAttempts = 1
	env := newTestEnv(t, cfg, apt)

	begin := time.Now()
	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{
		Key:     "htop",
		Timeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)

	assert.Equal(t, apperrors.KindTimeout, agg.Outcomes["apt"].Kind)
	assert.Less(t, time.Since(begin), 5*time.Second)
}

func TestExecute_PanickingBackendStillYieldsOutcome(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: func(int) (backend.Value, error) {
		panic("adapter bug")
	}}
	brew := &fakeBackend{id: "brew", fn: succeedWith(`"fine"`)}
	env := newTestEnv(t, fastConfig(), apt, brew)

	agg, err := env.orch.ExecuteAll(context.Background(), backend.OpSearch, backend.Request{Key: "htop"})
	require.NoError(t, err)

	assert.Len(t, agg.Outcomes, 2)
	assert.Equal(t, StatusFailed, agg.Outcomes["apt"].Status)
	assert.Contains(t, agg.Outcomes["apt"].Message, "panicked")
	assert.Equal(t, StatusSucceeded, agg.Outcomes["brew"].Status)
}

func TestExecute_RejectsEmptyTargets(t *testing.T) {
	env := newTestEnv(t, fastConfig())

	_, err := env.orch.Execute(context.Background(), backend.OpSearch, backend.Request{}, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUserInput))
}

func TestExecute_RejectsDuplicateTargets(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`"x"`)}
	env := newTestEnv(t, fastConfig(), apt)

	_, err := env.orch.Execute(context.Background(), backend.OpSearch, backend.Request{Key: "htop"}, []backend.Backend{apt, apt})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUserInput))
	assert.Equal(t, 0, apt.callCount())
}

func TestExecute_RejectsUnknownOperation(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: succeedWith(`"x"`)}
	env := newTestEnv(t, fastConfig(), apt)

	_, err := env.orch.Execute(context.Background(), backend.OperationKind("defragment"), backend.Request{}, []backend.Backend{apt})
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindUserInput))
}

func TestExecute_BackendsFailIndependently(t *testing.T) {
	apt := &fakeBackend{id: "apt", fn: alwaysFail(apperrors.NewTransientError("down"))}
	brew := &fakeBackend{id: "brew", fn: succeedWith(`"ok"`)}

	cfg := fastConfig()
	cfg.BreakerFailureThreshold = 1
	env := newTestEnv(t, cfg, apt, brew)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		agg, err := env.orch.ExecuteAll(ctx, backend.OpSearch, backend.Request{Key: "htop"})
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, agg.Outcomes["brew"].Status)
	}

	states := env.orch.BreakerStates()
	assert.NotEqual(t, resilience.StateClosed, states["apt"])
	assert.Equal(t, resilience.StateClosed, states["brew"])
}
