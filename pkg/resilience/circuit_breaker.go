package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"

	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
	"github.com/pkgfleet/pkgfleet/pkg/logging"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed - circuit is closed, invocations are allowed
	StateClosed CircuitState = iota
	// StateOpen - circuit is open, invocations are rejected
	StateOpen
	// StateHalfOpen - circuit is half-open, a single trial invocation is allowed
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig holds configuration for one backend's circuit breaker
type BreakerConfig struct {
	// Name of the breaker for logging/metrics, normally the backend id
	Name string
	// FailureThreshold trips the breaker after this many consecutive
	// circuit-relevant failures when no custom ReadyToTrip is set
	FailureThreshold int
	// CoolDown is the initial open-state duration before a trial is allowed
	CoolDown time.Duration
	// CoolDownCap bounds the cool-down growth on repeated trial failures
	CoolDownCap time.Duration
	// ReadyToTrip is consulted on every circuit-relevant failure in the
	// closed state; returning true opens the circuit. Replaces the
	// consecutive-failure default, which allows rate-based policies.
	ReadyToTrip func(counts Counts) bool
	// OnStateChange is called whenever the breaker changes state
	OnStateChange func(name string, from CircuitState, to CircuitState)
}

// Counts holds the numbers of recorded outcomes
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker is a per-backend state machine preventing repeated calls to a
// backend believed to be failing. Outcomes are reported explicitly via
// RecordSuccess/RecordFailure; gate checks go through Allow. All state
// mutation happens under the breaker's mutex because concurrent operations
// may touch the same backend.
type Breaker struct {
	name          string
	readyToTrip   func(counts Counts) bool
	onStateChange func(name string, from CircuitState, to CircuitState)

	baseCoolDown time.Duration
	coolDownCap  time.Duration

	mutex         sync.Mutex
	state         CircuitState
	counts        Counts
	openedAt      time.Time
	coolDown      time.Duration
	trialInFlight bool

	logger *logging.Logger
}

// NewBreaker creates a new circuit breaker with the given configuration
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.CoolDown <= 0 {
		config.CoolDown = 30 * time.Second
	}
	if config.CoolDownCap < config.CoolDown {
		config.CoolDownCap = config.CoolDown
	}

	b := &Breaker{
		name:          config.Name,
		onStateChange: config.OnStateChange,
		baseCoolDown:  config.CoolDown,
		coolDownCap:   config.CoolDownCap,
		coolDown:      config.CoolDown,
		state:         StateClosed,
		logger:        logging.GetLogger(),
	}

	if config.ReadyToTrip != nil {
		b.readyToTrip = config.ReadyToTrip
	} else {
		threshold := uint32(config.FailureThreshold)
		b.readyToTrip = func(counts Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		}
	}

	return b
}

// Allow reports whether a live invocation may proceed. In the open state it
// returns false until the cool-down elapses, then grants exactly one trial
// invocation before blocking again pending that trial's outcome.
func (b *Breaker) Allow() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.currentState(time.Now()) {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	default:
		return false
	}
}

// RecordSuccess reports a successful invocation outcome
func (b *Breaker) RecordSuccess() {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	switch b.currentState(time.Now()) {
	case StateHalfOpen:
		b.coolDown = b.baseCoolDown
		b.setState(StateClosed)
	case StateClosed:
		b.counts.Requests++
		b.counts.TotalSuccesses++
		b.counts.ConsecutiveSuccesses++
		b.counts.ConsecutiveFailures = 0
	}
}

// RecordFailure reports a failed invocation outcome. In the closed state
// only circuit-relevant kinds count: a backend that answers "package not
// found" or rejects bad arguments is available, not broken. A half-open
// trial always resolves here, whatever its outcome, so the trial latch is
// never left held.
func (b *Breaker) RecordFailure(kind apperrors.ErrorKind) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	now := time.Now()
	switch b.currentState(now) {
	case StateClosed:
		if !AffectsCircuit(kind) {
			return
		}
		b.counts.Requests++
		b.counts.TotalFailures++
		b.counts.ConsecutiveFailures++
		b.counts.ConsecutiveSuccesses = 0
		if b.readyToTrip(b.counts) {
			b.openedAt = now
			b.setState(StateOpen)
		}
	case StateHalfOpen:
		switch {
		case AffectsCircuit(kind):
			// Failed trial: reopen with a longer cool-down to avoid thrashing
			// against a persistently broken backend.
			b.coolDown = b.coolDown * 2
			if b.coolDown > b.coolDownCap {
				b.coolDown = b.coolDownCap
			}
			b.openedAt = now
			b.setState(StateOpen)
		case kind == apperrors.KindCancelled:
			// The trial was aborted by the caller, which says nothing about
			// the backend; release the latch so the next probe runs.
			b.trialInFlight = false
		default:
			// A terminal or user-input answer is a definitive response from a
			// reachable backend; it proves availability as well as a success.
			b.coolDown = b.baseCoolDown
			b.setState(StateClosed)
		}
	}
}

// State returns the current state of the circuit breaker
func (b *Breaker) State() CircuitState {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.currentState(time.Now())
}

// Counts returns a copy of the current counts
func (b *Breaker) Counts() Counts {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.counts
}

// Name returns the name of the circuit breaker
func (b *Breaker) Name() string {
	return b.name
}

// currentState advances Open to HalfOpen once the cool-down has elapsed.
// Callers must hold the mutex.
func (b *Breaker) currentState(now time.Time) CircuitState {
	if b.state == StateOpen && now.Sub(b.openedAt) >= b.coolDown {
		b.setState(StateHalfOpen)
	}
	return b.state
}

// setState applies a transition. Callers must hold the mutex.
func (b *Breaker) setState(state CircuitState) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.trialInFlight = false

	if state == StateClosed {
		b.counts = Counts{}
	}

	if b.onStateChange != nil {
		b.onStateChange(b.name, prev, state)
	}

	b.logger.Info("Circuit breaker state changed",
		"name", b.name,
		"from", prev.String(),
		"to", state.String(),
	)
}

// BreakerRegistry holds one independent breaker per backend. One backend's
// open circuit has no effect on Allow for any other backend.
type BreakerRegistry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults BreakerConfig
}

// NewBreakerRegistry creates a registry that stamps new breakers from the
// given default configuration
func NewBreakerRegistry(defaults BreakerConfig) *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// Register creates a breaker for the backend in the closed state. The
// config name is forced to the backend id.
func (r *BreakerRegistry) Register(backendID string, config BreakerConfig) *Breaker {
	config.Name = backendID
	if config.OnStateChange == nil {
		config.OnStateChange = r.defaults.OnStateChange
	}

	b := NewBreaker(config)

	r.mu.Lock()
	r.breakers[backendID] = b
	r.mu.Unlock()

	return b
}

// Get returns the breaker for a backend, creating one from defaults if the
// backend was never registered explicitly
func (r *BreakerRegistry) Get(backendID string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[backendID]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[backendID]; ok {
		return b
	}

	config := r.defaults
	config.Name = backendID
	b = NewBreaker(config)
	r.breakers[backendID] = b
	return b
}

// Allow reports whether a live invocation of the backend may proceed
func (r *BreakerRegistry) Allow(backendID string) bool {
	return r.Get(backendID).Allow()
}

// RecordSuccess reports a successful outcome for the backend
func (r *BreakerRegistry) RecordSuccess(backendID string) {
	r.Get(backendID).RecordSuccess()
}

// RecordFailure reports a failed outcome of the given kind for the backend
func (r *BreakerRegistry) RecordFailure(backendID string, kind apperrors.ErrorKind) {
	r.Get(backendID).RecordFailure(kind)
}

// States returns a snapshot of every breaker's current state
func (r *BreakerRegistry) States() map[string]CircuitState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	states := make(map[string]CircuitState, len(r.breakers))
	for id, b := range r.breakers {
		states[id] = b.State()
	}
	return states
}

// CircuitOpenError signals that an invocation was rejected by an open circuit
type CircuitOpenError struct {
	Backend string
	State   CircuitState
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker for backend '%s' is %s", e.Backend, e.State.String())
}

// IsCircuitOpenError checks if an error is a circuit rejection
func IsCircuitOpenError(err error) bool {
	var cbErr *CircuitOpenError
	return errors.As(err, &cbErr)
}
