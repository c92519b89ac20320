package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkgfleet/pkgfleet/pkg/backend"
	apperrors "github.com/pkgfleet/pkgfleet/pkg/errors"
)

// BackendHealth represents the probed health status of a backend
type BackendHealth struct {
	Status       string    `json:"status"`
	LastCheck    time.Time `json:"last_check"`
	CheckCount   int64     `json:"check_count"`
	FailureCount int64     `json:"failure_count"`
}

// Backend probe statuses
const (
	BackendStatusHealthy   = "healthy"
	BackendStatusUnhealthy = "unhealthy"
	BackendStatusUnknown   = "unknown"
)

// Registry owns the set of registered backends for the process lifetime.
// Handles are immutable after registration; the registry only tracks their
// probed health alongside.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]backend.Backend
	health   map[string]BackendHealth
}

// NewRegistry creates an empty backend registry
func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]backend.Backend),
		health:   make(map[string]BackendHealth),
	}
}

// Register adds a backend
func (r *Registry) Register(b backend.Backend) error {
	if b == nil {
		return apperrors.NewUserInputError("backend cannot be nil")
	}
	if b.ID() == "" {
		return apperrors.NewUserInputError("backend id cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[b.ID()]; exists {
		return apperrors.NewUserInputError(fmt.Sprintf("backend %s is already registered", b.ID()))
	}

	r.backends[b.ID()] = b
	r.health[b.ID()] = BackendHealth{
		Status:    BackendStatusUnknown,
		LastCheck: time.Now(),
	}

	return nil
}

// Unregister removes a backend
func (r *Registry) Unregister(backendID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.backends[backendID]; !exists {
		return apperrors.NewUserInputError(fmt.Sprintf("backend %s is not registered", backendID))
	}

	delete(r.backends, backendID)
	delete(r.health, backendID)
	return nil
}

// Get retrieves a backend by id
func (r *Registry) Get(backendID string) (backend.Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, exists := r.backends[backendID]
	if !exists {
		return nil, apperrors.NewUserInputError(fmt.Sprintf("backend %s is not registered", backendID))
	}
	return b, nil
}

// List returns all registered backends
func (r *Registry) List() []backend.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	backends := make([]backend.Backend, 0, len(r.backends))
	for _, b := range r.backends {
		backends = append(backends, b)
	}
	return backends
}

// IDs returns the ids of all registered backends
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.backends))
	for id := range r.backends {
		ids = append(ids, id)
	}
	return ids
}

// Health returns the probed health for a backend
func (r *Registry) Health(backendID string) (BackendHealth, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health, exists := r.health[backendID]
	return health, exists
}

// Probe runs the backend's availability probe if it has one and records the
// result. Backends without a probe are assumed healthy.
func (r *Registry) Probe(ctx context.Context, backendID string) bool {
	b, err := r.Get(backendID)
	if err != nil {
		return false
	}

	healthy := true
	if prober, ok := b.(backend.Prober); ok {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		healthy = prober.Probe(probeCtx)
		cancel()
	}

	r.mu.Lock()
	health := r.health[backendID]
	health.LastCheck = time.Now()
	health.CheckCount++
	if healthy {
		health.Status = BackendStatusHealthy
	} else {
		health.Status = BackendStatusUnhealthy
		health.FailureCount++
	}
	r.health[backendID] = health
	r.mu.Unlock()

	return healthy
}

// ProbeAll probes every registered backend and returns ids of unhealthy ones
func (r *Registry) ProbeAll(ctx context.Context) []string {
	var unhealthy []string
	for _, id := range r.IDs() {
		if !r.Probe(ctx, id) {
			unhealthy = append(unhealthy, id)
		}
	}
	return unhealthy
}

// Len returns the number of registered backends
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}
