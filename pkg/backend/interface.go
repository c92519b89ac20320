package backend

import (
	"context"
	"encoding/json"
	"time"
)

// Backend defines the interface that all package-manager backends must
// implement. A backend wraps one external package manager reached via its
// CLI or an HTTP endpoint and is treated as an independent unreliable
// service.
type Backend interface {
	// Name returns the human-readable backend name (e.g. "winget", "brew")
	Name() string

	// ID returns the unique backend identifier used for breaker and cache keys
	ID() string

	// Invoke executes one operation against the backend
	Invoke(ctx context.Context, op OperationKind, req Request) (Value, error)
}

// Prober is optionally implemented by backends that support a lightweight
// availability check
type Prober interface {
	Probe(ctx context.Context) bool
}

// OperationKind represents the kind of operation issued to a backend
type OperationKind string

const (
	OpSearch  OperationKind = "search"
	OpInstall OperationKind = "install"
	OpUpdate  OperationKind = "update"
	OpDetails OperationKind = "details"
	OpList    OperationKind = "list"
)

// Valid reports whether the operation kind is one the orchestrator knows
func (op OperationKind) Valid() bool {
	switch op {
	case OpSearch, OpInstall, OpUpdate, OpDetails, OpList:
		return true
	}
	return false
}

// NetworkRequired reports whether the operation needs connectivity.
// Listing installed packages is answered from local state by every manager.
func (op OperationKind) NetworkRequired() bool {
	return op != OpList
}

// Cacheable reports whether a successful result may be kept as a
// last-known-good value. Mutating operations are never served from cache.
func (op OperationKind) Cacheable() bool {
	switch op {
	case OpSearch, OpDetails, OpList:
		return true
	}
	return false
}

// Request contains the arguments for a backend operation
type Request struct {
	// Key identifies the operation target: a package id for install/update/
	// details, the query string for search, empty for list
	Key     string            `json:"key"`
	Version string            `json:"version,omitempty"`
	Options map[string]string `json:"options,omitempty"`
	Timeout time.Duration     `json:"timeout,omitempty"`
}

// Value is the opaque payload a backend produced for an operation. The
// orchestrator never interprets it; parsing manager output stays inside the
// backend adapter.
type Value struct {
	MediaType string          `json:"media_type"`
	Payload   json.RawMessage `json:"payload"`
	Backend   string          `json:"backend"`
}

// IsZero reports whether the value carries no payload
func (v Value) IsZero() bool {
	return len(v.Payload) == 0 && v.MediaType == ""
}
