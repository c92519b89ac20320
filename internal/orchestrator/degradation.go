package orchestrator

import (
	"github.com/pkgfleet/pkgfleet/pkg/resilience"
)

// DegradationLevel summarizes how impaired the backend fleet currently is
type DegradationLevel int

const (
	// LevelNormal - all backends are reachable through closed circuits
	LevelNormal DegradationLevel = iota
	// LevelPartial - some backends are impaired but most operations work
	LevelPartial
	// LevelSevere - at least half the fleet is impaired or the process is offline
	LevelSevere
	// LevelCritical - live operations are effectively unavailable
	LevelCritical
)

func (l DegradationLevel) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelPartial:
		return "PARTIAL"
	case LevelSevere:
		return "SEVERE"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ComputeLevel derives the fleet degradation level from per-backend circuit
// states and connectivity. Open and half-open circuits both count as
// impaired; half-open means the backend has not yet proven recovery.
func ComputeLevel(states map[string]resilience.CircuitState, online bool) DegradationLevel {
	if len(states) == 0 {
		if online {
			return LevelNormal
		}
		return LevelSevere
	}

	impaired := 0
	for _, state := range states {
		if state != resilience.StateClosed {
			impaired++
		}
	}

	fraction := float64(impaired) / float64(len(states))
	level := LevelNormal
	switch {
	case fraction >= 1:
		level = LevelCritical
	case fraction >= 0.5:
		level = LevelSevere
	case fraction > 0:
		level = LevelPartial
	}

	if !online && level < LevelSevere {
		level = LevelSevere
	}
	return level
}

// DegradationLevel reports the orchestrator's current fleet degradation,
// surfaced through the health endpoints
func (o *Orchestrator) DegradationLevel() DegradationLevel {
	online := true
	if o.monitor != nil {
		online = o.monitor.IsOnline()
	}
	return ComputeLevel(o.breakers.States(), online)
}
