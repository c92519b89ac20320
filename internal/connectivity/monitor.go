package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkgfleet/pkgfleet/pkg/logging"
)

// ProbeFunc reports whether the network is reachable right now
type ProbeFunc func(ctx context.Context) bool

// Config holds connectivity monitor configuration
type Config struct {
	// Probe checks reachability; defaults to a TCP dial of ProbeAddr
	Probe ProbeFunc
	// ProbeAddr is the dial target for the default probe
	ProbeAddr string
	// ProbeInterval is the polling period of Run
	ProbeInterval time.Duration
	// ProbeTimeout bounds one probe
	ProbeTimeout time.Duration
	// InitialOnline is the assumed state before the first probe
	InitialOnline bool
}

// DefaultConfig returns default monitor configuration
func DefaultConfig() Config {
	return Config{
		ProbeAddr:     "1.1.1.1:443",
		ProbeInterval: 15 * time.Second,
		ProbeTimeout:  3 * time.Second,
		InitialOnline: true,
	}
}

// Monitor tracks process-wide online/offline state and notifies subscribers
// on transitions. It is constructed once by the composition root and passed
// to every component that needs it; there is no package-level instance.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	changedAt time.Time
	subs      map[int]chan bool
	nextSubID int

	probe    ProbeFunc
	interval time.Duration
	logger   *logging.Logger
}

// NewMonitor creates a connectivity monitor
func NewMonitor(config Config) *Monitor {
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = 15 * time.Second
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 3 * time.Second
	}
	if config.Probe == nil {
		config.Probe = DialProbe(config.ProbeAddr, config.ProbeTimeout)
	}

	return &Monitor{
		online:    config.InitialOnline,
		changedAt: time.Now(),
		subs:      make(map[int]chan bool),
		probe:     config.Probe,
		interval:  config.ProbeInterval,
		logger:    logging.GetLogger(),
	}
}

// DialProbe returns a probe that considers the network online when a TCP
// connection to addr succeeds within the timeout
func DialProbe(addr string, timeout time.Duration) ProbeFunc {
	return func(ctx context.Context) bool {
		if addr == "" {
			return true
		}

		dialer := net.Dialer{Timeout: timeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// IsOnline returns the current connectivity state
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// LastChanged returns when the state last transitioned
func (m *Monitor) LastChanged() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.changedAt
}

// SetOnline records an externally observed state, emitting a transition
// event to subscribers when the state actually changes
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}

	m.online = online
	m.changedAt = time.Now()

	subs := make([]chan bool, 0, len(m.subs))
	for _, ch := range m.subs {
		subs = append(subs, ch)
	}
	m.mu.Unlock()

	m.logger.Info("Connectivity state changed", "online", online)

	// Non-blocking sends: a slow subscriber misses intermediate transitions
	// rather than stalling the monitor.
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
		}
	}
}

// Subscribe registers for transition events. The returned cancel function
// must be called to release the subscription.
func (m *Monitor) Subscribe() (<-chan bool, func()) {
	ch := make(chan bool, 4)

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
	return ch, cancel
}

// Run polls the probe until the context is cancelled
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.SetOnline(m.probe(ctx))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(m.probe(ctx))
		}
	}
}
