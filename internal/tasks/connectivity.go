package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/offbeat/internal/shared"
)

const probeTimeout = 5 * time.Second

// Connectivity reports network reachability and reconnect events.
type Connectivity interface {
	Online() bool
	// OnReconnect registers fn for offline → online transitions and returns a function that unregisters it.
	OnReconnect(fn func()) (cancel func())
}

// Pinger is the liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProbeMonitor derives connectivity from periodic liveness probes.
//
// It starts online. A failed probe marks it offline; the next successful probe fires the reconnect callbacks.
type ProbeMonitor struct {
	pinger   Pinger
	clock    shared.Clock
	interval time.Duration
	logger   *log.Logger

	mu        sync.Mutex
	online    bool
	callbacks map[int]func()
	nextID    int
	timer     shared.Timer
	running   bool
}

// NewProbeMonitor creates a monitor probing every interval. A nil clock uses [shared.RealClock].
func NewProbeMonitor(pinger Pinger, clock shared.Clock, interval time.Duration, logger *log.Logger) *ProbeMonitor {
	if clock == nil {
		clock = shared.RealClock{}
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &ProbeMonitor{
		pinger:    pinger,
		clock:     clock,
		interval:  interval,
		logger:    shared.WithLogger(logger, "component", "probe"),
		online:    true,
		callbacks: make(map[int]func()),
	}
}

func (m *ProbeMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

func (m *ProbeMonitor) OnReconnect(fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.callbacks[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.callbacks, id)
	}
}

// Start begins probing on the clock. Probes run with their own timeout.
func (m *ProbeMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running || m.interval <= 0 {
		return
	}
	m.running = true
	m.schedule()
}

// Stop cancels the pending probe.
func (m *ProbeMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// schedule arms the next probe. Caller holds m.mu.
func (m *ProbeMonitor) schedule() {
	m.timer = m.clock.AfterFunc(m.interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		m.Check(ctx)

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.running {
			m.schedule()
		}
	})
}

// Check probes once and updates the state.
func (m *ProbeMonitor) Check(ctx context.Context) bool {
	err := m.pinger.Ping(ctx)
	m.Report(err == nil)
	if err != nil {
		m.logger.Debug("liveness probe failed", "error", err)
	}
	return err == nil
}

// Report records an observed reachability, firing the reconnect callbacks on an offline → online transition.
func (m *ProbeMonitor) Report(online bool) {
	m.mu.Lock()
	was := m.online
	m.online = online
	var fire []func()
	if online && !was {
		for _, fn := range m.callbacks {
			fire = append(fire, fn)
		}
	}
	m.mu.Unlock()

	if !online && was {
		m.logger.Warn("server unreachable, working offline")
	}
	if len(fire) > 0 {
		m.logger.Info("connection restored")
	}
	for _, fn := range fire {
		fn()
	}
}

type alwaysOnline struct{}

func (alwaysOnline) Online() bool { return true }
func (alwaysOnline) OnReconnect(func()) func() { return func() {} }

var _ Connectivity = (*ProbeMonitor)(nil)
