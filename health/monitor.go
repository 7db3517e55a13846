package health

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
)

// Probe reports the current status of one channel.
type Probe func() Status

// Monitor evaluates registered probes on demand.
type Monitor struct {
	name string

	mu     sync.RWMutex
	probes map[string]Probe
}

// NewMonitor returns a monitor whose aggregate status is named name.
func NewMonitor(name string) *Monitor {
	return &Monitor{name: name, probes: make(map[string]Probe)}
}

// Register adds or replaces the probe for a channel.
func (m *Monitor) Register(name string, p Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = p
}

// Remove drops a channel's probe.
func (m *Monitor) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.probes, name)
}

// Get evaluates one probe.
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	p, ok := m.probes[name]
	m.mu.RUnlock()
	if !ok {
		return Status{}, false
	}
	return m.eval(name, p), true
}

// Check evaluates every probe in name order and aggregates the results.
func (m *Monitor) Check() Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.probes))
	for name := range m.probes {
		names = append(names, name)
	}
	probes := make(map[string]Probe, len(m.probes))
	for k, v := range m.probes {
		probes[k] = v
	}
	m.mu.RUnlock()

	sort.Strings(names)
	subs := make([]Status, 0, len(names))
	for _, name := range names {
		subs = append(subs, m.eval(name, probes[name]))
	}
	return Aggregate(m.name, subs)
}

// eval runs p, treating a panicking probe as unhealthy.
func (m *Monitor) eval(name string, p Probe) (s Status) {
	defer func() {
		if r := recover(); r != nil {
			s = NewUnhealthy(name, "health probe panicked")
		}
	}()
	s = p()
	s.Component = name
	return s
}

// ServeHTTP writes the aggregate status as JSON. Unhealthy answers 503 so
// orchestrators can act on it; degraded still answers 200.
func (m *Monitor) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s := m.Check()
	code := http.StatusOK
	if s.IsUnhealthy() {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(s)
}
