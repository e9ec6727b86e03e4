package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Monitor runs registered probes and keeps the last status of each
type Monitor struct {
	name    string
	timeout time.Duration

	mu       sync.RWMutex
	probes   map[string]Probe
	statuses map[string]Status
}

// NewMonitor creates a monitor whose aggregate is reported under name.
// Each probe gets at most timeout to answer.
func NewMonitor(name string, timeout time.Duration) *Monitor {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		name:     name,
		timeout:  timeout,
		probes:   make(map[string]Probe),
		statuses: make(map[string]Status),
	}
}

// Register adds or replaces a named probe
func (m *Monitor) Register(name string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes[name] = probe
}

// Get retrieves the last recorded status for a named dependency
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[name]
	return status, ok
}

// Check runs every probe and returns the aggregate.
func (m *Monitor) Check(ctx context.Context) Status {
	m.mu.RLock()
	names := make([]string, 0, len(m.probes))
	probes := make(map[string]Probe, len(m.probes))
	for name, probe := range m.probes {
		names = append(names, name)
		probes[name] = probe
	}
	m.mu.RUnlock()
	sort.Strings(names)

	results := make([]Status, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
			defer cancel()
			results[i] = Check(probeCtx, name, probes[name])
		}()
	}
	wg.Wait()

	m.mu.Lock()
	for _, status := range results {
		m.statuses[status.Component] = status
	}
	m.mu.Unlock()

	return Aggregate(m.name, results)
}

// Handler serves the aggregate as JSON: 200 when healthy, 503 otherwise.
func (m *Monitor) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := m.Check(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !status.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	})
}
