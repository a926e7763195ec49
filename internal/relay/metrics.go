package relay

import "sync"

// Counter names.
const (
	MetricConnections   = "connections"
	MetricJoins         = "joins"
	MetricLeaves        = "leaves"
	MetricRelayed       = "relayed"
	MetricUnroutable    = "unroutable"
	MetricDropped       = "dropped_slow_client"
	MetricRejectedJoins = "rejected_joins"
	MetricBadMessages   = "bad_messages"
)

// Metrics is a minimal, concurrency-safe counter registry.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.mu.Lock()
	m.m[name]++
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
