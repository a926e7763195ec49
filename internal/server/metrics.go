package server

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/BioHazard786/solfa/internal/relay"
)

// MetricsHandler exposes the relay counters in Prometheus' text exposition
// format, as a single metric with an `event` label.
func MetricsHandler(m *relay.Metrics) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		snap := m.Snapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprintln(w, "# HELP solfa_relay_events_total Signaling relay event counters.")
		fmt.Fprintln(w, "# TYPE solfa_relay_events_total counter")
		esc := strings.NewReplacer("\\", "\\\\", "\"", "\\\"")
		for _, k := range keys {
			fmt.Fprintf(w, "solfa_relay_events_total{event=\"%s\"} %d\n", esc.Replace(k), snap[k])
		}
	})
}
