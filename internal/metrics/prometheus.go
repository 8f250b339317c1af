package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// PrometheusHandler exposes Metrics in Prometheus' text exposition format at
// the root HTTP surface (outside {adminBasePath}), mirroring the teacher's
// single-metric-with-label approach: every counter is exposed under one
// metric name with an `event` label, error kinds under a second metric with
// a `kind` label, plus the active-connections gauge and its peak.
func PrometheusHandler(m *Metrics) http.Handler {
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
		_, _ = fmt.Fprintln(w, "# HELP conduit_relay_events_total Internal event counters.")
		_, _ = fmt.Fprintln(w, "# TYPE conduit_relay_events_total counter")
		for _, k := range keys {
			escaped := strings.NewReplacer("\\", "\\\\", "\"", "\\\"").Replace(k)
			_, _ = fmt.Fprintf(w, "conduit_relay_events_total{event=\"%s\"} %d\n", escaped, snap[k])
		}

		errByType := m.ErrorsByType()
		if len(errByType) > 0 {
			errKeys := make([]string, 0, len(errByType))
			for k := range errByType {
				errKeys = append(errKeys, k)
			}
			sort.Strings(errKeys)
			_, _ = fmt.Fprintln(w, "# HELP conduit_relay_errors_total Internal error counters by kind.")
			_, _ = fmt.Fprintln(w, "# TYPE conduit_relay_errors_total counter")
			for _, k := range errKeys {
				escaped := strings.NewReplacer("\\", "\\\\", "\"", "\\\"").Replace(k)
				_, _ = fmt.Fprintf(w, "conduit_relay_errors_total{kind=\"%s\"} %d\n", escaped, errByType[k])
			}
		}

		active, _, peak := m.Gauge(GaugeActiveConnections)
		_, _ = fmt.Fprintln(w, "# HELP conduit_relay_active_connections Current live connections.")
		_, _ = fmt.Fprintln(w, "# TYPE conduit_relay_active_connections gauge")
		_, _ = fmt.Fprintf(w, "conduit_relay_active_connections %d\n", active)
		_, _ = fmt.Fprintln(w, "# HELP conduit_relay_active_connections_peak Peak observed live connections.")
		_, _ = fmt.Fprintln(w, "# TYPE conduit_relay_active_connections_peak gauge")
		_, _ = fmt.Fprintf(w, "conduit_relay_active_connections_peak %d\n", peak)
	})
}
