package middleware

import (
	"net/http"
	"strings"
	"sync/atomic"
)

// MetricsCollector counts traffic on the update control plane. Agent
// traffic (heartbeats and command polls under /v1/agents) is tracked
// separately from the operator surface because agents poll on a tight
// interval and would otherwise drown the operator numbers.
type MetricsCollector struct {
	requests      atomic.Int64
	agentRequests atomic.Int64
	errors        atomic.Int64
	inflight      atomic.Int64
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// Middleware counts every request, classifies agent-facing traffic, and
// records 4xx/5xx responses as errors.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requests.Add(1)
		if strings.HasPrefix(r.URL.Path, "/v1/agents/") {
			mc.agentRequests.Add(1)
		}
		mc.inflight.Add(1)
		defer mc.inflight.Add(-1)

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errors.Add(1)
		}
	})
}

// Snapshot returns the current counter values for the metrics endpoint.
func (mc *MetricsCollector) Snapshot() (requests, agentRequests, errors, inflight int64) {
	return mc.requests.Load(), mc.agentRequests.Load(), mc.errors.Load(), mc.inflight.Load()
}
