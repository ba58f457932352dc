package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollectorCountsTraffic(t *testing.T) {
	mc := NewMetricsCollector()
	handler := mc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1/agents/agent-1/commands" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/updates", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/agents/agent-1/commands", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	requests, agentRequests, errCount, inflight := mc.Snapshot()
	assert.Equal(t, int64(2), requests)
	assert.Equal(t, int64(1), agentRequests)
	assert.Equal(t, int64(1), errCount)
	assert.Equal(t, int64(0), inflight)
}

func TestMetricsCollectorTracksInflight(t *testing.T) {
	mc := NewMetricsCollector()
	var during int64
	handler := mc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _, _, during = mc.Snapshot()
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/packages", nil))
	assert.Equal(t, int64(1), during)
}
