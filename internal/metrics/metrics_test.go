package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CageChen/watchfs/internal/vfs"
	"github.com/CageChen/watchfs/internal/watcher"
)

func TestRecorder(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.SetActiveChanges(2)
	m.SetWatchedRoots(3)
	m.ExternalChange(vfs.ChangeStale)
	m.ExternalChange(vfs.ChangeStale)
	m.ExternalChange(vfs.ChangeFile)
	m.CounterUnderflow()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.activeChanges))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.watchedRoots))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.externalChanges.WithLabelValues(vfs.ChangeStale)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.externalChanges.WithLabelValues(vfs.ChangeFile)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.counterUnderflows))
}

func TestRegisterWatcher(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	RegisterWatcher(reg, func() watcher.Metrics {
		return watcher.Metrics{Watches: 4, EventsReceived: 10, EventsCoalesced: 3, EventsDelivered: 7}
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, line := range []string{
		"watchfs_watcher_watches 4",
		"watchfs_watcher_events_received_total 10",
		"watchfs_watcher_events_coalesced_total 3",
		"watchfs_watcher_events_delivered_total 7",
	} {
		assert.True(t, strings.Contains(body, line), line)
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/api/stat", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/stat?path=/x", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/stat", "204")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
