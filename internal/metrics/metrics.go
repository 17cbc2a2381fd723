// Package metrics provides Prometheus metrics for the watchfs server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CageChen/watchfs/internal/vfs"
	"github.com/CageChen/watchfs/internal/watcher"
)

const namespace = "watchfs"

// Metrics holds the collectors of one server. It implements vfs.Recorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	activeChanges     prometheus.Gauge
	deferredChanges   prometheus.Gauge
	externalChanges   *prometheus.CounterVec
	watchedRoots      prometheus.Gauge
	watchFailures     prometheus.Counter
	counterUnderflows prometheus.Counter
	indexSize         prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var _ vfs.Recorder = (*Metrics)(nil)

// New registers the collectors with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		activeChanges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_changes",
			Help:      "Internal mutations currently in flight",
		}),
		deferredChanges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deferred_external_changes",
			Help:      "External changes queued behind internal mutations",
		}),
		externalChanges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_changes_total",
			Help:      "External change notifications by outcome",
		}, []string{"kind"}),
		watchedRoots: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watched_roots",
			Help:      "Number of watched roots",
		}),
		watchFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watch_failures_total",
			Help:      "Watch requests that failed to start",
		}),
		counterUnderflows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "change_counter_underflows_total",
			Help:      "Unbalanced end-of-change notifications",
		}),
		indexSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_entries",
			Help:      "Entries held in the path index",
		}),

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
}

func (m *Metrics) SetActiveChanges(n int) { m.activeChanges.Set(float64(n)) }
func (m *Metrics) SetDeferredChanges(n int) { m.deferredChanges.Set(float64(n)) }
func (m *Metrics) ExternalChange(kind string) { m.externalChanges.WithLabelValues(kind).Inc() }
func (m *Metrics) SetWatchedRoots(n int) { m.watchedRoots.Set(float64(n)) }
func (m *Metrics) WatchFailure() { m.watchFailures.Inc() }
func (m *Metrics) CounterUnderflow() { m.counterUnderflows.Inc() }
func (m *Metrics) SetIndexSize(n int) { m.indexSize.Set(float64(n)) }

// RegisterWatcher exposes the native watcher counters.
func RegisterWatcher(reg prometheus.Registerer, snapshot func() watcher.Metrics) {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "watches",
		Help:      "Directories under native watch",
	}, func() float64 { return float64(snapshot().Watches) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "events_received_total",
		Help:      "Raw events received from the OS",
	}, func() float64 { return float64(snapshot().EventsReceived) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "events_coalesced_total",
		Help:      "Events merged by the debounce window",
	}, func() float64 { return float64(snapshot().EventsCoalesced) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "watcher",
		Name:      "events_delivered_total",
		Help:      "Change notifications delivered to the file system",
	}, func() float64 { return float64(snapshot().EventsDelivered) })
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies by route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
