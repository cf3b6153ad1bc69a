// Package metrics exposes the Prometheus collectors of the registry services.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "property_registry",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "property_registry",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "property_registry",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "property_registry",
			Subsystem: "chain",
			Name:      "rpc_calls_total",
			Help:      "Total number of JSON-RPC operations against the chain.",
		},
		[]string{"op", "outcome"},
	)

	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "property_registry",
			Subsystem: "chain",
			Name:      "rpc_duration_seconds",
			Help:      "Duration of JSON-RPC operations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"op"},
	)

	registryWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "property_registry",
			Subsystem: "registry",
			Name:      "writes_total",
			Help:      "Registry write operations by kind and outcome.",
		},
		[]string{"op", "outcome"},
	)

	sourceResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "property_registry",
			Subsystem: "source",
			Name:      "results_total",
			Help:      "Reconciliation results by source.",
		},
		[]string{"source"},
	)

	sourceCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "property_registry",
			Subsystem: "source",
			Name:      "cache_lookups_total",
			Help:      "Reconciliation cache lookups by result.",
		},
		[]string{"result"},
	)

	decodeSkips = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "property_registry",
			Subsystem: "source",
			Name:      "decode_skipped_total",
			Help:      "On-chain records skipped because they failed to decode.",
		},
	)

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "property_registry",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Catalog mirror runs by outcome.",
		},
		[]string{"success"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "property_registry",
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Duration of catalog mirror runs.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		rpcCalls,
		rpcDuration,
		registryWrites,
		sourceResults,
		sourceCache,
		decodeSkips,
		syncRuns,
		syncDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordRPC records one chain operation. A nil error counts as success.
func RecordRPC(op string, duration time.Duration, err error) {
	rpcCalls.WithLabelValues(op, outcome(err)).Inc()
	rpcDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordWrite records one registry write.
func RecordWrite(op string, err error) {
	registryWrites.WithLabelValues(op, outcome(err)).Inc()
}

// RecordSource counts a reconciliation result by its source tag.
func RecordSource(source string) {
	if source == "" {
		source = "unknown"
	}
	sourceResults.WithLabelValues(source).Inc()
}

// RecordCacheLookup counts a reconciliation cache hit or miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	sourceCache.WithLabelValues(result).Inc()
}

// RecordDecodeSkip counts one on-chain record dropped during mapping.
func RecordDecodeSkip() {
	decodeSkips.Inc()
}

// RecordSyncRun records a catalog mirror run.
func RecordSyncRun(duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	syncRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
	syncDuration.Observe(duration.Seconds())
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses slugs so label cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) >= 3 && parts[0] == "api" && parts[1] == "properties" {
		return "/api/properties/:slug"
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return "/" + strings.Join(parts, "/")
}
