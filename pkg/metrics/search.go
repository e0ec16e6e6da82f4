package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SearchMetrics records fan-out behavior of aggregated distributor searches.
type SearchMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	fallback *prometheus.CounterVec
}

// NewSearchMetrics registers the search metrics on the provided registerer.
func NewSearchMetrics(reg prometheus.Registerer) *SearchMetrics {
	if reg == nil {
		return &SearchMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "distributor_search_duration_seconds",
		Help:    "Duration of per-distributor search calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distributor_search_success",
		Help: "Per-distributor searches that returned results.",
	}, []string{"platform"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distributor_search_failure",
		Help: "Per-distributor searches that failed.",
	}, []string{"platform", "code"})
	fallback := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "distributor_search_fallback",
		Help: "Searches served from the local catalog after a live failure.",
	}, []string{"platform"})
	reg.MustRegister(duration, success, failure, fallback)
	return &SearchMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		fallback: fallback,
	}
}

// ObserveDuration records the wall time of one distributor search.
func (s *SearchMetrics) ObserveDuration(platform string, duration time.Duration) {
	if s == nil || s.duration == nil {
		return
	}
	s.duration.WithLabelValues(normalizeLabel(platform)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the platform.
func (s *SearchMetrics) IncSuccess(platform string) {
	if s == nil || s.success == nil {
		return
	}
	s.success.WithLabelValues(normalizeLabel(platform)).Inc()
}

// IncFailure increments the failure counter for the platform and error code.
func (s *SearchMetrics) IncFailure(platform, code string) {
	if s == nil || s.failure == nil {
		return
	}
	s.failure.WithLabelValues(normalizeLabel(platform), normalizeLabel(code)).Inc()
}

// IncFallback counts a search answered from the local catalog.
func (s *SearchMetrics) IncFallback(platform string) {
	if s == nil || s.fallback == nil {
		return
	}
	s.fallback.WithLabelValues(normalizeLabel(platform)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
