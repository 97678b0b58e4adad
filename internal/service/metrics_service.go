package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP
// traffic, caching, and the admission and grading pipelines.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter

	admissionsTotal    prometheus.Counter
	admissionsRejected *prometheus.CounterVec
	dropsTotal         prometheus.Counter
	finalizationsTotal *prometheus.CounterVec
	gpaRecomputes      prometheus.Histogram
}

// NewMetricsService registers the collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcript_cache_hits_total",
		Help: "Transcript cache hits",
	})
	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "transcript_cache_misses_total",
		Help: "Transcript cache misses",
	})

	admissionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_admissions_total",
		Help: "Successful enrollment admissions",
	})
	admissionsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollment_rejections_total",
		Help: "Enrollment admissions rejected, by reason",
	}, []string{"reason"})
	dropsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "enrollment_drops_total",
		Help: "Enrollments dropped",
	})
	finalizationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "grade_finalizations_total",
		Help: "Grades finalized or amended, by letter",
	}, []string{"letter"})
	gpaRecomputes := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gpa_recompute_duration_seconds",
		Help:    "Duration of GPA recomputations",
		Buckets: prometheus.DefBuckets,
	})

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		requestDuration, requestTotal,
		cacheHits, cacheMisses,
		admissionsTotal, admissionsRejected, dropsTotal, finalizationsTotal, gpaRecomputes,
	)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		admissionsTotal:    admissionsTotal,
		admissionsRejected: admissionsRejected,
		dropsTotal:         dropsTotal,
		finalizationsTotal: finalizationsTotal,
		gpaRecomputes:      gpaRecomputes,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveRequest records one HTTP request.
func (s *MetricsService) ObserveRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	s.requestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(method, path, code).Inc()
}

// RecordCacheHit counts a transcript cache hit.
func (s *MetricsService) RecordCacheHit() { s.cacheHits.Inc() }

// RecordCacheMiss counts a transcript cache miss.
func (s *MetricsService) RecordCacheMiss() { s.cacheMisses.Inc() }

// RecordAdmission counts a successful admission.
func (s *MetricsService) RecordAdmission() { s.admissionsTotal.Inc() }

// RecordAdmissionRejected counts a rejected admission by reason.
func (s *MetricsService) RecordAdmissionRejected(reason string) {
	s.admissionsRejected.WithLabelValues(reason).Inc()
}

// RecordDrop counts a dropped enrollment.
func (s *MetricsService) RecordDrop() { s.dropsTotal.Inc() }

// RecordFinalization counts a finalized or amended grade.
func (s *MetricsService) RecordFinalization(letter string) {
	s.finalizationsTotal.WithLabelValues(letter).Inc()
}

// ObserveGPARecompute records the duration of one GPA recomputation.
func (s *MetricsService) ObserveGPARecompute(duration time.Duration) {
	s.gpaRecomputes.Observe(duration.Seconds())
}
