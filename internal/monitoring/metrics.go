package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects ingestion and analysis metrics on its own registry.
// All methods are safe on a nil *Recorder so callers can leave it unset.
type Recorder struct {
	registry *prometheus.Registry

	fetchAttempts  *prometheus.CounterVec
	fetchExhausted prometheus.Counter
	listings       *prometheus.CounterVec
	groupSizes     prometheus.Histogram
	stageLatency   *prometheus.HistogramVec
	rateLimited    prometheus.Counter
}

// NewRecorder creates a recorder with a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardpulse_fetch_attempts_total",
			Help: "Marketplace fetch attempts by outcome",
		}, []string{"outcome"}),
		fetchExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardpulse_fetch_exhausted_total",
			Help: "Fetches that failed every retry attempt",
		}),
		listings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cardpulse_listings_total",
			Help: "Listing nodes seen by the extractor by result",
		}, []string{"result"}),
		groupSizes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cardpulse_variant_group_size",
			Help:    "Number of listings per variant group",
			Buckets: []float64{1, 2, 3, 5, 10, 25, 50, 100, 250},
		}),
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardpulse_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cardpulse_rate_limited_total",
			Help: "Requests rejected by the client rate limiter",
		}),
	}

	reg.MustRegister(
		r.fetchAttempts,
		r.fetchExhausted,
		r.listings,
		r.groupSizes,
		r.stageLatency,
		r.rateLimited,
		collectors.NewGoCollector(),
	)
	return r
}

// Registry exposes the underlying registry (tests, custom exporters).
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// FetchAttempt records one attempt; outcome is "ok", "status" or "transport".
func (r *Recorder) FetchAttempt(outcome string) {
	if r == nil {
		return
	}
	r.fetchAttempts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) FetchExhausted() {
	if r == nil {
		return
	}
	r.fetchExhausted.Inc()
}

// Listing records an extractor decision: "kept", "sponsored" or "dropped".
func (r *Recorder) Listing(result string) {
	if r == nil {
		return
	}
	r.listings.WithLabelValues(result).Inc()
}

func (r *Recorder) GroupSize(n int) {
	if r == nil {
		return
	}
	r.groupSizes.Observe(float64(n))
}

// ObserveStage records how long a pipeline stage took since start.
func (r *Recorder) ObserveStage(stage string, start time.Time) {
	if r == nil {
		return
	}
	r.stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (r *Recorder) RateLimited() {
	if r == nil {
		return
	}
	r.rateLimited.Inc()
}
