package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	admissions   *prometheus.CounterVec
	policyCache  *prometheus.CounterVec
	policyFlush  *prometheus.CounterVec
	lookup       *prometheus.HistogramVec
	lookupErrors *prometheus.CounterVec
	buckets      prometheus.Gauge
	errorsTotal  *prometheus.CounterVec
}

// New creates a recorder registered on reg. A nil reg means the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		admissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_admissions_total",
				Help: "Admission decisions by outcome",
			},
			[]string{"outcome"},
		),
		policyCache: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_policy_cache_requests_total",
				Help: "Policy cache lookups by result",
			},
			[]string{"result"},
		),
		policyFlush: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_policy_cache_flushes_total",
				Help: "Policy cache flushes by reason",
			},
			[]string{"reason"},
		),
		lookup: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rategate_policy_lookup_duration_seconds",
				Help:    "Duration of policy lookups on cache miss",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"policy"},
		),
		lookupErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_policy_lookup_errors_total",
				Help: "Failed policy lookups",
			},
			[]string{"policy"},
		),
		buckets: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "rategate_buckets",
				Help: "Number of token buckets held in memory",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rategate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordAdmission counts one admission decision.
func (r *Recorder) RecordAdmission(outcome string) {
	r.admissions.WithLabelValues(outcome).Inc()
}

// RecordPolicyCache counts a policy cache hit or miss.
func (r *Recorder) RecordPolicyCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.policyCache.WithLabelValues(result).Inc()
}

// RecordPolicyFlush counts a policy cache flush.
func (r *Recorder) RecordPolicyFlush(reason string) {
	r.policyFlush.WithLabelValues(reason).Inc()
}

// RecordLookup records a policy lookup and its outcome.
func (r *Recorder) RecordLookup(policy string, seconds float64, err error) {
	r.lookup.WithLabelValues(policy).Observe(seconds)
	if err != nil {
		r.lookupErrors.WithLabelValues(policy).Inc()
	}
}

// SetBuckets sets the bucket gauge.
func (r *Recorder) SetBuckets(n int) {
	r.buckets.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
