package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "orgsync"

// Metrics holds the collectors recorded during a run. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cache           *prometheus.CounterVec
	patches         *prometheus.CounterVec
	organizations   *prometheus.CounterVec
	warnings        *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_requests_total",
				Help:      "Provider calls by back end and response status",
			},
			[]string{"backend", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_request_duration_seconds",
				Help:      "Latency of provider calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"backend"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "response_cache_total",
				Help:      "Conditional requests by cache result",
			},
			[]string{"result"},
		),
		patches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "patch_outcomes_total",
				Help:      "Applied, skipped and failed patches",
			},
			[]string{"type", "action", "status"},
		),
		organizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "organizations_total",
				Help:      "Processed organizations by mode and final status",
			},
			[]string{"mode", "status"},
		),
		warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_warnings_total",
				Help:      "Degraded reads by source",
			},
			[]string{"source"},
		),
	}

	for _, c := range []prometheus.Collector{m.requests, m.requestDuration, m.cache, m.patches, m.organizations, m.warnings} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveRequest records one provider call. A status of 0 means the call
// never produced a response.
func (m *Metrics) ObserveRequest(backend string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.requests.WithLabelValues(backend, label).Inc()
	m.requestDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// CacheResult records a cache hit or miss
func (m *Metrics) CacheResult(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cache.WithLabelValues("hit").Inc()
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}

// PatchOutcome records the result of applying one patch
func (m *Metrics) PatchOutcome(resourceType, action, status string) {
	if m == nil {
		return
	}
	m.patches.WithLabelValues(resourceType, action, status).Inc()
}

// OrganizationDone records the final status of one organization
func (m *Metrics) OrganizationDone(mode, status string) {
	if m == nil {
		return
	}
	m.organizations.WithLabelValues(mode, status).Inc()
}

// Warning records a degraded read
func (m *Metrics) Warning(source string) {
	if m == nil {
		return
	}
	m.warnings.WithLabelValues(source).Inc()
}
