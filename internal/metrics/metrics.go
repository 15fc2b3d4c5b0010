package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the partner portal.
type Metrics struct {
	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec

	// Auth metrics
	Logins        *prometheus.CounterVec
	RateLimitHits *prometheus.CounterVec

	// Provider metrics
	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec

	// Aggregation metrics
	AggregationLatency *prometheus.HistogramVec
	CampaignToggles    *prometheus.CounterVec

	// Report metrics
	Reports           *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec

	// System metrics
	DBConnections *prometheus.GaugeVec
}

// NewMetrics creates all metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		Logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "logins_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_hits_total",
				Help:      "Requests rejected by the rate limiter",
			},
			[]string{"endpoint"},
		),
		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Calls to the email provider API by operation and result",
			},
			[]string{"op", "result"},
		),
		ProviderLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Email provider API latency",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"op"},
		),
		AggregationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "aggregation_duration_seconds",
				Help:      "Time spent building dashboard and analytics responses",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"view"},
		),
		CampaignToggles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "campaign_toggles_total",
				Help:      "Campaign status changes by new status and source",
			},
			[]string{"status", "source"},
		),
		Reports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Reports by format and final status",
			},
			[]string{"format", "status"},
		),
		WebhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Tenant webhook deliveries by event and result",
			},
			[]string{"event", "result"},
		),
		DBConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "db_connections",
				Help:      "Database connection pool stats",
			},
			[]string{"state"},
		),
	}
}

// Handler returns the Prometheus HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a handler exposing the metrics in g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latency.Seconds())
}

// RecordLogin records a login attempt; result is "success", "invalid" or "error".
func (m *Metrics) RecordLogin(result string) {
	if m == nil {
		return
	}
	m.Logins.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordRateLimitHit(endpoint string) {
	if m == nil {
		return
	}
	m.RateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordProviderCall records one provider API call.
func (m *Metrics) RecordProviderCall(op string, err error, latency time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.ProviderCalls.WithLabelValues(op, result).Inc()
	m.ProviderLatency.WithLabelValues(op).Observe(latency.Seconds())
}

func (m *Metrics) RecordAggregation(view string, latency time.Duration) {
	if m == nil {
		return
	}
	m.AggregationLatency.WithLabelValues(view).Observe(latency.Seconds())
}

func (m *Metrics) RecordCampaignToggle(status, source string) {
	if m == nil {
		return
	}
	m.CampaignToggles.WithLabelValues(status, source).Inc()
}

func (m *Metrics) RecordReport(format, status string) {
	if m == nil {
		return
	}
	m.Reports.WithLabelValues(format, status).Inc()
}

// RecordWebhook records one webhook delivery; result is "ok", "rejected" or
// "error".
func (m *Metrics) RecordWebhook(event, result string) {
	if m == nil {
		return
	}
	m.WebhookDeliveries.WithLabelValues(event, result).Inc()
}

// UpdateDBStats updates database connection pool metrics.
func (m *Metrics) UpdateDBStats(idle, inUse, total int) {
	if m == nil {
		return
	}
	m.DBConnections.WithLabelValues("idle").Set(float64(idle))
	m.DBConnections.WithLabelValues("in_use").Set(float64(inUse))
	m.DBConnections.WithLabelValues("total").Set(float64(total))
}
