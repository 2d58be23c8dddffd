// Package metrics holds the Prometheus collectors for proxied traffic and
// upstream health.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ProxyRequests counts proxied requests by rule and upstream status.
	ProxyRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devproxy_proxy_requests_total",
		Help: "Requests forwarded to an upstream by rule and status code",
	}, []string{"rule", "method", "status"})

	// ProxyDuration observes round-trip latency to the upstream.
	ProxyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "devproxy_proxy_request_duration_seconds",
		Help:    "Upstream round-trip latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"rule"})

	// UpstreamErrors counts requests that never got an upstream response.
	UpstreamErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devproxy_upstream_errors_total",
		Help: "Requests answered with 502 because the upstream was unreachable",
	}, []string{"rule", "reason"}) // reason=canceled|timeout|unreachable

	// UpstreamUp is 1 when the last probe of an upstream succeeded.
	UpstreamUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "devproxy_upstream_up",
		Help: "Whether the last health probe of an upstream succeeded (1) or failed (0)",
	}, []string{"upstream"})

	// ConfigReloads counts hot reloads by outcome.
	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "devproxy_config_reloads_total",
		Help: "Config file reloads by outcome",
	}, []string{"outcome"}) // outcome=success|failure

	// ActiveRules is the number of proxy rules in the current router.
	ActiveRules = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devproxy_active_rules",
		Help: "Number of proxy rules mounted in the active router",
	})
)

// RecordProxy records one forwarded request.
func RecordProxy(rule, method string, status int, seconds float64) {
	ProxyRequests.WithLabelValues(rule, method, strconv.Itoa(status)).Inc()
	ProxyDuration.WithLabelValues(rule).Observe(seconds)
}

// RecordUpstreamError records a request that failed before the upstream answered.
func RecordUpstreamError(rule, reason string) {
	UpstreamErrors.WithLabelValues(rule, reason).Inc()
}

// SetUpstreamUp records the outcome of the latest probe.
func SetUpstreamUp(upstream string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	UpstreamUp.WithLabelValues(upstream).Set(v)
}

// ForgetUpstream drops the gauge series of a removed upstream.
func ForgetUpstream(upstream string) {
	UpstreamUp.DeleteLabelValues(upstream)
}

// RecordReload records a config reload outcome.
func RecordReload(ok bool) {
	if ok {
		ConfigReloads.WithLabelValues("success").Inc()
		return
	}
	ConfigReloads.WithLabelValues("failure").Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
