// Package metrics exposes Prometheus collectors for the request pipeline
// and token lifecycle. Collectors are package-level so every client in a
// process reports into the same series; Register attaches them to a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "firerest_requests_total",
		Help: "Pipeline calls by service, HTTP method and outcome code",
	}, []string{"service", "method", "outcome"})

	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "firerest_request_duration_seconds",
		Help:    "Transport round-trip latency per service",
		Buckets: prometheus.DefBuckets,
	}, []string{"service"})

	TokenRefreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "firerest_token_refreshes_total",
		Help: "Token refresh attempts by result",
	}, []string{"result"})
)

// OutcomeOK labels successful calls.
const OutcomeOK = "ok"

// Register registers the collectors on reg (or the default registerer if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{Requests, RequestDuration, TokenRefreshes} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

// ObserveRequest records one pipeline call.
func ObserveRequest(service, method, outcome string, d time.Duration) {
	Requests.WithLabelValues(service, method, outcome).Inc()
	RequestDuration.WithLabelValues(service).Observe(d.Seconds())
}

// ObserveRefresh records one token refresh attempt.
func ObserveRefresh(result string) {
	TokenRefreshes.WithLabelValues(result).Inc()
}
