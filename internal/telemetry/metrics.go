package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors exposed on /metrics.
type Metrics struct {
	registry     *prometheus.Registry
	tokensIssued *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tokensIssued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "authbox",
		Name:      "tokens_issued_total",
		Help:      "Tokens and codes issued, by grant type and token type.",
	}, []string{"grant_type", "token_type"})
	registry.MustRegister(tokensIssued)

	return &Metrics{registry: registry, tokensIssued: tokensIssued}
}

// TokenIssued counts one issued token. Safe on a nil receiver.
func (m *Metrics) TokenIssued(grantType, tokenType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(grantType, tokenType).Inc()
}

// ObserveAccessLog exports the queue depth and drop count of the access log pipeline.
func (m *Metrics) ObserveAccessLog(queueLen func() int, dropped func() uint64) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "authbox",
			Name:      "access_log_queue_length",
			Help:      "Access log entries waiting to be written.",
		}, func() float64 { return float64(queueLen()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "authbox",
			Name:      "access_log_dropped_total",
			Help:      "Access log entries discarded because the queue was full.",
		}, func() float64 { return float64(dropped()) }),
	)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
