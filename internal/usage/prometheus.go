package usage

import "github.com/prometheus/client_golang/prometheus"

type collectors struct {
	latency prometheus.Histogram
	tokens  *prometheus.CounterVec
	errors  prometheus.Counter
}

func newCollectors(reg prometheus.Registerer) *collectors {
	c := &collectors{
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_turn_latency_seconds",
			Help:    "Latency of successful chat turns.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_tokens_total",
			Help: "Estimated tokens exchanged with providers.",
		}, []string{"direction"}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_turn_errors_total",
			Help: "Chat turns that failed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(c.latency, c.tokens, c.errors)
	}
	return c
}
