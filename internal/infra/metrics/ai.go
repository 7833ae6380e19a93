package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(aiTokensIn, aiTokensOut, aiStreamEvents, aiExchangeLatencyMs) }

var (
	aiTokensIn = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_in",
			Help: "Sum of prompt (input) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiTokensOut = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_out",
			Help: "Sum of completion (output) tokens per provider/model.",
		},
		[]string{"provider", "model"},
	)

	aiStreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_stream_events_total",
			Help: "Stream events relayed to consumers, by event type.",
		},
		[]string{"event"},
	)

	aiExchangeLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_exchange_latency_ms",
			Help:    "Full streaming-exchange latency in milliseconds.",
			Buckets: []float64{100, 250, 500, 1000, 2000, 4000, 8000, 16000, 30000, 60000},
		},
		[]string{"provider", "model", "success"},
	)
)

func IncStreamEvent(event string) {
	aiStreamEvents.WithLabelValues(norm(event)).Inc()
}

func ObserveExchange(provider, model string, tokensIn, tokensOut, latencyMs int, success bool) {
	aiTokensIn.WithLabelValues(norm(provider), norm(model)).Add(float64(tokensIn))
	aiTokensOut.WithLabelValues(norm(provider), norm(model)).Add(float64(tokensOut))
	aiExchangeLatencyMs.WithLabelValues(norm(provider), norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
