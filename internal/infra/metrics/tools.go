package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(toolDispatchTotal) }

var toolDispatchTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tool_dispatch_total",
		Help: "Tool dispatches by tool name and terminal status.",
	},
	[]string{"tool", "status"}, // 'completed', 'failed'
)

func IncToolDispatch(tool, status string) {
	toolDispatchTotal.WithLabelValues(norm(tool), norm(status)).Inc()
}
