package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus метрики движка.
//
// Заполняются инструментирующей обёрткой узлов и движком.
// Экспортируются через promhttp по флагу --metrics-addr.
var (
	// NodeDuration — гистограмма длительности выполнения узлов.
	NodeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "node_duration_seconds",
			Help:      "Длительность выполнения узла по типам",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node_type"},
	)

	// NodeRunsTotal — счётчик выполнений узлов.
	NodeRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "node_runs_total",
			Help:      "Количество выполнений узлов по типам и статусам",
		},
		[]string{"node_type", "status"},
	)

	// RunsTotal — счётчик завершённых runs.
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "runs_total",
			Help:      "Количество завершённых runs по статусам",
		},
		[]string{"status"},
	)

	// TokensTotal — счётчик токенов, потреблённых узлами.
	TokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "node_tokens_total",
			Help:      "Потреблённые токены по типам узлов и видам (prompt/completion)",
		},
		[]string{"node_type", "kind"},
	)

	// CostTotal — суммарная стоимость вызовов узлов в долларах.
	CostTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "loom",
			Subsystem: "engine",
			Name:      "node_cost_usd_total",
			Help:      "Суммарная стоимость вызовов по типам узлов",
		},
		[]string{"node_type"},
	)
)

func init() {
	prometheus.MustRegister(
		NodeDuration,
		NodeRunsTotal,
		RunsTotal,
		TokensTotal,
		CostTotal,
	)
}

// ObserveNode фиксирует завершение выполнения узла.
func ObserveNode(nodeType, status string, elapsed time.Duration) {
	NodeDuration.WithLabelValues(nodeType).Observe(elapsed.Seconds())
	NodeRunsTotal.WithLabelValues(nodeType, status).Inc()
}

// ObserveRun фиксирует завершение run.
func ObserveRun(status string) {
	RunsTotal.WithLabelValues(status).Inc()
}

// ObserveUsage фиксирует потребление ресурсов узлом.
func ObserveUsage(nodeType string, promptTokens, completionTokens int, costUSD float64) {
	if promptTokens > 0 {
		TokensTotal.WithLabelValues(nodeType, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		TokensTotal.WithLabelValues(nodeType, "completion").Add(float64(completionTokens))
	}
	if costUSD > 0 {
		CostTotal.WithLabelValues(nodeType).Add(costUSD)
	}
}
