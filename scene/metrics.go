package scene

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	indexLabel    = "index"
	opLabel       = "op"
	resultLabel   = "result"
	queryLabel    = "query"
	strategyLabel = "strategy"

	resultOK        = "ok"
	resultError     = "error"
	resultMiss      = "miss"
	resultUnchanged = "unchanged"
)

var (
	trackedObjectCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tracked_object_count",
		Help: "The number of objects tracked by scenes.",
	}, []string{indexLabel})

	indexNodeCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "index_node_count",
		Help: "The number of nodes or cells of the last updated scene index.",
	}, []string{indexLabel})

	indexOperationCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "index_operation_count_total",
		Help: "The total number of index operations.",
	}, []string{indexLabel, opLabel, resultLabel})

	queryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "query_latency_seconds",
		Help:    "The time spent running scene queries.",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{indexLabel, queryLabel})

	selectionChangeCountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selection_change_count_total",
		Help: "The total number of selection changes.",
	}, []string{strategyLabel})
)

func instrumentIncreaseObjectGauge(index string) {
	trackedObjectCount.
		With(prometheus.Labels{indexLabel: index}).
		Inc()
}

func instrumentDecreaseObjectGauge(index string) {
	trackedObjectCount.
		With(prometheus.Labels{indexLabel: index}).
		Dec()
}

func instrumentNodeGauge(index string, count int) {
	indexNodeCount.
		With(prometheus.Labels{indexLabel: index}).
		Set(float64(count))
}

func instrumentIndexOperation(index, op, result string) {
	indexOperationCountTotal.
		With(prometheus.Labels{
			indexLabel:  index,
			opLabel:     op,
			resultLabel: result,
		}).
		Inc()
}

func instrumentQueryLatency(index, query string, start time.Time) {
	queryLatency.
		With(prometheus.Labels{
			indexLabel: index,
			queryLabel: query,
		}).
		Observe(time.Since(start).Seconds())
}

func instrumentCountSelectionChange(strategy string) {
	selectionChangeCountTotal.
		With(prometheus.Labels{strategyLabel: strategy}).
		Inc()
}
