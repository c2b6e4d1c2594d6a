package bootcycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metric label values.
const (
	Ok   = "ok"
	Fail = "fail"
)

var (
	bootsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lorawan_node_boots_total",
		Help: "Cumulative number of boots, by reset cause.",
	}, []string{"reset_cause"})
	activationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lorawan_node_activations_total",
		Help: "Cumulative number of activation attempts, by kind (resume, join) and result.",
	}, []string{"kind", "result"})
	uplinksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lorawan_node_uplinks_total",
		Help: "Cumulative number of uplink exchanges, by outcome.",
	}, []string{"outcome"})
	sleepSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lorawan_node_sleep_seconds",
		Help:    "Requested deep sleep durations, by reason.",
		Buckets: []float64{30, 60, 120, 180, 300, 600, 1800, 3600},
	}, []string{"reason"})
	reportedErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lorawan_node_reported_errors_total",
		Help: "Cumulative number of reported errors, by boot stage.",
	}, []string{"stage"})
)
