package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_transfers_total",
			Help: "Total number of transfer attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	transferDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_transfer_duration_seconds",
			Help:    "Time taken to validate and commit a transfer",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"source"},
	)

	ledgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entries_recorded_total",
			Help: "Ledger entries written outside of transfers, by status",
		},
		[]string{"status"},
	)

	scheduleOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_scheduled_transfer_outcomes_total",
			Help: "Per-schedule results of due-check passes",
		},
		[]string{"result"},
	)
)

const (
	sourceManual    = "manual"
	sourceScheduled = "scheduled"
)

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(KindOf(err))
}
