package monitor

import "github.com/prometheus/client_golang/prometheus"

// Poll outcome label values.
const (
	outcomeOK        = "ok"
	outcomeError     = "error"
	outcomeCompleted = "completed"
)

var (
	statusPollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dss_status_polls_total",
			Help: "Total number of execution status polls by outcome.",
		},
		[]string{"outcome"},
	)

	pollSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dss_poll_sessions_active",
			Help: "Number of poll sessions currently running.",
		},
	)
)

func init() {
	prometheus.MustRegister(statusPollsTotal)
	prometheus.MustRegister(pollSessionsActive)
}
