package backtest

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts runs and replayed days. A nil *Metrics records nothing.
type Metrics struct {
	runs *prometheus.CounterVec
	days prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrade",
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Finished backtest runs by final status.",
		}, []string{"status"}),
		days: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "papertrade",
			Subsystem: "backtest",
			Name:      "days_total",
			Help:      "Trading days replayed.",
		}),
	}
	reg.MustRegister(m.runs, m.days)
	return m
}

func (m *Metrics) runFinished(s Status) {
	if m != nil {
		m.runs.WithLabelValues(string(s)).Inc()
	}
}

func (m *Metrics) dayDone() {
	if m != nil {
		m.days.Inc()
	}
}
