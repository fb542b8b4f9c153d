package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics counts settlements. A nil *Metrics is valid and records nothing.
type Metrics struct {
	settlements *prometheus.CounterVec
	notional    *prometheus.CounterVec
}

// NewMetrics registers the ledger counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrade",
			Name:      "settlements_total",
			Help:      "Order settlements by side and outcome.",
		}, []string{"side", "outcome"}),
		notional: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "papertrade",
			Name:      "settled_notional_total",
			Help:      "Cash moved by filled orders.",
		}, []string{"side"}),
	}
	reg.MustRegister(m.settlements, m.notional)
	return m
}

func (m *Metrics) observe(side OrderSide, cash decimal.Decimal, err error) {
	if m == nil {
		return
	}
	outcome := "filled"
	switch {
	case err == nil:
		m.notional.WithLabelValues(string(side)).Add(cash.InexactFloat64())
	case IsRejection(err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	m.settlements.WithLabelValues(string(side), outcome).Inc()
}
