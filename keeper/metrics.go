package keeper

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	cyclesTotal   prometheus.Counter
	harvestErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keeper_cycles_total",
			Help: "Number of harvest cycles started.",
		}),
		harvestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keeper_harvest_errors_total",
			Help: "Number of per-adapter harvest failures.",
		}),
	}
	reg.MustRegister(m.cyclesTotal, m.harvestErrors)
	return m
}
