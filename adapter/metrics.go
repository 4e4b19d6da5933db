package adapter

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the adapter's prometheus instruments. Each instance carries
// its asset address as a constant label so multiple adapters can share one
// registry.
type Metrics struct {
	deploysTotal       prometheus.Counter
	freesTotal         prometheus.Counter
	harvestsTotal      prometheus.Counter
	realizedLoss       prometheus.Counter
	lastReportedAssets prometheus.Gauge
	harvestDuration    prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer, asset common.Address) *Metrics {
	labels := prometheus.Labels{"asset": asset.Hex()}

	m := &Metrics{
		deploysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "adapter_deploys_total",
			Help:        "Number of successful fund deployments into the yield pool.",
			ConstLabels: labels,
		}),
		freesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "adapter_frees_total",
			Help:        "Number of successful fund releases back to idle.",
			ConstLabels: labels,
		}),
		harvestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "adapter_harvests_total",
			Help:        "Number of harvest-and-report cycles.",
			ConstLabels: labels,
		}),
		realizedLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "adapter_realized_loss_units_total",
			Help:        "Cumulative withdrawal shortfall surfaced to the vault, in asset units.",
			ConstLabels: labels,
		}),
		lastReportedAssets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "adapter_reported_total_assets",
			Help:        "Total assets figure from the most recent harvest report, in asset units.",
			ConstLabels: labels,
		}),
		harvestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "adapter_harvest_duration_seconds",
			Help:        "Duration of harvest-and-report cycles.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.deploysTotal,
		m.freesTotal,
		m.harvestsTotal,
		m.realizedLoss,
		m.lastReportedAssets,
		m.harvestDuration,
	)
	return m
}
