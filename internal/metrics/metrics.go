// Package metrics records run counters in a Prometheus registry and writes
// them as a node-exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/albapepper/gamedeals-data/internal/assemble"
	"github.com/albapepper/gamedeals-data/internal/features"
)

// Registry holds the run counters on a private Prometheus registry, so only
// gamedeals metrics end up in the textfile.
type Registry struct {
	reg               *prometheus.Registry
	InputRecords      *prometheus.CounterVec
	CombinedRecords   *prometheus.CounterVec
	SkippedRecords    *prometheus.CounterVec
	DuplicatesRemoved *prometheus.CounterVec
	PriceTierRows     *prometheus.GaugeVec
	RunDurationSec    prometheus.Gauge
	LastSuccess       prometheus.Gauge
}

// NewRegistry creates and registers every run metric.
func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	input := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gamedeals_input_records_total",
		Help: "Raw records read per source.",
	}, []string{"source"})
	combined := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gamedeals_combined_records_total",
		Help: "Records written to the combined table per source.",
	}, []string{"source"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gamedeals_skipped_records_total",
		Help: "Records skipped per source and reason.",
	}, []string{"source", "reason"})
	dups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gamedeals_duplicates_removed_total",
		Help: "Duplicate records removed per source.",
	}, []string{"source"})
	tiers := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gamedeals_price_tier_rows",
		Help: "Combined rows per price tier in the last run.",
	}, []string{"tier"})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gamedeals_run_duration_seconds",
		Help: "Wall-clock duration of the last successful run.",
	})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gamedeals_last_success_timestamp_seconds",
		Help: "Unix time of the last successful commit.",
	})

	r.MustRegister(input, combined, skipped, dups, tiers, duration, lastSuccess)
	return &Registry{
		reg:               r,
		InputRecords:      input,
		CombinedRecords:   combined,
		SkippedRecords:    skipped,
		DuplicatesRemoved: dups,
		PriceTierRows:     tiers,
		RunDurationSec:    duration,
		LastSuccess:       lastSuccess,
	}
}

// ObserveAssembly records per-source counts of an assembly result.
func (r *Registry) ObserveAssembly(res assemble.Result) {
	for _, s := range res.Sources {
		src := string(s.Source)
		r.InputRecords.WithLabelValues(src).Add(float64(s.Input))
		r.CombinedRecords.WithLabelValues(src).Add(float64(s.Kept))
		r.DuplicatesRemoved.WithLabelValues(src).Add(float64(s.Duplicates))
	}
	for _, s := range res.Skipped {
		r.SkippedRecords.WithLabelValues(string(s.Source), s.Reason).Inc()
	}
}

// ObserveFeatures records the price tier distribution.
func (r *Registry) ObserveFeatures(rows []features.Row) {
	for tier, n := range features.TierCounts(rows) {
		r.PriceTierRows.WithLabelValues(string(tier)).Set(float64(n))
	}
}

// ObserveSuccess records the run duration and completion time.
func (r *Registry) ObserveSuccess(d time.Duration, at time.Time) {
	r.RunDurationSec.Set(d.Seconds())
	r.LastSuccess.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics to path in the text exposition format.
// The file is replaced atomically.
func (r *Registry) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
