// Package metrics exports lifecycle outcomes as Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/lutwrap/internal/engine"
	"github.com/roach88/lutwrap/internal/ir"
)

// Recorder implements engine.Recorder.
type Recorder struct {
	operations    *prometheus.CounterVec
	batchEntries  prometheus.Histogram
	recordEntries *prometheus.GaugeVec
}

var _ engine.Recorder = (*Recorder)(nil)

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lutwrap_operations_total",
				Help: "Lifecycle operations by outcome (ok, noop or error code)",
			},
			[]string{"operation", "outcome"},
		),
		batchEntries: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lutwrap_extend_batch_entries",
				Help:    "New entries added per committed extend",
				Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1..256
			},
		),
		recordEntries: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "lutwrap_record_entries",
				Help: "Entries currently held by a record's table",
			},
			[]string{"record"},
		),
	}

	for _, c := range []prometheus.Collector{r.operations, r.batchEntries, r.recordEntries} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) ObserveOperation(op engine.Operation, outcome string) {
	r.operations.WithLabelValues(string(op), outcome).Inc()
}

func (r *Recorder) ObserveExtend(record ir.Address, added int, total uint64) {
	r.batchEntries.Observe(float64(added))
	r.recordEntries.WithLabelValues(record.String()).Set(float64(total))
}

func (r *Recorder) ForgetRecord(record ir.Address) {
	r.recordEntries.DeleteLabelValues(record.String())
}
