// Package metrics exposes Prometheus instruments for model fitting and permutation runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "metabostat"

// Outcome label values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Recorder owns a private registry so that several pipelines (and tests) can
// coexist in one process. All methods are safe on a nil *Recorder.
type Recorder struct {
	registry     *prometheus.Registry
	fits         *prometheus.CounterVec
	rounds       *prometheus.CounterVec
	roundSeconds prometheus.Histogram
	significant  prometheus.Gauge
}

// NewRecorder creates and registers every instrument
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		fits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fits_total",
			Help:      "Per-peak ANOVA model fits by outcome.",
		}, []string{"outcome"}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permutation_rounds_total",
			Help:      "Completed permutation iterations by outcome.",
		}, []string{"outcome"}),
		roundSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "permutation_round_seconds",
			Help:      "Wall time of one shuffle + refit + correction round.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		significant: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "significant_entries",
			Help:      "Rejected term x peak entries in the most recent correction.",
		}),
	}
	r.registry.MustRegister(r.fits, r.rounds, r.roundSeconds, r.significant)
	return r
}

// Registry returns the registry for exposition
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveFit counts one model fit
func (r *Recorder) ObserveFit(err error) {
	if r == nil {
		return
	}
	r.fits.WithLabelValues(outcome(err)).Inc()
}

// ObserveRound records one permutation round
func (r *Recorder) ObserveRound(d time.Duration, err error) {
	if r == nil {
		return
	}
	r.rounds.WithLabelValues(outcome(err)).Inc()
	r.roundSeconds.Observe(d.Seconds())
}

// SetSignificant records the significant entry count of the latest correction
func (r *Recorder) SetSignificant(n int) {
	if r == nil {
		return
	}
	r.significant.Set(float64(n))
}

// Fits returns the counter for an outcome, for inspection in tests and summaries
func (r *Recorder) Fits(outcome string) prometheus.Counter {
	return r.fits.WithLabelValues(outcome)
}

// Rounds returns the round counter for an outcome
func (r *Recorder) Rounds(outcome string) prometheus.Counter {
	return r.rounds.WithLabelValues(outcome)
}

// Significant returns the significant-entries gauge
func (r *Recorder) Significant() prometheus.Gauge {
	return r.significant
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
