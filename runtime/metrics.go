package runtime

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runsTotal counts finished runs by outcome
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanloop_runs_total",
		Help: "Total loop runs by outcome",
	}, []string{"outcome"})

	// iterationsTotal counts executed iterations across all runs
	iterationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanloop_iterations_total",
		Help: "Total executed loop iterations",
	})

	// stepDuration tracks the latency of single step function calls
	stepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scanloop_step_duration_seconds",
		Help:    "Step function call duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12), // 1µs to ~4s
	})

	// bufferWrites counts output rows by how they reached the history buffer
	bufferWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanloop_buffer_writes_total",
		Help: "Output rows stored into history buffers, by mode",
	}, []string{"mode"})

	// rotationsTotal counts buffers rotated into chronological order
	rotationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scanloop_buffer_rotations_total",
		Help: "Total history buffers rotated after a run",
	})
)

// Run outcomes used as the outcome label.
const (
	outcomeCompleted    = "completed"
	outcomeEarlyStopped = "early_stopped"
	outcomeConfig       = "configuration_error"
	outcomeShape        = "shape_error"
	outcomeInner        = "inner_error"
)

func outcome(res Result, err error) string {
	switch {
	case err == nil && res.EarlyStopped:
		return outcomeEarlyStopped
	case err == nil:
		return outcomeCompleted
	case errors.Is(err, ErrConfiguration):
		return outcomeConfig
	case errors.Is(err, ErrShape):
		return outcomeShape
	default:
		return outcomeInner
	}
}

func observeRun(r *run, res Result, err error) {
	runsTotal.WithLabelValues(outcome(res, err)).Inc()
	iterationsTotal.Add(float64(r.i))
	bufferWrites.WithLabelValues("copy").Add(float64(r.copies))
	bufferWrites.WithLabelValues("reused").Add(float64(r.reuses))
	rotationsTotal.Add(float64(r.rotations))
}
