package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SweepErrorTypeDeadlineExceeded = "deadline_exceeded"
	SweepErrorTypeDB               = "db"
	SweepErrorTypeBusinessRule     = "business_rule"
	SweepErrorTypeUnknown          = "unknown"
)

// SweepMetrics captures health signals for the periodic jobs
// (ambassador promotion, network recomputation, message dispatch).
type SweepMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	runLoopLag     prometheus.Observer
}

var (
	sweepMetricsOnce sync.Once
	sweepMetrics     *SweepMetrics
)

// Sweep returns the singleton sweep metrics registry.
func Sweep() *SweepMetrics {
	return SweepWithConfig(Config{})
}

// SweepWithConfig returns the singleton sweep metrics registry using config labels.
func SweepWithConfig(cfg Config) *SweepMetrics {
	sweepMetricsOnce.Do(func() {
		sweepMetrics = newSweepMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweepMetrics
}

// ResetSweepMetricsForTest resets the sweep metrics singleton for tests.
func ResetSweepMetricsForTest() {
	sweepMetricsOnce = sync.Once{}
	sweepMetrics = nil
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) *SweepMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	labels := prometheus.Labels{
		"service": serviceName(cfg),
		"env":     environment(cfg),
	}

	m := &SweepMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tribewave_sweep_job_runs_total",
			Help:        "Total sweep job executions.",
			ConstLabels: labels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "tribewave_sweep_job_duration_seconds",
			Help:        "Sweep job duration.",
			ConstLabels: labels,
			Buckets:     []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120},
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tribewave_sweep_job_timeouts_total",
			Help:        "Sweep jobs that hit their deadline.",
			ConstLabels: labels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tribewave_sweep_job_errors_total",
			Help:        "Sweep job errors by type.",
			ConstLabels: labels,
		}, []string{"job", "error_type"}),
		batchProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tribewave_sweep_batch_processed_total",
			Help:        "Entities processed by sweep jobs.",
			ConstLabels: labels,
		}, []string{"job", "entity"}),
	}

	lag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "tribewave_sweep_run_loop_lag_seconds",
		Help:        "Delay between scheduled and actual sweep run start.",
		ConstLabels: labels,
		Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60},
	})
	m.runLoopLag = lag

	for _, collector := range []prometheus.Collector{
		m.jobRuns, m.jobDuration, m.jobTimeouts, m.jobErrors, m.batchProcessed, lag,
	} {
		if err := registerer.Register(collector); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}

	return m
}

func (m *SweepMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SweepMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SweepMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *SweepMetrics) IncJobError(job string, err error) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifySweepErrorType(err)).Inc()
}

func (m *SweepMetrics) AddBatchProcessed(job, entity string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job, entity).Add(float64(count))
}

func (m *SweepMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil || lag <= 0 {
		return
	}
	m.runLoopLag.Observe(lag.Seconds())
}

// ClassifySweepErrorType buckets sweep errors for alerting.
func ClassifySweepErrorType(err error) string {
	switch {
	case err == nil:
		return SweepErrorTypeUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SweepErrorTypeDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, gorm.ErrInvalidTransaction), errors.Is(err, gorm.ErrDuplicatedKey):
		return SweepErrorTypeDB
	default:
		return SweepErrorTypeUnknown
	}
}
