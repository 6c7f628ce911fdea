package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metric names.
const (
	MetricIngestionsTotal       = "spot_ingestions_total"
	MetricStageDuration         = "spot_ingestion_stage_duration_seconds"
	MetricProviderFailuresTotal = "provider_failures_total"
	MetricSideEffectErrorsTotal = "ingestion_side_effect_errors_total"
)

// Submission outcomes.
const (
	OutcomeCreated  = "created"
	OutcomeDegraded = "degraded"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Pipeline stages, used as span names and metric labels.
const (
	StageValidate    = "validate"
	StageUpload      = "upload"
	StageTranscribe  = "transcribe"
	StageTranslate   = "translate"
	StageSummary     = "summary"
	StagePersist     = "persist"
	StageSideEffects = "side_effects"
	StageTitle       = "title"
)

// Metrics contains Prometheus metrics for spot ingestion.
// All operations are thread-safe. A nil *Metrics records nothing.
type Metrics struct {
	ingestions       *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	providerFailures *prometheus.CounterVec
	sideEffectErrors *prometheus.CounterVec
}

// NewMetrics creates the ingestion collectors. Call Register to expose them.
func NewMetrics() *Metrics {
	return &Metrics{
		ingestions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricIngestionsTotal,
				Help: "Total number of spot submissions by outcome",
			},
			[]string{"outcome"},
		),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricStageDuration,
				Help:    "Duration of each ingestion stage in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"stage"},
		),
		providerFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricProviderFailuresTotal,
				Help: "Total number of external provider failures by provider and stage",
			},
			[]string{"provider", "stage"},
		),
		sideEffectErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSideEffectErrorsTotal,
				Help: "Total number of failed post-insert side effects",
			},
			[]string{"effect"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ingestions,
		m.stageDuration,
		m.providerFailures,
		m.sideEffectErrors,
	}
}

func (m *Metrics) recordOutcome(outcome string) {
	if m == nil {
		return
	}
	m.ingestions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeStage(stage string, start time.Time) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordProviderFailure(provider, stage string) {
	if m == nil {
		return
	}
	m.providerFailures.WithLabelValues(provider, stage).Inc()
}

func (m *Metrics) recordSideEffectError(effect string) {
	if m == nil {
		return
	}
	m.sideEffectErrors.WithLabelValues(effect).Inc()
}
