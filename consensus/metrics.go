package consensus

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "consensus"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Height of the current round.
	Height metrics.Gauge
	// Current round step.
	Step metrics.Gauge
	// 1 if this node leads the current round.
	IsLeader metrics.Gauge

	// Number of validators.
	Validators metrics.Gauge
	// Pre-proposals accepted in the current round.
	PreProposals metrics.Gauge
	// Aggregations accepted in the current round.
	Aggregations metrics.Gauge

	// Messages dropped, labelled by reason.
	DroppedMessages metrics.Counter
	// Rounds finished, labelled by outcome.
	RoundOutcomes metrics.Counter

	// Seconds spent in a round until finalization.
	RoundDuration metrics.Histogram
	// Seconds spent by the matching engine.
	MatchingDuration metrics.Histogram
	// Number of pool solutions in finalized proposals.
	Solutions metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Height: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "height",
			Help:      "Height of the current round.",
		}, labels).With(labelsAndValues...),
		Step: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "step",
			Help:      "Step of the current round.",
		}, labels).With(labelsAndValues...),
		IsLeader: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "is_leader",
			Help:      "Whether this node leads the current round.",
		}, labels).With(labelsAndValues...),
		Validators: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "validators",
			Help:      "Number of validators.",
		}, labels).With(labelsAndValues...),
		PreProposals: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pre_proposals",
			Help:      "Pre-proposals accepted in the current round.",
		}, labels).With(labelsAndValues...),
		Aggregations: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "aggregations",
			Help:      "Aggregations accepted in the current round.",
		}, labels).With(labelsAndValues...),
		DroppedMessages: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "dropped_messages",
			Help:      "Consensus messages dropped.",
		}, append(labels, "reason")).With(labelsAndValues...),
		RoundOutcomes: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "round_outcomes",
			Help:      "Rounds finished by outcome.",
		}, append(labels, "outcome")).With(labelsAndValues...),
		RoundDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "round_duration_seconds",
			Help:      "Time between the new block and the end of the round.",
			Buckets:   stdprometheus.ExponentialBuckets(0.05, 2, 10),
		}, labels).With(labelsAndValues...),
		MatchingDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "matching_duration_seconds",
			Help:      "Time spent by the matching engine.",
			Buckets:   stdprometheus.ExponentialBuckets(0.001, 2, 12),
		}, labels).With(labelsAndValues...),
		Solutions: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "solutions",
			Help:      "Pool solutions per proposal.",
			Buckets:   stdprometheus.LinearBuckets(0, 4, 8),
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Height:           discard.NewGauge(),
		Step:             discard.NewGauge(),
		IsLeader:         discard.NewGauge(),
		Validators:       discard.NewGauge(),
		PreProposals:     discard.NewGauge(),
		Aggregations:     discard.NewGauge(),
		DroppedMessages:  discard.NewCounter(),
		RoundOutcomes:    discard.NewCounter(),
		RoundDuration:    discard.NewHistogram(),
		MatchingDuration: discard.NewHistogram(),
		Solutions:        discard.NewHistogram(),
	}
}
