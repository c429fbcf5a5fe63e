package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EvalBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eval_batches_total",
		Help: "The total number of loader batches sent to generation",
	}, []string{"mode"})

	EvalExamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "eval_examples_total",
		Help: "The total number of examples decoded",
	}, []string{"mode"})

	GeneratedSequencesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "generated_sequences_total",
		Help: "The total number of candidate sequences returned by the model",
	}, []string{"mode"})

	GenerationDuration = promauto.NewSummaryVec(prometheus.SummaryOpts{
		Name: "generation_duration_seconds",
		Help: "Duration of model generation per batch",
	}, []string{"mode"})

	DecodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "decode_duration_seconds",
		Help:    "Duration of the decode stage per pipeline invocation",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"})

	CandidateStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "candidate_status_total",
		Help: "Decoded graph candidates by validity status",
	}, []string{"status"})

	SelectedStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "selected_status_total",
		Help: "Best-ranked graph per example by validity status",
	}, []string{"status"})

	ValidationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "validation_errors_total",
		Help: "Total number of pipeline contract violations",
	}, []string{"operation", "error_type"})

	SmatchScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "smatch_score",
		Help: "Last computed smatch score",
	}, []string{"measure"})

	SmatchPairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "smatch_pairs_total",
		Help: "The total number of graph pairs scored",
	})

	BLEUScore = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bleu_score",
		Help: "Last computed corpus BLEU score",
	})
)

func RecordBatch(mode string, sequences int, duration time.Duration) {
	EvalBatchesTotal.WithLabelValues(mode).Inc()
	GeneratedSequencesTotal.WithLabelValues(mode).Add(float64(sequences))
	GenerationDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func RecordDecode(mode string, examples int, duration time.Duration) {
	EvalExamplesTotal.WithLabelValues(mode).Add(float64(examples))
	DecodeDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

func RecordCandidateStatus(status string) {
	CandidateStatus.WithLabelValues(status).Inc()
}

func RecordSelectedStatus(status string) {
	SelectedStatus.WithLabelValues(status).Inc()
}

func RecordValidationError(operation, errorType string) {
	ValidationErrors.WithLabelValues(operation, errorType).Inc()
}

// RecordSmatch publishes the last corpus-level smatch result.
func RecordSmatch(precision, recall, f float64, pairs int) {
	SmatchScore.WithLabelValues("precision").Set(precision)
	SmatchScore.WithLabelValues("recall").Set(recall)
	SmatchScore.WithLabelValues("f").Set(f)
	SmatchPairsTotal.Add(float64(pairs))
}

func RecordBLEU(score float64) {
	BLEUScore.Set(score)
}
