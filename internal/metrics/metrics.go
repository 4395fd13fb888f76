// Package metrics exposes batch run statistics for the node exporter textfile collector.
package metrics

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/KyungWonPark/Decoding/internal/crossval"
)

const (
	// OutcomeSuccess labels participant runs that wrote their output
	OutcomeSuccess = "success"
	// OutcomeError labels participant runs aborted by an error
	OutcomeError = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "damson_decoding",
			Name:      "runs_total",
			Help:      "Total number of participant runs, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "damson_decoding",
			Name:      "run_seconds",
			Help:      "Participant run duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		},
	)

	trialsAligned = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "damson_decoding",
			Name:      "trials_aligned",
			Help:      "Number of decodable trials after alignment.",
		},
		[]string{"participant"},
	)

	accuracyAcross = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "damson_decoding",
			Name:      "accuracy_across",
			Help:      "Balanced accuracy pooled over held-out folds of the unpermuted run.",
		},
		[]string{"participant", "stem"},
	)

	permutationAccuracy = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "damson_decoding",
			Name:      "permutation_accuracy",
			Help:      "Pooled balanced accuracy of permutation runs.",
			Buckets:   prometheus.LinearBuckets(0.05, 0.05, 20),
		},
	)

	missingExamples = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "damson_decoding",
			Name:      "missing_example_warnings_total",
			Help:      "Held-out folds with at least one class absent from the test set.",
		},
	)
)

// Register attaches the decoding collectors to the supplied registerer
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		trialsAligned,
		accuracyAcross,
		permutationAccuracy,
		missingExamples,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveRun records a participant run duration and outcome
func ObserveRun(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	runsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	runDurationSeconds.Observe(duration.Seconds())
}

// SetTrials records the aligned trial count of a participant
func SetTrials(participant string, n int) {
	trialsAligned.WithLabelValues(participant).Set(float64(n))
}

// ObserveScope records the pooled accuracies and warnings of one scope
func ObserveScope(participant, stem string, res crossval.ScopeResult) {
	for _, run := range res.Runs {
		missingExamples.Add(float64(len(run.Warnings)))

		for _, a := range run.Accuracy {
			if a.HeldOut != crossval.Across || math.IsNaN(a.Value) {
				continue
			}
			if run.Perm < 0 {
				accuracyAcross.WithLabelValues(participant, stem).Set(a.Value)
			} else {
				permutationAccuracy.Observe(a.Value)
			}
		}
	}
}

// WriteTextfile saves everything gathered by g in the text exposition format
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
