package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GradingRuns counts scheduling-driver runs by trigger (scheduler, cron, admin) and outcome
	GradingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survivor_grading_runs_total",
			Help: "Total number of grading runs",
		},
		[]string{"trigger", "outcome"},
	)

	// ShowsGraded counts grading passes per show
	ShowsGraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survivor_shows_graded_total",
			Help: "Total number of show grading passes",
		},
		[]string{"finalized"},
	)

	// PicksGraded counts pick transitions committed by the grading engine
	PicksGraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survivor_grading_picks_total",
			Help: "Total number of picks graded, by result",
		},
		[]string{"result"},
	)

	AcquisitionSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "survivor_acquisition_steps_total",
			Help: "Setlist acquisition steps by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	AcquisitionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "survivor_acquisition_duration_seconds",
			Help:    "Setlist acquisition step duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	DatabaseOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "survivor_db_operation_duration_seconds",
			Help:    "Database operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

func RecordAcquisitionStep(source, outcome string, elapsed time.Duration) {
	AcquisitionSteps.WithLabelValues(source, outcome).Inc()
	AcquisitionDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func RecordGrading(finalized bool, winners, losers int) {
	ShowsGraded.WithLabelValues(strconv.FormatBool(finalized)).Inc()
	PicksGraded.WithLabelValues("WIN").Add(float64(winners))
	PicksGraded.WithLabelValues("LOSE").Add(float64(losers))
}

// RecordDBOperation records how long a database operation took
func RecordDBOperation(operation string, start time.Time) {
	DatabaseOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
