package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slides_jobs_processed_total",
		Help: "Total number of extraction jobs processed, by status",
	}, []string{"status"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slides_job_stage_duration_seconds",
		Help:    "Duration of the slide extraction pipeline stages",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	CandidateFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slides_candidate_frames_total",
		Help: "Total number of scene-change candidate frames extracted",
	})

	SlidesKeptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slides_kept_total",
		Help: "Total number of distinct slides retained after deduplication",
	})

	UnreadableFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slides_unreadable_frames_total",
		Help: "Total number of candidate frames skipped because they could not be decoded",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slides_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slides_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
