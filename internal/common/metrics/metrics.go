package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	DispatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_outcomes_total",
			Help: "Dispatch lifecycle outcomes by kind",
		},
		[]string{"outcome"},
	)

	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_notifications_total",
			Help: "Outbound notifications by delivery result",
		},
		[]string{"result"},
	)

	AssignmentConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_assignment_conflicts_total",
			Help: "Accept replies that lost the assignment race",
		},
	)

	TimeToAssign = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatch_time_to_assign_seconds",
			Help:    "Time from first provider notification to accepted assignment",
			Buckets: []float64{15, 30, 60, 120, 300, 600, 1200},
		},
	)

	PendingTimers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_pending_timers",
			Help: "Escalation timers currently armed in this process",
		},
	)

	ConversationEscalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_escalations_total",
			Help: "Conversations routed to a human agent by trigger",
		},
		[]string{"trigger"},
	)
)

func RecordOutcome(outcome string) {
	DispatchOutcomes.WithLabelValues(outcome).Inc()
}

func RecordNotification(result string) {
	NotificationsSent.WithLabelValues(result).Inc()
}

func RecordTimeToAssign(d time.Duration) {
	TimeToAssign.Observe(d.Seconds())
}

func RecordJob(taskType string, started time.Time, errorCode string) {
	WorkerJobDuration.WithLabelValues(taskType).Observe(time.Since(started).Seconds())
	if errorCode != "" {
		WorkerJobsFailed.WithLabelValues(taskType, errorCode).Inc()
		return
	}
	WorkerJobsCompleted.WithLabelValues(taskType).Inc()
}
