package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Group metrics
	GroupsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rgmd_groups_total",
			Help: "Total number of resource groups by rg_state",
		},
		[]string{"state"},
	)

	GroupTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rgmd_group_transitions_total",
			Help: "Total number of rg_state transitions by from/to state",
		},
		[]string{"from", "to"},
	)

	GroupRestartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rgmd_group_restarts_total",
			Help: "Total number of recovery restarts by group",
		},
		[]string{"group"},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rgmd_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rgmd_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rgmd_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rgmd_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftCommitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rgmd_raft_commit_duration_seconds",
			Help:    "Time taken to commit an rg_state change through Raft",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Admin API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rgmd_api_requests_total",
			Help: "Total number of admin API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rgmd_api_request_duration_seconds",
			Help:    "Admin API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Placement metrics
	PlacementDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rgmd_placement_duration_seconds",
			Help:    "Time taken to score and choose a placement target",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlacementFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rgmd_placement_failures_total",
			Help: "Total number of placement attempts that found no eligible node",
		},
	)

	// Queue metrics
	QueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rgmd_queue_depth",
			Help: "Current number of queued group operations awaiting a worker",
		},
	)

	RequestsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rgmd_requests_processed_total",
			Help: "Total number of queued requests processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Agent invocation metrics
	AgentInvokeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rgmd_agent_invoke_duration_seconds",
			Help:    "Time taken for a resource agent invocation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"rule", "action"},
	)

	AgentResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rgmd_agent_results_total",
			Help: "Total number of resource agent invocations by OCF result code",
		},
		[]string{"rule", "action", "ocf_code"},
	)

	// Evaluator / reconfigure metrics
	EvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rgmd_evaluation_duration_seconds",
			Help:    "Time taken for a full evaluate pass over the forest",
			Buckets: prometheus.DefBuckets,
		},
	)

	EvaluationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rgmd_evaluations_total",
			Help: "Total number of evaluate passes completed",
		},
	)

	ReconfigureDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rgmd_reconfigure_duration_seconds",
			Help:    "Time taken for a reconfigure cycle, from new forest to drained delta",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconfigureRejectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rgmd_reconfigure_rejected_total",
			Help: "Total number of reconfigure attempts rejected due to a configuration error",
		},
	)
)

func init() {
	prometheus.MustRegister(
		GroupsTotal,
		GroupTransitionsTotal,
		GroupRestartsTotal,
		RaftLeader,
		RaftPeers,
		RaftLogIndex,
		RaftAppliedIndex,
		RaftCommitDuration,
		APIRequestsTotal,
		APIRequestDuration,
		PlacementDuration,
		PlacementFailuresTotal,
		QueueDepth,
		RequestsProcessedTotal,
		AgentInvokeDuration,
		AgentResultsTotal,
		EvaluationDuration,
		EvaluationsTotal,
		ReconfigureDuration,
		ReconfigureRejectedTotal,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an in-flight operation for later histogram observation.
type Timer struct {
	start time.Time
}

// NewTimer starts a Timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the Timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
