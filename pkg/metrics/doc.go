/*
Package metrics defines and registers rgmd's Prometheus metrics and a
small component-health registry used by the admin surface's /healthz
and /readyz endpoints.

# Metric families

Groups: rgmd_groups_total (gauge, by rg_state), rgmd_group_transitions_total
(counter, by from/to state), rgmd_group_restarts_total (counter, by
group).

Raft: rgmd_raft_is_leader, rgmd_raft_peers_total, rgmd_raft_log_index,
rgmd_raft_applied_index, rgmd_raft_commit_duration_seconds.

Placement: rgmd_placement_duration_seconds, rgmd_placement_failures_total.

Queue: rgmd_queue_depth, rgmd_requests_processed_total (by kind/outcome).

Agent: rgmd_agent_invoke_duration_seconds, rgmd_agent_results_total (by
rule/action/ocf_code).

Evaluator and reconfigure: rgmd_evaluation_duration_seconds,
rgmd_evaluations_total, rgmd_reconfigure_duration_seconds,
rgmd_reconfigure_rejected_total.

Admin API: rgmd_api_requests_total, rgmd_api_request_duration_seconds.

# Collector

Collector samples gauges that have no single call site to update
inline — group counts by state, Raft log/peer position — on a 15s
ticker, reading the current forest (pkg/forest) and the lock manager
(pkg/lock). Counters and histograms elsewhere are updated directly by
the package doing the work, using Timer for duration observations.

# Component health

RegisterComponent/UpdateComponent/GetHealth/GetReadiness back the admin
surface's liveness and readiness checks: readiness requires "raft",
"config" and "adminapi" to all report healthy.
*/
package metrics
