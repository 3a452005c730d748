/*
Package placement implements the placement engine: scoring which
cluster node should run a group, given membership, the group's
failover domain, and exclusivity.

Score returns 0 for an illegal placement and otherwise a positive,
higher-is-better value: a restricted domain excludes non-members
outright, an ordered domain adds a priority bonus, and an exclusive
group refuses any node already running another group. BestTargetNode
scans live membership for the highest-scoring candidate, ties broken
by lowest node ID. IsFODBest is the check the evaluator (pkg/evaluator)
makes to decide whether the local node should start a STOPPED group:
self is FOD_BEST only when it is BestTargetNode's unique winner.

The exclusivity service count is computed fresh on every call, under
the forest's reader lock, by counting how many other group roots
currently have rg_state.Owner == the candidate node. It is not cached
on a membership struct, since a cache can go stale between evaluator
passes.
*/
package placement
