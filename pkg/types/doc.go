/*
Package types defines the core data structures shared across rgmd.

This package contains the resource model types that every other
package builds on: rules (resource-type schemas), resources (attributed
instances), tree nodes (dependency trees rooted at a group), failover
domains, and the durable per-group rg_state record.

# Core Types

Resource Model:
  - Rule: schema for a resource type (required/optional attrs, ordered
    child types, root flag)
  - Resource: a typed, attributed instance of a Rule
  - Node: one vertex of a group's dependency tree
  - Domain: a named, optionally ordered/restricted set of cluster
    members

Group Lifecycle:
  - RGState: the durable per-group record (state, owner, timestamps,
    restart count, recovery policy)
  - State: one of the nine lifecycle states from uninitialized through
    disabled
  - RecoveryPolicy: restart, relocate, or disable

Cluster View:
  - Member: one cluster participant as reported by the membership
    service

# Identity and equality

Two Resources are identical iff they share a Rule name and an
attribute multiset (Resource.Equal) — this is what the reconfigure
delta (pkg/reconfigure) uses to decide whether a resource changed.

# Thread safety

Types in this package carry no synchronization themselves; all
mutation is guarded by the forest's reader/writer lock (pkg/forest) or
a group's distributed lock (pkg/lock), never both at once in reverse
order.
*/
package types
