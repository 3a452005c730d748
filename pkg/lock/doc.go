/*
Package lock implements the distributed lock and rg_state store on top
of Raft consensus.

Only the Raft leader evaluates groups (followers stay passive), so the
per-group lock — always taken after the forest read lock, never the
reverse — reduces to an in-process mutex per group name on the leader.
rg_state itself is still replicated through Raft so a newly-elected
leader, or an admin status query against any node, sees the same
durable record; it is the only state the engine persists outside the
configuration store.

RaftManager owns one hashicorp/raft instance per node, backed by
raft-boltdb for the log and stable stores and a local FSM (rgStateFSM)
holding the live rg_state map. Apply is serialized through Raft:
SetRGState/DeleteRGState block until the command is committed and
applied, so a caller's read-mutate-write-back cycle under a group's
lock is linearizable with any other node's view once it completes.

# See also

  - pkg/rgstate: the pure transition logic that produces the
    types.RGState this package persists
  - pkg/evaluator, pkg/adminapi, pkg/reconfigure: the callers that
    acquire a group's lock before reading or writing its rg_state
    (pkg/executor takes no locks; its callers hold them)
*/
package lock
