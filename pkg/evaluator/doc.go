/*
Package evaluator implements the event loop: on every membership event
and periodic timer, Evaluate walks every root under the forest's
reader lock and decides, per group, whether to enqueue a START, a
RELOCATE, or nothing.

Evaluate itself never calls an agent. It writes rg_state directly, under
the group's lock, in two cases only: a STARTED record whose owner has
left the membership is cleared back to STOPPED, and a never-transitioned
STOPPED group with autostart off is flipped to DISABLED. Everything
else it enqueues is carried out by Process, which the
caller wires in as the queue.Handler for a pkg/queue.Queue: Process is
where rg_state actually transitions (under the group's distributed
lock) and the tree executor is invoked.
*/
package evaluator
