/*
Package queue implements the request queue and worker pool: one
logical FIFO per group name, draining into a bounded pool of workers
so that at most one operation for a given group ever runs at a
time. Enqueue collapses redundant work before it ever reaches a
worker — a pending STATUS is dropped once a STOP or DISABLE for the
same group is already queued, and an identical request already pending
is not queued twice.

Shutdown is two-phase: Shutdown stops new enqueues immediately and then
waits, up to the caller's context deadline, for every group's FIFO to
drain and its worker goroutine to exit.
*/
package queue
