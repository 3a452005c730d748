/*
Package membership implements the cluster membership service consumed
by the evaluator.

RaftSource keeps a live node table and fans out each join, leave or
fencing event to subscribers as a Change. The evaluator's run loop
(pkg/evaluator) subscribes once at startup and calls Evaluate for
every Change it receives, in addition to its periodic timer pass.

Fencing is modeled distinctly from a clean leave: NodeFenced marks a
node not-live without forgetting it, since its rg_state entries may
still name it as owner until the evaluator relocates them; NodeLeft
removes the node outright.
*/
package membership
