/*
Package executor implements the tree executor: the code that walks
one group's dependency tree (pkg/types.Node) invoking
pkg/agent.Runner on each resource in the order its rule declares.

Start walks pre-order (parent before children, children in
rule-declared order); a failure anywhere compensates by stopping the
siblings that already started and the failed subtree's own root,
cascading the same compensation up through every enclosing level
before the failure is reported. Stop walks post-order in the reverse
order, so children are always fully stopped before their parent; OCF
stop-benign codes are normalized to success by pkg/agent before a
hard error is ever raised. Status walks in start order and reports the
first resource that fails. ConditionalStart and ConditionalStop walk
the whole tree but only invoke an action on resources flagged
NEEDSTART/NEEDSTOP by the reconfigure delta (pkg/reconfigure);
unflagged resources are passed over untouched.
*/
package executor
