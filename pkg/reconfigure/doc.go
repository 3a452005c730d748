/*
Package reconfigure atomically replaces the running configuration with
a new one while disturbing as few resources as possible.

A cycle builds a candidate forest from the configuration store, then
compares it resource by resource against the current forest. Resources
present in both with identical attribute multisets are untouched;
changed resources are flagged for stop (old definition) and start (new
definition); resources only in the old forest are flagged for stop and
resources only in the new one for start. The flagged work runs as
conditional stop and start walks through the regular request queue, so
per-group serialization holds across a reconfigure exactly as it does
for any other operation.

The swap itself is a single pointer replacement on the forest holder,
done after the conditional stop pass has drained and before the
conditional start pass begins. Groups the new configuration drops are
disabled and their durable state deleted; groups it adds are
initialized to stopped or disabled according to their autostart
attribute, leaving placement to the next evaluation pass.

A load error at any point discards the candidate and keeps the current
forest. Re-running a cycle against an unchanged configuration computes
an empty delta and enqueues nothing.

The Watcher polls the store's version counter and triggers a cycle on
the leader whenever it moves.
*/
package reconfigure
