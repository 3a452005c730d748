/*
Package adminapi is the HTTP admin surface of the resource group
manager.

Routes:

	POST /v1/groups/{name}/op   start/stop/disable/enable/relocate/status/migrate
	GET  /v1/status             stream one state record per group, then a success marker
	POST /v1/reconfigure        run a reconfigure cycle now
	POST /v1/config             write configuration paths and bump the version
	GET  /metrics               Prometheus scrape endpoint
	GET  /healthz /readyz /livez

Group operations are accepted, not executed inline: the handler
validates the group against the current forest, enqueues the request,
and returns 202 with the request ID. The request queue's per-group
serialization and collapsing apply to admin requests exactly as to the
evaluator's own. The one exception is enable, which is a bare state
transition out of FAILED or DISABLED performed under the group's lock;
once the record is STOPPED the next evaluation pass places the group
normally.

The status stream reports each group's durable record in its canonical
wire form. By default a fresh status check runs through the worker
pool for every group whose record is STARTED before the stream is
written; fast=true skips the checks and reports the records as they
are.
*/
package adminapi
