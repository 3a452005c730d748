/*
Package config implements the cluster configuration store consumed by
the rule, resource and domain loaders.

It is a flat path/value space plus a monotonic version counter, not a
relational schema: the three subtrees ("/cluster/rm/rules",
"/cluster/rm/resources", "/cluster/rm/failoverdomains") are each a
single JSON-encoded value, decoded by their respective loader package.
A version bump is the only signal a reconfigure needs.

BoltStore is the reference implementation, one bbolt file per node
holding two buckets: paths (the three subtrees) and meta (the version
counter). Reads run under db.View, writes under db.Update; bbolt
serializes writers so a Writer.Bump always observes every preceding
Put.

# See also

  - pkg/ruleset, pkg/resources, pkg/domains: the three loaders that
    consume Store.Get
  - pkg/reconfigure: watches Store.GetVersion and triggers a forest
    rebuild on change
*/
package config
