/*
Package agent implements resource agent invocation, the engine's only
point of contact with the scripts that actually manage a resource.

Runner.Invoke(ctx, ruleType, action, attrs) execs the OCF-style agent
script for ruleType, passing its resource attributes as
OCF_RESKEY_<NAME> environment variables, and returns the resulting OCF
code. Only four codes are meaningful to the engine: Success,
GenericError, NotInstalled and NotConfigured; NormalizeStop applies the
stop-benign rule that treats the latter two as success when the action
was STOP, since a not-installed or not-configured resource is already
absent.

ExecRunner is the reference implementation; FakeRunner is an
in-memory double for tests that records every call and lets a test
program per-rule-type/action responses.
*/
package agent
