/*
Package log provides rgmd's structured logging on top of zerolog.

A single global Logger, configured once via Init, backs package-level
helpers (Info, Debug, Warn, Error, Errorf, Fatal) and four scoped
child-logger constructors: WithComponent for a subsystem name,
WithNode for a node ID, and WithGroup/WithResource for the group and
resource a log line concerns, so every group transition can be logged
with its before/after state and reason.

Init chooses console or JSON output and a minimum level; zerolog's
global level filter means callers never need to guard a Debug() call
with an IsDebug() check.
*/
package log
