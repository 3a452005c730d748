/*
Package rgerr defines the five error kinds used to classify failures
across rgmd, per the error handling design: configuration errors,
transient lock/network errors, agent failures, state-transition
errors, and concurrency violations.

Callers should wrap an underlying error with one of the sentinels
using fmt.Errorf's %w verb and test for it with errors.Is.
*/
package rgerr
