package rgerr

import "errors"

// Kind-level sentinels. Wrap with fmt.Errorf("...: %w", ErrX) and test
// with errors.Is.
var (
	// ErrConfig marks a fatal configuration-load error: the new forest
	// is rejected and the previous one is kept.
	ErrConfig = errors.New("configuration error")

	// ErrTransient marks a lock or network error expected to clear on
	// retry (the next evaluator pass).
	ErrTransient = errors.New("transient lock/network error")

	// ErrAgent marks a resource agent invocation failure not already
	// normalized to success by the OCF stop-benign rule.
	ErrAgent = errors.New("agent failure")

	// ErrTransition marks a failure that forces a group to FAILED.
	ErrTransition = errors.New("state-transition error")

	// ErrConcurrency marks a violated internal invariant (e.g. two
	// in-flight operations observed for the same group). Callers
	// should treat this as a bug, not a retryable condition.
	ErrConcurrency = errors.New("concurrency violation")
)
