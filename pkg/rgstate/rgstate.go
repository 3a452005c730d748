// Package rgstate implements the per-group state machine. It is pure
// transition logic: callers read the current types.RGState
// under the group's distributed lock (pkg/lock), apply one of these
// events, and write the result back before releasing the lock.
package rgstate

import (
	"fmt"
	"time"

	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// invalid builds a state-transition error naming the offending state
// and event.
func invalid(s *types.RGState, event string) error {
	return fmt.Errorf("group %q: event %q not valid from state %s: %w", s.Name, event, s.State, rgerr.ErrTransition)
}

func transition(s *types.RGState, to types.State, owner uint64) {
	metrics.GroupTransitionsTotal.WithLabelValues(string(s.State), string(to)).Inc()
	s.State = to
	s.Owner = owner
	s.TransitionTime = time.Now()
	s.Transitioned = true
}

// Initialize applies the UNINITIALIZED -> {STOPPED, DISABLED}
// transition taken the first time a newly-loaded group is evaluated.
func Initialize(s *types.RGState, autostart bool) error {
	if s.State != types.StateUninitialized {
		return invalid(s, "initialize")
	}
	if autostart {
		transition(s, types.StateStopped, 0)
	} else {
		transition(s, types.StateDisabled, 0)
	}
	return nil
}

// Disable applies the admin-disable transition, valid from any state.
func Disable(s *types.RGState) error {
	transition(s, types.StateDisabled, 0)
	return nil
}

// Enable applies the admin-enable transition, valid from FAILED or
// DISABLED.
func Enable(s *types.RGState) error {
	if s.State != types.StateFailed && s.State != types.StateDisabled {
		return invalid(s, "enable")
	}
	transition(s, types.StateStopped, 0)
	s.RestartCount = 0
	return nil
}

// BeginStart applies STOPPED -> STARTING once placement has chosen
// owner for the group.
func BeginStart(s *types.RGState, owner uint64) error {
	if s.State != types.StateStopped {
		return invalid(s, "begin_start")
	}
	transition(s, types.StateStarting, owner)
	return nil
}

// StartSucceeded applies STARTING -> STARTED.
func StartSucceeded(s *types.RGState) error {
	if s.State != types.StateStarting {
		return invalid(s, "start_succeeded")
	}
	transition(s, types.StateStarted, s.Owner)
	return nil
}

// StartFailed applies STARTING -> FAILED.
func StartFailed(s *types.RGState) error {
	if s.State != types.StateStarting {
		return invalid(s, "start_failed")
	}
	transition(s, types.StateFailed, 0)
	return nil
}

// BeginStop applies STARTED -> STOPPING, used both for a plain stop
// and as the first half of a relocate.
func BeginStop(s *types.RGState) error {
	if s.State != types.StateStarted {
		return invalid(s, "begin_stop")
	}
	s.LastOwner = s.Owner
	transition(s, types.StateStopping, s.Owner)
	return nil
}

// StopSucceeded applies STOPPING -> STOPPED.
func StopSucceeded(s *types.RGState) error {
	if s.State != types.StateStopping {
		return invalid(s, "stop_succeeded")
	}
	transition(s, types.StateStopped, 0)
	return nil
}

// OwnerLost applies STARTED -> STOPPED when the recorded owner is
// observed to have left the cluster: the normal STARTED -> STOPPING ->
// STOPPED path requires the owner itself to run the stop walk, which
// a dead node cannot do, so this clears the stale owner directly and
// makes the group eligible for placement again.
func OwnerLost(s *types.RGState) error {
	if s.State != types.StateStarted {
		return invalid(s, "owner_lost")
	}
	s.LastOwner = s.Owner
	transition(s, types.StateStopped, 0)
	return nil
}

// MarkRecover applies STARTED -> RECOVER on a failed status check.
func MarkRecover(s *types.RGState) error {
	if s.State != types.StateStarted {
		return invalid(s, "mark_recover")
	}
	transition(s, types.StateRecover, s.Owner)
	return nil
}

// RecoveryOutcome reports what a RECOVER group should do next, per
// its RecoveryPolicy and restart budget.
type RecoveryOutcome int

const (
	// RecoveryShouldRestart means stop then start on the same node.
	RecoveryShouldRestart RecoveryOutcome = iota
	// RecoveryShouldRelocate means stop then let placement pick again,
	// excluding the current owner.
	RecoveryShouldRelocate
)

// BeginRecoveryStop applies RECOVER -> STOPPING, incrementing the
// restart counter and reporting whether the group should restart in
// place or relocate, per policy and MaxRestarts.
func BeginRecoveryStop(s *types.RGState) (RecoveryOutcome, error) {
	if s.State != types.StateRecover {
		return 0, invalid(s, "begin_recovery_stop")
	}
	s.RestartCount++
	s.LastOwner = s.Owner
	transition(s, types.StateStopping, s.Owner)

	if s.RecoveryPolicy == types.RecoveryRelocate || s.RestartCount > s.MaxRestarts {
		return RecoveryShouldRelocate, nil
	}
	return RecoveryShouldRestart, nil
}

// Fail forces a group directly to FAILED from any live state, used
// when an operation hits a state-transition error.
func Fail(s *types.RGState) error {
	transition(s, types.StateFailed, 0)
	return nil
}
