// Package agent implements resource agent invocation: the boundary
// between the engine and the OCF-style scripts that actually start,
// stop and monitor a resource.
package agent

import (
	"context"

	"github.com/ocfcluster/rgmd/pkg/types"
)

// Code is an OCF result code. Only the four values the engine acts on
// are named; any other code returned by a real OCF agent is reported
// as-is and treated like GenericError by callers.
type Code int

const (
	Success        Code = 0
	GenericError   Code = 1
	NotInstalled   Code = 5
	NotConfigured  Code = 6
)

// Action is one OCF action verb.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionStatus  Action = "status"
	ActionMonitor Action = "monitor"
)

// Runner invokes a resource's agent for one action.
type Runner interface {
	Invoke(ctx context.Context, ruleType string, action Action, attrs []types.Attr) (Code, error)
}

// NormalizeStop applies the OCF stop-benign rule: for a STOP action,
// NotInstalled and NotConfigured both mean the resource
// is already absent, which is success from the caller's point of
// view.
func NormalizeStop(action Action, code Code) Code {
	if action != ActionStop {
		return code
	}
	if code == NotInstalled || code == NotConfigured {
		return Success
	}
	return code
}
