package executor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ocfcluster/rgmd/pkg/agent"
	"github.com/ocfcluster/rgmd/pkg/log"
	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// Executor walks a group's dependency tree invoking a Runner on each
// resource. It holds no group state of its own; callers are
// responsible for the distributed lock and rg_state transitions
// around a call.
type Executor struct {
	runner agent.Runner
	logger zerolog.Logger
}

// New constructs an Executor over runner.
func New(runner agent.Runner) *Executor {
	return &Executor{runner: runner, logger: log.WithComponent("executor")}
}

// invoke calls the agent for one resource/action, normalizes the OCF
// stop-benign rule, records metrics, and wraps any hard failure in
// rgerr.ErrAgent.
func (e *Executor) invoke(ctx context.Context, n *types.Node, action agent.Action) error {
	res := n.Resource
	timer := metrics.NewTimer()
	code, err := e.runner.Invoke(ctx, res.RuleName, action, res.Attrs)
	timer.ObserveDurationVec(metrics.AgentInvokeDuration, res.RuleName, string(action))
	if err != nil {
		metrics.AgentResultsTotal.WithLabelValues(res.RuleName, string(action), "error").Inc()
		return fmt.Errorf("invoke %s %s on %q: %w", action, res.RuleName, res.Name(), err)
	}

	code = agent.NormalizeStop(action, code)
	metrics.AgentResultsTotal.WithLabelValues(res.RuleName, string(action), fmt.Sprintf("%d", code)).Inc()

	if code != agent.Success {
		e.logger.Warn().
			Str("resource", res.Name()).
			Str("rule", res.RuleName).
			Str("action", string(action)).
			Int("ocf_code", int(code)).
			Msg("agent returned non-success")
		return fmt.Errorf("%s %s on %q returned OCF code %d: %w", action, res.RuleName, res.Name(), code, rgerr.ErrAgent)
	}
	return nil
}

// Start walks group pre-order, starting each resource before its
// children in rule-declared order. On failure it compensates by
// stopping the siblings that already started (in reverse order) and
// the failed resource's own subtree root, then propagates the error
// to the caller, which does the same at its own level — so a deep
// failure unwinds every enclosing level it already entered.
func (e *Executor) Start(ctx context.Context, group *types.Node) error {
	return e.startSubtree(ctx, group)
}

func (e *Executor) startSubtree(ctx context.Context, n *types.Node) error {
	if err := e.invoke(ctx, n, agent.ActionStart); err != nil {
		return err
	}

	for i, child := range n.Children {
		if err := e.startSubtree(ctx, child); err != nil {
			// Compensate: stop the children of n that already started,
			// in reverse order, then stop n itself.
			for j := i - 1; j >= 0; j-- {
				if stopErr := e.stopSubtree(ctx, n.Children[j]); stopErr != nil {
					e.logger.Error().Err(stopErr).Str("resource", n.Children[j].Resource.Name()).
						Msg("compensating stop failed")
				}
			}
			if stopErr := e.invoke(ctx, n, agent.ActionStop); stopErr != nil {
				e.logger.Error().Err(stopErr).Str("resource", n.Resource.Name()).
					Msg("compensating stop of subtree root failed")
			}
			return err
		}
	}
	return nil
}

// Stop walks group post-order: every child is stopped, in reverse
// rule order, before the parent itself is stopped. A child's failure
// does not prevent the remaining siblings from being attempted, but
// the parent is only stopped once none of its children returned a
// hard error, and the first child error is what Stop ultimately
// returns.
func (e *Executor) Stop(ctx context.Context, group *types.Node) error {
	return e.stopSubtree(ctx, group)
}

func (e *Executor) stopSubtree(ctx context.Context, n *types.Node) error {
	var first error
	for i := len(n.Children) - 1; i >= 0; i-- {
		if err := e.stopSubtree(ctx, n.Children[i]); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return first
	}
	return e.invoke(ctx, n, agent.ActionStop)
}

// Status walks group in start order (pre-order), invoking the OCF
// status action on each resource and stopping at the first failure.
func (e *Executor) Status(ctx context.Context, group *types.Node) error {
	if err := e.invoke(ctx, group, agent.ActionStatus); err != nil {
		return err
	}
	for _, child := range group.Children {
		if err := e.Status(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// ConditionalStart walks the whole tree in start order but only
// invokes start on resources flagged FlagNeedStart by a reconfigure
// delta. The delta flags resources individually, so a changed child
// under an unchanged parent is normal; every subtree is walked and
// only the invoke is gated on the node's own flag.
func (e *Executor) ConditionalStart(ctx context.Context, group *types.Node) error {
	return e.condStartSubtree(ctx, group)
}

func (e *Executor) condStartSubtree(ctx context.Context, n *types.Node) error {
	if n.Resource.HasFlag(types.FlagNeedStart) {
		if err := e.invoke(ctx, n, agent.ActionStart); err != nil {
			return err
		}
	}
	for _, child := range n.Children {
		if err := e.condStartSubtree(ctx, child); err != nil {
			return err
		}
	}
	return nil
}

// ConditionalStop walks the whole tree post-order but only invokes
// stop on resources flagged FlagNeedStop, the mirror of
// ConditionalStart for resources a reconfigure delta is removing.
func (e *Executor) ConditionalStop(ctx context.Context, group *types.Node) error {
	return e.condStopSubtree(ctx, group)
}

func (e *Executor) condStopSubtree(ctx context.Context, n *types.Node) error {
	var first error
	for i := len(n.Children) - 1; i >= 0; i-- {
		if err := e.condStopSubtree(ctx, n.Children[i]); err != nil && first == nil {
			first = err
		}
	}
	if first != nil {
		return first
	}
	if !n.Resource.HasFlag(types.FlagNeedStop) {
		return nil
	}
	return e.invoke(ctx, n, agent.ActionStop)
}
