package evaluator

import (
	"context"
	"fmt"

	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/queue"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/rgstate"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// doRecover carries a RECOVER group through its configured policy. It
// runs inside the same queue slot as the failed status check that
// marked the group, so no other operation for the group can interleave
// with the stop/start sequence.
func (e *Evaluator) doRecover(ctx context.Context, req queue.Request) error {
	root, err := e.root(req)
	if err != nil {
		return err
	}

	handle, err := e.lockMgr.Lock(ctx, req.Group)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", req.Group, rgerr.ErrTransient)
	}
	state, err := e.lockMgr.GetRGState(req.Group)
	if err != nil {
		e.lockMgr.Unlock(handle)
		return err
	}
	if state.State != types.StateRecover {
		e.lockMgr.Unlock(handle)
		return nil
	}

	if state.RecoveryPolicy == types.RecoveryDisable {
		e.lockMgr.Unlock(handle)
		e.logger.Warn().Str("group", req.Group).Msg("recovery policy is disable, stopping and disabling group")
		if stopErr := e.exec.Stop(ctx, root); stopErr != nil {
			e.logger.Error().Err(stopErr).Str("group", req.Group).Msg("stop during disable recovery failed")
		}
		handle, err = e.lockMgr.Lock(ctx, req.Group)
		if err != nil {
			return fmt.Errorf("lock group %q: %w", req.Group, rgerr.ErrTransient)
		}
		defer e.lockMgr.Unlock(handle)
		state, err = e.lockMgr.GetRGState(req.Group)
		if err != nil {
			return err
		}
		_ = rgstate.Disable(state)
		return e.lockMgr.SetRGState(ctx, state)
	}

	outcome, err := rgstate.BeginRecoveryStop(state)
	if err != nil {
		e.lockMgr.Unlock(handle)
		return err
	}
	if err := e.lockMgr.SetRGState(ctx, state); err != nil {
		e.lockMgr.Unlock(handle)
		return fmt.Errorf("persist recovery stop for %q: %w", req.Group, rgerr.ErrTransient)
	}
	e.lockMgr.Unlock(handle)

	stopErr := e.exec.Stop(ctx, root)

	handle, err = e.lockMgr.Lock(ctx, req.Group)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", req.Group, rgerr.ErrTransient)
	}
	state, err = e.lockMgr.GetRGState(req.Group)
	if err != nil {
		e.lockMgr.Unlock(handle)
		return err
	}
	if stopErr != nil {
		_ = rgstate.Fail(state)
		_ = e.lockMgr.SetRGState(ctx, state)
		e.lockMgr.Unlock(handle)
		return stopErr
	}
	if err := rgstate.StopSucceeded(state); err != nil {
		e.lockMgr.Unlock(handle)
		return err
	}
	if err := e.lockMgr.SetRGState(ctx, state); err != nil {
		e.lockMgr.Unlock(handle)
		return fmt.Errorf("persist recovery outcome for %q: %w", req.Group, rgerr.ErrTransient)
	}
	e.lockMgr.Unlock(handle)

	if outcome == rgstate.RecoveryShouldRelocate {
		// Left STOPPED; the next evaluation pass places the group,
		// possibly on a peer.
		e.logger.Info().Str("group", req.Group).Msg("recovery relocating, group left stopped for placement")
		return nil
	}

	metrics.GroupRestartsTotal.WithLabelValues(req.Group).Inc()
	e.logger.Info().Str("group", req.Group).Msg("recovery restarting group in place")
	return e.doStart(ctx, queue.Request{Group: req.Group, Kind: queue.KindStart})
}
