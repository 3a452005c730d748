package evaluator

import (
	"context"
	"fmt"

	"github.com/ocfcluster/rgmd/pkg/queue"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/rgstate"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// Process is the queue.Handler that carries out one Request: it reads
// and writes rg_state under the group's distributed lock and, for the
// kinds that touch resources, calls the tree executor. It is the only
// place in this package that invokes agents; outside it, rg_state is
// written only by Evaluate's stale-owner and autostart-off updates.
func (e *Evaluator) Process(ctx context.Context, req queue.Request) error {
	switch req.Kind {
	case queue.KindStart:
		return e.doStart(ctx, req)
	case queue.KindStop:
		return e.doStop(ctx, req, rgstate.BeginStop)
	case queue.KindDisable:
		return e.doDisable(ctx, req)
	case queue.KindRelocate, queue.KindMigrate:
		return e.doStop(ctx, req, rgstate.BeginStop)
	case queue.KindStatus:
		return e.doStatus(ctx, req)
	case queue.KindCondStart:
		return e.doCondStart(ctx, req)
	case queue.KindCondStop:
		return e.doCondStop(ctx, req)
	case queue.KindInit:
		return e.doInit(ctx, req)
	default:
		return fmt.Errorf("unknown request kind %q: %w", req.Kind, rgerr.ErrConcurrency)
	}
}

func (e *Evaluator) root(req queue.Request) (*types.Node, error) {
	f := e.holder.Current()
	root, ok := f.Root(req.Group)
	if !ok {
		return nil, fmt.Errorf("group %q not found in current forest: %w", req.Group, rgerr.ErrConfig)
	}
	return root, nil
}

// doStart carries out STOPPED -> STARTING -> {STARTED, FAILED}.
func (e *Evaluator) doStart(ctx context.Context, req queue.Request) error {
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
	if err := rgstate.BeginStart(state, e.selfID); err != nil {
		e.lockMgr.Unlock(handle)
		return err
	}
	state.RecoveryPolicy = root.Resource.Recovery()
	state.MaxRestarts = root.Resource.MaxRestarts()
	if err := e.lockMgr.SetRGState(ctx, state); err != nil {
		e.lockMgr.Unlock(handle)
		return fmt.Errorf("persist STARTING for %q: %w", req.Group, rgerr.ErrTransient)
	}
	e.lockMgr.Unlock(handle)

	startErr := e.exec.Start(ctx, root)

	handle, err = e.lockMgr.Lock(ctx, req.Group)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", req.Group, rgerr.ErrTransient)
	}
	defer e.lockMgr.Unlock(handle)

	state, err = e.lockMgr.GetRGState(req.Group)
	if err != nil {
		return err
	}
	if startErr != nil {
		if ferr := rgstate.StartFailed(state); ferr != nil {
			return ferr
		}
	} else if serr := rgstate.StartSucceeded(state); serr != nil {
		return serr
	}
	if err := e.lockMgr.SetRGState(ctx, state); err != nil {
		return fmt.Errorf("persist start outcome for %q: %w", req.Group, rgerr.ErrTransient)
	}
	return startErr
}

// doStop carries out STARTED -> STOPPING -> STOPPED, via begin, a
// caller-supplied entry transition (BeginStop for plain STOP/RELOCATE/
// MIGRATE).
func (e *Evaluator) doStop(ctx context.Context, req queue.Request, begin func(*types.RGState) error) error {
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
	if err := begin(state); err != nil {
		e.lockMgr.Unlock(handle)
		return err
	}
	if err := e.lockMgr.SetRGState(ctx, state); err != nil {
		e.lockMgr.Unlock(handle)
		return fmt.Errorf("persist STOPPING for %q: %w", req.Group, rgerr.ErrTransient)
	}
	e.lockMgr.Unlock(handle)

	stopErr := e.exec.Stop(ctx, root)

	handle, err = e.lockMgr.Lock(ctx, req.Group)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", req.Group, rgerr.ErrTransient)
	}
	defer e.lockMgr.Unlock(handle)

	state, err = e.lockMgr.GetRGState(req.Group)
	if err != nil {
		return err
	}
	if stopErr != nil {
		if ferr := rgstate.Fail(state); ferr != nil {
			return ferr
		}
		_ = e.lockMgr.SetRGState(ctx, state)
		return stopErr
	}
	if serr := rgstate.StopSucceeded(state); serr != nil {
		return serr
	}
	return e.lockMgr.SetRGState(ctx, state)
}

// doDisable stops the group (if running) and forces it DISABLED,
// valid from any state per rgstate.Disable.
func (e *Evaluator) doDisable(ctx context.Context, req queue.Request) error {
	handle, err := e.lockMgr.Lock(ctx, req.Group)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", req.Group, rgerr.ErrTransient)
	}
	state, err := e.lockMgr.GetRGState(req.Group)
	if err != nil {
		e.lockMgr.Unlock(handle)
		return err
	}
	wasStarted := state.State == types.StateStarted
	e.lockMgr.Unlock(handle)

	if wasStarted {
		if err := e.doStop(ctx, queue.Request{Group: req.Group}, rgstate.BeginStop); err != nil {
			return err
		}
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

// doStatus runs a status walk; a failure on a STARTED group marks it
// RECOVER and carries out the recovery policy in the same queue slot,
// so nothing else can run for the group between the failed check and
// the recovery stop.
func (e *Evaluator) doStatus(ctx context.Context, req queue.Request) error {
	root, err := e.root(req)
	if err != nil {
		return err
	}
	statusErr := e.exec.Status(ctx, root)
	if statusErr == nil {
		return nil
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
	if state.State != types.StateStarted {
		e.lockMgr.Unlock(handle)
		return statusErr
	}
	if err := rgstate.MarkRecover(state); err != nil {
		e.lockMgr.Unlock(handle)
		return err
	}
	if err := e.lockMgr.SetRGState(ctx, state); err != nil {
		e.lockMgr.Unlock(handle)
		return fmt.Errorf("persist RECOVER for %q: %w", req.Group, rgerr.ErrTransient)
	}
	e.lockMgr.Unlock(handle)

	e.logger.Warn().Err(statusErr).Str("group", req.Group).Msg("status check failed, recovering")
	if err := e.doRecover(ctx, req); err != nil {
		return err
	}
	return statusErr
}

// doCondStart runs the conditional start pass of a reconfigure delta,
// clearing FlagNeedStart on every resource it touched whether or not
// the walk ultimately succeeded, since the delta that requested it has
// already been superseded by this attempt.
func (e *Evaluator) doCondStart(ctx context.Context, req queue.Request) error {
	root, err := e.root(req)
	if err != nil {
		return err
	}
	err = e.exec.ConditionalStart(ctx, root)
	clearFlag(root, types.FlagNeedStart)
	return err
}

// doCondStop is doCondStart's mirror for FlagNeedStop.
func (e *Evaluator) doCondStop(ctx context.Context, req queue.Request) error {
	root, err := e.root(req)
	if err != nil {
		return err
	}
	err = e.exec.ConditionalStop(ctx, root)
	clearFlag(root, types.FlagNeedStop)
	return err
}

func clearFlag(n *types.Node, f types.Flag) {
	n.Resource.Flags &^= f
	for _, c := range n.Children {
		clearFlag(c, f)
	}
}

// doInit applies UNINITIALIZED -> {STOPPED, DISABLED} for a root newly
// installed by reconfigure.
func (e *Evaluator) doInit(ctx context.Context, req queue.Request) error {
	root, err := e.root(req)
	if err != nil {
		return err
	}

	handle, err := e.lockMgr.Lock(ctx, req.Group)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", req.Group, rgerr.ErrTransient)
	}
	defer e.lockMgr.Unlock(handle)

	state, err := e.lockMgr.GetRGState(req.Group)
	if err != nil {
		return err
	}
	if state.State != types.StateUninitialized {
		return nil
	}
	if err := rgstate.Initialize(state, root.Resource.Autostart()); err != nil {
		return err
	}
	state.RecoveryPolicy = root.Resource.Recovery()
	state.MaxRestarts = root.Resource.MaxRestarts()

	// A brand-new group is started by a full start walk once placement
	// picks it up; the delta flags on its resources have no further use.
	clearFlag(root, types.FlagNeedStart)
	return e.lockMgr.SetRGState(ctx, state)
}
