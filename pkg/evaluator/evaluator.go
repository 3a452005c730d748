package evaluator

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ocfcluster/rgmd/pkg/executor"
	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/log"
	"github.com/ocfcluster/rgmd/pkg/membership"
	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/placement"
	"github.com/ocfcluster/rgmd/pkg/queue"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/rgstate"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// Evaluator holds everything the event loop needs to decide and carry
// out per-group actions: the forest handle, the membership and lock
// services, the tree executor, and the request queue the decisions
// are enqueued onto.
type Evaluator struct {
	holder     *forest.Holder
	membership membership.Source
	lockMgr    lock.Manager
	exec       *executor.Executor
	selfID     uint64
	queue      *queue.Queue
	suspended  atomic.Bool
	logger     zerolog.Logger
}

// New constructs an Evaluator for selfID, wiring a Queue with workers
// worker slots whose handler is the Evaluator's own Process method.
func New(holder *forest.Holder, src membership.Source, lockMgr lock.Manager, exec *executor.Executor, selfID uint64, workers int) *Evaluator {
	e := &Evaluator{
		holder:     holder,
		membership: src,
		lockMgr:    lockMgr,
		exec:       exec,
		selfID:     selfID,
		logger:     log.WithComponent("evaluator"),
	}
	e.queue = queue.New(workers, e.Process)
	return e
}

// Queue returns the request queue Evaluate enqueues onto and Process
// drains; reconfigure shares it for CONDSTART/CONDSTOP/INIT requests.
func (e *Evaluator) Queue() *queue.Queue { return e.queue }

// Suspend and Resume implement the admin hold: while suspended,
// Evaluate is a no-op so the next periodic tick is the retry.
func (e *Evaluator) Suspend() { e.suspended.Store(true) }
func (e *Evaluator) Resume()  { e.suspended.Store(false) }

// Evaluate decides, for every group, whether the membership change
// described by (nodeID, nodeUp) — or, for a local periodic tick,
// (selfID, true) — should start or relocate it.
func (e *Evaluator) Evaluate(ctx context.Context, local bool, nodeID uint64, nodeUp bool) error {
	if e.suspended.Load() {
		e.logger.Debug().Msg("evaluation suspended, skipping pass")
		return nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.EvaluationDuration)

	f := e.holder.Current()
	members := e.membership.Members()

	for _, root := range f.Roots {
		name := root.Resource.Name()
		if err := e.evaluateGroup(ctx, f, root, members, local, nodeID, nodeUp); err != nil {
			e.logger.Error().Err(err).Str("group", name).Msg("evaluate failed for group")
		}
	}

	metrics.EvaluationsTotal.Inc()
	return nil
}

func (e *Evaluator) evaluateGroup(ctx context.Context, f *forest.Forest, root *types.Node, members []types.Member, local bool, nodeID uint64, nodeUp bool) error {
	name := root.Resource.Name()

	handle, err := e.lockMgr.Lock(ctx, name)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", name, rgerr.ErrTransient)
	}
	state, err := e.lockMgr.GetRGState(name)
	e.lockMgr.Unlock(handle)
	if err != nil {
		return fmt.Errorf("read rg_state for %q: %w", name, err)
	}

	switch state.State {
	case types.StateUninitialized, types.StateDisabled, types.StateFailed, types.StateRecover:
		return nil
	}

	if state.State == types.StateStarted && state.Owner == nodeID && !nodeUp {
		// The owner just left the cluster; reclaim the stale STARTED
		// record so the group becomes eligible for placement again.
		if err := e.clearStaleOwner(ctx, name); err != nil {
			return err
		}
		return e.considerStart(ctx, f, root, members)
	}

	if state.State == types.StateStarted && state.Owner == e.selfID && nodeUp && nodeID != e.selfID {
		return e.considerRelocate(ctx, f, root, members, nodeID)
	}

	if state.State == types.StateStopped {
		return e.considerStart(ctx, f, root, members)
	}

	return nil
}

func (e *Evaluator) clearStaleOwner(ctx context.Context, name string) error {
	handle, err := e.lockMgr.Lock(ctx, name)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", name, rgerr.ErrTransient)
	}
	defer e.lockMgr.Unlock(handle)

	state, err := e.lockMgr.GetRGState(name)
	if err != nil {
		return err
	}
	if err := rgstate.OwnerLost(state); err != nil {
		return err
	}
	return e.lockMgr.SetRGState(ctx, state)
}

// considerStart enqueues a START only when self is the unique best
// candidate among live members. A STOPPED autostart=no root whose
// record has never transitioned is flipped to DISABLED instead — but
// only that first time: once an admin enables the group (or anything
// else transitions it), the record is marked transitioned and the
// group is placed like any other.
func (e *Evaluator) considerStart(ctx context.Context, f *forest.Forest, root *types.Node, members []types.Member) error {
	name := root.Resource.Name()

	if !root.Resource.Autostart() {
		handle, err := e.lockMgr.Lock(ctx, name)
		if err != nil {
			return fmt.Errorf("lock group %q: %w", name, rgerr.ErrTransient)
		}
		state, err := e.lockMgr.GetRGState(name)
		if err != nil {
			e.lockMgr.Unlock(handle)
			return err
		}
		if state.State == types.StateStopped && !state.Transitioned {
			if derr := rgstate.Disable(state); derr == nil {
				_ = e.lockMgr.SetRGState(ctx, state)
			}
			e.lockMgr.Unlock(handle)
			return nil
		}
		e.lockMgr.Unlock(handle)
	}

	if !placement.IsFODBest(e.selfID, root, members, f, e.lockMgr) {
		return nil
	}

	e.queue.Enqueue(queue.NewRequest(name, queue.KindStart))
	return nil
}

// considerRelocate enqueues a RELOCATE to target only if target scores
// strictly better than self; ties or worse never relocate.
func (e *Evaluator) considerRelocate(ctx context.Context, f *forest.Forest, root *types.Node, members []types.Member, target uint64) error {
	selfScore := placement.Score(e.selfID, root, members, f, e.lockMgr)
	targetScore := placement.Score(target, root, members, f, e.lockMgr)
	if targetScore <= selfScore {
		return nil
	}
	req := queue.NewRequest(root.Resource.Name(), queue.KindRelocate)
	req.TargetNode = target
	e.queue.Enqueue(req)
	return nil
}
