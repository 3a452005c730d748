package evaluator

import (
	"context"
	"time"

	"github.com/ocfcluster/rgmd/pkg/membership"
	"github.com/ocfcluster/rgmd/pkg/queue"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// Loop ties the Evaluator to its inputs over time: membership changes
// arriving from the Source, a periodic local evaluation tick, and a
// slower tick that fans status checks out to the worker pool for
// groups this node owns. Only the leader acts; followers keep the loop
// running so they take over on the tick after an election.
type Loop struct {
	eval           *Evaluator
	evalInterval   time.Duration
	statusInterval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewLoop constructs a Loop around eval. Zero intervals default to 30s
// for evaluation and 60s for status checks.
func NewLoop(eval *Evaluator, evalInterval, statusInterval time.Duration) *Loop {
	if evalInterval <= 0 {
		evalInterval = 30 * time.Second
	}
	if statusInterval <= 0 {
		statusInterval = 60 * time.Second
	}
	return &Loop{
		eval:           eval,
		evalInterval:   evalInterval,
		statusInterval: statusInterval,
		stopCh:         make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// Start subscribes to membership changes and begins ticking in a
// background goroutine.
func (l *Loop) Start() {
	go l.run()
}

// Stop halts the loop and waits for it to exit. The request queue is
// not drained here; callers shut that down separately.
func (l *Loop) Stop() {
	close(l.stopCh)
	<-l.doneCh
}

func (l *Loop) run() {
	defer close(l.doneCh)

	sub, unsubscribe := l.eval.membership.Subscribe()
	defer unsubscribe()

	evalTicker := time.NewTicker(l.evalInterval)
	defer evalTicker.Stop()
	statusTicker := time.NewTicker(l.statusInterval)
	defer statusTicker.Stop()

	l.eval.logger.Info().
		Dur("eval_interval", l.evalInterval).
		Dur("status_interval", l.statusInterval).
		Msg("event loop started")

	for {
		select {
		case change, ok := <-sub:
			if !ok {
				return
			}
			l.onChange(change)
		case <-evalTicker.C:
			if l.leader() {
				if err := l.eval.Evaluate(context.Background(), true, l.eval.selfID, true); err != nil {
					l.eval.logger.Error().Err(err).Msg("periodic evaluation failed")
				}
			}
		case <-statusTicker.C:
			if l.leader() {
				l.enqueueStatusChecks()
			}
		case <-l.stopCh:
			l.eval.logger.Info().Msg("event loop stopped")
			return
		}
	}
}

func (l *Loop) leader() bool {
	return l.eval.lockMgr.IsLeader()
}

// onChange runs one evaluation per membership delta, in the order the
// events were observed; an earlier event's pass completes before the
// next begins.
func (l *Loop) onChange(change membership.Change) {
	if !l.leader() {
		return
	}
	for _, m := range change.Removed {
		if err := l.eval.Evaluate(context.Background(), false, m.NodeID, false); err != nil {
			l.eval.logger.Error().Err(err).Uint64("node", m.NodeID).Msg("evaluation after node down failed")
		}
	}
	for _, m := range change.Added {
		if err := l.eval.Evaluate(context.Background(), false, m.NodeID, true); err != nil {
			l.eval.logger.Error().Err(err).Uint64("node", m.NodeID).Msg("evaluation after node up failed")
		}
	}
}

// enqueueStatusChecks submits a status request for every started group
// this node owns. The checks run on the worker pool, never on the loop
// goroutine, so a slow agent cannot stall event handling; the queue's
// collapsing drops a status request when a stop is already pending for
// the same group.
func (l *Loop) enqueueStatusChecks() {
	f := l.eval.holder.Current()
	for _, root := range f.Roots {
		name := root.Resource.Name()
		state, err := l.eval.lockMgr.GetRGState(name)
		if err != nil {
			continue
		}
		if state.State == types.StateStarted && state.Owner == l.eval.selfID {
			l.eval.queue.Enqueue(queue.NewRequest(name, queue.KindStatus))
		}
	}
}
