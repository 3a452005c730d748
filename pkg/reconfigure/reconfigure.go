package reconfigure

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ocfcluster/rgmd/pkg/config"
	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/log"
	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/queue"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// Runner drives one reconfigure cycle: build the candidate forest,
// compute the delta against the current one, conditionally stop what
// the delta removes or changes, swap, conditionally start what it adds
// or changes, and finally hand control back to the evaluator.
type Runner struct {
	store    config.Store
	holder   *forest.Holder
	queue    *queue.Queue
	lockMgr  lock.Manager
	evaluate func(ctx context.Context) error
	logger   zerolog.Logger
}

// New constructs a Runner. evaluate is called once after a successful
// swap whose delta was non-empty, so stopped groups that should now
// run here get picked up
// without waiting for the next membership event or timer tick.
func New(store config.Store, holder *forest.Holder, q *queue.Queue, lockMgr lock.Manager, evaluate func(ctx context.Context) error) *Runner {
	return &Runner{
		store:    store,
		holder:   holder,
		queue:    q,
		lockMgr:  lockMgr,
		evaluate: evaluate,
		logger:   log.WithComponent("reconfigure"),
	}
}

// Reconfigure runs one full cycle. Any load error discards the
// candidate forest and keeps the current one; a reconfigure against an
// identical configuration computes an empty delta and enqueues
// nothing.
func (r *Runner) Reconfigure(ctx context.Context) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconfigureDuration)

	next, err := forest.Build(r.store)
	if err != nil {
		metrics.ReconfigureRejectedTotal.Inc()
		r.logger.Error().Err(err).Msg("candidate forest rejected, keeping current configuration")
		return fmt.Errorf("build candidate forest: %w", err)
	}

	current := r.holder.Current()
	delta := computeDelta(current, next)

	r.logger.Info().
		Int64("from_version", current.Version).
		Int64("to_version", next.Version).
		Int("need_stop", delta.needStop).
		Int("need_start", delta.needStart).
		Int("removed_groups", len(delta.removedGroups)).
		Int("added_groups", len(delta.addedGroups)).
		Msg("computed configuration delta")

	if err := r.conditionalStopPass(ctx, current, delta); err != nil {
		return err
	}

	r.holder.Swap(next)

	for _, name := range delta.removedGroups {
		if err := r.dropGroupState(ctx, name); err != nil {
			r.logger.Error().Err(err).Str("group", name).Msg("failed to drop state for removed group")
		}
	}

	if err := r.conditionalStartPass(ctx, next, delta); err != nil {
		return err
	}

	if r.evaluate != nil && delta.dirty() {
		if err := r.evaluate(ctx); err != nil {
			r.logger.Error().Err(err).Msg("post-reconfigure evaluation failed")
		}
	}
	return nil
}

// delta is the outcome of comparing two forests resource by resource.
// The flag side effects live on the forests themselves: resources the
// new configuration drops or changes carry FlagNeedStop on the old
// forest, resources it adds or changes carry FlagNeedStart on the new
// one.
type delta struct {
	needStop      int
	needStart     int
	removedGroups []string
	addedGroups   map[string]bool
	touchedGroups map[string]bool
}

func (d *delta) dirty() bool {
	return d.needStop > 0 || d.needStart > 0 || len(d.removedGroups) > 0 || len(d.addedGroups) > 0
}

// computeDelta marks, for each resource name in either forest, what
// the transition from old to next requires: a changed resource is both
// stopped (old definition) and started (new definition); a resource
// only in old is stopped; a resource only in next is started.
// Identical resources are left untouched.
func computeDelta(old, next *forest.Forest) *delta {
	d := &delta{
		addedGroups:   make(map[string]bool),
		touchedGroups: make(map[string]bool),
	}

	for name, oldRes := range old.Resources {
		newRes, ok := next.Resources[name]
		if !ok {
			oldRes.Flags |= types.FlagNeedStop
			d.needStop++
			continue
		}
		if !oldRes.Equal(newRes) {
			oldRes.Flags |= types.FlagNeedStop
			newRes.Flags |= types.FlagNeedStart
			d.needStop++
			d.needStart++
		}
	}
	for name, newRes := range next.Resources {
		if _, ok := old.Resources[name]; !ok {
			newRes.Flags |= types.FlagNeedStart
			d.needStart++
		}
	}

	for _, root := range old.Roots {
		name := root.Resource.Name()
		if _, ok := next.Root(name); !ok {
			d.removedGroups = append(d.removedGroups, name)
		} else if treeFlagged(root, types.FlagNeedStop) {
			d.touchedGroups[name] = true
		}
	}
	for _, root := range next.Roots {
		name := root.Resource.Name()
		if _, ok := old.Root(name); !ok {
			d.addedGroups[name] = true
		} else if treeFlagged(root, types.FlagNeedStart) {
			d.touchedGroups[name] = true
		}
	}
	return d
}

func treeFlagged(n *types.Node, f types.Flag) bool {
	if n.Resource.HasFlag(f) {
		return true
	}
	for _, c := range n.Children {
		if treeFlagged(c, f) {
			return true
		}
	}
	return false
}

// conditionalStopPass runs against the old forest, before the swap:
// groups being removed are disabled outright (full stop walk plus a
// DISABLED record), groups with changed resources get a conditional
// stop that touches only the flagged subtrees. Each group is drained
// before the swap proceeds so no worker is still walking the old tree
// when it is replaced.
func (r *Runner) conditionalStopPass(ctx context.Context, old *forest.Forest, d *delta) error {
	var waiting []string

	for _, name := range d.removedGroups {
		if r.queue.Enqueue(queue.NewRequest(name, queue.KindDisable)) {
			waiting = append(waiting, name)
		}
	}
	for _, root := range old.Roots {
		name := root.Resource.Name()
		if !d.touchedGroups[name] || !treeFlagged(root, types.FlagNeedStop) {
			continue
		}
		if r.queue.Enqueue(queue.NewRequest(name, queue.KindCondStop)) {
			waiting = append(waiting, name)
		}
	}

	for _, name := range waiting {
		if err := r.queue.DrainGroup(ctx, name); err != nil {
			return fmt.Errorf("conditional stop pass: %w", err)
		}
	}
	return nil
}

// conditionalStartPass runs against the new forest, after the swap:
// newly-added roots are initialized so the next evaluation can place
// them, changed groups get a conditional start covering only the
// flagged subtrees.
func (r *Runner) conditionalStartPass(ctx context.Context, next *forest.Forest, d *delta) error {
	var waiting []string

	for _, root := range next.Roots {
		name := root.Resource.Name()
		switch {
		case d.addedGroups[name]:
			if r.queue.Enqueue(queue.NewRequest(name, queue.KindInit)) {
				waiting = append(waiting, name)
			}
		case d.touchedGroups[name] && treeFlagged(root, types.FlagNeedStart):
			if r.queue.Enqueue(queue.NewRequest(name, queue.KindCondStart)) {
				waiting = append(waiting, name)
			}
		}
	}

	for _, name := range waiting {
		if err := r.queue.DrainGroup(ctx, name); err != nil {
			return fmt.Errorf("conditional start pass: %w", err)
		}
	}
	return nil
}

// dropGroupState deletes the durable record of a group the new
// configuration no longer defines. The disable request enqueued by the
// stop pass has already drained, so the record is quiescent.
func (r *Runner) dropGroupState(ctx context.Context, name string) error {
	handle, err := r.lockMgr.Lock(ctx, name)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", name, err)
	}
	defer r.lockMgr.Unlock(handle)
	return r.lockMgr.DeleteRGState(ctx, name)
}
