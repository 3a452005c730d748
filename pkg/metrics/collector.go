package metrics

import (
	"time"

	"github.com/hashicorp/raft"

	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// GroupStates is the slice of the lock manager the collector needs:
// reading each group's durable record.
type GroupStates interface {
	GetRGState(name string) (*types.RGState, error)
}

// RaftStatus is the slice of the Raft-backed manager the collector
// samples for cluster gauges.
type RaftStatus interface {
	IsLeader() bool
	LastIndex() uint64
	AppliedIndex() uint64
	GetClusterServers() ([]raft.Server, error)
}

// Collector periodically samples the forest and lock manager into the
// gauge metrics that can't be updated inline at the point of change
// (group counts by state, Raft peer/log position). status may be nil
// when no Raft substrate is wired.
type Collector struct {
	holder *forest.Holder
	states GroupStates
	status RaftStatus
	stopCh chan struct{}
}

// NewCollector constructs a Collector.
func NewCollector(holder *forest.Holder, states GroupStates, status RaftStatus) *Collector {
	return &Collector{
		holder: holder,
		states: states,
		status: status,
		stopCh: make(chan struct{}),
	}
}

// Start begins sampling on a 15s ticker, collecting once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts sampling.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectGroupMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectGroupMetrics() {
	f := c.holder.Current()
	counts := make(map[types.State]int)
	for _, root := range f.Roots {
		s, err := c.states.GetRGState(root.Resource.Name())
		if err != nil {
			continue
		}
		counts[s.State]++
	}
	for _, state := range []types.State{
		types.StateUninitialized, types.StateStopped, types.StateStarting,
		types.StateStarted, types.StateStopping, types.StateFailed,
		types.StateDisabled, types.StateRecover, types.StateError,
	} {
		GroupsTotal.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

func (c *Collector) collectRaftMetrics() {
	if c.status == nil {
		return
	}

	if c.status.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	RaftLogIndex.Set(float64(c.status.LastIndex()))
	RaftAppliedIndex.Set(float64(c.status.AppliedIndex()))

	if servers, err := c.status.GetClusterServers(); err == nil {
		RaftPeers.Set(float64(len(servers)))
	}
}
