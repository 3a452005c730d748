// Package membership implements the cluster membership service
// consumed by the evaluator: a point-in-time member snapshot plus a
// change feed of join/leave/fencing events.
package membership

import (
	"sync"

	"github.com/ocfcluster/rgmd/pkg/types"
)

// Change is one membership delta: nodes that became live (joined, or
// were unfenced) and nodes that stopped being live (left, or were
// fenced). The evaluator calls Evaluate once per Change.
type Change struct {
	Added   []types.Member
	Removed []types.Member
}

// Subscriber is a channel that receives membership Changes.
type Subscriber chan Change

// Source is the membership service interface.
type Source interface {
	// Members returns a snapshot of the current cluster view.
	Members() []types.Member

	// Subscribe returns a channel of future Changes and an unsubscribe
	// function.
	Subscribe() (Subscriber, func())
}

// RaftSource is the reference Source: an in-memory member table
// updated by NodeJoined/NodeLeft/NodeFenced, broadcasting each delta
// to subscribers over a buffered fan-out broker. In a deployed
// cluster these updates are driven by the Raft configuration watcher
// and the failure detector; both ultimately just call one of the
// three update methods below.
type RaftSource struct {
	mu      sync.RWMutex
	members map[uint64]types.Member

	subMu sync.RWMutex
	subs  map[Subscriber]bool
}

// NewRaftSource constructs an empty RaftSource.
func NewRaftSource() *RaftSource {
	return &RaftSource{
		members: make(map[uint64]types.Member),
		subs:    make(map[Subscriber]bool),
	}
}

// Members implements Source.
func (s *RaftSource) Members() []types.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Member, 0, len(s.members))
	for _, m := range s.members {
		out = append(out, m)
	}
	return out
}

// Subscribe implements Source.
func (s *RaftSource) Subscribe() (Subscriber, func()) {
	sub := make(Subscriber, 16)
	s.subMu.Lock()
	s.subs[sub] = true
	s.subMu.Unlock()

	unsubscribe := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		if s.subs[sub] {
			delete(s.subs, sub)
			close(sub)
		}
	}
	return sub, unsubscribe
}

// NodeJoined marks nodeID live under name and broadcasts the change.
func (s *RaftSource) NodeJoined(nodeID uint64, name string) {
	m := types.Member{NodeID: nodeID, Name: name, IsLive: true}
	s.mu.Lock()
	s.members[nodeID] = m
	s.mu.Unlock()
	s.broadcast(Change{Added: []types.Member{m}})
}

// NodeLeft marks nodeID no longer a cluster member (a clean
// departure, distinct from NodeFenced) and broadcasts the change.
func (s *RaftSource) NodeLeft(nodeID uint64) {
	s.mu.Lock()
	m, ok := s.members[nodeID]
	delete(s.members, nodeID)
	s.mu.Unlock()
	if !ok {
		return
	}
	m.IsLive = false
	s.broadcast(Change{Removed: []types.Member{m}})
}

// NodeFenced marks nodeID live-but-unreachable as not live, without
// removing it from the membership table: a fenced node may still be
// the recorded rg_state owner until its groups are relocated.
func (s *RaftSource) NodeFenced(nodeID uint64) {
	s.mu.Lock()
	m, ok := s.members[nodeID]
	if ok {
		m.IsLive = false
		s.members[nodeID] = m
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	s.broadcast(Change{Removed: []types.Member{m}})
}

func (s *RaftSource) broadcast(c Change) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for sub := range s.subs {
		select {
		case sub <- c:
		default:
		}
	}
}
