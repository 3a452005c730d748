// Package placement implements the placement engine.
package placement

import (
	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// FODBest is not a real score; BestTargetNode never returns it, and no
// score is compared against it. The evaluator decides whether the local
// node is the best candidate to start a group by calling IsFODBest.
const FODBest = -1

// liveMember looks up nodeID in membership, reporting whether it was
// found and whether it is currently live.
func liveMember(membership []types.Member, nodeID uint64) (types.Member, bool) {
	for _, m := range membership {
		if m.NodeID == nodeID {
			return m, true
		}
	}
	return types.Member{}, false
}

// runningCount counts group roots (other than excludeGroup) whose
// rg_state.Owner is nodeID. f is a stable snapshot already obtained
// under the forest's reader lock (pkg/forest.Holder.Current); this
// just walks it and asks mgr for each root's durable state, fresh on
// every call rather than cached on a membership struct.
func runningCount(nodeID uint64, f *forest.Forest, mgr lock.Manager, excludeGroup string) int {
	count := 0
	for _, root := range f.Roots {
		name := root.Resource.Name()
		if name == excludeGroup {
			continue
		}
		s, err := mgr.GetRGState(name)
		if err != nil {
			continue
		}
		if s.Owner == nodeID {
			count++
		}
	}
	return count
}

// Score rates nodeID as a placement for group: 0 means illegal,
// higher is better. group is the candidate group's tree root.
func Score(nodeID uint64, group *types.Node, membership []types.Member, f *forest.Forest, mgr lock.Manager) int {
	res := group.Resource

	var dom *types.Domain
	if name := res.DomainName(); name != "" {
		dom, _ = f.Domain(name)
	}

	if dom != nil && dom.Restricted {
		member, ok := liveMember(membership, nodeID)
		if !ok || !member.IsLive {
			return 0
		}
		if _, inDomain := dom.Priority(nodeID); !inDomain {
			return 0
		}
	}

	score := 1

	if dom != nil && dom.Ordered {
		if priority, ok := dom.Priority(nodeID); ok {
			score += dom.MaxPriority() - priority + 2
		}
	}

	if res.Exclusive() {
		if runningCount(nodeID, f, mgr, res.Name()) == 0 {
			score += 2
		} else {
			return 0
		}
	}

	return score
}

// BestTargetNode iterates live members of membership, skipping
// excludeOwner, and returns the highest-scoring candidate for group;
// ties are broken by the lowest node ID. found is false when no live
// member scores above 0.
func BestTargetNode(group *types.Node, membership []types.Member, excludeOwner uint64, f *forest.Forest, mgr lock.Manager) (nodeID uint64, score int, found bool) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.PlacementDuration)
		if !found {
			metrics.PlacementFailuresTotal.Inc()
		}
	}()

	for _, m := range membership {
		if !m.IsLive || m.NodeID == excludeOwner {
			continue
		}
		s := Score(m.NodeID, group, membership, f, mgr)
		if s == 0 {
			continue
		}
		if !found || s > score || (s == score && m.NodeID < nodeID) {
			nodeID, score, found = m.NodeID, s, true
		}
	}
	return
}

// IsFODBest reports whether selfID is the unique BestTargetNode
// candidate for group among all live members (no exclusion), the
// condition considerStart requires before enqueuing a START.
func IsFODBest(selfID uint64, group *types.Node, membership []types.Member, f *forest.Forest, mgr lock.Manager) bool {
	best, score, found := BestTargetNode(group, membership, 0, f, mgr)
	return found && best == selfID && score > 0
}
