package placement

import (
	"testing"

	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/types"
)

func rootNode(name string, attrs ...types.Attr) *types.Node {
	all := append([]types.Attr{{Name: "name", Value: name}}, attrs...)
	return &types.Node{Resource: &types.Resource{RuleName: "service", Attrs: all}}
}

func forestWith(roots ...*types.Node) *forest.Forest {
	return &forest.Forest{
		Roots:   roots,
		Domains: map[string]*types.Domain{},
	}
}

func live(ids ...uint64) []types.Member {
	out := make([]types.Member, len(ids))
	for i, id := range ids {
		out[i] = types.Member{NodeID: id, IsLive: true}
	}
	return out
}

func TestScoreNoDomainBaseline(t *testing.T) {
	g := rootNode("svc_a")
	f := forestWith(g)
	mgr := lock.NewFakeManager()

	if s := Score(1, g, live(1, 2), f, mgr); s != 1 {
		t.Fatalf("expected base score 1, got %d", s)
	}
}

func TestScoreRestrictedDomainExcludesNonMembers(t *testing.T) {
	g := rootNode("svc_b", types.Attr{Name: types.AttrDomain, Value: "dom"})
	f := forestWith(g)
	f.Domains["dom"] = &types.Domain{
		Name:       "dom",
		Restricted: true,
		Members:    []types.DomainMember{{NodeID: 2, Priority: 1}},
	}
	mgr := lock.NewFakeManager()

	if s := Score(1, g, live(1, 2), f, mgr); s != 0 {
		t.Fatalf("expected node 1 illegal outside restricted domain, got %d", s)
	}
	if s := Score(2, g, live(1, 2), f, mgr); s == 0 {
		t.Fatalf("expected node 2 legal inside restricted domain, got 0")
	}
}

func TestScoreOrderedDomainBonus(t *testing.T) {
	g := rootNode("svc_c", types.Attr{Name: types.AttrDomain, Value: "dom"})
	f := forestWith(g)
	f.Domains["dom"] = &types.Domain{
		Name:    "dom",
		Ordered: true,
		Members: []types.DomainMember{
			{NodeID: 2, Priority: 1},
			{NodeID: 1, Priority: 2},
		},
	}
	mgr := lock.NewFakeManager()

	s1 := Score(1, g, live(1, 2), f, mgr)
	s2 := Score(2, g, live(1, 2), f, mgr)
	if s2 <= s1 {
		t.Fatalf("expected lower-priority-value node 2 to outrank node 1: s1=%d s2=%d", s1, s2)
	}
	// The ordered-domain bonus outranks a non-domain live node
	// entirely, not just other domain members.
	if s3 := Score(3, g, live(1, 2, 3), f, mgr); s2 <= s3 {
		t.Fatalf("expected in-domain node 2 (%d) to outrank non-domain node 3 (%d)", s2, s3)
	}
}

func TestScoreExclusiveConflict(t *testing.T) {
	d := rootNode("svc_d", types.Attr{Name: types.AttrExclusive, Value: "yes"})
	e := rootNode("svc_e")
	f := forestWith(d, e)
	mgr := lock.NewFakeManager()
	_ = mgr.SetRGState(nil, &types.RGState{Name: "svc_e", State: types.StateStarted, Owner: 1})

	if s := Score(1, d, live(1, 2), f, mgr); s != 0 {
		t.Fatalf("expected exclusive group illegal on node already running a service, got %d", s)
	}
	if s := Score(2, d, live(1, 2), f, mgr); s == 0 {
		t.Fatalf("expected exclusive group legal on idle node, got 0")
	}
}

func TestBestTargetNodeTieBreaksByLowestID(t *testing.T) {
	g := rootNode("svc_a")
	f := forestWith(g)
	mgr := lock.NewFakeManager()

	best, _, found := BestTargetNode(g, live(2, 1, 3), 0, f, mgr)
	if !found || best != 1 {
		t.Fatalf("expected lowest node ID 1 to win tie, got %d (found=%v)", best, found)
	}
}

func TestBestTargetNodeExcludesOwner(t *testing.T) {
	g := rootNode("svc_a")
	f := forestWith(g)
	mgr := lock.NewFakeManager()

	best, _, found := BestTargetNode(g, live(1, 2), 1, f, mgr)
	if !found || best != 2 {
		t.Fatalf("expected owner 1 excluded, winner 2, got %d (found=%v)", best, found)
	}
}

func TestIsFODBest(t *testing.T) {
	g := rootNode("svc_a")
	f := forestWith(g)
	mgr := lock.NewFakeManager()

	if !IsFODBest(1, g, live(1, 2), f, mgr) {
		t.Fatal("expected node 1 (lowest ID) to be FOD_BEST")
	}
	if IsFODBest(2, g, live(1, 2), f, mgr) {
		t.Fatal("expected node 2 not to be FOD_BEST")
	}
}

func TestRestrictedDomainNeverPlacedOutside(t *testing.T) {
	// A restricted-domain group is never scored legal outside its
	// membership, regardless of liveness of the requesting node.
	g := rootNode("svc_f", types.Attr{Name: types.AttrDomain, Value: "dom"})
	f := forestWith(g)
	f.Domains["dom"] = &types.Domain{
		Name:       "dom",
		Restricted: true,
		Members:    []types.DomainMember{{NodeID: 1, Priority: 1}},
	}
	mgr := lock.NewFakeManager()

	for _, nodeID := range []uint64{2, 3, 4} {
		if s := Score(nodeID, g, live(1, 2, 3, 4), f, mgr); s != 0 {
			t.Fatalf("node %d outside restricted domain scored %d, want 0", nodeID, s)
		}
	}
}
