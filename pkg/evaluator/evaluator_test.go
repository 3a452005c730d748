package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/ocfcluster/rgmd/pkg/agent"
	"github.com/ocfcluster/rgmd/pkg/executor"
	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/membership"
	"github.com/ocfcluster/rgmd/pkg/types"
)

type fakeSource struct{ members []types.Member }

func (f *fakeSource) Members() []types.Member { return f.members }
func (f *fakeSource) Subscribe() (membership.Subscriber, func()) {
	ch := make(membership.Subscriber)
	return ch, func() {}
}

func rootGroup(name string, attrs ...types.Attr) *types.Node {
	all := append([]types.Attr{{Name: "name", Value: name}}, attrs...)
	return &types.Node{Resource: &types.Resource{RuleName: "service", Attrs: all}}
}

func waitFor(t *testing.T, mgr *lock.FakeManager, name string, want types.State) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		s, err := mgr.GetRGState(name)
		if err == nil && s.State == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	s, _ := mgr.GetRGState(name)
	t.Fatalf("group %q: want state %s, got %s", name, want, s.State)
}

func TestEvaluateAutostartNew(t *testing.T) {
	g := rootGroup("svc_a")
	f := &forest.Forest{Roots: []*types.Node{g}, Domains: map[string]*types.Domain{}}
	holder := forest.NewHolder(f)
	mgr := lock.NewFakeManager()
	mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_a", State: types.StateStopped})

	src := &fakeSource{members: []types.Member{{NodeID: 1, IsLive: true}, {NodeID: 2, IsLive: true}}}
	exec := executor.New(agent.NewFakeRunner())
	e := New(holder, src, mgr, exec, 1, 2)

	if err := e.Evaluate(context.Background(), true, 1, true); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	waitFor(t, mgr, "svc_a", types.StateStarted)

	s, _ := mgr.GetRGState("svc_a")
	if s.Owner != 1 {
		t.Fatalf("expected owner 1, got %d", s.Owner)
	}
}

func TestEvaluateRelocateOnJoin(t *testing.T) {
	g := rootGroup("svc_b", types.Attr{Name: types.AttrDomain, Value: "dom"})
	f := &forest.Forest{
		Roots: []*types.Node{g},
		Domains: map[string]*types.Domain{
			"dom": {
				Name:    "dom",
				Ordered: true,
				Members: []types.DomainMember{
					{NodeID: 2, Priority: 1},
					{NodeID: 1, Priority: 2},
				},
			},
		},
	}
	holder := forest.NewHolder(f)
	mgr := lock.NewFakeManager()
	mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_b", State: types.StateStarted, Owner: 1})

	src := &fakeSource{members: []types.Member{{NodeID: 1, IsLive: true}, {NodeID: 2, IsLive: true}}}
	exec := executor.New(agent.NewFakeRunner())
	e := New(holder, src, mgr, exec, 1, 2)

	// Node 2 joins; this evaluate runs on node 1, which currently owns
	// svc_b.
	if err := e.Evaluate(context.Background(), false, 2, true); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	waitFor(t, mgr, "svc_b", types.StateStopped)
}

func TestEvaluateOwnerFailureReclaims(t *testing.T) {
	g := rootGroup("svc_c")
	f := &forest.Forest{Roots: []*types.Node{g}, Domains: map[string]*types.Domain{}}
	holder := forest.NewHolder(f)
	mgr := lock.NewFakeManager()
	mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_c", State: types.StateStarted, Owner: 3})

	src := &fakeSource{members: []types.Member{{NodeID: 1, IsLive: true}}}
	exec := executor.New(agent.NewFakeRunner())
	e := New(holder, src, mgr, exec, 1, 2)

	if err := e.Evaluate(context.Background(), false, 3, false); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	waitFor(t, mgr, "svc_c", types.StateStarted)

	s, _ := mgr.GetRGState("svc_c")
	if s.Owner != 1 {
		t.Fatalf("expected node 1 to reclaim svc_c, got owner %d", s.Owner)
	}
}

func TestEvaluateExclusiveConflict(t *testing.T) {
	d := rootGroup("svc_d", types.Attr{Name: types.AttrExclusive, Value: "yes"})
	eRoot := rootGroup("svc_e")
	f := &forest.Forest{Roots: []*types.Node{d, eRoot}, Domains: map[string]*types.Domain{}}
	holder := forest.NewHolder(f)
	mgr := lock.NewFakeManager()
	mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_d", State: types.StateStopped})
	mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_e", State: types.StateStarted, Owner: 1})

	src := &fakeSource{members: []types.Member{{NodeID: 1, IsLive: true}, {NodeID: 2, IsLive: true}}}
	exec := executor.New(agent.NewFakeRunner())
	e := New(holder, src, mgr, exec, 2, 2)

	if err := e.Evaluate(context.Background(), true, 2, true); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	waitFor(t, mgr, "svc_d", types.StateStarted)

	s, _ := mgr.GetRGState("svc_d")
	if s.Owner != 2 {
		t.Fatalf("expected exclusive group to start on idle node 2, got owner %d", s.Owner)
	}
}

func TestEvaluateDisablesNeverTransitionedAutostartNo(t *testing.T) {
	g := rootGroup("svc_m", types.Attr{Name: types.AttrAutostart, Value: "no"})
	f := &forest.Forest{Roots: []*types.Node{g}, Domains: map[string]*types.Domain{}}
	holder := forest.NewHolder(f)
	mgr := lock.NewFakeManager()
	mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_m", State: types.StateStopped})

	src := &fakeSource{members: []types.Member{{NodeID: 1, IsLive: true}}}
	exec := executor.New(agent.NewFakeRunner())
	e := New(holder, src, mgr, exec, 1, 2)

	if err := e.Evaluate(context.Background(), true, 1, true); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	waitFor(t, mgr, "svc_m", types.StateDisabled)
}

func TestEvaluateStartsEnabledAutostartNoGroup(t *testing.T) {
	// An autostart=no group an admin has enabled (DISABLED -> STOPPED,
	// so the record has transitioned) must be placed and started, not
	// flipped back to DISABLED by the next evaluation pass.
	g := rootGroup("svc_n", types.Attr{Name: types.AttrAutostart, Value: "no"})
	f := &forest.Forest{Roots: []*types.Node{g}, Domains: map[string]*types.Domain{}}
	holder := forest.NewHolder(f)
	mgr := lock.NewFakeManager()
	mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_n", State: types.StateStopped, Transitioned: true})

	src := &fakeSource{members: []types.Member{{NodeID: 1, IsLive: true}}}
	exec := executor.New(agent.NewFakeRunner())
	e := New(holder, src, mgr, exec, 1, 2)

	if err := e.Evaluate(context.Background(), true, 1, true); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	waitFor(t, mgr, "svc_n", types.StateStarted)

	s, _ := mgr.GetRGState("svc_n")
	if s.Owner != 1 {
		t.Fatalf("expected enabled group started on node 1, got owner %d", s.Owner)
	}
}

func TestSuspendSkipsEvaluation(t *testing.T) {
	g := rootGroup("svc_a")
	f := &forest.Forest{Roots: []*types.Node{g}, Domains: map[string]*types.Domain{}}
	holder := forest.NewHolder(f)
	mgr := lock.NewFakeManager()
	mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_a", State: types.StateStopped})

	src := &fakeSource{members: []types.Member{{NodeID: 1, IsLive: true}}}
	exec := executor.New(agent.NewFakeRunner())
	e := New(holder, src, mgr, exec, 1, 2)
	e.Suspend()

	if err := e.Evaluate(context.Background(), true, 1, true); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	s, _ := mgr.GetRGState("svc_a")
	if s.State != types.StateStopped {
		t.Fatalf("expected suspended evaluator to leave state untouched, got %s", s.State)
	}
}
