package evaluator

import (
	"context"
	"testing"
	"time"

	"github.com/ocfcluster/rgmd/pkg/agent"
	"github.com/ocfcluster/rgmd/pkg/executor"
	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/queue"
	"github.com/ocfcluster/rgmd/pkg/types"
)

func recoverFixture(t *testing.T, policy types.RecoveryPolicy, restartCount int) (*Evaluator, *lock.FakeManager, *agent.FakeRunner) {
	t.Helper()
	g := rootGroup("svc_g")
	f := &forest.Forest{Roots: []*types.Node{g}, Domains: map[string]*types.Domain{}}
	holder := forest.NewHolder(f)

	mgr := lock.NewFakeManager()
	mgr.SetRGState(context.Background(), &types.RGState{
		Name:           "svc_g",
		State:          types.StateStarted,
		Owner:          1,
		RecoveryPolicy: policy,
		MaxRestarts:    3,
		RestartCount:   restartCount,
	})

	runner := agent.NewFakeRunner()
	runner.SetResponse("service", agent.ActionStatus, agent.GenericError)

	src := &fakeSource{members: []types.Member{{NodeID: 1, IsLive: true}}}
	e := New(holder, src, mgr, executor.New(runner), 1, 2)
	return e, mgr, runner
}

func TestStatusFailureRestartsInPlace(t *testing.T) {
	e, mgr, runner := recoverFixture(t, types.RecoveryRestart, 0)

	e.Queue().Enqueue(queue.NewRequest("svc_g", queue.KindStatus))

	// The group begins STARTED, so wait for the full recovery round
	// trip: the restart counter moving is the signal it completed.
	deadline := time.Now().Add(time.Second)
	var s *types.RGState
	for time.Now().Before(deadline) {
		s, _ = mgr.GetRGState("svc_g")
		if s.State == types.StateStarted && s.RestartCount == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if s == nil || s.State != types.StateStarted || s.RestartCount != 1 {
		t.Fatalf("expected restarted group with count 1, got %+v", s)
	}
	if s.Owner != 1 {
		t.Fatalf("expected restart in place on owner 1, got %d", s.Owner)
	}

	var stops, starts int
	for _, c := range runner.Calls {
		switch c.Action {
		case agent.ActionStop:
			stops++
		case agent.ActionStart:
			starts++
		}
	}
	if stops == 0 || starts == 0 {
		t.Fatalf("expected a stop and a start during recovery, got %d stops %d starts", stops, starts)
	}
}

func TestStatusFailureRelocatePolicyLeavesStopped(t *testing.T) {
	e, mgr, _ := recoverFixture(t, types.RecoveryRelocate, 0)

	e.Queue().Enqueue(queue.NewRequest("svc_g", queue.KindStatus))
	waitFor(t, mgr, "svc_g", types.StateStopped)

	s, _ := mgr.GetRGState("svc_g")
	if s.Owner != 0 {
		t.Fatalf("expected no owner after recovery stop, got %d", s.Owner)
	}
	if s.LastOwner != 1 {
		t.Fatalf("expected last owner 1 recorded, got %d", s.LastOwner)
	}
}

func TestStatusFailureRetriesExhaustedRelocates(t *testing.T) {
	e, mgr, _ := recoverFixture(t, types.RecoveryRestart, 3)

	e.Queue().Enqueue(queue.NewRequest("svc_g", queue.KindStatus))
	waitFor(t, mgr, "svc_g", types.StateStopped)
}

func TestStatusFailureDisablePolicy(t *testing.T) {
	e, mgr, _ := recoverFixture(t, types.RecoveryDisable, 0)

	e.Queue().Enqueue(queue.NewRequest("svc_g", queue.KindStatus))
	waitFor(t, mgr, "svc_g", types.StateDisabled)
}
