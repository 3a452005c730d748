package lock

import (
	"context"
	"sync"

	"github.com/ocfcluster/rgmd/pkg/types"
)

// FakeManager is an in-memory Manager for tests: locks are ordinary
// mutexes, rg_state lives in a map, and IsLeader defaults to true (the
// common case of testing a single evaluating node). Mirrors
// pkg/agent.FakeRunner's record-and-respond shape.
type FakeManager struct {
	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	states map[string]*types.RGState
	leader bool
}

// NewFakeManager constructs a FakeManager that reports IsLeader true.
func NewFakeManager() *FakeManager {
	return &FakeManager{
		locks:  make(map[string]*sync.Mutex),
		states: make(map[string]*types.RGState),
		leader: true,
	}
}

// SetLeader controls IsLeader's return value.
func (f *FakeManager) SetLeader(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leader = v
}

func (f *FakeManager) groupLock(name string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.locks[name]
	if !ok {
		l = &sync.Mutex{}
		f.locks[name] = l
	}
	return l
}

// Lock implements Manager.
func (f *FakeManager) Lock(ctx context.Context, name string) (Handle, error) {
	f.groupLock(name).Lock()
	return Handle{name: name}, nil
}

// Unlock implements Manager.
func (f *FakeManager) Unlock(h Handle) {
	if h.name == "" {
		return
	}
	f.groupLock(h.name).Unlock()
}

// GetRGState implements Manager.
func (f *FakeManager) GetRGState(name string) (*types.RGState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[name]; ok {
		cp := *s
		return &cp, nil
	}
	return &types.RGState{Name: name, State: types.StateUninitialized}, nil
}

// SetRGState implements Manager.
func (f *FakeManager) SetRGState(ctx context.Context, s *types.RGState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.states[s.Name] = &cp
	return nil
}

// DeleteRGState implements Manager.
func (f *FakeManager) DeleteRGState(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, name)
	return nil
}

// IsLeader implements Manager.
func (f *FakeManager) IsLeader() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leader
}
