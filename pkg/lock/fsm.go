package lock

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/ocfcluster/rgmd/pkg/types"
)

// rgStateFSM is the Raft state machine holding rg_state, the only
// externally persisted state the engine keeps; everything else is
// reconstructable from the configuration store and peers. Every write
// goes through Raft so all managers agree on the durable record even
// though only the leader evaluates.
type rgStateFSM struct {
	mu     sync.RWMutex
	states map[string]*types.RGState
}

func newRGStateFSM() *rgStateFSM {
	return &rgStateFSM{states: make(map[string]*types.RGState)}
}

// command is one Raft log entry.
type command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opSet    = "set_rg_state"
	opDelete = "delete_rg_state"
)

func (f *rgStateFSM) get(name string) (*types.RGState, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.states[name]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

// Apply implements raft.FSM.
func (f *rgStateFSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opSet:
		var s types.RGState
		if err := json.Unmarshal(cmd.Data, &s); err != nil {
			return err
		}
		f.states[s.Name] = &s
		return nil

	case opDelete:
		var name string
		if err := json.Unmarshal(cmd.Data, &name); err != nil {
			return err
		}
		delete(f.states, name)
		return nil

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot implements raft.FSM.
func (f *rgStateFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	states := make(map[string]*types.RGState, len(f.states))
	for k, v := range f.states {
		cp := *v
		states[k] = &cp
	}
	return &rgStateSnapshot{states: states}, nil
}

// Restore implements raft.FSM.
func (f *rgStateFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var states map[string]*types.RGState
	if err := json.NewDecoder(rc).Decode(&states); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = states
	return nil
}

type rgStateSnapshot struct {
	states map[string]*types.RGState
}

func (s *rgStateSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.states); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *rgStateSnapshot) Release() {}
