package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// RaftManager is the reference Manager: rg_state is replicated via
// Raft, and the per-group lock is an in-process mutex, valid only
// while this node holds Raft leadership. Followers never evaluate, so
// a per-group mutex on the leader alone satisfies the distributed
// mutual-exclusion contract.
type RaftManager struct {
	nodeID   string
	bindAddr string
	dataDir  string

	raft *raft.Raft
	fsm  *rgStateFSM

	groupMu sync.Mutex
	groups  map[string]*sync.Mutex
}

// Config holds construction parameters for a RaftManager.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// NewManager constructs a RaftManager. Call Bootstrap or Join before
// using it.
func NewManager(cfg *Config) (*RaftManager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	return &RaftManager{
		nodeID:   cfg.NodeID,
		bindAddr: cfg.BindAddr,
		dataDir:  cfg.DataDir,
		fsm:      newRGStateFSM(),
		groups:   make(map[string]*sync.Mutex),
	}, nil
}

func raftConfig(nodeID string) *raft.Config {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(nodeID)

	// Hashicorp Raft's defaults (HeartbeatTimeout=1s, ElectionTimeout=1s)
	// are tuned for WAN deployments. A cluster resource manager needs
	// failover well under the membership-change-to-relocate path's
	// budget, so these are halved for LAN deployments.
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	return config
}

func (m *RaftManager) newRaft() (*raft.Raft, error) {
	config := raftConfig(m.nodeID)

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create raft: %w", err)
	}

	return r, nil
}

// Bootstrap initializes a new single-node Raft cluster rooted at this
// node.
func (m *RaftManager) Bootstrap() error {
	r, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(m.nodeID), Address: raft.ServerAddress(m.bindAddr)},
		},
	}

	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("bootstrap cluster: %w", err)
	}
	return nil
}

// Join starts this node's Raft instance without bootstrapping; the
// caller is expected to have this node added as a voter by the
// existing leader (AddVoter), typically via the admin surface.
func (m *RaftManager) Join() error {
	r, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r
	return nil
}

// AddVoter adds nodeID/address as a Raft voter. Only the leader may
// call this.
func (m *RaftManager) AddVoter(nodeID, address string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader, current leader: %s", m.LeaderAddr())
	}
	future := m.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("add voter: %w", err)
	}
	return nil
}

// RemoveServer removes a node from the Raft cluster.
func (m *RaftManager) RemoveServer(nodeID string) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized")
	}
	if !m.IsLeader() {
		return fmt.Errorf("not the leader")
	}
	future := m.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	return future.Error()
}

// GetClusterServers reports the current Raft configuration.
func (m *RaftManager) GetClusterServers() ([]raft.Server, error) {
	if m.raft == nil {
		return nil, fmt.Errorf("raft not initialized")
	}
	future := m.raft.GetConfiguration()
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("get configuration: %w", err)
	}
	return future.Configuration().Servers, nil
}

// IsLeader implements Manager.
func (m *RaftManager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// LeaderAddr returns the current Raft leader's address.
func (m *RaftManager) LeaderAddr() string {
	if m.raft == nil {
		return ""
	}
	return string(m.raft.Leader())
}

func (m *RaftManager) groupLock(name string) *sync.Mutex {
	m.groupMu.Lock()
	defer m.groupMu.Unlock()
	l, ok := m.groups[name]
	if !ok {
		l = &sync.Mutex{}
		m.groups[name] = l
	}
	return l
}

// Lock implements Manager.
func (m *RaftManager) Lock(ctx context.Context, name string) (Handle, error) {
	l := m.groupLock(name)

	acquired := make(chan struct{})
	go func() {
		l.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return Handle{name: name}, nil
	case <-ctx.Done():
		go func() {
			<-acquired
			l.Unlock()
		}()
		return Handle{}, fmt.Errorf("lock %q: %w: %v", name, rgerr.ErrTransient, ctx.Err())
	}
}

// Unlock implements Manager.
func (m *RaftManager) Unlock(h Handle) {
	if h.name == "" {
		return
	}
	m.groupLock(h.name).Unlock()
}

func (m *RaftManager) apply(cmd command) error {
	if m.raft == nil {
		return fmt.Errorf("raft not initialized: %w", rgerr.ErrTransient)
	}
	if m.raft.State() != raft.Leader {
		return fmt.Errorf("not the leader: %w", rgerr.ErrTransient)
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftCommitDuration)

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("apply command: %w: %v", rgerr.ErrTransient, err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// GetRGState implements Manager.
func (m *RaftManager) GetRGState(name string) (*types.RGState, error) {
	if s, ok := m.fsm.get(name); ok {
		return s, nil
	}
	return &types.RGState{Name: name, State: types.StateUninitialized}, nil
}

// SetRGState implements Manager.
func (m *RaftManager) SetRGState(ctx context.Context, s *types.RGState) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return m.apply(command{Op: opSet, Data: data})
}

// DeleteRGState implements Manager.
func (m *RaftManager) DeleteRGState(ctx context.Context, name string) error {
	data, err := json.Marshal(name)
	if err != nil {
		return err
	}
	return m.apply(command{Op: opDelete, Data: data})
}

// Shutdown stops the Raft instance.
func (m *RaftManager) Shutdown() error {
	if m.raft == nil {
		return nil
	}
	future := m.raft.Shutdown()
	return future.Error()
}

// NodeID returns this manager's Raft server ID.
func (m *RaftManager) NodeID() string {
	return m.nodeID
}

// LastIndex returns the last Raft log index, for metrics.
func (m *RaftManager) LastIndex() uint64 {
	if m.raft == nil {
		return 0
	}
	return m.raft.LastIndex()
}

// AppliedIndex returns the last applied Raft log index, for metrics.
func (m *RaftManager) AppliedIndex() uint64 {
	if m.raft == nil {
		return 0
	}
	return m.raft.AppliedIndex()
}
