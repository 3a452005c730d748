package lock

import (
	"context"

	"github.com/ocfcluster/rgmd/pkg/types"
)

// Manager is the distributed lock and rg_state store consumed by the
// evaluator, the admin API and reconfigure. A per-group lock is acquired before any
// rg_state read/mutate/write-back cycle and released immediately
// after.
type Manager interface {
	// Lock blocks (respecting ctx's deadline) until name's lock is
	// held exclusively by this process.
	Lock(ctx context.Context, name string) (Handle, error)

	// Unlock releases a Handle returned by Lock. Using a Handle after
	// Unlock is a programmer error.
	Unlock(h Handle)

	// GetRGState returns the durable record for name. The zero value
	// (State: StateUninitialized) is returned, not an error, when no
	// record exists yet.
	GetRGState(name string) (*types.RGState, error)

	// SetRGState replicates s as the new durable record for s.Name.
	// Callers must hold name's lock.
	SetRGState(ctx context.Context, s *types.RGState) error

	// DeleteRGState removes the durable record for name, used when a
	// group is removed by reconfigure. Callers must hold name's lock.
	DeleteRGState(ctx context.Context, name string) error

	// IsLeader reports whether this process is the current evaluator;
	// only the leader evaluates groups.
	IsLeader() bool
}

// Handle proves a caller holds a name's lock. The zero Handle is
// invalid.
type Handle struct {
	name string
}
