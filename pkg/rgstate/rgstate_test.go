package rgstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/types"
)

func TestInitializeAutostart(t *testing.T) {
	s := &types.RGState{Name: "g", State: types.StateUninitialized}
	require.NoError(t, Initialize(s, true))
	require.Equal(t, types.StateStopped, s.State)
	require.Zero(t, s.Owner)

	s = &types.RGState{Name: "g", State: types.StateUninitialized}
	require.NoError(t, Initialize(s, false))
	require.Equal(t, types.StateDisabled, s.State)
}

func TestInitializeOnlyFromUninitialized(t *testing.T) {
	s := &types.RGState{Name: "g", State: types.StateStopped}
	err := Initialize(s, true)
	require.ErrorIs(t, err, rgerr.ErrTransition)
}

func TestStartLifecycle(t *testing.T) {
	s := &types.RGState{Name: "g", State: types.StateStopped}

	require.False(t, s.Transitioned)
	require.NoError(t, BeginStart(s, 7))
	require.Equal(t, types.StateStarting, s.State)
	require.Equal(t, uint64(7), s.Owner)
	require.True(t, s.OwnedByLiveState())
	require.True(t, s.Transitioned)

	require.NoError(t, StartSucceeded(s))
	require.Equal(t, types.StateStarted, s.State)
	require.Equal(t, uint64(7), s.Owner)
}

func TestStartFailedClearsOwner(t *testing.T) {
	s := &types.RGState{Name: "g", State: types.StateStopped}
	require.NoError(t, BeginStart(s, 7))
	require.NoError(t, StartFailed(s))
	require.Equal(t, types.StateFailed, s.State)
	require.Zero(t, s.Owner)
	require.False(t, s.OwnedByLiveState())
}

func TestStopLifecycleRecordsLastOwner(t *testing.T) {
	s := &types.RGState{Name: "g", State: types.StateStarted, Owner: 7}

	require.NoError(t, BeginStop(s))
	require.Equal(t, types.StateStopping, s.State)
	require.Equal(t, uint64(7), s.LastOwner)

	require.NoError(t, StopSucceeded(s))
	require.Equal(t, types.StateStopped, s.State)
	require.Zero(t, s.Owner)
}

func TestOwnerLost(t *testing.T) {
	s := &types.RGState{Name: "g", State: types.StateStarted, Owner: 3}
	require.NoError(t, OwnerLost(s))
	require.Equal(t, types.StateStopped, s.State)
	require.Zero(t, s.Owner)
	require.Equal(t, uint64(3), s.LastOwner)
}

func TestEnableOnlyFromFailedOrDisabled(t *testing.T) {
	for _, from := range []types.State{types.StateFailed, types.StateDisabled} {
		s := &types.RGState{Name: "g", State: from, RestartCount: 2}
		require.NoError(t, Enable(s))
		require.Equal(t, types.StateStopped, s.State)
		require.Zero(t, s.RestartCount)
	}

	s := &types.RGState{Name: "g", State: types.StateStarted, Owner: 1}
	require.ErrorIs(t, Enable(s), rgerr.ErrTransition)
}

func TestDisableValidFromAnyState(t *testing.T) {
	for _, from := range []types.State{
		types.StateUninitialized, types.StateStopped, types.StateStarted, types.StateFailed,
	} {
		s := &types.RGState{Name: "g", State: from, Owner: 1}
		require.NoError(t, Disable(s))
		require.Equal(t, types.StateDisabled, s.State)
		require.Zero(t, s.Owner)
	}
}

func TestRecoveryRestartWithinBudget(t *testing.T) {
	s := &types.RGState{
		Name: "g", State: types.StateRecover, Owner: 7,
		RecoveryPolicy: types.RecoveryRestart, MaxRestarts: 3,
	}
	outcome, err := BeginRecoveryStop(s)
	require.NoError(t, err)
	require.Equal(t, RecoveryShouldRestart, outcome)
	require.Equal(t, types.StateStopping, s.State)
	require.Equal(t, 1, s.RestartCount)
}

func TestRecoveryRelocatesWhenBudgetExhausted(t *testing.T) {
	s := &types.RGState{
		Name: "g", State: types.StateRecover, Owner: 7,
		RecoveryPolicy: types.RecoveryRestart, MaxRestarts: 1, RestartCount: 1,
	}
	outcome, err := BeginRecoveryStop(s)
	require.NoError(t, err)
	require.Equal(t, RecoveryShouldRelocate, outcome)
}

func TestRecoveryRelocatePolicy(t *testing.T) {
	s := &types.RGState{
		Name: "g", State: types.StateRecover, Owner: 7,
		RecoveryPolicy: types.RecoveryRelocate, MaxRestarts: 3,
	}
	outcome, err := BeginRecoveryStop(s)
	require.NoError(t, err)
	require.Equal(t, RecoveryShouldRelocate, outcome)
}

func TestMarkRecoverKeepsOwner(t *testing.T) {
	s := &types.RGState{Name: "g", State: types.StateStarted, Owner: 4}
	require.NoError(t, MarkRecover(s))
	require.Equal(t, types.StateRecover, s.State)
	require.Equal(t, uint64(4), s.Owner)
	require.True(t, s.OwnedByLiveState())
}
