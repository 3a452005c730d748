package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocfcluster/rgmd/pkg/types"
)

func TestWireStateRoundTrip(t *testing.T) {
	now := time.Now()
	orig := &types.RGState{
		Name:           "svc_a",
		State:          types.StateStarted,
		Owner:          3,
		LastOwner:      1,
		TransitionTime: now,
		RestartCount:   2,
		RecoveryPolicy: types.RecoveryRelocate,
		MaxRestarts:    5,
		Transitioned:   true,
	}

	data, err := FromRGState(orig).Encode()
	require.NoError(t, err)

	w, err := Decode(data)
	require.NoError(t, err)

	got := w.ToRGState()
	require.Equal(t, orig.Name, got.Name)
	require.Equal(t, orig.State, got.State)
	require.Equal(t, orig.Owner, got.Owner)
	require.Equal(t, orig.LastOwner, got.LastOwner)
	require.Equal(t, orig.RestartCount, got.RestartCount)
	require.Equal(t, orig.RecoveryPolicy, got.RecoveryPolicy)
	require.Equal(t, orig.MaxRestarts, got.MaxRestarts)
	require.True(t, got.Transitioned)
	require.True(t, got.TransitionTime.Equal(now))
}

func TestEncodeRejectsUnknownState(t *testing.T) {
	w := WireState{Name: "x", State: types.State("bogus"), RecoveryPolicy: types.RecoveryRestart}
	_, err := w.Encode()
	require.Error(t, err)
}

func TestDecodeRejectsUnknownStateCode(t *testing.T) {
	w := WireState{Name: "x", State: types.StateStopped, RecoveryPolicy: types.RecoveryRestart}
	data, err := w.Encode()
	require.NoError(t, err)

	// Corrupt the state byte, which follows the length prefix and name.
	data[2+len(w.Name)] = 0xff
	_, err = Decode(data)
	require.Error(t, err)
}

func TestLoopbackDelivers(t *testing.T) {
	a, b := NewLoopback(1)
	defer a.Close(context.Background())

	msg := FromRGState(&types.RGState{Name: "svc_a", State: types.StateStopped, RecoveryPolicy: types.RecoveryRestart})
	require.NoError(t, a.Send(context.Background(), msg))

	got, err := b.Recv(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, "svc_a", got.Name)
	require.Equal(t, types.StateStopped, got.State)
}

func TestLoopbackRecvTimeout(t *testing.T) {
	a, b := NewLoopback(1)
	defer a.Close(context.Background())

	_, err := b.Recv(context.Background(), 10*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestLoopbackClosedBothEnds(t *testing.T) {
	a, b := NewLoopback(1)
	require.NoError(t, b.Close(context.Background()))

	err := a.Send(context.Background(), WireState{State: types.StateStopped, RecoveryPolicy: types.RecoveryRestart})
	require.ErrorIs(t, err, ErrClosed)
}
