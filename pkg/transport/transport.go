// Package transport implements the inter-node message channel used to
// forward admin operations to the Raft leader and to stream
// rg_state to a peer serving a status query. The wire format is a
// fixed little-endian encoding so two nodes built on different
// architectures never disagree on a rg_state message's bytes.
package transport

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/ocfcluster/rgmd/pkg/types"
)

// ErrTimeout is returned by Recv when no message arrives before the
// deadline.
var ErrTimeout = errors.New("transport: recv timeout")

// ErrClosed is returned by Send/Recv on a closed Channel.
var ErrClosed = errors.New("transport: channel closed")

// Channel is one bidirectional connection to a peer node.
type Channel interface {
	Send(ctx context.Context, msg WireState) error
	Recv(ctx context.Context, timeout time.Duration) (WireState, error)
	Close(ctx context.Context) error
}

// WireState is the canonical little-endian encoding of one
// types.RGState, as sent between nodes.
type WireState struct {
	Name           string
	State          types.State
	Owner          uint64
	LastOwner      uint64
	TransitionUnix int64
	RestartCount   uint32
	RecoveryPolicy types.RecoveryPolicy
	MaxRestarts    uint32
	Transitioned   bool
}

// FromRGState converts a durable rg_state record to its wire form.
func FromRGState(s *types.RGState) WireState {
	return WireState{
		Name:           s.Name,
		State:          s.State,
		Owner:          s.Owner,
		LastOwner:      s.LastOwner,
		TransitionUnix: s.TransitionTime.UnixNano(),
		RestartCount:   uint32(s.RestartCount),
		RecoveryPolicy: s.RecoveryPolicy,
		MaxRestarts:    uint32(s.MaxRestarts),
		Transitioned:   s.Transitioned,
	}
}

// ToRGState converts a wire message back to a durable rg_state record.
func (w WireState) ToRGState() *types.RGState {
	return &types.RGState{
		Name:           w.Name,
		State:          w.State,
		Owner:          w.Owner,
		LastOwner:      w.LastOwner,
		TransitionTime: time.Unix(0, w.TransitionUnix),
		RestartCount:   int(w.RestartCount),
		RecoveryPolicy: w.RecoveryPolicy,
		MaxRestarts:    int(w.MaxRestarts),
		Transitioned:   w.Transitioned,
	}
}

// stateCode/codeState map types.State to/from its fixed wire byte. A
// table keeps the wire format stable even if State's string values or
// iota order ever change.
var stateCode = map[types.State]uint8{
	types.StateUninitialized: 0,
	types.StateStopped:       1,
	types.StateStarting:      2,
	types.StateStarted:       3,
	types.StateStopping:      4,
	types.StateFailed:        5,
	types.StateDisabled:      6,
	types.StateRecover:       7,
	types.StateError:         8,
}

var codeState = func() map[uint8]types.State {
	m := make(map[uint8]types.State, len(stateCode))
	for s, c := range stateCode {
		m[c] = s
	}
	return m
}()

var policyCode = map[types.RecoveryPolicy]uint8{
	types.RecoveryRestart:  0,
	types.RecoveryRelocate: 1,
	types.RecoveryDisable:  2,
}

var codePolicy = func() map[uint8]types.RecoveryPolicy {
	m := make(map[uint8]types.RecoveryPolicy, len(policyCode))
	for p, c := range policyCode {
		m[c] = p
	}
	return m
}()

// Encode serializes w to its fixed little-endian wire form: a
// uint16 name length, the name bytes, then fixed-width fields.
func (w WireState) Encode() ([]byte, error) {
	stateByte, ok := stateCode[w.State]
	if !ok {
		return nil, fmt.Errorf("transport: unknown state %q", w.State)
	}
	policyByte, ok := policyCode[w.RecoveryPolicy]
	if !ok {
		return nil, fmt.Errorf("transport: unknown recovery policy %q", w.RecoveryPolicy)
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(w.Name))); err != nil {
		return nil, err
	}
	buf.WriteString(w.Name)

	for _, v := range []interface{}{
		stateByte,
		w.Owner,
		w.LastOwner,
		w.TransitionUnix,
		w.RestartCount,
		policyByte,
		w.MaxRestarts,
		w.Transitioned,
	} {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// Decode parses the fixed little-endian wire form produced by Encode.
func Decode(data []byte) (WireState, error) {
	buf := bytes.NewReader(data)

	var nameLen uint16
	if err := binary.Read(buf, binary.LittleEndian, &nameLen); err != nil {
		return WireState{}, err
	}
	nameBytes := make([]byte, nameLen)
	if _, err := buf.Read(nameBytes); err != nil {
		return WireState{}, err
	}

	var w WireState
	w.Name = string(nameBytes)

	var stateByte, policyByte uint8
	for _, v := range []interface{}{
		&stateByte,
		&w.Owner,
		&w.LastOwner,
		&w.TransitionUnix,
		&w.RestartCount,
		&policyByte,
		&w.MaxRestarts,
		&w.Transitioned,
	} {
		if err := binary.Read(buf, binary.LittleEndian, v); err != nil {
			return WireState{}, err
		}
	}

	state, ok := codeState[stateByte]
	if !ok {
		return WireState{}, fmt.Errorf("transport: unknown state code %d", stateByte)
	}
	policy, ok := codePolicy[policyByte]
	if !ok {
		return WireState{}, fmt.Errorf("transport: unknown recovery policy code %d", policyByte)
	}
	w.State = state
	w.RecoveryPolicy = policy
	return w, nil
}
