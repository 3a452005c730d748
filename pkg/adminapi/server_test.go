package adminapi

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/queue"
	"github.com/ocfcluster/rgmd/pkg/types"
)

const (
	waitTimeout = time.Second
	waitTick    = time.Millisecond
)

func testServer(t *testing.T) (*Server, *lock.FakeManager, func() []queue.Request) {
	t.Helper()

	root := &types.Node{Resource: &types.Resource{RuleName: "service", Attrs: []types.Attr{{Name: "name", Value: "svc_a"}}}}
	holder := forest.NewHolder(&forest.Forest{
		Roots:   []*types.Node{root},
		Domains: map[string]*types.Domain{},
	})
	mgr := lock.NewFakeManager()

	var mu sync.Mutex
	var seen []queue.Request
	q := queue.New(1, func(ctx context.Context, req queue.Request) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, req)
		return nil
	})
	t.Cleanup(func() { _ = q.Shutdown(context.Background()) })

	s := New(holder, mgr, q, nil, nil, nil)
	return s, mgr, func() []queue.Request {
		mu.Lock()
		defer mu.Unlock()
		out := make([]queue.Request, len(seen))
		copy(out, seen)
		return out
	}
}

func TestGroupOpEnqueues(t *testing.T) {
	s, _, requests := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/groups/svc_a/op", strings.NewReader(`{"op":"start"}`))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp opResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Accepted)
	require.Equal(t, "svc_a", resp.Group)
	require.NotEmpty(t, resp.RequestID)

	// The queue is asynchronous; wait for the drain goroutine.
	require.Eventually(t, func() bool { return len(requests()) == 1 },
		waitTimeout, waitTick)
	require.Equal(t, queue.KindStart, requests()[0].Kind)
}

func TestGroupOpUnknownGroup(t *testing.T) {
	s, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/groups/nope/op", strings.NewReader(`{"op":"start"}`))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupOpUnknownOp(t *testing.T) {
	s, _, _ := testServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/groups/svc_a/op", strings.NewReader(`{"op":"explode"}`))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGroupOpEnableFromFailed(t *testing.T) {
	s, mgr, _ := testServer(t)
	require.NoError(t, mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_a", State: types.StateFailed}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/groups/svc_a/op", strings.NewReader(`{"op":"enable"}`))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	state, err := mgr.GetRGState("svc_a")
	require.NoError(t, err)
	require.Equal(t, types.StateStopped, state.State)
	require.True(t, state.Transitioned, "enable must mark the record transitioned so evaluation places it")
}

func TestGroupOpEnableInvalidFromStarted(t *testing.T) {
	s, mgr, _ := testServer(t)
	require.NoError(t, mgr.SetRGState(context.Background(), &types.RGState{Name: "svc_a", State: types.StateStarted, Owner: 1}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/groups/svc_a/op", strings.NewReader(`{"op":"enable"}`))
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestStatusFastStreams(t *testing.T) {
	s, mgr, requests := testServer(t)
	require.NoError(t, mgr.SetRGState(context.Background(), &types.RGState{
		Name: "svc_a", State: types.StateStarted, Owner: 2, RecoveryPolicy: types.RecoveryRestart,
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/status?fast=true", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, requests(), "fast status must not run agent checks")

	scanner := bufio.NewScanner(rec.Body)
	require.True(t, scanner.Scan())
	var entry statusEntry
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	require.Equal(t, "svc_a", entry.Group)
	require.Equal(t, types.StateStarted, entry.State.State)
	require.Equal(t, uint64(2), entry.State.Owner)

	require.True(t, scanner.Scan())
	var terminal map[string]string
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &terminal))
	require.Equal(t, "success", terminal["status"])
}

func TestStatusSlowRunsChecksFirst(t *testing.T) {
	s, mgr, requests := testServer(t)
	require.NoError(t, mgr.SetRGState(context.Background(), &types.RGState{
		Name: "svc_a", State: types.StateStarted, Owner: 1, RecoveryPolicy: types.RecoveryRestart,
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	seen := requests()
	require.Len(t, seen, 1)
	require.Equal(t, queue.KindStatus, seen[0].Kind)
}
