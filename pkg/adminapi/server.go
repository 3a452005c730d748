package adminapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/ocfcluster/rgmd/pkg/config"
	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/log"
	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/queue"
	"github.com/ocfcluster/rgmd/pkg/reconfigure"
	"github.com/ocfcluster/rgmd/pkg/rgerr"
	"github.com/ocfcluster/rgmd/pkg/rgstate"
	"github.com/ocfcluster/rgmd/pkg/transport"
	"github.com/ocfcluster/rgmd/pkg/types"
)

// Server is the admin HTTP surface: group operations, the status
// stream, reconfiguration, configuration writes, health and metrics.
type Server struct {
	router  *mux.Router
	holder  *forest.Holder
	lockMgr lock.Manager
	queue   *queue.Queue
	recon   *reconfigure.Runner
	store   config.Store
	writer  config.Writer

	httpSrv *http.Server
	logger  zerolog.Logger
}

// New constructs a Server. writer may be nil when the configuration
// store is read-only from this process.
func New(holder *forest.Holder, lockMgr lock.Manager, q *queue.Queue, recon *reconfigure.Runner, store config.Store, writer config.Writer) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		holder:  holder,
		lockMgr: lockMgr,
		queue:   q,
		recon:   recon,
		store:   store,
		writer:  writer,
		logger:  log.WithComponent("adminapi"),
	}
	s.routes()
	return s
}

// ClusterAdmin is the optional voter-management side of a lock
// manager. The Raft-backed reference manager implements it; an
// external lock service typically will not.
type ClusterAdmin interface {
	AddVoter(nodeID, address string) error
	RemoveServer(nodeID string) error
}

func (s *Server) routes() {
	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/groups/{name}/op", s.instrument("group_op", s.handleGroupOp)).Methods(http.MethodPost)
	v1.HandleFunc("/status", s.instrument("status", s.handleStatus)).Methods(http.MethodGet)
	v1.HandleFunc("/reconfigure", s.instrument("reconfigure", s.handleReconfigure)).Methods(http.MethodPost)
	v1.HandleFunc("/config", s.instrument("config_put", s.handleConfigPut)).Methods(http.MethodPost)
	if _, ok := s.lockMgr.(ClusterAdmin); ok {
		v1.HandleFunc("/cluster/nodes", s.instrument("node_add", s.handleNodeAdd)).Methods(http.MethodPost)
		v1.HandleFunc("/cluster/nodes/{id}", s.instrument("node_remove", s.handleNodeRemove)).Methods(http.MethodDelete)
	}

	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", metrics.HealthHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/readyz", metrics.ReadyHandler()).Methods(http.MethodGet)
	s.router.HandleFunc("/livez", metrics.LivenessHandler()).Methods(http.MethodGet)
}

// instrument wraps a handler with the request counter and duration
// histogram, labeled by route name rather than raw path so group names
// don't explode the cardinality.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, route)
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves the admin API on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("admin API listening")
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// opRequest is the body of POST /v1/groups/{name}/op.
type opRequest struct {
	Op     string `json:"op"`
	Target uint64 `json:"target,omitempty"`
}

type opResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Group     string `json:"group"`
	Op        string `json:"op"`
	Accepted  bool   `json:"accepted"`
}

var opKinds = map[string]queue.Kind{
	"start":    queue.KindStart,
	"stop":     queue.KindStop,
	"disable":  queue.KindDisable,
	"relocate": queue.KindRelocate,
	"status":   queue.KindStatus,
	"migrate":  queue.KindMigrate,
}

func (s *Server) handleGroupOp(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req opRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	if _, ok := s.holder.Current().Root(name); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("group %q not found: %w", name, rgerr.ErrConfig))
		return
	}

	// Enable is not a queued operation: it is a bare state transition
	// out of FAILED/DISABLED, after which normal evaluation takes over.
	if req.Op == "enable" {
		if err := s.enableGroup(r.Context(), name); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeJSON(w, http.StatusOK, opResponse{Group: name, Op: req.Op, Accepted: true})
		return
	}

	kind, ok := opKinds[req.Op]
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown op %q", req.Op))
		return
	}

	qreq := queue.NewRequest(name, kind)
	qreq.TargetNode = req.Target
	if !s.queue.Enqueue(qreq) {
		// Collapsed into an already-pending request, or shutting down.
		writeJSON(w, http.StatusAccepted, opResponse{Group: name, Op: req.Op, Accepted: false})
		return
	}
	writeJSON(w, http.StatusAccepted, opResponse{RequestID: qreq.ID.String(), Group: name, Op: req.Op, Accepted: true})
}

func (s *Server) enableGroup(ctx context.Context, name string) error {
	handle, err := s.lockMgr.Lock(ctx, name)
	if err != nil {
		return fmt.Errorf("lock group %q: %w", name, rgerr.ErrTransient)
	}
	defer s.lockMgr.Unlock(handle)

	state, err := s.lockMgr.GetRGState(name)
	if err != nil {
		return err
	}
	if err := rgstate.Enable(state); err != nil {
		return err
	}
	return s.lockMgr.SetRGState(ctx, state)
}

// statusEntry is one streamed record: the group's durable state in its
// canonical wire form.
type statusEntry struct {
	Group string              `json:"group"`
	State transport.WireState `json:"state"`
}

// handleStatus streams one record per group, then a terminal success
// marker. With fast unset or false, a fresh status check is run
// through the worker pool for every STARTED group first; fast=true
// reports the durable records as they are.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	fast, _ := strconv.ParseBool(r.URL.Query().Get("fast"))
	f := s.holder.Current()

	if !fast {
		for _, root := range f.Roots {
			name := root.Resource.Name()
			state, err := s.lockMgr.GetRGState(name)
			if err != nil || state.State != types.StateStarted {
				continue
			}
			s.queue.Enqueue(queue.NewRequest(name, queue.KindStatus))
		}
		for _, root := range f.Roots {
			if err := s.queue.DrainGroup(r.Context(), root.Resource.Name()); err != nil {
				writeError(w, http.StatusServiceUnavailable, err)
				return
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)

	for _, root := range f.Roots {
		name := root.Resource.Name()
		state, err := s.lockMgr.GetRGState(name)
		if err != nil {
			s.logger.Error().Err(err).Str("group", name).Msg("failed to read state for status stream")
			continue
		}
		_ = enc.Encode(statusEntry{Group: name, State: transport.FromRGState(state)})
		if flusher != nil {
			flusher.Flush()
		}
	}
	_ = enc.Encode(map[string]string{"status": "success"})
}

func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	if err := s.recon.Reconfigure(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.holder.Current().Version,
	})
}

type nodeAddRequest struct {
	NodeID  string `json:"node_id"`
	Address string `json:"address"`
}

func (s *Server) handleNodeAdd(w http.ResponseWriter, r *http.Request) {
	admin := s.lockMgr.(ClusterAdmin)

	var req nodeAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if req.NodeID == "" || req.Address == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("node_id and address are required"))
		return
	}
	if err := admin.AddVoter(req.NodeID, req.Address); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNodeRemove(w http.ResponseWriter, r *http.Request) {
	admin := s.lockMgr.(ClusterAdmin)

	if err := admin.RemoveServer(mux.Vars(r)["id"]); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// configPutRequest is the body of POST /v1/config: a set of paths to
// write, then a version bump. The bump happens last so a concurrent
// reader never observes the new version with stale paths.
type configPutRequest struct {
	Paths   map[string]string `json:"paths"`
	Version int64             `json:"version,omitempty"`
}

func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	if s.writer == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("configuration store is read-only"))
		return
	}

	var req configPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}
	if len(req.Paths) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("no paths to write"))
		return
	}

	for path, value := range req.Paths {
		if err := s.writer.Put(path, value); err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Errorf("write %s: %w", path, err))
			return
		}
	}

	version := req.Version
	if version == 0 {
		current, err := s.store.GetVersion()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		version = current + 1
	}
	if err := s.writer.Bump(version); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("bump version: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "version": version})
}
