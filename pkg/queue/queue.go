package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ocfcluster/rgmd/pkg/log"
	"github.com/ocfcluster/rgmd/pkg/metrics"
)

// Kind is one per-group request type. The first six are admin-facing;
// CondStart, CondStop and Init are enqueued only internally, by
// reconfigure's delta pass.
type Kind string

const (
	KindStart     Kind = "start"
	KindStop      Kind = "stop"
	KindDisable   Kind = "disable"
	KindRelocate  Kind = "relocate"
	KindStatus    Kind = "status"
	KindMigrate   Kind = "migrate"
	KindCondStart Kind = "condstart"
	KindCondStop  Kind = "condstop"
	KindInit      Kind = "init"
)

// Request is one unit of work against a single group.
type Request struct {
	ID         uuid.UUID
	Group      string
	Kind       Kind
	TargetNode uint64 // meaningful for KindRelocate/KindMigrate
	EnqueuedAt time.Time
}

// NewRequest builds a Request with a fresh ID and EnqueuedAt.
func NewRequest(group string, kind Kind) Request {
	return Request{ID: uuid.New(), Group: group, Kind: kind, EnqueuedAt: time.Now()}
}

// Handler runs one Request to completion. Errors are logged by the
// Queue and otherwise swallowed: the next evaluator pass is the retry
// path.
type Handler func(ctx context.Context, req Request) error

// Queue serializes operations per group name and fans work out across
// a bounded worker pool.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]Request
	busy    map[string]bool
	closed  bool

	sem     chan struct{}
	wg      sync.WaitGroup
	handler Handler
	logger  zerolog.Logger
}

// New constructs a Queue with workers concurrent slots, dispatching
// each dequeued Request to handler.
func New(workers int, handler Handler) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		pending: make(map[string][]Request),
		busy:    make(map[string]bool),
		sem:     make(chan struct{}, workers),
		handler: handler,
		logger:  log.WithComponent("queue"),
	}
}

// Enqueue admits req, applying the collapsing rules, and starts a
// drain goroutine for req.Group if one is not already
// running. It reports false if the queue has been shut down or the
// request was collapsed away.
func (q *Queue) Enqueue(req Request) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	before := len(q.pending[req.Group])
	list, admitted := collapse(q.pending[req.Group], req)
	if !admitted {
		q.mu.Unlock()
		return false
	}
	q.pending[req.Group] = list
	// Pending status requests evicted by a stop or disable leave the
	// queue here rather than through drain.
	evicted := before + 1 - len(list)

	start := !q.busy[req.Group]
	if start {
		q.busy[req.Group] = true
	}
	q.mu.Unlock()

	metrics.QueueDepth.Add(float64(1 - evicted))
	if start {
		q.wg.Add(1)
		go q.drain(req.Group)
	}
	return true
}

// collapse applies the dedup rules to a pending list before admitting
// req, returning the new list and whether req itself was admitted: a
// status request is dropped when a stop or disable is already queued,
// a stop or disable evicts pending status requests, and an identical
// request already pending is not queued twice.
func collapse(list []Request, req Request) ([]Request, bool) {
	if req.Kind == KindStatus {
		for _, r := range list {
			if r.Kind == KindStop || r.Kind == KindDisable {
				return list, false
			}
		}
	}

	if req.Kind == KindStop || req.Kind == KindDisable {
		filtered := list[:0:0]
		for _, r := range list {
			if r.Kind == KindStatus {
				continue
			}
			filtered = append(filtered, r)
		}
		list = filtered
	}

	for _, r := range list {
		if r.Kind == req.Kind && r.TargetNode == req.TargetNode {
			return list, false
		}
	}

	return append(list, req), true
}

// drain runs req.Group's FIFO to empty, one request at a time, then
// exits; Enqueue restarts it the next time the group goes from idle
// to non-empty.
func (q *Queue) drain(group string) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		list := q.pending[group]
		if len(list) == 0 {
			q.busy[group] = false
			delete(q.pending, group)
			q.mu.Unlock()
			return
		}
		req := list[0]
		q.pending[group] = list[1:]
		q.mu.Unlock()
		metrics.QueueDepth.Dec()

		q.sem <- struct{}{}
		err := q.handler(context.Background(), req)
		<-q.sem

		outcome := "ok"
		if err != nil {
			outcome = "error"
			q.logger.Error().Err(err).Str("group", group).Str("kind", string(req.Kind)).
				Msg("request handler failed")
		}
		metrics.RequestsProcessedTotal.WithLabelValues(string(req.Kind), outcome).Inc()
	}
}

// DrainGroup blocks until group's FIFO is empty and no worker is
// running for it, or ctx is done. Reconfigure's conditional stop/start
// passes use this to wait for a group's op to land before swapping the
// forest or moving to the next phase.
func (q *Queue) DrainGroup(ctx context.Context, group string) error {
	for {
		q.mu.Lock()
		idle := !q.busy[group] && len(q.pending[group]) == 0
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("drain group %q: %w", group, ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// Shutdown stops accepting new requests and waits for every group's
// in-flight and queued work to finish, or for ctx's deadline,
// whichever comes first.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue shutdown: %w", ctx.Err())
	}
}
