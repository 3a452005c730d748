package reconfigure

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocfcluster/rgmd/pkg/config"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/log"
)

// Watcher polls the configuration store's version counter and runs a
// reconfigure cycle whenever it moves. Only the current leader acts on
// a version change; followers keep polling so they converge promptly
// after an election.
type Watcher struct {
	store    config.Store
	runner   *Runner
	lockMgr  lock.Manager
	interval time.Duration

	mu          sync.Mutex
	lastVersion int64

	stopCh chan struct{}
	doneCh chan struct{}
	logger zerolog.Logger
}

// NewWatcher constructs a Watcher polling store every interval.
// initialVersion is the version of the forest the process booted with,
// so a freshly started node does not immediately re-run a reconfigure
// against the configuration it just loaded.
func NewWatcher(store config.Store, runner *Runner, lockMgr lock.Manager, interval time.Duration, initialVersion int64) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{
		store:       store,
		runner:      runner,
		lockMgr:     lockMgr,
		interval:    interval,
		lastVersion: initialVersion,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      log.WithComponent("reconfigure-watcher"),
	}
}

// Start begins polling in a background goroutine.
func (w *Watcher) Start() {
	go w.run()
}

// Stop halts polling and waits for the loop to exit. An in-flight
// reconfigure cycle is allowed to finish.
func (w *Watcher) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info().Dur("interval", w.interval).Msg("configuration watcher started")

	for {
		select {
		case <-ticker.C:
			w.check()
		case <-w.stopCh:
			w.logger.Info().Msg("configuration watcher stopped")
			return
		}
	}
}

// check compares the store's version against the last one acted on.
// The mutex guards the version counter, not the cycle itself; the
// cycle's own blocking I/O runs outside it.
func (w *Watcher) check() {
	version, err := w.store.GetVersion()
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to read configuration version")
		return
	}

	w.mu.Lock()
	changed := version != w.lastVersion
	w.mu.Unlock()

	if !changed {
		return
	}
	if !w.lockMgr.IsLeader() {
		return
	}

	w.logger.Info().Int64("version", version).Msg("configuration version changed, reconfiguring")
	if err := w.runner.Reconfigure(context.Background()); err != nil {
		w.logger.Error().Err(err).Msg("reconfigure failed")
		return
	}

	w.mu.Lock()
	w.lastVersion = version
	w.mu.Unlock()
}
