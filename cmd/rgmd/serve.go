package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ocfcluster/rgmd/pkg/adminapi"
	"github.com/ocfcluster/rgmd/pkg/agent"
	"github.com/ocfcluster/rgmd/pkg/config"
	"github.com/ocfcluster/rgmd/pkg/evaluator"
	"github.com/ocfcluster/rgmd/pkg/executor"
	"github.com/ocfcluster/rgmd/pkg/forest"
	"github.com/ocfcluster/rgmd/pkg/lock"
	"github.com/ocfcluster/rgmd/pkg/log"
	"github.com/ocfcluster/rgmd/pkg/membership"
	"github.com/ocfcluster/rgmd/pkg/metrics"
	"github.com/ocfcluster/rgmd/pkg/reconfigure"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the resource group manager daemon",
	Long: `Start the rgmd daemon on this node.

The first node of a cluster is started with --bootstrap; further nodes
are started without it and added as voters by the leader.

Examples:
  # Bootstrap a single-node cluster
  rgmd serve --node-id 1 --bootstrap

  # Start a second node (add it as a voter from the leader afterwards)
  rgmd serve --node-id 2 --raft-bind 10.0.0.2:7000 --api-addr 10.0.0.2:8080`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Uint64("node-id", 1, "Numeric cluster node ID (must be unique)")
	serveCmd.Flags().String("raft-bind", "127.0.0.1:7000", "Raft bind address")
	serveCmd.Flags().String("api-addr", "127.0.0.1:8080", "Admin API listen address")
	serveCmd.Flags().String("data-dir", "/var/lib/rgmd", "Data directory for Raft and configuration state")
	serveCmd.Flags().String("agent-dir", "/usr/share/rgmd/agents", "Directory holding resource agent executables")
	serveCmd.Flags().Bool("bootstrap", false, "Bootstrap a new single-node cluster")
	serveCmd.Flags().Int("workers", 4, "Request queue worker count")
	serveCmd.Flags().Duration("eval-interval", 30*time.Second, "Periodic evaluation interval")
	serveCmd.Flags().Duration("status-interval", 60*time.Second, "Status check interval for locally owned groups")
	serveCmd.Flags().Duration("config-poll", 2*time.Second, "Configuration version poll interval")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	nodeID, _ := cmd.Flags().GetUint64("node-id")
	raftBind, _ := cmd.Flags().GetString("raft-bind")
	apiAddr, _ := cmd.Flags().GetString("api-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	agentDir, _ := cmd.Flags().GetString("agent-dir")
	bootstrap, _ := cmd.Flags().GetBool("bootstrap")
	workers, _ := cmd.Flags().GetInt("workers")
	evalInterval, _ := cmd.Flags().GetDuration("eval-interval")
	statusInterval, _ := cmd.Flags().GetDuration("status-interval")
	configPoll, _ := cmd.Flags().GetDuration("config-poll")

	logger := log.WithComponent("serve")
	logger.Info().
		Uint64("node_id", nodeID).
		Str("raft_bind", raftBind).
		Str("api_addr", apiAddr).
		Str("version", Version).
		Msg("starting rgmd")

	metrics.SetVersion(Version)

	store, err := config.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open configuration store: %w", err)
	}
	defer store.Close()
	metrics.RegisterComponent("config", true, "")

	mgr, err := lock.NewManager(&lock.Config{
		NodeID:   strconv.FormatUint(nodeID, 10),
		BindAddr: raftBind,
		DataDir:  dataDir,
	})
	if err != nil {
		return fmt.Errorf("create lock manager: %w", err)
	}
	if bootstrap {
		err = mgr.Bootstrap()
	} else {
		err = mgr.Join()
	}
	if err != nil {
		return fmt.Errorf("start raft: %w", err)
	}
	defer mgr.Shutdown()
	metrics.RegisterComponent("raft", true, "")

	f, err := forest.Build(store)
	if err != nil {
		return fmt.Errorf("load initial configuration: %w", err)
	}
	holder := forest.NewHolder(f)
	logger.Info().Int64("config_version", f.Version).Int("groups", len(f.Roots)).Msg("configuration loaded")

	src := membership.NewRaftSource()
	exec := executor.New(agent.NewExecRunner(agentDir))
	eval := evaluator.New(holder, src, mgr, exec, nodeID, workers)

	recon := reconfigure.New(store, holder, eval.Queue(), mgr, func(ctx context.Context) error {
		return eval.Evaluate(ctx, true, nodeID, true)
	})
	watcher := reconfigure.NewWatcher(store, recon, mgr, configPoll, f.Version)
	watcher.Start()
	defer watcher.Stop()

	loop := evaluator.NewLoop(eval, evalInterval, statusInterval)
	loop.Start()
	defer loop.Stop()

	collector := metrics.NewCollector(holder, mgr, mgr)
	collector.Start()
	defer collector.Stop()

	memberStop := make(chan struct{})
	defer close(memberStop)
	go syncMembership(mgr, src, memberStop)

	api := adminapi.New(holder, mgr, eval.Queue(), recon, store, store)
	apiErr := make(chan error, 1)
	go func() {
		metrics.RegisterComponent("adminapi", true, "")
		apiErr <- api.Start(apiAddr)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-apiErr:
		if err != nil {
			return fmt.Errorf("admin API: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("admin API shutdown failed")
	}
	if err := eval.Queue().Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("request queue shutdown timed out")
	}
	return nil
}

// syncMembership mirrors the Raft server configuration into the
// membership source once a second. A server present in the Raft
// configuration is a live member; a server that disappears from it has
// left. Finer-grained liveness (fencing) arrives through the source's
// own update methods when an external failure detector is wired in.
func syncMembership(mgr *lock.RaftManager, src *membership.RaftSource, stopCh chan struct{}) {
	logger := log.WithComponent("membership-sync")
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
		}

		servers, err := mgr.GetClusterServers()
		if err != nil {
			continue
		}

		seen := make(map[uint64]bool, len(servers))
		for _, server := range servers {
			id, err := strconv.ParseUint(string(server.ID), 10, 64)
			if err != nil {
				logger.Warn().Str("server_id", string(server.ID)).Msg("non-numeric raft server ID ignored")
				continue
			}
			seen[id] = true
		}

		current := make(map[uint64]bool)
		for _, m := range src.Members() {
			current[m.NodeID] = true
		}

		for id := range seen {
			if !current[id] {
				src.NodeJoined(id, strconv.FormatUint(id, 10))
			}
		}
		for id := range current {
			if !seen[id] {
				src.NodeLeft(id)
			}
		}
	}
}
