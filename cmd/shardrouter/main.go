// Command shardrouter runs the cluster's routing tier: it tracks each
// namespace's canonical chunk-version table (the config server's role in
// spec §4.C), runs the periodic balancer (spec §4.E), and owns the
// cursor-id cache behind killCursors (spec §4.D).
package main

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shardset/shardset/pkg/balancer"
	"github.com/shardset/shardset/pkg/cursor"
	"github.com/shardset/shardset/pkg/distlock"
	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/log"
	"github.com/shardset/shardset/pkg/metrics"
	"github.com/shardset/shardset/pkg/rpc"
	"github.com/shardset/shardset/pkg/storage"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "shardrouter",
		Short: "Runs the shardset routing and balancing tier",
		RunE:  runStart,
	}
	root.Flags().String("data-dir", "./shardrouter-data", "Data directory for the config-server store")
	root.Flags().String("bind", "127.0.0.1:27017", "Address to serve the router RPC on")
	root.Flags().String("shards", "", "Comma-separated shardID=host:port list")
	root.Flags().String("namespaces", "", "Comma-separated namespaces the balancer tracks")
	root.Flags().Int64("balance-threshold", 3, "Chunk-version gap that triggers a migration")
	root.Flags().Duration("cursor-idle-timeout", 10*time.Minute, "How long an outstanding cursor may go untouched before reclaim")
	root.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.Flags().Bool("log-json", false, "Output logs in JSON format")
	root.Flags().String("metrics-addr", "127.0.0.1:9091", "Address to serve /metrics and health endpoints on")
	return root
}

func parseShards(spec string) (map[string]endpoint.Endpoint, error) {
	shards := make(map[string]endpoint.Endpoint)
	if spec == "" {
		return shards, nil
	}
	for _, pair := range strings.Split(spec, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid --shards entry %q, want id=host:port", pair)
		}
		ep, err := endpoint.Parse(parts[1])
		if err != nil {
			return nil, fmt.Errorf("parse shard %q: %w", parts[0], err)
		}
		shards[parts[0]] = ep
	}
	return shards, nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runStart(cmd *cobra.Command, _ []string) error {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	bind, _ := cmd.Flags().GetString("bind")
	shardsSpec, _ := cmd.Flags().GetString("shards")
	namespacesSpec, _ := cmd.Flags().GetString("namespaces")
	threshold, _ := cmd.Flags().GetInt64("balance-threshold")
	cursorIdleTimeout, _ := cmd.Flags().GetDuration("cursor-idle-timeout")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	log.Init(log.Config{Level: log.Level(logLevel), JSONOutput: logJSON})
	logger := log.WithComponent("shardrouter")

	shards, err := parseShards(shardsSpec)
	if err != nil {
		return err
	}
	namespaces := splitNonEmpty(namespacesSpec)
	shardIDs := make([]string, 0, len(shards))
	for id := range shards {
		shardIDs = append(shardIDs, id)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	bindEp, err := endpoint.Parse(bind)
	if err != nil {
		return fmt.Errorf("parse bind address: %w", err)
	}
	myid := distlock.NewOwnerID(bindEp, time.Now())
	lock := distlock.New(store, "balancer", myid)

	pool := rpc.NewClientPool()
	defer pool.Close()

	tracker := newVersionTracker(store)
	rpcExecutor := &balancer.RPCExecutor{Pool: pool, Shards: shards, ConfigServer: bind, NextVersion: tracker.next}
	executor := &trackingExecutor{inner: rpcExecutor, tracker: tracker}
	policy := balancer.RoundRobinPolicy{Threshold: threshold}
	snapshot := func() map[string][]balancer.ShardSnapshot { return tracker.snapshot(namespaces, shardIDs) }

	bal := balancer.New(lock, snapshot, policy, executor)
	bal.Start()
	defer bal.Stop()

	cache := cursor.NewCache()
	sweepStop := make(chan struct{})
	go sweepLoop(cache, cursorIdleTimeout, sweepStop)
	defer close(sweepStop)

	handler := &routerHandler{cache: cache}
	server := rpc.NewServer(handler)

	lis, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", bind, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	logger.Info().Str("addr", bind).Int("shards", len(shards)).Int("namespaces", len(namespaces)).Msg("serving router RPC")

	metrics.SetCriticalComponents([]string{"storage", "balancer"})
	metrics.RegisterComponent("storage", true, "open")
	metrics.RegisterComponent("balancer", true, "started")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	logger.Info().Str("addr", metricsAddr).Msg("serving metrics and health endpoints")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info().Msg("shutting down")
	case err := <-errCh:
		logger.Error().Err(err).Msg("router RPC server failed")
	}

	server.Stop()
	_ = metricsSrv.Close()
	return nil
}

func sweepLoop(cache *cursor.Cache, idleTimeout time.Duration, stop chan struct{}) {
	logger := log.WithComponent("shardrouter.cursor")
	ticker := time.NewTicker(idleTimeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			reclaimed := cache.Sweep(time.Now().Add(-idleTimeout))
			if len(reclaimed) > 0 {
				logger.Warn().Int("count", len(reclaimed)).Msg("reclaimed abandoned cursors")
			}
		case <-stop:
			return
		}
	}
}
