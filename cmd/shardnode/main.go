// Command shardnode runs a single shard member: the replica-set
// coordinator (spec §4.F), the per-namespace shard-version gate (spec
// §4.C), and the planQuery dispatch op (spec §4.B), all served over one
// rpc.Server.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shardset/shardset/pkg/config"
	"github.com/shardset/shardset/pkg/endpoint"
	"github.com/shardset/shardset/pkg/log"
	"github.com/shardset/shardset/pkg/metrics"
	"github.com/shardset/shardset/pkg/replset"
	"github.com/shardset/shardset/pkg/rpc"
	"github.com/shardset/shardset/pkg/shardversion"
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
		Use:   "shardnode",
		Short: "Runs a shardset shard member",
		RunE:  runStart,
	}
	root.Flags().String("config", "", "Path to a YAML config file")
	root.Flags().String("set", "", "Replica set name")
	root.Flags().String("seeds", "", "Comma-separated seed member host:port list")
	root.Flags().String("data-dir", "./shardnode-data", "Data directory for this member's store")
	root.Flags().String("bind", "127.0.0.1:27018", "Address to serve the node RPC on")
	root.Flags().String("config-server", "", "This member's identity as recorded by the config server")
	root.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.Flags().Bool("log-json", false, "Output logs in JSON format")
	root.Flags().String("metrics-addr", "127.0.0.1:9090", "Address to serve /metrics and health endpoints on")
	return root
}

func runStart(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logJSON, _ := cmd.Flags().GetBool("log-json")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	base := config.Config{}
	base.Set, _ = cmd.Flags().GetString("set")
	base.Seeds, _ = cmd.Flags().GetString("seeds")
	base.DataDir, _ = cmd.Flags().GetString("data-dir")
	base.Bind, _ = cmd.Flags().GetString("bind")
	base.ConfigServer, _ = cmd.Flags().GetString("config-server")
	base.LogLevel = logLevel
	base.LogJSON = logJSON

	cfg, err := config.Load(configPath, base)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})
	logger := log.WithComponent("shardnode")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	bindEp, err := endpoint.Parse(cfg.Bind)
	if err != nil {
		return fmt.Errorf("parse bind address: %w", err)
	}
	identity := endpoint.NewIdentity(bindEp.Port(), bindEp.Host())

	pool := rpc.NewClientPool()
	defer pool.Close()

	rs := replset.NewReplSet(identity, store, &wallClockOpLog{}, &rpc.HeartbeatClientAdapter{Pool: pool})
	nodeState := shardversion.NewNodeState(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rs.Start(ctx, cfg.Seeds); err != nil {
		return fmt.Errorf("start replica set: %w", err)
	}

	handler := &nodeHandler{rs: rs, store: store, nodeState: nodeState}
	server := rpc.NewServer(handler)

	lis, err := net.Listen("tcp", cfg.Bind)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Bind, err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(lis); err != nil {
			errCh <- err
		}
	}()
	logger.Info().Str("addr", cfg.Bind).Msg("serving node RPC")

	collector := metrics.NewCollector(rs, cfg.Set)
	collector.Start()
	defer collector.Stop()

	metrics.SetCriticalComponents([]string{"replset", "storage"})
	metrics.RegisterComponent("replset", true, "started")
	metrics.RegisterComponent("storage", true, "open")

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
		logger.Error().Err(err).Msg("node RPC server failed")
	}

	cancel()
	server.Stop()
	_ = metricsSrv.Close()
	return nil
}
