package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/mirror/pkg/authsync"
	"github.com/cuemby/mirror/pkg/config"
	"github.com/cuemby/mirror/pkg/coordinator"
	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/health"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/reconciler"
	"github.com/cuemby/mirror/pkg/replicator"
	"github.com/cuemby/mirror/pkg/schema"
	"github.com/cuemby/mirror/pkg/state"
	"github.com/spf13/cobra"
)

// Build information, injected at link time.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "mirror",
		Short: "Active/standby replication engine for document stores and auth directories",
		Long: `mirror keeps a standby project continuously in sync with a primary:
documents flow collection by collection on updatedAt watermarks, users
flow with their password hashes intact, and a recovery mode copies
standby changes back after a failover.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to YAML config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(recoverCmd())
	rootCmd.AddCommand(reconcileCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mirror %s (commit %s, built %s)\n", Version, Commit, BuildTime)
		},
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		return config.LoadWithFile(configFile)
	}
	return config.Load()
}

// engine is the wired core shared by serve and the one-shot commands.
type engine struct {
	cfg     *config.Config
	gw      *gateway.Gateways
	store   *state.Store
	broker  *events.Broker
	monitor *health.Monitor
	coord   *coordinator.Coordinator
}

func buildEngine(ctx context.Context) (*engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	gw, err := gateway.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := state.New(statsPath(cfg))
	if err := store.Load(); err != nil {
		gw.Close()
		return nil, err
	}

	hash, err := cfg.Hash.Params()
	if err != nil {
		gw.Close()
		return nil, err
	}

	broker := events.NewBroker()
	broker.Start()
	monitor := health.NewMonitor(gw, broker, time.Duration(cfg.HealthProbeIntervalSeconds)*time.Second)

	coord := coordinator.New(coordinator.Deps{
		Gateways:   gw,
		Store:      store,
		Broker:     broker,
		Health:     monitor,
		Replicator: replicator.New(gw, store, broker, monitor, cfg.BatchSize),
		AuthSync:   authsync.New(gw, store, broker, hash),
		Reconciler: reconciler.New(gw, broker),
		Schema:     schema.NewTracker(broker),
	})

	return &engine{
		cfg:     cfg,
		gw:      gw,
		store:   store,
		broker:  broker,
		monitor: monitor,
		coord:   coord,
	}, nil
}

func (e *engine) close() {
	e.broker.Stop()
	e.gw.Close()
}

func statsPath(cfg *config.Config) string {
	return cfg.DataDir + "/stats.json"
}

func journalPath(cfg *config.Config) string {
	return cfg.DataDir + "/events.db"
}
