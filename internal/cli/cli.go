// ============================================================================
// Aegis CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: thin command line entry point over the runtime supervisor.
// Not a front end in its own right; it only
// exercises run/status/reload against an assembled Supervisor.
//
// Command Structure:
//   aegis                     # Root command
//   ├── run                   # Start the runtime and block until signaled
//   │   └── --config, -c      # Specify config file
//   ├── status                # View pool status snapshot
//   └── reload <model>        # Reload one model's pool
//
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aegis-run/poolrt/internal/config"
	"github.com/aegis-run/poolrt/internal/metrics"
	"github.com/aegis-run/poolrt/internal/runtime"
	"github.com/aegis-run/poolrt/pkg/types"
)

var log = slog.Default()

var configFile string

// BuildCLI assembles the aegis command tree.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "aegis",
		Short:   "Aegis: a per-model worker pool runtime",
		Long:    "Aegis hosts hot-reloadable, sandboxed model worker pools behind a port event router.",
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (defaults to built-in defaults)")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())
	rootCmd.AddCommand(buildReloadCommand())

	return rootCmd
}

func loadSupervisor(ctx context.Context) (*config.Config, *runtime.Supervisor, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("cli: load config: %w", err)
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector()
	}

	sup := runtime.New(ctx, cfg, runtime.DefaultExecutorFactory(), collector)
	return cfg, sup, nil
}

func buildRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the Aegis runtime",
		Long:  "Assemble the pool registry, port router and mesh, start the metrics server if enabled, and block until signaled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSystem(cmd.Context())
		},
	}
}

func runSystem(ctx context.Context) error {
	cfg, sup, err := loadSupervisor(ctx)
	if err != nil {
		return err
	}
	defer sup.Close()

	if cfg.Metrics.Enabled {
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	log.Info("aegis runtime started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("received shutdown signal, stopping")
	return nil
}

func buildStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pool status",
		Long:  "Display each deployed model's ThreadPool status: state, thread counts, queue rate.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus(cmd.Context())
		},
	}
}

func showStatus(ctx context.Context) error {
	_, sup, err := loadSupervisor(ctx)
	if err != nil {
		return err
	}
	defer sup.Close()

	statuses := sup.Statuses(ctx)
	if len(statuses) == 0 {
		fmt.Println("No pools are currently live.")
		return nil
	}

	fmt.Println("Model       State     Total  Free  Queued  QueueRate%  Reloads")
	for model, st := range statuses {
		fmt.Printf("%-11s %-9s %-6d %-5d %-7d %-11d %d\n",
			model, st.State, st.TotalThreads, st.FreeThreads, st.WaitingJobs, st.QueueRatePercent, st.Reloads)
	}
	return nil
}

func buildReloadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reload <model>",
		Short: "Reload one model's pool",
		Long:  "Close, drain, stop and restart the named model's Threads, then reopen the pool.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reloadModel(cmd.Context(), types.ModelName(args[0]))
		},
	}
	return cmd
}

func reloadModel(ctx context.Context, model types.ModelName) error {
	_, sup, err := loadSupervisor(ctx)
	if err != nil {
		return err
	}
	defer sup.Close()

	pool, err := sup.Registry.GetThreadPool(ctx, model)
	if err != nil {
		return fmt.Errorf("cli: get pool for %s: %w", model, err)
	}
	if err := pool.Reload(ctx); err != nil {
		return fmt.Errorf("cli: reload %s: %w", model, err)
	}

	fmt.Printf("Reloaded pool %s\n", model)
	return nil
}
