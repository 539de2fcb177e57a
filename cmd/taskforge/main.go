package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seantiz/taskforge/internal/api"
	"github.com/seantiz/taskforge/internal/config"
	"github.com/seantiz/taskforge/internal/engine"
	"github.com/seantiz/taskforge/internal/gateway"
	"github.com/seantiz/taskforge/internal/store"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "taskforge",
		Short:        "Asynchronous agent execution service",
		Long:         "Taskforge runs agent executions against text-generation providers and streams partial results over SSE.",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newProvidersCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.ListenAddr = addr
			}
			if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
				cfg.DBPath = dbPath
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides TASKFORGE_LISTEN_ADDR)")
	cmd.Flags().String("db", "", "SQLite database path (overrides TASKFORGE_DB_PATH)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("taskforge: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	providers := newRegistry(cfg)
	for _, info := range providers.List() {
		logger.Info("provider registered", "name", info.Name, "kind", info.Kind, "configured", info.Configured)
	}

	bus := engine.NewEventBus(cfg.ReclaimGrace)
	defer bus.Close()

	eng := engine.NewEngine(db, providers, bus, logger, cfg.PersistWorkers)
	gw := gateway.New(bus, cfg.HeartbeatInterval, logger)
	srv := api.NewServer(cfg.ListenAddr, db, providers, eng, gw, logger)

	runErr := srv.Run(ctx)

	logger.Info("waiting for in-flight executions")
	eng.Wait()
	return runErr
}

func newProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers in selection order and whether they are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tCONFIGURED")
			for _, info := range newRegistry(cfg).List() {
				fmt.Fprintf(tw, "%s\t%s\t%t\n", info.Name, info.Kind, info.Configured)
			}
			return tw.Flush()
		},
	}
}
