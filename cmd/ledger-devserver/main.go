package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"frintab/internal/cli"
	"frintab/internal/config"
	"frintab/internal/devserver"
	"frintab/internal/gateway/memory"
	applog "frintab/internal/log"
)

func main() {
	var (
		seedFile   string
		port       string
		writeLimit int
	)
	cmd := &cobra.Command{
		Use:   "ledger-devserver",
		Short: "Serve an in-memory ledger over the REST contract",
		Long: `Serve an in-memory ledger over the REST contract for local development
and end-to-end tests. Data lives only as long as the process.

Without --seed, a demo account (demo@frintab.dev / demo) with one group is
created.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg := config.Load()
			if port == "" {
				port = cfg.DevServerPort
			}
			if seedFile == "" {
				seedFile = cfg.SeedFile
			}
			logger := cli.SetupLogger(cfg, os.Stdout, false)
			return serve(cmd.Context(), logger, ":"+port, seedFile, writeLimit)
		},
	}
	cmd.Flags().StringVar(&seedFile, "seed", "", "YAML seed file (default $FRINTAB_SEED_FILE)")
	cmd.Flags().StringVar(&port, "port", "", "listen port (default $DEVSERVER_PORT)")
	cmd.Flags().IntVar(&writeLimit, "write-limit", devserver.DefaultWriteLimit, "POST requests per client per minute")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func serve(ctx context.Context, logger *applog.Logger, addr, seedFile string, writeLimit int) error {
	store, err := memory.NewFromSeedFile(seedFile)
	if err != nil {
		return fmt.Errorf("seed store: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := devserver.NewServer(store, devserver.Options{
		Addr:       addr,
		WriteLimit: writeLimit,
		Logger:     logger,
		Registry:   reg,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", applog.FieldError, err)
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
