package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanofslack/ddns-sync/internal/lock"
	"github.com/evanofslack/ddns-sync/internal/reconcile"
)

func newDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Reconcile on an interval and serve metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}
}

func runDaemon(ctx context.Context) error {
	a, err := setup(true)
	if err != nil {
		return err
	}

	// Set up HTTP server for metrics and health checks
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    a.cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		slog.Info("Starting metrics server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Metrics server failed", "error", err)
		}
	}()

	sm := a.openHistory()
	if sm != nil {
		defer sm.Close()
	}

	engine, err := a.engine(sm)
	if err != nil {
		slog.Error("Failed to initialize engine", "error", err)
		return err
	}
	targets, err := a.targets(ctx)
	if err != nil {
		slog.Error("Failed to resolve zones", "error", err)
		return err
	}

	slog.Info("Starting ddns-sync service", "domains", len(targets), "interval", a.cfg.SyncInterval, "dryrun", a.cfg.Reconcile.DryRun)

	wg := &sync.WaitGroup{}
	wg.Add(1)
	go runSyncLoop(ctx, wg, engine, targets, a.cfg.LockPath, a.cfg.SyncInterval)

	<-ctx.Done()
	slog.Info("Shutdown signal received")

	serverShutdownCtx, cancelServer := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelServer()
	if err := server.Shutdown(serverShutdownCtx); err != nil {
		slog.Error("Metrics server shutdown error", "error", err)
	}

	// Wait for sync loop to finish
	wg.Wait()
	slog.Info("Service shutdown complete")
	return nil
}

func runSyncLoop(ctx context.Context, wg *sync.WaitGroup, engine reconcile.Engine, targets []*reconcile.Target, lockPath string, interval time.Duration) {
	defer wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := performSync(ctx, engine, targets, lockPath); err != nil {
			slog.Error("Sync operation failed", "error", err)
		}

		select {
		case <-ticker.C:
			continue
		case <-ctx.Done():
			slog.Info("Stopping sync loop")
			return
		}
	}
}

// performSync is one independent run: discovery is repeated every tick.
func performSync(ctx context.Context, engine reconcile.Engine, targets []*reconcile.Target, lockPath string) error {
	l, err := lock.Acquire(lockPath)
	if isLocked(err) {
		slog.Warn("Another run holds the lock, skipping tick", "path", lockPath)
		return nil
	}
	if err != nil {
		return err
	}
	defer l.Release()

	slog.Info("Starting sync operation")
	results, err := engine.Run(ctx, targets)
	if err != nil {
		return err
	}
	if failed := results.Failed(); len(failed) > 0 {
		slog.Warn("Some domains failed to reconcile", "failed", len(failed), "total", len(results.Outcomes))
	}
	return nil
}
