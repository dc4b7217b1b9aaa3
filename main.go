package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evanofslack/ddns-sync/internal/config"
	"github.com/evanofslack/ddns-sync/internal/discovery"
	"github.com/evanofslack/ddns-sync/internal/lock"
	"github.com/evanofslack/ddns-sync/internal/logger"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/provider/cloudflare"
	"github.com/evanofslack/ddns-sync/internal/reconcile"
	"github.com/evanofslack/ddns-sync/internal/state"
)

const httpTimeout = 30 * time.Second

var configPath string

var rootCmd = &cobra.Command{
	Use:          "ddns-sync",
	Short:        "Keep Cloudflare apex A records pointed at this host's public IPv4 address",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the config file")
	rootCmd.AddCommand(
		newRunCommand(),
		newDaemonCommand(),
		newVerifyCommand(),
		newStatusCommand(),
		newCheckCommand(),
	)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Reconcile every configured domain once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd.Context())
		},
	}
}

// app holds what every command shares once the config is loaded.
type app struct {
	cfg        *config.Config
	metrics    *metrics.Metrics
	httpClient *http.Client
}

func setup(register bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		return nil, err
	}
	logger.Configure(cfg.Log.Level, cfg.Log.Env)

	return &app{
		cfg:        cfg,
		metrics:    metrics.New(register),
		httpClient: &http.Client{Timeout: httpTimeout},
	}, nil
}

func (a *app) discoverer() (discovery.Discoverer, error) {
	return discovery.New(a.httpClient, discovery.Options{
		Sources:      a.cfg.Discovery.Sources,
		Timeout:      a.cfg.Discovery.Timeout,
		ValidateIPv4: a.cfg.Discovery.Validate,
		RequireOK:    a.cfg.Discovery.RequireOK,
	}, a.metrics)
}

// openHistory opens the history store. History is informational, so a store
// that cannot be opened only disables recording.
func (a *app) openHistory() state.Manager {
	sm, err := state.New(a.cfg.StatePath, a.metrics)
	if err != nil {
		slog.Warn("Failed to open history store, outcomes will not be recorded", "path", a.cfg.StatePath, "error", err)
		return nil
	}
	return sm
}

func (a *app) engine(sm state.Manager) (reconcile.Engine, error) {
	d, err := a.discoverer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize discovery: %w", err)
	}
	cf, err := cloudflare.New(a.cfg.Cloudflare, a.httpClient, a.metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DNS provider: %w", err)
	}
	rec := reconcile.NewReconciler(cf, a.cfg.Reconcile.DryRun)
	return reconcile.NewEngine(d, rec, sm, a.metrics), nil
}

// targets builds one reconcile target per configured domain, looking up zone
// ids by name for domains configured without one.
func (a *app) targets(ctx context.Context) ([]*reconcile.Target, error) {
	var zones zoneResolver
	for _, d := range a.cfg.Domains {
		if d.ZoneID == "" {
			z, err := cloudflare.NewZones(a.cfg.Cloudflare, a.httpClient)
			if err != nil {
				return nil, err
			}
			zones = z
			break
		}
	}
	return resolveTargets(ctx, a.cfg.Domains, zones)
}

type zoneResolver interface {
	ZoneID(ctx context.Context, name string) (string, error)
}

func resolveTargets(ctx context.Context, domains []config.Domain, zones zoneResolver) ([]*reconcile.Target, error) {
	targets := make([]*reconcile.Target, 0, len(domains))
	for _, d := range domains {
		zoneID := d.ZoneID
		if zoneID == "" {
			if zones == nil {
				return nil, fmt.Errorf("%w: no zone id for %s", config.ErrConfigurationMissing, d.Name)
			}
			id, err := zones.ZoneID(ctx, d.Name)
			if err != nil {
				return nil, err
			}
			zoneID = id
		}
		targets = append(targets, &reconcile.Target{ZoneID: zoneID, Domain: d.Name})
	}
	return targets, nil
}

func runOnce(ctx context.Context) error {
	a, err := setup(false)
	if err != nil {
		return err
	}

	l, err := lock.Acquire(a.cfg.LockPath)
	if err != nil {
		slog.Error("Failed to acquire run lock", "path", a.cfg.LockPath, "error", err)
		return err
	}
	defer l.Release()

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

	slog.Info("Starting ddns-sync run", "domains", len(targets), "dryrun", a.cfg.Reconcile.DryRun)
	results, err := engine.Run(ctx, targets)
	if err != nil {
		slog.Error("Run aborted", "error", err)
		return err
	}
	if failed := results.Failed(); len(failed) > 0 {
		slog.Warn("Some domains failed to reconcile", "failed", len(failed), "total", len(results.Outcomes))
	}
	return nil
}

// isLocked reports whether err means another process holds the run lock.
func isLocked(err error) bool {
	return errors.Is(err, lock.ErrLocked)
}
