package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/evanofslack/ddns-sync/internal/discovery"
	"github.com/evanofslack/ddns-sync/internal/metrics"
	"github.com/evanofslack/ddns-sync/internal/state"
)

var errPanic = errors.New("reconcile panicked")

type Engine interface {
	Run(ctx context.Context, targets []*Target) (Results, error)
}

type engine struct {
	discoverer   discovery.Discoverer
	reconciler   *Reconciler
	stateManager state.Manager
	metrics      *metrics.Metrics
}

// NewEngine wires the orchestrator. sm may be nil to skip recording history.
func NewEngine(d discovery.Discoverer, rec *Reconciler, sm state.Manager, metrics *metrics.Metrics) *engine {
	return &engine{
		discoverer:   d,
		reconciler:   rec,
		stateManager: sm,
		metrics:      metrics,
	}
}

// Run discovers the public address once, then reconciles every target
// concurrently. Only a discovery failure is returned as an error; per-domain
// failures are reported in Results.
func (e *engine) Run(ctx context.Context, targets []*Target) (Results, error) {
	start := time.Now()
	defer func() {
		e.metrics.SetRunDuration(time.Since(start))
	}()

	addr, err := e.discoverer.Discover(ctx)
	if err != nil {
		e.metrics.IncRun(false)
		return Results{}, fmt.Errorf("discover address: %w", err)
	}
	slog.Info("Ip obtained", "ip", addr)

	outcomes := make([]Outcome, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t *Target) {
			defer wg.Done()
			outcomes[i] = e.reconcileIsolated(ctx, t, addr)
		}(i, t)
	}
	wg.Wait()

	for _, o := range outcomes {
		e.report(ctx, o)
	}

	results := Results{Address: addr, Outcomes: outcomes}
	e.metrics.IncRun(true)
	slog.Info("Run completed",
		"domains", len(outcomes),
		"noop", results.Count(StatusNoop),
		"updated", results.Count(StatusUpdated),
		"failed", results.Count(StatusFailed),
		"duration", time.Since(start))
	return results, nil
}

// reconcileIsolated keeps a panic in one domain from taking down the others.
func (e *engine) reconcileIsolated(ctx context.Context, t *Target, addr discovery.Address) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{
				Domain:  t.Domain,
				ZoneID:  t.ZoneID,
				Address: addr,
				Status:  StatusFailed,
				Err:     fmt.Errorf("%w: %s: %v", errPanic, t.Domain, r),
			}
		}
	}()
	return e.reconciler.Reconcile(ctx, t, addr)
}

func (e *engine) report(ctx context.Context, o Outcome) {
	reason := o.Reason()
	e.metrics.IncOutcome(o.Domain, string(o.Status), reason)

	if o.Status == StatusFailed {
		slog.Error("Failed to reconcile domain", "domain", o.Domain, "reason", reason, "error", o.Err)
	}

	if e.stateManager == nil {
		return
	}
	record := state.DomainRecord{
		Domain:    o.Domain,
		Status:    string(o.Status),
		Address:   string(o.Address),
		Previous:  o.Previous,
		Reason:    reason,
		DryRun:    o.DryRun,
		CheckedAt: time.Now().Unix(),
	}
	if o.Err != nil {
		record.Error = o.Err.Error()
	}
	if err := e.stateManager.SaveRecord(ctx, record); err != nil {
		slog.Warn("Failed to record outcome", "domain", o.Domain, "error", err)
	}
}
