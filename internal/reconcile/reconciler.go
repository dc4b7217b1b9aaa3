package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evanofslack/ddns-sync/internal/discovery"
	"github.com/evanofslack/ddns-sync/internal/provider"
)

// Reconciler keeps the apex A record of one zone pointed at an address.
type Reconciler struct {
	dnsProvider provider.Provider
	dryRun      bool
}

func NewReconciler(dp provider.Provider, dryRun bool) *Reconciler {
	return &Reconciler{
		dnsProvider: dp,
		dryRun:      dryRun,
	}
}

// Reconcile fetches the target's A record, compares it with addr and patches
// it when they differ. It makes at most one read and one write.
func (r *Reconciler) Reconcile(ctx context.Context, target *Target, addr discovery.Address) Outcome {
	start := time.Now()
	logger := slog.With("domain", target.Domain, "zone", target.ZoneID)
	out := Outcome{
		Domain:  target.Domain,
		ZoneID:  target.ZoneID,
		Address: addr,
	}

	current, err := r.fetch(ctx, target)
	if err != nil {
		return r.fail(out, start, fmt.Errorf("check %s: %w", target.Domain, err))
	}
	out.Previous = current
	logger.Info("A record fetched", "content", current)

	if current == string(addr) {
		logger.Info("Records matched")
		out.Status = StatusNoop
		out.Duration = time.Since(start)
		return out
	}

	if r.dryRun {
		logger.Info("Dry run mode - would update record", "from", current, "to", addr)
		out.Status = StatusUpdated
		out.DryRun = true
		out.Duration = time.Since(start)
		return out
	}

	logger.Info("Updating record", "from", current, "to", addr)
	if target.RecordID == "" {
		return r.fail(out, start, fmt.Errorf("update %s: %w", target.Domain, provider.ErrMissingRecordID))
	}
	if err := r.dnsProvider.UpdateRecord(ctx, target.ZoneID, target.RecordID, provider.ApexUpdate(string(addr))); err != nil {
		return r.fail(out, start, fmt.Errorf("update %s: %w", target.Domain, err))
	}

	logger.Info("Updated record", "address", addr)
	out.Status = StatusUpdated
	out.Duration = time.Since(start)
	return out
}

// fetch reads the zone's A records, remembers the first record's id on the
// target and returns its content. Records after the first are ignored.
func (r *Reconciler) fetch(ctx context.Context, target *Target) (string, error) {
	target.RecordID = ""

	records, err := r.dnsProvider.FetchRecords(ctx, target.ZoneID)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", provider.ErrNoRecordFound
	}
	if len(records) > 1 {
		slog.Warn("Multiple A records found, only the first is reconciled", "domain", target.Domain, "count", len(records))
	}

	first := records[0]
	target.RecordID = first.ID
	if first.Content == nil {
		return "", provider.ErrEmptyRecordContent
	}
	return *first.Content, nil
}

func (r *Reconciler) fail(out Outcome, start time.Time, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	out.Duration = time.Since(start)
	return out
}
