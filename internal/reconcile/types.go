package reconcile

import (
	"time"

	"github.com/evanofslack/ddns-sync/internal/discovery"
)

type Status string

const (
	StatusNoop    Status = "noop"
	StatusUpdated Status = "updated"
	StatusFailed  Status = "failed"
)

// Target is one zone to reconcile. RecordID is rewritten by every fetch.
type Target struct {
	ZoneID   string
	Domain   string
	RecordID string
}

type Outcome struct {
	Domain   string
	ZoneID   string
	Status   Status
	Address  discovery.Address
	Previous string
	DryRun   bool
	Err      error
	Duration time.Duration
}

func (o Outcome) Reason() string {
	return Classify(o.Err)
}

// Results holds one outcome per target, in target order.
type Results struct {
	Address  discovery.Address
	Outcomes []Outcome
}

func (r Results) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Status == StatusFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

func (r Results) Count(status Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
