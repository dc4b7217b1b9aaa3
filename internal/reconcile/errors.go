package reconcile

import (
	"errors"

	"github.com/evanofslack/ddns-sync/internal/provider"
)

var classes = []struct {
	err   error
	label string
}{
	{provider.ErrProviderUnreachable, "provider_unreachable"},
	{provider.ErrEmptyResult, "empty_result"},
	{provider.ErrNoRecordFound, "no_record_found"},
	{provider.ErrEmptyRecordContent, "empty_record_content"},
	{provider.ErrMissingRecordID, "missing_record_id"},
	{provider.ErrUpdateRejected, "update_rejected"},
	{errPanic, "internal"},
}

// Classify maps a reconciliation error to a stable label for logs and metrics.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range classes {
		if errors.Is(err, c.err) {
			return c.label
		}
	}
	return "unknown"
}
