package provider

import (
	"context"
	"errors"
	"strings"
)

const (
	TypeA = "A"
	// ApexName addresses the root of the zone.
	ApexName = "@"
	// AutoTTL asks the provider to pick the TTL.
	AutoTTL = 1
)

var (
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrEmptyResult         = errors.New("empty result from provider")
	ErrNoRecordFound       = errors.New("no record found")
	ErrEmptyRecordContent  = errors.New("empty record content")
	ErrMissingRecordID     = errors.New("no record id found")
	ErrUpdateRejected      = errors.New("update rejected by provider")
)

// Provider reads and writes the A records of a zone.
type Provider interface {
	// FetchRecords lists the zone's A records in provider order. A response
	// without a result list fails with ErrEmptyResult.
	FetchRecords(ctx context.Context, zoneID string) ([]RecordState, error)
	UpdateRecord(ctx context.Context, zoneID, recordID string, update RecordUpdate) error
}

// RecordState is a snapshot of one record as returned by a fetch.
// Content is nil when the provider sent none.
type RecordState struct {
	ID      string
	Content *string
}

type RecordUpdate struct {
	Type    string
	Name    string
	Content string
	TTL     int
}

// ApexUpdate is the only write this system issues.
func ApexUpdate(content string) RecordUpdate {
	return RecordUpdate{
		Type:    TypeA,
		Name:    ApexName,
		Content: content,
		TTL:     AutoTTL,
	}
}

// RejectedError carries every message the provider returned with success=false.
type RejectedError struct {
	Messages []string
}

func (e *RejectedError) Error() string {
	if len(e.Messages) == 0 {
		return ErrUpdateRejected.Error()
	}
	return ErrUpdateRejected.Error() + ": " + strings.Join(e.Messages, "; ")
}

func (e *RejectedError) Unwrap() error {
	return ErrUpdateRejected
}
