package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/evanofslack/ddns-sync/internal/metrics"
)

const domainPrefix = "domain:"

type Manager interface {
	SaveRecord(ctx context.Context, record DomainRecord) error
	LoadHistory(ctx context.Context) (History, error)
	Close() error
}

type badgerManager struct {
	db      *badger.DB
	metrics *metrics.Metrics
}

func New(path string, metrics *metrics.Metrics) (Manager, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable Badger's internal logger

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db: %w", err)
	}
	m := &badgerManager{db: db, metrics: metrics}
	return m, nil
}

func (m *badgerManager) LoadHistory(ctx context.Context) (History, error) {
	history := History{
		Domains: make(map[string]DomainRecord),
	}

	err := m.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(domainPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := string(item.Key())
			domain := key[len(domainPrefix):]

			err := item.Value(func(val []byte) error {
				var record DomainRecord
				if err := json.Unmarshal(val, &record); err != nil {
					return err
				}
				history.Domains[domain] = record
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	m.metrics.IncBadgerRequest("read", err == nil)
	return history, err
}

// SaveRecord replaces the stored record for record.Domain.
func (m *badgerManager) SaveRecord(ctx context.Context, record DomainRecord) error {
	if record.Domain == "" {
		return fmt.Errorf("save record: empty domain")
	}
	data, err := json.Marshal(record)
	if err != nil {
		m.metrics.IncBadgerRequest("update", false)
		return err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(domainPrefix+record.Domain), data)
	})
	m.metrics.IncBadgerRequest("update", err == nil)
	return err
}

func (m *badgerManager) Close() error {
	return m.db.Close()
}
