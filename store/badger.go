// Package store persists the checkpoint history in BadgerDB so checkpoint
// numbering and contents survive a restart of the authority.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/burntcarrot/pairboard/checkpoint"
)

// ErrExists is returned when appending a checkpoint number that is already stored.
var ErrExists = errors.New("checkpoint already stored")

const keyPrefix = "checkpoint/"

// Config holds configuration for the checkpoint store.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	// SyncWrites fsyncs every append.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil, they are discarded.
	Logger logrus.FieldLogger
}

// BadgerStore is a checkpoint.Store backed by BadgerDB.
type BadgerStore struct {
	db *badger.DB
}

// Open opens the store described by cfg. The caller must Close it.
func Open(cfg Config) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent checkpoint store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(cfg.Logger)
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenInMemory opens a store that lives only as long as the process.
func OpenInMemory() (*BadgerStore, error) {
	return Open(Config{InMemory: true})
}

// Append stores r. Stored checkpoints are never overwritten.
func (s *BadgerStore) Append(ctx context.Context, r checkpoint.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode checkpoint %d: %w", r.Number, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		k := key(r.Number)
		if _, err := txn.Get(k); err == nil {
			return fmt.Errorf("%w: %d", ErrExists, r.Number)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(k, value)
	})
}

// Load returns every stored checkpoint in number order.
func (s *BadgerStore) Load(ctx context.Context) ([]checkpoint.Record, error) {
	var records []checkpoint.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r checkpoint.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// key zero-pads the number so lexical key order is numeric order.
func key(n int) []byte {
	return []byte(fmt.Sprintf("%s%010d", keyPrefix, n))
}
