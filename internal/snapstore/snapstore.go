// Package snapstore persists determinism snapshots in an embedded BadgerDB,
// keyed by spec fingerprint.
package snapstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/marcohefti/specc/internal/canon"
	"github.com/marcohefti/specc/internal/codes"
	"github.com/marcohefti/specc/internal/determinism"
	"github.com/marcohefti/specc/internal/logging"
)

const keyPrefix = "snapshot/"

// SnapshotError is an infrastructure failure around stored snapshots.
type SnapshotError struct {
	Code    string
	Message string
}

func (e *SnapshotError) Error() string { return e.Code + ": " + e.Message }

func IsCode(err error, code string) bool {
	var se *SnapshotError
	return errors.As(err, &se) && se.Code == code
}

type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *logging.Logger
}

type Store struct {
	db *badger.DB
}

type badgerLogger struct{ l *logging.Logger }

func (b badgerLogger) Errorf(f string, a ...any)   { b.l.Error(fmt.Sprintf(f, a...)) }
func (b badgerLogger) Warningf(f string, a ...any) { b.l.Warn(fmt.Sprintf(f, a...)) }
func (b badgerLogger) Infof(f string, a ...any)    { b.l.Debug(fmt.Sprintf(f, a...)) }
func (b badgerLogger) Debugf(f string, a ...any)   { b.l.Debug(fmt.Sprintf(f, a...)) }

func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("snapshot db path is required")
		}
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create snapshot db dir %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(true)
	}
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Put stores snap. If a snapshot for the same spec already exists under the
// same ruleset and seeds and its checklist differs, nothing is written and a
// snapshot_mismatch error is returned.
func (s *Store) Put(snap determinism.Snapshot) error {
	b, err := canon.JSON(snap)
	if err != nil {
		return &SnapshotError{Code: codes.SnapshotInvalid, Message: err.Error()}
	}
	key := []byte(keyPrefix + snap.Fingerprints.Spec)
	return s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			prev, err := decode(raw)
			if err != nil {
				return err
			}
			if prev.Fingerprints.Code == snap.Fingerprints.Code && maps.Equal(prev.Seeds, snap.Seeds) && prev.Fingerprints.Items != snap.Fingerprints.Items {
				return &SnapshotError{
					Code:    codes.SnapshotMismatch,
					Message: fmt.Sprintf("stored items %s, new items %s", short(prev.Fingerprints.Items), short(snap.Fingerprints.Items)),
				}
			}
		}
		return txn.Set(key, b)
	})
}

// Get loads and verifies the snapshot recorded for a spec fingerprint.
func (s *Store) Get(specFP string) (determinism.Snapshot, error) {
	var snap determinism.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + specFP))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return &SnapshotError{Code: codes.SnapshotMissing, Message: "no snapshot for " + specFP}
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		snap, err = decode(raw)
		return err
	})
	if err != nil {
		return determinism.Snapshot{}, err
	}
	if err := snap.Verify(); err != nil {
		return determinism.Snapshot{}, &SnapshotError{Code: codes.SnapshotInvalid, Message: err.Error()}
	}
	return snap, nil
}

// List returns the stored spec fingerprints in key order.
func (s *Store) List() ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, strings.TrimPrefix(string(it.Item().Key()), keyPrefix))
		}
		return nil
	})
	return out, err
}

func decode(raw []byte) (determinism.Snapshot, error) {
	var snap determinism.Snapshot
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&snap); err != nil {
		return snap, &SnapshotError{Code: codes.SnapshotInvalid, Message: err.Error()}
	}
	return snap, nil
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
