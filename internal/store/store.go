// Comet - Analytics and Engagement SDK for Go
// Copyright 2026 Comet SDK Authors
// SPDX-License-Identifier: MIT
// https://github.com/cometsdk/comet-go

// Package store is the durable local store backing one Comet instance:
// an append-only FIFO queue of pending events (two logical tables, one for
// general events and one for profile pushes) plus a small key-value area
// for per-account state (device id, domain, mute timestamp, ARP, ...).
//
// Both live in a single BadgerDB opened under <path>/<accountID>, so the
// account suffix namespaces everything. Queue rows are keyed by a
// zero-padded per-table sequence, which makes Badger's ordered iteration
// the FIFO order and lets acknowledged batches be deleted by id prefix.
//
// Availability beats durability here: any engine-level failure drops and
// recreates the whole store rather than leaving the SDK wedged.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/cometsdk/comet-go/internal/logging"
)

// Table selects one of the two logical event queues.
type Table string

const (
	// Events holds raised/page/session events.
	Events Table = "evt"
	// ProfileEvents holds profile push events.
	ProfileEvents Table = "prof"
)

// Errors returned by the store.
var (
	ErrClosed  = errors.New("store is closed")
	ErrLowDisk = errors.New("free disk below threshold, event dropped")
)

const (
	queuePrefix = "q:"
	kvPrefix    = "kv:"
	seqPrefix   = "seq:"

	// seqBandwidth controls how many sequence ids Badger leases at once.
	// Gaps after a crash are fine; only monotonicity matters.
	seqBandwidth = 64
)

// Options configures Open.
type Options struct {
	// Path is the parent directory; the DB lives in Path/AccountID.
	Path      string
	AccountID string

	// MinFreeDiskBytes rejects queue writes when the filesystem has less
	// free space than this. 0 disables the check.
	MinFreeDiskBytes uint64

	// EntryTTL expires unsent queue rows natively in Badger.
	EntryTTL time.Duration

	// InMemory runs Badger without files. Tests only.
	InMemory bool
}

// row is the stored envelope around one queued event payload.
type row struct {
	ID        uint64          `json:"id"`
	Payload   json.RawMessage `json:"p"`
	CreatedAt time.Time       `json:"t"`
}

// Batch is one FIFO slice of pending events plus the highest row id in it,
// which the caller passes back to DeleteUpTo once the server acks the send.
type Batch struct {
	LastID   uint64
	Payloads []json.RawMessage
}

// Empty reports whether the batch holds no events.
func (b Batch) Empty() bool { return len(b.Payloads) == 0 }

// Store is the badger-backed durable store. All methods are safe for
// concurrent use, though the dispatcher serializes queue mutation anyway.
type Store struct {
	db  *badger.DB
	dir string
	opt Options

	mu     sync.RWMutex
	closed bool

	seqMu sync.Mutex
	seqs  map[Table]*badger.Sequence
}

// Open opens (or creates) the store for one account. A corrupt database is
// destroyed and recreated: pending analytics are expendable, a working SDK
// is not.
func Open(opt Options) (*Store, error) {
	if opt.AccountID == "" {
		return nil, errors.New("store: account id required")
	}

	dir := filepath.Join(opt.Path, opt.AccountID)
	db, err := openBadger(dir, opt)
	if err != nil {
		logging.Warn().Err(err).Str("dir", dir).Msg("store open failed, recreating")
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return nil, fmt.Errorf("recreate store dir: %w", rmErr)
		}
		db, err = openBadger(dir, opt)
		if err != nil {
			return nil, fmt.Errorf("open store after recreate: %w", err)
		}
	}

	s := &Store{
		db:   db,
		dir:  dir,
		opt:  opt,
		seqs: make(map[Table]*badger.Sequence),
	}
	logging.Debug().Str("dir", dir).Msg("store opened")
	return s, nil
}

func openBadger(dir string, opt Options) (*badger.DB, error) {
	var bopt badger.Options
	if opt.InMemory {
		bopt = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		bopt = badger.DefaultOptions(dir)
	}
	bopt.Logger = nil
	return badger.Open(bopt)
}

// Add appends one event payload to a table and returns its row id.
// Below the free-disk threshold the write is rejected with ErrLowDisk and
// the event is gone; callers log and move on.
func (s *Store) Add(table Table, payload json.RawMessage) (uint64, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	s.mu.RUnlock()

	if err := s.checkFreeDisk(); err != nil {
		return 0, err
	}

	id, err := s.nextID(table)
	if err != nil {
		return 0, s.engineFailure("sequence", err)
	}

	data, err := json.Marshal(&row{ID: id, Payload: payload, CreatedAt: time.Now().UTC()})
	if err != nil {
		return 0, fmt.Errorf("marshal row: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(queueKey(table, id), data)
		if s.opt.EntryTTL > 0 {
			e = e.WithTTL(s.opt.EntryTTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return 0, s.engineFailure("add", err)
	}
	return id, nil
}

// Fetch returns up to limit events from the head of a table, oldest first.
// An empty Batch means the table is drained.
func (s *Store) Fetch(table Table, limit int) (Batch, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return Batch{}, ErrClosed
	}
	s.mu.RUnlock()

	var batch Batch
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := tablePrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(batch.Payloads) < limit; it.Next() {
			var r row
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil {
				logging.Warn().Err(err).Str("key", string(it.Item().Key())).Msg("store: skipping unreadable row")
				continue
			}
			batch.Payloads = append(batch.Payloads, r.Payload)
			batch.LastID = r.ID
		}
		return nil
	})
	if err != nil {
		return Batch{}, s.engineFailure("fetch", err)
	}
	return batch, nil
}

// DeleteUpTo removes every row with id <= lastID from a table. Called after
// the server acks a batch; rows are never mutated, only prefix-deleted.
func (s *Store) DeleteUpTo(table Table, lastID uint64) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := tablePrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			id, err := idFromKey(table, key)
			if err != nil || id > lastID {
				return nil
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.engineFailure("delete", err)
	}
	return nil
}

// DeleteAll clears a whole table. Used on mute and identity switch.
func (s *Store) DeleteAll(table Table) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrClosed
	}
	s.mu.RUnlock()

	s.releaseSequences()
	if err := s.db.DropPrefix(tablePrefix(table)); err != nil {
		return s.engineFailure("drop prefix", err)
	}
	return nil
}

// PurgeExpired removes rows older than maxAge. Run opportunistically from
// the dispatcher, not on a timer; Badger's native TTL is the backstop.
func (s *Store) PurgeExpired(table Table, maxAge time.Duration) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	s.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	purged := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := tablePrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var r row
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &r)
			})
			if err != nil || r.CreatedAt.Before(cutoff) {
				if delErr := txn.Delete(it.Item().KeyCopy(nil)); delErr != nil {
					return delErr
				}
				purged++
				continue
			}
			// Rows are in insertion order; the first young row ends the sweep.
			return nil
		}
		return nil
	})
	if err != nil {
		return purged, s.engineFailure("purge", err)
	}
	return purged, nil
}

// Count returns the number of pending rows in a table.
func (s *Store) Count(table Table) (int, error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, ErrClosed
	}
	s.mu.RUnlock()

	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := tablePrefix(table)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, s.engineFailure("count", err)
	}
	return n, nil
}

// Close releases sequences and shuts the database down.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.releaseSequences()
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func (s *Store) nextID(table Table) (uint64, error) {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	seq, ok := s.seqs[table]
	if !ok {
		var err error
		seq, err = s.db.GetSequence([]byte(seqPrefix+string(table)), seqBandwidth)
		if err != nil {
			return 0, err
		}
		s.seqs[table] = seq
	}
	id, err := seq.Next()
	if err != nil {
		return 0, err
	}
	// Sequence starts at 0; row ids start at 1 so LastID==0 means "none".
	return id + 1, nil
}

func (s *Store) releaseSequences() {
	s.seqMu.Lock()
	defer s.seqMu.Unlock()
	for table, seq := range s.seqs {
		if err := seq.Release(); err != nil {
			logging.Warn().Err(err).Str("table", string(table)).Msg("store: sequence release failed")
		}
		delete(s.seqs, table)
	}
}

// engineFailure handles a storage-engine error with destructive recovery:
// every row (both tables and the KV area) is dropped and the store keeps
// serving. The original error is still returned to the caller.
func (s *Store) engineFailure(op string, err error) error {
	logging.Error().Err(err).Str("op", op).Msg("store engine failure, dropping all data")
	s.releaseSequences()
	if dropErr := s.db.DropAll(); dropErr != nil {
		logging.Error().Err(dropErr).Msg("store recovery DropAll failed")
	}
	return fmt.Errorf("store %s: %w", op, err)
}

func (s *Store) checkFreeDisk() error {
	if s.opt.MinFreeDiskBytes == 0 || s.opt.InMemory {
		return nil
	}
	free, err := freeDiskBytes(s.dir)
	if err != nil {
		// A failing probe should not block tracking.
		logging.Warn().Err(err).Msg("store: disk probe failed, skipping check")
		return nil
	}
	if free < s.opt.MinFreeDiskBytes {
		return ErrLowDisk
	}
	return nil
}

func tablePrefix(table Table) []byte {
	return []byte(queuePrefix + string(table) + ":")
}

func queueKey(table Table, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", queuePrefix, table, id))
}

func idFromKey(table Table, key []byte) (uint64, error) {
	rest := bytes.TrimPrefix(key, tablePrefix(table))
	return strconv.ParseUint(string(rest), 10, 64)
}
