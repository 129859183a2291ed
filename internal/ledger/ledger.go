// Package ledger persists per-object transfer state so a migration can be
// stopped and resumed without copying anything twice.
//
// The ledger is a BadgerDB directory. Each object key owns one record; pending
// records are additionally indexed by every sortable field so a scheduler can
// claim the next batch in the requested order without scanning the whole
// ledger. Any storage failure is returned as *IOError and is fatal to the run.
//
// A ledger supports exactly one writer process. Claims are not locked, so two
// schedulers working on the same directory would copy the same objects.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const (
	sequenceBandwidth = 1000
	// upsertBatchSize bounds the number of records written per transaction.
	upsertBatchSize = 256
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("ledger: record not found")

// IOError wraps a failure of the underlying store.
type IOError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

func ioErr(op string, err error) error {
	if err == nil {
		return nil
	}

	var existing *IOError
	if errors.As(err, &existing) {
		return err
	}

	return &IOError{Op: op, Err: err}
}

// Options configures Open.
type Options struct {
	// InMemory keeps the ledger in memory only. Used by tests.
	InMemory bool
}

// Ledger is the durable transfer ledger.
type Ledger struct {
	db   *badger.DB
	seq  *badger.Sequence
	path string

	// mu serializes write transactions.
	mu sync.Mutex
}

// Open opens or creates the ledger stored in the directory at path.
func Open(path string, opts Options) (*Ledger, error) {
	bopts := badger.DefaultOptions(path).WithSyncWrites(true)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}

	bopts.Logger = nil

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, ioErr("open", err)
	}

	seq, err := db.GetSequence([]byte(keySequence), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, ioErr("open sequence", err)
	}

	return &Ledger{db: db, seq: seq, path: path}, nil
}

// Path returns the directory the ledger was opened from.
func (l *Ledger) Path() string {
	return l.path
}

// Close releases the sequence lease and closes the store.
func (l *Ledger) Close() error {
	seqErr := l.seq.Release()
	dbErr := l.db.Close()

	if seqErr != nil {
		return ioErr("close", seqErr)
	}

	return ioErr("close", dbErr)
}

// UpsertIfAbsent inserts rec if its key is new. An existing record is left
// untouched and reported as inserted=false.
func (l *Ledger) UpsertIfAbsent(ctx context.Context, rec Record) (bool, error) {
	n, err := l.UpsertManyIfAbsent(ctx, []Record{rec})
	return n == 1, err
}

// UpsertManyIfAbsent applies UpsertIfAbsent to every record and returns how
// many were inserted. Records are written in bounded transactions; a failure
// leaves earlier transactions committed, which is safe because re-running the
// same input is a no-op for them.
func (l *Ledger) UpsertManyIfAbsent(ctx context.Context, recs []Record) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	inserted := 0

	for start := 0; start < len(recs); start += upsertBatchSize {
		if err := ctx.Err(); err != nil {
			return inserted, err
		}

		end := min(start+upsertBatchSize, len(recs))

		n := 0
		err := l.db.Update(func(txn *badger.Txn) error {
			n = 0
			for _, rec := range recs[start:end] {
				ok, err := l.insertTxn(txn, rec)
				if err != nil {
					return err
				}
				if ok {
					n++
				}
			}

			return nil
		})
		if err != nil {
			return inserted, ioErr("upsert", err)
		}

		inserted += n
	}

	return inserted, nil
}

func (l *Ledger) insertTxn(txn *badger.Txn, rec Record) (bool, error) {
	if rec.Key == "" {
		return false, errors.New("empty key")
	}

	rk := recordKey(rec.Key)

	_, err := txn.Get(rk)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return false, err
	}

	seq, err := l.seq.Next()
	if err != nil {
		return false, err
	}

	val, err := encodeRecord(rec, seq)
	if err != nil {
		return false, err
	}

	if err := txn.Set(rk, val); err != nil {
		return false, err
	}

	if rec.Copied {
		return true, nil
	}

	for _, ik := range indexKeys(rec, seq) {
		if err := txn.Set(ik, []byte(rec.Key)); err != nil {
			return false, err
		}
	}

	return true, nil
}

// Get returns the record for key, or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, key string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	var rec Record

	err := l.db.View(func(txn *badger.Txn) error {
		var err error
		rec, _, err = getTxn(txn, key)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return Record{}, ErrNotFound
	}

	return rec, ioErr("get", err)
}

func getTxn(txn *badger.Txn, key string) (Record, uint64, error) {
	item, err := txn.Get(recordKey(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Record{}, 0, ErrNotFound
	}
	if err != nil {
		return Record{}, 0, err
	}

	val, err := item.ValueCopy(nil)
	if err != nil {
		return Record{}, 0, err
	}

	return decodeRecord(key, val)
}

// CountPending returns the number of records not yet copied.
func (l *Ledger) CountPending(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var count int64

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPendingSeq)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}

		return nil
	})

	return count, ioErr("count pending", err)
}

// SumPendingBytes returns the total cataloged size of pending records. It
// returns nil when no pending record has a known size.
func (l *Ledger) SumPendingBytes(ctx context.Context) (*int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		sum   int64
		known bool
	)

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixPendingSize)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if size, ok := decodeSizeIndexKey(it.Item().Key()); ok {
				sum += size
				known = true
			}
		}

		return nil
	})
	if err != nil {
		return nil, ioErr("sum pending bytes", err)
	}

	if !known {
		return nil, nil
	}

	return &sum, nil
}

// ClaimBatch returns up to n pending records in the requested order. It does
// not mark them in flight; callers must finish a batch before claiming again.
func (l *Ledger) ClaimBatch(ctx context.Context, n int, order Order) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if n <= 0 {
		return nil, nil
	}

	records := make([]Record, 0, n)

	err := l.db.View(func(txn *badger.Txn) error {
		prefix := indexPrefix(order.Field)

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = order.Direction == Descending
		opts.PrefetchSize = n

		it := txn.NewIterator(opts)
		defer it.Close()

		start := prefix
		if opts.Reverse {
			start = seekPastPrefix(prefix)
		}

		keys := make([]string, 0, n)
		for it.Seek(start); it.Valid() && len(keys) < n; it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}

			keys = append(keys, string(val))
		}

		for _, key := range keys {
			rec, _, err := getTxn(txn, key)
			if err != nil {
				return fmt.Errorf("pending index points at %q: %w", key, err)
			}

			records = append(records, rec)
		}

		return nil
	})
	if err != nil {
		return nil, ioErr("claim batch", err)
	}

	return records, nil
}

// MarkCopied flags key as copied and drops it from the pending indexes.
// Marking an already copied or unknown key is a no-op.
func (l *Ledger) MarkCopied(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.db.Update(func(txn *badger.Txn) error {
		rec, seq, err := getTxn(txn, key)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if rec.Copied {
			return nil
		}

		rec.Copied = true

		val, err := encodeRecord(rec, seq)
		if err != nil {
			return err
		}

		if err := txn.Set(recordKey(key), val); err != nil {
			return err
		}

		for _, ik := range indexKeys(rec, seq) {
			if err := txn.Delete(ik); err != nil {
				return err
			}
		}

		return nil
	})

	return ioErr("mark copied", err)
}

// Scan calls fn for every record in key order. Iteration stops at the first
// error returned by fn, which is passed through unwrapped.
func (l *Ledger) Scan(ctx context.Context, fn func(Record) error) error {
	var fnErr error

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixRecord)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				fnErr = err
				return nil
			}

			item := it.Item()
			key := string(item.Key()[len(prefixRecord):])

			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			rec, _, err := decodeRecord(key, val)
			if err != nil {
				return err
			}

			if err := fn(rec); err != nil {
				fnErr = err
				return nil
			}
		}

		return nil
	})
	if err != nil {
		return ioErr("scan", err)
	}

	return fnErr
}

// Summary is an overview of the ledger contents.
type Summary struct {
	Total        int64  `json:"total" yaml:"total"`
	Pending      int64  `json:"pending" yaml:"pending"`
	Copied       int64  `json:"copied" yaml:"copied"`
	PendingBytes *int64 `json:"pending_bytes,omitempty" yaml:"pending_bytes,omitempty"`
	CopiedBytes  int64  `json:"copied_bytes" yaml:"copied_bytes"`
}

// Summary scans every record and aggregates counts and sizes.
func (l *Ledger) Summary(ctx context.Context) (Summary, error) {
	var (
		s            Summary
		pendingBytes int64
		pendingSized bool
	)

	err := l.Scan(ctx, func(rec Record) error {
		s.Total++

		if rec.Copied {
			s.Copied++
			s.CopiedBytes += rec.SizeOrZero()

			return nil
		}

		s.Pending++

		if rec.Size != nil {
			pendingBytes += *rec.Size
			pendingSized = true
		}

		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	if pendingSized {
		s.PendingBytes = &pendingBytes
	}

	return s, nil
}
