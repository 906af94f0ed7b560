// Package feedback persists the engine's learning surface: the append-only
// retrieval failure log and the tuner's bandit state. Both live in a local
// Badger keyspace so a restart resumes learning where it stopped.
package feedback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/fusemem/fusemem/pkg/retrieval"
)

// Config holds store configuration.
type Config struct {
	Path       string
	SyncWrites bool

	// FailureTTL expires failure log entries. Zero keeps them forever.
	FailureTTL time.Duration
}

// StorageUnavailableError reports that the underlying store cannot be
// reached or opened.
type StorageUnavailableError struct {
	Cause error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("feedback: storage unavailable: %v", e.Cause)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Cause }

// SerializationError reports a failed encode/decode.
type SerializationError struct {
	Operation string
	Cause     error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("feedback: %s failed: %v", e.Operation, e.Cause)
}

func (e *SerializationError) Unwrap() error { return e.Cause }

// Store is the Badger-backed feedback store. It implements
// retrieval.FailureSink and retrieval.StateStore.
type Store struct {
	db  *badger.DB
	cfg Config
}

// NewStore opens the store at cfg.Path.
func NewStore(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Path)
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &StorageUnavailableError{Cause: err}
	}
	return &Store{db: db, cfg: cfg}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key layout. Failure keys embed the timestamp so a prefix iteration walks
// the log in chronological order.
func failureKey(ts time.Time, id string) []byte {
	return []byte(fmt.Sprintf("failure:%020d:%s", ts.UnixNano(), id))
}

const banditStateKey = "bandit:state"

func serialize(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, &SerializationError{Operation: "marshal", Cause: err}
	}
	return data, nil
}

func deserialize(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &SerializationError{Operation: "unmarshal", Cause: err}
	}
	return nil
}

// AppendFailure implements retrieval.FailureSink. Events are immutable once
// written; the log is append-only.
func (s *Store) AppendFailure(ctx context.Context, ev retrieval.FailureEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := serialize(ev)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(failureKey(ev.Timestamp, ev.ID), data)
		if s.cfg.FailureTTL > 0 {
			entry = entry.WithTTL(s.cfg.FailureTTL)
		}
		return txn.SetEntry(entry)
	})
}

// ListFailures returns up to limit failure events, newest first, optionally
// filtered by classification label.
func (s *Store) ListFailures(ctx context.Context, limit int, label retrieval.Label) ([]retrieval.FailureEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	var events []retrieval.FailureEvent
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte("failure:")
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the end of the prefix range.
		seek := append([]byte("failure:"), 0xFF)
		for it.Seek(seek); it.Valid() && len(events) < limit; it.Next() {
			var ev retrieval.FailureEvent
			if err := it.Item().Value(func(val []byte) error {
				return deserialize(val, &ev)
			}); err != nil {
				return err
			}
			if label != "" && ev.Classification.Label != label {
				continue
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// CountFailures returns the number of stored failure events.
func (s *Store) CountFailures(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte("failure:")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// SaveBanditState implements retrieval.StateStore.
func (s *Store) SaveBanditState(ctx context.Context, state retrieval.BanditState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := serialize(state)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(banditStateKey), data)
	})
}

// LoadBanditState implements retrieval.StateStore. A missing state returns
// (nil, nil): a fresh deployment starts from the prior.
func (s *Store) LoadBanditState(ctx context.Context) (*retrieval.BanditState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var state *retrieval.BanditState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(banditStateKey))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded retrieval.BanditState
			if err := deserialize(val, &decoded); err != nil {
				return err
			}
			state = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// RunGC triggers Badger's value log garbage collection once. Callers run it
// on a timer; an ErrNoRewrite result is normal and swallowed.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}
