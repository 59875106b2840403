package idempotent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// keyPrefix namespaces processed-file keys inside the database.
const keyPrefix = "done:"

// BadgerConfig configures a BadgerRepository.
type BadgerConfig struct {
	// Dir is where the database lives. Ignored when InMemory is set.
	Dir string

	// InMemory keeps the database off disk.
	InMemory bool

	// TTL expires keys after the given duration (0 = keep forever).
	TTL time.Duration
}

// BadgerRepository persists keys in BadgerDB so that restarts do not
// re-deliver files.
type BadgerRepository struct {
	db  *badger.DB
	ttl time.Duration
}

var _ Repository = (*BadgerRepository)(nil)

// NewBadgerRepository opens (or creates) the database described by cfg.
func NewBadgerRepository(cfg BadgerConfig) (*BadgerRepository, error) {
	if !cfg.InMemory && cfg.Dir == "" {
		return nil, fmt.Errorf("badger repository: dir is required")
	}

	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Dir, err)
	}

	return &BadgerRepository{db: db, ttl: cfg.TTL}, nil
}

func (r *BadgerRepository) Contains(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := r.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyPrefix + key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *BadgerRepository) Add(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), []byte(time.Now().UTC().Format(time.RFC3339)))
		if r.ttl > 0 {
			e = e.WithTTL(r.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (r *BadgerRepository) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
}

func (r *BadgerRepository) Close() error {
	return r.db.Close()
}
