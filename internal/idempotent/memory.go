package idempotent

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository keeps keys in process memory. Entries expire after TTL
// when it is positive.
type MemoryRepository struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]time.Time
	now  func() time.Time
}

var _ Repository = (*MemoryRepository)(nil)

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(ttl time.Duration) *MemoryRepository {
	return &MemoryRepository{
		ttl:  ttl,
		keys: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (r *MemoryRepository) Contains(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	added, ok := r.keys[key]
	if !ok {
		return false, nil
	}
	if r.ttl > 0 && r.now().Sub(added) > r.ttl {
		delete(r.keys, key)
		return false, nil
	}
	return true, nil
}

func (r *MemoryRepository) Add(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	r.keys[key] = r.now()
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.keys, key)
	r.mu.Unlock()
	return nil
}

// Len returns the number of keys held, expired or not.
func (r *MemoryRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func (r *MemoryRepository) Close() error {
	return nil
}
