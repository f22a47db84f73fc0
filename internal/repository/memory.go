package repository

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/kjannette/stationprice/internal/models"
	"github.com/shopspring/decimal"
)

const memoryShards = 32

// MemoryAnnotationRepo is an in-process store. Identities hash onto shards
// with independent locks.
type MemoryAnnotationRepo struct {
	shards [memoryShards]memoryShard
}

type memoryShard struct {
	mu   sync.RWMutex
	rows map[string]models.Annotation
}

func NewMemoryAnnotationRepo() *MemoryAnnotationRepo {
	r := &MemoryAnnotationRepo{}
	for i := range r.shards {
		r.shards[i].rows = make(map[string]models.Annotation)
	}
	return r
}

func (r *MemoryAnnotationRepo) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &r.shards[h.Sum32()%memoryShards]
}

func (r *MemoryAnnotationRepo) Get(ctx context.Context, id models.Identity) (*models.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := id.String()
	s := r.shard(key)
	s.mu.RLock()
	a, ok := s.rows[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (r *MemoryAnnotationRepo) BulkGet(ctx context.Context, ids []models.Identity) (map[string]models.Annotation, error) {
	out := make(map[string]models.Annotation, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		key := id.String()
		s := r.shard(key)
		s.mu.RLock()
		a, ok := s.rows[key]
		s.mu.RUnlock()
		if ok {
			out[key] = a
		}
	}
	return out, nil
}

func (r *MemoryAnnotationRepo) Upsert(ctx context.Context, id models.Identity, price decimal.Decimal, ts time.Time) (*models.Annotation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := id.String()
	s := r.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.rows[key]; ok && cur.UpdatedAt.After(ts) {
		return &cur, nil
	}
	a := models.Annotation{ID: id, Price: price, UpdatedAt: ts}
	s.rows[key] = a
	return &a, nil
}

func (r *MemoryAnnotationRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored annotations.
func (r *MemoryAnnotationRepo) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.rows)
		s.mu.RUnlock()
	}
	return n
}
