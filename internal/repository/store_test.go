package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kjannette/stationprice/internal/models"
	"github.com/kjannette/stationprice/internal/repository"
	"github.com/kjannette/stationprice/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type store interface {
	Get(ctx context.Context, id models.Identity) (*models.Annotation, error)
	BulkGet(ctx context.Context, ids []models.Identity) (map[string]models.Annotation, error)
	Upsert(ctx context.Context, id models.Identity, price decimal.Decimal, ts time.Time) (*models.Annotation, error)
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// t0 is truncated to microseconds so Postgres round-trips compare equal.
var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func exerciseStore(t *testing.T, s store) {
	ctx := context.Background()

	t.Run("get miss is ErrNotFound", func(t *testing.T) {
		_, err := s.Get(ctx, models.FeedIdentity(999))
		require.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("upsert is idempotent on price", func(t *testing.T) {
		id := models.FeedIdentity(1)
		_, err := s.Upsert(ctx, id, price("3.79"), t0)
		require.NoError(t, err)
		a, err := s.Upsert(ctx, id, price("3.79"), t0.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, a.Price.Equal(price("3.79")))
		assert.True(t, a.UpdatedAt.Equal(t0.Add(time.Minute)))

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Price.Equal(price("3.79")))
		assert.True(t, got.UpdatedAt.Equal(t0.Add(time.Minute)))
	})

	t.Run("last write wins", func(t *testing.T) {
		id := models.FeedIdentity(2)
		_, err := s.Upsert(ctx, id, price("3.00"), t0)
		require.NoError(t, err)
		_, err = s.Upsert(ctx, id, price("3.50"), t0.Add(time.Second))
		require.NoError(t, err)

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Price.Equal(price("3.50")), "got %s", got.Price)
	})

	t.Run("stale write keeps newer row", func(t *testing.T) {
		id := models.FeedIdentity(3)
		_, err := s.Upsert(ctx, id, price("4.10"), t0.Add(time.Hour))
		require.NoError(t, err)
		a, err := s.Upsert(ctx, id, price("2.00"), t0)
		require.NoError(t, err)
		assert.True(t, a.Price.Equal(price("4.10")))
	})

	t.Run("bulk get omits missing identities", func(t *testing.T) {
		a := models.DerivedIdentity(models.Coordinate{Lat: 10, Lon: 10})
		b := models.DerivedIdentity(models.Coordinate{Lat: 11, Lon: 11})
		c := models.FeedIdentity(12345)
		_, err := s.Upsert(ctx, a, price("1.25"), t0)
		require.NoError(t, err)

		got, err := s.BulkGet(ctx, []models.Identity{a, b, c})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.True(t, got[a.String()].Price.Equal(price("1.25")))
		assert.Equal(t, a, got[a.String()].ID)
	})

	t.Run("bulk get of nothing", func(t *testing.T) {
		got, err := s.BulkGet(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("concurrent writes to distinct identities", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Upsert(ctx, models.FeedIdentity(int64(1000+i)), price(fmt.Sprintf("%d.5", i+1)), t0)
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		ids := make([]models.Identity, 50)
		for i := range ids {
			ids[i] = models.FeedIdentity(int64(1000 + i))
		}
		got, err := s.BulkGet(ctx, ids)
		require.NoError(t, err)
		assert.Len(t, got, 50)
	})

	t.Run("concurrent writes to one identity keep a submitted value", func(t *testing.T) {
		id := models.FeedIdentity(4)
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := s.Upsert(ctx, id, price(fmt.Sprintf("%d.00", i+1)), t0.Add(time.Duration(i)*time.Second))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		got, err := s.Get(ctx, id)
		require.NoError(t, err)
		assert.True(t, got.Price.Equal(price("20.00")), "newest timestamp must win, got %s", got.Price)
	})
}

func TestMemoryAnnotationRepo(t *testing.T) {
	r := repository.NewMemoryAnnotationRepo()
	exerciseStore(t, r)
	assert.Positive(t, r.Len())
}

func TestMemoryAnnotationRepo_CancelledContext(t *testing.T) {
	r := repository.NewMemoryAnnotationRepo()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Upsert(ctx, models.FeedIdentity(1), price("1"), t0)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, r.Len())
}

func TestAnnotationRepo(t *testing.T) {
	pool := testutil.SetupPool(t)
	exerciseStore(t, repository.NewAnnotationRepo(pool))
}
