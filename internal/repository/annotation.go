package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/stationprice/internal/models"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by Get when no annotation exists for an identity.
var ErrNotFound = errors.New("annotation not found")

// AnnotationRepo stores annotations in Postgres.
type AnnotationRepo struct {
	pool *pgxpool.Pool
}

func NewAnnotationRepo(pool *pgxpool.Pool) *AnnotationRepo {
	return &AnnotationRepo{pool: pool}
}

func (r *AnnotationRepo) Get(ctx context.Context, id models.Identity) (*models.Annotation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT identity, price::text, updated_at FROM annotations WHERE identity = $1`,
		id.String(),
	)
	a, err := scanAnnotation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", id, err)
	}
	return a, nil
}

// BulkGet returns the annotations that exist among ids, keyed by canonical identity.
func (r *AnnotationRepo) BulkGet(ctx context.Context, ids []models.Identity) (map[string]models.Annotation, error) {
	out := make(map[string]models.Annotation, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	rows, err := r.pool.Query(ctx,
		`SELECT identity, price::text, updated_at FROM annotations WHERE identity = ANY($1)`,
		keys,
	)
	if err != nil {
		return nil, fmt.Errorf("bulk get: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanAnnotation(rows)
		if err != nil {
			return nil, fmt.Errorf("bulk get scan: %w", err)
		}
		out[a.ID.String()] = *a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulk get: %w", err)
	}
	return out, nil
}

// Upsert writes price for id unless the stored row carries a newer timestamp,
// in which case the stored row is returned unchanged.
func (r *AnnotationRepo) Upsert(ctx context.Context, id models.Identity, price decimal.Decimal, ts time.Time) (*models.Annotation, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO annotations (identity, kind, price, updated_at)
		 VALUES ($1, $2, $3::text::numeric, $4)
		 ON CONFLICT (identity) DO UPDATE
		   SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at
		   WHERE annotations.updated_at <= EXCLUDED.updated_at
		 RETURNING identity, price::text, updated_at`,
		id.String(), id.Kind().String(), price.String(), ts,
	)
	a, err := scanAnnotation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// A newer write is already stored.
		return r.Get(ctx, id)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", id, err)
	}
	return a, nil
}

func (r *AnnotationRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanAnnotation(row scannable) (*models.Annotation, error) {
	var (
		key   string
		price string
		a     models.Annotation
	)
	if err := row.Scan(&key, &price, &a.UpdatedAt); err != nil {
		return nil, err
	}
	id, err := models.ParseIdentity(key)
	if err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("price %q: %w", price, err)
	}
	a.ID = id
	a.Price = d
	return &a, nil
}
