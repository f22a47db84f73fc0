// Package service joins the POI feed with the annotation store: the viewport
// reconciler on the read side and the price writer on the write side.
package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kjannette/stationprice/internal/models"
)

// POIGateway is the bounding-box feed.
type POIGateway interface {
	QueryBoundingBox(ctx context.Context, vp models.Viewport) ([]models.PointOfInterest, error)
}

// AnnotationStore is implemented by repository.AnnotationRepo and
// repository.MemoryAnnotationRepo.
type AnnotationStore interface {
	Get(ctx context.Context, id models.Identity) (*models.Annotation, error)
	BulkGet(ctx context.Context, ids []models.Identity) (map[string]models.Annotation, error)
	Upsert(ctx context.Context, id models.Identity, price decimal.Decimal, ts time.Time) (*models.Annotation, error)
}

// Snapper finds a recently seen feed POI near a raw coordinate.
type Snapper interface {
	Nearest(c models.Coordinate, radiusM float64) (models.PointOfInterest, bool)
}

// PriceChecker vets a price against the currently stored annotation.
type PriceChecker interface {
	NeedsPrevious() bool
	PreWriteCheck(price decimal.Decimal, previous *models.Annotation) error
}

type Notifier interface {
	Enabled() bool
	PriceChanged(ctx context.Context, prev *models.Annotation, next models.Annotation)
}
