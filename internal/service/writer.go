package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/kjannette/stationprice/internal/guard"
	"github.com/kjannette/stationprice/internal/models"
	"github.com/kjannette/stationprice/internal/repository"
)

const (
	DefaultSnapRadiusMeters = 15.0

	notifyTimeout = 30 * time.Second
)

// Submission is one user price report. ID is optional; without it the point
// is resolved from Coordinate.
type Submission struct {
	ID         *models.Identity
	Coordinate models.Coordinate
	Price      decimal.Decimal
}

type WriterOptions struct {
	SnapRadiusMeters float64
	Snapper          Snapper
	Guard            PriceChecker
	Notifier         Notifier
	// Now defaults to time.Now.
	Now func() time.Time
}

// PriceWriter validates submissions and upserts them into the store.
type PriceWriter struct {
	store      AnnotationStore
	snapper    Snapper
	snapRadius float64
	guard      PriceChecker
	notifier   Notifier
	now        func() time.Time
	log        zerolog.Logger

	pending sync.WaitGroup
}

func NewPriceWriter(store AnnotationStore, opts WriterOptions, log zerolog.Logger) *PriceWriter {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &PriceWriter{
		store:      store,
		snapper:    opts.Snapper,
		snapRadius: opts.SnapRadiusMeters,
		guard:      opts.Guard,
		notifier:   opts.Notifier,
		now:        opts.Now,
		log:        log,
	}
}

// SubmitPrice stores the price for the resolved point and returns the stored
// annotation. Nothing is written when validation fails.
func (w *PriceWriter) SubmitPrice(ctx context.Context, sub Submission) (*models.Annotation, error) {
	price, err := NormalizePrice(sub.Price)
	if err != nil {
		return nil, err
	}
	if err := sub.Coordinate.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCoordinate, err)
	}

	id, how, err := w.resolve(ctx, sub)
	if err != nil {
		return nil, err
	}

	var previous *models.Annotation
	if (w.guard != nil && w.guard.NeedsPrevious()) || w.notifying() {
		previous, err = w.store.Get(ctx, id)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("load current price: %w", err)
		}
	}

	if w.guard != nil {
		if err := w.guard.PreWriteCheck(price, previous); err != nil {
			if errors.Is(err, guard.ErrImplausiblePrice) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
			}
			return nil, err
		}
	}

	ts := w.now().UTC().Truncate(time.Microsecond)
	stored, err := w.store.Upsert(ctx, id, price, ts)
	if err != nil {
		return nil, fmt.Errorf("upsert %s: %w", id, err)
	}

	w.log.Info().
		Str("id", id.String()).
		Str("resolved", how).
		Str("price", stored.Price.String()).
		Msg("price stored")

	if w.notifying() && stored.UpdatedAt.Equal(ts) && (previous == nil || !previous.Price.Equal(stored.Price)) {
		w.notify(ctx, previous, *stored)
	}

	return stored, nil
}

// Wait blocks until queued notifications have been sent.
func (w *PriceWriter) Wait() {
	w.pending.Wait()
}

// resolve picks the identity a submission is stored under. A point that
// already holds a derived annotation keeps it even once a nearby feed POI has
// been sighted, so one location never ends up with two annotations.
func (w *PriceWriter) resolve(ctx context.Context, sub Submission) (models.Identity, string, error) {
	if sub.ID != nil {
		if sub.ID.IsZero() {
			return models.Identity{}, "", models.ErrInvalidIdentity
		}
		return *sub.ID, "explicit", nil
	}

	derived := models.DerivedIdentity(sub.Coordinate)
	if w.snapper == nil || w.snapRadius <= 0 {
		return derived, "derived", nil
	}
	p, ok := w.snapper.Nearest(sub.Coordinate, w.snapRadius)
	if !ok {
		return derived, "derived", nil
	}

	_, err := w.store.Get(ctx, derived)
	switch {
	case err == nil:
		return derived, "derived", nil
	case errors.Is(err, repository.ErrNotFound):
		return p.ID, "snapped", nil
	default:
		return models.Identity{}, "", fmt.Errorf("load derived price: %w", err)
	}
}

func (w *PriceWriter) notifying() bool {
	return w.notifier != nil && w.notifier.Enabled()
}

func (w *PriceWriter) notify(ctx context.Context, prev *models.Annotation, next models.Annotation) {
	w.pending.Add(1)
	go func() {
		defer w.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		w.notifier.PriceChanged(nctx, prev, next)
	}()
}
