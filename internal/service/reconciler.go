package service

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/kjannette/stationprice/internal/models"
)

const (
	DefaultBatchSize   = 200
	DefaultConcurrency = 4
)

type ReconcilerOptions struct {
	BatchSize   int
	Concurrency int
}

// Reconciler builds the merged view for a viewport.
type Reconciler struct {
	gateway     POIGateway
	store       AnnotationStore
	batchSize   int
	concurrency int
	log         zerolog.Logger
}

func NewReconciler(gateway POIGateway, store AnnotationStore, opts ReconcilerOptions, log zerolog.Logger) *Reconciler {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Reconciler{
		gateway:     gateway,
		store:       store,
		batchSize:   opts.BatchSize,
		concurrency: opts.Concurrency,
		log:         log,
	}
}

// Reconcile fetches the POIs in vp and attaches stored annotations.
// Gateway errors are returned unchanged. A failed annotation lookup only
// degrades the affected points to unset and marks the view partial.
func (r *Reconciler) Reconcile(ctx context.Context, vp models.Viewport) (*models.MergedView, error) {
	pois, err := r.gateway.QueryBoundingBox(ctx, vp)
	if err != nil {
		return nil, err
	}

	ids := distinctIDs(pois)
	batches := chunk(ids, r.batchSize)
	found := make([]map[string]models.Annotation, len(batches))
	failed := make([]bool, len(batches))

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			m, err := r.store.BulkGet(ctx, batch)
			if err != nil {
				failed[i] = true
				if ctx.Err() == nil {
					r.log.Warn().
						Err(err).
						Str("bbox", vp.String()).
						Int("batch", i).
						Int("ids", len(batch)).
						Msg("annotation lookup failed")
				}
				return nil
			}
			found[i] = m
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	annotations := make(map[string]models.Annotation)
	unresolved := make(map[models.Identity]bool)
	for i, batch := range batches {
		if failed[i] {
			for _, id := range batch {
				unresolved[id] = true
			}
			continue
		}
		for k, a := range found[i] {
			annotations[k] = a
		}
	}

	view := &models.MergedView{Points: make([]models.MergedPoint, len(pois))}
	for i, p := range pois {
		view.Points[i] = models.MergedPoint{POI: p}
		if unresolved[p.ID] {
			view.Partial = true
			view.Unresolved++
			continue
		}
		if a, ok := annotations[p.ID.String()]; ok {
			view.Points[i].Annotation = &a
		}
	}

	r.log.Debug().
		Str("bbox", vp.String()).
		Int("points", len(view.Points)).
		Int("batches", len(batches)).
		Int("unresolved", view.Unresolved).
		Msg("viewport reconciled")

	return view, nil
}

func distinctIDs(pois []models.PointOfInterest) []models.Identity {
	seen := make(map[models.Identity]struct{}, len(pois))
	ids := make([]models.Identity, 0, len(pois))
	for _, p := range pois {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		ids = append(ids, p.ID)
	}
	return ids
}

func chunk(ids []models.Identity, size int) [][]models.Identity {
	var out [][]models.Identity
	for len(ids) > 0 {
		n := min(size, len(ids))
		out = append(out, ids[:n])
		ids = ids[n:]
	}
	return out
}
