// Package view holds per-client map state: the merged view currently shown
// for the latest viewport request.
package view

import (
	"context"
	"errors"
	"sync"

	"github.com/kjannette/stationprice/internal/models"
	"github.com/kjannette/stationprice/internal/service"
)

// ErrSuperseded is returned by a pan whose result arrived after a newer one.
var ErrSuperseded = errors.New("viewport superseded by a newer request")

type Reconciler interface {
	Reconcile(ctx context.Context, vp models.Viewport) (*models.MergedView, error)
}

type Writer interface {
	SubmitPrice(ctx context.Context, sub service.Submission) (*models.Annotation, error)
}

// Session applies last-request-wins to viewport changes. Each Pan gets a
// sequence number; only results newer than the installed view replace it.
type Session struct {
	reconciler Reconciler
	writer     Writer

	mu        sync.Mutex
	issued    uint64
	installed uint64
	view      *models.MergedView
	viewport  models.Viewport
	cancel    context.CancelFunc
}

func NewSession(r Reconciler, w Writer) *Session {
	return &Session{reconciler: r, writer: w}
}

// Pan reconciles vp, cancelling any pan still in flight. On failure the
// installed view is left as it was.
func (s *Session) Pan(ctx context.Context, vp models.Viewport) (*models.MergedView, uint64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.issued++
	seq := s.issued
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	s.mu.Unlock()

	view, err := s.reconciler.Reconcile(ctx, vp)

	s.mu.Lock()
	defer s.mu.Unlock()

	if seq == s.issued {
		s.cancel = nil
	}
	if seq <= s.installed || (err != nil && seq < s.issued) {
		return nil, seq, ErrSuperseded
	}
	if err != nil {
		return nil, seq, err
	}

	s.view = view
	s.installed = seq
	s.viewport = vp
	return view.Clone(), seq, nil
}

// Submit writes a price and folds the stored annotation into the installed
// view without another reconcile.
func (s *Session) Submit(ctx context.Context, sub service.Submission) (*models.Annotation, error) {
	a, err := s.writer.SubmitPrice(ctx, sub)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view != nil {
		s.view.Apply(*a)
	}
	return a, nil
}

// Current returns a copy of the installed view and its sequence number.
// The view is nil before the first successful pan.
func (s *Session) Current() (*models.MergedView, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.Clone(), s.installed
}

// Viewport returns the viewport of the installed view.
func (s *Session) Viewport() (models.Viewport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewport, s.installed > 0
}
