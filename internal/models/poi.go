package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointOfInterest is a feed record. It is fetched per viewport and never stored.
type PointOfInterest struct {
	ID         Identity   `json:"id"`
	Coordinate Coordinate `json:"coordinate"`
	Name       string     `json:"name,omitempty"`
	Brand      string     `json:"brand,omitempty"`
}

// Annotation is a user-submitted price for a point.
type Annotation struct {
	ID        Identity        `json:"id"`
	Price     decimal.Decimal `json:"price"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// MergedPoint pairs a POI with its annotation; Annotation is nil when unset.
type MergedPoint struct {
	POI        PointOfInterest `json:"poi"`
	Annotation *Annotation     `json:"annotation,omitempty"`
}

// MergedView is the reconciled content of one viewport, in feed order.
type MergedView struct {
	Points     []MergedPoint `json:"points"`
	Partial    bool          `json:"partial"`
	Unresolved int           `json:"unresolved"`
}

// Apply folds a fresh annotation into the view. It reports whether a point
// with the same identity was found.
func (v *MergedView) Apply(a Annotation) bool {
	found := false
	for i := range v.Points {
		if v.Points[i].POI.ID == a.ID {
			ann := a
			v.Points[i].Annotation = &ann
			found = true
		}
	}
	return found
}

// Clone returns a deep copy safe to hand to another goroutine.
func (v *MergedView) Clone() *MergedView {
	if v == nil {
		return nil
	}
	out := &MergedView{
		Points:     make([]MergedPoint, len(v.Points)),
		Partial:    v.Partial,
		Unresolved: v.Unresolved,
	}
	for i, p := range v.Points {
		out.Points[i] = MergedPoint{POI: p.POI}
		if p.Annotation != nil {
			ann := *p.Annotation
			out.Points[i].Annotation = &ann
		}
	}
	return out
}
