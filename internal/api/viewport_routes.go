package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kjannette/stationprice/internal/models"
)

type pointJSON struct {
	ID        string       `json:"id"`
	Lat       float64      `json:"lat"`
	Lon       float64      `json:"lon"`
	Name      string       `json:"name,omitempty"`
	Brand     string       `json:"brand,omitempty"`
	Price     *json.Number `json:"price"`
	UpdatedAt *time.Time   `json:"updatedAt"`
}

type viewportJSON struct {
	Points     []pointJSON `json:"points"`
	Partial    bool        `json:"partial"`
	Unresolved int         `json:"unresolved"`
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request) {
	vp, err := models.ParseBBox(r.URL.Query().Get("bbox"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bbox, expected south,west,north,east: "+err.Error())
		return
	}

	view, err := s.reconciler.Reconcile(r.Context(), vp)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, mergedViewJSON(view))
}

func mergedViewJSON(v *models.MergedView) viewportJSON {
	out := viewportJSON{
		Points:     make([]pointJSON, len(v.Points)),
		Partial:    v.Partial,
		Unresolved: v.Unresolved,
	}
	for i, p := range v.Points {
		pj := pointJSON{
			ID:    p.POI.ID.String(),
			Lat:   p.POI.Coordinate.Lat,
			Lon:   p.POI.Coordinate.Lon,
			Name:  p.POI.Name,
			Brand: p.POI.Brand,
		}
		if p.Annotation != nil {
			price := json.Number(p.Annotation.Price.String())
			ts := p.Annotation.UpdatedAt.UTC()
			pj.Price = &price
			pj.UpdatedAt = &ts
		}
		out.Points[i] = pj
	}
	return out
}
