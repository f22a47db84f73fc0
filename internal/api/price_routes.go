package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/kjannette/stationprice/internal/models"
	"github.com/kjannette/stationprice/internal/repository"
	"github.com/kjannette/stationprice/internal/service"
)

const maxBodyBytes = 1 << 16

type priceJSON struct {
	ID        string      `json:"id"`
	Price     json.Number `json:"price"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

type submitRequest struct {
	Lat   *float64        `json:"lat"`
	Lon   *float64        `json:"lon"`
	Price json.RawMessage `json:"price"`
	ID    *string         `json:"id"`
}

func annotationJSON(a *models.Annotation) priceJSON {
	return priceJSON{
		ID:        a.ID.String(),
		Price:     json.Number(a.Price.String()),
		UpdatedAt: a.UpdatedAt.UTC(),
	}
}

func (s *Server) handleSubmitPrice(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Lat == nil || req.Lon == nil {
		writeError(w, http.StatusBadRequest, "lat and lon are required")
		return
	}

	price, err := parsePriceField(req.Price)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	sub := service.Submission{
		Coordinate: models.Coordinate{Lat: *req.Lat, Lon: *req.Lon},
		Price:      price,
	}
	if req.ID != nil && *req.ID != "" {
		id, err := models.ParseIdentity(*req.ID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		sub.ID = &id
	}

	a, err := s.writer.SubmitPrice(r.Context(), sub)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, annotationJSON(a))
}

// parsePriceField accepts a JSON number or a numeric string.
func parsePriceField(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, fmt.Errorf("%w: price is required", service.ErrInvalidPrice)
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Zero, fmt.Errorf("%w: malformed string", service.ErrInvalidPrice)
		}
		return service.ParsePrice(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s is not a number", service.ErrInvalidPrice, raw)
	}
	return service.ParsePrice(n.String())
}

func (s *Server) handleGetPrice(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed id")
		return
	}
	id, err := models.ParseIdentity(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a, err := s.store.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no price for "+id.String())
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, annotationJSON(a))
}
