package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/stationprice/internal/external"
	"github.com/kjannette/stationprice/internal/models"
	"github.com/kjannette/stationprice/internal/repository"
	"github.com/kjannette/stationprice/internal/service"
)

type stubGateway struct {
	pois []models.PointOfInterest
	err  error
}

func (g *stubGateway) QueryBoundingBox(ctx context.Context, vp models.Viewport) ([]models.PointOfInterest, error) {
	return g.pois, g.err
}

type brokenStore struct {
	*repository.MemoryAnnotationRepo
}

func (brokenStore) Get(ctx context.Context, id models.Identity) (*models.Annotation, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Upsert(ctx context.Context, id models.Identity, price decimal.Decimal, ts time.Time) (*models.Annotation, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

type fixture struct {
	handler http.Handler
	store   *repository.MemoryAnnotationRepo
	gateway *stubGateway
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewMemoryAnnotationRepo()
	gw := &stubGateway{pois: []models.PointOfInterest{
		{ID: models.FeedIdentity(101), Coordinate: models.Coordinate{Lat: 30, Lon: -93}, Name: "Lakeview"},
		{ID: models.FeedIdentity(102), Coordinate: models.Coordinate{Lat: 31.5, Lon: -91}, Brand: "Shell"},
	}}
	rec := service.NewReconciler(gw, store, service.ReconcilerOptions{}, zerolog.Nop())
	writer := service.NewPriceWriter(store, service.WriterOptions{}, zerolog.Nop())
	srv := NewServer(store, rec, writer, Options{}, zerolog.Nop())
	return &fixture{handler: srv.Handler(), store: store, gateway: gw}
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var out map[string]any
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	}
	return rr, out
}

func TestSubmitAndGetPrice(t *testing.T) {
	f := newFixture(t)

	rr, body := do(t, f.handler, http.MethodPost, "/api/prices", `{"lat": 30, "lon": -93, "price": 3.79, "id": "node/101"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "node/101", body["id"])
	assert.Equal(t, 3.79, body["price"])
	assert.NotEmpty(t, body["updatedAt"])

	rr, body = do(t, f.handler, http.MethodGet, "/api/prices/node/101", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3.79, body["price"])

	// bare feed id
	rr, _ = do(t, f.handler, http.MethodGet, "/api/prices/101", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSubmitPriceAsString(t *testing.T) {
	f := newFixture(t)

	rr, body := do(t, f.handler, http.MethodPost, "/api/prices", `{"lat": 39.12345001, "lon": -98.54321001, "price": "4.50"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "geo/39.12345,-98.54321", body["id"])
	assert.Equal(t, 4.5, body["price"])

	rr, _ = do(t, f.handler, http.MethodGet, "/api/prices/geo/39.12345,-98.54321", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestSubmitInvalid(t *testing.T) {
	cases := map[string]string{
		"negative price": `{"lat": 30, "lon": -93, "price": -1}`,
		"non-numeric":    `{"lat": 30, "lon": -93, "price": "abc"}`,
		"missing price":  `{"lat": 30, "lon": -93}`,
		"boolean price":  `{"lat": 30, "lon": -93, "price": true}`,
		"missing lat":    `{"lon": -93, "price": 3}`,
		"latitude range": `{"lat": 95, "lon": -93, "price": 3}`,
		"bad id":         `{"lat": 30, "lon": -93, "price": 3, "id": "way/abc"}`,
		"malformed body": `{"lat": 30,`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			rr, out := do(t, f.handler, http.MethodPost, "/api/prices", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.NotEmpty(t, out["error"])
			assert.Equal(t, 0, f.store.Len())
		})
	}
}

func TestGetPriceNotFound(t *testing.T) {
	f := newFixture(t)
	rr, out := do(t, f.handler, http.MethodGet, "/api/prices/node/999", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.NotEmpty(t, out["error"])
}

func TestGetPriceBadID(t *testing.T) {
	f := newFixture(t)
	rr, _ := do(t, f.handler, http.MethodGet, "/api/prices/not-an-id", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStoreFailureIs502(t *testing.T) {
	store := brokenStore{repository.NewMemoryAnnotationRepo()}
	writer := service.NewPriceWriter(store, service.WriterOptions{}, zerolog.Nop())
	srv := NewServer(store, nil, writer, Options{}, zerolog.Nop())

	rr, out := do(t, srv.Handler(), http.MethodPost, "/api/prices", `{"lat": 30, "lon": -93, "price": 3.79}`)
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NotContains(t, out["error"], "connection refused")

	rr, _ = do(t, srv.Handler(), http.MethodGet, "/api/prices/node/1", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)

	rr, out = do(t, srv.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "disconnected", out["services"].(map[string]any)["store"])
}

func TestViewport(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.Upsert(context.Background(), models.FeedIdentity(101), decimal.RequireFromString("3.79"), time.Now())
	require.NoError(t, err)

	rr, out := do(t, f.handler, http.MethodGet, "/api/viewport?bbox=29,-95,33,-90", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, false, out["partial"])

	points := out["points"].([]any)
	require.Len(t, points, 2)
	first := points[0].(map[string]any)
	second := points[1].(map[string]any)
	assert.Equal(t, "node/101", first["id"])
	assert.Equal(t, 3.79, first["price"])
	assert.Equal(t, "Lakeview", first["name"])
	assert.Equal(t, "node/102", second["id"])
	assert.Nil(t, second["price"])
	assert.Contains(t, rr.Body.String(), `"price":null`)
}

func TestViewportBadBBox(t *testing.T) {
	f := newFixture(t)
	for _, q := range []string{"", "1,2,3", "33,-95,29,-90", "a,b,c,d"} {
		rr, _ := do(t, f.handler, http.MethodGet, "/api/viewport?bbox="+q, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, q)
	}
}

func TestViewportGatewayErrors(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{&external.GatewayError{Kind: external.ErrGatewayUnavailable, StatusCode: 504}, "gateway_unavailable"},
		{&external.GatewayError{Kind: external.ErrGatewayParse, StatusCode: 200}, "gateway_parse_error"},
	}
	for _, tc := range cases {
		f := newFixture(t)
		f.gateway.err = tc.err

		rr, out := do(t, f.handler, http.MethodGet, "/api/viewport?bbox=29,-95,33,-90", "")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Equal(t, tc.code, out["code"])
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rr, out := do(t, f.handler, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "connected", out["services"].(map[string]any)["store"])
	assert.True(t, strings.HasSuffix(out["timestamp"].(string), "Z"))
}
