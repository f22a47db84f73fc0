package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog"
	"github.com/serjvanilla/go-overpass"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/kjannette/stationprice/internal/models"
)

const (
	DefaultOverpassURL = "https://overpass-api.de/api/interpreter"
	DefaultFilter      = `"amenity"="fuel"`
	DefaultTimeout     = 10 * time.Second
)

// Recorder receives every successful feed result.
type Recorder interface {
	Record(pois []models.PointOfInterest)
}

type OverpassOptions struct {
	Endpoint      string
	Filter        string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	MaxParallel   int
	// Transport overrides http.DefaultTransport.
	Transport http.RoundTripper
	Recorder  Recorder
}

// OverpassGateway fetches POIs inside a viewport from an Overpass endpoint.
// One call is one POST; nothing is retried.
type OverpassGateway struct {
	opts    OverpassOptions
	limiter *rate.Limiter
	sem     *semaphore.Weighted
	log     zerolog.Logger
}

func NewOverpassGateway(opts OverpassOptions, log zerolog.Logger) *OverpassGateway {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultOverpassURL
	}
	if opts.Filter == "" {
		opts.Filter = DefaultFilter
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 2
	}
	if opts.Transport == nil {
		opts.Transport = http.DefaultTransport
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &OverpassGateway{
		opts:    opts,
		limiter: rate.NewLimiter(limit, burst),
		sem:     semaphore.NewWeighted(int64(opts.MaxParallel)),
		log:     log,
	}
}

// QueryBoundingBox returns the POIs in vp ordered by (box, feed id).
func (g *OverpassGateway) QueryBoundingBox(ctx context.Context, vp models.Viewport) ([]models.PointOfInterest, error) {
	if err := vp.Validate(); err != nil {
		return nil, fmt.Errorf("viewport: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, unavailable(0, fmt.Errorf("rate limit wait: %w", err))
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, unavailable(0, fmt.Errorf("acquire slot: %w", err))
	}
	defer g.sem.Release(1)

	bounds := vp.Bounds()
	query := BuildQuery(g.opts.Filter, bounds, g.opts.Timeout)

	wire := &wireTransport{ctx: ctx, base: g.opts.Transport}
	client := overpass.NewWithSettings(g.opts.Endpoint, 1, &http.Client{Transport: wire})

	start := time.Now()
	result, err := client.Query(query)
	if err != nil {
		gerr := classify(ctx, wire, err)
		g.log.Warn().
			Err(err).
			Str("bbox", vp.String()).
			Int("status", gerr.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("overpass query failed")
		return nil, gerr
	}

	pois := convertNodes(result, bounds)
	g.log.Debug().
		Str("bbox", vp.String()).
		Int("pois", len(pois)).
		Dur("elapsed", time.Since(start)).
		Msg("overpass query")

	if g.opts.Recorder != nil {
		g.opts.Recorder.Record(pois)
	}
	return pois, nil
}

// BuildQuery renders one node clause per box inside a union.
func BuildQuery(filter string, bounds []orb.Bound, timeout time.Duration) string {
	var b strings.Builder
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", secs)
	for _, bb := range bounds {
		fmt.Fprintf(&b, "  node[%s](%s,%s,%s,%s);\n", filter,
			formatDeg(bb.Min.Lat()), formatDeg(bb.Min.Lon()),
			formatDeg(bb.Max.Lat()), formatDeg(bb.Max.Lon()))
	}
	b.WriteString(");\nout body;\n>;\nout skel qt;")
	return b.String()
}

func formatDeg(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func convertNodes(result overpass.Result, bounds []orb.Bound) []models.PointOfInterest {
	type ranked struct {
		box int
		poi models.PointOfInterest
	}

	items := make([]ranked, 0, len(result.Nodes))
	for _, node := range result.Nodes {
		if node == nil || (node.Lat == 0 && node.Lon == 0) {
			continue
		}
		c := models.Coordinate{Lat: node.Lat, Lon: node.Lon}
		if c.Validate() != nil {
			continue
		}
		items = append(items, ranked{
			box: boxIndex(bounds, c),
			poi: models.PointOfInterest{
				ID:         models.FeedIdentity(node.ID),
				Coordinate: c,
				Name:       node.Tags["name"],
				Brand:      node.Tags["brand"],
			},
		})
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].box != items[j].box {
			return items[i].box < items[j].box
		}
		a, _ := items[i].poi.ID.FeedID()
		b, _ := items[j].poi.ID.FeedID()
		return a < b
	})

	pois := make([]models.PointOfInterest, len(items))
	for i, it := range items {
		pois[i] = it.poi
	}
	return pois
}

func boxIndex(bounds []orb.Bound, c models.Coordinate) int {
	for i, b := range bounds {
		if b.Contains(c.Point()) {
			return i
		}
	}
	return len(bounds)
}

// wireTransport binds the request to the call context and remembers what
// happened on the wire, including errors hit while the body is read, so
// failures can be classified after the fact.
type wireTransport struct {
	ctx  context.Context
	base http.RoundTripper

	mu        sync.Mutex
	status    int
	transport error
}

func (p *wireTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := p.base.RoundTrip(req.WithContext(p.ctx))
	if err != nil {
		p.fail(err)
		return nil, err
	}
	p.mu.Lock()
	p.status = resp.StatusCode
	p.mu.Unlock()
	resp.Body = &wireBody{ReadCloser: resp.Body, wire: p}
	return resp, nil
}

func (p *wireTransport) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transport == nil {
		p.transport = err
	}
}

func (p *wireTransport) outcome() (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.transport
}

type wireBody struct {
	io.ReadCloser
	wire *wireTransport
}

func (b *wireBody) Read(buf []byte) (int, error) {
	n, err := b.ReadCloser.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		b.wire.fail(err)
	}
	return n, err
}

// classify maps a failed query onto the two gateway error kinds. Only a body
// that arrived intact with status 200 and then failed JSON decoding counts as
// a parse error.
func classify(ctx context.Context, wire *wireTransport, err error) *GatewayError {
	status, transportErr := wire.outcome()
	switch {
	case ctx.Err() != nil:
		return unavailable(status, fmt.Errorf("%w: %v", ctx.Err(), err))
	case transportErr != nil:
		return unavailable(status, fmt.Errorf("%w: %v", transportErr, err))
	case status != http.StatusOK:
		if status == 0 {
			return unavailable(0, err)
		}
		return unavailable(status, fmt.Errorf("status %d: %w", status, err))
	case isDecodeError(err):
		return parseFailure(err)
	default:
		return unavailable(status, err)
	}
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
