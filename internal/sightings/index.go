// Package sightings keeps an R-tree of feed POIs seen by recent viewport
// reconciles so raw submitted coordinates can be snapped onto a feed identity.
package sightings

import (
	"math"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/kjannette/stationprice/internal/models"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50
	tolerance   = 1e-9

	// DefaultMaxEntries bounds memory when no limit is configured.
	DefaultMaxEntries = 50000

	metersPerDegreeLat = 111320.0
)

type sighting struct {
	poi  models.PointOfInterest
	rect rtreego.Rect
}

func (s *sighting) Bounds() rtreego.Rect {
	return s.rect
}

// Index is safe for concurrent use.
type Index struct {
	mu         sync.RWMutex
	tree       *rtreego.Rtree
	byID       map[models.Identity]*sighting
	maxEntries int
}

func New(maxEntries int) *Index {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Index{
		tree:       rtreego.NewTree(dimensions, minChildren, maxChildren),
		byID:       make(map[models.Identity]*sighting),
		maxEntries: maxEntries,
	}
}

// Record adds feed POIs, replacing earlier sightings of the same identity.
// Derived identities are ignored. When the index would grow past its limit it
// is cleared first.
func (x *Index) Record(pois []models.PointOfInterest) {
	if len(pois) == 0 {
		return
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if len(x.byID)+len(pois) > x.maxEntries {
		x.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
		x.byID = make(map[models.Identity]*sighting)
	}

	for _, p := range pois {
		if p.ID.Kind() != models.KindFeed {
			continue
		}
		if old, ok := x.byID[p.ID]; ok {
			x.tree.Delete(old)
		}
		s := &sighting{
			poi:  p,
			rect: rtreego.Point{p.Coordinate.Lat, p.Coordinate.Lon}.ToRect(tolerance),
		}
		x.tree.Insert(s)
		x.byID[p.ID] = s
	}
}

// Nearest returns the closest recorded POI within radiusM metres of c.
func (x *Index) Nearest(c models.Coordinate, radiusM float64) (models.PointOfInterest, bool) {
	if radiusM <= 0 {
		return models.PointOfInterest{}, false
	}

	dLat := radiusM / metersPerDegreeLat
	cosLat := math.Cos(c.Lat * math.Pi / 180)
	if cosLat < 1e-6 {
		cosLat = 1e-6
	}
	dLon := math.Min(radiusM/(metersPerDegreeLat*cosLat), 180)

	rects := searchRects(c, dLat, dLon)
	if len(rects) == 0 {
		return models.PointOfInterest{}, false
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var (
		best     models.PointOfInterest
		bestDist = math.Inf(1)
		found    bool
	)
	for _, rect := range rects {
		for _, item := range x.tree.SearchIntersect(rect) {
			s := item.(*sighting)
			d := c.DistanceMeters(s.poi.Coordinate)
			if d > radiusM {
				continue
			}
			// ties go to the lower feed id so snapping is deterministic
			if d < bestDist || (d == bestDist && lessFeedID(s.poi.ID, best.ID)) {
				best, bestDist, found = s.poi, d, true
			}
		}
	}
	return best, found
}

// searchRects covers the lon window [c.Lon-dLon, c.Lon+dLon], split in two
// where it crosses ±180.
func searchRects(c models.Coordinate, dLat, dLon float64) []rtreego.Rect {
	west, east := c.Lon-dLon, c.Lon+dLon
	var spans [][2]float64
	switch {
	case dLon >= 180:
		spans = [][2]float64{{-180, 180}}
	case west < -180:
		spans = [][2]float64{{west + 360, 180}, {-180, east}}
	case east > 180:
		spans = [][2]float64{{west, 180}, {-180, east - 360}}
	default:
		spans = [][2]float64{{west, east}}
	}

	rects := make([]rtreego.Rect, 0, len(spans))
	for _, sp := range spans {
		r, err := rtreego.NewRect(
			rtreego.Point{c.Lat - dLat, sp[0]},
			[]float64{2 * dLat, math.Max(sp[1]-sp[0], tolerance)},
		)
		if err != nil {
			continue
		}
		rects = append(rects, r)
	}
	return rects
}

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byID)
}

func lessFeedID(a, b models.Identity) bool {
	ai, _ := a.FeedID()
	bi, _ := b.FeedID()
	return ai < bi
}
