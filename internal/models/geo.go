package models

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const earthRadiusMeters = 6371008.8

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsInf(c.Lat, 0) || math.IsNaN(c.Lon) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("coordinate must be finite")
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %.6f out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %.6f out of range [-180, 180]", c.Lon)
	}
	return nil
}

// Point returns the coordinate in orb's (lon, lat) order.
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func CoordinateFromPoint(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lon: p.Lon()}
}

// DistanceMeters is the haversine distance between two coordinates.
func (c Coordinate) DistanceMeters(o Coordinate) float64 {
	dLat := (o.Lat - c.Lat) * math.Pi / 180
	dLon := (o.Lon - c.Lon) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(c.Lat*math.Pi/180)*math.Cos(o.Lat*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// Viewport is the queried map region. A viewport whose west edge lies east of
// its east edge crosses the antimeridian.
type Viewport struct {
	SouthWest Coordinate `json:"sw"`
	NorthEast Coordinate `json:"ne"`
}

func NewViewport(south, west, north, east float64) Viewport {
	return Viewport{
		SouthWest: Coordinate{Lat: south, Lon: west},
		NorthEast: Coordinate{Lat: north, Lon: east},
	}
}

func (v Viewport) Validate() error {
	if err := v.SouthWest.Validate(); err != nil {
		return fmt.Errorf("southwest: %w", err)
	}
	if err := v.NorthEast.Validate(); err != nil {
		return fmt.Errorf("northeast: %w", err)
	}
	if v.SouthWest.Lat > v.NorthEast.Lat {
		return fmt.Errorf("south %.6f must be <= north %.6f", v.SouthWest.Lat, v.NorthEast.Lat)
	}
	return nil
}

func (v Viewport) CrossesAntimeridian() bool {
	return v.SouthWest.Lon > v.NorthEast.Lon
}

// Bounds returns the boxes covering the viewport: one normally, two when the
// viewport crosses the antimeridian (western part first).
func (v Viewport) Bounds() []orb.Bound {
	s, n := v.SouthWest.Lat, v.NorthEast.Lat
	w, e := v.SouthWest.Lon, v.NorthEast.Lon
	if !v.CrossesAntimeridian() {
		return []orb.Bound{{Min: orb.Point{w, s}, Max: orb.Point{e, n}}}
	}
	return []orb.Bound{
		{Min: orb.Point{w, s}, Max: orb.Point{180, n}},
		{Min: orb.Point{-180, s}, Max: orb.Point{e, n}},
	}
}

// Contains reports whether c lies inside the viewport.
func (v Viewport) Contains(c Coordinate) bool {
	for _, b := range v.Bounds() {
		if b.Contains(c.Point()) {
			return true
		}
	}
	return false
}

// String renders the viewport in feed order: south,west,north,east.
func (v Viewport) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", v.SouthWest.Lat, v.SouthWest.Lon, v.NorthEast.Lat, v.NorthEast.Lon)
}
