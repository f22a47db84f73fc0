package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// QuantumDegrees is the grid used for derived identities (about 1 m).
const QuantumDegrees = 1e-5

const quantaPerDegree = 100000

type IdentityKind uint8

const (
	kindInvalid IdentityKind = iota
	// KindFeed identities are assigned by the POI feed.
	KindFeed
	// KindDerived identities come from a quantized coordinate.
	KindDerived
)

func (k IdentityKind) String() string {
	switch k {
	case KindFeed:
		return "feed"
	case KindDerived:
		return "derived"
	default:
		return "invalid"
	}
}

var ErrInvalidIdentity = errors.New("invalid identity")

// Identity names a point across the feed and the annotation store. The two
// variants live in separate spaces: a feed id never equals a derived id.
type Identity struct {
	kind   IdentityKind
	feedID int64
	latQ   int64
	lonQ   int64
}

func FeedIdentity(id int64) Identity {
	return Identity{kind: KindFeed, feedID: id}
}

// DerivedIdentity quantizes c onto the QuantumDegrees grid so nearby
// submissions converge on one identity.
func DerivedIdentity(c Coordinate) Identity {
	return Identity{
		kind: KindDerived,
		latQ: int64(math.Round(c.Lat * quantaPerDegree)),
		lonQ: int64(math.Round(c.Lon * quantaPerDegree)),
	}
}

func (id Identity) Kind() IdentityKind { return id.kind }
func (id Identity) IsZero() bool       { return id.kind == kindInvalid }

// FeedID returns the feed id; ok is false for derived identities.
func (id Identity) FeedID() (int64, bool) {
	return id.feedID, id.kind == KindFeed
}

// Coordinate returns the grid point of a derived identity.
func (id Identity) Coordinate() (Coordinate, bool) {
	if id.kind != KindDerived {
		return Coordinate{}, false
	}
	return Coordinate{
		Lat: float64(id.latQ) / quantaPerDegree,
		Lon: float64(id.lonQ) / quantaPerDegree,
	}, true
}

// String is the canonical text form used as the storage key and on the wire.
func (id Identity) String() string {
	switch id.kind {
	case KindFeed:
		return "node/" + strconv.FormatInt(id.feedID, 10)
	case KindDerived:
		return "geo/" + formatQuanta(id.latQ) + "," + formatQuanta(id.lonQ)
	default:
		return ""
	}
}

func (id Identity) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return nil, ErrInvalidIdentity
	}
	return []byte(id.String()), nil
}

func (id *Identity) UnmarshalText(b []byte) error {
	parsed, err := ParseIdentity(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseIdentity accepts "node/<id>", "geo/<lat>,<lon>" and a bare feed id.
func ParseIdentity(s string) (Identity, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "node/"):
		return parseFeedID(strings.TrimPrefix(s, "node/"))
	case strings.HasPrefix(s, "geo/"):
		parts := strings.Split(strings.TrimPrefix(s, "geo/"), ",")
		if len(parts) != 2 {
			return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
		}
		lat, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
		}
		lon, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
		}
		c := Coordinate{Lat: lat, Lon: lon}
		if err := c.Validate(); err != nil {
			return Identity{}, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
		}
		return DerivedIdentity(c), nil
	default:
		return parseFeedID(s)
	}
}

func parseFeedID(s string) (Identity, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return Identity{}, fmt.Errorf("%w: %q", ErrInvalidIdentity, s)
	}
	return FeedIdentity(n), nil
}

func formatQuanta(q int64) string {
	sign := ""
	if q < 0 {
		sign = "-"
		q = -q
	}
	return fmt.Sprintf("%s%d.%05d", sign, q/quantaPerDegree, q%quantaPerDegree)
}
