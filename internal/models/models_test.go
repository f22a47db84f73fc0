package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerivedIdentity_Converges(t *testing.T) {
	a := DerivedIdentity(Coordinate{Lat: 39.12345001, Lon: -98.54321001})
	b := DerivedIdentity(Coordinate{Lat: 39.12345099, Lon: -98.54320999})
	assert.Equal(t, a, b)
	assert.Equal(t, "geo/39.12345,-98.54321", a.String())
}

func TestIdentity_SpacesDoNotMix(t *testing.T) {
	feed := FeedIdentity(101)
	derived := DerivedIdentity(Coordinate{Lat: 0.00101, Lon: 0})
	assert.NotEqual(t, feed, derived)
	assert.NotEqual(t, feed.String(), derived.String())

	_, ok := feed.Coordinate()
	assert.False(t, ok)
	_, ok = derived.FeedID()
	assert.False(t, ok)
}

func TestParseIdentity(t *testing.T) {
	cases := []struct {
		in   string
		want Identity
	}{
		{"node/101", FeedIdentity(101)},
		{"101", FeedIdentity(101)},
		{" node/7 ", FeedIdentity(7)},
		{"geo/39.12345,-98.54321", DerivedIdentity(Coordinate{Lat: 39.12345, Lon: -98.54321})},
		{"geo/-0.50000,0.00001", DerivedIdentity(Coordinate{Lat: -0.5, Lon: 0.00001})},
	}
	for _, tc := range cases {
		got, err := ParseIdentity(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}

	for _, bad := range []string{"", "abc", "node/", "node/-3", "0", "geo/1", "geo/91,0", "geo/a,b"} {
		_, err := ParseIdentity(bad)
		assert.ErrorIs(t, err, ErrInvalidIdentity, bad)
	}
}

func TestIdentity_RoundTripString(t *testing.T) {
	for _, id := range []Identity{
		FeedIdentity(123456789),
		DerivedIdentity(Coordinate{Lat: -33.86785, Lon: 151.20732}),
		DerivedIdentity(Coordinate{Lat: -0.00004, Lon: -0.00001}),
	} {
		parsed, err := ParseIdentity(id.String())
		require.NoError(t, err)
		assert.Equal(t, id, parsed)
	}
}

func TestParseBBox(t *testing.T) {
	vp, err := ParseBBox("29,-95,33,-90")
	require.NoError(t, err)
	assert.Equal(t, NewViewport(29, -95, 33, -90), vp)
	assert.False(t, vp.CrossesAntimeridian())
	assert.Len(t, vp.Bounds(), 1)

	for _, bad := range []string{"", "1,2,3", "a,b,c,d", "33,-95,29,-90", "0,-181,1,0", "-91,0,0,1"} {
		_, err := ParseBBox(bad)
		assert.Error(t, err, bad)
	}
}

func TestViewport_AntimeridianSplit(t *testing.T) {
	vp := NewViewport(-20, 170, -10, -170)
	require.NoError(t, vp.Validate())
	require.True(t, vp.CrossesAntimeridian())

	bounds := vp.Bounds()
	require.Len(t, bounds, 2)
	assert.Equal(t, 170.0, bounds[0].Min.Lon())
	assert.Equal(t, 180.0, bounds[0].Max.Lon())
	assert.Equal(t, -180.0, bounds[1].Min.Lon())
	assert.Equal(t, -170.0, bounds[1].Max.Lon())

	assert.True(t, vp.Contains(Coordinate{Lat: -15, Lon: 175}))
	assert.True(t, vp.Contains(Coordinate{Lat: -15, Lon: -175}))
	assert.False(t, vp.Contains(Coordinate{Lat: -15, Lon: 0}))
}

func TestDistanceMeters(t *testing.T) {
	a := Coordinate{Lat: 30, Lon: -93}
	b := Coordinate{Lat: 30.0001, Lon: -93}
	d := a.DistanceMeters(b)
	assert.InDelta(t, 11.1, d, 0.2)
	assert.Zero(t, a.DistanceMeters(a))
}

func TestMergedView_ApplyAndClone(t *testing.T) {
	v := &MergedView{Points: []MergedPoint{
		{POI: PointOfInterest{ID: FeedIdentity(1)}},
		{POI: PointOfInterest{ID: FeedIdentity(2)}},
	}}
	clone := v.Clone()

	assert.True(t, v.Apply(Annotation{ID: FeedIdentity(2)}))
	assert.False(t, v.Apply(Annotation{ID: FeedIdentity(3)}))
	assert.NotNil(t, v.Points[1].Annotation)
	assert.Nil(t, clone.Points[1].Annotation)
}
