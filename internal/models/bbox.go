package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseBBox parses "south,west,north,east" into a validated Viewport.
func ParseBBox(bbox string) (Viewport, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return Viewport{}, fmt.Errorf("bbox must have 4 components, got %d", len(parts))
	}

	var vals [4]float64
	names := [4]string{"south", "west", "north", "east"}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Viewport{}, fmt.Errorf("invalid %s: %w", names[i], err)
		}
		vals[i] = f
	}

	vp := NewViewport(vals[0], vals[1], vals[2], vals[3])
	if err := vp.Validate(); err != nil {
		return Viewport{}, err
	}
	return vp, nil
}
